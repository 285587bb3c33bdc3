package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"callhub/internal/audit"
	"callhub/internal/calls"
	"callhub/internal/directory"
	"callhub/internal/events/eventstest"
	"callhub/internal/history"
	"callhub/internal/messages"
	"callhub/internal/notify"
	"callhub/internal/presence"
	"callhub/internal/registry"
	"callhub/internal/signaling"
)

type tokenVerifier map[string]string

func (v tokenVerifier) VerifyCredential(_ context.Context, token string) (string, error) {
	if uid, ok := v[token]; ok {
		return uid, nil
	}
	return "", errors.New("unknown token")
}

type stack struct {
	reg        *registry.Registry
	calls      *calls.Manager
	tracker    *presence.Tracker
	dispatcher *Dispatcher
	hub        *Hub
	history    *history.MemoryRepo
	audit      *audit.MemoryRepo
}

func newStack(t *testing.T) *stack {
	t.Helper()
	reg := registry.New(tokenVerifier{"tok-alice": "alice", "tok-bob": "bob", "tok-carol": "carol"}, nil)
	archive := history.NewMemoryRepo()
	mgr := calls.NewManager(
		calls.NewMemoryStore(),
		directory.NewMemory("alice", "bob", "carol"),
		history.NewService(archive),
		reg,
		calls.Options{RingTimeout: time.Minute},
	)
	tracker := presence.NewTracker(reg, time.Second, nil)
	audits := audit.NewMemoryRepo()
	auditor := audit.NewService(audits)
	d := NewDispatcher(
		reg,
		mgr,
		signaling.NewRelay(mgr, reg, nil),
		tracker,
		notify.New(reg, nil),
		messages.NewService(messages.NewMemoryRepo()),
		nil,
	).WithAudit(auditor)
	hub := NewHub(reg, tracker, mgr, d, Options{SendBuffer: 16, Audit: auditor})
	return &stack{reg: reg, calls: mgr, tracker: tracker, dispatcher: d, hub: hub, history: archive, audit: audits}
}

// join admits a recorder-backed connection for token.
func (s *stack) join(t *testing.T, token string) (*registry.Connection, *eventstest.Recorder) {
	t.Helper()
	rec := eventstest.NewRecorder()
	conn, err := s.reg.Admit(context.Background(), token, rec)
	if err != nil {
		t.Fatalf("admit %s: %v", token, err)
	}
	return conn, rec
}
