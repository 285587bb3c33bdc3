package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"callhub/internal/events"
	"callhub/internal/events/eventstest"
)

type stubVerifier map[string]string

func (s stubVerifier) VerifyCredential(_ context.Context, token string) (string, error) {
	if uid, ok := s[token]; ok {
		return uid, nil
	}
	return "", errors.New("bad token")
}

func newTestRegistry() *Registry {
	return New(stubVerifier{"tok-a": "alice", "tok-b": "bob"}, nil)
}

func TestAdmitRejectsBadCredential(t *testing.T) {
	r := newTestRegistry()
	if _, err := r.Admit(context.Background(), "nope", eventstest.NewRecorder()); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if _, err := r.Admit(context.Background(), "", eventstest.NewRecorder()); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth for empty token, got %v", err)
	}
	if len(r.OnlineUsers()) != 0 {
		t.Fatalf("expected nobody online")
	}
}

func TestOnlineOfflineFireOnlyOnEdges(t *testing.T) {
	r := newTestRegistry()
	var online, offline int32
	r.OnOnline(func(context.Context, string) { atomic.AddInt32(&online, 1) })
	r.OnOffline(func(context.Context, string) { atomic.AddInt32(&offline, 1) })

	ctx := context.Background()
	c1, err := r.Admit(ctx, "tok-a", eventstest.NewRecorder())
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	c2, err := r.Admit(ctx, "tok-a", eventstest.NewRecorder())
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if online != 1 {
		t.Fatalf("expected one online edge, got %d", online)
	}
	if got := len(r.ConnectionsFor("alice")); got != 2 {
		t.Fatalf("expected 2 connections, got %d", got)
	}

	if r.Remove(ctx, c1.ID) {
		t.Fatalf("removing non-last connection must not report offline")
	}
	if offline != 0 {
		t.Fatalf("expected no offline edge yet")
	}
	if !r.Remove(ctx, c2.ID) {
		t.Fatalf("expected offline on last removal")
	}
	if offline != 1 || r.IsOnline("alice") {
		t.Fatalf("expected alice offline, edges=%d", offline)
	}
	if r.Remove(ctx, c2.ID) {
		t.Fatalf("double remove must be a no-op")
	}
}

func TestSendToUserFansOut(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	a1, a2, b := eventstest.NewRecorder(), eventstest.NewRecorder(), eventstest.NewRecorder()
	r.Admit(ctx, "tok-a", a1)
	r.Admit(ctx, "tok-a", a2)
	r.Admit(ctx, "tok-b", b)

	if n := r.SendToUser("alice", events.New("ping", nil)); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	if a1.Count("ping") != 1 || a2.Count("ping") != 1 || b.Count("ping") != 0 {
		t.Fatalf("unexpected fan-out")
	}
	if n := r.SendToUser("carol", events.New("ping", nil)); n != 0 {
		t.Fatalf("expected 0 deliveries to offline user, got %d", n)
	}

	a2.Err = events.ErrSinkClosed
	if n := r.SendToUser("alice", events.New("ping", nil)); n != 1 {
		t.Fatalf("expected failed sink skipped, got %d", n)
	}
}

func TestBroadcastSkipsSender(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	a, b := eventstest.NewRecorder(), eventstest.NewRecorder()
	r.Admit(ctx, "tok-a", a)
	r.Admit(ctx, "tok-b", b)

	r.Broadcast(events.New(events.UserOnline, events.UserPayload{UserID: "alice"}), "alice")
	if a.Count(events.UserOnline) != 0 || b.Count(events.UserOnline) != 1 {
		t.Fatalf("unexpected broadcast targets")
	}
	if users := r.OnlineUsers(); len(users) != 2 || users[0] != "alice" {
		t.Fatalf("unexpected online users %v", users)
	}
}

func TestConcurrentAdmitRemoveKeepsEdgesBalanced(t *testing.T) {
	r := newTestRegistry()
	var online, offline int32
	r.OnOnline(func(context.Context, string) { atomic.AddInt32(&online, 1) })
	r.OnOffline(func(context.Context, string) { atomic.AddInt32(&offline, 1) })

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := r.Admit(ctx, "tok-a", eventstest.NewRecorder())
			if err != nil {
				t.Errorf("admit: %v", err)
				return
			}
			r.Remove(ctx, c.ID)
		}()
	}
	wg.Wait()

	if r.IsOnline("alice") {
		t.Fatalf("expected alice offline after all removals")
	}
	if online != offline || online == 0 {
		t.Fatalf("unbalanced edges online=%d offline=%d", online, offline)
	}
}
