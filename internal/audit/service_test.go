package audit

import (
	"context"
	"testing"
	"time"
)

func TestService_AppendRequiresType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{Type: EventTypeUnauthorized}); err == nil {
		t.Fatalf("expected error for unauthorized event without actor")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return at }

	if err := svc.LogAuthFailure(context.Background(), "1.2.3.4", "token expired"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.LogUnauthorized(context.Background(), "mallory", "conn-1", "call:accept", "not the receiver"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].Type != EventTypeAuthFailure || evs[0].IPAddress != "1.2.3.4" {
		t.Fatalf("unexpected auth failure event %+v", evs[0])
	}
	if evs[1].ActorUserID != "mallory" || evs[1].Inbound != "call:accept" || evs[1].ID == "" {
		t.Fatalf("unexpected unauthorized event %+v", evs[1])
	}
	if !evs[1].CreatedAt.Equal(at) {
		t.Fatalf("expected clock timestamp, got %s", evs[1].CreatedAt)
	}
}
