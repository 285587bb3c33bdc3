package messages

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestService() (*Service, *MemoryRepo) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	svc.clock = func() time.Time { return time.Unix(1700000000, 0) }
	return svc, repo
}

func TestSendValidates(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct{ from, to, content string }{
		{"", "bob", "hi"},
		{"alice", "alice", "hi"},
		{"alice", "bob", "   "},
		{"alice", "bob", strings.Repeat("x", maxContentRunes+1)},
	}
	for _, c := range cases {
		if _, err := svc.Send(ctx, c.from, c.to, c.content, ""); !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("expected ErrInvalidMessage for %+v, got %v", c, err)
		}
	}
	if _, err := svc.Send(ctx, "alice", "bob", "hi", Kind("video")); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected unknown kind rejected")
	}
}

func TestStatusOnlyMovesForward(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	m, err := svc.Send(ctx, "alice", "bob", " hello ", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.Content != "hello" || m.Kind != KindText || m.Status != StatusSent {
		t.Fatalf("unexpected message %+v", m)
	}

	if _, err := svc.MarkRead(ctx, m.ID, "carol"); !errors.Is(err, ErrNotRecipient) {
		t.Fatalf("expected ErrNotRecipient, got %v", err)
	}
	if _, err := svc.MarkRead(ctx, m.ID, "bob"); err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := svc.MarkDelivered(ctx, m.ID); err != nil {
		t.Fatalf("delivered: %v", err)
	}
	got, _ := repo.Get(ctx, m.ID)
	if got.Status != StatusRead {
		t.Fatalf("expected read to stick, got %s", got.Status)
	}
	if err := svc.MarkDelivered(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReactReplacesPreviousReaction(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	m, _ := svc.Send(ctx, "alice", "bob", "hello", "")

	if _, err := svc.React(ctx, m.ID, "bob", "👍"); err != nil {
		t.Fatalf("react: %v", err)
	}
	if _, err := svc.React(ctx, m.ID, "bob", "❤️"); err != nil {
		t.Fatalf("react: %v", err)
	}
	if _, err := svc.React(ctx, m.ID, "mallory", "👎"); !errors.Is(err, ErrNotRecipient) {
		t.Fatalf("expected outsider rejected, got %v", err)
	}
	got, _ := repo.Get(ctx, m.ID)
	if len(got.Reactions) != 1 || got.Reactions[0].Emoji != "❤️" {
		t.Fatalf("unexpected reactions %+v", got.Reactions)
	}
}
