package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"callhub/internal/calls"
)

// MemoryRepo is an in-memory repository useful for tests and local runs.
type MemoryRepo struct {
	mu     sync.Mutex
	calls  map[string]calls.Session
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{calls: map[string]calls.Session{}} }

func (r *MemoryRepo) Upsert(_ context.Context, s calls.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.calls[s.CallID]; ok && s.Quality == "" {
		s.Quality = prev.Quality
	}
	r.calls[s.CallID] = s
	r.events = append(r.events, Event{CallID: s.CallID, Status: s.Status, At: eventTime(s)})
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, callID string) (calls.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.calls[callID]
	if !ok {
		return calls.Session{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepo) ListForUser(_ context.Context, userID string, callType calls.CallType, offset, limit int) ([]calls.Session, int, error) {
	all := r.filter(func(s calls.Session) bool {
		return s.IsParticipant(userID) && (callType == "" || s.CallType == callType)
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (r *MemoryRepo) ListSince(_ context.Context, userID string, since time.Time) ([]calls.Session, error) {
	return r.filter(func(s calls.Session) bool {
		return s.IsParticipant(userID) && !s.CreatedAt.Before(since)
	}), nil
}

func (r *MemoryRepo) SetQuality(_ context.Context, callID string, q calls.Quality) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.calls[callID]
	if !ok {
		return ErrNotFound
	}
	s.Quality = q
	r.calls[callID] = s
	return nil
}

// Events returns the append-only status trail.
func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *MemoryRepo) filter(keep func(calls.Session) bool) []calls.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []calls.Session
	for _, s := range r.calls {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func eventTime(s calls.Session) time.Time {
	switch {
	case s.EndedAt != nil:
		return *s.EndedAt
	case s.AcceptedAt != nil:
		return *s.AcceptedAt
	default:
		return s.CreatedAt
	}
}
