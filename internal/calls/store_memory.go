package calls

import (
	"context"
	"sync"
	"time"

	"callhub/internal/keymutex"
)

// MemoryStore is the single-process Store. Locks are per user and per call,
// never table wide.
type MemoryStore struct {
	locks    *keymutex.KeyMutex
	sessions sync.Map // callID -> Session
	busy     sync.Map // userID -> callID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: keymutex.New()}
}

func (m *MemoryStore) Get(_ context.Context, callID string) (Session, error) {
	v, ok := m.sessions.Load(callID)
	if !ok {
		return Session{}, ErrNotFound
	}
	return v.(Session), nil
}

func (m *MemoryStore) ActiveFor(ctx context.Context, userID string) (Session, error) {
	v, ok := m.busy.Load(userID)
	if !ok {
		return Session{}, ErrNotFound
	}
	s, err := m.Get(ctx, v.(string))
	if err != nil || !s.Status.Active() {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Create(_ context.Context, s Session) error {
	unlock := m.locks.LockAll(userKey(s.CallerID), userKey(s.ReceiverID))
	defer unlock()

	for _, u := range s.Participants() {
		if _, busy := m.busy.Load(u); busy {
			return &BusyError{UserID: u}
		}
	}
	if _, loaded := m.sessions.LoadOrStore(s.CallID, s); loaded {
		return ErrCallExists
	}
	m.busy.Store(s.CallerID, s.CallID)
	m.busy.Store(s.ReceiverID, s.CallID)
	return nil
}

func (m *MemoryStore) CompareAndSwap(ctx context.Context, expected Status, next Session) error {
	cur, err := m.Get(ctx, next.CallID)
	if err != nil {
		return err
	}
	unlock := m.locks.LockAll(callKey(cur.CallID), userKey(cur.CallerID), userKey(cur.ReceiverID))
	defer unlock()

	if cur, err = m.Get(ctx, next.CallID); err != nil {
		return err
	}
	if cur.Status != expected {
		return ErrInvalidTransition
	}
	m.sessions.Store(next.CallID, next)
	if next.Status.Terminal() {
		for _, u := range cur.Participants() {
			m.busy.CompareAndDelete(u, cur.CallID)
		}
	}
	return nil
}

func (m *MemoryStore) Active(_ context.Context) ([]Session, error) {
	var out []Session
	m.sessions.Range(func(_, v any) bool {
		if s := v.(Session); s.Status.Active() {
			out = append(out, s)
		}
		return true
	})
	return out, nil
}

func (m *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	n := 0
	m.sessions.Range(func(k, v any) bool {
		s := v.(Session)
		if s.Status.Terminal() && s.EndedAt != nil && s.EndedAt.Before(cutoff) {
			if m.sessions.CompareAndDelete(k, v) {
				n++
			}
		}
		return true
	})
	return n, nil
}

func userKey(id string) string { return "u:" + id }
func callKey(id string) string { return "c:" + id }
