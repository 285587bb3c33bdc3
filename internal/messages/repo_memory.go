package messages

import (
	"context"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests and local runs.
type MemoryRepo struct {
	mu   sync.Mutex
	msgs map[string]Message
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{msgs: map[string]Message{}} }

func (r *MemoryRepo) Save(_ context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[m.ID] = m
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	m.Reactions = append([]Reaction(nil), m.Reactions...)
	return m, nil
}

func (r *MemoryRepo) AdvanceStatus(_ context.Context, id string, to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return ErrNotFound
	}
	if to.rank() > m.Status.rank() {
		m.Status = to
		r.msgs[id] = m
	}
	return nil
}

func (r *MemoryRepo) UpsertReaction(_ context.Context, id string, rx Reaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return ErrNotFound
	}
	out := m.Reactions[:0:0]
	for _, existing := range m.Reactions {
		if existing.UserID != rx.UserID {
			out = append(out, existing)
		}
	}
	m.Reactions = append(out, rx)
	r.msgs[id] = m
	return nil
}
