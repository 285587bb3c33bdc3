// Package eventstest provides an in-memory events.Sink for tests.
package eventstest

import (
	"sync"

	"callhub/internal/events"
)

// Recorder captures every event sent to it. Set Err to make Send fail.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
	Err    error
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Send(ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns the recorded events with the given name, in order.
func (r *Recorder) Named(name string) []events.Event {
	var out []events.Event
	for _, ev := range r.Events() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// Count is len(Named(name)).
func (r *Recorder) Count(name string) int { return len(r.Named(name)) }

// Last returns the most recent event with the given name.
func (r *Recorder) Last(name string) (events.Event, bool) {
	got := r.Named(name)
	if len(got) == 0 {
		return events.Event{}, false
	}
	return got[len(got)-1], true
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
