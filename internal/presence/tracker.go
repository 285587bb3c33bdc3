// Package presence derives online/offline and typing state from registry
// events and broadcasts the transitions.
package presence

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"callhub/internal/clock"
	"callhub/internal/events"
	"callhub/internal/keymutex"
)

// Directory is the registry surface the tracker needs.
type Directory interface {
	IsOnline(userID string) bool
	SendToUser(userID string, ev events.Event) int
	Broadcast(ev events.Event, exceptUserID string)
}

type typingState struct {
	gen   uint64
	timer clock.Timer
}

// Tracker holds process-local typing state. Online state is read straight
// from the registry.
type Tracker struct {
	dir     Directory
	log     *slog.Logger
	timeout time.Duration
	after   clock.AfterFunc

	locks  *keymutex.KeyMutex
	typing sync.Map // pairKey -> *typingState
	gen    uint64
	genMu  sync.Mutex
}

func NewTracker(dir Directory, typingTimeout time.Duration, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	if typingTimeout <= 0 {
		typingTimeout = time.Second
	}
	return &Tracker{
		dir:     dir,
		log:     log,
		timeout: typingTimeout,
		after:   clock.Real,
		locks:   keymutex.New(),
	}
}

// WithScheduler swaps the timer source; used by tests.
func (t *Tracker) WithScheduler(after clock.AfterFunc) *Tracker {
	t.after = after
	return t
}

func (t *Tracker) IsOnline(userID string) bool { return t.dir.IsOnline(userID) }

func (t *Tracker) IsTyping(userID, peerID string) bool {
	_, ok := t.typing.Load(pairKey(userID, peerID))
	return ok
}

// SetTyping marks userID as typing to peerID and (re)arms the inactivity
// timer. typing:start goes to the peer only on the idle -> typing edge.
func (t *Tracker) SetTyping(userID, peerID string) {
	key := pairKey(userID, peerID)
	unlock := t.locks.Lock(key)
	defer unlock()

	gen := t.nextGen()
	timer := t.after(t.timeout, func() { t.expire(userID, peerID, gen) })

	if v, ok := t.typing.Load(key); ok {
		st := v.(*typingState)
		st.timer.Stop()
		st.gen, st.timer = gen, timer
		return
	}
	t.typing.Store(key, &typingState{gen: gen, timer: timer})
	t.dir.SendToUser(peerID, events.New(events.TypingStart, events.UserPayload{UserID: userID}))
}

// ClearTyping cancels the indicator. It reports whether one was active;
// typing:stop is only sent in that case.
func (t *Tracker) ClearTyping(userID, peerID string) bool {
	key := pairKey(userID, peerID)
	unlock := t.locks.Lock(key)
	defer unlock()
	return t.clearLocked(key, userID, peerID)
}

// UserOnline announces userID to everyone else. Registered as a registry
// online listener.
func (t *Tracker) UserOnline(_ context.Context, userID string) {
	t.dir.Broadcast(events.New(events.UserOnline, events.UserPayload{UserID: userID}), userID)
}

// UserOffline drops the user's typing indicators and announces the
// departure. Registered as a registry offline listener.
func (t *Tracker) UserOffline(_ context.Context, userID string) {
	t.ClearAllFor(userID)
	t.dir.Broadcast(events.New(events.UserOffline, events.UserPayload{UserID: userID}), userID)
}

// ClearAllFor clears every indicator where userID is the typist.
func (t *Tracker) ClearAllFor(userID string) {
	prefix := userID + "\x00"
	var peers []string
	t.typing.Range(func(k, _ any) bool {
		if key := k.(string); strings.HasPrefix(key, prefix) {
			peers = append(peers, strings.TrimPrefix(key, prefix))
		}
		return true
	})
	for _, peer := range peers {
		t.ClearTyping(userID, peer)
	}
}

func (t *Tracker) expire(userID, peerID string, gen uint64) {
	key := pairKey(userID, peerID)
	unlock := t.locks.Lock(key)
	defer unlock()

	v, ok := t.typing.Load(key)
	if !ok || v.(*typingState).gen != gen {
		// Reset or cleared since this timer was armed.
		return
	}
	t.clearLocked(key, userID, peerID)
}

func (t *Tracker) clearLocked(key, userID, peerID string) bool {
	v, ok := t.typing.LoadAndDelete(key)
	if !ok {
		return false
	}
	v.(*typingState).timer.Stop()
	t.dir.SendToUser(peerID, events.New(events.TypingStop, events.UserPayload{UserID: userID}))
	return true
}

func (t *Tracker) nextGen() uint64 {
	t.genMu.Lock()
	defer t.genMu.Unlock()
	t.gen++
	return t.gen
}

func pairKey(userID, peerID string) string {
	return userID + "\x00" + peerID
}
