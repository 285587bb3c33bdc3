package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"callhub/internal/clock"
	"callhub/internal/events"
	"callhub/internal/keymutex"
)

// Notifier pushes events to every live connection of a user.
type Notifier interface {
	SendToUser(userID string, ev events.Event) int
}

// Directory answers whether a user id can be called.
type Directory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// Archive durably records session snapshots. Record is an upsert by CallID.
type Archive interface {
	Record(ctx context.Context, s Session) error
}

// Presence reports whether a user has at least one live connection.
type Presence interface {
	IsOnline(userID string) bool
}

type Options struct {
	RingTimeout  time.Duration
	TombstoneTTL time.Duration
	Logger       *slog.Logger
	// Online lets ExpireStale end answered calls whose participants have
	// both gone. Nil disables that sweep.
	Online Presence
}

// Manager owns the call lifecycle. All commands on one call are serialized
// on that call's lock; initiation is serialized on both participants.
type Manager struct {
	store    Store
	dir      Directory
	archive  Archive
	notifier Notifier
	online   Presence
	log      *slog.Logger

	ringTimeout  time.Duration
	tombstoneTTL time.Duration

	clock func() time.Time
	after clock.AfterFunc

	locks  *keymutex.KeyMutex
	timers sync.Map // callID -> clock.Timer
}

func NewManager(store Store, dir Directory, archive Archive, notifier Notifier, opts Options) *Manager {
	if opts.RingTimeout <= 0 {
		opts.RingTimeout = 30 * time.Second
	}
	if opts.TombstoneTTL <= 0 {
		opts.TombstoneTTL = DefaultTombstoneTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		store:        store,
		dir:          dir,
		archive:      archive,
		notifier:     notifier,
		online:       opts.Online,
		log:          opts.Logger,
		ringTimeout:  opts.RingTimeout,
		tombstoneTTL: opts.TombstoneTTL,
		clock:        time.Now,
		after:        clock.Real,
		locks:        keymutex.New(),
	}
}

// WithClock swaps the time source and timer scheduler; used by tests.
func (m *Manager) WithClock(now func() time.Time, after clock.AfterFunc) *Manager {
	m.clock = now
	m.after = after
	return m
}

func (m *Manager) RingTimeout() time.Duration { return m.ringTimeout }

// Session returns the current snapshot, including terminal tombstones.
func (m *Manager) Session(ctx context.Context, callID string) (Session, error) {
	return m.store.Get(ctx, callID)
}

// ActiveFor returns the user's active session or ErrNotFound.
func (m *Manager) ActiveFor(ctx context.Context, userID string) (Session, error) {
	return m.store.ActiveFor(ctx, userID)
}

/* ===================== INITIATE ===================== */

func (m *Manager) Initiate(ctx context.Context, callerID, receiverID string, callType CallType) (Session, error) {
	if callerID == "" || receiverID == "" {
		return Session{}, ErrUserNotFound
	}
	if callerID == receiverID {
		return Session{}, ErrSelfCall
	}
	if !callType.Valid() {
		return Session{}, fmt.Errorf("%w: %q", ErrInvalidCallType, callType)
	}

	ok, err := m.dir.Exists(ctx, receiverID)
	if err != nil {
		return Session{}, fmt.Errorf("calls: resolve receiver: %w", err)
	}
	if !ok {
		return Session{}, ErrUserNotFound
	}

	unlock := m.locks.LockAll(userKey(callerID), userKey(receiverID))
	defer unlock()
	now := m.clock().UTC()

	if busy, err := m.isBusy(ctx, callerID); err != nil || busy {
		if err != nil {
			return Session{}, err
		}
		return Session{}, &BusyError{UserID: callerID}
	}
	if busy, err := m.isBusy(ctx, receiverID); err != nil || busy {
		if err != nil {
			return Session{}, err
		}
		m.recordBusyAttempt(ctx, callerID, receiverID, callType, now)
		return Session{}, &BusyError{UserID: receiverID}
	}

	s := Session{
		CallID:     NewCallID(callerID, receiverID, now),
		CallerID:   callerID,
		ReceiverID: receiverID,
		CallType:   callType,
		Status:     StatusPending,
		CreatedAt:  now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		var busy *BusyError
		if errors.As(err, &busy) && busy.UserID == receiverID {
			m.recordBusyAttempt(ctx, callerID, receiverID, callType, now)
		}
		return Session{}, err
	}
	m.log.Info("call initiated", "call_id", s.CallID, "caller_id", callerID, "receiver_id", receiverID, "call_type", callType)

	// Archive before anyone learns the call id so later snapshots win.
	m.record(ctx, s)
	m.armRingTimer(s.CallID)
	m.notifier.SendToUser(receiverID, events.New(events.CallIncoming, events.CallIncomingPayload{
		CallID:   s.CallID,
		CallerID: callerID,
		CallType: string(callType),
	}))
	m.notifier.SendToUser(callerID, events.New(events.CallInitiated, events.CallPayload{Call: s}))
	return s, nil
}

func (m *Manager) isBusy(ctx context.Context, userID string) (bool, error) {
	_, err := m.store.ActiveFor(ctx, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("calls: busy lookup: %w", err)
	}
}

/* ===================== RECEIVER COMMANDS ===================== */

func (m *Manager) Accept(ctx context.Context, callID, userID string) (Session, error) {
	unlock := m.locks.Lock(callKey(callID))
	defer unlock()

	cur, err := m.receiverCommand(ctx, callID, userID)
	if err != nil {
		return Session{}, err
	}

	now := m.clock().UTC()
	next := cur
	next.Status = StatusAccepted
	next.AcceptedAt = &now
	if err := m.store.CompareAndSwap(ctx, StatusPending, next); err != nil {
		return Session{}, err
	}
	m.stopRingTimer(callID)

	m.notifyBoth(next, events.New(events.CallAccepted, events.CallAcceptedPayload{CallID: callID, AcceptedBy: userID}))
	m.log.Info("call accepted", "call_id", callID, "user_id", userID)
	m.record(ctx, next)
	return next, nil
}

func (m *Manager) Reject(ctx context.Context, callID, userID string) (Session, error) {
	unlock := m.locks.Lock(callKey(callID))
	defer unlock()

	cur, err := m.receiverCommand(ctx, callID, userID)
	if err != nil {
		return Session{}, err
	}

	next := m.finish(cur, StatusRejected, ReasonDeclined, userID)
	if err := m.store.CompareAndSwap(ctx, StatusPending, next); err != nil {
		return Session{}, err
	}
	m.stopRingTimer(callID)

	m.notifyBoth(next, events.New(events.CallRejected, events.CallRejectedPayload{CallID: callID, RejectedBy: userID}))
	m.log.Info("call rejected", "call_id", callID, "user_id", userID)
	m.record(ctx, next)
	return next, nil
}

// receiverCommand validates a pending-only command that only the receiver
// may issue.
func (m *Manager) receiverCommand(ctx context.Context, callID, userID string) (Session, error) {
	cur, err := m.store.Get(ctx, callID)
	if err != nil {
		return Session{}, err
	}
	if userID != cur.ReceiverID {
		m.logUnauthorized(callID, userID)
		return Session{}, ErrUnauthorized
	}
	if cur.Status != StatusPending {
		return Session{}, ErrInvalidTransition
	}
	return cur, nil
}

/* ===================== PARTICIPANT COMMANDS ===================== */

// MarkOngoing promotes accepted -> ongoing once a participant reports that
// media is flowing.
func (m *Manager) MarkOngoing(ctx context.Context, callID, userID string) (Session, error) {
	unlock := m.locks.Lock(callKey(callID))
	defer unlock()

	cur, err := m.participantCommand(ctx, callID, userID)
	if err != nil {
		return Session{}, err
	}
	if cur.Status != StatusAccepted {
		return Session{}, ErrInvalidTransition
	}

	next := cur
	next.Status = StatusOngoing
	if err := m.store.CompareAndSwap(ctx, StatusAccepted, next); err != nil {
		return Session{}, err
	}

	m.notifyBoth(next, events.New(events.CallStatusUpdate, events.CallStatusPayload{CallID: callID, Status: string(next.Status)}))
	m.record(ctx, next)
	return next, nil
}

// EndResult is what both participants learn when a call ends.
type EndResult struct {
	CallID          string
	EndedBy         string
	Duration        string
	DurationSeconds int64
	Reason          MissedReason
}

// End terminates a non-terminal session. reason is optional; the only value
// a client may supply is ReasonNetworkError.
func (m *Manager) End(ctx context.Context, callID, userID string, reason MissedReason) (EndResult, error) {
	if reason != "" && reason != ReasonNetworkError {
		return EndResult{}, fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}

	unlock := m.locks.Lock(callKey(callID))
	defer unlock()

	cur, err := m.participantCommand(ctx, callID, userID)
	if err != nil {
		return EndResult{}, err
	}
	if !cur.Status.Active() {
		return EndResult{}, ErrInvalidTransition
	}
	return m.endLocked(ctx, cur, userID, reason)
}

// ReportTimeout is the advisory client-side ring timeout. Only participants
// may report it and it only applies to pending sessions.
func (m *Manager) ReportTimeout(ctx context.Context, callID, userID string) (Session, error) {
	unlock := m.locks.Lock(callKey(callID))
	defer unlock()

	if _, err := m.participantCommand(ctx, callID, userID); err != nil {
		return Session{}, err
	}
	return m.timeoutLocked(ctx, callID)
}

func (m *Manager) participantCommand(ctx context.Context, callID, userID string) (Session, error) {
	cur, err := m.store.Get(ctx, callID)
	if err != nil {
		return Session{}, err
	}
	if !cur.IsParticipant(userID) {
		m.logUnauthorized(callID, userID)
		return Session{}, ErrUnauthorized
	}
	return cur, nil
}

/* ===================== SYSTEM COMMANDS ===================== */

// Timeout moves a still-pending session to missed(no_answer). It is fired by
// the ring timer and by the stale-session sweeper.
func (m *Manager) Timeout(ctx context.Context, callID string) (Session, error) {
	unlock := m.locks.Lock(callKey(callID))
	defer unlock()
	return m.timeoutLocked(ctx, callID)
}

func (m *Manager) timeoutLocked(ctx context.Context, callID string) (Session, error) {
	cur, err := m.store.Get(ctx, callID)
	if err != nil {
		return Session{}, err
	}
	if cur.Status != StatusPending {
		return Session{}, ErrInvalidTransition
	}

	next := m.finish(cur, StatusMissed, ReasonNoAnswer, "")
	if err := m.store.CompareAndSwap(ctx, StatusPending, next); err != nil {
		return Session{}, err
	}
	m.stopRingTimer(callID)

	m.notifyBoth(next, events.New(events.CallMissed, events.CallMissedPayload{CallID: callID, Reason: string(ReasonNoAnswer)}))
	m.log.Info("call missed", "call_id", callID, "reason", ReasonNoAnswer)
	m.record(ctx, next)
	return next, nil
}

// CleanupResult tells the caller which peer lost its call.
type CleanupResult struct {
	CallID           string
	OtherParticipant string
}

// CleanupForDisconnectedUser ends the user's active session, if any, with
// reason user_disconnected. It runs when the user's last connection closes.
func (m *Manager) CleanupForDisconnectedUser(ctx context.Context, userID string) (CleanupResult, bool) {
	active, err := m.store.ActiveFor(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.log.Error("cleanup lookup failed", "user_id", userID, "err", err)
		}
		return CleanupResult{}, false
	}

	unlock := m.locks.Lock(callKey(active.CallID))
	defer unlock()

	cur, err := m.store.Get(ctx, active.CallID)
	if err != nil || !cur.Status.Active() {
		return CleanupResult{}, false
	}
	res, err := m.endLocked(ctx, cur, userID, ReasonUserDisconnected)
	if err != nil {
		m.log.Error("cleanup end failed", "call_id", cur.CallID, "user_id", userID, "err", err)
		return CleanupResult{}, false
	}
	return CleanupResult{CallID: res.CallID, OtherParticipant: cur.Peer(userID)}, true
}

// ExpireStale times out pending sessions older than the ring window, ends
// answered sessions whose participants are both offline and prunes old
// tombstones. It covers ring timers and disconnect cleanups lost on restart.
func (m *Manager) ExpireStale(ctx context.Context) (int, error) {
	now := m.clock().UTC()
	active, err := m.store.Active(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, s := range active {
		switch {
		case s.Status == StatusPending:
			if now.Sub(s.CreatedAt) < m.ringTimeout {
				continue
			}
			if _, err := m.Timeout(ctx, s.CallID); err == nil {
				expired++
			} else if !errors.Is(err, ErrInvalidTransition) {
				m.log.Warn("expire stale call failed", "call_id", s.CallID, "err", err)
			}
		case m.orphaned(s):
			if m.endOrphan(ctx, s.CallID) {
				expired++
			}
		}
	}

	if pruned, err := m.store.Prune(ctx, now.Add(-m.tombstoneTTL)); err != nil {
		m.log.Warn("prune tombstones failed", "err", err)
	} else if pruned > 0 {
		m.log.Debug("pruned tombstones", "count", pruned)
	}
	return expired, nil
}

func (m *Manager) orphaned(s Session) bool {
	if m.online == nil || !s.Status.Active() || s.Status == StatusPending {
		return false
	}
	return !m.online.IsOnline(s.CallerID) && !m.online.IsOnline(s.ReceiverID)
}

func (m *Manager) endOrphan(ctx context.Context, callID string) bool {
	unlock := m.locks.Lock(callKey(callID))
	defer unlock()

	cur, err := m.store.Get(ctx, callID)
	if err != nil || !m.orphaned(cur) {
		return false
	}
	if _, err := m.endLocked(ctx, cur, "", ReasonUserDisconnected); err != nil {
		if !errors.Is(err, ErrInvalidTransition) {
			m.log.Warn("end orphaned call failed", "call_id", callID, "err", err)
		}
		return false
	}
	return true
}

/* ===================== INTERNAL ===================== */

func (m *Manager) endLocked(ctx context.Context, cur Session, userID string, reason MissedReason) (EndResult, error) {
	expected := cur.Status
	next := m.finish(cur, StatusEnded, reason, userID)
	if err := m.store.CompareAndSwap(ctx, expected, next); err != nil {
		return EndResult{}, err
	}
	m.stopRingTimer(cur.CallID)

	res := EndResult{
		CallID:          next.CallID,
		EndedBy:         userID,
		Duration:        next.Duration,
		DurationSeconds: next.DurationSeconds,
		Reason:          reason,
	}
	m.notifyBoth(next, events.New(events.CallEnded, events.CallEndedPayload{
		CallID:          res.CallID,
		EndedBy:         res.EndedBy,
		Duration:        res.Duration,
		DurationSeconds: res.DurationSeconds,
		Reason:          string(reason),
	}))
	m.log.Info("call ended", "call_id", next.CallID, "user_id", userID, "duration", next.Duration, "reason", reason)
	m.record(ctx, next)
	return res, nil
}

func (m *Manager) finish(cur Session, status Status, reason MissedReason, by string) Session {
	now := m.clock().UTC()
	d := talkTime(cur, now)

	next := cur
	next.Status = status
	next.EndedAt = &now
	next.MissedReason = reason
	next.EndedBy = by
	next.Duration = FormatDuration(d)
	next.DurationSeconds = int64(d / time.Second)
	return next
}

// recordBusyAttempt archives a missed(busy) record so the receiver's
// history shows the attempt. Nothing is added to the active table.
func (m *Manager) recordBusyAttempt(ctx context.Context, callerID, receiverID string, callType CallType, now time.Time) {
	s := Session{
		CallID:       NewCallID(callerID, receiverID, now),
		CallerID:     callerID,
		ReceiverID:   receiverID,
		CallType:     callType,
		Status:       StatusMissed,
		CreatedAt:    now,
		EndedAt:      &now,
		MissedReason: ReasonBusy,
		Duration:     FormatDuration(0),
	}
	m.log.Info("call attempt to busy user", "caller_id", callerID, "receiver_id", receiverID)
	m.record(ctx, s)
}

func (m *Manager) armRingTimer(callID string) {
	t := m.after(m.ringTimeout, func() {
		m.timers.Delete(callID)
		if _, err := m.Timeout(context.Background(), callID); err != nil && !errors.Is(err, ErrInvalidTransition) {
			m.log.Warn("ring timeout failed", "call_id", callID, "err", err)
		}
	})
	m.timers.Store(callID, t)
}

func (m *Manager) stopRingTimer(callID string) {
	if v, ok := m.timers.LoadAndDelete(callID); ok {
		v.(clock.Timer).Stop()
	}
}

func (m *Manager) notifyBoth(s Session, ev events.Event) {
	for _, u := range s.Participants() {
		m.notifier.SendToUser(u, ev)
	}
}

// record archives a snapshot. Failures never roll back in-memory state.
func (m *Manager) record(ctx context.Context, s Session) {
	if m.archive == nil {
		return
	}
	if err := m.archive.Record(ctx, s); err != nil {
		m.log.Error("archive call failed", "call_id", s.CallID, "status", s.Status, "err", err)
	}
}

func (m *Manager) logUnauthorized(callID, userID string) {
	m.log.Warn("unauthorized call command", "call_id", callID, "user_id", userID)
}
