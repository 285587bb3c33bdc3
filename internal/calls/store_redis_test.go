package calls

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"callhub/internal/clock/clocktest"
)

func TestRedisScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if createScript == nil || casScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestRedisKeysAreNamespaced(t *testing.T) {
	if got := sessionKey("a-b-1"); got != "callhub:call:a-b-1" {
		t.Fatalf("unexpected session key %q", got)
	}
	if got := busyKey("a"); got != "callhub:busy:a" {
		t.Fatalf("unexpected busy key %q", got)
	}
	if NewRedisStore(nil, 0).tombstoneTTL != DefaultTombstoneTTL {
		t.Fatalf("expected default tombstone ttl")
	}
}

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, ttl), mr
}

func TestRedisStoreCreateEnforcesBusy(t *testing.T) {
	ctx := context.Background()
	st, _ := newRedisStore(t, time.Minute)
	now := time.Unix(1700000000, 0).UTC()

	if err := st.Create(ctx, pendingSession("a", "b", now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	var busy *BusyError
	err := st.Create(ctx, pendingSession("a", "c", now.Add(time.Second)))
	if !errors.Is(err, ErrUserBusy) || !errors.As(err, &busy) || busy.UserID != "a" {
		t.Fatalf("expected caller a busy, got %v", err)
	}
	err = st.Create(ctx, pendingSession("c", "b", now.Add(2*time.Second)))
	if !errors.As(err, &busy) || busy.UserID != "b" {
		t.Fatalf("expected receiver b busy, got %v", err)
	}
	if _, err := st.ActiveFor(ctx, "c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected create must not mark c busy, got %v", err)
	}

	if err := st.Create(ctx, pendingSession("c", "d", now)); err != nil {
		t.Fatalf("create c-d: %v", err)
	}
	dup := pendingSession("c", "d", now)
	dup.CallerID, dup.ReceiverID = "e", "f"
	if err := st.Create(ctx, dup); !errors.Is(err, ErrCallExists) {
		t.Fatalf("expected ErrCallExists, got %v", err)
	}
}

func TestRedisStoreCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	st, _ := newRedisStore(t, time.Minute)
	s := pendingSession("a", "b", time.Unix(1700000000, 0).UTC())
	if err := st.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}

	accepted := s
	accepted.Status = StatusAccepted
	if err := st.CompareAndSwap(ctx, StatusPending, accepted); err != nil {
		t.Fatalf("accept: %v", err)
	}
	missed := s
	missed.Status = StatusMissed
	if err := st.CompareAndSwap(ctx, StatusPending, missed); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected stale swap rejected, got %v", err)
	}
	got, err := st.ActiveFor(ctx, "b")
	if err != nil || got.Status != StatusAccepted {
		t.Fatalf("expected accepted session for b, got %+v %v", got, err)
	}

	ghost := pendingSession("x", "y", time.Unix(1700000000, 0).UTC())
	ghost.Status = StatusEnded
	if err := st.CompareAndSwap(ctx, StatusPending, ghost); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreTerminalReleasesBusyAndExpires(t *testing.T) {
	ctx := context.Background()
	st, mr := newRedisStore(t, time.Minute)
	s := pendingSession("a", "b", time.Unix(1700000000, 0).UTC())
	if err := st.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, _ := mr.SIsMember(redisActiveSet, s.CallID); !ok {
		t.Fatalf("expected %s in active set", s.CallID)
	}
	if mr.TTL(sessionKey(s.CallID)) != 0 {
		t.Fatalf("active session must not expire")
	}

	ended := s
	ended.Status = StatusEnded
	if err := st.CompareAndSwap(ctx, StatusPending, ended); err != nil {
		t.Fatalf("end: %v", err)
	}

	for _, u := range []string{"a", "b"} {
		if mr.Exists(busyKey(u)) {
			t.Fatalf("expected busy key for %s released", u)
		}
		if _, err := st.ActiveFor(ctx, u); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected %s free, got %v", u, err)
		}
	}
	if ok, _ := mr.SIsMember(redisActiveSet, s.CallID); ok {
		t.Fatalf("expected %s removed from active set", s.CallID)
	}
	if ttl := mr.TTL(sessionKey(s.CallID)); ttl != time.Minute {
		t.Fatalf("expected tombstone ttl 1m, got %s", ttl)
	}
	if active, err := st.Active(ctx); err != nil || len(active) != 0 {
		t.Fatalf("expected no active sessions, got %v %v", active, err)
	}

	if got, err := st.Get(ctx, s.CallID); err != nil || got.Status != StatusEnded {
		t.Fatalf("expected readable tombstone, got %+v %v", got, err)
	}
	mr.FastForward(time.Minute)
	if _, err := st.Get(ctx, s.CallID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected tombstone expired, got %v", err)
	}
}

func TestRedisStoreTerminalKeepsNewerBusyClaim(t *testing.T) {
	ctx := context.Background()
	st, mr := newRedisStore(t, time.Minute)
	s := pendingSession("a", "b", time.Unix(1700000000, 0).UTC())
	if err := st.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	// b's busy key already points at another call.
	if err := mr.Set(busyKey("b"), "other-call"); err != nil {
		t.Fatalf("set: %v", err)
	}

	ended := s
	ended.Status = StatusEnded
	if err := st.CompareAndSwap(ctx, StatusPending, ended); err != nil {
		t.Fatalf("end: %v", err)
	}
	if mr.Exists(busyKey("a")) {
		t.Fatalf("expected a released")
	}
	if got, _ := mr.Get(busyKey("b")); got != "other-call" {
		t.Fatalf("expected b's other claim kept, got %q", got)
	}
}

func TestRedisStoreSurvivesManagerRestart(t *testing.T) {
	ctx := context.Background()
	st, _ := newRedisStore(t, time.Minute)
	clk := clocktest.New(time.Unix(1700000000, 0).UTC())
	dir := stubDirectory{"alice": true, "bob": true}

	first := NewManager(st, dir, newMemArchive(), newRecordingNotifier(), Options{RingTimeout: 30 * time.Second}).
		WithClock(clk.Now, clk.AfterFunc)
	s, err := first.Initiate(ctx, "alice", "bob", CallTypeVideo)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if _, err := first.Accept(ctx, s.CallID, "bob"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	second := NewManager(st, dir, newMemArchive(), newRecordingNotifier(), Options{
		RingTimeout: 30 * time.Second,
		Online:      stubOnline{},
	}).WithClock(clk.Now, clk.AfterFunc)
	clk.Advance(24 * time.Hour)

	if n, err := second.ExpireStale(ctx); err != nil || n != 1 {
		t.Fatalf("expected orphaned call ended, got %d %v", n, err)
	}
	got, err := second.Session(ctx, s.CallID)
	if err != nil || got.Status != StatusEnded || got.MissedReason != ReasonUserDisconnected {
		t.Fatalf("expected ended/user_disconnected, got %+v %v", got, err)
	}
	if _, err := second.Initiate(ctx, "alice", "bob", CallTypeVoice); err != nil {
		t.Fatalf("expected alice free after sweep, got %v", err)
	}
}
