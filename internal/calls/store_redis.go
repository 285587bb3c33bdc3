package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	redisKeyPrefix = "callhub:"
	redisActiveSet = redisKeyPrefix + "calls:active"

	// DefaultTombstoneTTL bounds how long a terminal session stays readable.
	DefaultTombstoneTTL = 10 * time.Minute
)

var createScript = redis.NewScript(`
-- KEYS[1] = session key
-- KEYS[2] = caller busy key
-- KEYS[3] = receiver busy key
-- KEYS[4] = active set
-- ARGV[1] = session json
-- ARGV[2] = call id
--
-- Returns:
--  0 created
--  1 caller busy
--  2 receiver busy
--  3 call id exists
if redis.call('EXISTS', KEYS[2]) == 1 then
  return 1
end
if redis.call('EXISTS', KEYS[3]) == 1 then
  return 2
end
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
  return 3
end
redis.call('SET', KEYS[2], ARGV[2])
redis.call('SET', KEYS[3], ARGV[2])
redis.call('SADD', KEYS[4], ARGV[2])
return 0
`)

var casScript = redis.NewScript(`
-- KEYS[1] = session key
-- KEYS[2] = caller busy key
-- KEYS[3] = receiver busy key
-- KEYS[4] = active set
-- ARGV[1] = expected status
-- ARGV[2] = next session json
-- ARGV[3] = 1 if next status is terminal
-- ARGV[4] = call id
-- ARGV[5] = tombstone ttl_ms
--
-- Returns:
--  0 swapped
--  1 not found
--  2 status mismatch
local cur = redis.call('GET', KEYS[1])
if not cur then
  return 1
end
local s = cjson.decode(cur)
if s['status'] ~= ARGV[1] then
  return 2
end
if ARGV[3] == '1' then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[5])
  for i = 2, 3 do
    if redis.call('GET', KEYS[i]) == ARGV[4] then
      redis.call('DEL', KEYS[i])
    end
  end
  redis.call('SREM', KEYS[4], ARGV[4])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 0
`)

// RedisStore shares the session table and busy index across processes.
// Atomicity comes from the Lua scripts; every key touched by one script is
// passed in KEYS so it stays valid for a single node.
type RedisStore struct {
	rdb          *redis.Client
	tombstoneTTL time.Duration
}

func NewRedisStore(rdb *redis.Client, tombstoneTTL time.Duration) *RedisStore {
	if tombstoneTTL <= 0 {
		tombstoneTTL = DefaultTombstoneTTL
	}
	return &RedisStore{rdb: rdb, tombstoneTTL: tombstoneTTL}
}

func (r *RedisStore) Get(ctx context.Context, callID string) (Session, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(callID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("calls: redis get: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("calls: decode session: %w", err)
	}
	return s, nil
}

func (r *RedisStore) ActiveFor(ctx context.Context, userID string) (Session, error) {
	callID, err := r.rdb.Get(ctx, busyKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("calls: redis get busy: %w", err)
	}
	s, err := r.Get(ctx, callID)
	if err != nil {
		return Session{}, err
	}
	if !s.Status.Active() {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *RedisStore) Create(ctx context.Context, s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	keys := []string{sessionKey(s.CallID), busyKey(s.CallerID), busyKey(s.ReceiverID), redisActiveSet}
	res, err := createScript.Run(ctx, r.rdb, keys, raw, s.CallID).Int()
	if err != nil {
		return fmt.Errorf("calls: redis create: %w", err)
	}
	switch res {
	case 0:
		return nil
	case 1:
		return &BusyError{UserID: s.CallerID}
	case 2:
		return &BusyError{UserID: s.ReceiverID}
	default:
		return ErrCallExists
	}
}

func (r *RedisStore) CompareAndSwap(ctx context.Context, expected Status, next Session) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}
	terminal := "0"
	if next.Status.Terminal() {
		terminal = "1"
	}
	keys := []string{sessionKey(next.CallID), busyKey(next.CallerID), busyKey(next.ReceiverID), redisActiveSet}
	res, err := casScript.Run(ctx, r.rdb, keys, string(expected), raw, terminal, next.CallID, r.tombstoneTTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("calls: redis cas: %w", err)
	}
	switch res {
	case 0:
		return nil
	case 1:
		return ErrNotFound
	default:
		return ErrInvalidTransition
	}
}

func (r *RedisStore) Active(ctx context.Context) ([]Session, error) {
	ids, err := r.rdb.SMembers(ctx, redisActiveSet).Result()
	if err != nil {
		return nil, fmt.Errorf("calls: redis list active: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("calls: redis mget: %w", err)
	}
	out := make([]Session, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var s Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			continue
		}
		if s.Status.Active() {
			out = append(out, s)
		}
	}
	return out, nil
}

// Prune is a no-op; tombstones carry a TTL in Redis.
func (r *RedisStore) Prune(context.Context, time.Time) (int, error) { return 0, nil }

func sessionKey(callID string) string { return redisKeyPrefix + "call:" + callID }
func busyKey(userID string) string    { return redisKeyPrefix + "busy:" + userID }
