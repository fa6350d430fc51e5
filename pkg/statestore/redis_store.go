package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/foundrycore/foundry/pkg/infra"
)

// RedisStore is the coordination-store StateStorage backend of §6.2:
// the map is a single serialized value under a well-known key; the
// migration lock is a named exclusive lease with renewable TTL,
// implemented with SETNX + PEXPIRE acquire and a Lua CAS for
// renew/release so only the current token holder can touch it.
type RedisStore struct {
	client *redis.Client
	mapKey string
}

// NewRedisStore constructs a coordination-store backend against an
// already-configured client. mapKey is the well-known key the
// serialized map is stored under (distinct per project/environment).
func NewRedisStore(client *redis.Client, mapKey string) *RedisStore {
	return &RedisStore{client: client, mapKey: mapKey}
}

func (s *RedisStore) LoadMap(ctx context.Context) (*infra.Map, error) {
	data, err := s.client.Get(ctx, s.mapKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.mapKey, err)
	}
	var m infra.Map
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("unmarshal persisted map: %w", err)
	}
	return &m, nil
}

func (s *RedisStore) SaveMap(ctx context.Context, m *infra.Map) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal map: %w", err)
	}
	if err := s.client.Set(ctx, s.mapKey, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.mapKey, err)
	}
	return nil
}

func lockKey(name string) string { return "foundry:lock:" + name }

func (s *RedisStore) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (string, error) {
	token := owner + ":" + newLeaseSuffix()
	ok, err := s.client.SetNX(ctx, lockKey(name), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		current, _ := s.client.Get(ctx, lockKey(name)).Result()
		return "", &ErrLockHeld{Owner: current}
	}
	return token, nil
}

// renewScript extends the TTL only if the caller's token still
// matches the stored value (compare-and-swap semantics for renewal).
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`

func (s *RedisStore) RenewLock(ctx context.Context, name, token string, ttl time.Duration) error {
	res, err := s.client.Eval(ctx, renewScript, []string{lockKey(name)}, token, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("renew lock %s: %w", name, err)
	}
	if n, ok := res.(int64); !ok || n == 0 {
		return &ErrLockLost{Name: name}
	}
	return nil
}

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

func (s *RedisStore) ReleaseLock(ctx context.Context, name, token string) error {
	if _, err := s.client.Eval(ctx, releaseScript, []string{lockKey(name)}, token).Result(); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// newLeaseSuffix is overridable in tests for deterministic tokens;
// production uses a random UUID, since uniqueness (not
// unpredictability) is all the renew/release CAS needs.
var newLeaseSuffix = func() string {
	return uuid.NewString()
}
