// Package leadership implements the Leadership & Coordination Layer
// (I) of §4.7: a renewable lease over the coordination store that
// elects a single leader across all running instances, plus the
// pub/sub broadcast of leadership changes and migration boundaries
// non-leaders must observe.
package leadership

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// LeadershipKey is the well-known coordination-store key the elector
// renews, per §4.7.
const LeadershipKey = "leadership"

// RenewInterval is the periodic task's tick, per §4.7 ("every ≈5 s").
const RenewInterval = 5 * time.Second

// Elector implements the renewable-lease primitive of §4.7:
// check_and_renew_lock(key) → (has_lock, is_new_acquisition) and
// has_lock(key). Grounded on statestore.RedisStore's lock
// acquire/renew/release pattern (SETNX + Lua CAS), generalized here
// into a single self-renewing lease rather than a one-shot mutual
// exclusion primitive.
type Elector struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration

	mu    sync.RWMutex
	held  bool
	token string
}

// NewElector constructs an Elector for the given coordination-store
// client, lease key, and this instance's identity (e.g. hostname:pid).
func NewElector(client *redis.Client, key, owner string, ttl time.Duration) *Elector {
	return &Elector{client: client, key: key, owner: owner, ttl: ttl}
}

func leaseKey(key string) string { return "foundry:lease:" + key }

// CheckAndRenewLock attempts to acquire the lease if unheld, or renew
// it via compare-and-swap if this instance already holds it. On loss
// (another owner holds it, or our renewal CAS failed because the
// lease expired and was reacquired elsewhere) has_lock is false.
func (e *Elector) CheckAndRenewLock(ctx context.Context) (hasLock bool, isNewAcquisition bool, err error) {
	e.mu.RLock()
	currentlyHeld, currentToken := e.held, e.token
	e.mu.RUnlock()

	if currentlyHeld {
		ok, err := e.renew(ctx, currentToken)
		if err != nil {
			return false, false, fmt.Errorf("renew lease %s: %w", e.key, err)
		}
		if ok {
			return true, false, nil
		}
		e.setHeld(false, "")
		// fall through to attempt a fresh acquisition this same tick
	}

	token := e.owner + ":" + uuid.NewString()
	ok, err := e.client.SetNX(ctx, leaseKey(e.key), token, e.ttl).Result()
	if err != nil {
		return false, false, fmt.Errorf("acquire lease %s: %w", e.key, err)
	}
	if !ok {
		return false, false, nil
	}
	e.setHeld(true, token)
	return true, true, nil
}

const renewLeaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`

func (e *Elector) renew(ctx context.Context, token string) (bool, error) {
	res, err := e.client.Eval(ctx, renewLeaseScript, []string{leaseKey(e.key)}, token, e.ttl.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	n, ok := res.(int64)
	return ok && n != 0, nil
}

func (e *Elector) setHeld(held bool, token string) {
	e.mu.Lock()
	e.held, e.token = held, token
	e.mu.Unlock()
}

// HasLock reports this instance's last-known leadership state without
// contacting the coordination store — the ticking Run loop is the
// source of truth; callers between ticks see the most recent result.
func (e *Elector) HasLock() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.held
}

// Run ticks CheckAndRenewLock every interval until ctx is cancelled,
// invoking onNewAcquisition exactly when is_new_acquisition is true
// (the caller broadcasts leader.new from there, per §4.7).
func (e *Elector) Run(ctx context.Context, interval time.Duration, onNewAcquisition func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, isNew, err := e.CheckAndRenewLock(ctx)
			if err != nil {
				continue // rediscovery happens at the next tick, per §4.7
			}
			if isNew && onNewAcquisition != nil {
				onNewAcquisition()
			}
		}
	}
}
