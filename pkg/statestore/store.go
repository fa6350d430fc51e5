// Package statestore implements the two StateStorage backends of
// §6.2 (coordination-store and OLAP-native) plus the local run ledger
// that records migration/execution history — a supplemented feature
// distinct from StateStorage proper.
package statestore

import (
	"context"
	"time"

	"github.com/foundrycore/foundry/pkg/infra"
)

// StateStorage persists the authoritative current infra map and
// arbitrates the migration lock, per §6.2. Exactly one backend is
// active per project, chosen by config.
type StateStorage interface {
	// LoadMap returns the persisted map, or (nil, nil) if none exists
	// yet (the planner falls back to infra.EmptyFromProject).
	LoadMap(ctx context.Context) (*infra.Map, error)

	// SaveMap persists the map as the new authoritative current state.
	SaveMap(ctx context.Context, m *infra.Map) error

	// AcquireLock attempts to take the named exclusive migration lock
	// with the given TTL, returning a lease token on success and
	// ErrLockHeld if another owner currently holds it.
	AcquireLock(ctx context.Context, name string, owner string, ttl time.Duration) (token string, err error)

	// RenewLock extends a held lock's TTL; fails with ErrLockLost if
	// token no longer matches the current holder (expired or stolen).
	RenewLock(ctx context.Context, name string, token string, ttl time.Duration) error

	// ReleaseLock releases a held lock. A mismatched token is a no-op,
	// not an error — the lock may have already expired and been taken
	// by someone else.
	ReleaseLock(ctx context.Context, name string, token string) error
}

// ErrLockHeld is returned by AcquireLock when the lock is currently
// held by a different owner.
type ErrLockHeld struct{ Owner string }

func (e *ErrLockHeld) Error() string { return "migration lock held by " + e.Owner }

// ErrLockLost is returned by RenewLock when the caller's token is
// stale — the lock expired and was reacquired by someone else, or was
// never held to begin with.
type ErrLockLost struct{ Name string }

func (e *ErrLockLost) Error() string { return "lock lost: " + e.Name }
