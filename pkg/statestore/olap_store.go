package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/foundrycore/foundry/pkg/infra"
)

// OlapStore is the OLAP-native StateStorage backend of §6.2: the map
// lives in a dedicated table with a single binary column, using the
// database's own atomicity; the migration lock is a single-row MVCC
// table with CAS on a lock token (owner + expiry written by whoever
// currently holds it).
type OlapStore struct {
	db        *sql.DB
	mapTable  string
	lockTable string
}

// NewOlapStore wraps an already-open ClickHouse *sql.DB (e.g. via
// clickhouse.OpenDB). Both tables must already exist — see EnsureSchema.
func NewOlapStore(db *sql.DB, mapTable, lockTable string) *OlapStore {
	return &OlapStore{db: db, mapTable: mapTable, lockTable: lockTable}
}

// EnsureSchema creates the map and lock tables if absent. Both use
// ReplacingMergeTree keyed on a constant so the latest write wins,
// matching the "single dedicated table" shape of §6.2.
func (s *OlapStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			singleton UInt8,
			payload String,
			updated_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at) ORDER BY singleton`, s.mapTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name String,
			token String,
			owner String,
			expires_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(expires_at) ORDER BY name`, s.lockTable),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *OlapStore) LoadMap(ctx context.Context) (*infra.Map, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT payload FROM %s FINAL WHERE singleton = 1 LIMIT 1", s.mapTable))
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load map: %w", err)
	}
	var m infra.Map
	if err := m.UnmarshalBinary([]byte(payload)); err != nil {
		return nil, fmt.Errorf("unmarshal persisted map: %w", err)
	}
	return &m, nil
}

func (s *OlapStore) SaveMap(ctx context.Context, m *infra.Map) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal map: %w", err)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (singleton, payload, updated_at) VALUES (1, ?, now64(3))", s.mapTable),
		string(data))
	if err != nil {
		return fmt.Errorf("save map: %w", err)
	}
	return nil
}

// AcquireLock inserts a new lock row only if no unexpired row for
// name exists; ReplacingMergeTree's eventual merge means reads must
// use FINAL and filter expiry themselves rather than relying on a
// unique-key constraint the engine doesn't enforce.
func (s *OlapStore) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (string, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT owner, expires_at FROM %s FINAL WHERE name = ? AND expires_at > now64(3) LIMIT 1", s.lockTable),
		name)
	var currentOwner string
	var expiresAt time.Time
	err := row.Scan(&currentOwner, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// no live holder — proceed to acquire
	case err != nil:
		return "", fmt.Errorf("check lock %s: %w", name, err)
	default:
		return "", &ErrLockHeld{Owner: currentOwner}
	}

	token := uuid.NewString()
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (name, token, owner, expires_at) VALUES (?, ?, ?, ?)", s.lockTable),
		name, token, owner, time.Now().Add(ttl))
	if err != nil {
		return "", fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return token, nil
}

func (s *OlapStore) RenewLock(ctx context.Context, name, token string, ttl time.Duration) error {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT owner, token FROM %s FINAL WHERE name = ? AND expires_at > now64(3) LIMIT 1", s.lockTable),
		name)
	var owner, currentToken string
	if err := row.Scan(&owner, &currentToken); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &ErrLockLost{Name: name}
		}
		return fmt.Errorf("renew lock %s: %w", name, err)
	}
	if currentToken != token {
		return &ErrLockLost{Name: name}
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (name, token, owner, expires_at) VALUES (?, ?, ?, ?)", s.lockTable),
		name, token, owner, time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("renew lock %s: %w", name, err)
	}
	return nil
}

func (s *OlapStore) ReleaseLock(ctx context.Context, name, token string) error {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT token FROM %s FINAL WHERE name = ? AND expires_at > now64(3) LIMIT 1", s.lockTable),
		name)
	var currentToken string
	if err := row.Scan(&currentToken); err != nil {
		return nil // already gone — release is a no-op
	}
	if currentToken != token {
		return nil // stolen by someone else already — not our lock to release
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE name = ? AND token = ?", s.lockTable),
		name, token)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}
