package statestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunStatus is the lifecycle state of a recorded migration run.
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunApplied RunStatus = "applied"
	RunFailed  RunStatus = "failed"
)

// Run is one entry in the local migration history: a single
// invocation of the executor against a plan, independent of which
// StateStorage backend or OLAP target was in play.
type Run struct {
	ID          string
	PlanHash    string
	Mode        string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Ledger is the local run/migration history store. It is not one of
// the two StateStorage backends of §6.2 — it never holds the
// authoritative map, only a record of runs (plan hash, mode, status).
// The executor neither writes nor reads it.
type Ledger struct {
	db   *sql.DB
	path string
}

// NewLedger opens (creating if absent) the local run-history database
// at path and enables WAL mode for concurrent reader access while the
// dev-loop watcher and a manual CLI invocation both hold it open.
func NewLedger(ctx context.Context, path string) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}

	l := &Ledger{db: db, path: path}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ledger migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(l.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("ledger migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("ledger migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ledger migrate up: %w", err)
	}
	return nil
}

func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// CreateRun records the start of a new executor invocation.
func (l *Ledger) CreateRun(ctx context.Context, run *Run) error {
	const query = `
		INSERT INTO runs (id, plan_hash, mode, status, started_at, completed_at, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := l.db.ExecContext(ctx, query,
		run.ID, run.PlanHash, run.Mode, run.Status,
		run.StartedAt, run.CompletedAt, run.Error, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (l *Ledger) GetRun(ctx context.Context, id string) (*Run, error) {
	const query = `
		SELECT id, plan_hash, mode, status, started_at, completed_at, error, created_at, updated_at
		FROM runs WHERE id = ?
	`
	run := &Run{}
	err := l.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.PlanHash, &run.Mode, &run.Status,
		&run.StartedAt, &run.CompletedAt, &run.Error, &run.CreatedAt, &run.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// LatestAppliedForPlan returns the most recent applied run against
// planHash, or nil if the plan has never been successfully applied.
func (l *Ledger) LatestAppliedForPlan(ctx context.Context, planHash string) (*Run, error) {
	const query = `
		SELECT id, plan_hash, mode, status, started_at, completed_at, error, created_at, updated_at
		FROM runs WHERE plan_hash = ? AND status = ? ORDER BY started_at DESC LIMIT 1
	`
	run := &Run{}
	err := l.db.QueryRowContext(ctx, query, planHash, RunApplied).Scan(
		&run.ID, &run.PlanHash, &run.Mode, &run.Status,
		&run.StartedAt, &run.CompletedAt, &run.Error, &run.CreatedAt, &run.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest applied run: %w", err)
	}
	return run, nil
}

// UpdateRunStatus transitions a run to a terminal or intermediate
// status, recording the completion time and any error.
func (l *Ledger) UpdateRunStatus(ctx context.Context, id string, status RunStatus, errMsg *string) error {
	const query = `
		UPDATE runs SET status = ?, error = ?, completed_at = ?, updated_at = ? WHERE id = ?
	`
	now := time.Now()
	var completedAt *time.Time
	if status == RunApplied || status == RunFailed {
		completedAt = &now
	}
	_, err := l.db.ExecContext(ctx, query, status, errMsg, completedAt, now, id)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}
