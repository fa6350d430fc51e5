package executor

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/schema"
	"github.com/foundrycore/foundry/pkg/statestore"
)

type capturingExecutor struct {
	statements []string
	failOn     func(stmt string) bool
}

func (c *capturingExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.statements = append(c.statements, query)
	if c.failOn != nil && c.failOn(query) {
		return nil, errors.New("simulated exec failure")
	}
	return nil, nil
}

type noopStorage struct {
	saved *infra.Map
}

func (s *noopStorage) LoadMap(ctx context.Context) (*infra.Map, error) { return nil, nil }
func (s *noopStorage) SaveMap(ctx context.Context, m *infra.Map) error { s.saved = m; return nil }
func (s *noopStorage) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (string, error) {
	return "token", nil
}
func (s *noopStorage) RenewLock(ctx context.Context, name, token string, ttl time.Duration) error {
	return nil
}
func (s *noopStorage) ReleaseLock(ctx context.Context, name, token string) error { return nil }

var _ statestore.StateStorage = (*noopStorage)(nil)

func TestLiveExecutorApplyCreatesTableAndMV(t *testing.T) {
	tbl := simpleTable()
	mv := &infra.MaterializedView{
		Name: "events_mv", Database: "analytics",
		TargetDatabase: "analytics", TargetTable: "events",
		SelectSQL:    "SELECT id FROM analytics.events",
		SourceTables: []string{"analytics_events"},
	}
	target := &infra.Map{
		Tables:            map[string]*infra.Table{"analytics_events": tbl},
		MaterializedViews: map[string]*infra.MaterializedView{"analytics_events_mv": mv},
	}
	plan := &infra.InfraPlan{
		TargetInfraMap: target,
		Changes: infra.InfraChanges{
			Tables:            []infra.TableChange{{Kind: infra.TableAdded, ID: "analytics_events", Table: tbl}},
			MaterializedViews: []infra.MaterializedViewChange{{Kind: infra.MVAdded, ID: "analytics_events_mv", View: mv}},
		},
	}

	exec := &capturingExecutor{}
	storage := &noopStorage{}
	le := NewLiveExecutor(exec, storage)

	if err := le.Apply(context.Background(), plan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exec.statements) != 3 {
		t.Fatalf("expected 3 statements (create table, create mv, populate), got %d: %v", len(exec.statements), exec.statements)
	}
	if storage.saved != target {
		t.Error("expected target map to be persisted after apply")
	}
}

func TestLiveExecutorApplySkipsPopulationForS3QueueSource(t *testing.T) {
	src := &infra.Table{
		Name: "raw", Database: "analytics",
		Engine: &schema.Engine{Kind: schema.EngineS3Queue, S3Path: "s3://bucket/*", Format: "JSONEachRow"},
	}
	mv := &infra.MaterializedView{
		Name: "raw_mv", Database: "analytics",
		TargetDatabase: "analytics", TargetTable: "raw_rollup",
		SelectSQL:    "SELECT 1 FROM analytics.raw",
		SourceTables: []string{"analytics_raw"},
	}
	target := &infra.Map{
		Tables:            map[string]*infra.Table{"analytics_raw": src},
		MaterializedViews: map[string]*infra.MaterializedView{"analytics_raw_mv": mv},
	}
	plan := &infra.InfraPlan{
		TargetInfraMap: target,
		Changes: infra.InfraChanges{
			MaterializedViews: []infra.MaterializedViewChange{{Kind: infra.MVAdded, ID: "analytics_raw_mv", View: mv}},
		},
	}

	exec := &capturingExecutor{}
	le := NewLiveExecutor(exec, &noopStorage{})
	if err := le.Apply(context.Background(), plan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exec.statements) != 1 {
		t.Fatalf("expected only the CREATE MATERIALIZED VIEW statement, got %d: %v", len(exec.statements), exec.statements)
	}
}

func TestLiveExecutorApplySkipsDropOfProtectedTable(t *testing.T) {
	before := &infra.Table{Name: "events", Database: "analytics", LifeCycle: infra.DeletionProtected}
	plan := &infra.InfraPlan{
		TargetInfraMap: &infra.Map{},
		Changes: infra.InfraChanges{
			Tables: []infra.TableChange{{Kind: infra.TableRemoved, ID: "analytics_events", Before: before}},
		},
	}
	exec := &capturingExecutor{}
	le := NewLiveExecutor(exec, &noopStorage{})
	if err := le.Apply(context.Background(), plan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exec.statements) != 0 {
		t.Errorf("expected no DROP TABLE statement for a DeletionProtected table, got %v", exec.statements)
	}
}

func TestLiveExecutorApplyPropagatesExecError(t *testing.T) {
	tbl := simpleTable()
	plan := &infra.InfraPlan{
		TargetInfraMap: &infra.Map{},
		Changes: infra.InfraChanges{
			Tables: []infra.TableChange{{Kind: infra.TableAdded, ID: "analytics_events", Table: tbl}},
		},
	}
	exec := &capturingExecutor{failOn: func(stmt string) bool { return true }}
	le := NewLiveExecutor(exec, &noopStorage{})
	if err := le.Apply(context.Background(), plan); err == nil {
		t.Fatal("expected error to propagate from a failed ExecContext call")
	}
}
