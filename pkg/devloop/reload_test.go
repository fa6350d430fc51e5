package devloop

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/foundrycore/foundry/pkg/config"
	"github.com/foundrycore/foundry/pkg/executor"
	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/planner"
	"github.com/foundrycore/foundry/pkg/reality"
	"github.com/foundrycore/foundry/pkg/schema"
)

// emptyOlap is a reality.OlapClient whose live database holds no tables.
type emptyOlap struct{}

func (emptyOlap) ListTables(ctx context.Context, databases []string) ([]reality.LiveTable, error) {
	return nil, nil
}

// fakeLoader returns a fixed target map, mirroring how a real
// infra.UserCodeLoader would translate a typed user codebase.
type fakeLoader struct {
	target *infra.Map
}

func (f *fakeLoader) Load(project infra.Project, resolveCredentials bool) (*infra.Map, error) {
	return f.target, nil
}

// fakeStorage2 is an in-memory statestore.StateStorage; reload tests
// don't exercise locking, only LoadMap/SaveMap.
type fakeStorage2 struct {
	current *infra.Map
	saved   *infra.Map
}

func (s *fakeStorage2) LoadMap(ctx context.Context) (*infra.Map, error) { return s.current, nil }
func (s *fakeStorage2) SaveMap(ctx context.Context, m *infra.Map) error { s.saved = m; return nil }
func (s *fakeStorage2) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (string, error) {
	return "token", nil
}
func (s *fakeStorage2) RenewLock(ctx context.Context, name, token string, ttl time.Duration) error {
	return nil
}
func (s *fakeStorage2) ReleaseLock(ctx context.Context, name, token string) error { return nil }

// recordingExecutor captures executed statements instead of talking to
// a database, per the live executor's SQLExecutor seam.
type recordingExecutor struct {
	statements []string
}

func (e *recordingExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	e.statements = append(e.statements, query)
	return nil, nil
}

func stringColumn(name string) schema.Column {
	return schema.Column{Name: name, Type: &schema.ColumnType{Kind: schema.KindString}, Required: true}
}

func eventsTable() *infra.Table {
	return &infra.Table{
		Name:          "events",
		Database:      "analytics",
		Columns:       []schema.Column{stringColumn("id"), stringColumn("payload")},
		OrderByFields: []string{"id"},
		Engine:        &schema.Engine{Kind: schema.EngineMergeTree},
		LifeCycle:     infra.FullyManaged,
	}
}

func TestReloaderReloadAppliesNewTableAndPublishesSharedMap(t *testing.T) {
	target := infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})
	table := eventsTable()
	target.Tables[table.ID("analytics")] = table

	storage := &fakeStorage2{current: infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})}
	p := planner.New(&fakeLoader{target: target}, storage, emptyOlap{}, nil, "")
	exec := &recordingExecutor{}
	liveExec := executor.NewLiveExecutor(exec, storage)
	reg := NewRegistry(&recordingManager{})
	shared := NewSharedMap(nil)

	reloader := NewReloader(p, liveExec, reg, &Coordinator{}, shared)

	cfg := &config.ProjectConfig{DefaultDatabase: "analytics", Databases: []string{"analytics"}, OlapEnabled: true}
	if err := reloader.Reload(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected reload error: %v", err)
	}

	if len(exec.statements) == 0 {
		t.Fatal("expected at least one DDL statement to have been executed")
	}
	if shared.Get() == nil || shared.Get() != target {
		t.Fatal("expected shared map to be updated to the new target map")
	}
	if !reloader.LastStatus().OK {
		t.Fatalf("expected reload status OK, got err=%v", reloader.LastStatus().Err)
	}
}

func TestReloaderReloadSurfacesPlannerFailureWithoutUpdatingSharedMap(t *testing.T) {
	storage := &fakeStorage2{current: infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})}
	// A nil loader causes the planner to fail at load_target_map.
	p := planner.New(nil, storage, nil, nil, "")
	exec := &recordingExecutor{}
	liveExec := executor.NewLiveExecutor(exec, storage)
	reg := NewRegistry(&recordingManager{})
	previous := infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})
	shared := NewSharedMap(previous)

	reloader := NewReloader(p, liveExec, reg, &Coordinator{}, shared)

	cfg := &config.ProjectConfig{DefaultDatabase: "analytics"}
	err := reloader.Reload(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected reload to fail when no loader is configured")
	}
	if shared.Get() != previous {
		t.Fatal("expected shared map to stay on the last-known-good map after a failed reload")
	}
	if reloader.LastStatus().OK {
		t.Fatal("expected reload status to report failure")
	}
}
