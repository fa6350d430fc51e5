package planner

import (
	"context"
	"testing"
	"time"

	"github.com/foundrycore/foundry/pkg/config"
	"github.com/foundrycore/foundry/pkg/ferr"
	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/reality"
	"github.com/foundrycore/foundry/pkg/schema"
)

type fakeLoader struct {
	m   *infra.Map
	err error
}

func (f *fakeLoader) Load(project infra.Project, resolveCredentials bool) (*infra.Map, error) {
	return f.m, f.err
}

type fakeStorage struct {
	current *infra.Map
	saved   *infra.Map
}

func (f *fakeStorage) LoadMap(ctx context.Context) (*infra.Map, error) { return f.current, nil }
func (f *fakeStorage) SaveMap(ctx context.Context, m *infra.Map) error { f.saved = m; return nil }
func (f *fakeStorage) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (string, error) {
	return "tok", nil
}
func (f *fakeStorage) RenewLock(ctx context.Context, name, token string, ttl time.Duration) error {
	return nil
}
func (f *fakeStorage) ReleaseLock(ctx context.Context, name, token string) error { return nil }

type fakeOlapClient struct{}

func (f *fakeOlapClient) ListTables(ctx context.Context, databases []string) ([]reality.LiveTable, error) {
	return nil, nil
}

func simpleMergeTreeTable(name string) *infra.Table {
	return &infra.Table{
		Name:          name,
		Database:      "analytics",
		Engine:        &schema.Engine{Kind: schema.EngineMergeTree},
		OrderByFields: []string{"id"},
		LifeCycle:     infra.FullyManaged,
		Columns: []schema.Column{
			{Name: "id", Type: &schema.ColumnType{Kind: schema.KindString}, Required: true},
		},
	}
}

func targetMap(tables ...*infra.Table) *infra.Map {
	m := infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})
	for _, t := range tables {
		m.Tables[t.ID("analytics")] = t
	}
	return m
}

func TestPlanChangesAddsNewTable(t *testing.T) {
	target := targetMap(simpleMergeTreeTable("events"))
	loader := &fakeLoader{m: target}
	storage := &fakeStorage{}

	p := New(loader, storage, &fakeOlapClient{}, nil, "")
	cfg := &config.ProjectConfig{
		DefaultDatabase: "analytics",
		OlapEnabled:     true,
		Databases:       []string{"analytics"},
		Backend:         config.BackendConfig{Type: config.BackendCoordination},
	}

	current, plan, err := p.PlanChanges(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if current == nil || plan == nil {
		t.Fatal("expected non-nil current and plan")
	}
	if len(plan.Changes.Tables) != 1 || plan.Changes.Tables[0].Kind != infra.TableAdded {
		t.Errorf("expected one Added table change, got %+v", plan.Changes.Tables)
	}
}

func TestPlanChangesOlapDisabledButRequired(t *testing.T) {
	target := targetMap(simpleMergeTreeTable("events"))
	loader := &fakeLoader{m: target}
	storage := &fakeStorage{}

	p := New(loader, storage, nil, nil, "")
	cfg := &config.ProjectConfig{
		DefaultDatabase: "analytics",
		OlapEnabled:     false,
		Databases:       []string{"analytics"},
		Backend:         config.BackendConfig{Type: config.BackendCoordination},
	}

	_, _, err := p.PlanChanges(context.Background(), cfg)
	if !ferr.Is(err, ferr.KindPolicy) {
		t.Fatalf("expected KindPolicy error, got %v", err)
	}
}

func TestPlanChangesRejectsUndeclaredDatabase(t *testing.T) {
	tbl := simpleMergeTreeTable("events")
	tbl.Database = "other_db"
	target := targetMap(tbl)
	loader := &fakeLoader{m: target}
	storage := &fakeStorage{}

	p := New(loader, storage, &fakeOlapClient{}, nil, "")
	cfg := &config.ProjectConfig{
		DefaultDatabase: "analytics",
		OlapEnabled:     true,
		Databases:       []string{"analytics"}, // "other_db" not declared
		Backend:         config.BackendConfig{Type: config.BackendCoordination},
	}

	_, _, err := p.PlanChanges(context.Background(), cfg)
	if !ferr.Is(err, ferr.KindValidation) {
		t.Fatalf("expected KindValidation error, got %v", err)
	}
}

func TestPlanChangesWithReconciliation(t *testing.T) {
	target := targetMap(simpleMergeTreeTable("events"))
	loader := &fakeLoader{m: target}
	storage := &fakeStorage{current: infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})}
	olap := &fakeOlapClient{}

	p := New(loader, storage, olap, nil, "")
	cfg := &config.ProjectConfig{
		DefaultDatabase: "analytics",
		OlapEnabled:     true,
		Databases:       []string{"analytics"},
		Backend:         config.BackendConfig{Type: config.BackendOlapNative},
	}

	_, plan, err := p.PlanChanges(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Changes.Tables) != 1 {
		t.Errorf("expected one table change after reconciliation, got %d", len(plan.Changes.Tables))
	}
}
