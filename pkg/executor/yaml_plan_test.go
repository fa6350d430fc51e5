package executor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/foundrycore/foundry/pkg/config"
	"github.com/foundrycore/foundry/pkg/ferr"
	"github.com/foundrycore/foundry/pkg/infra"
)

type fakeLockStorage struct {
	noopStorage
	acquireErr error
	saveCalled bool
	savedMap   *infra.Map
}

func (s *fakeLockStorage) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (string, error) {
	if s.acquireErr != nil {
		return "", s.acquireErr
	}
	return "tok", nil
}

func (s *fakeLockStorage) SaveMap(ctx context.Context, m *infra.Map) error {
	s.saveCalled = true
	s.savedMap = m
	return nil
}

func writeMapJSON(t *testing.T, path string, m *infra.Map) {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal map: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeOperationsYAML(t *testing.T, path string, ops []MigrationOperation) {
	t.Helper()
	data, err := yaml.Marshal(ops)
	if err != nil {
		t.Fatalf("marshal ops: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func planFiles(dir string) MigrationPlanFiles {
	return MigrationPlanFiles{
		MigrationFile:            filepath.Join(dir, "migration.yaml"),
		MigrationBeforeStateFile: filepath.Join(dir, "migration_before_state.json"),
		MigrationAfterStateFile:  filepath.Join(dir, "migration_after_state.json"),
	}
}

func TestExecuteMigrationPlanNoDriftAppliesEmptyPlan(t *testing.T) {
	dir := t.TempDir()
	tbl := simpleTable()
	m := &infra.Map{Tables: map[string]*infra.Table{"analytics_events": tbl}}
	files := planFiles(dir)
	writeOperationsYAML(t, files.MigrationFile, []MigrationOperation{})
	writeMapJSON(t, files.MigrationBeforeStateFile, &infra.Map{Tables: map[string]*infra.Table{}})
	writeMapJSON(t, files.MigrationAfterStateFile, m)

	storage := &fakeLockStorage{}
	exec := NewYAMLExecutor(&capturingExecutor{}, storage, nil, "test-owner")

	cfg := &config.ProjectConfig{Databases: []string{"analytics"}}
	project := infra.Project{DefaultDatabase: "analytics"}

	// with no Olap client, loadCurrentLiveTables returns an empty map,
	// which matches the empty before-state: classified as driftNone,
	// not driftAlreadyTarget. The empty operation list then applies
	// without error.
	err := exec.ExecuteMigrationPlan(context.Background(), files, project, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExecuteMigrationPlanDriftDetected(t *testing.T) {
	dir := t.TempDir()
	files := planFiles(dir)
	writeOperationsYAML(t, files.MigrationFile, []MigrationOperation{})

	expected := &infra.Map{Tables: map[string]*infra.Table{"analytics_missing": simpleTable()}}
	target := &infra.Map{Tables: map[string]*infra.Table{"analytics_missing": simpleTable()}}
	writeMapJSON(t, files.MigrationBeforeStateFile, expected)
	writeMapJSON(t, files.MigrationAfterStateFile, target)

	storage := &fakeLockStorage{}
	exec := NewYAMLExecutor(&capturingExecutor{}, storage, nil, "test-owner")
	cfg := &config.ProjectConfig{Databases: []string{"analytics"}}
	project := infra.Project{DefaultDatabase: "analytics"}

	err := exec.ExecuteMigrationPlan(context.Background(), files, project, cfg)
	if err == nil {
		t.Fatal("expected drift error since current (empty) live state differs from the recorded before-state")
	}
	var de *DriftError
	if !asDriftError(err, &de) {
		t.Fatalf("expected *DriftError, got %T: %v", err, err)
	}
	if len(de.Missing) != 1 || de.Missing[0] != "analytics_missing" {
		t.Errorf("expected the missing table to be reported, got %v", de.Missing)
	}
	if storage.saveCalled {
		t.Error("SaveMap should not be called when drift is detected")
	}
}

func asDriftError(err error, target **DriftError) bool {
	de, ok := err.(*DriftError)
	if ok {
		*target = de
	}
	return ok
}

func TestExecuteMigrationPlanAppliesOperationsWhenNoDrift(t *testing.T) {
	dir := t.TempDir()
	files := planFiles(dir)
	tbl := simpleTable()
	ops := []MigrationOperation{{Kind: OpCreateTable, Table: tbl}}
	writeOperationsYAML(t, files.MigrationFile, ops)

	empty := &infra.Map{Tables: map[string]*infra.Table{}}
	after := &infra.Map{Tables: map[string]*infra.Table{"analytics_events": tbl}}
	writeMapJSON(t, files.MigrationBeforeStateFile, empty)
	writeMapJSON(t, files.MigrationAfterStateFile, after)

	storage := &fakeLockStorage{}
	exec := NewYAMLExecutor(&capturingExecutor{}, storage, nil, "test-owner")
	cfg := &config.ProjectConfig{Databases: []string{"analytics"}}
	project := infra.Project{DefaultDatabase: "analytics"}

	if err := exec.ExecuteMigrationPlan(context.Background(), files, project, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !storage.saveCalled {
		t.Error("expected SaveMap to be called after applying operations")
	}
	if storage.savedMap == nil || len(storage.savedMap.Tables) != 1 || storage.savedMap.Tables["analytics_events"] == nil {
		t.Error("expected the target (after) map to be persisted")
	}
}

func TestExecuteMigrationPlanLockHeldFails(t *testing.T) {
	dir := t.TempDir()
	files := planFiles(dir)
	writeOperationsYAML(t, files.MigrationFile, []MigrationOperation{})
	writeMapJSON(t, files.MigrationBeforeStateFile, &infra.Map{})
	writeMapJSON(t, files.MigrationAfterStateFile, &infra.Map{})

	storage := &fakeLockStorage{acquireErr: &mockLockHeld{}}
	exec := NewYAMLExecutor(&capturingExecutor{}, storage, nil, "test-owner")
	cfg := &config.ProjectConfig{}
	project := infra.Project{DefaultDatabase: "analytics"}

	err := exec.ExecuteMigrationPlan(context.Background(), files, project, cfg)
	if !ferr.Is(err, ferr.KindDB) {
		t.Fatalf("expected KindDB error when the migration lock is held, got %v", err)
	}
}

type mockLockHeld struct{}

func (e *mockLockHeld) Error() string { return "migration lock held by someone-else" }

func TestValidateDatabasesAndClustersRejectsUndeclared(t *testing.T) {
	ops := []MigrationOperation{
		{Kind: OpCreateTable, Table: &infra.Table{Database: "other_db"}},
	}
	cfg := &config.ProjectConfig{Databases: []string{"analytics"}}
	err := validateDatabasesAndClusters(ops, cfg)
	if !ferr.Is(err, ferr.KindValidation) {
		t.Fatalf("expected KindValidation error for undeclared database, got %v", err)
	}
}

func TestValidateDatabasesAndClustersAcceptsDeclared(t *testing.T) {
	ops := []MigrationOperation{
		{Kind: OpCreateTable, Table: &infra.Table{Database: "analytics"}},
	}
	cfg := &config.ProjectConfig{Databases: []string{"analytics"}}
	if err := validateDatabasesAndClusters(ops, cfg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExecuteOperationsReportsPartialFailure(t *testing.T) {
	exec := NewYAMLExecutor(&capturingExecutor{failOn: func(stmt string) bool { return true }}, &fakeLockStorage{}, nil, "owner")
	ops := []MigrationOperation{
		{Kind: OpCreateTable, Table: simpleTable()},
		{Kind: OpDropTable, Database: "analytics", Name: "other"},
	}
	err := exec.executeOperations(context.Background(), ops)
	if !ferr.Is(err, ferr.KindPartial) {
		t.Fatalf("expected KindPartial error, got %v", err)
	}
}
