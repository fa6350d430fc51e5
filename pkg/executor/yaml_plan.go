package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/foundrycore/foundry/pkg/config"
	"github.com/foundrycore/foundry/pkg/ferr"
	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/reality"
	"github.com/foundrycore/foundry/pkg/statestore"
)

// migrationLockName is the well-known StateStorage lock name the YAML
// apply mode serializes on, per §4.5(b) step 1.
const migrationLockName = "migration"

// migrationLockTTL bounds how long one executor instance holds the
// lock before it must renew; chosen generously since DDL against a
// large table can run long.
const migrationLockTTL = 5 * time.Minute

// OperationKind discriminates one typed entry of a migration.yaml
// plan, per §6.2's "typed ordered operation list".
type OperationKind string

const (
	OpCreateTable    OperationKind = "create_table"
	OpDropTable      OperationKind = "drop_table"
	OpAlterTable     OperationKind = "alter_table"
	OpCreateMV       OperationKind = "create_materialized_view"
	OpDropMV         OperationKind = "drop_materialized_view"
	OpPopulateMV     OperationKind = "populate_materialized_view"
	OpRawSQL         OperationKind = "raw_sql"
)

// MigrationOperation is one entry of the ordered operation list
// persisted to migration.yaml by `moose generate migration --save`.
type MigrationOperation struct {
	Kind  OperationKind `yaml:"kind"`
	Table *infra.Table  `yaml:"table,omitempty"`

	// alter_table
	TableRef      string              `yaml:"table_ref,omitempty"`
	ColumnChanges []infra.ColumnChange `yaml:"column_changes,omitempty"`
	TTLAfter      string              `yaml:"ttl_after,omitempty"`
	SettingsBefore map[string]string  `yaml:"settings_before,omitempty"`
	SettingsAfter  map[string]string  `yaml:"settings_after,omitempty"`

	// drop_table
	Database string `yaml:"database,omitempty"`
	Name     string `yaml:"name,omitempty"`

	// create_materialized_view / drop_materialized_view / populate_materialized_view
	View *infra.MaterializedView `yaml:"view,omitempty"`

	// raw_sql
	SQL string `yaml:"sql,omitempty"`
}

// MigrationPlanFiles names the three on-disk artifacts of §4.5(b) /
// §6.2's "migration workflow" section.
type MigrationPlanFiles struct {
	MigrationFile            string // migration.yaml
	MigrationBeforeStateFile string // migration_before_state.json
	MigrationAfterStateFile  string // migration_after_state.json
}

// YAMLExecutor implements §4.5(b) `moose migrate` / execute_migration_plan.
type YAMLExecutor struct {
	DB      SQLExecutor
	Storage statestore.StateStorage
	Olap    reality.OlapClient
	Owner   string // lease owner identity, e.g. hostname:pid
}

func NewYAMLExecutor(db SQLExecutor, storage statestore.StateStorage, olap reality.OlapClient, owner string) *YAMLExecutor {
	return &YAMLExecutor{DB: db, Storage: storage, Olap: olap, Owner: owner}
}

// driftKind classifies the comparison of current vs. expected/target
// state, per §4.5(b) step 3.
type driftKind string

const (
	driftNone          driftKind = "NoDrift"
	driftAlreadyTarget driftKind = "AlreadyAtTarget"
	driftDetected      driftKind = "DriftDetected"
)

// DriftError reports DriftDetected{extra, missing, changed}, per §4.5(b).
type DriftError struct {
	Extra, Missing, Changed []string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("drift detected: extra=%v missing=%v changed=%v; regenerate the migration plan", e.Extra, e.Missing, e.Changed)
}

// ExecuteMigrationPlan implements §4.5(b)'s full 6 steps.
func (x *YAMLExecutor) ExecuteMigrationPlan(ctx context.Context, files MigrationPlanFiles, project infra.Project, cfg *config.ProjectConfig) error {
	token, err := x.Storage.AcquireLock(ctx, migrationLockName, x.Owner, migrationLockTTL)
	if err != nil {
		return ferr.Wrap(ferr.KindDB, "acquire_migration_lock", "another migration is in progress", err)
	}
	defer func() { _ = x.Storage.ReleaseLock(ctx, migrationLockName, token) }()

	ops, err := loadOperations(files.MigrationFile)
	if err != nil {
		return ferr.Wrap(ferr.KindLoad, "load_migration_file", "failed to load migration.yaml", err)
	}
	expected, err := loadMapJSON(files.MigrationBeforeStateFile)
	if err != nil {
		return ferr.Wrap(ferr.KindLoad, "load_before_state", "failed to load migration_before_state.json", err)
	}
	target, err := loadMapJSON(files.MigrationAfterStateFile)
	if err != nil {
		return ferr.Wrap(ferr.KindLoad, "load_after_state", "failed to load migration_after_state.json", err)
	}

	current, err := x.loadCurrentLiveTables(ctx, project, cfg)
	if err != nil {
		return ferr.Wrap(ferr.KindRealityCheck, "load_current", "failed to load current live tables", err)
	}

	kind, driftErr := classifyDrift(current, expected, target)
	switch kind {
	case driftDetected:
		return driftErr
	case driftAlreadyTarget:
		return x.Storage.SaveMap(ctx, target)
	}

	if err := validateDatabasesAndClusters(ops, cfg); err != nil {
		return err
	}

	if err := x.executeOperations(ctx, ops); err != nil {
		return err
	}

	return x.Storage.SaveMap(ctx, target)
}

func (x *YAMLExecutor) loadCurrentLiveTables(ctx context.Context, project infra.Project, cfg *config.ProjectConfig) (*infra.Map, error) {
	base := infra.EmptyFromProject(project)
	if x.Olap == nil {
		return base, nil
	}
	return reality.Reconcile(ctx, base, project, x.Olap, cfg.Databases, base.AllTableIDs())
}

// classifyDrift implements §4.5(b) step 3: strip metadata/ignore_ops
// fields (already normalized in the persisted snapshots) and compare.
func classifyDrift(current, expected, target *infra.Map) (driftKind, error) {
	if mapsEqualStructurally(current, expected) {
		return driftNone, nil
	}
	if mapsEqualStructurally(current, target) {
		return driftAlreadyTarget, nil
	}
	extra, missing, changed := diffTableIDSets(current, expected)
	return driftDetected, &DriftError{Extra: extra, Missing: missing, Changed: changed}
}

func mapsEqualStructurally(a, b *infra.Map) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Tables) != len(b.Tables) {
		return false
	}
	for id, ta := range a.Tables {
		tb, ok := b.Tables[id]
		if !ok {
			return false
		}
		if !tablesEqualIgnoringMetadata(ta, tb) {
			return false
		}
	}
	return true
}

func tablesEqualIgnoringMetadata(a, b *infra.Table) bool {
	na, nb := *a, *b
	na.Metadata, nb.Metadata = infra.Metadata{}, infra.Metadata{}
	na.Version, nb.Version = "", ""
	aJSON, errA := json.Marshal(na)
	bJSON, errB := json.Marshal(nb)
	if errA != nil || errB != nil {
		return false
	}
	return string(aJSON) == string(bJSON)
}

func diffTableIDSets(current, expected *infra.Map) (extra, missing, changed []string) {
	for id := range current.Tables {
		if _, ok := expected.Tables[id]; !ok {
			extra = append(extra, id)
		}
	}
	for id, et := range expected.Tables {
		ct, ok := current.Tables[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if !tablesEqualIgnoringMetadata(ct, et) {
			changed = append(changed, id)
		}
	}
	return
}

// validateDatabasesAndClusters implements §4.5(b) step 4: aggregate
// every undeclared database/cluster reference into one failure.
func validateDatabasesAndClusters(ops []MigrationOperation, cfg *config.ProjectConfig) error {
	databases := toSetExec(cfg.Databases)
	clusters := toSetExec(cfg.Clusters)
	var missingDB, missingCluster []string
	seenDB, seenCluster := map[string]bool{}, map[string]bool{}

	note := func(t *infra.Table) {
		if t == nil {
			return
		}
		db := t.Database
		if db != "" && len(databases) > 0 && !databases[db] && !seenDB[db] {
			seenDB[db] = true
			missingDB = append(missingDB, db)
		}
		if t.ClusterName != "" && len(clusters) > 0 && !clusters[t.ClusterName] && !seenCluster[t.ClusterName] {
			seenCluster[t.ClusterName] = true
			missingCluster = append(missingCluster, t.ClusterName)
		}
	}
	for _, op := range ops {
		note(op.Table)
		if op.View != nil {
			note(&infra.Table{Database: op.View.Database})
		}
	}

	if len(missingDB) == 0 && len(missingCluster) == 0 {
		return nil
	}
	return ferr.New(ferr.KindValidation, "validate_databases_and_clusters",
		fmt.Sprintf("add to your project config: databases=%v clusters=%v", missingDB, missingCluster))
}

// executeOperations runs ops sequentially; on failure it reports
// exactly which operations already applied, per §4.5(b) step 5.
func (x *YAMLExecutor) executeOperations(ctx context.Context, ops []MigrationOperation) error {
	var succeeded, remaining []string
	for i, op := range ops {
		label := fmt.Sprintf("%d:%s", i+1, op.Kind)
		if err := x.executeOperation(ctx, op); err != nil {
			for _, o := range ops[i+1:] {
				remaining = append(remaining, string(o.Kind))
			}
			return ferr.Partial("execute_migration_plan", succeeded, []string{label}, remaining,
				fmt.Sprintf("operation %d of %d failed, %d applied, %d not executed; database is in a PARTIAL state; regenerate the migration plan", i+1, len(ops), i, len(ops)-i-1)).
				WithOperation(label)
		}
		succeeded = append(succeeded, label)
	}
	return nil
}

func (x *YAMLExecutor) executeOperation(ctx context.Context, op MigrationOperation) error {
	switch op.Kind {
	case OpCreateTable:
		stmt, err := renderCreateTable(op.Table)
		if err != nil {
			return err
		}
		_, err = x.DB.ExecContext(ctx, stmt)
		return err
	case OpDropTable:
		_, err := x.DB.ExecContext(ctx, renderDropTable(op.Database, op.Name))
		return err
	case OpAlterTable:
		for _, cc := range op.ColumnChanges {
			stmt, err := renderColumnChange(op.TableRef, cc)
			if err != nil {
				return err
			}
			if _, err := x.DB.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		if op.TTLAfter != "" {
			if _, err := x.DB.ExecContext(ctx, renderTableTTL(op.TableRef, op.TTLAfter)); err != nil {
				return err
			}
		}
		for _, stmt := range renderSettingsChange(op.TableRef, op.SettingsBefore, op.SettingsAfter) {
			if _, err := x.DB.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	case OpCreateMV:
		_, err := x.DB.ExecContext(ctx, renderCreateMaterializedView(op.View))
		return err
	case OpDropMV:
		_, err := x.DB.ExecContext(ctx, renderDropMaterializedView(op.View))
		return err
	case OpPopulateMV:
		_, err := x.DB.ExecContext(ctx, renderInitialPopulation(op.View))
		return err
	case OpRawSQL:
		_, err := x.DB.ExecContext(ctx, op.SQL)
		return err
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

func loadOperations(path string) ([]MigrationOperation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ops []MigrationOperation
	if err := yaml.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return ops, nil
}

func loadMapJSON(path string) (*infra.Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m infra.Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &m, nil
}

func toSetExec(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}
