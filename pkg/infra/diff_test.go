package infra

import (
	"testing"

	"github.com/foundrycore/foundry/pkg/schema"
)

func stringCol(name string) schema.Column {
	return schema.Column{Name: name, Type: &schema.ColumnType{Kind: schema.KindString}, Required: true}
}

func mergeTreeTable(name string, cols ...schema.Column) *Table {
	return &Table{
		Name:          name,
		Columns:       cols,
		OrderByFields: []string{cols[0].Name},
		Engine:        &schema.Engine{Kind: schema.EngineMergeTree},
		LifeCycle:     FullyManaged,
	}
}

func mapWithTables(tables ...*Table) *Map {
	m := EmptyFromProject(Project{})
	for _, t := range tables {
		m.Tables[t.ID("")] = t
	}
	return m
}

// invariant: diffing a map against itself yields no changes.
func TestDiffIdempotence(t *testing.T) {
	tbl := mergeTreeTable("events", stringCol("id"), stringCol("payload"))
	m := mapWithTables(tbl)

	changes := DiffWithTableStrategy(m, m, true, false, IgnoreOps{})
	if !changes.Empty() {
		t.Fatalf("expected no changes diffing a map against itself, got %+v", changes)
	}
}

// S1: empty current, populated target boots every table as Added.
func TestDiffEmptyToPopulated(t *testing.T) {
	current := EmptyFromProject(Project{})
	tbl := mergeTreeTable("events", stringCol("id"))
	target := mapWithTables(tbl)

	changes := DiffWithTableStrategy(current, target, true, false, IgnoreOps{})
	if len(changes.Tables) != 1 || changes.Tables[0].Kind != TableAdded {
		t.Fatalf("expected single TableAdded, got %+v", changes.Tables)
	}
}

// S2: adding a column in place is an Updated change with one
// ColumnChange, not a drop+recreate.
func TestDiffColumnAddInPlace(t *testing.T) {
	before := mergeTreeTable("events", stringCol("id"))
	current := mapWithTables(before)

	after := mergeTreeTable("events", stringCol("id"), stringCol("payload"))
	target := mapWithTables(after)

	changes := DiffWithTableStrategy(current, target, true, false, IgnoreOps{})
	if len(changes.Tables) != 1 {
		t.Fatalf("expected exactly one table change, got %d", len(changes.Tables))
	}
	c := changes.Tables[0]
	if c.Kind != TableUpdated {
		t.Fatalf("expected TableUpdated, got %s", c.Kind)
	}
	if len(c.ColumnChanges) != 1 || c.ColumnChanges[0].Kind != ColumnAdded {
		t.Fatalf("expected one ColumnAdded change, got %+v", c.ColumnChanges)
	}
}

// S3: changing order_by forces a drop+recreate (Removed then Added
// with the same id), per §4.2 step 5.
func TestDiffOrderByChangeForcesRecreate(t *testing.T) {
	before := mergeTreeTable("events", stringCol("id"), stringCol("ts"))
	current := mapWithTables(before)

	after := mergeTreeTable("events", stringCol("id"), stringCol("ts"))
	after.OrderByFields = []string{"ts"}
	target := mapWithTables(after)

	changes := DiffWithTableStrategy(current, target, true, false, IgnoreOps{})
	if len(changes.Tables) != 2 {
		t.Fatalf("expected Removed+Added pair, got %d changes: %+v", len(changes.Tables), changes.Tables)
	}
	kinds := map[TableChangeKind]bool{}
	for _, c := range changes.Tables {
		kinds[c.Kind] = true
	}
	if !kinds[TableRemoved] || !kinds[TableAdded] {
		t.Fatalf("expected both Removed and Added, got %+v", changes.Tables)
	}
}

// S6: an S3Queue table differing only in engine settings emits
// SettingsChanged, not a drop+recreate.
func TestDiffS3QueueSettingsOnly(t *testing.T) {
	before := &Table{
		Name:    "ingest",
		Columns: []schema.Column{stringCol("id")},
		Engine: &schema.Engine{
			Kind:     schema.EngineS3Queue,
			S3Path:   "s3://bucket/path",
			Format:   "JSONEachRow",
			Settings: map[string]string{"s3queue_polling_min_timeout_ms": "1000"},
		},
		LifeCycle: FullyManaged,
	}
	current := mapWithTables(before)

	after := &Table{
		Name:    "ingest",
		Columns: []schema.Column{stringCol("id")},
		Engine: &schema.Engine{
			Kind:     schema.EngineS3Queue,
			S3Path:   "s3://bucket/path",
			Format:   "JSONEachRow",
			Settings: map[string]string{"s3queue_polling_min_timeout_ms": "5000"},
		},
		LifeCycle: FullyManaged,
	}
	target := mapWithTables(after)

	changes := DiffWithTableStrategy(current, target, true, false, IgnoreOps{})
	if len(changes.Tables) != 1 || changes.Tables[0].Kind != TableSettingsChanged {
		t.Fatalf("expected single SettingsChanged, got %+v", changes.Tables)
	}
}

// invariant: ExternallyManaged tables are never mutated by the diff
// when respectLifeCycle is set, even if their code-derived definition
// has drifted.
func TestDiffExternallyManagedSkipped(t *testing.T) {
	before := mergeTreeTable("legacy", stringCol("id"))
	before.LifeCycle = ExternallyManaged
	current := mapWithTables(before)

	after := mergeTreeTable("legacy", stringCol("id"), stringCol("extra"))
	after.LifeCycle = ExternallyManaged
	target := mapWithTables(after)

	changes := DiffWithTableStrategy(current, target, true, false, IgnoreOps{})
	if !changes.Empty() {
		t.Fatalf("expected no changes for ExternallyManaged table, got %+v", changes.Tables)
	}
}

// invariant: DeletionProtected tables are never emitted as Removed.
func TestDiffDeletionProtectedNeverRemoved(t *testing.T) {
	tbl := mergeTreeTable("must_keep", stringCol("id"))
	tbl.LifeCycle = DeletionProtected
	current := mapWithTables(tbl)
	target := EmptyFromProject(Project{})

	changes := DiffWithTableStrategy(current, target, true, false, IgnoreOps{})
	if !changes.Empty() {
		t.Fatalf("expected DeletionProtected table to be preserved, got %+v", changes.Tables)
	}
}

// ignore_ops widens equivalence: a table_ttl-only difference produces
// no change when TableTTL is ignored.
func TestDiffIgnoreOpsTableTTL(t *testing.T) {
	before := mergeTreeTable("events", stringCol("id"))
	before.TableTTL = "ts + INTERVAL 30 DAY"
	current := mapWithTables(before)

	after := mergeTreeTable("events", stringCol("id"))
	after.TableTTL = "ts + INTERVAL 90 DAY"
	target := mapWithTables(after)

	changes := DiffWithTableStrategy(current, target, true, false, IgnoreOps{TableTTL: true})
	if !changes.Empty() {
		t.Fatalf("expected no changes with TableTTL ignored, got %+v", changes.Tables)
	}

	changesRespected := DiffWithTableStrategy(current, target, true, false, IgnoreOps{})
	if len(changesRespected.Tables) != 1 || changesRespected.Tables[0].Kind != TableTtlChanged {
		t.Fatalf("expected TtlChanged when not ignored, got %+v", changesRespected.Tables)
	}
}

// ordering: within a plan, table Added/Updated changes sort ahead of
// Removed, and ties break by id.
func TestOrderTableChangesAddsBeforeRemoves(t *testing.T) {
	changes := InfraChanges{
		Tables: []TableChange{
			{Kind: TableRemoved, ID: "b"},
			{Kind: TableAdded, ID: "a"},
			{Kind: TableRemoved, ID: "a"},
			{Kind: TableAdded, ID: "c"},
		},
	}
	orderTableChanges(&changes)
	if changes.Tables[0].Kind != TableAdded || changes.Tables[1].Kind != TableAdded {
		t.Fatalf("expected adds first, got %+v", changes.Tables)
	}
	if changes.Tables[0].ID != "a" || changes.Tables[1].ID != "c" {
		t.Fatalf("expected adds ordered by id, got %+v", changes.Tables)
	}
}

// ordering: materialized views are topologically sorted so an
// upstream MV's change is never emitted after its dependent.
func TestOrderDependentChangesTopological(t *testing.T) {
	base := mergeTreeTable("raw", stringCol("id"))
	target := mapWithTables(base)
	target.MaterializedViews["mv_a"] = &MaterializedView{
		Name: "mv_a", TargetTable: base.ID(""), SourceTables: []string{base.ID("")},
	}
	target.MaterializedViews["mv_b"] = &MaterializedView{
		Name: "mv_b", TargetTable: base.ID(""),
		RefreshConfig: &RefreshConfig{DependsOn: []string{"mv_a"}},
	}

	changes := InfraChanges{
		MaterializedViews: []MaterializedViewChange{
			{Kind: MVAdded, ID: "mv_b"},
			{Kind: MVAdded, ID: "mv_a"},
		},
	}
	orderDependentChanges(&changes, target)
	if changes.MaterializedViews[0].ID != "mv_a" || changes.MaterializedViews[1].ID != "mv_b" {
		t.Fatalf("expected mv_a before mv_b, got %+v", changes.MaterializedViews)
	}
}

// round-trip: marshaling and unmarshaling table ids through the wire
// codec preserves every table id present in the map.
func TestWireRoundTripTableIDs(t *testing.T) {
	m := mapWithTables(
		mergeTreeTable("events", stringCol("id")),
		mergeTreeTable("sessions", stringCol("id")),
	)
	m.DefaultDatabase = "analytics"
	for _, tbl := range m.Tables {
		tbl.ComputeEngineParamsHash("analytics")
	}

	data, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	ids, err := UnmarshalTableIDs(data)
	if err != nil {
		t.Fatalf("UnmarshalTableIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d: %v", len(ids), ids)
	}
	want := map[string]bool{"analytics_events": false, "analytics_sessions": false}
	for _, id := range ids {
		if _, ok := want[id]; !ok {
			t.Fatalf("unexpected id %q", id)
		}
		want[id] = true
	}
	for id, seen := range want {
		if !seen {
			t.Fatalf("missing id %q in round-trip", id)
		}
	}
}

// invariant 2: round-trip through the binary wire form preserves
// every table's structural fields.
func TestWireRoundTripFullTable(t *testing.T) {
	tbl := mergeTreeTable("events", stringCol("id"), stringCol("payload"))
	tbl.Database = "analytics"
	tbl.TableTTL = "ts + INTERVAL 30 DAY"
	tbl.ComputeEngineParamsHash("analytics")
	m := mapWithTables(tbl)
	m.DefaultDatabase = "analytics"

	data, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	var out Map
	if err := out.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	got, ok := out.Tables["analytics_events"]
	if !ok {
		t.Fatalf("expected table analytics_events after round trip, got %+v", out.Tables)
	}
	if got.Name != "events" || got.Database != "analytics" {
		t.Fatalf("name/database mismatch after round trip: %+v", got)
	}
	if len(got.Columns) != 2 {
		t.Fatalf("expected 2 columns after round trip, got %d", len(got.Columns))
	}
	if got.TableTTL != tbl.TableTTL {
		t.Fatalf("table_ttl mismatch after round trip: got %q want %q", got.TableTTL, tbl.TableTTL)
	}
	if got.Engine == nil || got.Engine.Kind != schema.EngineMergeTree {
		t.Fatalf("expected engine kind MergeTree after round trip, got %+v", got.Engine)
	}
}

// lineage cycles between materialized views are rejected by
// Map.Validate, per the design-notes prohibition on cyclic references.
func TestMapValidateRejectsLineageCycle(t *testing.T) {
	base := mergeTreeTable("raw", stringCol("id"))
	m := mapWithTables(base)
	m.MaterializedViews["mv_a"] = &MaterializedView{
		Name: "mv_a", TargetTable: base.ID(""),
		RefreshConfig: &RefreshConfig{DependsOn: []string{"mv_b"}},
	}
	m.MaterializedViews["mv_b"] = &MaterializedView{
		Name: "mv_b", TargetTable: base.ID(""),
		RefreshConfig: &RefreshConfig{DependsOn: []string{"mv_a"}},
	}

	if err := m.Validate(); err == nil {
		t.Fatalf("expected cyclic lineage to fail validation")
	}
}
