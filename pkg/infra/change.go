package infra

import "github.com/foundrycore/foundry/pkg/schema"

// ColumnChangeKind discriminates ColumnChange, per §3.7.
type ColumnChangeKind string

const (
	ColumnAdded           ColumnChangeKind = "Added"
	ColumnRemoved         ColumnChangeKind = "Removed"
	ColumnUpdated         ColumnChangeKind = "Updated"
	ColumnEnumMetadataOnly ColumnChangeKind = "EnumMetadataOnly"
)

// ColumnChange is one column-level diff entry.
type ColumnChange struct {
	Kind           ColumnChangeKind
	Column         schema.Column  // Added, EnumMetadataOnly
	PositionAfter  string         // Added: name of the preceding column, "" if first
	Before         *schema.Column // Removed, Updated
	After          *schema.Column // Updated
}

// OrderByChange describes an ORDER BY field-list change.
type OrderByChange struct {
	Before []string
	After  []string
}

// TableChangeKind discriminates TableChange, per §3.7.
type TableChangeKind string

const (
	TableAdded           TableChangeKind = "Added"
	TableRemoved         TableChangeKind = "Removed"
	TableUpdated         TableChangeKind = "Updated"
	TableTtlChanged      TableChangeKind = "TtlChanged"
	TableSettingsChanged TableChangeKind = "SettingsChanged"
	TableValidationError TableChangeKind = "ValidationError"
)

// TableChange is one table-level diff entry.
type TableChange struct {
	Kind TableChangeKind
	ID   string

	// Added
	Table *Table

	// Removed
	Before *Table

	// Updated
	ColumnChanges  []ColumnChange
	OrderByChange  *OrderByChange
	UpdatedBefore  *Table
	UpdatedAfter   *Table

	// TtlChanged
	TTLBefore string
	TTLAfter  string

	// SettingsChanged
	SettingsBefore map[string]string
	SettingsAfter  map[string]string

	// ValidationError
	ValidationMessage string
}

// MaterializedViewChangeKind mirrors TableChangeKind for MVs.
type MaterializedViewChangeKind string

const (
	MVAdded   MaterializedViewChangeKind = "Added"
	MVRemoved MaterializedViewChangeKind = "Removed"
	MVUpdated MaterializedViewChangeKind = "Updated"
)

type MaterializedViewChange struct {
	Kind   MaterializedViewChangeKind
	ID     string
	View   *MaterializedView // Added, Updated(after)
	Before *MaterializedView // Removed, Updated
}

// ViewChangeKind covers plain (non-materialized) view-like resources:
// APIEndpoints, WebApps, Workflows, Topics, SyncProcesses.
type ViewChangeKind string

const (
	ViewAdded   ViewChangeKind = "Added"
	ViewRemoved ViewChangeKind = "Removed"
	ViewUpdated ViewChangeKind = "Updated"
)

// ViewChange is a generic add/remove/update record for the resource
// kinds that don't need structural field-level diffing beyond
// equality (Topics, SyncProcesses, APIEndpoints, WebApps, Workflows).
type ViewChange struct {
	Kind ViewChangeKind
	Resource string // kind name, e.g. "topic", "sync_process", "api", "webapp", "workflow"
	ID   string
}

// SqlResourceChangeKind mirrors add/remove/update for SqlResource.
type SqlResourceChangeKind string

const (
	SqlResourceAdded   SqlResourceChangeKind = "Added"
	SqlResourceRemoved SqlResourceChangeKind = "Removed"
	SqlResourceUpdated SqlResourceChangeKind = "Updated"
)

type SqlResourceChange struct {
	Kind     SqlResourceChangeKind
	ID       string
	Resource *SqlResource
}

// OlapChangeKind discriminates the top-level OlapChange sum, per §3.7.
type OlapChangeKind string

const (
	OlapTableChange             OlapChangeKind = "TableChange"
	OlapMaterializedViewChange  OlapChangeKind = "MaterializedViewChange"
	OlapViewChange              OlapChangeKind = "ViewChange"
	OlapSqlResourceChange       OlapChangeKind = "SqlResourceChange"
)

// OlapChange is the typed sum of §3.7.
type OlapChange struct {
	Kind OlapChangeKind

	Table             *TableChange
	MaterializedView  *MaterializedViewChange
	View              *ViewChange
	SqlResource       *SqlResourceChange
}

// InfraChanges is an ordered list of changes per domain, ready for
// execution in the order given.
type InfraChanges struct {
	Tables             []TableChange
	MaterializedViews  []MaterializedViewChange
	Views              []ViewChange
	SqlResources       []SqlResourceChange
}

// Empty reports whether the change set contains nothing — used for
// invariant 1 (idempotence of diff) and idempotent re-runs (§4.5).
func (c *InfraChanges) Empty() bool {
	return len(c.Tables) == 0 && len(c.MaterializedViews) == 0 && len(c.Views) == 0 && len(c.SqlResources) == 0
}

// InfraPlan is the output of the Diff Engine / Planner, per §3.7.
type InfraPlan struct {
	TargetInfraMap *Map
	Changes        InfraChanges
}
