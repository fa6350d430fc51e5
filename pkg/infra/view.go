package infra

// RefreshInterval is either Every(secs) or After(secs), per §3.5.
type RefreshInterval struct {
	Every int // seconds; zero if After is set instead
	After int // seconds; zero if Every is set instead
	IsAfter bool
}

// RefreshConfig configures a Refreshable materialized view.
type RefreshConfig struct {
	Interval   RefreshInterval
	Offset     int
	Randomize  bool
	DependsOn  []string // other MV ids, for ordering
	Append     bool
}

// MaterializedView is the Go representation of §3.5. Both the
// Incremental and Refreshable shapes share this one record:
// Incremental has RefreshConfig == nil and SourceTables drive
// recomputation on insert; Refreshable has RefreshConfig != nil and
// SourceTables are recorded for lineage only.
type MaterializedView struct {
	Name           string
	Database       string
	SelectSQL      string
	TargetTable    string
	TargetDatabase string
	SourceTables   []string // table ids this MV reads from
	RefreshConfig  *RefreshConfig
	Metadata       Metadata
}

// ID computes the stable id for a materialized view: same scheme as
// tables, since an MV's identity is database-scoped by name.
func (m *MaterializedView) ID(defaultDatabase string) string {
	db := m.Database
	if db == "" {
		db = defaultDatabase
	}
	if db == "" {
		return m.Name
	}
	return db + "_" + m.Name
}

// IsIncremental reports whether this MV recomputes on insert (no
// RefreshConfig) as opposed to running on a schedule.
func (m *MaterializedView) IsIncremental() bool {
	return m.RefreshConfig == nil
}
