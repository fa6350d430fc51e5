package infra

// Topic is a stream resource (e.g. a Kafka/Redpanda topic analog).
type Topic struct {
	Name          string
	Database      string
	PartitionKey  string
	RetentionSecs int
	Metadata      Metadata
}

func (t *Topic) ID(defaultDatabase string) string { return scopedID(t.Name, t.Database, defaultDatabase) }

// SyncProcess moves data from a Topic into a Table.
type SyncProcess struct {
	Name        string
	SourceTopic string // topic id
	TargetTable string // table id
	Metadata    Metadata
}

func (s *SyncProcess) ID(defaultDatabase string) string { return s.Name }

// APIEndpoint is a consumption/ingestion HTTP route backed by the
// platform's serving plane.
type APIEndpoint struct {
	Name     string
	Path     string
	Method   string
	Metadata Metadata
}

func (a *APIEndpoint) ID(defaultDatabase string) string { return a.Name }

// WebApp is a static or server-rendered web application process.
type WebApp struct {
	Name     string
	Metadata Metadata
}

func (w *WebApp) ID(defaultDatabase string) string { return w.Name }

// Workflow is a scheduled/triggerable unit of orchestrated work.
type Workflow struct {
	Name     string
	Schedule string
	Metadata Metadata
}

func (w *Workflow) ID(defaultDatabase string) string { return w.Name }

// SqlResource is an opaque setup/teardown SQL pair with declared
// dependencies, for infrastructure the typed model doesn't cover
// (custom functions, grants, ...).
type SqlResource struct {
	Name         string
	SetupSQL     []string
	TeardownSQL  []string
	DependsOn    []string // ids of resources this must run after
	Metadata     Metadata
}

func (s *SqlResource) ID(defaultDatabase string) string { return s.Name }

func scopedID(name, database, defaultDatabase string) string {
	db := database
	if db == "" {
		db = defaultDatabase
	}
	if db == "" {
		return name
	}
	return db + "_" + name
}
