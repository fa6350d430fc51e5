package infra

import (
	"fmt"

	"github.com/foundrycore/foundry/pkg/schema"
)

// LineageEdge records a data-lineage relationship: From pulls from or
// pushes to To, per §3.6.
type LineageEdge struct {
	From string
	To   string
}

// Project is the minimal project-level context the map needs:
// its configured default database. The rest of project configuration
// (clusters, ignore_operations, production flag, ...) lives in
// pkg/config and is passed separately where needed.
type Project struct {
	DefaultDatabase string
	IsProduction    bool
}

// Map is the Infrastructure map of §3.6: a set of mappings keyed by
// stable id, plus the default_database fallback.
type Map struct {
	DefaultDatabase string

	Tables             map[string]*Table
	Topics             map[string]*Topic
	SyncProcesses      map[string]*SyncProcess
	APIEndpoints       map[string]*APIEndpoint
	WebApps            map[string]*WebApp
	Workflows          map[string]*Workflow
	MaterializedViews  map[string]*MaterializedView
	SqlResources       map[string]*SqlResource
}

// EmptyFromProject returns an empty map with default_database bound,
// per §4.2.
func EmptyFromProject(project Project) *Map {
	return &Map{
		DefaultDatabase:    project.DefaultDatabase,
		Tables:             map[string]*Table{},
		Topics:             map[string]*Topic{},
		SyncProcesses:      map[string]*SyncProcess{},
		APIEndpoints:       map[string]*APIEndpoint{},
		WebApps:            map[string]*WebApp{},
		Workflows:          map[string]*Workflow{},
		MaterializedViews:  map[string]*MaterializedView{},
		SqlResources:       map[string]*SqlResource{},
	}
}

// UserCodeLoader is the external collaborator that turns a user's
// typed codebase into a Map. Parsing user source is explicitly out of
// scope (§1 Non-goals); this interface is the seam the core consumes.
type UserCodeLoader interface {
	Load(project Project, resolveCredentials bool) (*Map, error)
}

// LoadFromUserCode delegates to loader and validates the result
// before use, per §4.2.
func LoadFromUserCode(loader UserCodeLoader, project Project, resolveCredentials bool) (*Map, error) {
	m, err := loader.Load(project, resolveCredentials)
	if err != nil {
		return nil, fmt.Errorf("load from user code: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("loaded map failed validation: %w", err)
	}
	return m, nil
}

// Validate checks: all IDs unique within their kind (guaranteed by
// map construction, so this mainly checks cross-references), and all
// MV references resolvable within the map: the target must be one of
// the map's tables, an incremental MV's sources must be tables or MVs
// of the map, and refresh depends_on entries must be MVs of the map.
// References to resources outside the map are always rejected; there
// is no way to declare one external.
func (m *Map) Validate() error {
	for id, table := range m.Tables {
		if got := table.ID(m.DefaultDatabase); got != id {
			return fmt.Errorf("table %q stored under inconsistent id %q (computed %q)", table.Name, id, got)
		}
		if err := table.Validate(); err != nil {
			return err
		}
	}
	for id, mv := range m.MaterializedViews {
		if _, ok := m.Tables[mv.TargetTable]; !ok {
			return fmt.Errorf("materialized view %q: target table %q not found in map", id, mv.TargetTable)
		}
		if mv.IsIncremental() {
			for _, src := range mv.SourceTables {
				if _, ok := m.Tables[src]; !ok {
					if _, ok := m.MaterializedViews[src]; !ok {
						return fmt.Errorf("materialized view %q: source %q not found in map", id, src)
					}
				}
			}
		}
		if mv.RefreshConfig != nil {
			for _, dep := range mv.RefreshConfig.DependsOn {
				if _, ok := m.MaterializedViews[dep]; !ok {
					return fmt.Errorf("materialized view %q: depends_on %q not found in map", id, dep)
				}
			}
		}
	}
	if err := m.checkLineageCycles(); err != nil {
		return err
	}
	return nil
}

// LineageEdges computes the data-lineage edges of §3.6: every MV and
// every sync process declares upstream (pulls-from) and downstream
// (pushes-to) resources as typed edges.
func (m *Map) LineageEdges() []LineageEdge {
	var edges []LineageEdge
	for id, mv := range m.MaterializedViews {
		for _, src := range mv.SourceTables {
			edges = append(edges, LineageEdge{From: src, To: id})
		}
		edges = append(edges, LineageEdge{From: id, To: mv.TargetTable})
		if mv.RefreshConfig != nil {
			for _, dep := range mv.RefreshConfig.DependsOn {
				edges = append(edges, LineageEdge{From: dep, To: id})
			}
		}
	}
	for id, sp := range m.SyncProcesses {
		edges = append(edges, LineageEdge{From: sp.SourceTopic, To: id})
		edges = append(edges, LineageEdge{From: id, To: sp.TargetTable})
	}
	return edges
}

// checkLineageCycles detects cyclic references among MV/sync-process
// lineage edges, forbidden per §9 Design Notes.
func (m *Map) checkLineageCycles() error {
	adj := map[string][]string{}
	for _, e := range m.LineageEdges() {
		adj[e.From] = append(adj[e.From], e.To)
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var stack []string
	var visit func(n string) error
	visit = func(n string) error {
		color[n] = gray
		stack = append(stack, n)
		for _, next := range adj[n] {
			switch color[next] {
			case gray:
				return fmt.Errorf("cyclic lineage reference detected: %v -> %s", stack, next)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}
	for n := range adj {
		if color[n] == white {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// AllTableIDs returns the ids of every table, used as the reality
// reconciler's default whitelist source.
func (m *Map) AllTableIDs() []string {
	ids := make([]string, 0, len(m.Tables))
	for id := range m.Tables {
		ids = append(ids, id)
	}
	return ids
}

// Clone returns a deep-enough copy of the map for mutation during
// reconciliation (the reconciler must never corrupt its candidate input).
func (m *Map) Clone() *Map {
	c := &Map{
		DefaultDatabase:   m.DefaultDatabase,
		Tables:            make(map[string]*Table, len(m.Tables)),
		Topics:            make(map[string]*Topic, len(m.Topics)),
		SyncProcesses:     make(map[string]*SyncProcess, len(m.SyncProcesses)),
		APIEndpoints:      make(map[string]*APIEndpoint, len(m.APIEndpoints)),
		WebApps:           make(map[string]*WebApp, len(m.WebApps)),
		Workflows:         make(map[string]*Workflow, len(m.Workflows)),
		MaterializedViews: make(map[string]*MaterializedView, len(m.MaterializedViews)),
		SqlResources:      make(map[string]*SqlResource, len(m.SqlResources)),
	}
	for k, v := range m.Tables {
		t := *v
		t.Columns = append([]schema.Column(nil), v.Columns...)
		c.Tables[k] = &t
	}
	for k, v := range m.Topics {
		t := *v
		c.Topics[k] = &t
	}
	for k, v := range m.SyncProcesses {
		t := *v
		c.SyncProcesses[k] = &t
	}
	for k, v := range m.APIEndpoints {
		t := *v
		c.APIEndpoints[k] = &t
	}
	for k, v := range m.WebApps {
		t := *v
		c.WebApps[k] = &t
	}
	for k, v := range m.Workflows {
		t := *v
		c.Workflows[k] = &t
	}
	for k, v := range m.MaterializedViews {
		t := *v
		c.MaterializedViews[k] = &t
	}
	for k, v := range m.SqlResources {
		t := *v
		c.SqlResources[k] = &t
	}
	return c
}
