// Package infra implements the typed, serializable representation of
// every managed resource (tables, streams, sync processes, api
// endpoints, workflows, materialized views, sql resources) with a
// content-addressable identity scheme, and the structural diff
// algorithm that turns two maps into an ordered plan of changes.
package infra

import (
	"fmt"
	"strings"

	"github.com/foundrycore/foundry/pkg/schema"
)

// LifeCycle governs how aggressively the planner may mutate a
// resource (§3.3, GLOSSARY).
type LifeCycle string

const (
	FullyManaged       LifeCycle = "FullyManaged"
	DeletionProtected  LifeCycle = "DeletionProtected"
	ExternallyManaged  LifeCycle = "ExternallyManaged"
)

// Index is one secondary index declaration on a table.
type Index struct {
	Name        string
	Expression  string
	Type        string
	Arguments   []string
	Granularity int
}

// SourcePrimitive names the user-code construct a resource was
// derived from, for diagnostics.
type SourcePrimitive struct {
	Name string
	Kind string
}

// Metadata is descriptive, non-structural information about a resource.
type Metadata struct {
	Description string
	SourceFile  string
}

// Table is the Go representation of §3.3.
type Table struct {
	Name            string
	Database        string // optional; empty means "use default_database"
	Columns         []schema.Column
	OrderByFields   []string // either this...
	OrderByExpr     string   // ...or this free-form expression
	PartitionBy     string
	SampleBy        string
	TableTTL        string
	ClusterName     string
	Indexes         []Index
	Engine          *schema.Engine
	Version         string // dotted, e.g. "1.2.0"
	SourcePrimitive SourcePrimitive
	Metadata        Metadata
	LifeCycle       LifeCycle
	EngineParamsHash string
	TableSettings   map[string]string
}

// versionSuffix renders Version as the "a_b_c" id-embeddable suffix,
// per §3.3. An empty Version yields an empty suffix.
func versionSuffix(version string) string {
	if version == "" {
		return ""
	}
	return strings.ReplaceAll(version, ".", "_")
}

// ID computes the stable id of §3.3: "{database or default}_{name}[_{version_suffix}]".
// If name itself contains a dot (legacy fully-qualified), the database
// prefix is NOT prepended — this rule is stability-preserving and
// must not be changed (§8 invariant 3).
func (t *Table) ID(defaultDatabase string) string {
	db := t.Database
	if db == "" {
		db = defaultDatabase
	}
	var base string
	if strings.Contains(t.Name, ".") {
		base = t.Name
	} else if db != "" {
		base = db + "_" + t.Name
	} else {
		base = t.Name
	}
	if suf := versionSuffix(t.Version); suf != "" {
		base = base + "_" + suf
	}
	return base
}

// RenderOrderBy renders the ORDER BY clause body: either the field
// list joined and parenthesized, or the free-form expression, or
// "tuple()" when empty (§3.3).
func (t *Table) RenderOrderBy() string {
	if t.OrderByExpr != "" {
		return t.OrderByExpr
	}
	if len(t.OrderByFields) == 0 {
		return "tuple()"
	}
	quoted := make([]string, len(t.OrderByFields))
	for i, f := range t.OrderByFields {
		quoted[i] = "`" + f + "`"
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}

// PrimaryKeyColumns returns the names of columns flagged PrimaryKey,
// in column order.
func (t *Table) PrimaryKeyColumns() []string {
	var pk []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

// Validate checks table-level invariants: ReplacingMergeTree requires
// a non-empty order_by (§3.4), and every column validates.
func (t *Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table: missing name")
	}
	if t.Engine == nil {
		return fmt.Errorf("table %s: missing engine", t.Name)
	}
	if err := t.Engine.Validate(); err != nil {
		return fmt.Errorf("table %s: %w", t.Name, err)
	}
	if t.Engine.Kind == schema.EngineReplacingMergeTree {
		if len(t.OrderByFields) == 0 && t.OrderByExpr == "" {
			return fmt.Errorf("table %s: ReplacingMergeTree requires a non-empty order_by", t.Name)
		}
	}
	for i := range t.Columns {
		if err := t.Columns[i].Validate(); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
	}
	return nil
}

// ComputeEngineParamsHash sets EngineParamsHash from the current
// engine and database, per §3.3/§4.1.
func (t *Table) ComputeEngineParamsHash(defaultDatabase string) {
	db := t.Database
	if db == "" {
		db = defaultDatabase
	}
	t.EngineParamsHash = t.Engine.Hash(db)
}
