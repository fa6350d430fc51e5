package planner

import (
	"fmt"
	"strings"

	"github.com/foundrycore/foundry/pkg/config"
	"github.com/foundrycore/foundry/pkg/ferr"
	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/schema"
)

// ValidatePlan runs §4.4 step 5: the OlapDisabledButRequired policy
// gate, then the structural plan validator (referenced target tables
// exist, no Bytes-typed columns reach DDL, ReplacingMergeTree requires
// an ORDER BY, and every referenced database/cluster is declared in
// project config).
//
// Reference-integrity among the target map's own resources (MV source
// and target-table references) and circular lineage are already
// enforced by Map.Validate, called while loading the target; this
// validator only checks what the map alone cannot: cross-checks
// against the change set and against project config.
func ValidatePlan(plan *infra.InfraPlan, cfg *config.ProjectConfig, targetUsesOlap bool) error {
	if !cfg.OlapEnabled && targetUsesOlap && hasOlapChanges(plan) {
		return ferr.OlapDisabledButRequired()
	}

	if err := validateTableChanges(plan, cfg); err != nil {
		return err
	}
	if err := validateMaterializedViewReferences(plan); err != nil {
		return err
	}
	return nil
}

func hasOlapChanges(plan *infra.InfraPlan) bool {
	return len(plan.Changes.Tables) > 0 || len(plan.Changes.MaterializedViews) > 0 || len(plan.Changes.SqlResources) > 0
}

// validateMaterializedViewReferences checks that every MV change in
// the plan references a target table present in the plan's target
// map — the map itself already guarantees this (Map.Validate), but a
// plan can be constructed from a stale target snapshot, so the check
// is repeated at plan-validation time defensively.
func validateMaterializedViewReferences(plan *infra.InfraPlan) error {
	for _, mvc := range plan.Changes.MaterializedViews {
		if mvc.Kind == infra.MVRemoved {
			continue
		}
		if mvc.View == nil {
			continue
		}
		if _, ok := plan.TargetInfraMap.Tables[mvc.View.TargetTable]; !ok {
			return ferr.New(ferr.KindValidation, "validate_plan",
				fmt.Sprintf("materialized view %q references target table %q not present in the plan's target map", mvc.ID, mvc.View.TargetTable)).
				WithResource(mvc.ID)
		}
	}
	return nil
}

// validateTableChanges enforces: Bytes type never reaches DDL,
// ReplacingMergeTree requires ORDER BY (delegated to Table.Validate,
// already enforced when the table was constructed, re-checked here
// since a change carries the table by value), and every database and
// cluster referenced is declared in project config.
func validateTableChanges(plan *infra.InfraPlan, cfg *config.ProjectConfig) error {
	databases := toSet(cfg.Databases)
	clusters := toSet(cfg.Clusters)

	check := func(t *infra.Table) error {
		if t == nil {
			return nil
		}
		if err := t.Validate(); err != nil {
			return ferr.Wrap(ferr.KindValidation, "validate_plan", fmt.Sprintf("table %q failed validation", t.Name), err).WithResource(t.Name)
		}
		for _, c := range t.Columns {
			if containsBytes(c.Type) {
				return ferr.New(ferr.KindValidation, "validate_plan",
					fmt.Sprintf("table %q column %q: Bytes type cannot reach DDL", t.Name, c.Name)).
					WithResource(t.Name)
			}
		}
		db := t.Database
		if db == "" {
			db = plan.TargetInfraMap.DefaultDatabase
		}
		if len(databases) > 0 && db != "" && !databases[db] {
			return ferr.New(ferr.KindValidation, "validate_plan",
				fmt.Sprintf("table %q references database %q not declared in project config; add it to databases", t.Name, db)).
				WithResource(t.Name)
		}
		if t.ClusterName != "" && len(clusters) > 0 && !clusters[t.ClusterName] {
			return ferr.New(ferr.KindValidation, "validate_plan",
				fmt.Sprintf("table %q references cluster %q not declared in project config; add it to clusters", t.Name, t.ClusterName)).
				WithResource(t.Name)
		}
		return nil
	}

	for _, tc := range plan.Changes.Tables {
		if tc.Kind == infra.TableRemoved {
			continue // dropping a table never introduces a new Bytes/db/cluster reference
		}
		if err := check(tc.Table); err != nil {
			return err
		}
		if err := check(tc.UpdatedAfter); err != nil {
			return err
		}
	}
	return nil
}

// containsBytes recursively walks a column type through its Nullable,
// Array, Map, NamedTuple and Nested wrappers looking for Bytes, per
// §7's "Bytes type in DDL" rejection — Bytes is a schema-description
// convenience type with no columnar-OLAP column affinity.
func containsBytes(t *schema.ColumnType) bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case schema.KindBytes:
		return true
	case schema.KindNullable:
		return containsBytes(t.Inner)
	case schema.KindArray:
		return containsBytes(t.Element)
	case schema.KindMap:
		return containsBytes(t.KeyType) || containsBytes(t.ValueType)
	case schema.KindNamedTuple:
		for _, f := range t.Fields {
			if containsBytes(f.Type) {
				return true
			}
		}
		return false
	case schema.KindNested:
		for _, c := range t.NestedColumns {
			if containsBytes(c.Type) {
				return true
			}
		}
		return false
	}
	return false
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[strings.TrimSpace(it)] = true
	}
	return s
}
