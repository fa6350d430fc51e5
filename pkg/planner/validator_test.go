package planner

import (
	"testing"

	"github.com/foundrycore/foundry/pkg/config"
	"github.com/foundrycore/foundry/pkg/ferr"
	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/schema"
)

func TestContainsBytesDirect(t *testing.T) {
	if !containsBytes(&schema.ColumnType{Kind: schema.KindBytes}) {
		t.Error("expected direct Bytes to be detected")
	}
}

func TestContainsBytesNestedInWrappers(t *testing.T) {
	cases := []*schema.ColumnType{
		{Kind: schema.KindNullable, Inner: &schema.ColumnType{Kind: schema.KindBytes}},
		{Kind: schema.KindArray, Element: &schema.ColumnType{Kind: schema.KindBytes}},
		{Kind: schema.KindMap, KeyType: &schema.ColumnType{Kind: schema.KindString}, ValueType: &schema.ColumnType{Kind: schema.KindBytes}},
		{Kind: schema.KindNamedTuple, Fields: []schema.NamedTupleField{{Name: "f", Type: &schema.ColumnType{Kind: schema.KindBytes}}}},
		{
			Kind: schema.KindNested,
			NestedColumns: []schema.Column{
				{Name: "inner", Type: &schema.ColumnType{Kind: schema.KindBytes}, Required: true},
			},
		},
	}
	for _, c := range cases {
		if !containsBytes(c) {
			t.Errorf("expected Bytes to be detected through wrapper %s", c.Kind)
		}
	}
}

func TestContainsBytesAbsent(t *testing.T) {
	if containsBytes(&schema.ColumnType{Kind: schema.KindString}) {
		t.Error("did not expect Bytes to be detected in a plain String column")
	}
}

func TestValidatePlanRejectsBytesColumn(t *testing.T) {
	tbl := simpleMergeTreeTable("events")
	tbl.Columns = append(tbl.Columns, schema.Column{
		Name: "raw", Type: &schema.ColumnType{Kind: schema.KindBytes}, Required: true,
	})
	target := targetMap(tbl)
	plan := &infra.InfraPlan{
		TargetInfraMap: target,
		Changes:        infra.InfraChanges{Tables: []infra.TableChange{{Kind: infra.TableAdded, ID: tbl.ID("analytics"), Table: tbl}}},
	}
	cfg := &config.ProjectConfig{DefaultDatabase: "analytics", OlapEnabled: true, Databases: []string{"analytics"}}

	err := ValidatePlan(plan, cfg, true)
	if !ferr.Is(err, ferr.KindValidation) {
		t.Fatalf("expected KindValidation error for Bytes column, got %v", err)
	}
}

func TestValidatePlanRejectsUndeclaredCluster(t *testing.T) {
	tbl := simpleMergeTreeTable("events")
	tbl.ClusterName = "prod_cluster"
	target := targetMap(tbl)
	plan := &infra.InfraPlan{
		TargetInfraMap: target,
		Changes:        infra.InfraChanges{Tables: []infra.TableChange{{Kind: infra.TableAdded, ID: tbl.ID("analytics"), Table: tbl}}},
	}
	cfg := &config.ProjectConfig{
		DefaultDatabase: "analytics", OlapEnabled: true,
		Databases: []string{"analytics"}, Clusters: []string{"default"},
	}

	err := ValidatePlan(plan, cfg, true)
	if !ferr.Is(err, ferr.KindValidation) {
		t.Fatalf("expected KindValidation error for undeclared cluster, got %v", err)
	}
}

func TestValidatePlanAcceptsWellFormedPlan(t *testing.T) {
	tbl := simpleMergeTreeTable("events")
	target := targetMap(tbl)
	plan := &infra.InfraPlan{
		TargetInfraMap: target,
		Changes:        infra.InfraChanges{Tables: []infra.TableChange{{Kind: infra.TableAdded, ID: tbl.ID("analytics"), Table: tbl}}},
	}
	cfg := &config.ProjectConfig{DefaultDatabase: "analytics", OlapEnabled: true, Databases: []string{"analytics"}}

	if err := ValidatePlan(plan, cfg, true); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidatePlanRejectsDanglingMVTargetTable(t *testing.T) {
	target := infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})
	mv := &infra.MaterializedView{Name: "mv1", TargetTable: "analytics_missing"}
	plan := &infra.InfraPlan{
		TargetInfraMap: target,
		Changes: infra.InfraChanges{
			MaterializedViews: []infra.MaterializedViewChange{{Kind: infra.MVAdded, ID: "analytics_mv1", View: mv}},
		},
	}
	cfg := &config.ProjectConfig{DefaultDatabase: "analytics", OlapEnabled: true}

	err := ValidatePlan(plan, cfg, true)
	if !ferr.Is(err, ferr.KindValidation) {
		t.Fatalf("expected KindValidation error for dangling MV target table, got %v", err)
	}
}
