package reality

import (
	"context"
	"testing"

	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/schema"
)

func TestDiscrepanciesReportsMissingTable(t *testing.T) {
	candidate := infra.EmptyFromProject(infra.Project{DefaultDatabase: "db"})
	candidate.Tables["db_events"] = &infra.Table{
		Name: "events", Database: "db", Columns: []schema.Column{col("id")},
		OrderByFields: []string{"id"}, Engine: &schema.Engine{Kind: schema.EngineMergeTree}, LifeCycle: infra.FullyManaged,
	}
	client := fakeClient{} // no live tables at all

	report, err := Discrepancies(context.Background(), candidate, client, []string{"db"})
	if err != nil {
		t.Fatalf("Discrepancies: %v", err)
	}
	if len(report.MissingTables) != 1 || report.MissingTables[0] != "db_events" {
		t.Fatalf("expected db_events reported missing, got %+v", report)
	}
	if len(report.UnmappedTables) != 0 || len(report.MismatchedTables) != 0 {
		t.Fatalf("expected no other discrepancies, got %+v", report)
	}
}

func TestDiscrepanciesReportsUnmappedTable(t *testing.T) {
	candidate := infra.EmptyFromProject(infra.Project{DefaultDatabase: "db"})
	client := fakeClient{tables: []LiveTable{
		{Name: "orphan", Database: "db", Columns: []schema.Column{col("id")}, OrderByFields: []string{"id"}, Engine: &schema.Engine{Kind: schema.EngineMergeTree}},
	}}

	report, err := Discrepancies(context.Background(), candidate, client, []string{"db"})
	if err != nil {
		t.Fatalf("Discrepancies: %v", err)
	}
	if len(report.UnmappedTables) != 1 || report.UnmappedTables[0] != "db_orphan" {
		t.Fatalf("expected db_orphan reported unmapped, got %+v", report)
	}
	if len(report.MissingTables) != 0 || len(report.MismatchedTables) != 0 {
		t.Fatalf("expected no other discrepancies, got %+v", report)
	}
}

func TestDiscrepanciesReportsMismatchedTable(t *testing.T) {
	candidate := infra.EmptyFromProject(infra.Project{DefaultDatabase: "db"})
	candidate.Tables["db_events"] = &infra.Table{
		Name: "events", Database: "db", Columns: []schema.Column{col("id"), col("extra")},
		OrderByFields: []string{"id"}, Engine: &schema.Engine{Kind: schema.EngineMergeTree}, LifeCycle: infra.FullyManaged,
	}
	client := fakeClient{tables: []LiveTable{
		{Name: "events", Database: "db", Columns: []schema.Column{col("id")}, OrderByFields: []string{"id"}, Engine: &schema.Engine{Kind: schema.EngineMergeTree}},
	}}

	report, err := Discrepancies(context.Background(), candidate, client, []string{"db"})
	if err != nil {
		t.Fatalf("Discrepancies: %v", err)
	}
	if len(report.MismatchedTables) != 1 || report.MismatchedTables[0] != "db_events" {
		t.Fatalf("expected db_events reported mismatched, got %+v", report)
	}
	if len(report.MissingTables) != 0 || len(report.UnmappedTables) != 0 {
		t.Fatalf("expected no other discrepancies, got %+v", report)
	}
}

func TestDiscrepanciesMatchingTableReportsNothing(t *testing.T) {
	candidate := infra.EmptyFromProject(infra.Project{DefaultDatabase: "db"})
	candidate.Tables["db_events"] = &infra.Table{
		Name: "events", Database: "db", Columns: []schema.Column{col("id")},
		OrderByFields: []string{"id"}, Engine: &schema.Engine{Kind: schema.EngineMergeTree}, LifeCycle: infra.FullyManaged,
	}
	client := fakeClient{tables: []LiveTable{
		{Name: "events", Database: "db", Columns: []schema.Column{col("id")}, OrderByFields: []string{"id"}, Engine: &schema.Engine{Kind: schema.EngineMergeTree}},
	}}

	report, err := Discrepancies(context.Background(), candidate, client, []string{"db"})
	if err != nil {
		t.Fatalf("Discrepancies: %v", err)
	}
	if len(report.MissingTables) != 0 || len(report.UnmappedTables) != 0 || len(report.MismatchedTables) != 0 {
		t.Fatalf("expected no discrepancies for a matching table, got %+v", report)
	}
}
