package policy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/schema"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func table(name string, metadata map[string]string) *infra.Table {
	return &infra.Table{
		Name:     name,
		Database: "analytics",
		Columns: []schema.Column{
			{Name: "id", Type: &schema.ColumnType{Kind: schema.KindString}, Required: true},
		},
		OrderByFields: []string{"id"},
		Engine:        &schema.Engine{Kind: schema.EngineMergeTree},
		Metadata:      metadata,
	}
}

func TestNewEngine(t *testing.T) {
	eng, err := NewEngine(testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	policies := eng.ListPolicies()
	if len(policies) == 0 {
		t.Fatal("no built-in policies loaded")
	}

	expected := []string{
		"table-naming",
		"required-metadata",
		"deletion-protection",
		"production-destructive-ops",
		"replicated-engine-cluster",
	}
	for _, name := range expected {
		found := false
		for _, p := range policies {
			if p.Name == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected built-in policy not found: %s", name)
		}
	}
}

func TestEvaluateTable_NamingPolicy(t *testing.T) {
	eng, err := NewEngine(testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ownerMeta := map[string]string{"owner": "platform", "team": "data"}

	tests := []struct {
		name          string
		tbl           *infra.Table
		expectAllowed bool
	}{
		{"valid name", table("events_raw", ownerMeta), true},
		{"uppercase in name", table("Invalid_Name", ownerMeta), false},
		{"hyphen in name", table("invalid-name", ownerMeta), false},
		{"too short", table("ab", ownerMeta), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.EvaluateTable(context.Background(), tt.tbl, "analytics", nil)
			if err != nil {
				t.Fatalf("EvaluateTable: %v", err)
			}
			if result.Allowed != tt.expectAllowed {
				t.Errorf("expected allowed=%v, got %v (violations: %+v)", tt.expectAllowed, result.Allowed, result.Violations)
			}
		})
	}
}

func TestEvaluateTable_RequiredMetadata(t *testing.T) {
	eng, err := NewEngine(testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	tests := []struct {
		name          string
		metadata      map[string]string
		expectAllowed bool
	}{
		{"all required keys present", map[string]string{"owner": "platform", "team": "data"}, true},
		{"missing team", map[string]string{"owner": "platform"}, false},
		{"missing owner", map[string]string{"team": "data"}, false},
		{"nil metadata", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.EvaluateTable(context.Background(), table("events_raw", tt.metadata), "analytics", nil)
			if err != nil {
				t.Fatalf("EvaluateTable: %v", err)
			}
			if result.Allowed != tt.expectAllowed {
				t.Errorf("expected allowed=%v, got %v (violations: %+v)", tt.expectAllowed, result.Allowed, result.Violations)
			}
		})
	}
}

func TestEvaluatePlan_DeletionProtection(t *testing.T) {
	eng, err := NewEngine(testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	protected := table("events_raw", map[string]string{"owner": "platform", "team": "data"})
	protected.LifeCycle = infra.DeletionProtected

	plan := &infra.InfraPlan{
		TargetInfraMap: infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"}),
		Changes: infra.InfraChanges{
			Tables: []infra.TableChange{
				{Kind: infra.TableRemoved, ID: protected.ID("analytics"), Before: protected},
			},
		},
	}

	result, err := eng.EvaluatePlan(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if result.Allowed {
		t.Error("expected removal of a deletion-protected table to be blocked")
	}
}

func TestEvaluatePlan_ProductionDestructiveOps(t *testing.T) {
	eng, err := NewEngine(testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	tbl := table("events_raw", map[string]string{"owner": "platform", "team": "data"})
	plan := &infra.InfraPlan{
		TargetInfraMap: infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"}),
		Changes: infra.InfraChanges{
			Tables: []infra.TableChange{
				{Kind: infra.TableRemoved, ID: tbl.ID("analytics"), Before: tbl},
			},
		},
	}

	prodCtx := &PolicyContext{Environment: "production", DryRun: false}
	result, err := eng.EvaluatePlan(context.Background(), plan, prodCtx)
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if result.Allowed {
		t.Error("expected a destructive production change without dry-run to be blocked")
	}

	dryRunCtx := &PolicyContext{Environment: "production", DryRun: true}
	result, err = eng.EvaluatePlan(context.Background(), plan, dryRunCtx)
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	for _, v := range result.Violations {
		if v.Policy == "production-destructive-ops" {
			t.Error("expected dry-run evaluation to not trigger the production-destructive-ops policy")
		}
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng, err := NewEngine(testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	const policyName = "table-naming"
	if err := eng.DisablePolicy(policyName); err != nil {
		t.Fatalf("DisablePolicy: %v", err)
	}

	p, err := eng.GetPolicy(policyName)
	if err != nil {
		t.Fatalf("GetPolicy: %v", err)
	}
	if p.Enabled {
		t.Error("policy should be disabled")
	}

	result, err := eng.EvaluateTable(context.Background(), table("INVALID_NAME", map[string]string{"owner": "p", "team": "d"}), "analytics", nil)
	if err != nil {
		t.Fatalf("EvaluateTable: %v", err)
	}
	for _, v := range result.Violations {
		if v.Policy == policyName {
			t.Error("disabled policy should not generate violations")
		}
	}

	if err := eng.EnablePolicy(policyName); err != nil {
		t.Fatalf("EnablePolicy: %v", err)
	}
	p, err = eng.GetPolicy(policyName)
	if err != nil {
		t.Fatalf("GetPolicy: %v", err)
	}
	if !p.Enabled {
		t.Error("policy should be enabled")
	}
}

func TestReplicatedEngineClusterPolicy(t *testing.T) {
	eng, err := NewEngine(testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	tbl := table("events_raw", map[string]string{"owner": "p", "team": "d"})
	tbl.Engine = &schema.Engine{Kind: schema.EngineKind("ReplicatedMergeTree")}
	tbl.ClusterName = ""

	result, err := eng.EvaluateTable(context.Background(), tbl, "analytics", nil)
	if err != nil {
		t.Fatalf("EvaluateTable: %v", err)
	}
	found := false
	for _, v := range result.Violations {
		if v.Policy == "replicated-engine-cluster" {
			found = true
		}
	}
	if !found {
		t.Error("expected a replicated-engine-cluster violation when cluster_name is unset")
	}
}

func TestReloadPolicies(t *testing.T) {
	eng, err := NewEngine(testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	before := len(eng.ListPolicies())
	if err := eng.ReloadPolicies(context.Background()); err != nil {
		t.Fatalf("ReloadPolicies: %v", err)
	}
	after := len(eng.ListPolicies())
	if before != after {
		t.Errorf("expected %d policies after reload, got %d", before, after)
	}
}

func TestListPolicies(t *testing.T) {
	eng, err := NewEngine(testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	policies := eng.ListPolicies()
	if len(policies) == 0 {
		t.Fatal("no policies returned")
	}
	for _, p := range policies {
		if p.Name == "" {
			t.Error("policy has empty name")
		}
		if p.Rego == "" {
			t.Error("policy has empty rego code")
		}
		if p.CreatedAt.IsZero() {
			t.Error("policy has zero CreatedAt")
		}
	}
}

func TestEvaluate_AcrossMap(t *testing.T) {
	eng, err := NewEngine(testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	m := infra.EmptyFromProject(infra.Project{DefaultDatabase: "analytics"})
	valid := table("events_raw", map[string]string{"owner": "p", "team": "d"})
	invalid := table("Invalid-Name", map[string]string{"owner": "p", "team": "d"})
	m.Tables[valid.ID("analytics")] = valid
	m.Tables[invalid.ID("analytics")] = invalid

	result, err := eng.Evaluate(context.Background(), m, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Allowed {
		t.Error("expected the map evaluation to be rejected due to the naming violation")
	}

	foundNaming := false
	for _, v := range result.Violations {
		if v.Policy == "table-naming" {
			foundNaming = true
		}
	}
	if !foundNaming {
		t.Error("expected a table-naming violation")
	}
}
