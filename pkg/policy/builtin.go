package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		tableNamingPolicy(),
		requiredMetadataPolicy(),
		deletionProtectionPolicy(),
		productionDestructiveOpsPolicy(),
		replicatedEngineClusterPolicy(),
	}
}

// tableNamingPolicy enforces table naming conventions.
func tableNamingPolicy() Policy {
	return Policy{
		Name:        "table-naming",
		Description: "Enforces table naming conventions (lowercase, alphanumeric, underscores only)",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package foundry.policies.naming

import rego.v1

deny contains violation if {
	input.table
	table := input.table

	not table.name
	violation := {
		"message": sprintf("table %s must have a name", [table.id]),
		"severity": "error",
		"resource": table.id,
	}
}

deny contains violation if {
	input.table
	table := input.table
	name := table.name

	lower(name) != name
	violation := {
		"message": sprintf("table name '%s' must be lowercase", [name]),
		"severity": "error",
		"resource": table.id,
	}
}

deny contains violation if {
	input.table
	table := input.table
	name := table.name

	not regex.match("^[a-z0-9_]+$", name)
	violation := {
		"message": sprintf("table name '%s' must contain only lowercase letters, numbers, and underscores", [name]),
		"severity": "error",
		"resource": table.id,
	}
}

deny contains violation if {
	input.table
	table := input.table
	name := table.name

	count(name) < 3
	violation := {
		"message": sprintf("table name '%s' must be at least 3 characters long", [name]),
		"severity": "error",
		"resource": table.id,
	}
}

deny contains violation if {
	input.table
	table := input.table
	name := table.name

	count(name) > 63
	violation := {
		"message": sprintf("table name '%s' must not exceed 63 characters", [name]),
		"severity": "error",
		"resource": table.id,
	}
}`,
	}
}

// requiredMetadataPolicy ensures critical metadata keys are present.
func requiredMetadataPolicy() Policy {
	return Policy{
		Name:        "required-metadata",
		Description: "Ensures critical metadata (owner, team) is present on all tables",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"metadata", "ownership"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package foundry.policies.metadata

import rego.v1

required_keys := ["owner", "team"]

deny contains violation if {
	input.table
	table := input.table

	not table.metadata
	violation := {
		"message": sprintf("table %s must have metadata", [table.id]),
		"severity": "error",
		"resource": table.id,
	}
}

deny contains violation if {
	input.table
	table := input.table
	some key in required_keys

	not table.metadata[key]
	violation := {
		"message": sprintf("table %s missing required metadata key: %s", [table.id, key]),
		"severity": "error",
		"resource": table.id,
	}
}

deny contains violation if {
	input.table
	table := input.table
	some key in required_keys

	table.metadata[key] == ""
	violation := {
		"message": sprintf("table %s has empty required metadata key: %s", [table.id, key]),
		"severity": "error",
		"resource": table.id,
	}
}`,
	}
}

// deletionProtectionPolicy prevents removal of deletion-protected tables.
func deletionProtectionPolicy() Policy {
	return Policy{
		Name:        "deletion-protection",
		Description: "Blocks changes that remove a table marked deletion-protected",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"lifecycle", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package foundry.policies.lifecycle

import rego.v1

deny contains violation if {
	input.change
	input.table
	change := input.change
	table := input.table

	change.kind == "Removed"
	table.life_cycle == "DeletionProtected"

	violation := {
		"message": sprintf("table %s is deletion-protected and cannot be removed", [table.id]),
		"severity": "critical",
		"resource": table.id,
	}
}`,
	}
}

// productionDestructiveOpsPolicy prevents destructive operations in
// production without an explicit dry run.
func productionDestructiveOpsPolicy() Policy {
	return Policy{
		Name:        "production-destructive-ops",
		Description: "Prevents destructive table changes in production without a dry run",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"operations", "safety", "production"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package foundry.policies.operations

import rego.v1

destructive_kinds := ["Removed"]

deny contains violation if {
	input.change
	input.context
	change := input.change
	context := input.context

	some kind in destructive_kinds
	change.kind == kind

	context.environment == "production"
	not context.dry_run

	violation := {
		"message": sprintf("destructive change '%s' on %s is not allowed in production without a dry run", [change.kind, change.id]),
		"severity": "critical",
		"resource": change.id,
	}
}`,
	}
}

// replicatedEngineClusterPolicy enforces that replicated/distributed
// engines are always attached to a cluster.
func replicatedEngineClusterPolicy() Policy {
	return Policy{
		Name:        "replicated-engine-cluster",
		Description: "Requires a cluster name on tables using a replicated engine",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"engines", "topology"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package foundry.policies.engines

import rego.v1

deny contains violation if {
	input.table
	table := input.table

	contains(table.engine_kind, "Replicated")
	not table.cluster_name

	violation := {
		"message": sprintf("table %s uses a replicated engine but has no cluster_name", [table.id]),
		"severity": "warning",
		"resource": table.id,
	}
}`,
	}
}
