// Package policy provides Open Policy Agent (OPA) integration for this
// module's infrastructure reconciliation pipeline.
//
// This package implements policy enforcement over tables and planned
// table changes using the Rego policy language. It includes built-in
// policies for common governance requirements and supports custom
// policy loading.
//
// # Architecture
//
// The policy system consists of four main components:
//
//  1. Engine - Compiles and evaluates Rego policies
//  2. Loader - Loads policies from files, directories, and bundles
//  3. Types - Data structures for policies, violations, and results
//  4. Built-in Policies - Pre-defined policies for common requirements
//
// # Usage
//
// Creating a policy engine:
//
//	logger := zerolog.New(os.Stdout)
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Evaluating a table:
//
//	result, err := engine.EvaluateTable(ctx, table, cfg.DefaultDatabase, &policy.PolicyContext{
//	    Environment: "production",
//	    Operation:   "plan",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !result.Allowed {
//	    for _, violation := range result.Violations {
//	        fmt.Printf("Policy %s violated: %s\n", violation.Policy, violation.Message)
//	    }
//	}
//
// Loading custom policies:
//
//	paths := []string{
//	    "/etc/foundry/policies",
//	    "/opt/policies/custom.rego",
//	}
//
//	err = engine.LoadPolicies(ctx, paths)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Built-in Policies
//
// The following policies are included by default:
//
//  1. table-naming - Enforces table naming conventions (lowercase, alphanumeric, underscores)
//  2. required-metadata - Ensures critical metadata (owner, team) is present on all tables
//  3. deletion-protection - Blocks changes that remove a deletion-protected table
//  4. production-destructive-ops - Prevents destructive table changes in production outside a dry run
//  5. replicated-engine-cluster - Requires a cluster name on tables using a replicated engine
//
// # Custom Policies
//
// Custom policies can be written in Rego and loaded from files:
//
//	package custom.policies.backup
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.table
//	    table := input.table
//
//	    # Require a retention tag on production tables
//	    input.context.environment == "production"
//	    not table.metadata.retention
//
//	    violation := {
//	        "message": "Production tables must declare a retention policy",
//	        "severity": "error",
//	        "resource": table.id,
//	    }
//	}
//
// # Policy Evaluation Points
//
// The engine exposes three entry points:
//
//  1. Evaluate - Evaluates every table of an infrastructure map
//  2. EvaluatePlan - Evaluates a plan one table change at a time
//  3. EvaluateTable - Evaluates a single table in isolation
//
// No other package of this module calls them; planning and execution
// run without policy evaluation.
//
// # Severity Levels
//
// Violations have four severity levels:
//
//  - info: Informational messages
//  - warning: Issues that should be reviewed but don't block operations
//  - error: Issues that block operations
//  - critical: Severe issues requiring immediate attention
//
// # Hot Reload
//
// The loader supports watching policy files for changes and reloading automatically:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return engine.LoadPolicies(ctx, paths)
//	})
//
// # Performance
//
// Policies are compiled when loaded, and the compiled policies are cached at
// both the loader and engine levels. Each evaluation builds a fresh rego query
// over the enabled policies; the PreparedEvalQuery made at compile time is not
// used to evaluate.
//
// # Context Injection
//
// Policy evaluations can include context information:
//
//  - User: Who initiated the operation
//  - Environment: Target environment (production, staging, etc.)
//  - Operation: Type of operation (plan, validate, apply)
//  - Timestamp: When the evaluation occurred
//  - Dry run: Whether this is a dry-run evaluation
//
// This context allows policies to make environment-aware decisions.
package policy
