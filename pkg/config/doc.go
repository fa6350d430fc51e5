// Package config loads and validates project-level configuration: the
// default database, declared clusters/databases, diff-normalization
// flags, the active StateStorage backend, and the admin surface's
// token — the settings that govern how the Planner, Diff Engine, and
// Migration Executor behave.
//
// Parsing a user's typed codebase (resources, stream functions,
// workflows) into an infrastructure map is explicitly out of scope;
// that belongs to the UserCodeLoader seam in pkg/infra. This package
// only evaluates the CUE "project" block.
//
// # Usage
//
//	loader := config.NewLoader()
//	cfg, err := loader.Load(ctx, []string{"foundry.cue"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # CUE shape
//
//	project: {
//	    default_database: "analytics"
//	    is_production:    true
//	    olap_enabled:     true
//	    clusters: ["default"]
//	    backend: {
//	        type:       "coordination"
//	        redis_addr: "localhost:6379"
//	    }
//	}
package config
