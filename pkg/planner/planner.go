// Package planner implements the Planner (F) of §4.4: the top-level
// plan_changes operation that ties the user-code loader, reality
// reconciler, and diff engine together into one InfraPlan.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/foundrycore/foundry/pkg/config"
	"github.com/foundrycore/foundry/pkg/ferr"
	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/reality"
	"github.com/foundrycore/foundry/pkg/statestore"
)

// prebuiltMapPath is the on-disk location the Planner prefers in
// production when present, per §4.4 step 1.
const prebuiltMapPath = ".moose/infrastructure_map.json"

// CredentialResolver re-resolves externally-bound credentials (e.g.
// S3) from environment at plan time; a prebuilt map or a loader
// snapshot must never carry baked-in credentials, per §4.4 step 1.
type CredentialResolver interface {
	ResolveCredentials(ctx context.Context, m *infra.Map) error
}

// Planner computes (current, plan) from a project's configuration,
// its typed user codebase (via loader), live reality (via olap), and
// persisted current state (via storage).
type Planner struct {
	Loader       infra.UserCodeLoader
	Storage      statestore.StateStorage
	Olap         reality.OlapClient
	Credentials  CredentialResolver
	ProjectRoot  string // directory .moose/infrastructure_map.json is resolved against
}

// New constructs a Planner. olap may be nil when the project disables
// the OLAP feature; reconciliation is then skipped entirely.
func New(loader infra.UserCodeLoader, storage statestore.StateStorage, olap reality.OlapClient, creds CredentialResolver, projectRoot string) *Planner {
	return &Planner{Loader: loader, Storage: storage, Olap: olap, Credentials: creds, ProjectRoot: projectRoot}
}

// PlanChanges implements plan_changes(storage, project) -> (current, plan)
// per §4.4's five steps.
func (p *Planner) PlanChanges(ctx context.Context, cfg *config.ProjectConfig) (current *infra.Map, plan *infra.InfraPlan, err error) {
	project := infra.Project{DefaultDatabase: cfg.DefaultDatabase, IsProduction: cfg.IsProduction}

	target, err := p.loadTarget(ctx, project)
	if err != nil {
		return nil, nil, err
	}

	current, err = p.Storage.LoadMap(ctx)
	if err != nil {
		return nil, nil, ferr.Wrap(ferr.KindDB, "load_current_map", "failed to load persisted state", err)
	}
	if current == nil {
		current = infra.EmptyFromProject(project)
	}

	reconciled := current
	if cfg.OlapEnabled {
		if p.Olap == nil {
			return nil, nil, ferr.New(ferr.KindPolicy, "reconcile", "olap_enabled is true but no OlapClient is configured")
		}
		reconciled, err = reality.Reconcile(ctx, current, project, p.Olap, cfg.Databases, target.AllTableIDs())
		if err != nil {
			return nil, nil, ferr.Wrap(ferr.KindRealityCheck, "reconcile", "reality reconciliation failed; aborting plan", err)
		}
	}

	ignoreOps := infra.IgnoreOps{
		TableTTL:       cfg.IgnoreOperations.TableTTL,
		ColumnTTL:      cfg.IgnoreOperations.ColumnTTL,
		PartitionBy:    cfg.IgnoreOperations.PartitionBy,
		ColumnComments: cfg.IgnoreOperations.ColumnComments,
	}
	changes := infra.DiffWithTableStrategy(reconciled, target, true, cfg.IsProduction, ignoreOps)

	infraPlan := &infra.InfraPlan{TargetInfraMap: target, Changes: changes}

	if err := ValidatePlan(infraPlan, cfg, usesOlap(target)); err != nil {
		return reconciled, nil, err
	}

	return reconciled, infraPlan, nil
}

// loadTarget implements §4.4 step 1: prefer the on-disk prebuilt map
// in production when present and credential-free, otherwise invoke
// the user-code loader. Either way, externally-bound credentials are
// re-resolved from environment afterward — never trusted from a
// persisted artifact.
func (p *Planner) loadTarget(ctx context.Context, project infra.Project) (*infra.Map, error) {
	var target *infra.Map

	if project.IsProduction {
		if m, ok, err := p.loadPrebuilt(); err != nil {
			return nil, ferr.Wrap(ferr.KindLoad, "load_prebuilt_map", "failed to read prebuilt infrastructure map", err)
		} else if ok {
			target = m
		}
	}

	if target == nil {
		if p.Loader == nil {
			return nil, ferr.New(ferr.KindLoad, "load_target_map", "no user-code loader configured and no prebuilt map present")
		}
		m, err := infra.LoadFromUserCode(p.Loader, project, true)
		if err != nil {
			return nil, ferr.Wrap(ferr.KindLoad, "load_target_map", "user-code loader failed", err)
		}
		target = m
	}

	if p.Credentials != nil {
		if err := p.Credentials.ResolveCredentials(ctx, target); err != nil {
			return nil, ferr.Wrap(ferr.KindLoad, "resolve_credentials", "failed to re-resolve externally-bound credentials", err)
		}
	}

	if err := target.Validate(); err != nil {
		return nil, ferr.Wrap(ferr.KindValidation, "validate_target_map", "target map failed structural validation", err)
	}
	return target, nil
}

func (p *Planner) loadPrebuilt() (*infra.Map, bool, error) {
	path := filepath.Join(p.ProjectRoot, prebuiltMapPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var m infra.Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", path, err)
	}
	return &m, true, nil
}

// usesOlap reports whether the target map contains any resource kind
// that the columnar-OLAP strategy manages (tables, materialized
// views, sql resources) — used by the OlapDisabledButRequired gate.
func usesOlap(target *infra.Map) bool {
	return len(target.Tables) > 0 || len(target.MaterializedViews) > 0 || len(target.SqlResources) > 0
}
