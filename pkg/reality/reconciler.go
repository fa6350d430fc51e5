package reality

import (
	"context"
	"fmt"

	"github.com/foundrycore/foundry/pkg/infra"
)

// Reconcile implements §4.3: it aligns candidate (the persisted
// desired-state snapshot) with what client reports the live database
// actually holds, scoped to databases, and returns a new map — the
// candidate is never mutated.
//
// targetTableIDs is the code-derived target's table id set: a live
// table not present in candidate is only adopted into the reconciled
// map if its id is in this whitelist, so tables the DB holds but the
// new code never declared are not silently adopted.
func Reconcile(ctx context.Context, candidate *infra.Map, project infra.Project, client OlapClient, databases []string, targetTableIDs []string) (*infra.Map, error) {
	reconciled := candidate.Clone()

	if reconciled.DefaultDatabase == "" {
		reconciled.DefaultDatabase = project.DefaultDatabase
	}
	rekeyLegacyIDs(reconciled)

	live, err := client.ListTables(ctx, databases)
	if err != nil {
		return nil, fmt.Errorf("reality check: %w", err)
	}

	whitelist := map[string]bool{}
	for _, id := range targetTableIDs {
		whitelist[id] = true
	}

	liveByID := map[string]LiveTable{}
	for _, lt := range live {
		id := liveTableID(lt, reconciled.DefaultDatabase)
		liveByID[id] = lt
	}

	for id := range reconciled.Tables {
		if _, onLive := liveByID[id]; !onLive {
			// Missing: in candidate, not in DB — drop so a subsequent
			// plan recreates it if code still wants it.
			delete(reconciled.Tables, id)
		}
	}

	for id, lt := range liveByID {
		candTbl, existed := reconciled.Tables[id]
		if !existed {
			if !whitelist[id] {
				continue // unmapped, not whitelisted — never auto-adopted
			}
			reconciled.Tables[id] = liveTableToTable(lt)
			continue
		}
		reconciled.Tables[id] = mergeMismatch(candTbl, liveTableToTable(lt))
	}

	return reconciled, nil
}

// rekeyLegacyIDs detects any table stored under an id that doesn't
// match its own id(default_database) — the pre-database-prefix
// scheme — and rebuilds the sub-map under the correct id.
func rekeyLegacyIDs(m *infra.Map) {
	rekeyed := map[string]*infra.Table{}
	changed := false
	for id, t := range m.Tables {
		correct := t.ID(m.DefaultDatabase)
		if correct != id {
			changed = true
			rekeyed[correct] = t
			continue
		}
		rekeyed[id] = t
	}
	if changed {
		m.Tables = rekeyed
	}
}

func liveTableID(lt LiveTable, defaultDatabase string) string {
	t := liveTableToTable(lt)
	return t.ID(defaultDatabase)
}

func liveTableToTable(lt LiveTable) *infra.Table {
	return &infra.Table{
		Name:          lt.Name,
		Database:      lt.Database,
		Columns:       lt.Columns,
		OrderByFields: lt.OrderByFields,
		Engine:        lt.Engine,
		TableTTL:      lt.TableTTL,
		PartitionBy:   lt.PartitionBy,
		LifeCycle:     infra.FullyManaged,
	}
}

// mergeMismatch implements the §4.3 step-3 "Mismatched" rule: the
// reconciled record is the DB's reality except life_cycle comes from
// the candidate (the target map's life_cycle isn't visible at this
// layer — callers that have it should overwrite it after Reconcile
// returns) and engine_params_hash is always kept from the candidate,
// since live introspection redacts credential-bearing engine
// parameters as "[HIDDEN]", which would otherwise mismatch on every
// run.
func mergeMismatch(candidate, live *infra.Table) *infra.Table {
	merged := *live
	merged.LifeCycle = candidate.LifeCycle
	merged.EngineParamsHash = candidate.EngineParamsHash
	merged.Version = candidate.Version
	merged.SourcePrimitive = candidate.SourcePrimitive
	merged.Metadata = candidate.Metadata
	merged.ClusterName = candidate.ClusterName
	merged.Indexes = candidate.Indexes
	merged.TableSettings = candidate.TableSettings

	// TTL-only / settings-only mismatch: apply reality's TTL/settings
	// to the reconciled table in place — already the case since
	// merged starts from live, so no further action is needed beyond
	// preserving candidate's non-structural bookkeeping above.
	return &merged
}
