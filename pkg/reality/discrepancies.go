package reality

import (
	"context"
	"fmt"

	"github.com/foundrycore/foundry/pkg/infra"
)

// InfraDiscrepancies is the read-only reality-check report of §4.3,
// served by GET /admin/reality-check. Unlike Reconcile, it never
// mutates or merges state — it only classifies the persisted map
// against what the live database currently holds.
type InfraDiscrepancies struct {
	// MissingTables are in the persisted map but absent from the live
	// database.
	MissingTables []string
	// UnmappedTables exist live but aren't known to the persisted map
	// under any id.
	UnmappedTables []string
	// MismatchedTables exist in both but differ structurally (engine,
	// columns, order-by, primary key, ttl, or settings). Partition-by
	// is not compared.
	MismatchedTables []string
}

// Discrepancies computes an InfraDiscrepancies report for candidate
// against the live database, scoped to databases. It is built on the
// same Diff Engine the planner uses (infra.DiffWithTableStrategy),
// treating the live database's tables as the diff's "current" side and
// candidate as its "target" side: an added table is one the map
// expects but the database doesn't have (missing), a removed table is
// one the database has but the map doesn't know (unmapped), and any
// other table-level change kind is a structural mismatch.
func Discrepancies(ctx context.Context, candidate *infra.Map, client OlapClient, databases []string) (*InfraDiscrepancies, error) {
	live, err := client.ListTables(ctx, databases)
	if err != nil {
		return nil, fmt.Errorf("reality check: %w", err)
	}

	liveMap := &infra.Map{DefaultDatabase: candidate.DefaultDatabase, Tables: map[string]*infra.Table{}}
	for _, lt := range live {
		t := liveTableToTable(lt)
		liveMap.Tables[t.ID(candidate.DefaultDatabase)] = t
	}

	changes := infra.DiffWithTableStrategy(liveMap, candidate, false, false, infra.IgnoreOps{})

	report := &InfraDiscrepancies{}
	seen := map[string]bool{}
	for _, tc := range changes.Tables {
		// A drop+recreate arrives as a Removed/Added pair for the same id.
		if seen[tc.ID] {
			continue
		}
		seen[tc.ID] = true
		_, inLive := liveMap.Tables[tc.ID]
		_, inCandidate := candidate.Tables[tc.ID]
		switch {
		case !inLive:
			report.MissingTables = append(report.MissingTables, tc.ID)
		case !inCandidate:
			report.UnmappedTables = append(report.UnmappedTables, tc.ID)
		default:
			report.MismatchedTables = append(report.MismatchedTables, tc.ID)
		}
	}
	return report, nil
}

// LiveTableID computes the stable id a live-introspected table would
// have under the id scheme of §3.3, for callers (the admin surface's
// integrate-changes handler) that need to match live tables up against
// a target map's ids.
func LiveTableID(lt LiveTable, defaultDatabase string) string {
	return liveTableID(lt, defaultDatabase)
}

// TableMatches reports whether live structurally matches candidate —
// the adoption check of §4.8's POST /admin/integrate-changes. It
// reuses the same table-level diff the planner runs, scoped to a
// single synthetic pair, rather than re-deriving field-by-field
// equality: any table-level change kind at all means a mismatch.
func TableMatches(candidate *infra.Table, live LiveTable) bool {
	liveMap := &infra.Map{Tables: map[string]*infra.Table{"x": liveTableToTable(live)}}
	targetMap := &infra.Map{Tables: map[string]*infra.Table{"x": candidate}}
	changes := infra.DiffWithTableStrategy(liveMap, targetMap, false, false, infra.IgnoreOps{})
	return len(changes.Tables) == 0
}
