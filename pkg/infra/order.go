package infra

import "sort"

// orderInfraChanges applies the ordering rules of §4.2 "Ordering of
// emitted changes": drops before adds for non-data-holding resources,
// adds before removes for tables, and a topological pass over the
// dependent materialized-view / sql-resource layer using target's
// lineage edges (tables are always leaves). Levels are built with
// Kahn's algorithm, the same leveling approach used for execution
// graphs elsewhere in this codebase; ties within a level are broken by
// stable id for deterministic plans.
func orderInfraChanges(changes *InfraChanges, target *Map) {
	orderTableChanges(changes)
	orderViewChanges(changes)
	orderDependentChanges(changes, target)
}

// orderTableChanges puts Added/Updated/TtlChanged/SettingsChanged
// ahead of Removed, so a renamed-in-place table's replacement exists
// before its predecessor is dropped wherever both appear in one plan.
// Ties broken by id.
func orderTableChanges(changes *InfraChanges) {
	sort.SliceStable(changes.Tables, func(i, j int) bool {
		ri, rj := changes.Tables[i].Kind == TableRemoved, changes.Tables[j].Kind == TableRemoved
		if ri != rj {
			return !ri // non-removed first
		}
		return changes.Tables[i].ID < changes.Tables[j].ID
	})
}

// orderViewChanges puts Removed ahead of Added/Updated for the
// non-data-holding resource kinds (topics, sync processes, api
// endpoints, web apps, workflows): these have no reconciliation state
// to preserve, so dropping stale ones first avoids transient name
// collisions. Ties broken by id.
func orderViewChanges(changes *InfraChanges) {
	sort.SliceStable(changes.Views, func(i, j int) bool {
		ri, rj := changes.Views[i].Kind == ViewRemoved, changes.Views[j].Kind == ViewRemoved
		if ri != rj {
			return ri // removed first
		}
		return changes.Views[i].ID < changes.Views[j].ID
	})
}

// DependencyRanks computes the Kahn's-algorithm execution level of
// every MaterializedView and SqlResource change in changes, using
// target's lineage edges (tables as leaves). Exported so callers that
// render the dependency order for inspection (§4.2's ordering rules,
// visualized the way the teacher visualized its execution DAG) don't
// need to duplicate the leveling pass orderDependentChanges performs
// internally.
func DependencyRanks(changes *InfraChanges, target *Map) map[string]int {
	rank := map[string]int{}
	adj := map[string][]string{}
	inDegree := map[string]int{}

	nodes := map[string]bool{}
	for _, c := range changes.MaterializedViews {
		nodes[c.ID] = true
	}
	for _, c := range changes.SqlResources {
		nodes[c.ID] = true
	}
	for id := range nodes {
		inDegree[id] = 0
	}
	for _, e := range target.LineageEdges() {
		if !nodes[e.From] || !nodes[e.To] {
			continue // table leaves and unrelated resources aren't ranked nodes
		}
		adj[e.From] = append(adj[e.From], e.To)
		inDegree[e.To]++
	}

	var level []string
	for id := range nodes {
		if inDegree[id] == 0 {
			level = append(level, id)
		}
	}
	sort.Strings(level)

	levelNum := 0
	processed := 0
	for len(level) > 0 {
		for _, id := range level {
			rank[id] = levelNum
		}
		processed += len(level)
		var next []string
		for _, id := range level {
			for _, dep := range adj[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		sort.Strings(next)
		level = next
		levelNum++
	}
	if processed != len(nodes) {
		// A cycle here was already rejected by Map.Validate on the
		// target map; any node left unranked sorts last by id instead
		// of panicking.
		for id := range nodes {
			if _, ok := rank[id]; !ok {
				rank[id] = levelNum
			}
		}
	}

	return rank
}

// orderDependentChanges topologically sorts MaterializedView and
// SqlResource changes using the target map's lineage edges (tables as
// leaves, materialized views ordered additionally by depends_on),
// so a dependent's change is never emitted before the change feeding
// it. Within a level, ties are broken by stable id.
func orderDependentChanges(changes *InfraChanges, target *Map) {
	rank := DependencyRanks(changes, target)

	sort.SliceStable(changes.MaterializedViews, func(i, j int) bool {
		a, b := changes.MaterializedViews[i], changes.MaterializedViews[j]
		if rank[a.ID] != rank[b.ID] {
			return rank[a.ID] < rank[b.ID]
		}
		return a.ID < b.ID
	})
	sort.SliceStable(changes.SqlResources, func(i, j int) bool {
		a, b := changes.SqlResources[i], changes.SqlResources[j]
		if rank[a.ID] != rank[b.ID] {
			return rank[a.ID] < rank[b.ID]
		}
		return a.ID < b.ID
	})
}
