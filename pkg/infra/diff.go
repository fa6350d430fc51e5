package infra

// DiffWithTableStrategy is the diff kernel of §4.2: current is the
// reconciled "reality" map, target is the code-derived desired map.
// respectLifeCycle, isProd and ignoreOps tune the algorithm exactly as
// described in §4.2 steps 1-6.
func DiffWithTableStrategy(current, target *Map, respectLifeCycle, isProd bool, ignoreOps IgnoreOps) InfraChanges {
	var changes InfraChanges

	changes.Tables = diffTables(current, target, respectLifeCycle, ignoreOps)
	changes.MaterializedViews = diffMaterializedViews(current, target, respectLifeCycle)
	changes.Views = diffViews(current, target, respectLifeCycle)
	changes.SqlResources = diffSqlResources(current, target, respectLifeCycle)

	orderInfraChanges(&changes, target)
	return changes
}

func diffTables(current, target *Map, respectLifeCycle bool, ignoreOps IgnoreOps) []TableChange {
	var out []TableChange
	seen := map[string]bool{}

	for id, t := range target.Tables {
		seen[id] = true
		cur, existed := current.Tables[id]
		if !existed {
			out = append(out, TableChange{Kind: TableAdded, ID: id, Table: t})
			continue
		}
		if respectLifeCycle && cur.LifeCycle == ExternallyManaged {
			continue // reads reality only; never mutated
		}
		nb := normalizeTable(cur, ignoreOps)
		na := normalizeTable(t, ignoreOps)
		strat := StrategyFor(t)
		change := strat.DiffTableUpdate(id, nb, na)
		switch change.Kind {
		case TableRemoved:
			// drop+recreate: surface the *real* (unnormalized) before,
			// and emit the matching Added with the real after.
			out = append(out, TableChange{Kind: TableRemoved, ID: id, Before: cur})
			out = append(out, TableChange{Kind: TableAdded, ID: id, Table: t})
		case TableSettingsChanged:
			change.Before, change.Table = nil, nil
			out = append(out, change)
		case TableTtlChanged:
			out = append(out, change)
		case TableUpdated:
			if len(change.ColumnChanges) == 0 {
				continue // no actual difference after normalization
			}
			change.UpdatedBefore, change.UpdatedAfter = cur, t
			out = append(out, change)
		}
	}

	for id, cur := range current.Tables {
		if seen[id] {
			continue
		}
		if respectLifeCycle {
			switch cur.LifeCycle {
			case DeletionProtected, ExternallyManaged:
				continue
			}
		}
		out = append(out, TableChange{Kind: TableRemoved, ID: id, Before: cur})
	}
	return out
}

func diffMaterializedViews(current, target *Map, respectLifeCycle bool) []MaterializedViewChange {
	var out []MaterializedViewChange
	seen := map[string]bool{}
	for id, v := range target.MaterializedViews {
		seen[id] = true
		cur, existed := current.MaterializedViews[id]
		if !existed {
			out = append(out, MaterializedViewChange{Kind: MVAdded, ID: id, View: v})
			continue
		}
		if !materializedViewsEqual(cur, v) {
			out = append(out, MaterializedViewChange{Kind: MVUpdated, ID: id, View: v, Before: cur})
		}
	}
	for id, cur := range current.MaterializedViews {
		if seen[id] {
			continue
		}
		out = append(out, MaterializedViewChange{Kind: MVRemoved, ID: id, Before: cur})
	}
	return out
}

func materializedViewsEqual(a, b *MaterializedView) bool {
	if a.SelectSQL != b.SelectSQL || a.TargetTable != b.TargetTable || a.TargetDatabase != b.TargetDatabase {
		return false
	}
	return equalStrings(a.SourceTables, b.SourceTables)
}

// diffViews covers the resource kinds that only need add/remove/update
// by equality: topics, sync processes, api endpoints, web apps, and
// workflows.
func diffViews(current, target *Map, respectLifeCycle bool) []ViewChange {
	var out []ViewChange

	topicSeen := map[string]bool{}
	for id := range target.Topics {
		topicSeen[id] = true
		if _, ok := current.Topics[id]; !ok {
			out = append(out, ViewChange{Kind: ViewAdded, Resource: "topic", ID: id})
		}
	}
	for id := range current.Topics {
		if !topicSeen[id] {
			out = append(out, ViewChange{Kind: ViewRemoved, Resource: "topic", ID: id})
		}
	}

	syncSeen := map[string]bool{}
	for id, sp := range target.SyncProcesses {
		syncSeen[id] = true
		cur, ok := current.SyncProcesses[id]
		if !ok {
			out = append(out, ViewChange{Kind: ViewAdded, Resource: "sync_process", ID: id})
			continue
		}
		if cur.SourceTopic != sp.SourceTopic || cur.TargetTable != sp.TargetTable {
			out = append(out, ViewChange{Kind: ViewUpdated, Resource: "sync_process", ID: id})
		}
	}
	for id := range current.SyncProcesses {
		if !syncSeen[id] {
			out = append(out, ViewChange{Kind: ViewRemoved, Resource: "sync_process", ID: id})
		}
	}

	apiSeen := map[string]bool{}
	for id, a := range target.APIEndpoints {
		apiSeen[id] = true
		cur, ok := current.APIEndpoints[id]
		if !ok {
			out = append(out, ViewChange{Kind: ViewAdded, Resource: "api", ID: id})
			continue
		}
		if cur.Path != a.Path || cur.Method != a.Method {
			out = append(out, ViewChange{Kind: ViewUpdated, Resource: "api", ID: id})
		}
	}
	for id := range current.APIEndpoints {
		if !apiSeen[id] {
			out = append(out, ViewChange{Kind: ViewRemoved, Resource: "api", ID: id})
		}
	}

	webSeen := map[string]bool{}
	for id := range target.WebApps {
		webSeen[id] = true
		if _, ok := current.WebApps[id]; !ok {
			out = append(out, ViewChange{Kind: ViewAdded, Resource: "webapp", ID: id})
		}
	}
	for id := range current.WebApps {
		if !webSeen[id] {
			out = append(out, ViewChange{Kind: ViewRemoved, Resource: "webapp", ID: id})
		}
	}

	wfSeen := map[string]bool{}
	for id, w := range target.Workflows {
		wfSeen[id] = true
		cur, ok := current.Workflows[id]
		if !ok {
			out = append(out, ViewChange{Kind: ViewAdded, Resource: "workflow", ID: id})
			continue
		}
		if cur.Schedule != w.Schedule {
			out = append(out, ViewChange{Kind: ViewUpdated, Resource: "workflow", ID: id})
		}
	}
	for id := range current.Workflows {
		if !wfSeen[id] {
			out = append(out, ViewChange{Kind: ViewRemoved, Resource: "workflow", ID: id})
		}
	}

	return out
}

func diffSqlResources(current, target *Map, respectLifeCycle bool) []SqlResourceChange {
	var out []SqlResourceChange
	seen := map[string]bool{}
	for id, r := range target.SqlResources {
		seen[id] = true
		cur, existed := current.SqlResources[id]
		if !existed {
			out = append(out, SqlResourceChange{Kind: SqlResourceAdded, ID: id, Resource: r})
			continue
		}
		if !equalStrings(cur.SetupSQL, r.SetupSQL) || !equalStrings(cur.TeardownSQL, r.TeardownSQL) {
			out = append(out, SqlResourceChange{Kind: SqlResourceUpdated, ID: id, Resource: r})
		}
	}
	for id, cur := range current.SqlResources {
		if seen[id] {
			continue
		}
		out = append(out, SqlResourceChange{Kind: SqlResourceRemoved, ID: id, Resource: cur})
	}
	return out
}
