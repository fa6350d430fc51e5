package infra

import (
	"fmt"
	"sort"
	"strings"
)

// ChangesToDOT renders changes as a Graphviz DOT graph grouped by
// dependency level, in the same shape as the teacher's execution-graph
// visualizer: one subgraph cluster per level, nodes colored by
// operation kind, edges following target's lineage. Useful for
// debugging plan ordering (§4.2) the way the teacher used its DAG
// visualizer to debug execution ordering.
func ChangesToDOT(changes *InfraChanges, target *Map) string {
	var sb strings.Builder
	sb.WriteString("digraph InfraChanges {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	sb.WriteString("  subgraph cluster_tables {\n")
	sb.WriteString("    label=\"tables\";\n")
	sb.WriteString("    style=dashed;\n")
	for _, c := range changes.Tables {
		sb.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\\ntable\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
			c.ID, c.ID, tableChangeColor(c.Kind)))
	}
	sb.WriteString("  }\n\n")

	rank := DependencyRanks(changes, target)
	levels := map[int][]string{}
	maxLevel := -1
	for _, c := range changes.MaterializedViews {
		levels[rank[c.ID]] = append(levels[rank[c.ID]], c.ID)
		if rank[c.ID] > maxLevel {
			maxLevel = rank[c.ID]
		}
	}
	for _, c := range changes.SqlResources {
		levels[rank[c.ID]] = append(levels[rank[c.ID]], c.ID)
		if rank[c.ID] > maxLevel {
			maxLevel = rank[c.ID]
		}
	}

	mvColor := map[string]MaterializedViewChangeKind{}
	for _, c := range changes.MaterializedViews {
		mvColor[c.ID] = c.Kind
	}
	sqlColor := map[string]SqlResourceChangeKind{}
	for _, c := range changes.SqlResources {
		sqlColor[c.ID] = c.Kind
	}

	for level := 0; level <= maxLevel; level++ {
		ids := levels[level]
		if len(ids) == 0 {
			continue
		}
		sort.Strings(ids)
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, id := range ids {
			color := "white"
			if kind, ok := mvColor[id]; ok {
				color = mvChangeColor(kind)
			} else if kind, ok := sqlColor[id]; ok {
				color = sqlChangeColor(kind)
			}
			sb.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n", id, id, color))
		}
		sb.WriteString("  }\n\n")
	}

	nodes := map[string]bool{}
	for _, c := range changes.Tables {
		nodes[c.ID] = true
	}
	for _, c := range changes.MaterializedViews {
		nodes[c.ID] = true
	}
	for _, c := range changes.SqlResources {
		nodes[c.ID] = true
	}
	for _, e := range target.LineageEdges() {
		if !nodes[e.From] || !nodes[e.To] {
			continue
		}
		sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\";\n", e.From, e.To))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func tableChangeColor(kind TableChangeKind) string {
	switch kind {
	case TableAdded:
		return "lightgreen"
	case TableRemoved:
		return "lightcoral"
	case TableUpdated, TableTtlChanged, TableSettingsChanged:
		return "lightblue"
	default:
		return "white"
	}
}

func mvChangeColor(kind MaterializedViewChangeKind) string {
	switch kind {
	case MVAdded:
		return "lightgreen"
	case MVRemoved:
		return "lightcoral"
	default:
		return "lightblue"
	}
}

func sqlChangeColor(kind SqlResourceChangeKind) string {
	switch kind {
	case SqlResourceAdded:
		return "lightgreen"
	case SqlResourceRemoved:
		return "lightcoral"
	default:
		return "lightblue"
	}
}
