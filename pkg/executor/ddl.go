// Package executor implements the Migration Executor (G) of §4.5: the
// three apply modes (live, pre-planned YAML, remote plan/migration)
// that turn an InfraPlan into DDL statements against the columnar-OLAP
// database, plus the drift-detection and migration-lock machinery the
// YAML mode needs.
package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/schema"
)

// qualifiedName renders `database`.`name`, or just `name` when
// database is empty (default-database tables never qualify).
func qualifiedName(database, name string) string {
	if database == "" {
		return "`" + name + "`"
	}
	return "`" + database + "`.`" + name + "`"
}

// renderCreateTable renders CREATE TABLE IF NOT EXISTS with the full
// column list, engine clause, ORDER BY, PARTITION BY, SAMPLE BY,
// optional TTL, indexes and SETTINGS, per §4.5 step 3 Added.
func renderCreateTable(t *infra.Table) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", qualifiedName(t.Database, t.Name))

	cols := make([]string, 0, len(t.Columns)+len(t.Indexes))
	for _, c := range t.Columns {
		rendered, err := renderColumnDef(&c)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		cols = append(cols, "    "+rendered)
	}
	for _, idx := range t.Indexes {
		cols = append(cols, "    "+renderIndexDef(idx))
	}
	b.WriteString(strings.Join(cols, ",\n"))
	b.WriteString("\n)")

	fmt.Fprintf(&b, " ENGINE = %s", t.Engine.RenderSQL())
	if pk := t.PrimaryKeyColumns(); len(pk) > 0 {
		fmt.Fprintf(&b, " PRIMARY KEY %s", renderQuotedColumnList(pk))
	}
	fmt.Fprintf(&b, " ORDER BY %s", t.RenderOrderBy())
	if t.PartitionBy != "" {
		fmt.Fprintf(&b, " PARTITION BY %s", t.PartitionBy)
	}
	if t.SampleBy != "" {
		fmt.Fprintf(&b, " SAMPLE BY %s", t.SampleBy)
	}
	if t.TableTTL != "" {
		fmt.Fprintf(&b, " TTL %s", t.TableTTL)
	}
	if len(t.Engine.Settings) > 0 {
		fmt.Fprintf(&b, " SETTINGS %s", renderSettingsAssignments(t.Engine.Settings))
	}
	return b.String(), nil
}

// renderQuotedColumnList renders a parenthesized, backtick-quoted
// column list in the same style as infra.Table.RenderOrderBy.
func renderQuotedColumnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = "`" + c + "`"
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}

func renderColumnDef(c *schema.Column) (string, error) {
	rendered, err := schema.RenderEngineType(c.Type)
	if err != nil {
		return "", fmt.Errorf("column %s: %w", c.Name, err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "`%s` %s", c.Name, rendered)
	if c.Default != "" {
		fmt.Fprintf(&b, " DEFAULT %s", c.Default)
	}
	if c.TTL != "" {
		fmt.Fprintf(&b, " TTL %s", c.TTL)
	}
	if c.Comment != "" {
		fmt.Fprintf(&b, " COMMENT '%s'", escapeSingleQuotes(c.Comment))
	}
	return b.String(), nil
}

func renderIndexDef(idx infra.Index) string {
	return fmt.Sprintf("INDEX `%s` %s TYPE %s(%s) GRANULARITY %d",
		idx.Name, idx.Expression, idx.Type, strings.Join(idx.Arguments, ", "), idx.Granularity)
}

// renderColumnChange renders one ALTER TABLE clause for a single
// ColumnChange, per §4.5 step 3 Updated. Order-by and primary-key
// changes never reach here — the diff engine upgrades those to
// drop+recreate before the executor sees them.
func renderColumnChange(table string, cc infra.ColumnChange) (string, error) {
	alter := fmt.Sprintf("ALTER TABLE %s", table)
	switch cc.Kind {
	case infra.ColumnAdded:
		def, err := renderColumnDef(&cc.Column)
		if err != nil {
			return "", err
		}
		stmt := fmt.Sprintf("%s ADD COLUMN IF NOT EXISTS %s", alter, def)
		if cc.PositionAfter != "" {
			stmt += fmt.Sprintf(" AFTER `%s`", cc.PositionAfter)
		}
		return stmt, nil
	case infra.ColumnRemoved:
		return fmt.Sprintf("%s DROP COLUMN IF EXISTS `%s`", alter, cc.Before.Name), nil
	case infra.ColumnUpdated:
		def, err := renderColumnDef(cc.After)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s MODIFY COLUMN %s", alter, def), nil
	case infra.ColumnEnumMetadataOnly:
		return fmt.Sprintf("%s COMMENT COLUMN `%s` '%s'", alter, cc.Column.Name, escapeSingleQuotes(cc.Column.Comment)), nil
	default:
		return "", fmt.Errorf("unhandled column change kind %q", cc.Kind)
	}
}

// renderTableTTL renders MODIFY TTL or REMOVE TTL, per §4.5 step 3 TtlChanged.
func renderTableTTL(table, ttlAfter string) string {
	if ttlAfter == "" {
		return fmt.Sprintf("ALTER TABLE %s REMOVE TTL", table)
	}
	return fmt.Sprintf("ALTER TABLE %s MODIFY TTL %s", table, ttlAfter)
}

// renderSettingsChange renders MODIFY SETTING for added/changed keys
// and RESET SETTING for removed keys, per §4.5 step 3 SettingsChanged.
func renderSettingsChange(table string, before, after map[string]string) []string {
	var stmts []string
	toSet := map[string]string{}
	for k, v := range after {
		if before[k] != v {
			toSet[k] = v
		}
	}
	if len(toSet) > 0 {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s MODIFY SETTING %s", table, renderSettingsAssignments(toSet)))
	}
	var removed []string
	for k := range before {
		if _, ok := after[k]; !ok {
			removed = append(removed, k)
		}
	}
	if len(removed) > 0 {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s RESET SETTING %s", table, strings.Join(removed, ", ")))
	}
	return stmts
}

func renderSettingsAssignments(settings map[string]string) string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	// deterministic rendering: stable ordering regardless of map iteration
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s='%s'", k, escapeSingleQuotes(settings[k]))
	}
	return strings.Join(parts, ", ")
}

// renderDropTable renders DROP TABLE IF EXISTS, gated by life_cycle at
// the caller (§4.5 step 3 Removed).
func renderDropTable(database, name string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", qualifiedName(database, name))
}

// renderCreateMaterializedView renders CREATE MATERIALIZED VIEW for
// either shape; RefreshConfig != nil selects the Refreshable form.
func renderCreateMaterializedView(mv *infra.MaterializedView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE MATERIALIZED VIEW IF NOT EXISTS %s", qualifiedName(mv.Database, mv.Name))
	if mv.RefreshConfig != nil {
		fmt.Fprintf(&b, " REFRESH %s", renderRefreshInterval(mv.RefreshConfig.Interval))
		if mv.RefreshConfig.Offset != 0 {
			fmt.Fprintf(&b, " OFFSET %d SECOND", mv.RefreshConfig.Offset)
		}
		if mv.RefreshConfig.Randomize {
			b.WriteString(" RANDOMIZE FOR 10 SECOND")
		}
		if mv.RefreshConfig.Append {
			b.WriteString(" APPEND")
		}
	}
	fmt.Fprintf(&b, " TO %s", qualifiedName(mv.TargetDatabase, mv.TargetTable))
	fmt.Fprintf(&b, " AS %s", mv.SelectSQL)
	return b.String()
}

func renderRefreshInterval(ri infra.RefreshInterval) string {
	if ri.IsAfter {
		return fmt.Sprintf("AFTER %d SECOND", ri.After)
	}
	return fmt.Sprintf("EVERY %d SECOND", ri.Every)
}

// renderInitialPopulation renders the initial-population INSERT for a
// newly created Incremental MV, per §4.5 step 4.
func renderInitialPopulation(mv *infra.MaterializedView) string {
	return fmt.Sprintf("INSERT INTO %s %s", qualifiedName(mv.TargetDatabase, mv.TargetTable), mv.SelectSQL)
}

func renderDropMaterializedView(mv *infra.MaterializedView) string {
	return fmt.Sprintf("DROP VIEW IF EXISTS %s", qualifiedName(mv.Database, mv.Name))
}

func escapeSingleQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
