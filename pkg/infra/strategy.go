package infra

import (
	"reflect"

	"github.com/foundrycore/foundry/pkg/schema"
)

// TableDiffStrategy is the small capability surface of §9: one method,
// one concrete implementation (columnar-OLAP) plus a default
// pass-through for engines not yet modeled.
type TableDiffStrategy interface {
	// DiffTableUpdate compares before/after (already normalized by
	// ignore_ops) and returns the TableChange to emit for this pair.
	// before and after share the same id.
	DiffTableUpdate(id string, before, after *Table) TableChange
}

// ColumnarOLAPStrategy implements §4.2 step 5 for the one modeled
// engine family (MergeTree variants + S3Queue).
type ColumnarOLAPStrategy struct{}

func (ColumnarOLAPStrategy) DiffTableUpdate(id string, before, after *Table) TableChange {
	orderChange := diffOrderBy(before, after)
	pkChanged := !equalStrings(before.PrimaryKeyColumns(), after.PrimaryKeyColumns())
	engineVariantChanged := before.Engine.Kind != after.Engine.Kind
	hashChanged := before.EngineParamsHash != after.EngineParamsHash

	if orderChange != nil || pkChanged || engineVariantChanged || hashChanged {
		return TableChange{
			Kind:   TableRemoved,
			ID:     id,
			Before: before,
		}
	}

	if onlyS3QueueSettingsDiffer(before, after) {
		return TableChange{
			Kind:           TableSettingsChanged,
			ID:             id,
			SettingsBefore: before.Engine.Settings,
			SettingsAfter:  after.Engine.Settings,
		}
	}

	if before.TableTTL != after.TableTTL {
		return TableChange{
			Kind:      TableTtlChanged,
			ID:        id,
			TTLBefore: before.TableTTL,
			TTLAfter:  after.TableTTL,
		}
	}

	colChanges := diffColumns(before.Columns, after.Columns)
	return TableChange{
		Kind:          TableUpdated,
		ID:            id,
		ColumnChanges: colChanges,
		UpdatedBefore: before,
		UpdatedAfter:  after,
	}
}

// PassthroughStrategy is the default for engines not yet modeled: any
// structural difference is a full drop+recreate, since nothing is
// known about what such an engine can ALTER.
type PassthroughStrategy struct{}

func (PassthroughStrategy) DiffTableUpdate(id string, before, after *Table) TableChange {
	if reflect.DeepEqual(before, after) {
		return TableChange{Kind: TableUpdated, ID: id, UpdatedBefore: before, UpdatedAfter: after}
	}
	return TableChange{Kind: TableRemoved, ID: id, Before: before}
}

// StrategyFor selects the diff strategy for a table's engine, per §9:
// one implementation for the columnar-OLAP family, a pass-through
// default otherwise.
func StrategyFor(t *Table) TableDiffStrategy {
	switch t.Engine.Kind {
	case schema.EngineMergeTree, schema.EngineReplacingMergeTree, schema.EngineAggregatingMergeTree, schema.EngineSummingMergeTree, schema.EngineS3Queue:
		return ColumnarOLAPStrategy{}
	default:
		return PassthroughStrategy{}
	}
}

func diffOrderBy(before, after *Table) *OrderByChange {
	if equalStrings(before.OrderByFields, after.OrderByFields) && before.OrderByExpr == after.OrderByExpr {
		return nil
	}
	return &OrderByChange{Before: before.OrderByFields, After: after.OrderByFields}
}

func onlyS3QueueSettingsDiffer(before, after *Table) bool {
	if before.Engine.Kind != schema.EngineS3Queue || after.Engine.Kind != schema.EngineS3Queue {
		return false
	}
	if before.Engine.S3Path != after.Engine.S3Path || before.Engine.Format != after.Engine.Format {
		return false
	}
	return !reflect.DeepEqual(before.Engine.Settings, after.Engine.Settings)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// diffColumns compares column lists positionally (by name, treating a
// rename as delete+add unless externally flagged — no external rename
// flag is modeled here, so every name change is delete+add), per §4.2
// step 5. Enum-comment normalization (step 6) is applied before the
// type-change check.
func diffColumns(before, after []schema.Column) []ColumnChange {
	beforeByName := map[string]schema.Column{}
	for _, c := range before {
		beforeByName[c.Name] = c
	}
	afterByName := map[string]schema.Column{}
	for _, c := range after {
		afterByName[c.Name] = c
	}

	var changes []ColumnChange
	var prevName string
	for i, c := range after {
		if i > 0 {
			prevName = after[i-1].Name
		} else {
			prevName = ""
		}
		prior, existed := beforeByName[c.Name]
		if !existed {
			changes = append(changes, ColumnChange{
				Kind:          ColumnAdded,
				Column:        c,
				PositionAfter: prevName,
			})
			continue
		}
		if columnsEqual(prior, c) {
			continue
		}
		if schema.EnumEquivalent(prior.Type, c.Type) {
			changes = append(changes, ColumnChange{
				Kind:   ColumnEnumMetadataOnly,
				Column: c,
			})
			continue
		}
		b, a := prior, c
		changes = append(changes, ColumnChange{
			Kind:   ColumnUpdated,
			Before: &b,
			After:  &a,
		})
	}
	for _, c := range before {
		if _, stillExists := afterByName[c.Name]; !stillExists {
			changes = append(changes, ColumnChange{Kind: ColumnRemoved, Before: &c})
		}
	}
	return changes
}

func columnsEqual(a, b schema.Column) bool {
	aj, _ := a.Type.MarshalJSON()
	bj, _ := b.Type.MarshalJSON()
	return string(aj) == string(bj) &&
		a.Required == b.Required &&
		a.Unique == b.Unique &&
		a.PrimaryKey == b.PrimaryKey &&
		a.Default == b.Default &&
		a.Comment == b.Comment &&
		a.TTL == b.TTL
}
