package infra

import "github.com/foundrycore/foundry/pkg/schema"

// IgnoreOps is the set of equivalence-widening flags of §4.2 step 3.
// Normalization strips the listed fields from both sides before
// equality; the original values are still used when an emitted change
// is finally executed.
type IgnoreOps struct {
	TableTTL       bool
	ColumnTTL      bool
	PartitionBy    bool
	ColumnComments bool
}

// normalizeTable returns a shallow copy of t with ignored fields
// zeroed, for equality comparison only — the returned value is never
// executed, only diffed against another normalized value.
func normalizeTable(t *Table, ops IgnoreOps) *Table {
	n := *t
	if ops.TableTTL {
		n.TableTTL = ""
	}
	if ops.PartitionBy {
		n.PartitionBy = ""
	}
	n.Columns = make([]schema.Column, len(t.Columns))
	for i, c := range t.Columns {
		nc := c
		if ops.ColumnTTL {
			nc.TTL = ""
		}
		if ops.ColumnComments {
			nc.Comment = ""
		}
		n.Columns[i] = nc
	}
	return &n
}
