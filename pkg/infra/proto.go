package infra

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/foundrycore/foundry/pkg/schema"
)

// Wire field IDs for the binary form of Map, per §6.1: stable, append-
// only, optional on read. default_database is field 15, exactly as
// specified; the rest were assigned when this codec was introduced and
// must never be renumbered.
const (
	fieldDefaultDatabase      = 15
	fieldTables               = 1
	fieldTopics               = 2
	fieldSyncProcesses        = 3
	fieldAPIEndpoints         = 4
	fieldWebApps              = 5
	fieldWorkflows            = 6
	fieldMaterializedViews    = 7
	fieldSqlResources         = 8

	// Table sub-fields.
	tblID               = 1
	tblName             = 2
	tblDatabase         = 3
	tblColumns          = 4
	tblOrderByFields     = 5
	tblOrderByExpr       = 6
	tblEngine            = 7
	tblLifeCycle         = 8
	tblTableTTL          = 9
	tblPartitionBy       = 10
	tblEngineParamsHash  = 11
	tblVersion           = 12

	colName       = 1
	colTypeJSON   = 2
	colRequired   = 3
	colUnique     = 4
	colPrimaryKey = 5
	colDefault    = 6
	colComment    = 7
	colTTL        = 8
)

// MarshalBinary encodes the map as the tagged binary wire form of
// §6.1. JSON (via encoding/json on the exported fields) remains the
// compatibility fallback for callers that prefer it.
func (m *Map) MarshalBinary() ([]byte, error) {
	var b []byte
	if m.DefaultDatabase != "" {
		b = protowire.AppendTag(b, fieldDefaultDatabase, protowire.BytesType)
		b = protowire.AppendString(b, m.DefaultDatabase)
	}
	for _, id := range sortedKeys(m.Tables) {
		tb, err := marshalTable(m.Tables[id], m.DefaultDatabase)
		if err != nil {
			return nil, fmt.Errorf("marshal table %q: %w", id, err)
		}
		b = protowire.AppendTag(b, fieldTables, protowire.BytesType)
		b = protowire.AppendBytes(b, tb)
	}
	return b, nil
}

func marshalTable(t *Table, defaultDatabase string) ([]byte, error) {
	var b []byte
	b = appendStringField(b, tblID, t.ID(defaultDatabase))
	b = appendStringField(b, tblName, t.Name)
	b = appendStringField(b, tblDatabase, t.Database)
	for _, f := range t.OrderByFields {
		b = appendStringField(b, tblOrderByFields, f)
	}
	b = appendStringField(b, tblOrderByExpr, t.OrderByExpr)
	b = appendStringField(b, tblLifeCycle, string(t.LifeCycle))
	b = appendStringField(b, tblTableTTL, t.TableTTL)
	b = appendStringField(b, tblPartitionBy, t.PartitionBy)
	b = appendStringField(b, tblEngineParamsHash, t.EngineParamsHash)
	if t.Version != "" {
		b = appendStringField(b, tblVersion, t.Version)
	}
	if t.Engine != nil {
		eb, err := marshalEngine(t.Engine, t.Database)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, tblEngine, protowire.BytesType)
		b = protowire.AppendBytes(b, eb)
	}
	for _, c := range t.Columns {
		cb, err := marshalColumn(c)
		if err != nil {
			return nil, fmt.Errorf("marshal column %q: %w", c.Name, err)
		}
		b = protowire.AppendTag(b, tblColumns, protowire.BytesType)
		b = protowire.AppendBytes(b, cb)
	}
	return b, nil
}

func marshalColumn(c schema.Column) ([]byte, error) {
	var b []byte
	b = appendStringField(b, colName, c.Name)
	typeJSON, err := c.Type.MarshalJSON()
	if err != nil {
		return nil, err
	}
	b = appendStringField(b, colTypeJSON, string(typeJSON))
	b = appendBoolField(b, colRequired, c.Required)
	b = appendBoolField(b, colUnique, c.Unique)
	b = appendBoolField(b, colPrimaryKey, c.PrimaryKey)
	b = appendStringField(b, colDefault, c.Default)
	b = appendStringField(b, colComment, c.Comment)
	b = appendStringField(b, colTTL, c.TTL)
	return b, nil
}

// marshalEngine encodes Engine as its canonical SQL-fragment string
// (field 1) plus its stable hash (field 2): the wire form carries
// enough to detect drift without re-deriving settings parsing on every
// peer, matching the non-alterable-encoding rule used for hashing.
func marshalEngine(e *schema.Engine, database string) ([]byte, error) {
	var b []byte
	b = appendStringField(b, 1, e.RenderSQL())
	b = appendStringField(b, 2, e.Hash(database))
	return b, nil
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func sortedKeys(m map[string]*Table) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return keys
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// UnmarshalTableIDs is a lightweight reader used by compatibility
// tooling that only needs to know which table ids a serialized map
// contains, without fully decoding columns/engines — e.g. a `foundry
// check --write-infra-map` consumer that diffs ids across versions.
// Unknown field numbers (future additions per §6.1) are skipped, not
// rejected.
func UnmarshalTableIDs(data []byte) ([]string, error) {
	var ids []string
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("invalid wire tag")
		}
		data = data[n:]
		switch {
		case num == fieldTables && typ == protowire.BytesType:
			tb, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("invalid table bytes")
			}
			data = data[n:]
			id, err := readTableID(tb)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("invalid field value for field %d", num)
			}
			data = data[n:]
		}
	}
	return ids, nil
}

// UnmarshalBinary decodes the tagged binary form written by
// MarshalBinary back into a Map. Unknown field numbers (future
// additions per §6.1) are skipped, not rejected, so older readers
// tolerate newer writers.
func (m *Map) UnmarshalBinary(data []byte) error {
	*m = *EmptyFromProject(Project{})
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("invalid wire tag")
		}
		data = data[n:]
		switch {
		case num == fieldDefaultDatabase && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("invalid default_database bytes")
			}
			data = data[n:]
			m.DefaultDatabase = s
		case num == fieldTables && typ == protowire.BytesType:
			tb, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("invalid table bytes")
			}
			data = data[n:]
			t, err := unmarshalTable(tb)
			if err != nil {
				return fmt.Errorf("unmarshal table: %w", err)
			}
			m.Tables[t.ID(m.DefaultDatabase)] = t
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("invalid field value for field %d", num)
			}
			data = data[n:]
		}
	}
	return nil
}

func unmarshalTable(data []byte) (*Table, error) {
	t := &Table{}
	var engineSQL, engineHash string
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("invalid wire tag in table")
		}
		data = data[n:]
		switch {
		case num == tblName && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("invalid name bytes")
			}
			data = data[n:]
			t.Name = s
		case num == tblDatabase && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("invalid database bytes")
			}
			data = data[n:]
			t.Database = s
		case num == tblOrderByFields && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("invalid order_by field bytes")
			}
			data = data[n:]
			t.OrderByFields = append(t.OrderByFields, s)
		case num == tblOrderByExpr && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("invalid order_by_expr bytes")
			}
			data = data[n:]
			t.OrderByExpr = s
		case num == tblLifeCycle && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("invalid life_cycle bytes")
			}
			data = data[n:]
			t.LifeCycle = LifeCycle(s)
		case num == tblTableTTL && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("invalid table_ttl bytes")
			}
			data = data[n:]
			t.TableTTL = s
		case num == tblPartitionBy && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("invalid partition_by bytes")
			}
			data = data[n:]
			t.PartitionBy = s
		case num == tblEngineParamsHash && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("invalid engine_params_hash bytes")
			}
			data = data[n:]
			t.EngineParamsHash = s
		case num == tblVersion && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("invalid version bytes")
			}
			data = data[n:]
			t.Version = s
		case num == tblEngine && typ == protowire.BytesType:
			eb, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("invalid engine bytes")
			}
			data = data[n:]
			var err error
			engineSQL, engineHash, err = unmarshalEngineFields(eb)
			if err != nil {
				return nil, err
			}
		case num == tblColumns && typ == protowire.BytesType:
			cb, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("invalid column bytes")
			}
			data = data[n:]
			c, err := unmarshalColumn(cb)
			if err != nil {
				return nil, err
			}
			t.Columns = append(t.Columns, c)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("invalid field value for field %d", num)
			}
			data = data[n:]
		}
	}
	if engineSQL != "" {
		eng, err := schema.TryParseEngine(engineSQL)
		if err != nil {
			return nil, fmt.Errorf("reparse engine %q: %w", engineSQL, err)
		}
		t.Engine = eng
	}
	_ = engineHash // carried on the wire for diagnostics only; authoritative hash is EngineParamsHash
	return t, nil
}

func unmarshalColumn(data []byte) (schema.Column, error) {
	var c schema.Column
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return c, fmt.Errorf("invalid wire tag in column")
		}
		data = data[n:]
		switch {
		case num == colName && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return c, fmt.Errorf("invalid column name bytes")
			}
			data = data[n:]
			c.Name = s
		case num == colTypeJSON && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return c, fmt.Errorf("invalid column type bytes")
			}
			data = data[n:]
			ct := &schema.ColumnType{}
			if err := ct.UnmarshalJSON([]byte(s)); err != nil {
				return c, fmt.Errorf("unmarshal column type: %w", err)
			}
			c.Type = ct
		case num == colRequired && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return c, fmt.Errorf("invalid required varint")
			}
			data = data[n:]
			c.Required = v != 0
		case num == colUnique && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return c, fmt.Errorf("invalid unique varint")
			}
			data = data[n:]
			c.Unique = v != 0
		case num == colPrimaryKey && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return c, fmt.Errorf("invalid primary_key varint")
			}
			data = data[n:]
			c.PrimaryKey = v != 0
		case num == colDefault && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return c, fmt.Errorf("invalid default bytes")
			}
			data = data[n:]
			c.Default = s
		case num == colComment && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return c, fmt.Errorf("invalid comment bytes")
			}
			data = data[n:]
			c.Comment = s
		case num == colTTL && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return c, fmt.Errorf("invalid ttl bytes")
			}
			data = data[n:]
			c.TTL = s
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return c, fmt.Errorf("invalid field value for field %d", num)
			}
			data = data[n:]
		}
	}
	return c, nil
}

func unmarshalEngineFields(data []byte) (sqlStr, hashStr string, err error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", "", fmt.Errorf("invalid wire tag in engine")
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return "", "", fmt.Errorf("invalid engine sql bytes")
			}
			data = data[n:]
			sqlStr = s
		case num == 2 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return "", "", fmt.Errorf("invalid engine hash bytes")
			}
			data = data[n:]
			hashStr = s
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return "", "", fmt.Errorf("invalid field value for field %d", num)
			}
			data = data[n:]
		}
	}
	return sqlStr, hashStr, nil
}

func readTableID(data []byte) (string, error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", fmt.Errorf("invalid wire tag in table")
		}
		data = data[n:]
		if num == tblID && typ == protowire.BytesType {
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return "", fmt.Errorf("invalid table id bytes")
			}
			return s, nil
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return "", fmt.Errorf("invalid field value for field %d", num)
		}
		data = data[n:]
	}
	return "", fmt.Errorf("table message has no id field")
}
