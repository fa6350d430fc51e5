// Package schema implements the database-agnostic typed column model:
// the closed ColumnType enumeration, Column records, and the Engine
// enumeration, together with their wire codec and engine-aware
// rendering.
package schema

import "fmt"

// ColumnKind discriminates the closed ColumnType enumeration. A
// ColumnType is always one concrete Kind; fields not relevant to that
// kind are left zero.
type ColumnKind string

const (
	KindString         ColumnKind = "String"
	KindFixedString    ColumnKind = "FixedString"
	KindBoolean        ColumnKind = "Boolean"
	KindBytes          ColumnKind = "Bytes"
	KindUuid           ColumnKind = "Uuid"
	KindDate           ColumnKind = "Date"
	KindDate16         ColumnKind = "Date16"
	KindDateTime       ColumnKind = "DateTime"
	KindIpV4           ColumnKind = "IpV4"
	KindIpV6           ColumnKind = "IpV6"
	KindInt            ColumnKind = "Int"
	KindFloat          ColumnKind = "Float"
	KindBigInt         ColumnKind = "BigInt"
	KindDecimal        ColumnKind = "Decimal"
	KindArray          ColumnKind = "Array"
	KindNullable       ColumnKind = "Nullable"
	KindMap            ColumnKind = "Map"
	KindNamedTuple     ColumnKind = "NamedTuple"
	KindNested         ColumnKind = "Nested"
	KindEnum           ColumnKind = "Enum"
	KindJson           ColumnKind = "Json"
	KindPoint          ColumnKind = "Point"
	KindRing           ColumnKind = "Ring"
	KindLineString     ColumnKind = "LineString"
	KindMultiLineString ColumnKind = "MultiLineString"
	KindPolygon        ColumnKind = "Polygon"
	KindMultiPolygon   ColumnKind = "MultiPolygon"
)

// NamedTupleField is one ordered (name, type) pair of a NamedTuple.
type NamedTupleField struct {
	Name string
	Type *ColumnType
}

// EnumMember is one (name, value) pair of an Enum. Value is either a
// string (TypeScript-style string enum) or an int in [0, 255] (the
// database's integer-mapped form).
type EnumMember struct {
	Name        string
	StringValue string
	IntValue    int
	IsString    bool
}

// JsonOptions carries the tunables of the Json column type.
type JsonOptions struct {
	MaxDynamicPaths *int
	MaxDynamicTypes *int
	TypedPaths      []NamedTupleField // ordered path -> type
	SkipPaths       []string
	SkipRegexps     []string
}

// ColumnType is the closed, tagged-union representation of §3.1. Only
// the fields relevant to Kind are populated; all others are the zero
// value. Dispatch on Kind is a single switch, never a type assertion
// chain, per the "polymorphism over resource kinds" design note.
type ColumnType struct {
	Kind ColumnKind

	// FixedString
	Length int

	// Int
	IntWidth  int // 8, 16, 32, 64, 128, 256
	IntSigned bool

	// Float
	FloatWidth int // 32, 64

	// Decimal
	DecimalPrecision int // 1..76
	DecimalScale     int // 0..precision

	// DateTime
	DateTimePrecision *int

	// Array
	Element         *ColumnType
	ElementNullable bool

	// Nullable
	Inner *ColumnType

	// Map
	KeyType   *ColumnType
	ValueType *ColumnType

	// NamedTuple
	Fields []NamedTupleField

	// Nested
	NestedName    string
	NestedColumns []Column
	NestedJWT     bool

	// Enum
	EnumName    string
	EnumMembers []EnumMember

	// Json
	Json JsonOptions
}

// Validate enforces the closed-enumeration constraints of §3.1:
// Nullable(Nullable(_)) is forbidden, array elements are required or
// explicitly element-nullable (never Nullable-wrapped), and enum
// member integer values fit in a byte.
func (t *ColumnType) Validate() error {
	switch t.Kind {
	case KindNullable:
		if t.Inner == nil {
			return fmt.Errorf("nullable: missing inner type")
		}
		if t.Inner.Kind == KindNullable {
			return fmt.Errorf("nullable(nullable(_)) is forbidden")
		}
		return t.Inner.Validate()
	case KindArray:
		if t.Element == nil {
			return fmt.Errorf("array: missing element type")
		}
		if t.Element.Kind == KindNullable {
			return fmt.Errorf("array element must not be wrapped in Nullable; use element_nullable")
		}
		return t.Element.Validate()
	case KindEnum:
		for _, m := range t.EnumMembers {
			if !m.IsString && (m.IntValue < 0 || m.IntValue > 255) {
				return fmt.Errorf("enum %s: member %s value %d does not fit in u8", t.EnumName, m.Name, m.IntValue)
			}
		}
		return nil
	case KindDecimal:
		if t.DecimalPrecision < 1 || t.DecimalPrecision > 76 {
			return fmt.Errorf("decimal precision %d out of range 1..76", t.DecimalPrecision)
		}
		if t.DecimalScale < 0 || t.DecimalScale > t.DecimalPrecision {
			return fmt.Errorf("decimal scale %d out of range 0..%d", t.DecimalScale, t.DecimalPrecision)
		}
		return nil
	case KindInt:
		switch t.IntWidth {
		case 8, 16, 32, 64, 128, 256:
		default:
			return fmt.Errorf("int width %d is not one of 8,16,32,64,128,256", t.IntWidth)
		}
		return nil
	case KindMap:
		if t.KeyType == nil || t.ValueType == nil {
			return fmt.Errorf("map: missing key or value type")
		}
		if err := t.KeyType.Validate(); err != nil {
			return err
		}
		return t.ValueType.Validate()
	case KindNamedTuple:
		for _, f := range t.Fields {
			if f.Type == nil {
				return fmt.Errorf("named tuple field %s: missing type", f.Name)
			}
			if err := f.Type.Validate(); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

// rowLevelNullableAllowed reports whether a column of this type is
// permitted to be Nullable at the row level. Arrays and Nested types
// are always required=true per §3.2.
func (t *ColumnType) rowLevelNullableAllowed() bool {
	switch t.Kind {
	case KindArray, KindNested:
		return false
	default:
		return true
	}
}
