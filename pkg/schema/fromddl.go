package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseEngineNativeType parses the type string ClickHouse's own
// schema introspection reports (system.columns.type), the inverse of
// RenderEngineType for the subset reality reconciliation needs. Only
// the forms actually produced by the live database are accepted;
// anything unrecognized is a typed error so the caller can drop that
// column rather than fabricate a type.
func ParseEngineNativeType(s string) (*ColumnType, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "Nullable("):
		inner, err := ParseEngineNativeType(strings.TrimSuffix(strings.TrimPrefix(s, "Nullable("), ")"))
		if err != nil {
			return nil, err
		}
		return &ColumnType{Kind: KindNullable, Inner: inner}, nil
	case strings.HasPrefix(s, "Array("):
		inner, err := ParseEngineNativeType(strings.TrimSuffix(strings.TrimPrefix(s, "Array("), ")"))
		if err != nil {
			return nil, err
		}
		elemNullable := inner.Kind == KindNullable
		if elemNullable {
			inner = inner.Inner
		}
		return &ColumnType{Kind: KindArray, Element: inner, ElementNullable: elemNullable}, nil
	case strings.HasPrefix(s, "FixedString("):
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(s, "FixedString("), ")"))
		if err != nil {
			return nil, fmt.Errorf("bad FixedString length: %w", err)
		}
		return &ColumnType{Kind: KindFixedString, Length: n}, nil
	case strings.HasPrefix(s, "DateTime64("):
		body := strings.TrimSuffix(strings.TrimPrefix(s, "DateTime64("), ")")
		parts := strings.SplitN(body, ",", 2)
		p, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("bad DateTime64 precision: %w", err)
		}
		return &ColumnType{Kind: KindDateTime, DateTimePrecision: &p}, nil
	case s == "DateTime":
		return &ColumnType{Kind: KindDateTime}, nil
	case strings.HasPrefix(s, "Decimal("):
		body := strings.TrimSuffix(strings.TrimPrefix(s, "Decimal("), ")")
		parts := strings.Split(body, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("bad Decimal params: %q", s)
		}
		p, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, err
		}
		sc, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, err
		}
		return &ColumnType{Kind: KindDecimal, DecimalPrecision: p, DecimalScale: sc}, nil
	case strings.HasPrefix(s, "Enum8(") || strings.HasPrefix(s, "Enum16("):
		return parseEnumNative(s)
	case strings.HasPrefix(s, "Map("):
		body := strings.TrimSuffix(strings.TrimPrefix(s, "Map("), ")")
		parts := splitTopLevelParenComma(body)
		if len(parts) != 2 {
			return nil, fmt.Errorf("bad Map params: %q", s)
		}
		k, err := ParseEngineNativeType(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, err
		}
		v, err := ParseEngineNativeType(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, err
		}
		return &ColumnType{Kind: KindMap, KeyType: k, ValueType: v}, nil
	}

	switch s {
	case "String":
		return &ColumnType{Kind: KindString}, nil
	case "Bool", "Boolean":
		return &ColumnType{Kind: KindBoolean}, nil
	case "UUID":
		return &ColumnType{Kind: KindUuid}, nil
	case "Date":
		return &ColumnType{Kind: KindDate}, nil
	case "Date16", "Date32":
		return &ColumnType{Kind: KindDate16}, nil
	case "IPv4":
		return &ColumnType{Kind: KindIpV4}, nil
	case "IPv6":
		return &ColumnType{Kind: KindIpV6}, nil
	case "Int128", "Int256", "UInt128", "UInt256":
		return &ColumnType{Kind: KindBigInt}, nil
	case "JSON":
		return &ColumnType{Kind: KindJson}, nil
	case "Point":
		return &ColumnType{Kind: KindPoint}, nil
	case "Ring":
		return &ColumnType{Kind: KindRing}, nil
	case "LineString":
		return &ColumnType{Kind: KindLineString}, nil
	case "MultiLineString":
		return &ColumnType{Kind: KindMultiLineString}, nil
	case "Polygon":
		return &ColumnType{Kind: KindPolygon}, nil
	case "MultiPolygon":
		return &ColumnType{Kind: KindMultiPolygon}, nil
	}

	if w, signed, ok := parseIntWidth(s); ok {
		return &ColumnType{Kind: KindInt, IntWidth: w, IntSigned: signed}, nil
	}
	if w, ok := parseFloatWidth(s); ok {
		return &ColumnType{Kind: KindFloat, FloatWidth: w}, nil
	}

	return nil, fmt.Errorf("unrecognized live column type %q", s)
}

func parseIntWidth(s string) (width int, signed bool, ok bool) {
	switch {
	case strings.HasPrefix(s, "UInt"):
		n, err := strconv.Atoi(strings.TrimPrefix(s, "UInt"))
		if err != nil {
			return 0, false, false
		}
		return n, false, true
	case strings.HasPrefix(s, "Int"):
		n, err := strconv.Atoi(strings.TrimPrefix(s, "Int"))
		if err != nil {
			return 0, false, false
		}
		return n, true, true
	}
	return 0, false, false
}

func parseFloatWidth(s string) (int, bool) {
	if !strings.HasPrefix(s, "Float") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "Float"))
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseEnumNative(s string) (*ColumnType, error) {
	open := strings.Index(s, "(")
	body := strings.TrimSuffix(s[open+1:], ")")
	var members []EnumMember
	for _, part := range splitTopLevelParenComma(body) {
		part = strings.TrimSpace(part)
		eq := strings.LastIndex(part, "=")
		if eq < 0 {
			return nil, fmt.Errorf("bad enum member %q", part)
		}
		name := strings.TrimSpace(part[:eq])
		name = strings.Trim(name, "'")
		val, err := strconv.Atoi(strings.TrimSpace(part[eq+1:]))
		if err != nil {
			return nil, fmt.Errorf("bad enum value %q: %w", part, err)
		}
		members = append(members, EnumMember{Name: name, IntValue: val, IsString: false})
	}
	return &ColumnType{Kind: KindEnum, EnumMembers: members}, nil
}

// splitTopLevelParenComma splits on commas not nested inside parentheses,
// needed for compound live types like Map(String, Array(UInt8)).
func splitTopLevelParenComma(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
