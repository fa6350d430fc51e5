package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RenderEngineType renders a ColumnType as engine-native DDL
// (Nullable(X), Array(X), Enum('a'=1,...), Nested(f T...)). Bytes has
// no DB representation and is rejected with a typed error, per §4.1.
func RenderEngineType(t *ColumnType) (string, error) {
	switch t.Kind {
	case KindBytes:
		return "", fmt.Errorf("column type Bytes cannot be rendered to engine DDL")
	case KindString:
		return "String", nil
	case KindFixedString:
		return fmt.Sprintf("FixedString(%d)", t.Length), nil
	case KindBoolean:
		return "Bool", nil
	case KindUuid:
		return "UUID", nil
	case KindDate:
		return "Date", nil
	case KindDate16:
		return "Date16", nil
	case KindDateTime:
		if t.DateTimePrecision != nil {
			return fmt.Sprintf("DateTime64(%d)", *t.DateTimePrecision), nil
		}
		return "DateTime", nil
	case KindIpV4:
		return "IPv4", nil
	case KindIpV6:
		return "IPv6", nil
	case KindInt:
		sign := "Int"
		if !t.IntSigned {
			sign = "UInt"
		}
		return fmt.Sprintf("%s%d", sign, t.IntWidth), nil
	case KindFloat:
		return fmt.Sprintf("Float%d", t.FloatWidth), nil
	case KindBigInt:
		return "Int128", nil
	case KindDecimal:
		return fmt.Sprintf("Decimal(%d, %d)", t.DecimalPrecision, t.DecimalScale), nil
	case KindArray:
		inner, err := RenderEngineType(t.Element)
		if err != nil {
			return "", err
		}
		if t.ElementNullable {
			inner = fmt.Sprintf("Nullable(%s)", inner)
		}
		return fmt.Sprintf("Array(%s)", inner), nil
	case KindNullable:
		inner, err := RenderEngineType(t.Inner)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Nullable(%s)", inner), nil
	case KindMap:
		k, err := RenderEngineType(t.KeyType)
		if err != nil {
			return "", err
		}
		v, err := RenderEngineType(t.ValueType)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Map(%s, %s)", k, v), nil
	case KindNamedTuple:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			inner, err := RenderEngineType(f.Type)
			if err != nil {
				return "", err
			}
			parts[i] = fmt.Sprintf("%s %s", f.Name, inner)
		}
		return fmt.Sprintf("Tuple(%s)", strings.Join(parts, ", ")), nil
	case KindNested:
		parts := make([]string, len(t.NestedColumns))
		for i, c := range t.NestedColumns {
			inner, err := RenderEngineType(c.Type)
			if err != nil {
				return "", err
			}
			parts[i] = fmt.Sprintf("%s %s", c.Name, inner)
		}
		return fmt.Sprintf("Nested(%s)", strings.Join(parts, ", ")), nil
	case KindEnum:
		width := "Enum8"
		parts := make([]string, len(t.EnumMembers))
		for i, m := range t.EnumMembers {
			v := m.StringValue
			if !m.IsString {
				v = formatU8(m.IntValue)
				parts[i] = fmt.Sprintf("'%s' = %s", m.Name, v)
			} else {
				parts[i] = fmt.Sprintf("'%s'", m.Name)
			}
			_ = v
		}
		return fmt.Sprintf("%s(%s)", width, strings.Join(parts, ", ")), nil
	case KindJson:
		return "JSON", nil
	case KindPoint:
		return "Point", nil
	case KindRing:
		return "Ring", nil
	case KindLineString:
		return "LineString", nil
	case KindMultiLineString:
		return "MultiLineString", nil
	case KindPolygon:
		return "Polygon", nil
	case KindMultiPolygon:
		return "MultiPolygon", nil
	default:
		return "", fmt.Errorf("unrenderable column type kind %q", t.Kind)
	}
}

// MarshalJSON renders the on-the-wire shape of a ColumnType. Scalars marshal
// as bare strings; compound types as tagged objects, per §4.1.
// Implementations accept both snake_case and camelCase keys on input
// and always emit camelCase on output.
func (t *ColumnType) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case KindString, KindBoolean, KindBytes, KindUuid, KindDate, KindDate16, KindIpV4, KindIpV6, KindBigInt,
		KindPoint, KindRing, KindLineString, KindMultiLineString, KindPolygon, KindMultiPolygon:
		return json.Marshal(string(t.Kind))
	case KindFixedString:
		return json.Marshal(fmt.Sprintf("FixedString(%d)", t.Length))
	case KindDateTime:
		if t.DateTimePrecision != nil {
			return json.Marshal(fmt.Sprintf("DateTime(%d)", *t.DateTimePrecision))
		}
		return json.Marshal("DateTime")
	case KindInt:
		return json.Marshal(fmt.Sprintf("Int(%d,%t)", t.IntWidth, t.IntSigned))
	case KindFloat:
		return json.Marshal(fmt.Sprintf("Float(%d)", t.FloatWidth))
	case KindDecimal:
		return json.Marshal(fmt.Sprintf("Decimal(%d,%d)", t.DecimalPrecision, t.DecimalScale))
	case KindArray:
		return json.Marshal(map[string]interface{}{
			"elementType":     t.Element,
			"elementNullable": t.ElementNullable,
		})
	case KindNullable:
		return json.Marshal(map[string]interface{}{"nullable": t.Inner})
	case KindMap:
		return json.Marshal(map[string]interface{}{
			"keyType":   t.KeyType,
			"valueType": t.ValueType,
		})
	case KindNamedTuple:
		fields := make([][2]interface{}, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = [2]interface{}{f.Name, f.Type}
		}
		return json.Marshal(map[string]interface{}{"fields": fields})
	case KindNested:
		return json.Marshal(map[string]interface{}{
			"name":    t.NestedName,
			"columns": t.NestedColumns,
			"jwt":     t.NestedJWT,
		})
	case KindEnum:
		return json.Marshal(map[string]interface{}{
			"name":   t.EnumName,
			"values": t.EnumMembers,
		})
	case KindJson:
		out := map[string]interface{}{}
		if t.Json.MaxDynamicPaths != nil {
			out["maxDynamicPaths"] = *t.Json.MaxDynamicPaths
		}
		if t.Json.MaxDynamicTypes != nil {
			out["maxDynamicTypes"] = *t.Json.MaxDynamicTypes
		}
		if len(t.Json.TypedPaths) > 0 {
			tp := make([][2]interface{}, len(t.Json.TypedPaths))
			for i, f := range t.Json.TypedPaths {
				tp[i] = [2]interface{}{f.Name, f.Type}
			}
			out["typedPaths"] = tp
		}
		if len(t.Json.SkipPaths) > 0 {
			out["skipPaths"] = t.Json.SkipPaths
		}
		if len(t.Json.SkipRegexps) > 0 {
			out["skipRegexps"] = t.Json.SkipRegexps
		}
		return json.Marshal(out)
	default:
		return nil, fmt.Errorf("cannot marshal column type kind %q", t.Kind)
	}
}

// UnmarshalJSON accepts both the bare-string scalar form and the
// tagged-object compound form, tolerating snake_case or camelCase keys.
func (t *ColumnType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return parseScalarWire(s, t)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("column type: not a string or object: %w", err)
	}
	get := func(keys ...string) json.RawMessage {
		for _, k := range keys {
			if v, ok := obj[k]; ok {
				return v
			}
		}
		return nil
	}

	switch {
	case get("nullable") != nil:
		inner := &ColumnType{}
		if err := json.Unmarshal(get("nullable"), inner); err != nil {
			return err
		}
		*t = ColumnType{Kind: KindNullable, Inner: inner}
		return nil
	case get("elementType", "element_type") != nil:
		elem := &ColumnType{}
		if err := json.Unmarshal(get("elementType", "element_type"), elem); err != nil {
			return err
		}
		var nullable bool
		if raw := get("elementNullable", "element_nullable"); raw != nil {
			_ = json.Unmarshal(raw, &nullable)
		}
		*t = ColumnType{Kind: KindArray, Element: elem, ElementNullable: nullable}
		return nil
	case get("keyType", "key_type") != nil:
		k, v := &ColumnType{}, &ColumnType{}
		if err := json.Unmarshal(get("keyType", "key_type"), k); err != nil {
			return err
		}
		if err := json.Unmarshal(get("valueType", "value_type"), v); err != nil {
			return err
		}
		*t = ColumnType{Kind: KindMap, KeyType: k, ValueType: v}
		return nil
	case get("fields") != nil:
		var raw [][]json.RawMessage
		if err := json.Unmarshal(get("fields"), &raw); err != nil {
			return err
		}
		fields := make([]NamedTupleField, len(raw))
		for i, pair := range raw {
			var name string
			if err := json.Unmarshal(pair[0], &name); err != nil {
				return err
			}
			ft := &ColumnType{}
			if err := json.Unmarshal(pair[1], ft); err != nil {
				return err
			}
			fields[i] = NamedTupleField{Name: name, Type: ft}
		}
		*t = ColumnType{Kind: KindNamedTuple, Fields: fields}
		return nil
	case get("columns") != nil:
		var name string
		if raw := get("name"); raw != nil {
			_ = json.Unmarshal(raw, &name)
		}
		var cols []Column
		if err := json.Unmarshal(get("columns"), &cols); err != nil {
			return err
		}
		var jwt bool
		if raw := get("jwt"); raw != nil {
			_ = json.Unmarshal(raw, &jwt)
		}
		*t = ColumnType{Kind: KindNested, NestedName: name, NestedColumns: cols, NestedJWT: jwt}
		return nil
	case get("values") != nil:
		var name string
		if raw := get("name"); raw != nil {
			_ = json.Unmarshal(raw, &name)
		}
		var members []EnumMember
		if err := json.Unmarshal(get("values"), &members); err != nil {
			return err
		}
		*t = ColumnType{Kind: KindEnum, EnumName: name, EnumMembers: members}
		return nil
	default:
		// Json: any subset of the optional fields, possibly empty object.
		jo := JsonOptions{}
		if raw := get("maxDynamicPaths", "max_dynamic_paths"); raw != nil {
			var v int
			if err := json.Unmarshal(raw, &v); err == nil {
				jo.MaxDynamicPaths = &v
			}
		}
		if raw := get("maxDynamicTypes", "max_dynamic_types"); raw != nil {
			var v int
			if err := json.Unmarshal(raw, &v); err == nil {
				jo.MaxDynamicTypes = &v
			}
		}
		if raw := get("skipPaths", "skip_paths"); raw != nil {
			_ = json.Unmarshal(raw, &jo.SkipPaths)
		}
		if raw := get("skipRegexps", "skip_regexps"); raw != nil {
			_ = json.Unmarshal(raw, &jo.SkipRegexps)
		}
		*t = ColumnType{Kind: KindJson, Json: jo}
		return nil
	}
}

func parseScalarWire(s string, t *ColumnType) error {
	switch {
	case s == "String", s == "Boolean", s == "Bytes", s == "Uuid", s == "Date", s == "Date16",
		s == "IpV4", s == "IpV6", s == "BigInt",
		s == "Point", s == "Ring", s == "LineString", s == "MultiLineString", s == "Polygon", s == "MultiPolygon":
		*t = ColumnType{Kind: ColumnKind(s)}
		return nil
	case s == "DateTime":
		*t = ColumnType{Kind: KindDateTime}
		return nil
	case strings.HasPrefix(s, "DateTime("):
		p, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(s, "DateTime("), ")"))
		if err != nil {
			return fmt.Errorf("bad DateTime precision: %w", err)
		}
		*t = ColumnType{Kind: KindDateTime, DateTimePrecision: &p}
		return nil
	case strings.HasPrefix(s, "FixedString("):
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(s, "FixedString("), ")"))
		if err != nil {
			return fmt.Errorf("bad FixedString length: %w", err)
		}
		*t = ColumnType{Kind: KindFixedString, Length: n}
		return nil
	case strings.HasPrefix(s, "Int("):
		parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(s, "Int("), ")"), ",")
		if len(parts) != 2 {
			return fmt.Errorf("bad Int params: %q", s)
		}
		w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return err
		}
		*t = ColumnType{Kind: KindInt, IntWidth: w, IntSigned: strings.TrimSpace(parts[1]) == "true"}
		return nil
	case strings.HasPrefix(s, "Float("):
		w, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(s, "Float("), ")"))
		if err != nil {
			return err
		}
		*t = ColumnType{Kind: KindFloat, FloatWidth: w}
		return nil
	case strings.HasPrefix(s, "Decimal("):
		parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(s, "Decimal("), ")"), ",")
		if len(parts) != 2 {
			return fmt.Errorf("bad Decimal params: %q", s)
		}
		p, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return err
		}
		sc, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return err
		}
		*t = ColumnType{Kind: KindDecimal, DecimalPrecision: p, DecimalScale: sc}
		return nil
	default:
		return fmt.Errorf("unrecognized scalar column type %q", s)
	}
}

// MarshalJSON for EnumMember: string value stored directly; int value
// stored as a JSON number, matching the live DB's integer-mapped form.
func (m EnumMember) MarshalJSON() ([]byte, error) {
	if m.IsString {
		return json.Marshal(map[string]string{m.Name: m.StringValue})
	}
	return json.Marshal(map[string]int{m.Name: m.IntValue})
}

func (m *EnumMember) UnmarshalJSON(data []byte) error {
	var asInt map[string]int
	if err := json.Unmarshal(data, &asInt); err == nil && len(asInt) == 1 {
		for k, v := range asInt {
			*m = EnumMember{Name: k, IntValue: v, IsString: false}
		}
		return nil
	}
	var asStr map[string]string
	if err := json.Unmarshal(data, &asStr); err == nil && len(asStr) == 1 {
		for k, v := range asStr {
			*m = EnumMember{Name: k, StringValue: v, IsString: true}
		}
		return nil
	}
	return fmt.Errorf("enum member: expected single-key object, got %s", string(data))
}
