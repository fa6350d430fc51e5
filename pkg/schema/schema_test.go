package schema

import (
	"encoding/json"
	"testing"
)

func TestColumnTypeValidate(t *testing.T) {
	cases := []struct {
		name    string
		typ     *ColumnType
		wantErr bool
	}{
		{"string ok", &ColumnType{Kind: KindString}, false},
		{"nullable of nullable forbidden", &ColumnType{Kind: KindNullable, Inner: &ColumnType{Kind: KindNullable, Inner: &ColumnType{Kind: KindString}}}, true},
		{"array element nullable-wrapped forbidden", &ColumnType{Kind: KindArray, Element: &ColumnType{Kind: KindNullable, Inner: &ColumnType{Kind: KindString}}}, true},
		{"array element nullable flag ok", &ColumnType{Kind: KindArray, Element: &ColumnType{Kind: KindString}, ElementNullable: true}, false},
		{"decimal out of range", &ColumnType{Kind: KindDecimal, DecimalPrecision: 80, DecimalScale: 2}, true},
		{"int bad width", &ColumnType{Kind: KindInt, IntWidth: 24, IntSigned: true}, true},
		{"enum value too large", &ColumnType{Kind: KindEnum, EnumName: "E", EnumMembers: []EnumMember{{Name: "A", IntValue: 300}}}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.typ.Validate()
			if (err != nil) != c.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestColumnRequiredXorNullable(t *testing.T) {
	col := &Column{Name: "id", Type: &ColumnType{Kind: KindString}, Required: true}
	if err := col.Validate(); err != nil {
		t.Fatalf("expected valid required column: %v", err)
	}

	col2 := &Column{Name: "id", Type: &ColumnType{Kind: KindString}, Required: false}
	if err := col2.Validate(); err == nil {
		t.Fatalf("expected error: non-nullable type must be required")
	}

	col3 := &Column{Name: "maybe", Type: &ColumnType{Kind: KindNullable, Inner: &ColumnType{Kind: KindString}}, Required: false}
	if err := col3.Validate(); err != nil {
		t.Fatalf("expected valid nullable column: %v", err)
	}
}

func TestColumnArrayAlwaysRequired(t *testing.T) {
	col := &Column{Name: "tags", Type: &ColumnType{Kind: KindArray, Element: &ColumnType{Kind: KindString}}, Required: false}
	if err := col.Validate(); err == nil {
		t.Fatalf("expected error: array must be required=true")
	}
}

func TestWireRoundTripScalars(t *testing.T) {
	prec := 3
	types := []*ColumnType{
		{Kind: KindString},
		{Kind: KindDateTime, DateTimePrecision: &prec},
		{Kind: KindInt, IntWidth: 64, IntSigned: true},
		{Kind: KindDecimal, DecimalPrecision: 10, DecimalScale: 2},
	}
	for _, ty := range types {
		data, err := json.Marshal(ty)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var out ColumnType
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		roundTripped, _ := json.Marshal(&out)
		if string(roundTripped) != string(data) {
			t.Fatalf("round trip mismatch: %s != %s", roundTripped, data)
		}
	}
}

func TestWireRoundTripCompound(t *testing.T) {
	ty := &ColumnType{
		Kind:            KindArray,
		Element:         &ColumnType{Kind: KindString},
		ElementNullable: true,
	}
	data, err := json.Marshal(ty)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out ColumnType
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Kind != KindArray || !out.ElementNullable || out.Element.Kind != KindString {
		t.Fatalf("round trip produced wrong value: %+v", out)
	}
}

func TestWireAcceptsSnakeCase(t *testing.T) {
	data := []byte(`{"element_type":"String","element_nullable":true}`)
	var out ColumnType
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal snake_case: %v", err)
	}
	if out.Kind != KindArray || !out.ElementNullable {
		t.Fatalf("snake_case input produced wrong value: %+v", out)
	}
}

func TestRenderEngineTypeRejectsBytes(t *testing.T) {
	_, err := RenderEngineType(&ColumnType{Kind: KindBytes})
	if err == nil {
		t.Fatalf("expected Bytes to be rejected")
	}
}

func TestRenderEngineTypeEnum(t *testing.T) {
	ty := &ColumnType{Kind: KindEnum, EnumName: "RecordType", EnumMembers: []EnumMember{
		{Name: "text", IntValue: 1},
		{Name: "email", IntValue: 2},
	}}
	out, err := RenderEngineType(ty)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "Enum8('text' = 1, 'email' = 2)"
	if out != want {
		t.Fatalf("got %q want %q", out, want)
	}
}

func TestEngineHashStableAcrossSettings(t *testing.T) {
	e1 := &Engine{Kind: EngineS3Queue, S3Path: "s3://bucket/p", Format: "JSONEachRow", Settings: map[string]string{"mode": "unordered"}}
	e2 := &Engine{Kind: EngineS3Queue, S3Path: "s3://bucket/p", Format: "JSONEachRow", Settings: map[string]string{"mode": "ordered"}}
	if e1.Hash("db") != e2.Hash("db") {
		t.Fatalf("hash must be stable across settings-only change (S6)")
	}
}

func TestEngineHashChangesOnOrderBy(t *testing.T) {
	// Hash itself doesn't encode order_by (that's a table-level field,
	// not an engine param) but changing path must change the hash.
	e1 := &Engine{Kind: EngineS3Queue, S3Path: "s3://bucket/a", Format: "JSONEachRow"}
	e2 := &Engine{Kind: EngineS3Queue, S3Path: "s3://bucket/b", Format: "JSONEachRow"}
	if e1.Hash("db") == e2.Hash("db") {
		t.Fatalf("hash must change when path changes")
	}
}

func TestTryParseEngineS3QueuePublicBucket(t *testing.T) {
	e, err := TryParseEngine("S3Queue('s3://bucket/p', 'JSONEachRow')")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if e.Kind != EngineS3Queue || e.S3Path != "s3://bucket/p" || e.Format != "JSONEachRow" {
		t.Fatalf("unexpected parse result: %+v", e)
	}
}

func TestTryParseEngineS3QueueNosign(t *testing.T) {
	e, err := TryParseEngine("S3Queue('s3://bucket/p', NOSIGN, 'JSONEachRow', 'gzip')")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if e.Headers["NOSIGN"] != "true" || e.Compression != "gzip" {
		t.Fatalf("unexpected parse result: %+v", e)
	}
}

func TestTryParseEngineShared(t *testing.T) {
	e, err := TryParseEngine("SharedMergeTree")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if e.Kind != EngineMergeTree {
		t.Fatalf("expected MergeTree, got %+v", e)
	}
}

// TestEnumEquivalentCrossRepresentation mirrors scenario S4: the DB
// stores Enum('text'=1,'email'=2) (member names are the literals), the
// TypeScript code declares
//
//	enum RecordType { TEXT='text', EMAIL='email' }
//
// whose member names are the identifiers (TEXT/EMAIL) and whose string
// values are the literals (text/email). The two must still compare
// equivalent, or the diff engine emits a spurious column-type change.
func TestEnumEquivalentCrossRepresentation(t *testing.T) {
	intEnum := &ColumnType{Kind: KindEnum, EnumMembers: []EnumMember{
		{Name: "text", IntValue: 1},
		{Name: "email", IntValue: 2},
	}}
	strEnum := &ColumnType{Kind: KindEnum, EnumMembers: []EnumMember{
		{Name: "TEXT", StringValue: "text", IsString: true},
		{Name: "EMAIL", StringValue: "email", IsString: true},
	}}
	if !EnumEquivalent(intEnum, strEnum) {
		t.Fatalf("expected int-mapped and string enums with matching literal order to be equivalent")
	}
	if !EnumEquivalent(strEnum, intEnum) {
		t.Fatalf("expected EnumEquivalent to be symmetric regardless of argument order")
	}
}
