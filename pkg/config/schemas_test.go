package config

import (
	"context"
	"testing"
)

func TestSchemaRegistry_RegisterAndGet(t *testing.T) {
	sr := NewSchemaRegistry()

	customSchema := `
#CustomType: {
	field1: string
	field2: int
}
`
	err := sr.RegisterSchema("custom", customSchema)
	if err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}

	schema, ok := sr.GetSchema("custom")
	if !ok {
		t.Fatal("expected to find custom schema")
	}
	if schema.Err() != nil {
		t.Errorf("schema has errors: %v", schema.Err())
	}
}

func TestSchemaRegistry_BuiltInSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	builtins := []string{"project", "backend"}
	for _, name := range builtins {
		t.Run(name, func(t *testing.T) {
			schema, ok := sr.GetSchema(name)
			if !ok {
				t.Fatalf("built-in schema %s not found", name)
			}
			if schema.Err() != nil {
				t.Errorf("built-in schema %s has errors: %v", name, schema.Err())
			}
		})
	}
}

func TestSchemaRegistry_ValidateProject(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	cfg := ProjectConfig{
		DefaultDatabase: "analytics",
		IsProduction:    true,
		Clusters:        []string{"default"},
		Backend:         BackendConfig{Type: BackendCoordination, RedisAddr: "localhost:6379"},
	}
	if err := sr.ValidateProject(ctx, cfg); err != nil {
		t.Errorf("expected valid project config, got error: %v", err)
	}
}

func TestSchemaRegistry_ValidateUnknownSchema(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	if err := sr.ValidateAgainstSchema(ctx, "does-not-exist", struct{}{}); err == nil {
		t.Error("expected error for unknown schema")
	}
}
