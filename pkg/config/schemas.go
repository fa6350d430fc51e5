package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas used to validate decoded project
// configuration beyond what struct tags can express (cross-field
// constraints, enum-like string sets).
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}
	sr.registerBuiltInSchemas()
	return sr
}

func (sr *SchemaRegistry) registerBuiltInSchemas() {
	sr.RegisterSchema("project", builtinProjectSchema)
	sr.RegisterSchema("backend", builtinBackendSchema)
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// Built-in schema definitions.

const builtinProjectSchema = `
#Project: {
	default_database: string & =~"^[a-zA-Z_][a-zA-Z0-9_]*$"
	is_production: bool | *false
	olap_enabled:  bool | *true

	databases?: [...string]
	clusters?:  [...string & !=""]

	ignore_operations?: {
		table_ttl?:       bool
		column_ttl?:      bool
		partition_by?:    bool
		column_comments?: bool
	}

	backend: #Backend

	admin_token?: string
	infrastructure_timeout_seconds?: int & >0
	connection_pool_warmup?: bool
}
`

const builtinBackendSchema = `
#Backend: {
	type: "coordination" | "olap_native"

	if type == "coordination" {
		redis_addr: string
	}
	if type == "olap_native" {
		clickhouse_dsn: string
	}
}
`

// ValidateProject validates a decoded ProjectConfig against the
// cross-field schema (struct tags alone can't express the
// type-discriminated backend shape).
func (sr *SchemaRegistry) ValidateProject(ctx context.Context, cfg ProjectConfig) error {
	return sr.ValidateAgainstSchema(ctx, "project", cfg)
}
