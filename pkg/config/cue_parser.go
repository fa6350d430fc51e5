package config

import (
	"context"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
)

// Loader parses and validates project-level CUE configuration. It is
// deliberately narrow: the user's typed codebase (resources, stream
// functions, workflows) is parsed by the UserCodeLoader, not here —
// this only covers the project-wide settings that govern how the
// Planner, Diff Engine, and Migration Executor behave.
type Loader struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
	validator      *validator.Validate
}

// NewLoader creates a new project-config loader.
func NewLoader() *Loader {
	return &Loader{
		ctx:            cuecontext.New(),
		schemaRegistry: NewSchemaRegistry(),
		validator:      validator.New(),
	}
}

// Load parses project configuration from the given CUE sources
// (files or a directory) and returns the decoded, validated config.
func (l *Loader) Load(ctx context.Context, sources []string) (*ProjectConfig, error) {
	result, err := l.Parse(ctx, sources)
	if err != nil {
		return nil, err
	}
	if !result.OK() {
		return nil, fmt.Errorf("project config validation errors: %v", result.Errors)
	}
	return result.Config, nil
}

// Validate runs struct-tag validation against an already-decoded
// config — used when a ProjectConfig is constructed programmatically
// (tests, the remote plan client) rather than loaded from CUE.
func (l *Loader) Validate(cfg *ProjectConfig) error {
	if err := l.validator.Struct(cfg); err != nil {
		return fmt.Errorf("project config validation failed: %w", err)
	}
	return nil
}

// Parse parses project configuration from sources without failing
// the whole call on validation errors — callers inspect ParseResult.Errors.
func (l *Loader) Parse(ctx context.Context, sources []string) (*ParseResult, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var cueValue cue.Value
	var sourceFiles []string
	var parseErrors []ValidationError

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		var val cue.Value
		var files []string
		var errs []ValidationError
		if info.IsDir() {
			val, files, errs = l.loadDirectory(source)
		} else {
			val, errs = l.loadFile(source)
			files = []string{source}
		}

		if len(errs) > 0 {
			parseErrors = append(parseErrors, errs...)
		}
		if val.Exists() {
			if cueValue.Exists() {
				cueValue = cueValue.Unify(val)
			} else {
				cueValue = val
			}
		}
		sourceFiles = append(sourceFiles, files...)
	}

	if len(parseErrors) > 0 {
		return &ParseResult{SourceFiles: sourceFiles, Errors: parseErrors}, nil
	}

	if err := cueValue.Err(); err != nil {
		parseErrors = append(parseErrors, l.convertCUEErrors(err)...)
		return &ParseResult{SourceFiles: sourceFiles, Errors: parseErrors}, nil
	}

	return l.extractConfig(cueValue, sourceFiles)
}

func (l *Loader) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	buildInstances := load.Instances([]string{dir}, nil)
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{
			File: dir, Message: "no CUE files found", Severity: "error",
		}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, l.convertCUEErrors(inst.Err)
	}

	val := l.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, l.convertCUEErrors(err)
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}
	return val, files, nil
}

func (l *Loader) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File: path, Message: fmt.Sprintf("failed to read file: %v", err), Severity: "error",
		}}
	}

	val := l.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, l.convertCUEErrors(err)
	}
	return val, nil
}

// extractConfig decodes the "project" top-level field into ProjectConfig.
func (l *Loader) extractConfig(val cue.Value, sourceFiles []string) (*ParseResult, error) {
	result := &ParseResult{SourceFiles: sourceFiles}

	projectVal := val.LookupPath(cue.ParsePath("project"))
	if !projectVal.Exists() {
		result.Errors = append(result.Errors, ValidationError{
			Path: "project", Message: "missing required top-level \"project\" field", Severity: "error",
		})
		return result, nil
	}

	var cfg ProjectConfig
	if err := projectVal.Decode(&cfg); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Path: "project", Message: fmt.Sprintf("failed to decode project config: %v", err), Severity: "error",
		})
		return result, nil
	}

	if err := l.validator.Struct(&cfg); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Path: "project", Message: fmt.Sprintf("validation failed: %v", err), Severity: "error",
		})
		return result, nil
	}

	result.Config = &cfg
	return result, nil
}

func (l *Loader) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError
	errs := errors.Errors(err)
	for _, e := range errs {
		pos := errors.Positions(e)
		var file string
		var line, column int
		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}
		validationErrors = append(validationErrors, ValidationError{
			File: file, Line: line, Column: column,
			Message: errors.Details(e, nil), Severity: "error",
		})
	}
	return validationErrors
}

// ParseInline parses inline CUE content, under the source name "inline".
func (l *Loader) ParseInline(ctx context.Context, content string) (*ParseResult, error) {
	val := l.ctx.CompileString(content)
	if err := val.Err(); err != nil {
		return &ParseResult{SourceFiles: []string{"inline"}, Errors: l.convertCUEErrors(err)}, nil
	}
	return l.extractConfig(val, []string{"inline"})
}

// ValidateWithSchema validates a decoded value against a registered schema.
func (l *Loader) ValidateWithSchema(ctx context.Context, data interface{}, schemaName string) error {
	return l.schemaRegistry.ValidateAgainstSchema(ctx, schemaName, data)
}
