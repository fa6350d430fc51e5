package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog"

	"github.com/foundrycore/foundry/pkg/infra"
)

// Engine evaluates Rego policies against tables and plan changes.
type Engine struct {
	mu              sync.RWMutex
	policies        map[string]*compiledPolicy
	store           storage.Store
	logger          zerolog.Logger
	builtinPolicies []Policy
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a new policy engine with the built-in policy set
// loaded and compiled.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	store := inmem.New()

	e := &Engine{
		policies:        make(map[string]*compiledPolicy),
		store:           store,
		logger:          logger.With().Str("component", "policy-engine").Logger(),
		builtinPolicies: GetBuiltinPolicies(),
	}

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

func tableFacts(t *infra.Table, defaultDatabase string) *TableFacts {
	engineKind := ""
	if t.Engine != nil {
		engineKind = string(t.Engine.Kind)
	}
	return &TableFacts{
		ID:          t.ID(defaultDatabase),
		Name:        t.Name,
		Database:    t.Database,
		ClusterName: t.ClusterName,
		EngineKind:  engineKind,
		LifeCycle:   string(t.LifeCycle),
		Metadata:    t.Metadata,
	}
}

// EvaluateTable evaluates every enabled policy against a single table.
func (e *Engine) EvaluateTable(ctx context.Context, table *infra.Table, defaultDatabase string, evalCtx *PolicyContext) (*PolicyResult, error) {
	start := time.Now()
	if evalCtx == nil {
		evalCtx = &PolicyContext{Timestamp: time.Now(), Operation: "validate"}
	}
	input := &PolicyInput{Table: tableFacts(table, defaultDatabase), Context: evalCtx}
	return e.evaluateAll(ctx, input, start)
}

// Evaluate evaluates every enabled policy against every table in an
// infrastructure map.
func (e *Engine) Evaluate(ctx context.Context, m *infra.Map, evalCtx *PolicyContext) (*PolicyResult, error) {
	start := time.Now()
	if evalCtx == nil {
		evalCtx = &PolicyContext{Timestamp: time.Now(), Operation: "validate"}
	}

	merged := &PolicyResult{Allowed: true, EvaluatedAt: start}
	for _, table := range m.Tables {
		input := &PolicyInput{Table: tableFacts(table, m.DefaultDatabase), Context: evalCtx}
		result, err := e.evaluateAll(ctx, input, start)
		if err != nil {
			return nil, err
		}
		merged.Violations = append(merged.Violations, result.Violations...)
		merged.Warnings = append(merged.Warnings, result.Warnings...)
		if !result.Allowed {
			merged.Allowed = false
		}
	}
	merged.EvaluatedPolicies = e.enabledPolicyNames()
	merged.Duration = time.Since(start)
	return merged, nil
}

// EvaluatePlan evaluates every enabled policy against each table change
// in a plan, plus the plan's target table for lifecycle/metadata rules.
func (e *Engine) EvaluatePlan(ctx context.Context, plan *infra.InfraPlan, evalCtx *PolicyContext) (*PolicyResult, error) {
	start := time.Now()
	if evalCtx == nil {
		evalCtx = &PolicyContext{Timestamp: time.Now(), Operation: "plan"}
	}

	merged := &PolicyResult{Allowed: true, EvaluatedAt: start}
	defaultDatabase := ""
	if plan.TargetInfraMap != nil {
		defaultDatabase = plan.TargetInfraMap.DefaultDatabase
	}

	for _, tc := range plan.Changes.Tables {
		change := &ChangeFacts{Kind: string(tc.Kind), Resource: "table", ID: tc.ID}
		var facts *TableFacts
		switch {
		case tc.Table != nil:
			facts = tableFacts(tc.Table, defaultDatabase)
		case tc.Before != nil:
			facts = tableFacts(tc.Before, defaultDatabase)
		case plan.TargetInfraMap != nil:
			if t, ok := plan.TargetInfraMap.Tables[tc.ID]; ok {
				facts = tableFacts(t, defaultDatabase)
			}
		}
		if facts == nil {
			facts = &TableFacts{ID: tc.ID}
		}

		input := &PolicyInput{Table: facts, Change: change, Context: evalCtx}
		result, err := e.evaluateAll(ctx, input, start)
		if err != nil {
			return nil, err
		}
		merged.Violations = append(merged.Violations, result.Violations...)
		merged.Warnings = append(merged.Warnings, result.Warnings...)
		if !result.Allowed {
			merged.Allowed = false
		}
	}

	merged.EvaluatedPolicies = e.enabledPolicyNames()
	merged.Duration = time.Since(start)
	return merged, nil
}

func (e *Engine) enabledPolicyNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.policies))
	for _, cp := range e.policies {
		if cp.policy.Enabled {
			names = append(names, cp.policy.Name)
		}
	}
	return names
}

// evaluateAll runs every enabled policy against a single PolicyInput.
func (e *Engine) evaluateAll(ctx context.Context, input *PolicyInput, start time.Time) (*PolicyResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var violations []PolicyViolation
	var warnings []string

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}

		vs, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).Str("policy", cp.policy.Name).Msg("policy evaluation failed")
			warnings = append(warnings, fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}
		violations = append(violations, vs...)
	}

	allowed := true
	for _, v := range violations {
		if v.Severity == SeverityError || v.Severity == SeverityCritical {
			allowed = false
			break
		}
	}

	return &PolicyResult{
		Allowed:     allowed,
		Violations:  violations,
		Warnings:    warnings,
		EvaluatedAt: start,
		Duration:    time.Since(start),
	}, nil
}

// LoadPolicies loads policy files from paths, compiling and storing them
// alongside the built-ins.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			e.logger.Error().Err(err).Str("policy", policies[i].Name).Msg("failed to compile policy")
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().Int("count", len(policies)).Msg("policies loaded successfully")
	return nil
}

// evaluatePolicy evaluates a single compiled policy's deny set.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *PolicyInput) ([]PolicyViolation, error) {
	packageName := extractPackageName(cp.policy.Rego)
	query := fmt.Sprintf("data.%s.deny", packageName)

	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []PolicyViolation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, e.createViolation(cp.policy, d, input))
		}
	}

	return violations, nil
}

// extractPackageName extracts the package name from Rego code.
func extractPackageName(regoSrc string) string {
	lines := strings.Split(regoSrc, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "foundry.policies"
}

// createViolation creates a PolicyViolation from one deny-set entry.
func (e *Engine) createViolation(policy *Policy, result interface{}, input *PolicyInput) PolicyViolation {
	violation := PolicyViolation{
		Policy:     policy.Name,
		Severity:   policy.Severity,
		DetectedAt: time.Now(),
	}
	if input.Table != nil {
		violation.Resource = input.Table.ID
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
		if res, ok := v["resource"].(string); ok {
			violation.Resource = res
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// compileAndStorePolicy compiles a policy and stores it.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	r := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Store(e.store),
		rego.Query("data"),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		query:    query,
		compiled: time.Now(),
	}

	e.logger.Debug().Str("policy", policy.Name).Msg("policy compiled successfully")
	return nil
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	for i := range e.builtinPolicies {
		if err := e.compileAndStorePolicy(ctx, &e.builtinPolicies[i]); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", e.builtinPolicies[i].Name, err)
		}
	}

	e.logger.Info().Int("count", len(e.builtinPolicies)).Msg("built-in policies loaded")
	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all loaded policies.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}
	return policies
}

// ReloadPolicies clears and reloads the built-in policy set.
func (e *Engine) ReloadPolicies(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.policies = make(map[string]*compiledPolicy)
	return e.loadBuiltinPolicies(ctx)
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = true
	e.logger.Info().Str("policy", name).Msg("policy enabled")
	return nil
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = false
	e.logger.Info().Str("policy", name).Msg("policy disabled")
	return nil
}
