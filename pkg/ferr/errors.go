// Package ferr implements the classified error taxonomy of §7: kinds
// of failure (not Go types) that every layer reports through, so the
// CLI, admin surface, and dev-loop UI can render a consistent
// {action, details} shape regardless of which component failed.
package ferr

import (
	"errors"
	"fmt"
)

// Kind classifies a FoundryError for retry/recovery and presentation
// logic, per §7's error taxonomy.
type Kind string

const (
	KindLoad         Kind = "load"          // user-code/primitive loading failed
	KindWire         Kind = "wire"          // serialization mismatch, legacy-server detection
	KindDB           Kind = "db"            // underlying OLAP/coordination client error
	KindRealityCheck Kind = "reality_check" // introspection failure; aborts planning
	KindValidation   Kind = "validation"    // plan rejected
	KindDrift        Kind = "drift"         // migration-time safety gate
	KindPolicy       Kind = "policy"        // OlapDisabledButRequired, life-cycle violations
	KindTimeout      Kind = "timeout"       // docker bring-up, remote HTTP
	KindPartial      Kind = "partial"       // partial-failure, carries succeeded/failed/remaining
)

// FoundryError is a classified error with the two-field {action,
// details} shape every RoutineFailure carries, plus an optional
// nested cause. It extends the teacher's EngineError/ErrorClass
// pattern with this domain's richer taxonomy.
type FoundryError struct {
	Kind    Kind
	Action  string
	Details string

	Resource  string
	Operation string
	Err       error

	// Partial-failure fields, set only when Kind == KindPartial.
	Succeeded []string
	Failed    []string
	Remaining []string
	Recovery  string
}

func (e *FoundryError) Error() string {
	base := fmt.Sprintf("[%s] %s: %s", e.Kind, e.Action, e.Details)
	if e.Resource != "" {
		base += fmt.Sprintf(" (resource=%s)", e.Resource)
	}
	if e.Operation != "" {
		base += fmt.Sprintf(" (operation=%s)", e.Operation)
	}
	if e.Err != nil {
		base += ": " + e.Err.Error()
	}
	return base
}

func (e *FoundryError) Unwrap() error { return e.Err }

// Is matches on Kind and Action so errors.Is works across wrapped chains.
func (e *FoundryError) Is(target error) bool {
	t, ok := target.(*FoundryError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Action == t.Action
}

func New(kind Kind, action, details string) *FoundryError {
	return &FoundryError{Kind: kind, Action: action, Details: details}
}

func Wrap(kind Kind, action, details string, err error) *FoundryError {
	return &FoundryError{Kind: kind, Action: action, Details: details, Err: err}
}

// Partial builds a partial-failure error per §7's "carries (succeeded,
// failed, remaining) and a recovery script" requirement.
func Partial(action string, succeeded, failed, remaining []string, recovery string) *FoundryError {
	return &FoundryError{
		Kind:      KindPartial,
		Action:    action,
		Details:   fmt.Sprintf("%d succeeded, %d failed, %d not executed", len(succeeded), len(failed), len(remaining)),
		Succeeded: succeeded,
		Failed:    failed,
		Remaining: remaining,
		Recovery:  recovery,
	}
}

func (e *FoundryError) WithResource(resource string) *FoundryError {
	e.Resource = resource
	return e
}

func (e *FoundryError) WithOperation(operation string) *FoundryError {
	e.Operation = operation
	return e
}

func (e *FoundryError) WithDetail(detail string) *FoundryError {
	if e.Details == "" {
		e.Details = detail
	} else {
		e.Details = e.Details + "; " + detail
	}
	return e
}

// OlapDisabledButRequired is the specific policy error of §4.4 step 5:
// the plan contains OLAP changes while OLAP is disabled in config but
// the target map uses OLAP.
func OlapDisabledButRequired() *FoundryError {
	return New(KindPolicy, "OlapDisabledButRequired",
		"the plan contains OLAP changes but OLAP is disabled in project config while the target map uses OLAP")
}

// Is reports whether err is a FoundryError of the given kind.
func Is(err error, kind Kind) bool {
	var e *FoundryError
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsRetryable reports whether the error's kind is worth retrying —
// only DB/transport-layer failures are, per §7 (validation, policy,
// and drift errors are never retried blindly).
func IsRetryable(err error) bool {
	var e *FoundryError
	if errors.As(err, &e) {
		return e.Kind == KindDB || e.Kind == KindTimeout
	}
	return false
}
