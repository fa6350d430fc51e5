package devloop

import (
	"context"
	"fmt"
	"sync"

	"github.com/foundrycore/foundry/pkg/infra"
)

// ProcessKind identifies which class of user-code worker a managed
// process is — the three resource kinds §4.6 names as long-running
// ("API workers, stream function workers, workflow workers"). Topics
// and webapps are not independently-running processes the dev loop
// supervises, so they are not represented here.
type ProcessKind string

const (
	ProcessAPI          ProcessKind = "api"
	ProcessSyncProcess  ProcessKind = "sync_process"
	ProcessWorkflow     ProcessKind = "workflow"
)

func processKindFor(resource string) (ProcessKind, bool) {
	switch resource {
	case "api":
		return ProcessAPI, true
	case "sync_process":
		return ProcessSyncProcess, true
	case "workflow":
		return ProcessWorkflow, true
	default:
		return "", false
	}
}

// ProcessSpec identifies one running user-code process by its stable
// source_primitive id (infra.APIEndpoint.ID / SyncProcess.ID /
// Workflow.ID) and kind.
type ProcessSpec struct {
	ID   string
	Kind ProcessKind
}

// ProcessManager actually starts and stops user-code worker processes.
// Spawning and supervising user code itself is out of scope here (the
// CLI dispatcher and user-code loader are explicitly excluded); this
// is the seam the dev loop consumes to do so, mirroring how
// infra.UserCodeLoader is the seam for loading the target map.
type ProcessManager interface {
	Start(ctx context.Context, spec ProcessSpec) error
	Stop(ctx context.Context, spec ProcessSpec) error
}

// Registry is the process registry of §4.6: the set of currently
// running user-code processes, keyed by stable source_primitive id.
type Registry struct {
	mu      sync.RWMutex
	running map[string]ProcessSpec
	manager ProcessManager
}

func NewRegistry(manager ProcessManager) *Registry {
	return &Registry{running: make(map[string]ProcessSpec), manager: manager}
}

// Reconcile applies one round of view changes (the api/sync_process/
// workflow entries of an infra.InfraPlan's Views, produced by the same
// re-plan the reload pipeline already ran) to the running set: stop
// removed processes, start added ones, restart (stop then start)
// changed ones. Non-process resource kinds (topic, webapp) are
// ignored. Errors from individual starts/stops are collected so one
// failing process does not block reconciling the rest.
func (r *Registry) Reconcile(ctx context.Context, changes []infra.ViewChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, vc := range changes {
		kind, ok := processKindFor(vc.Resource)
		if !ok {
			continue
		}
		spec := ProcessSpec{ID: vc.ID, Kind: kind}

		switch vc.Kind {
		case infra.ViewRemoved:
			if err := r.manager.Stop(ctx, spec); err != nil {
				errs = append(errs, fmt.Errorf("stop %s %s: %w", kind, vc.ID, err))
				continue
			}
			delete(r.running, vc.ID)

		case infra.ViewAdded:
			if err := r.manager.Start(ctx, spec); err != nil {
				errs = append(errs, fmt.Errorf("start %s %s: %w", kind, vc.ID, err))
				continue
			}
			r.running[vc.ID] = spec

		case infra.ViewUpdated:
			if existing, ok := r.running[vc.ID]; ok {
				if err := r.manager.Stop(ctx, existing); err != nil {
					errs = append(errs, fmt.Errorf("stop %s %s for restart: %w", kind, vc.ID, err))
					continue
				}
			}
			if err := r.manager.Start(ctx, spec); err != nil {
				errs = append(errs, fmt.Errorf("restart %s %s: %w", kind, vc.ID, err))
				continue
			}
			r.running[vc.ID] = spec
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("process registry reconcile: %d error(s), first: %w", len(errs), errs[0])
	}
	return nil
}

// Running returns a snapshot of the currently-tracked processes.
func (r *Registry) Running() []ProcessSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProcessSpec, 0, len(r.running))
	for _, spec := range r.running {
		out = append(out, spec)
	}
	return out
}
