package devloop

import (
	"context"
	"sync"
	"time"

	"github.com/foundrycore/foundry/pkg/config"
	"github.com/foundrycore/foundry/pkg/executor"
	"github.com/foundrycore/foundry/pkg/infra"
	"github.com/foundrycore/foundry/pkg/planner"
)

// SharedMap holds the live infrastructure map behind a read-write
// lock, per §5's single-writer/many-readers rule: the admin HTTP
// surface and any in-process request routing read it; only the
// reloader (or initial boot) writes it.
type SharedMap struct {
	mu  sync.RWMutex
	cur *infra.Map
}

func NewSharedMap(initial *infra.Map) *SharedMap {
	return &SharedMap{cur: initial}
}

func (s *SharedMap) Get() *infra.Map {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *SharedMap) Set(m *infra.Map) {
	s.mu.Lock()
	s.cur = m
	s.mu.Unlock()
}

// ReloadStatus reports the outcome of one reload attempt. Per §4.6, a
// failed reload surfaces as a status rather than crashing the process,
// and the last successful map stays live.
type ReloadStatus struct {
	OK  bool
	Err error
	At  time.Time
}

// Reloader implements the reload pipeline of §4.6:
//  1. acquire the coordinator exclusively
//  2. recompute the target map from user code and re-plan against
//     state storage and the live database (§4.4)
//  3. apply changes in live mode (§4.5(a)), restricted to the subset
//     reload can apply without a full migration plan
//  4. diff the process registry against the new target process set;
//     stop removed processes, start added ones, restart changed ones
//  5. publish the new map for readers (the route-table/admin-surface
//     equivalent of the old map going out of scope)
//  6. release the coordinator
type Reloader struct {
	Planner     *planner.Planner
	Executor    *executor.LiveExecutor
	Registry    *Registry
	Coordinator *Coordinator
	Shared      *SharedMap

	mu         sync.RWMutex
	lastStatus ReloadStatus
}

func NewReloader(p *planner.Planner, exec *executor.LiveExecutor, reg *Registry, coord *Coordinator, shared *SharedMap) *Reloader {
	return &Reloader{Planner: p, Executor: exec, Registry: reg, Coordinator: coord, Shared: shared}
}

// Reload runs one pass of the pipeline for a single ProjectChanged
// event. Errors are returned to the caller (Run logs them via the
// status, it does not propagate them further) so the watched process
// keeps serving the last-known-good map.
func (r *Reloader) Reload(ctx context.Context, cfg *config.ProjectConfig) error {
	r.Coordinator.AcquireExclusive()
	defer r.Coordinator.ReleaseExclusive()

	_, plan, err := r.Planner.PlanChanges(ctx, cfg)
	if err != nil {
		r.recordStatus(false, err)
		return err
	}

	if err := r.Executor.Apply(ctx, plan); err != nil {
		r.recordStatus(false, err)
		return err
	}

	if err := r.Registry.Reconcile(ctx, plan.Changes.Views); err != nil {
		r.recordStatus(false, err)
		return err
	}

	r.Shared.Set(plan.TargetInfraMap)
	r.recordStatus(true, nil)
	return nil
}

func (r *Reloader) recordStatus(ok bool, err error) {
	r.mu.Lock()
	r.lastStatus = ReloadStatus{OK: ok, Err: err, At: time.Now()}
	r.mu.Unlock()
}

// LastStatus reports the outcome of the most recent reload attempt.
func (r *Reloader) LastStatus() ReloadStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastStatus
}

// Run drives the pipeline off a ProjectChanged channel until ctx is
// cancelled. Per §4.6's graceful-shutdown rule, shutdown is only
// observed at a reload boundary: a reload already underway runs to
// completion before Run returns.
func (r *Reloader) Run(ctx context.Context, changed <-chan ProjectChanged, cfg *config.ProjectConfig) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changed:
			if !ok {
				return
			}
			_ = r.Reload(ctx, cfg)
		}
	}
}
