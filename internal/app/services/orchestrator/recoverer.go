package orchestrator

import (
	"context"
	"sync"
	"time"

	core "github.com/shipforge/orchestrator/internal/app/core/service"
	"github.com/shipforge/orchestrator/internal/app/domain/execution"
	"github.com/shipforge/orchestrator/internal/app/storage"
	"github.com/shipforge/orchestrator/internal/app/system"
	"github.com/shipforge/orchestrator/pkg/logger"
)

var _ system.Service = (*Recoverer)(nil)

// Recoverer is the background sweep named in §4.2: on a tick, and once at
// startup, it surfaces stale running/paused Executions and hands each to
// the Orchestrator to re-take ownership from its last snapshot.
type Recoverer struct {
	orch           *Orchestrator
	store          storage.Store
	log            *logger.Logger
	interval       time.Duration
	staleThreshold time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRecoverer constructs a Recoverer bound to orch. staleThreshold defaults
// to recovery_stale_threshold_minutes (60m) when zero.
func NewRecoverer(orch *Orchestrator, store storage.Store, log *logger.Logger, staleThreshold time.Duration) *Recoverer {
	if log == nil {
		log = logger.NewDefault("orchestrator-recoverer")
	}
	if staleThreshold <= 0 {
		staleThreshold = 60 * time.Minute
	}
	return &Recoverer{
		orch:           orch,
		store:          store,
		log:            log,
		interval:       time.Minute,
		staleThreshold: staleThreshold,
	}
}

// Name identifies this service for the system manager.
func (r *Recoverer) Name() string { return "orchestrator-recoverer" }

// Descriptor advertises the Recoverer's placement and capabilities.
func (r *Recoverer) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   "orchestrator-recoverer",
		Domain: "execution-recovery",
		Layer:  core.LayerOps,
	}.WithCapabilities("stale-execution-sweep", "snapshot-resume")
}

// Start runs an immediate sweep, then ticks every interval until Stop.
func (r *Recoverer) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	r.sweep(runCtx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.sweep(runCtx)
			}
		}
	}()
	return nil
}

// Stop halts the sweep loop.
func (r *Recoverer) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	return nil
}

func (r *Recoverer) sweep(ctx context.Context) {
	candidates, err := r.store.ListRecoveryCandidates(ctx, r.staleThreshold)
	if err != nil {
		r.log.WithError(err).Warn("list recovery candidates failed")
		return
	}
	for _, exec := range candidates {
		recovered := r.recover(ctx, exec)
		r.log.WithExecution(exec.ID).WithField("recovered", recovered).Info("recovery sweep")
	}
}

// recover re-takes ownership of a stale execution from its last snapshot,
// at-least-once: the previous in-flight step's unfinished Item Results are
// left as-is and that step is reprocessed from the start.
func (r *Recoverer) recover(ctx context.Context, exec execution.Execution) bool {
	if exec.Status != execution.StatusRunning && exec.Status != execution.StatusPaused {
		return false
	}
	snap, ok := r.orch.getSnapshot(ctx, exec.ID)
	if !ok {
		return false
	}
	rt, ok := r.orch.registry.Get(exec.TemplateName)
	if !ok {
		return false
	}
	items, ok := r.orch.getItems(ctx, exec.ID)
	if !ok {
		return false
	}

	exec.Status = execution.StatusRunning
	exec.PauseRequested = false
	exec.UpdatedAt = time.Now().UTC()
	exec, err := r.store.UpdateExecution(ctx, exec)
	if err != nil {
		return false
	}

	r.orch.controlFor(exec.ID)
	go r.orch.run(exec, rt, items, snap.StepIndex)
	return true
}
