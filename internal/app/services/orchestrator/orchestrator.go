package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	core "github.com/shipforge/orchestrator/internal/app/core/service"
	"github.com/shipforge/orchestrator/internal/app/domain/alert"
	"github.com/shipforge/orchestrator/internal/app/domain/execution"
	"github.com/shipforge/orchestrator/internal/app/domain/itemresult"
	"github.com/shipforge/orchestrator/internal/app/domain/step"
	"github.com/shipforge/orchestrator/internal/app/domain/template"
	"github.com/shipforge/orchestrator/internal/app/cache"
	"github.com/shipforge/orchestrator/internal/app/platform"
	"github.com/shipforge/orchestrator/internal/app/services/progress"
	"github.com/shipforge/orchestrator/internal/app/storage"
	"github.com/shipforge/orchestrator/pkg/logger"
)

// ProgressSink is the narrow interface the orchestrator drives the
// Progress Tracker through, satisfied by *progress.Tracker. Kept local to
// avoid a package import cycle between orchestrator and its collaborators.
type ProgressSink interface {
	StartTracking(executionID string, totalItems int, now time.Time)
	StopTracking(executionID string)
	Observe(executionID string, completedItems int, stage string, now time.Time)
	CheckBottleneck(executionID, stepName string, elapsed time.Duration, processed, failed int) (progress.Bottleneck, bool)
	Summary(executionID string) progress.Summary
}

// AlertSink is the narrow interface the orchestrator emits alerts through,
// satisfied by *alerts.Emitter.
type AlertSink interface {
	Emit(ctx context.Context, executionID string, kind alert.Kind, severity alert.Severity, title, body, component string, payload map[string]any) (string, error)
}

// ResourceSampler is the narrow interface used to attach a resource usage
// snapshot at stage boundaries, satisfied by *resource.Sampler.
type ResourceSampler interface {
	Sample() execution.ResourceUsage
}

type noopAlertSink struct{}

func (noopAlertSink) Emit(context.Context, string, alert.Kind, alert.Severity, string, string, string, map[string]any) (string, error) {
	return "", nil
}

type noopProgressSink struct{}

func (noopProgressSink) StartTracking(string, int, time.Time) {}
func (noopProgressSink) StopTracking(string)                  {}
func (noopProgressSink) Observe(string, int, string, time.Time) {}
func (noopProgressSink) CheckBottleneck(string, string, time.Duration, int, int) (progress.Bottleneck, bool) {
	return progress.Bottleneck{}, false
}
func (noopProgressSink) Summary(string) progress.Summary { return progress.Summary{} }

type noopResourceSampler struct{}

func (noopResourceSampler) Sample() execution.ResourceUsage { return execution.ResourceUsage{} }

// controlState holds one running execution's pause/cancel intents and the
// channels workers rendezvous on.
type controlState struct {
	mu        sync.Mutex
	paused    bool
	cancelled bool
	resumeCh  chan struct{}
	cancelCh  chan struct{}
}

func newControlState() *controlState {
	return &controlState{resumeCh: make(chan struct{}), cancelCh: make(chan struct{})}
}

func (c *controlState) requestPause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

func (c *controlState) requestResume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resumeCh)
	c.resumeCh = make(chan struct{})
}

func (c *controlState) requestCancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	close(c.cancelCh)
}

func (c *controlState) isPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *controlState) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *controlState) waitResumeOrCancel() {
	c.mu.Lock()
	resumeCh, cancelCh := c.resumeCh, c.cancelCh
	c.mu.Unlock()
	select {
	case <-resumeCh:
	case <-cancelCh:
	}
}

// Orchestrator is the Orchestrator named in §4.1.
type Orchestrator struct {
	store    storage.Store
	cache    cache.Cache
	registry *Registry
	tracker  ProgressSink
	alerts   AlertSink
	sampler  ResourceSampler
	log      *logger.Logger
	tracer   core.Tracer
	hooks    core.ObservationHooks

	defaultConcurrency int

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	controls map[string]*controlState
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithTracker attaches the Progress Tracker.
func WithTracker(tracker ProgressSink) Option {
	return func(o *Orchestrator) {
		if tracker != nil {
			o.tracker = tracker
		}
	}
}

// WithAlertSink attaches the Alert Emitter.
func WithAlertSink(sink AlertSink) Option {
	return func(o *Orchestrator) {
		if sink != nil {
			o.alerts = sink
		}
	}
}

// WithResourceSampler attaches a resource usage sampler.
func WithResourceSampler(s ResourceSampler) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sampler = s
		}
	}
}

// WithTracer attaches a span tracer to per-stage and per-item dispatch.
func WithTracer(tracer core.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithObservationHooks attaches metrics/observation callbacks.
func WithObservationHooks(hooks core.ObservationHooks) Option {
	return func(o *Orchestrator) { o.hooks = hooks }
}

// WithDefaultConcurrency overrides the default per-stage max_concurrency (10).
func WithDefaultConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.defaultConcurrency = n
		}
	}
}

// New constructs an Orchestrator. The registry must already hold every
// template this orchestrator will be asked to start.
func New(store storage.Store, c cache.Cache, registry *Registry, log *logger.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = logger.NewDefault("orchestrator")
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:              store,
		cache:              c,
		registry:           registry,
		tracker:            noopProgressSink{},
		alerts:             noopAlertSink{},
		sampler:            noopResourceSampler{},
		log:                log,
		tracer:             core.NoopTracer,
		hooks:              core.NoopObservationHooks,
		defaultConcurrency: 10,
		baseCtx:            baseCtx,
		baseCancel:         baseCancel,
		controls:           make(map[string]*controlState),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Shutdown cancels the root context shared by every in-flight execution,
// which ends work that honours that context (stage handlers, platform
// calls, store calls). It records no cancel intent, so it does not move
// executions to cancelled the way an explicit Cancel does.
func (o *Orchestrator) Shutdown() {
	o.baseCancel()
}

// Descriptor advertises the Orchestrator's placement and capabilities.
func (o *Orchestrator) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   "orchestrator",
		Domain: "workflow-execution",
		Layer:  core.LayerEngine,
	}.WithCapabilities("stage-dag-execution", "pause-resume-cancel", "fan-out-fan-in")
}

func (o *Orchestrator) controlFor(executionID string) *controlState {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.controls[executionID]
	if !ok {
		c = newControlState()
		o.controls[executionID] = c
	}
	return c
}

func (o *Orchestrator) dropControl(executionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.controls, executionID)
}

// Start creates an Execution in pending and kicks off asynchronous
// processing, returning the execution id immediately.
func (o *Orchestrator) Start(ctx context.Context, templateName string, items []platform.Item, config map[string]any) (string, error) {
	rt, ok := o.registry.Get(templateName)
	if !ok {
		return "", &UnknownTemplateError{TemplateName: templateName}
	}
	if len(items) == 0 {
		return "", &InvalidSelectorError{TemplateName: templateName}
	}

	now := time.Now().UTC()
	exec := execution.Execution{
		ID:           uuid.NewString(),
		TemplateName: templateName,
		Status:       execution.StatusPending,
		Config:       config,
		Steps:        execution.StepCounters{Total: len(rt.Template.Stages)},
		Items:        execution.ItemCounters{Total: len(items)},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := o.store.CreateExecution(ctx, exec)
	if err != nil {
		return "", err
	}

	o.putItems(ctx, created.ID, items)
	o.tracker.StartTracking(created.ID, len(items), now)
	o.controlFor(created.ID)

	go o.run(created, rt, items, 0)
	return created.ID, nil
}

// Status returns the current persisted snapshot of an execution.
func (o *Orchestrator) Status(ctx context.Context, executionID string) (execution.Execution, error) {
	exec, err := o.store.GetExecution(ctx, executionID)
	if err != nil {
		if storage.IsNotFound(err) {
			return execution.Execution{}, &NotFoundError{ExecutionID: executionID}
		}
		return execution.Execution{}, err
	}
	return exec, nil
}

// Pause sets a pause intent, honoured at the next stage boundary. A no-op
// if the execution is already paused or terminal.
func (o *Orchestrator) Pause(ctx context.Context, executionID string) error {
	exec, err := o.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() || exec.Status == execution.StatusPaused {
		return nil
	}
	o.controlFor(executionID).requestPause()
	exec.PauseRequested = true
	exec.UpdatedAt = time.Now().UTC()
	_, err = o.store.UpdateExecution(ctx, exec)
	return err
}

// Resume clears a pause intent, resuming at the next stage boundary.
func (o *Orchestrator) Resume(ctx context.Context, executionID string) error {
	exec, err := o.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	o.controlFor(executionID).requestResume()
	if exec.Status.Terminal() {
		return nil
	}
	exec.PauseRequested = false
	exec.UpdatedAt = time.Now().UTC()
	_, err = o.store.UpdateExecution(ctx, exec)
	return err
}

// Cancel sets a cancel intent. The in-flight per-item unit already
// dispatched completes; no new work is dispatched after the signal fires.
func (o *Orchestrator) Cancel(ctx context.Context, executionID string) error {
	exec, err := o.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return nil
	}
	ctrl := o.controlFor(executionID)
	ctrl.requestCancel()
	ctrl.requestResume() // unblock a paused wait so cancellation is observed promptly
	exec.CancelRequested = true
	exec.UpdatedAt = time.Now().UTC()
	_, err = o.store.UpdateExecution(ctx, exec)
	return err
}

// ListExecutions proxies to the State Store.
func (o *Orchestrator) ListExecutions(ctx context.Context, filter storage.ExecutionFilter) ([]execution.Execution, error) {
	filter.Limit = core.ClampLimit(filter.Limit, core.DefaultListLimit, core.MaxListLimit)
	return o.store.ListExecutions(ctx, filter)
}

// run drives one execution's stage loop to a terminal state. It owns the
// execution from startIndex onward: 0 for a fresh Start, or a recovered
// step index when invoked by the Recoverer.
func (o *Orchestrator) run(exec execution.Execution, rt RegisteredTemplate, items []platform.Item, startIndex int) {
	ctx := o.baseCtx
	ctrl := o.controlFor(exec.ID)
	defer o.dropControl(exec.ID)
	defer o.tracker.StopTracking(exec.ID)

	order := rt.Template.TopologicalOrder()
	stageStatus := make(map[string]step.Status, len(order))
	requiredStages := rt.Template.StageNames()

	exec.Status = execution.StatusRunning
	if exec.StartedAt.IsZero() {
		exec.StartedAt = time.Now().UTC()
	}
	exec.UpdatedAt = time.Now().UTC()
	exec, _ = o.store.UpdateExecution(ctx, exec)

	throttle := &snapshotThrottle{}
	processedSoFar := 0

	for idx := startIndex; idx < len(order); idx++ {
		sd := order[idx]

		if blocked, failedDep := dependencyBlocked(sd, stageStatus); blocked {
			exec = o.failExecution(ctx, exec, fmt.Sprintf("stage %q depends on failed stage %q with no on_failure_skip policy", sd.Name, failedDep))
			return
		}
		if skipped, failedDep := dependencySkippable(sd, stageStatus); skipped {
			stageStatus[sd.Name] = step.StatusSkipped
			o.log.WithExecution(exec.ID).WithField("stage", sd.Name).
				Infof("skipping stage: predecessor %q failed and on_failure_skip is set", failedDep)
			continue
		}

		if ctrl.isCancelled() {
			exec = o.cancelExecution(ctx, exec)
			return
		}
		if ctrl.isPaused() {
			exec.Status = execution.StatusPaused
			exec.UpdatedAt = time.Now().UTC()
			exec, _ = o.store.UpdateExecution(ctx, exec)
			ctrl.waitResumeOrCancel()
			if ctrl.isCancelled() {
				exec = o.cancelExecution(ctx, exec)
				return
			}
			exec.Status = execution.StatusRunning
			exec.UpdatedAt = time.Now().UTC()
			exec, _ = o.store.UpdateExecution(ctx, exec)
		}

		cfg := mergeConfig(sd.DefaultConfig, exec.Config, sd.Name)

		now := time.Now().UTC()
		st := step.Step{
			ID:          uuid.NewString(),
			ExecutionID: exec.ID,
			Ordinal:     idx,
			Name:        sd.Name,
			Type:        sd.Type,
			Status:      step.StatusRunning,
			StartedAt:   now,
			Items:       step.ItemCounters{Total: len(items)},
			Config:      cfg,
		}
		st, _ = o.store.CreateStep(ctx, st)

		o.putSnapshot(ctx, exec.ID, snapshot{
			StepIndex:       idx,
			TemplateName:    exec.TemplateName,
			PauseRequested:  ctrl.isPaused(),
			CancelRequested: ctrl.isCancelled(),
		})

		outcomes, stageErr := o.runStage(ctx, exec, st, sd, rt.Handlers[sd.Name], items, cfg, ctrl, throttle, &processedSoFar)

		processed, succeeded, failed := tallyOutcomes(outcomes)
		st.Items = step.ItemCounters{Total: len(items), Processed: processed, Succeeded: succeeded, Failed: failed}
		st.CompletedAt = time.Now().UTC()
		if stageErr != nil {
			st.Status = step.StatusFailed
			st.ErrorDetail = stageErr.Error()
		} else {
			st.Status = step.StatusCompleted
		}
		st, _ = o.store.UpdateStep(ctx, st)
		stageStatus[sd.Name] = st.Status

		o.applyOutcomes(ctx, exec.ID, sd.Name, outcomes, requiredStages)

		exec.Steps.Completed = countStatus(stageStatus, step.StatusCompleted)
		exec.Steps.Failed = countStatus(stageStatus, step.StatusFailed)
		exec.Items = execution.ItemCounters{Total: len(items), Processed: processed, Succeeded: succeeded, Failed: failed}
		exec.Rates.ProcessingRate = o.summaryRate(exec.ID)
		if len(items) > 0 {
			exec.Rates.SuccessRate = float64(succeeded) / float64(len(items)) * 100
			exec.Rates.ErrorRate = float64(failed) / float64(len(items)) * 100
		}
		exec.ResourceUsage = o.sampler.Sample()
		exec.UpdatedAt = time.Now().UTC()

		if stageErr != nil {
			exec.ErrorLog = stageErr.Error()
			exec.Status = execution.StatusFailed
			exec.EndedAt = time.Now().UTC()
			exec, _ = o.store.UpdateExecution(ctx, exec)
			o.alertStageFailure(ctx, exec, sd.Name, stageErr)
			return
		}
		exec, _ = o.store.UpdateExecution(ctx, exec)

		if ctrl.isCancelled() {
			exec = o.cancelExecution(ctx, exec)
			return
		}
	}

	exec.Status = execution.StatusCompleted
	exec.EndedAt = time.Now().UTC()
	exec.ResultsSummary = map[string]any{
		"duration_seconds": exec.EndedAt.Sub(exec.StartedAt).Seconds(),
		"success_rate":     exec.Rates.SuccessRate,
		"total_items":      exec.Items.Total,
		"succeeded_items":  exec.Items.Succeeded,
		"failed_items":     exec.Items.Failed,
	}
	exec.UpdatedAt = time.Now().UTC()
	_, _ = o.store.UpdateExecution(ctx, exec)
}

func dependencyBlocked(sd template.StageDescriptor, status map[string]step.Status) (bool, string) {
	for _, dep := range sd.DependsOn {
		if status[dep] == step.StatusFailed && !sd.OnFailureSkip {
			return true, dep
		}
	}
	return false, ""
}

func dependencySkippable(sd template.StageDescriptor, status map[string]step.Status) (bool, string) {
	for _, dep := range sd.DependsOn {
		if status[dep] == step.StatusFailed && sd.OnFailureSkip {
			return true, dep
		}
	}
	return false, ""
}

func countStatus(status map[string]step.Status, want step.Status) int {
	n := 0
	for _, s := range status {
		if s == want {
			n++
		}
	}
	return n
}

func (o *Orchestrator) failExecution(ctx context.Context, exec execution.Execution, reason string) execution.Execution {
	exec.Status = execution.StatusFailed
	exec.ErrorLog = reason
	exec.EndedAt = time.Now().UTC()
	exec.UpdatedAt = exec.EndedAt
	exec, _ = o.store.UpdateExecution(ctx, exec)
	_, _ = o.alerts.Emit(ctx, exec.ID, alert.KindError, alert.SeverityHigh, "execution failed: stage dependency", reason, "orchestrator", map[string]any{
		"execution_id": exec.ID,
	})
	return exec
}

func (o *Orchestrator) cancelExecution(ctx context.Context, exec execution.Execution) execution.Execution {
	exec.Status = execution.StatusCancelled
	exec.EndedAt = time.Now().UTC()
	exec.UpdatedAt = exec.EndedAt
	exec, _ = o.store.UpdateExecution(ctx, exec)
	return exec
}

func (o *Orchestrator) alertStageFailure(ctx context.Context, exec execution.Execution, stageName string, cause error) {
	_, _ = o.alerts.Emit(ctx, exec.ID, alert.KindError, alert.SeverityHigh,
		fmt.Sprintf("stage %q failed", stageName), cause.Error(), "orchestrator", map[string]any{
			"execution_id": exec.ID,
			"stage":        stageName,
		})
}

func (o *Orchestrator) summaryRate(executionID string) float64 {
	return o.tracker.Summary(executionID).ProcessingRate
}

func tallyOutcomes(outcomes []ItemOutcome) (processed, succeeded, failed int) {
	for _, oc := range outcomes {
		processed++
		switch itemresult.SubStatus(oc.Status) {
		case itemresult.SubStatusCompleted:
			succeeded++
		case itemresult.SubStatusFailed:
			failed++
		}
	}
	return
}

// applyOutcomes merges one stage's per-item outcomes into each item's
// ItemResult row, recomputing the overall final_status per §4 item-result
// semantics.
func (o *Orchestrator) applyOutcomes(ctx context.Context, executionID, stageName string, outcomes []ItemOutcome, requiredStages []string) {
	for _, oc := range outcomes {
		existing, err := o.store.GetItemResult(ctx, executionID, oc.ItemID)
		if err != nil && !storage.IsNotFound(err) {
			continue
		}
		if existing.ID == "" {
			existing = itemresult.ItemResult{
				ID:          uuid.NewString(),
				ExecutionID: executionID,
				ItemID:      oc.ItemID,
				Stages:      map[string]itemresult.StageOutcome{},
			}
		}
		if existing.Stages == nil {
			existing.Stages = map[string]itemresult.StageOutcome{}
		}
		existing.Stages[stageName] = itemresult.StageOutcome{
			Stage:       stageName,
			Status:      itemresult.SubStatus(oc.Status),
			CompletedAt: time.Now().UTC(),
			Artifact:    oc.Artifact,
		}
		if oc.Err != nil {
			existing.LastError = oc.Err.Error()
		}
		existing.FinalStatus = itemresult.DeriveFinalStatus(requiredStages, existing.Stages)
		_, _ = o.store.UpsertItemResult(ctx, existing)
	}
}

// mergeConfig layers template-default config under run config under a
// per-stage override block addressed by stage name, per §4.1 step (c).
func mergeConfig(stageDefault, runConfig map[string]any, stageName string) map[string]any {
	merged := make(map[string]any, len(stageDefault)+len(runConfig))
	for k, v := range stageDefault {
		merged[k] = v
	}
	for k, v := range runConfig {
		if k == stageName {
			continue
		}
		merged[k] = v
	}
	if override, ok := runConfig[stageName].(map[string]any); ok {
		for k, v := range override {
			merged[k] = v
		}
	}
	return merged
}
