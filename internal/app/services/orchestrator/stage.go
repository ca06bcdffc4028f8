package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	core "github.com/shipforge/orchestrator/internal/app/core/service"
	"github.com/shipforge/orchestrator/internal/app/domain/alert"
	"github.com/shipforge/orchestrator/internal/app/domain/execution"
	"github.com/shipforge/orchestrator/internal/app/domain/itemresult"
	"github.com/shipforge/orchestrator/internal/app/domain/step"
	"github.com/shipforge/orchestrator/internal/app/domain/template"
	"github.com/shipforge/orchestrator/internal/app/platform"
	"github.com/shipforge/orchestrator/internal/app/services/progress"
)

// runStage invokes the stage processor for one stage: a bounded-concurrency
// per-item fan-out when the stage allows parallelism, or a single whole-batch
// call otherwise. Failures in one item never halt processing of the others;
// a non-nil returned error means the stage processor itself raised (a
// systemic failure, distinct from a per-item failure captured in outcomes).
func (o *Orchestrator) runStage(
	ctx context.Context,
	exec execution.Execution,
	st step.Step,
	sd template.StageDescriptor,
	handler StageHandler,
	items []platform.Item,
	cfg map[string]any,
	ctrl *controlState,
	throttle *snapshotThrottle,
	processedSoFar *int,
) ([]ItemOutcome, error) {
	meta := map[string]string{"execution_id": exec.ID, "stage": sd.Name}
	spanCtx, finishSpan := o.tracer.StartSpan(ctx, "orchestrator.stage", meta)
	finishObs := core.StartObservation(spanCtx, o.hooks, meta)

	var outcomes []ItemOutcome
	var err error
	if sd.ParallelAllowed {
		outcomes = o.runItemFanOut(spanCtx, exec, st, sd, handler.Item, items, cfg, ctrl, throttle, processedSoFar)
	} else {
		outcomes, err = o.runBatch(spanCtx, exec, st, sd, handler.Batch, items, cfg, ctrl, throttle, processedSoFar)
	}

	finishObs(err)
	finishSpan(err)
	return outcomes, err
}

func (o *Orchestrator) runItemFanOut(
	ctx context.Context,
	exec execution.Execution,
	st step.Step,
	sd template.StageDescriptor,
	handler ItemHandler,
	items []platform.Item,
	cfg map[string]any,
	ctrl *controlState,
	throttle *snapshotThrottle,
	processedSoFar *int,
) []ItemOutcome {
	if handler == nil {
		return nil
	}
	concurrency := resolveConcurrency(cfg, o.defaultConcurrency)
	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	var mu sync.Mutex
	outcomes := make([]ItemOutcome, 0, len(items))
	var processed, failed int

	for _, item := range items {
		if ctrl.isCancelled() {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(item platform.Item) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := handler(ctx, item, cfg)

			mu.Lock()
			outcomes = append(outcomes, outcome)
			processed++
			*processedSoFar++
			if itemresult.SubStatus(outcome.Status) == itemresult.SubStatusFailed {
				failed++
			}
			now := time.Now().UTC()
			o.tracker.Observe(exec.ID, *processedSoFar, sd.Name, now)
			if throttle.due(now, *processedSoFar) {
				o.putSnapshot(ctx, exec.ID, snapshot{
					StepIndex:         st.Ordinal,
					TemplateName:      exec.TemplateName,
					LastProgressItems: *processedSoFar,
					LastProgressAt:    now,
					PauseRequested:    ctrl.isPaused(),
					CancelRequested:   ctrl.isCancelled(),
				})
				throttle.mark(now, *processedSoFar)
			}
			if b, ok := o.tracker.CheckBottleneck(exec.ID, sd.Name, now.Sub(st.StartedAt), processed, failed); ok {
				o.emitBottleneckAlert(ctx, exec.ID, sd.Name, b)
			}
			mu.Unlock()
		}(item)
	}
	wg.Wait()
	return outcomes
}

func (o *Orchestrator) runBatch(
	ctx context.Context,
	exec execution.Execution,
	st step.Step,
	sd template.StageDescriptor,
	handler BatchHandler,
	items []platform.Item,
	cfg map[string]any,
	ctrl *controlState,
	throttle *snapshotThrottle,
	processedSoFar *int,
) ([]ItemOutcome, error) {
	if handler == nil {
		return nil, fmt.Errorf("orchestrator: stage %q has no batch handler", sd.Name)
	}
	report, err := handler(ctx, items, cfg, ctrl.cancelCh)
	if err != nil {
		return report.Outcomes, err
	}
	*processedSoFar += len(report.Outcomes)
	now := time.Now().UTC()
	o.tracker.Observe(exec.ID, *processedSoFar, sd.Name, now)

	failed := 0
	for _, oc := range report.Outcomes {
		if itemresult.SubStatus(oc.Status) == itemresult.SubStatusFailed {
			failed++
		}
	}
	if b, ok := o.tracker.CheckBottleneck(exec.ID, sd.Name, now.Sub(st.StartedAt), len(report.Outcomes), failed); ok {
		o.emitBottleneckAlert(ctx, exec.ID, sd.Name, b)
	}
	return report.Outcomes, nil
}

func (o *Orchestrator) emitBottleneckAlert(ctx context.Context, executionID, stageName string, b progress.Bottleneck) {
	_, _ = o.alerts.Emit(ctx, executionID, alert.KindWarning, b.Severity,
		fmt.Sprintf("bottleneck detected in stage %q: %s", stageName, b.Kind), "", "progress", map[string]any{
			"execution_id": executionID,
			"stage":        stageName,
			"bottleneck":   string(b.Kind),
		})
}

// resolveConcurrency reads max_concurrency from a merged stage config,
// tolerating the numeric types that survive a JSON round-trip.
func resolveConcurrency(cfg map[string]any, fallback int) int {
	raw, ok := cfg["max_concurrency"]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return fallback
}
