package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/shipforge/orchestrator/internal/app/domain/execution"
	"github.com/shipforge/orchestrator/internal/app/domain/step"
	"github.com/shipforge/orchestrator/internal/app/domain/template"
)

func execFixture() execution.Execution {
	return execution.Execution{ID: "exec-fixture", TemplateName: "fixture"}
}

func stepFixture() step.Step {
	return step.Step{ID: "step-fixture", Name: "work", StartedAt: time.Now().UTC()}
}

func stageFixture(parallel bool) template.StageDescriptor {
	return template.StageDescriptor{Name: "work", ParallelAllowed: parallel}
}

func TestResolveConcurrency_TypesAndFallback(t *testing.T) {
	cases := []struct {
		name     string
		cfg      map[string]any
		fallback int
		want     int
	}{
		{"missing key falls back", map[string]any{}, 7, 7},
		{"int value wins", map[string]any{"max_concurrency": 3}, 7, 3},
		{"float64 value from a JSON round-trip wins", map[string]any{"max_concurrency": float64(4)}, 7, 4},
		{"zero int falls back", map[string]any{"max_concurrency": 0}, 7, 7},
		{"negative float64 falls back", map[string]any{"max_concurrency": float64(-1)}, 7, 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := resolveConcurrency(tc.cfg, tc.fallback); got != tc.want {
				t.Fatalf("resolveConcurrency(%+v, %d) = %d, want %d", tc.cfg, tc.fallback, got, tc.want)
			}
		})
	}
}

func TestRunItemFanOut_NilHandlerYieldsNoOutcomes(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctrl := newControlState()
	throttle := &snapshotThrottle{}
	processed := 0
	outcomes := orch.runItemFanOut(context.Background(), execFixture(), stepFixture(), stageFixture(true), nil, items(3), nil, ctrl, throttle, &processed)
	if outcomes != nil {
		t.Fatalf("expected no outcomes from a nil item handler, got %+v", outcomes)
	}
}

func TestRunBatch_NilHandlerReturnsError(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctrl := newControlState()
	throttle := &snapshotThrottle{}
	processed := 0
	_, err := orch.runBatch(context.Background(), execFixture(), stepFixture(), stageFixture(false), nil, items(1), nil, ctrl, throttle, &processed)
	if err == nil {
		t.Fatal("expected an error when a non-parallel stage has no batch handler")
	}
}
