package alerts

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/shipforge/orchestrator/internal/app/domain/alert"
	"github.com/shipforge/orchestrator/internal/app/storage/memory"
)

func TestEmitter_EmitPersistsAndStreams(t *testing.T) {
	store := memory.New()
	var buf bytes.Buffer
	e := New(store).WithStream(zerolog.New(&buf))

	id, err := e.Emit(context.Background(), "exec-1", alert.KindError, alert.SeverityHigh,
		"stage failed", "body", "orchestrator", map[string]any{"step": "registration"})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty alert id")
	}

	got, err := store.GetAlert(context.Background(), id)
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if got.Title != "stage failed" || got.Severity != alert.SeverityHigh {
		t.Fatalf("unexpected persisted alert: %+v", got)
	}
	if !strings.Contains(buf.String(), "stage failed") {
		t.Fatalf("expected structured stream to carry the alert title, got %q", buf.String())
	}
}

func TestEmitter_AcknowledgeAndResolve(t *testing.T) {
	store := memory.New()
	e := New(store)
	ctx := context.Background()

	id, err := e.Emit(ctx, "exec-1", alert.KindWarning, alert.SeverityMedium, "slow stage", "", "orchestrator", nil)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	if err := e.Acknowledge(ctx, id, "ops-oncall"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	acked, err := store.GetAlert(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !acked.Acknowledged || acked.AcknowledgedBy != "ops-oncall" {
		t.Fatalf("expected alert to be acknowledged by ops-oncall, got %+v", acked)
	}

	if err := e.Resolve(ctx, id, "restarted the worker pool"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	resolved, err := store.GetAlert(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !resolved.Resolved() || resolved.ActionTaken != "restarted the worker pool" {
		t.Fatalf("expected alert to carry a resolution note, got %+v", resolved)
	}
}

func TestEmitter_ListUnacknowledgedExcludesAcked(t *testing.T) {
	store := memory.New()
	e := New(store)
	ctx := context.Background()

	id1, _ := e.Emit(ctx, "exec-1", alert.KindError, alert.SeverityHigh, "a", "", "orchestrator", nil)
	_, _ = e.Emit(ctx, "exec-1", alert.KindError, alert.SeverityHigh, "b", "", "orchestrator", nil)

	if err := e.Acknowledge(ctx, id1, "someone"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	list, err := e.ListUnacknowledged(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, a := range list {
		if a.ID == id1 {
			t.Fatal("acknowledged alert must not appear in the unacknowledged list")
		}
	}
}

func TestEmitter_ListByExecution(t *testing.T) {
	store := memory.New()
	e := New(store)
	ctx := context.Background()

	_, _ = e.Emit(ctx, "exec-1", alert.KindInfo, alert.SeverityLow, "a", "", "orchestrator", nil)
	_, _ = e.Emit(ctx, "exec-2", alert.KindInfo, alert.SeverityLow, "b", "", "orchestrator", nil)

	list, err := e.ListByExecution(ctx, "exec-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ExecutionID != "exec-1" {
		t.Fatalf("expected exactly one alert scoped to exec-1, got %+v", list)
	}
}
