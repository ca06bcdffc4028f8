package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/shipforge/orchestrator/internal/app/domain/execution"
	"github.com/shipforge/orchestrator/internal/app/domain/template"
	"github.com/shipforge/orchestrator/internal/app/storage/memory"
)

func registerEchoTemplate(t *testing.T, registry *Registry, name string) {
	t.Helper()
	tmpl := template.Template{Name: name, Stages: []template.StageDescriptor{
		{Name: "work", ParallelAllowed: true},
	}}
	if err := registry.Register(RegisteredTemplate{Template: tmpl, Handlers: map[string]StageHandler{
		"work": {Item: alwaysCompleteItemHandler},
	}}); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func staleRunningExecution(ctx context.Context, t *testing.T, store *memory.Store, templateName string, total int) execution.Execution {
	t.Helper()
	exec, err := store.CreateExecution(ctx, execution.Execution{
		TemplateName: templateName,
		Status:       execution.StatusRunning,
		Items:        execution.ItemCounters{Total: total},
	})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}
	// The memory store stamps UpdatedAt with the current time on every
	// write, so this backdated value does not persist; a test that goes
	// through ListRecoveryCandidates uses a short stale threshold instead.
	exec.UpdatedAt = time.Now().Add(-2 * time.Hour)
	exec, err = store.UpdateExecution(ctx, exec)
	if err != nil {
		t.Fatalf("backdate execution: %v", err)
	}
	return exec
}

func TestRecover_ResumesFromSnapshotAndCompletes(t *testing.T) {
	orch, registry := newTestOrchestrator(t)
	registerEchoTemplate(t, registry, "echo")
	ctx := context.Background()
	store := orch.store.(*memory.Store)

	exec := staleRunningExecution(ctx, t, store, "echo", 2)
	orch.putSnapshot(ctx, exec.ID, snapshot{StepIndex: 0, TemplateName: "echo"})
	orch.putItems(ctx, exec.ID, items(2))

	rec := NewRecoverer(orch, store, nil, time.Minute)
	if !rec.recover(ctx, exec) {
		t.Fatal("expected recover to take ownership of the stale execution")
	}

	got := waitTerminal(t, orch, exec.ID, 2*time.Second)
	if got.Status != execution.StatusCompleted {
		t.Fatalf("expected the recovered execution to complete, got %s", got.Status)
	}
}

func TestRecover_IgnoresTerminalExecutions(t *testing.T) {
	orch, registry := newTestOrchestrator(t)
	registerEchoTemplate(t, registry, "echo")
	ctx := context.Background()
	store := orch.store.(*memory.Store)

	exec, err := store.CreateExecution(ctx, execution.Execution{TemplateName: "echo", Status: execution.StatusCompleted})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}

	rec := NewRecoverer(orch, store, nil, time.Minute)
	if rec.recover(ctx, exec) {
		t.Fatal("expected recover to refuse a terminal execution")
	}
}

func TestRecover_MissingSnapshotRefusesRecovery(t *testing.T) {
	orch, registry := newTestOrchestrator(t)
	registerEchoTemplate(t, registry, "echo")
	ctx := context.Background()
	store := orch.store.(*memory.Store)

	exec := staleRunningExecution(ctx, t, store, "echo", 1)
	// No snapshot or cached items written for this execution id.

	rec := NewRecoverer(orch, store, nil, time.Minute)
	if rec.recover(ctx, exec) {
		t.Fatal("expected recover to refuse an execution with no snapshot")
	}
}

func TestRecover_UnknownTemplateRefusesRecovery(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()
	store := orch.store.(*memory.Store)

	exec := staleRunningExecution(ctx, t, store, "ghost-template", 1)
	orch.putSnapshot(ctx, exec.ID, snapshot{StepIndex: 0, TemplateName: "ghost-template"})
	orch.putItems(ctx, exec.ID, items(1))

	rec := NewRecoverer(orch, store, nil, time.Minute)
	if rec.recover(ctx, exec) {
		t.Fatal("expected recover to refuse an execution whose template is no longer registered")
	}
}

func TestRecoverer_SweepPicksUpStaleExecutionsOnStart(t *testing.T) {
	orch, registry := newTestOrchestrator(t)
	registerEchoTemplate(t, registry, "echo")
	ctx := context.Background()
	store := orch.store.(*memory.Store)

	exec := staleRunningExecution(ctx, t, store, "echo", 1)
	orch.putSnapshot(ctx, exec.ID, snapshot{StepIndex: 0, TemplateName: "echo"})
	orch.putItems(ctx, exec.ID, items(1))

	// Let the execution's last write age past a 1ms stale threshold.
	time.Sleep(10 * time.Millisecond)
	rec := NewRecoverer(orch, store, nil, time.Millisecond)
	if err := rec.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rec.Stop(ctx)

	got := waitTerminal(t, orch, exec.ID, 2*time.Second)
	if got.Status != execution.StatusCompleted {
		t.Fatalf("expected the swept execution to complete, got %s", got.Status)
	}
}
