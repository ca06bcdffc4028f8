package postgres

import (
	"testing"
	"time"

	"github.com/shipforge/orchestrator/internal/app/domain/account"
	"github.com/shipforge/orchestrator/internal/app/domain/batch"
	"github.com/shipforge/orchestrator/internal/app/domain/execution"
	"github.com/shipforge/orchestrator/internal/app/domain/itemresult"
	"github.com/shipforge/orchestrator/internal/app/domain/platformregistration"
	"github.com/shipforge/orchestrator/internal/app/domain/step"
	"github.com/shipforge/orchestrator/internal/app/domain/template"
)

func TestStoreCoreIntegration(t *testing.T) {
	store, ctx := newTestStore(t)

	if err := store.RegisterTemplate(ctx, template.Template{
		Name: "dropship-basic",
		Stages: []template.StageDescriptor{
			{Name: "discover", Type: "discover"},
			{Name: "enrich", Type: "enrich", DependsOn: []string{"discover"}},
		},
	}); err != nil {
		t.Fatalf("register template: %v", err)
	}
	if _, err := store.GetTemplate(ctx, "dropship-basic"); err != nil {
		t.Fatalf("get template: %v", err)
	}
	if err := store.RegisterTemplate(ctx, template.Template{Name: "dropship-basic"}); err == nil {
		t.Fatalf("expected duplicate template registration to fail")
	}

	exec, err := store.CreateExecution(ctx, execution.Execution{
		TemplateName: "dropship-basic",
		Status:       execution.StatusPending,
		Config:       map[string]any{"source": "supplier-feed"},
	})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}
	if exec.ID == "" || exec.CreatedAt.IsZero() {
		t.Fatalf("expected execution id and timestamps to be set")
	}

	exec.Status = execution.StatusRunning
	exec.StartedAt = time.Now().UTC()
	exec, err = store.UpdateExecution(ctx, exec)
	if err != nil {
		t.Fatalf("update execution: %v", err)
	}
	if exec.Status != execution.StatusRunning {
		t.Fatalf("expected status running, got %s", exec.Status)
	}

	st, err := store.CreateStep(ctx, step.Step{
		ExecutionID: exec.ID,
		Ordinal:     0,
		Name:        "discover",
		Type:        "discover",
		Status:      step.StatusRunning,
	})
	if err != nil {
		t.Fatalf("create step: %v", err)
	}

	st.Status = step.StatusCompleted
	st.Items.Total = 5
	st.Items.Processed = 5
	st.Items.Succeeded = 5
	if _, err := store.UpdateStep(ctx, st); err != nil {
		t.Fatalf("update step: %v", err)
	}

	steps, err := store.ListSteps(ctx, exec.ID)
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("expected one step, got %d", len(steps))
	}

	item, err := store.UpsertItemResult(ctx, itemresult.ItemResult{
		ExecutionID: exec.ID,
		ItemID:      "item-1",
		FinalStatus: itemresult.FinalRunning,
	})
	if err != nil {
		t.Fatalf("upsert item result: %v", err)
	}

	item.FinalStatus = itemresult.FinalCompleted
	if _, err := store.UpsertItemResult(ctx, item); err != nil {
		t.Fatalf("upsert item result again: %v", err)
	}

	reg, err := store.UpsertPlatformRegistration(ctx, platformregistration.PlatformRegistration{
		ItemResultID: item.ID,
		Platform:     "shopify",
		Status:       platformregistration.StatusPending,
	})
	if err != nil {
		t.Fatalf("upsert platform registration: %v", err)
	}
	if reg.ID == "" {
		t.Fatalf("expected platform registration id to be set")
	}

	retryable, err := store.ListRetryable(ctx, []string{item.ID}, "shopify", time.Now().UTC())
	if err != nil {
		t.Fatalf("list retryable: %v", err)
	}
	if len(retryable) != 1 {
		t.Fatalf("expected one retryable registration, got %d", len(retryable))
	}

	acct, err := store.CreateAccount(ctx, account.Account{
		UserID:   "user-1",
		Platform: "shopify",
		Status:   account.StatusActive,
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if err := store.RecordAPIUsage(ctx, acct.ID, true); err != nil {
		t.Fatalf("record api usage: %v", err)
	}
	active, err := store.ListActiveAccounts(ctx, "user-1", "shopify")
	if err != nil {
		t.Fatalf("list active accounts: %v", err)
	}
	if len(active) != 1 || active[0].APICallsTotal != 1 {
		t.Fatalf("expected one active account with one recorded call, got %+v", active)
	}

	b, err := store.CreateBatch(ctx, batch.Batch{
		UserID:          "user-1",
		TargetPlatforms: []string{"shopify"},
		Total:           1,
		Status:          batch.StatusPending,
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	due, err := store.ListDueBatches(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("list due batches: %v", err)
	}
	if len(due) != 1 || due[0].ID != b.ID {
		t.Fatalf("expected created batch to be due")
	}
}
