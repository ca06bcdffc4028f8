package registration

import (
	"context"
	"testing"
	"time"

	"github.com/shipforge/orchestrator/internal/app/domain/account"
	"github.com/shipforge/orchestrator/internal/app/domain/batch"
	"github.com/shipforge/orchestrator/internal/app/domain/itemresult"
	"github.com/shipforge/orchestrator/internal/app/domain/platformregistration"
	cachememory "github.com/shipforge/orchestrator/internal/app/cache/memory"
	"github.com/shipforge/orchestrator/internal/app/platform"
	"github.com/shipforge/orchestrator/internal/app/platform/fake"
	"github.com/shipforge/orchestrator/internal/app/storage/memory"
)

func newTestEngine(t *testing.T, names ...string) (*Engine, *memory.Store, map[string]*fake.Adapter) {
	t.Helper()
	store := memory.New()
	c := cachememory.New(time.Hour, 0)
	registry := platform.NewRegistry()
	adapters := make(map[string]*fake.Adapter, len(names))

	for _, name := range names {
		ad := fake.New(0)
		adapters[name] = ad
		registry.Register(name, platform.Binding{
			Adapter:   ad,
			Transform: identityTransform,
			ExtractID: extractProductID,
		})
		_, err := store.CreateAccount(context.Background(), account.Account{
			UserID:   "user-1",
			Platform: name,
			Status:   account.StatusActive,
		})
		if err != nil {
			t.Fatalf("create account: %v", err)
		}
	}

	// Zero backoff so successive test-driven process() calls retry
	// immediately instead of waiting out the real 30s/60s/120s/300s
	// schedule; the attempt cap (4) is unchanged from the default policy.
	eng := New(store, c, registry, nil, WithConcurrency(4),
		WithRetryPolicy(RetryPolicy{BackoffSeconds: []int{0, 0, 0, 0}, MaxAttempts: 4}))
	return eng, store, adapters
}

func identityTransform(item platform.Item) (platform.Payload, error) {
	name, _ := item.Attributes["name"].(string)
	if name == "" {
		return platform.Payload{}, platform.NewInvalidItemError(item.ID, "name")
	}
	return platform.Payload{Name: name, Price: "9.99"}, nil
}

func extractProductID(body platform.ResponseBlob) (string, bool) {
	s := string(body)
	const marker = `"productId":"`
	i := indexOf(s, marker)
	if i < 0 {
		return "", false
	}
	rest := s[i+len(marker):]
	j := indexOf(rest, `"`)
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func items(ids ...string) []platform.Item {
	out := make([]platform.Item, len(ids))
	for i, id := range ids {
		out[i] = platform.Item{ID: id, Attributes: map[string]any{"name": "widget-" + id}}
	}
	return out
}

// §8 scenario 1: happy path, single item, single platform.
func TestProcessBatch_HappyPathSinglePlatform(t *testing.T) {
	eng, store, adapters := newTestEngine(t, "A")
	adapters["A"].Script("item-1", fake.Outcome{ProductID: "P-1"})

	ctx := context.Background()
	batchID, err := eng.CreateBatch(ctx, "user-1", "b1", items("item-1"), []string{"A"}, 0, batch.Settings{}, time.Time{})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}

	summary, err := eng.ProcessBatch(ctx, batchID, false)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if summary.Status != batch.StatusCompleted {
		t.Fatalf("expected batch completed, got %s", summary.Status)
	}
	if summary.Completed != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected counters: %+v", summary)
	}

	ir, err := store.GetItemResult(ctx, batchID, "item-1")
	if err != nil {
		t.Fatalf("get item result: %v", err)
	}
	if ir.FinalStatus != itemresult.FinalCompleted {
		t.Fatalf("expected item final status completed, got %s", ir.FinalStatus)
	}

	regs, err := store.ListPlatformRegistrations(ctx, ir.ID)
	if err != nil {
		t.Fatalf("list registrations: %v", err)
	}
	if len(regs) != 1 || regs[0].PlatformProductID != "P-1" || regs[0].Status != platformregistration.StatusCompleted {
		t.Fatalf("unexpected registration state: %+v", regs)
	}
}

// §8 scenario 2: partial platform failure — A succeeds, B exhausts all
// retry attempts with a transient error.
func TestProcessBatch_PartialPlatformFailure(t *testing.T) {
	eng, store, adapters := newTestEngine(t, "A", "B")
	for _, id := range []string{"item-1", "item-2"} {
		adapters["A"].Script(id, fake.Outcome{ProductID: "P-" + id})
		for i := 0; i < 4; i++ {
			adapters["B"].Script(id, fake.Outcome{Err: platform.NewTransientError(platform.ErrKindHTTP, "server error", nil)})
		}
	}

	ctx := context.Background()
	batchID, err := eng.CreateBatch(ctx, "user-1", "b2", items("item-1", "item-2"), []string{"A", "B"}, 0, batch.Settings{}, time.Time{})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}

	var summary Summary
	for i := 0; i < 4; i++ {
		summary, err = eng.process(ctx, batchID, true, "")
		if err != nil {
			t.Fatalf("process batch attempt %d: %v", i, err)
		}
	}

	if summary.Status != batch.StatusPartiallyCompleted {
		t.Fatalf("expected partially_completed batch, got %s", summary.Status)
	}

	for _, itemID := range []string{"item-1", "item-2"} {
		ir, err := store.GetItemResult(ctx, batchID, itemID)
		if err != nil {
			t.Fatalf("get item result %s: %v", itemID, err)
		}
		if ir.FinalStatus != itemresult.FinalPartiallyCompleted {
			t.Fatalf("expected item %s partially_completed, got %s", itemID, ir.FinalStatus)
		}
		regs, err := store.ListPlatformRegistrations(ctx, ir.ID)
		if err != nil {
			t.Fatalf("list registrations: %v", err)
		}
		for _, r := range regs {
			if r.Platform != "B" {
				continue
			}
			if r.AttemptCount != 4 {
				t.Fatalf("expected B attempt_count=4, got %d", r.AttemptCount)
			}
			if r.Status != platformregistration.StatusFailed {
				t.Fatalf("expected B status failed, got %s", r.Status)
			}
		}
	}
}

// §8 scenario 3: retry success — B fails twice then succeeds on attempt 3.
func TestProcessBatch_RetrySucceedsWithinAttemptCap(t *testing.T) {
	eng, store, adapters := newTestEngine(t, "B")
	adapters["B"].Script("item-1",
		fake.Outcome{Err: platform.NewTransientError(platform.ErrKindHTTP, "503", nil)},
		fake.Outcome{Err: platform.NewTransientError(platform.ErrKindHTTP, "503", nil)},
		fake.Outcome{ProductID: "X"},
	)

	ctx := context.Background()
	batchID, err := eng.CreateBatch(ctx, "user-1", "b3", items("item-1"), []string{"B"}, 0, batch.Settings{}, time.Time{})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}

	var ir itemresult.ItemResult
	for i := 0; i < 3; i++ {
		if _, err := eng.process(ctx, batchID, true, ""); err != nil {
			t.Fatalf("process attempt %d: %v", i, err)
		}
	}
	ir, err = store.GetItemResult(ctx, batchID, "item-1")
	if err != nil {
		t.Fatalf("get item result: %v", err)
	}
	regs, err := store.ListPlatformRegistrations(ctx, ir.ID)
	if err != nil {
		t.Fatalf("list registrations: %v", err)
	}
	if len(regs) != 1 {
		t.Fatalf("expected exactly one registration, got %d", len(regs))
	}
	r := regs[0]
	if r.Status != platformregistration.StatusCompleted || r.AttemptCount != 3 || r.PlatformProductID != "X" {
		t.Fatalf("unexpected final registration state: %+v", r)
	}
}

func TestProcessBatch_TerminalWithoutForceRefuses(t *testing.T) {
	eng, _, adapters := newTestEngine(t, "A")
	adapters["A"].Script("item-1", fake.Outcome{ProductID: "P-1"})

	ctx := context.Background()
	batchID, err := eng.CreateBatch(ctx, "user-1", "b4", items("item-1"), []string{"A"}, 0, batch.Settings{}, time.Time{})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if _, err := eng.ProcessBatch(ctx, batchID, false); err != nil {
		t.Fatalf("first process: %v", err)
	}

	if _, err := eng.ProcessBatch(ctx, batchID, false); err == nil {
		t.Fatal("expected BatchTerminalError reprocessing a completed batch without force")
	}
	if _, err := eng.ProcessBatch(ctx, batchID, true); err != nil {
		t.Fatalf("expected force=true to allow reprocessing, got %v", err)
	}
}

func TestRegisterSingle_CreatesEphemeralBatch(t *testing.T) {
	eng, _, adapters := newTestEngine(t, "A")
	adapters["A"].Script("solo-item", fake.Outcome{ProductID: "P-solo"})

	summary, err := eng.RegisterSingle(context.Background(), "user-1",
		platform.Item{ID: "solo-item", Attributes: map[string]any{"name": "solo widget"}},
		[]string{"A"}, 0)
	if err != nil {
		t.Fatalf("register single: %v", err)
	}
	if summary.Status != batch.StatusCompleted || summary.Completed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestDispatch_InvalidItemNeverCallsNetwork(t *testing.T) {
	eng, store, adapters := newTestEngine(t, "A")

	ctx := context.Background()
	badItem := platform.Item{ID: "bad-item", Attributes: map[string]any{}}
	batchID, err := eng.CreateBatch(ctx, "user-1", "b5", []platform.Item{badItem}, []string{"A"}, 0, batch.Settings{}, time.Time{})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	summary, err := eng.ProcessBatch(ctx, batchID, false)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected the invalid item to fail without dispatch, got %+v", summary)
	}
	if adapters["A"].CallCount() != 0 {
		t.Fatalf("expected zero network calls for an invalid item, got %d", adapters["A"].CallCount())
	}

	ir, err := store.GetItemResult(ctx, batchID, "bad-item")
	if err != nil {
		t.Fatalf("get item result: %v", err)
	}
	if ir.FinalStatus != itemresult.FinalFailed {
		t.Fatalf("expected invalid item to be failed, got %s", ir.FinalStatus)
	}
}

func TestDispatch_NoActiveAccountFailsTheWorkUnit(t *testing.T) {
	store := memory.New()
	c := cachememory.New(time.Hour, 0)
	registry := platform.NewRegistry()
	ad := fake.New(0)
	registry.Register("A", platform.Binding{Adapter: ad, Transform: identityTransform, ExtractID: extractProductID})
	// Deliberately no account created for platform A.
	eng := New(store, c, registry, nil)

	ctx := context.Background()
	batchID, err := eng.CreateBatch(ctx, "user-1", "b6", items("item-1"), []string{"A"}, 0, batch.Settings{}, time.Time{})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	summary, err := eng.ProcessBatch(ctx, batchID, false)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected failure with no active account, got %+v", summary)
	}
	if ad.CallCount() != 0 {
		t.Fatalf("expected no network call when no account is available")
	}
}
