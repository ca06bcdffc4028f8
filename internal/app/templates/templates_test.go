package templates

import (
	"context"
	"testing"
	"time"

	"github.com/shipforge/orchestrator/internal/app/domain/alert"
	"github.com/shipforge/orchestrator/internal/app/domain/batch"
	"github.com/shipforge/orchestrator/internal/app/platform"
	"github.com/shipforge/orchestrator/internal/app/services/orchestrator"
	"github.com/shipforge/orchestrator/internal/app/services/registration"
)

func TestTemplate_StageGraphIsValidAndOrdered(t *testing.T) {
	tmpl := Template()
	if err := tmpl.Validate(); err != nil {
		t.Fatalf("expected a valid stage graph, got %v", err)
	}
	order := tmpl.TopologicalOrder()
	pos := make(map[string]int, len(order))
	for i, sd := range order {
		pos[sd.Name] = i
	}
	if pos["validate"] > pos["registration"] || pos["registration"] > pos["notify"] {
		t.Fatalf("expected validate < registration < notify, got order %+v", order)
	}
}

func TestValidateHandler_RejectsItemMissingName(t *testing.T) {
	outcome := validateHandler(context.Background(), platform.Item{ID: "x", Attributes: map[string]any{}}, nil)
	if outcome.Err == nil {
		t.Fatal("expected an error for an item with no name attribute")
	}
}

func TestValidateHandler_AcceptsNamedItem(t *testing.T) {
	outcome := validateHandler(context.Background(), platform.Item{ID: "x", Attributes: map[string]any{"name": "widget"}}, nil)
	if outcome.Err != nil {
		t.Fatalf("expected no error for a named item, got %v", outcome.Err)
	}
}

type capturingAlertSink struct {
	titles []string
	counts []int
}

func (c *capturingAlertSink) Emit(_ context.Context, _ string, _ alert.Kind, _ alert.Severity, title, _, _ string, payload map[string]any) (string, error) {
	c.titles = append(c.titles, title)
	if n, ok := payload["item_count"].(int); ok {
		c.counts = append(c.counts, n)
	}
	return "alert-1", nil
}

func TestNotifyHandler_EmitsCompletionAlertWithItemCount(t *testing.T) {
	sink := &capturingAlertSink{}
	handler := notifyHandler(sink)
	items := []platform.Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	report, err := handler(context.Background(), items, nil, nil)
	if err != nil {
		t.Fatalf("notify handler: %v", err)
	}
	if len(report.Outcomes) != 3 {
		t.Fatalf("expected one outcome per item, got %d", len(report.Outcomes))
	}
	if len(sink.titles) != 1 {
		t.Fatalf("expected exactly one alert emitted, got %v", sink.titles)
	}
	if len(sink.counts) != 1 || sink.counts[0] != 3 {
		t.Fatalf("expected the alert payload to carry item_count=3, got %v", sink.counts)
	}
}

type fakeRegistrationEngine struct{}

func (fakeRegistrationEngine) CreateBatch(context.Context, string, string, []platform.Item, []string, int, batch.Settings, time.Time) (string, error) {
	return "batch-1", nil
}

func (fakeRegistrationEngine) ProcessBatch(context.Context, string, bool) (registration.Summary, error) {
	return registration.Summary{Status: batch.StatusCompleted}, nil
}

func (fakeRegistrationEngine) BatchStatus(context.Context, string) (registration.Detail, error) {
	return registration.Detail{}, nil
}

func (fakeRegistrationEngine) CancelBatch(context.Context, string) (bool, error) {
	return true, nil
}

func TestRegister_WiresEveryStageHandler(t *testing.T) {
	registry := orchestrator.NewRegistry()
	if err := Register(registry, fakeRegistrationEngine{}, &capturingAlertSink{}); err != nil {
		t.Fatalf("register: %v", err)
	}

	rt, ok := registry.Get(MultiPlatformRegistration)
	if !ok {
		t.Fatal("expected the multi-platform registration template to be registered")
	}
	for _, stage := range []string{"validate", "registration", "notify"} {
		if _, ok := rt.Handlers[stage]; !ok {
			t.Fatalf("expected a handler registered for stage %q", stage)
		}
	}
}
