// Package templates holds the workflow templates registered at process
// startup: the static, read-only "workflow as data" registry named in
// §9 of the design, expressed here as Go values rather than a config file
// since the template set does not change without a code change.
package templates

import (
	"context"
	"fmt"
	"time"

	"github.com/shipforge/orchestrator/internal/app/domain/alert"
	"github.com/shipforge/orchestrator/internal/app/domain/itemresult"
	"github.com/shipforge/orchestrator/internal/app/domain/template"
	"github.com/shipforge/orchestrator/internal/app/platform"
	"github.com/shipforge/orchestrator/internal/app/services/orchestrator"
)

// MultiPlatformRegistration is the canonical template: validate the
// sourced product, register it on every target platform, then notify.
// The validate stage is a parallel-allowed item loop; registration and
// notify are whole-batch stages, and registration is a single call into
// the Registration Engine, which owns its own per-item/per-platform fan-out.
const MultiPlatformRegistration = "multi_platform_registration"

// Template returns the stage graph for MultiPlatformRegistration.
func Template() template.Template {
	return template.Template{
		Name: MultiPlatformRegistration,
		Stages: []template.StageDescriptor{
			{
				Name:            "validate",
				Type:            "item",
				ParallelAllowed: true,
				DefaultConfig:   map[string]any{"max_concurrency": 10},
			},
			{
				Name:            "registration",
				Type:            "batch",
				DependsOn:       []string{"validate"},
				ParallelAllowed: false,
				OnFailureSkip:   false,
			},
			{
				Name:            "notify",
				Type:            "batch",
				DependsOn:       []string{"registration"},
				ParallelAllowed: false,
				OnFailureSkip:   true,
			},
		},
	}
}

// validateHandler rejects items missing the attributes every platform
// transform needs, without making any network call.
func validateHandler(_ context.Context, item platform.Item, _ map[string]any) orchestrator.ItemOutcome {
	if name, _ := item.Attributes["name"].(string); name == "" {
		return orchestrator.ItemOutcome{
			ItemID: item.ID,
			Status: string(itemresult.SubStatusFailed),
			Err:    fmt.Errorf("item %q missing a name attribute", item.ID),
		}
	}
	return orchestrator.ItemOutcome{ItemID: item.ID, Status: string(itemresult.SubStatusCompleted)}
}

// notifyHandler emits a completion alert summarising a stage's outcomes. It is
// a thin closure rather than a dedicated service: the orchestrator core
// components (Alert Emitter) do the real work.
func notifyHandler(alerts orchestrator.AlertSink) orchestrator.BatchHandler {
	return func(ctx context.Context, items []platform.Item, _ map[string]any, _ <-chan struct{}) (orchestrator.StageReport, error) {
		outcomes := make([]orchestrator.ItemOutcome, 0, len(items))
		for _, it := range items {
			outcomes = append(outcomes, orchestrator.ItemOutcome{ItemID: it.ID, Status: string(itemresult.SubStatusCompleted)})
		}
		_, _ = alerts.Emit(ctx, "", alert.KindInfo, alert.SeverityLow,
			"batch registration run finished", fmt.Sprintf("%d items processed", len(items)), "templates", map[string]any{
				"item_count": len(items),
				"at":         time.Now().UTC(),
			})
		return orchestrator.StageReport{Outcomes: outcomes}, nil
	}
}

// Register builds the RegisteredTemplate for MultiPlatformRegistration and
// adds it to registry, wiring the registration stage to eng.
func Register(registry *orchestrator.Registry, eng orchestrator.RegistrationEngine, alerts orchestrator.AlertSink) error {
	handlers := map[string]orchestrator.StageHandler{
		"validate":     {Item: validateHandler},
		"registration": orchestrator.NewRegistrationStageHandler(eng),
		"notify":       {Batch: notifyHandler(alerts)},
	}
	return registry.Register(orchestrator.RegisteredTemplate{Template: Template(), Handlers: handlers})
}
