package orchestrator

import (
	"context"
	"time"

	"github.com/shipforge/orchestrator/internal/app/domain/batch"
	"github.com/shipforge/orchestrator/internal/app/domain/itemresult"
	"github.com/shipforge/orchestrator/internal/app/platform"
	"github.com/shipforge/orchestrator/internal/app/services/registration"
)

// RegistrationEngine is the narrow interface NewRegistrationStageHandler
// drives, satisfied by *registration.Engine.
type RegistrationEngine interface {
	CreateBatch(ctx context.Context, userID, name string, items []platform.Item, targetPlatforms []string, priority int, settings batch.Settings, scheduledAt time.Time) (string, error)
	ProcessBatch(ctx context.Context, batchID string, force bool) (registration.Summary, error)
	BatchStatus(ctx context.Context, batchID string) (registration.Detail, error)
	CancelBatch(ctx context.Context, batchID string) (bool, error)
}

// NewRegistrationStageHandler adapts the Registration Engine into a
// whole-batch stage processor: the stage config's target_platforms and
// user_id drive one Registration Engine batch per invocation, and the
// resulting Item Results become this stage's per-item outcomes. Per-item
// fan-out across platforms is owned entirely by the Registration Engine,
// not the Orchestrator (§4.1: "the Registration stage ... uses a
// bounded-concurrency worker pool" internally).
func NewRegistrationStageHandler(eng RegistrationEngine) StageHandler {
	return StageHandler{Batch: func(ctx context.Context, items []platform.Item, cfg map[string]any, cancel <-chan struct{}) (StageReport, error) {
		userID, _ := cfg["user_id"].(string)
		targetPlatforms := stringSliceFromConfig(cfg, "target_platforms")
		priority := intFromConfig(cfg, "priority", 0)

		batchID, err := eng.CreateBatch(ctx, userID, "orchestrator-stage", items, targetPlatforms, priority, batch.Settings{}, time.Time{})
		if err != nil {
			return StageReport{}, err
		}

		done := make(chan struct{})
		go func() {
			select {
			case <-cancel:
				_, _ = eng.CancelBatch(context.Background(), batchID)
			case <-done:
			}
		}()
		_, procErr := eng.ProcessBatch(ctx, batchID, false)
		close(done)
		if procErr != nil {
			return StageReport{}, procErr
		}

		detail, err := eng.BatchStatus(ctx, batchID)
		if err != nil {
			return StageReport{}, err
		}
		outcomes := make([]ItemOutcome, 0, len(detail.Items))
		for _, ir := range detail.Items {
			var artifact map[string]any
			if len(ir.Stages) > 0 {
				artifact = map[string]any{}
				for name, outcome := range ir.Stages {
					artifact[name] = outcome.Artifact
				}
			}
			outcomes = append(outcomes, ItemOutcome{
				ItemID:   ir.ItemID,
				Status:   string(subStatusForFinal(ir.FinalStatus)),
				Artifact: artifact,
			})
		}
		return StageReport{Outcomes: outcomes}, nil
	}}
}

func subStatusForFinal(status itemresult.FinalStatus) itemresult.SubStatus {
	switch status {
	case itemresult.FinalCompleted, itemresult.FinalPartiallyCompleted:
		return itemresult.SubStatusCompleted
	case itemresult.FinalFailed:
		return itemresult.SubStatusFailed
	case itemresult.FinalRunning:
		return itemresult.SubStatusRunning
	default:
		return itemresult.SubStatusPending
	}
}

func stringSliceFromConfig(cfg map[string]any, key string) []string {
	raw, ok := cfg[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func intFromConfig(cfg map[string]any, key string, fallback int) int {
	raw, ok := cfg[key]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
