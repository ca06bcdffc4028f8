// Package itemresult models the per-item materialised outcome of one
// execution: the per-stage sub-statuses an item passes through and the
// overall status derived from them.
package itemresult

import "time"

// SubStatus enumerates the lifecycle of a single per-stage sub-status.
type SubStatus string

const (
	SubStatusPending   SubStatus = "pending"
	SubStatusRunning   SubStatus = "running"
	SubStatusCompleted SubStatus = "completed"
	SubStatusFailed    SubStatus = "failed"
	SubStatusSkipped   SubStatus = "skipped"
)

func (s SubStatus) terminalFailed() bool { return s == SubStatusFailed }

// FinalStatus enumerates the overall outcome of an item at the end of an
// execution.
type FinalStatus string

const (
	FinalPending            FinalStatus = "pending"
	FinalRunning            FinalStatus = "running"
	FinalCompleted          FinalStatus = "completed"
	FinalPartiallyCompleted FinalStatus = "partially_completed"
	FinalFailed             FinalStatus = "failed"
)

// StageOutcome captures one stage's sub-status, completion time, and
// artifact blob (free-form, e.g. score+reasons, content changes, platform
// outcomes) for a single item.
type StageOutcome struct {
	Stage       string
	Status      SubStatus
	CompletedAt time.Time
	Artifact    map[string]any
}

// ItemResult is the per-item materialised outcome of one execution.
type ItemResult struct {
	ID                  string
	ExecutionID         string
	ItemID              string
	Stages              map[string]StageOutcome
	FinalStatus         FinalStatus
	TotalProcessingTime time.Duration
	LastError           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// DeriveFinalStatus computes the overall final status from the required
// stage sub-statuses: completed only if every required stage is completed;
// failed if any required stage is terminal-failed and none remain pending.
func DeriveFinalStatus(requiredStages []string, stages map[string]StageOutcome) FinalStatus {
	if len(requiredStages) == 0 {
		return FinalCompleted
	}
	allCompleted := true
	anyFailed := false
	anyPending := false
	anyRunning := false
	for _, name := range requiredStages {
		outcome, ok := stages[name]
		if !ok {
			allCompleted = false
			anyPending = true
			continue
		}
		switch outcome.Status {
		case SubStatusCompleted:
		case SubStatusFailed:
			allCompleted = false
			anyFailed = true
		case SubStatusRunning:
			allCompleted = false
			anyRunning = true
		case SubStatusSkipped:
			// Treated like completed for the purposes of "every required
			// stage reached a terminal, non-failing state".
		default:
			allCompleted = false
			anyPending = true
		}
	}
	if allCompleted {
		return FinalCompleted
	}
	if anyFailed && !anyPending && !anyRunning {
		return FinalFailed
	}
	if anyRunning {
		return FinalRunning
	}
	return FinalPending
}
