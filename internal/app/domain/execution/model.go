// Package execution models one run of a registered workflow template.
package execution

import "time"

// Status enumerates the lifecycle of an Execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status cannot transition further.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// StepCounters tracks per-execution stage progress.
type StepCounters struct {
	Total     int
	Completed int
	Failed    int
}

// ItemCounters tracks per-execution item progress.
type ItemCounters struct {
	Total     int
	Processed int
	Succeeded int
	Failed    int
}

// Rates holds the aggregate rates derived by the progress tracker.
type Rates struct {
	ProcessingRate float64 // items/min
	SuccessRate    float64 // percent
	ErrorRate      float64 // percent
}

// ResourceUsage is a point-in-time process resource snapshot, sampled by
// internal/app/resource at stage boundaries.
type ResourceUsage struct {
	CPUPercent    float64
	RSSBytes      uint64
	NumGoroutine  int
	SampledAt     time.Time
}

// Execution is one run of a workflow template.
type Execution struct {
	ID                    string
	TemplateName          string
	Status                Status
	StartedAt             time.Time
	EndedAt               time.Time
	ExpectedCompletion    time.Time
	Steps                 StepCounters
	Items                 ItemCounters
	Rates                 Rates
	Config                map[string]any
	ResultsSummary        map[string]any
	ResourceUsage         ResourceUsage
	ErrorLog              string
	PauseRequested        bool
	CancelRequested       bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Invariant checks used by tests and by the orchestrator before persisting.

// StepsConsistent reports completed_steps + failed_steps <= total_steps.
func (e Execution) StepsConsistent() bool {
	return e.Steps.Completed+e.Steps.Failed <= e.Steps.Total
}

// ItemsConsistentAtTerminal reports processed = succeeded + failed, required
// once the execution has reached a terminal state.
func (e Execution) ItemsConsistentAtTerminal() bool {
	if !e.Status.Terminal() {
		return true
	}
	return e.Items.Processed == e.Items.Succeeded+e.Items.Failed
}

// TerminalRequiresEndTimestamp reports that a terminal execution has EndedAt set.
func (e Execution) TerminalRequiresEndTimestamp() bool {
	if !e.Status.Terminal() {
		return true
	}
	return !e.EndedAt.IsZero()
}

// CanTransitionTo reports whether the given status transition is legal.
// cancelled is reachable from any non-terminal state; paused<->running is the
// only cycle allowed; all other transitions move monotonically forward.
func (e Execution) CanTransitionTo(next Status) bool {
	if e.Status.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	switch e.Status {
	case StatusPending:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusPaused || next == StatusCompleted || next == StatusFailed
	case StatusPaused:
		return next == StatusRunning
	default:
		return false
	}
}
