// Package batch models a group of items submitted together to the
// Registration Engine.
package batch

import "time"

// Status enumerates the lifecycle of a Batch.
type Status string

const (
	StatusPending            Status = "pending"
	StatusRunning            Status = "running"
	StatusCompleted          Status = "completed"
	StatusPartiallyCompleted Status = "partially_completed"
	StatusFailed             Status = "failed"
	StatusCancelled          Status = "cancelled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartiallyCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Settings overrides per-batch tunables (retry caps, concurrency).
type Settings struct {
	MaxConcurrentRegistrations int
	MaxRetryAttempts           int
}

// Batch groups items submitted together for platform registration.
type Batch struct {
	ID               string
	UserID           string
	Name             string
	TargetPlatforms  []string
	Priority         int
	Total            int
	Completed        int
	Failed           int
	Status           Status
	Settings         Settings
	ScheduledAt      time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProgressPercent returns completed+failed as a percentage of total, 0 when
// total is 0.
func (b Batch) ProgressPercent() float64 {
	if b.Total == 0 {
		return 0
	}
	return float64(b.Completed+b.Failed) / float64(b.Total) * 100
}
