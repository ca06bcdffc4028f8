// Package platformregistration models the per-(item, platform) unit the
// Registration Engine drives to completion or durable failure.
package platformregistration

import "time"

// Status enumerates the lifecycle of a Platform Registration.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// PlatformRegistration is the unit the Registration Engine acts on.
type PlatformRegistration struct {
	ID                string
	ItemResultID      string
	Platform          string
	Payload           map[string]any
	Status            Status
	AttemptCount      int
	LastError         string
	LastErrorPermanent bool
	PlatformProductID string
	APICallCount      int
	ScheduledAt       time.Time
	NextRetryAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// WithinAttemptCap reports attempt_count <= max_attempts.
func (p PlatformRegistration) WithinAttemptCap(maxAttempts int) bool {
	return p.AttemptCount <= maxAttempts
}

// CompletedImpliesProductID reports that status=completed implies a
// platform-assigned id is set.
func (p PlatformRegistration) CompletedImpliesProductID() bool {
	if p.Status != StatusCompleted {
		return true
	}
	return p.PlatformProductID != ""
}

// EligibleForRetry reports whether this registration may be retried: the
// attempt cap has not been reached and the last error was not classified as
// permanent. Permanent errors terminate the registration regardless of cap.
func (p PlatformRegistration) EligibleForRetry(maxAttempts int) bool {
	if p.LastErrorPermanent {
		return false
	}
	return p.AttemptCount < maxAttempts
}
