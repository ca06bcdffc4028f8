// Package alerts implements the Alert Emitter: it persists structured,
// severity-tagged observable conditions and mirrors each one onto a
// zerolog structured event stream for a delivery subscriber to tail. The
// core never delivers alerts to an external channel itself (§4.5).
package alerts

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	core "github.com/shipforge/orchestrator/internal/app/core/service"
	"github.com/shipforge/orchestrator/internal/app/domain/alert"
	"github.com/shipforge/orchestrator/internal/app/metrics"
	"github.com/shipforge/orchestrator/internal/app/storage"
)

// Emitter is the Alert Emitter.
type Emitter struct {
	store  storage.AlertStore
	stream zerolog.Logger
}

// New constructs an Emitter backed by the given durable alert store. The
// structured stream defaults to a JSON writer on stdout; override with
// WithStream for tests or alternate sinks.
func New(store storage.AlertStore) *Emitter {
	return &Emitter{
		store:  store,
		stream: zerolog.New(os.Stdout).With().Timestamp().Str("component", "alerts").Logger(),
	}
}

// WithStream overrides the structured event stream (used by tests to
// assert on emitted events without touching stdout).
func (e *Emitter) WithStream(logger zerolog.Logger) *Emitter {
	e.stream = logger
	return e
}

// Emit persists an Alert row and mirrors it onto the structured stream.
// executionID may be empty for alerts not tied to a specific execution.
func (e *Emitter) Emit(ctx context.Context, executionID string, kind alert.Kind, severity alert.Severity, title, body, component string, payload map[string]any) (string, error) {
	a := alert.Alert{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		Kind:        kind,
		Severity:    severity,
		Title:       title,
		Body:        body,
		Component:   component,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
	created, err := e.store.CreateAlert(ctx, a)
	if err != nil {
		return "", err
	}

	evt := e.stream.Info()
	if severity == alert.SeverityCritical || severity == alert.SeverityHigh {
		evt = e.stream.Warn()
	}
	evt.
		Str("alert_id", created.ID).
		Str("execution_id", executionID).
		Str("kind", string(kind)).
		Str("severity", string(severity)).
		Str("component", component).
		Interface("payload", payload).
		Msg(title)

	metrics.RecordAlert(string(severity))
	return created.ID, nil
}

// Acknowledge records that actor has acknowledged an alert.
func (e *Emitter) Acknowledge(ctx context.Context, alertID, actor string) error {
	a, err := e.store.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	a.Acknowledged = true
	a.AcknowledgedBy = actor
	a.AcknowledgedAt = time.Now().UTC()
	_, err = e.store.UpdateAlert(ctx, a)
	return err
}

// Resolve records a resolution note on an alert.
func (e *Emitter) Resolve(ctx context.Context, alertID, actionTaken string) error {
	a, err := e.store.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	a.ActionTaken = actionTaken
	a.ResolvedAt = time.Now().UTC()
	_, err = e.store.UpdateAlert(ctx, a)
	return err
}

// ListUnacknowledged returns the alerts a delivery subscriber has not yet
// acknowledged, oldest first by creation time.
func (e *Emitter) ListUnacknowledged(ctx context.Context, limit int) ([]alert.Alert, error) {
	return e.store.ListUnacknowledged(ctx, limit)
}

// ListByExecution returns every alert raised against one execution.
func (e *Emitter) ListByExecution(ctx context.Context, executionID string) ([]alert.Alert, error) {
	return e.store.ListByExecution(ctx, executionID)
}

// Descriptor advertises the Alert Emitter's placement and capabilities.
func (e *Emitter) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   "alert-emitter",
		Domain: "alerting",
		Layer:  core.LayerOps,
	}.WithCapabilities("severity-tagged-events", "ack-resolve", "zerolog-stream")
}
