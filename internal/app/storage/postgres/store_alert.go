package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shipforge/orchestrator/internal/app/domain/alert"
	"github.com/shipforge/orchestrator/internal/app/storage"
)

func (s *Store) CreateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()

	payloadJSON, err := json.Marshal(a.Payload)
	if err != nil {
		return alert.Alert{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orc_alerts
			(id, execution_id, kind, severity, title, body, component, payload,
			 acknowledged, acknowledged_by, acknowledged_at, action_taken, resolved_at, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, a.ID, a.ExecutionID, a.Kind, a.Severity, a.Title, a.Body, a.Component, payloadJSON,
		a.Acknowledged, a.AcknowledgedBy, nullTime(a.AcknowledgedAt), a.ActionTaken, nullTime(a.ResolvedAt), a.CreatedAt)
	if err != nil {
		return alert.Alert{}, err
	}
	return a, nil
}

func (s *Store) UpdateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error) {
	existing, err := s.GetAlert(ctx, a.ID)
	if err != nil {
		return alert.Alert{}, err
	}
	a.CreatedAt = existing.CreatedAt

	payloadJSON, err := json.Marshal(a.Payload)
	if err != nil {
		return alert.Alert{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE orc_alerts SET
			acknowledged = $2, acknowledged_by = $3, acknowledged_at = $4, action_taken = $5, resolved_at = $6, payload = $7
		WHERE id = $1
	`, a.ID, a.Acknowledged, a.AcknowledgedBy, nullTime(a.AcknowledgedAt), a.ActionTaken, nullTime(a.ResolvedAt), payloadJSON)
	if err != nil {
		return alert.Alert{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return alert.Alert{}, storage.NewNotFoundError("alert", a.ID)
	}
	return a, nil
}

func (s *Store) GetAlert(ctx context.Context, id string) (alert.Alert, error) {
	row := s.db.QueryRowContext(ctx, alertSelectColumns+`
		FROM orc_alerts WHERE id = $1
	`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return alert.Alert{}, storage.NewNotFoundError("alert", id)
	}
	return a, err
}

func (s *Store) ListUnacknowledged(ctx context.Context, limit int) ([]alert.Alert, error) {
	query := alertSelectColumns + `
		FROM orc_alerts WHERE acknowledged = false ORDER BY created_at
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ListByExecution(ctx context.Context, executionID string) ([]alert.Alert, error) {
	rows, err := s.db.QueryContext(ctx, alertSelectColumns+`
		FROM orc_alerts WHERE execution_id = $1 ORDER BY created_at
	`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const alertSelectColumns = `
	SELECT id, execution_id, kind, severity, title, body, component, payload,
		acknowledged, acknowledged_by, acknowledged_at, action_taken, resolved_at, created_at
`

func scanAlert(row rowScanner) (alert.Alert, error) {
	var (
		a                        alert.Alert
		kind, severity           string
		payloadRaw               []byte
		acknowledgedAt, resolved sql.NullTime
	)
	if err := row.Scan(
		&a.ID, &a.ExecutionID, &kind, &severity, &a.Title, &a.Body, &a.Component, &payloadRaw,
		&a.Acknowledged, &a.AcknowledgedBy, &acknowledgedAt, &a.ActionTaken, &resolved, &a.CreatedAt,
	); err != nil {
		return alert.Alert{}, err
	}
	a.Kind = alert.Kind(kind)
	a.Severity = alert.Severity(severity)
	a.AcknowledgedAt = acknowledgedAt.Time
	a.ResolvedAt = resolved.Time
	if len(payloadRaw) > 0 {
		_ = json.Unmarshal(payloadRaw, &a.Payload)
	}
	return a, nil
}
