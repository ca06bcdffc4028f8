package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shipforge/orchestrator/internal/app/domain/platformregistration"
	"github.com/shipforge/orchestrator/internal/app/storage"
)

func (s *Store) UpsertPlatformRegistration(ctx context.Context, r platformregistration.PlatformRegistration) (platformregistration.PlatformRegistration, error) {
	now := time.Now().UTC()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	payloadJSON, err := json.Marshal(r.Payload)
	if err != nil {
		return platformregistration.PlatformRegistration{}, err
	}

	existing, getErr := s.GetPlatformRegistration(ctx, r.ID)
	if getErr == nil {
		r.CreatedAt = existing.CreatedAt
		r.UpdatedAt = now

		result, err := s.db.ExecContext(ctx, `
			UPDATE orc_platform_registrations SET
				item_result_id = $2, platform = $3, payload = $4, status = $5, attempt_count = $6,
				last_error = $7, last_error_permanent = $8, platform_product_id = $9, api_call_count = $10,
				scheduled_at = $11, next_retry_at = $12, updated_at = $13
			WHERE id = $1
		`, r.ID, r.ItemResultID, r.Platform, payloadJSON, r.Status, r.AttemptCount,
			r.LastError, r.LastErrorPermanent, r.PlatformProductID, r.APICallCount,
			nullTime(r.ScheduledAt), nullTime(r.NextRetryAt), r.UpdatedAt)
		if err != nil {
			return platformregistration.PlatformRegistration{}, err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return platformregistration.PlatformRegistration{}, storage.NewNotFoundError("platform_registration", r.ID)
		}
		return r, nil
	}
	if !storage.IsNotFound(getErr) {
		return platformregistration.PlatformRegistration{}, getErr
	}

	r.CreatedAt = now
	r.UpdatedAt = now
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orc_platform_registrations
			(id, item_result_id, platform, payload, status, attempt_count,
			 last_error, last_error_permanent, platform_product_id, api_call_count,
			 scheduled_at, next_retry_at, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, r.ID, r.ItemResultID, r.Platform, payloadJSON, r.Status, r.AttemptCount,
		r.LastError, r.LastErrorPermanent, r.PlatformProductID, r.APICallCount,
		nullTime(r.ScheduledAt), nullTime(r.NextRetryAt), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return platformregistration.PlatformRegistration{}, err
	}
	return r, nil
}

func (s *Store) GetPlatformRegistration(ctx context.Context, id string) (platformregistration.PlatformRegistration, error) {
	row := s.db.QueryRowContext(ctx, platformRegistrationSelectColumns+`
		FROM orc_platform_registrations WHERE id = $1
	`, id)
	r, err := scanPlatformRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return platformregistration.PlatformRegistration{}, storage.NewNotFoundError("platform_registration", id)
	}
	return r, err
}

func (s *Store) ListPlatformRegistrations(ctx context.Context, itemResultID string) ([]platformregistration.PlatformRegistration, error) {
	rows, err := s.db.QueryContext(ctx, platformRegistrationSelectColumns+`
		FROM orc_platform_registrations WHERE item_result_id = $1 ORDER BY platform
	`, itemResultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []platformregistration.PlatformRegistration
	for rows.Next() {
		r, err := scanPlatformRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListRetryable(ctx context.Context, itemResultIDs []string, platform string, now time.Time) ([]platformregistration.PlatformRegistration, error) {
	if len(itemResultIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, platformRegistrationSelectColumns+`
		FROM orc_platform_registrations
		WHERE item_result_id = ANY($1) AND ($2 = '' OR platform = $2)
			AND status NOT IN ('completed', 'failed')
			AND (next_retry_at IS NULL OR next_retry_at <= $3)
		ORDER BY scheduled_at
	`, pqStringArray(itemResultIDs), platform, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []platformregistration.PlatformRegistration
	for rows.Next() {
		r, err := scanPlatformRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const platformRegistrationSelectColumns = `
	SELECT id, item_result_id, platform, payload, status, attempt_count,
		last_error, last_error_permanent, platform_product_id, api_call_count,
		scheduled_at, next_retry_at, created_at, updated_at
`

func scanPlatformRegistration(row rowScanner) (platformregistration.PlatformRegistration, error) {
	var (
		r                          platformregistration.PlatformRegistration
		status                     string
		payloadRaw                 []byte
		scheduledAt, nextRetryAt   sql.NullTime
	)
	if err := row.Scan(
		&r.ID, &r.ItemResultID, &r.Platform, &payloadRaw, &status, &r.AttemptCount,
		&r.LastError, &r.LastErrorPermanent, &r.PlatformProductID, &r.APICallCount,
		&scheduledAt, &nextRetryAt, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return platformregistration.PlatformRegistration{}, err
	}
	r.Status = platformregistration.Status(status)
	r.ScheduledAt = scheduledAt.Time
	r.NextRetryAt = nextRetryAt.Time
	if len(payloadRaw) > 0 {
		_ = json.Unmarshal(payloadRaw, &r.Payload)
	}
	return r, nil
}
