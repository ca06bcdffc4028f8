package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shipforge/orchestrator/internal/app/domain/batch"
	"github.com/shipforge/orchestrator/internal/app/storage"
)

func (s *Store) CreateBatch(ctx context.Context, b batch.Batch) (batch.Batch, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	platformsJSON, err := json.Marshal(b.TargetPlatforms)
	if err != nil {
		return batch.Batch{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orc_batches
			(id, user_id, name, target_platforms, priority, total, completed, failed, status,
			 max_concurrent_regs, max_retry_attempts, scheduled_at, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, b.ID, b.UserID, b.Name, platformsJSON, b.Priority, b.Total, b.Completed, b.Failed, b.Status,
		b.Settings.MaxConcurrentRegistrations, b.Settings.MaxRetryAttempts, nullTime(b.ScheduledAt), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return batch.Batch{}, err
	}
	return b, nil
}

func (s *Store) UpdateBatch(ctx context.Context, b batch.Batch) (batch.Batch, error) {
	existing, err := s.GetBatch(ctx, b.ID)
	if err != nil {
		return batch.Batch{}, err
	}
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()

	platformsJSON, err := json.Marshal(b.TargetPlatforms)
	if err != nil {
		return batch.Batch{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE orc_batches SET
			name = $2, target_platforms = $3, priority = $4, total = $5, completed = $6, failed = $7, status = $8,
			max_concurrent_regs = $9, max_retry_attempts = $10, scheduled_at = $11, updated_at = $12
		WHERE id = $1
	`, b.ID, b.Name, platformsJSON, b.Priority, b.Total, b.Completed, b.Failed, b.Status,
		b.Settings.MaxConcurrentRegistrations, b.Settings.MaxRetryAttempts, nullTime(b.ScheduledAt), b.UpdatedAt)
	if err != nil {
		return batch.Batch{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return batch.Batch{}, storage.NewNotFoundError("batch", b.ID)
	}
	return b, nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (batch.Batch, error) {
	row := s.db.QueryRowContext(ctx, batchSelectColumns+`
		FROM orc_batches WHERE id = $1
	`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return batch.Batch{}, storage.NewNotFoundError("batch", id)
	}
	return b, err
}

func (s *Store) ListDueBatches(ctx context.Context, before time.Time) ([]batch.Batch, error) {
	rows, err := s.db.QueryContext(ctx, batchSelectColumns+`
		FROM orc_batches
		WHERE status = 'pending' AND (scheduled_at IS NULL OR scheduled_at <= $1)
		ORDER BY scheduled_at
	`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []batch.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const batchSelectColumns = `
	SELECT id, user_id, name, target_platforms, priority, total, completed, failed, status,
		max_concurrent_regs, max_retry_attempts, scheduled_at, created_at, updated_at
`

func scanBatch(row rowScanner) (batch.Batch, error) {
	var (
		b             batch.Batch
		status        string
		platformsRaw  []byte
		scheduledAt   sql.NullTime
	)
	if err := row.Scan(
		&b.ID, &b.UserID, &b.Name, &platformsRaw, &b.Priority, &b.Total, &b.Completed, &b.Failed, &status,
		&b.Settings.MaxConcurrentRegistrations, &b.Settings.MaxRetryAttempts, &scheduledAt, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return batch.Batch{}, err
	}
	b.Status = batch.Status(status)
	b.ScheduledAt = scheduledAt.Time
	if len(platformsRaw) > 0 {
		_ = json.Unmarshal(platformsRaw, &b.TargetPlatforms)
	}
	return b, nil
}
