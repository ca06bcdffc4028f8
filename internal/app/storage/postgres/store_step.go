package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shipforge/orchestrator/internal/app/domain/step"
	"github.com/shipforge/orchestrator/internal/app/storage"
)

func (s *Store) CreateStep(ctx context.Context, st step.Step) (step.Step, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now

	configJSON, err := json.Marshal(st.Config)
	if err != nil {
		return step.Step{}, err
	}
	resultsJSON, err := json.Marshal(st.Results)
	if err != nil {
		return step.Step{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orc_steps
			(id, execution_id, ordinal, name, type, status, started_at, completed_at,
			 items_total, items_processed, items_succeeded, items_failed,
			 config, results, processing_rate, error_detail, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		st.ID, st.ExecutionID, st.Ordinal, st.Name, st.Type, st.Status, nullTime(st.StartedAt), nullTime(st.CompletedAt),
		st.Items.Total, st.Items.Processed, st.Items.Succeeded, st.Items.Failed,
		configJSON, resultsJSON, st.ProcessingRate, st.ErrorDetail, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return step.Step{}, err
	}
	return st, nil
}

func (s *Store) UpdateStep(ctx context.Context, st step.Step) (step.Step, error) {
	existing, err := s.GetStep(ctx, st.ExecutionID, st.Name)
	if err != nil {
		return step.Step{}, err
	}
	st.ID = existing.ID
	st.CreatedAt = existing.CreatedAt
	st.UpdatedAt = time.Now().UTC()

	configJSON, err := json.Marshal(st.Config)
	if err != nil {
		return step.Step{}, err
	}
	resultsJSON, err := json.Marshal(st.Results)
	if err != nil {
		return step.Step{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE orc_steps SET
			status = $3, started_at = $4, completed_at = $5,
			items_total = $6, items_processed = $7, items_succeeded = $8, items_failed = $9,
			config = $10, results = $11, processing_rate = $12, error_detail = $13, updated_at = $14
		WHERE execution_id = $1 AND name = $2
	`,
		st.ExecutionID, st.Name, st.Status, nullTime(st.StartedAt), nullTime(st.CompletedAt),
		st.Items.Total, st.Items.Processed, st.Items.Succeeded, st.Items.Failed,
		configJSON, resultsJSON, st.ProcessingRate, st.ErrorDetail, st.UpdatedAt)
	if err != nil {
		return step.Step{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return step.Step{}, storage.NewNotFoundError("step", st.Name)
	}
	return st, nil
}

func (s *Store) GetStep(ctx context.Context, executionID, name string) (step.Step, error) {
	row := s.db.QueryRowContext(ctx, stepSelectColumns+`
		FROM orc_steps WHERE execution_id = $1 AND name = $2
	`, executionID, name)
	st, err := scanStep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return step.Step{}, storage.NewNotFoundError("step", name)
	}
	return st, err
}

func (s *Store) ListSteps(ctx context.Context, executionID string) ([]step.Step, error) {
	rows, err := s.db.QueryContext(ctx, stepSelectColumns+`
		FROM orc_steps WHERE execution_id = $1 ORDER BY ordinal
	`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []step.Step
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

const stepSelectColumns = `
	SELECT id, execution_id, ordinal, name, type, status, started_at, completed_at,
		items_total, items_processed, items_succeeded, items_failed,
		config, results, processing_rate, error_detail, created_at, updated_at
`

func scanStep(row rowScanner) (step.Step, error) {
	var (
		st                     step.Step
		status                 string
		startedAt, completedAt sql.NullTime
		configRaw, resultsRaw  []byte
	)
	if err := row.Scan(
		&st.ID, &st.ExecutionID, &st.Ordinal, &st.Name, &st.Type, &status, &startedAt, &completedAt,
		&st.Items.Total, &st.Items.Processed, &st.Items.Succeeded, &st.Items.Failed,
		&configRaw, &resultsRaw, &st.ProcessingRate, &st.ErrorDetail, &st.CreatedAt, &st.UpdatedAt,
	); err != nil {
		return step.Step{}, err
	}
	st.Status = step.Status(status)
	st.StartedAt = startedAt.Time
	st.CompletedAt = completedAt.Time
	if len(configRaw) > 0 {
		_ = json.Unmarshal(configRaw, &st.Config)
	}
	if len(resultsRaw) > 0 {
		_ = json.Unmarshal(resultsRaw, &st.Results)
	}
	return st, nil
}
