package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shipforge/orchestrator/internal/app/domain/execution"
	"github.com/shipforge/orchestrator/internal/app/storage"
)

func (s *Store) CreateExecution(ctx context.Context, exec execution.Execution) (execution.Execution, error) {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	exec.CreatedAt = now
	exec.UpdatedAt = now

	configJSON, err := json.Marshal(exec.Config)
	if err != nil {
		return execution.Execution{}, err
	}
	resultsJSON, err := json.Marshal(exec.ResultsSummary)
	if err != nil {
		return execution.Execution{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orc_executions
			(id, template_name, status, started_at, ended_at, expected_completion,
			 steps_total, steps_completed, steps_failed,
			 items_total, items_processed, items_succeeded, items_failed,
			 processing_rate, success_rate, error_rate,
			 config, results_summary,
			 resource_cpu_percent, resource_rss_bytes, resource_num_goroutine, resource_sampled_at,
			 error_log, pause_requested, cancel_requested, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
	`,
		exec.ID, exec.TemplateName, exec.Status, nullTime(exec.StartedAt), nullTime(exec.EndedAt), nullTime(exec.ExpectedCompletion),
		exec.Steps.Total, exec.Steps.Completed, exec.Steps.Failed,
		exec.Items.Total, exec.Items.Processed, exec.Items.Succeeded, exec.Items.Failed,
		exec.Rates.ProcessingRate, exec.Rates.SuccessRate, exec.Rates.ErrorRate,
		configJSON, resultsJSON,
		exec.ResourceUsage.CPUPercent, int64(exec.ResourceUsage.RSSBytes), exec.ResourceUsage.NumGoroutine, nullTime(exec.ResourceUsage.SampledAt),
		exec.ErrorLog, exec.PauseRequested, exec.CancelRequested, exec.CreatedAt, exec.UpdatedAt)
	if err != nil {
		return execution.Execution{}, err
	}
	return exec, nil
}

func (s *Store) UpdateExecution(ctx context.Context, exec execution.Execution) (execution.Execution, error) {
	existing, err := s.GetExecution(ctx, exec.ID)
	if err != nil {
		return execution.Execution{}, err
	}
	exec.CreatedAt = existing.CreatedAt
	exec.UpdatedAt = time.Now().UTC()

	configJSON, err := json.Marshal(exec.Config)
	if err != nil {
		return execution.Execution{}, err
	}
	resultsJSON, err := json.Marshal(exec.ResultsSummary)
	if err != nil {
		return execution.Execution{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE orc_executions SET
			status = $2, started_at = $3, ended_at = $4, expected_completion = $5,
			steps_total = $6, steps_completed = $7, steps_failed = $8,
			items_total = $9, items_processed = $10, items_succeeded = $11, items_failed = $12,
			processing_rate = $13, success_rate = $14, error_rate = $15,
			config = $16, results_summary = $17,
			resource_cpu_percent = $18, resource_rss_bytes = $19, resource_num_goroutine = $20, resource_sampled_at = $21,
			error_log = $22, pause_requested = $23, cancel_requested = $24, updated_at = $25
		WHERE id = $1
	`,
		exec.ID, exec.Status, nullTime(exec.StartedAt), nullTime(exec.EndedAt), nullTime(exec.ExpectedCompletion),
		exec.Steps.Total, exec.Steps.Completed, exec.Steps.Failed,
		exec.Items.Total, exec.Items.Processed, exec.Items.Succeeded, exec.Items.Failed,
		exec.Rates.ProcessingRate, exec.Rates.SuccessRate, exec.Rates.ErrorRate,
		configJSON, resultsJSON,
		exec.ResourceUsage.CPUPercent, int64(exec.ResourceUsage.RSSBytes), exec.ResourceUsage.NumGoroutine, nullTime(exec.ResourceUsage.SampledAt),
		exec.ErrorLog, exec.PauseRequested, exec.CancelRequested, exec.UpdatedAt)
	if err != nil {
		return execution.Execution{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return execution.Execution{}, storage.NewNotFoundError("execution", exec.ID)
	}
	return exec, nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (execution.Execution, error) {
	row := s.db.QueryRowContext(ctx, executionSelectColumns+`
		FROM orc_executions WHERE id = $1
	`, id)
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return execution.Execution{}, storage.NewNotFoundError("execution", id)
	}
	return exec, err
}

func (s *Store) ListExecutions(ctx context.Context, filter storage.ExecutionFilter) ([]execution.Execution, error) {
	query := executionSelectColumns + `
		FROM orc_executions
		WHERE ($1 = '' OR template_name = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at
	`
	args := []any{filter.TemplateName, string(filter.Status)}
	if filter.Limit > 0 {
		query += " LIMIT $3 OFFSET $4"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []execution.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

func (s *Store) ListRecoveryCandidates(ctx context.Context, staleSince time.Duration) ([]execution.Execution, error) {
	cutoff := time.Now().Add(-staleSince)
	rows, err := s.db.QueryContext(ctx, executionSelectColumns+`
		FROM orc_executions
		WHERE status IN ('running', 'paused') AND updated_at < $1
		ORDER BY updated_at
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []execution.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

const executionSelectColumns = `
	SELECT id, template_name, status, started_at, ended_at, expected_completion,
		steps_total, steps_completed, steps_failed,
		items_total, items_processed, items_succeeded, items_failed,
		processing_rate, success_rate, error_rate,
		config, results_summary,
		resource_cpu_percent, resource_rss_bytes, resource_num_goroutine, resource_sampled_at,
		error_log, pause_requested, cancel_requested, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (execution.Execution, error) {
	var (
		e                                                        execution.Execution
		status                                                   string
		startedAt, endedAt, expectedCompletion, resourceSampled  sql.NullTime
		configRaw, resultsRaw                                    []byte
		rssBytes                                                 int64
	)
	if err := row.Scan(
		&e.ID, &e.TemplateName, &status, &startedAt, &endedAt, &expectedCompletion,
		&e.Steps.Total, &e.Steps.Completed, &e.Steps.Failed,
		&e.Items.Total, &e.Items.Processed, &e.Items.Succeeded, &e.Items.Failed,
		&e.Rates.ProcessingRate, &e.Rates.SuccessRate, &e.Rates.ErrorRate,
		&configRaw, &resultsRaw,
		&e.ResourceUsage.CPUPercent, &rssBytes, &e.ResourceUsage.NumGoroutine, &resourceSampled,
		&e.ErrorLog, &e.PauseRequested, &e.CancelRequested, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return execution.Execution{}, err
	}

	e.Status = execution.Status(status)
	e.StartedAt = startedAt.Time
	e.EndedAt = endedAt.Time
	e.ExpectedCompletion = expectedCompletion.Time
	e.ResourceUsage.RSSBytes = uint64(rssBytes)
	e.ResourceUsage.SampledAt = resourceSampled.Time

	if len(configRaw) > 0 {
		_ = json.Unmarshal(configRaw, &e.Config)
	}
	if len(resultsRaw) > 0 {
		_ = json.Unmarshal(resultsRaw, &e.ResultsSummary)
	}
	return e, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
