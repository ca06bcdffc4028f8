package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shipforge/orchestrator/internal/app/domain/itemresult"
	"github.com/shipforge/orchestrator/internal/app/storage"
)

func (s *Store) UpsertItemResult(ctx context.Context, r itemresult.ItemResult) (itemresult.ItemResult, error) {
	now := time.Now().UTC()
	existing, err := s.GetItemResult(ctx, r.ExecutionID, r.ItemID)
	switch {
	case err == nil:
		r.ID = existing.ID
		r.CreatedAt = existing.CreatedAt
	case storage.IsNotFound(err):
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.CreatedAt = now
	default:
		return itemresult.ItemResult{}, err
	}
	r.UpdatedAt = now

	stagesJSON, err := json.Marshal(r.Stages)
	if err != nil {
		return itemresult.ItemResult{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orc_item_results
			(id, execution_id, item_id, stages, final_status, total_processing_time, last_error, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (execution_id, item_id) DO UPDATE SET
			stages = EXCLUDED.stages,
			final_status = EXCLUDED.final_status,
			total_processing_time = EXCLUDED.total_processing_time,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at
	`, r.ID, r.ExecutionID, r.ItemID, stagesJSON, r.FinalStatus, int64(r.TotalProcessingTime), r.LastError, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return itemresult.ItemResult{}, err
	}
	return r, nil
}

func (s *Store) GetItemResult(ctx context.Context, executionID, itemID string) (itemresult.ItemResult, error) {
	row := s.db.QueryRowContext(ctx, itemResultSelectColumns+`
		FROM orc_item_results WHERE execution_id = $1 AND item_id = $2
	`, executionID, itemID)
	r, err := scanItemResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return itemresult.ItemResult{}, storage.NewNotFoundError("item_result", itemID)
	}
	return r, err
}

func (s *Store) ListItemResults(ctx context.Context, executionID string) ([]itemresult.ItemResult, error) {
	rows, err := s.db.QueryContext(ctx, itemResultSelectColumns+`
		FROM orc_item_results WHERE execution_id = $1 ORDER BY item_id
	`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []itemresult.ItemResult
	for rows.Next() {
		r, err := scanItemResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const itemResultSelectColumns = `
	SELECT id, execution_id, item_id, stages, final_status, total_processing_time, last_error, created_at, updated_at
`

func scanItemResult(row rowScanner) (itemresult.ItemResult, error) {
	var (
		r                      itemresult.ItemResult
		finalStatus            string
		stagesRaw              []byte
		totalProcessingTimeNs  int64
	)
	if err := row.Scan(
		&r.ID, &r.ExecutionID, &r.ItemID, &stagesRaw, &finalStatus, &totalProcessingTimeNs, &r.LastError, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return itemresult.ItemResult{}, err
	}
	r.FinalStatus = itemresult.FinalStatus(finalStatus)
	r.TotalProcessingTime = time.Duration(totalProcessingTimeNs)
	if len(stagesRaw) > 0 {
		_ = json.Unmarshal(stagesRaw, &r.Stages)
	}
	return r, nil
}
