package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shipforge/orchestrator/internal/app/domain/account"
	"github.com/shipforge/orchestrator/internal/app/storage"
)

func (s *Store) CreateAccount(ctx context.Context, a account.Account) (account.Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	credsJSON, err := json.Marshal(a.Credentials)
	if err != nil {
		return account.Account{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orc_accounts
			(id, user_id, platform, label, status, credentials, transform_script,
			 api_calls_total, api_calls_failed, last_used_at, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, a.ID, a.UserID, a.Platform, a.Label, a.Status, credsJSON, a.TransformScript,
		a.APICallsTotal, a.APICallsFailed, nullTime(a.LastUsedAt), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return account.Account{}, err
	}
	return a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a account.Account) (account.Account, error) {
	existing, err := s.GetAccount(ctx, a.ID)
	if err != nil {
		return account.Account{}, err
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()

	credsJSON, err := json.Marshal(a.Credentials)
	if err != nil {
		return account.Account{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE orc_accounts SET
			label = $2, status = $3, credentials = $4, transform_script = $5,
			api_calls_total = $6, api_calls_failed = $7, last_used_at = $8, updated_at = $9
		WHERE id = $1
	`, a.ID, a.Label, a.Status, credsJSON, a.TransformScript,
		a.APICallsTotal, a.APICallsFailed, nullTime(a.LastUsedAt), a.UpdatedAt)
	if err != nil {
		return account.Account{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return account.Account{}, storage.NewNotFoundError("account", a.ID)
	}
	return a, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (account.Account, error) {
	row := s.db.QueryRowContext(ctx, accountSelectColumns+`
		FROM orc_accounts WHERE id = $1
	`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, storage.NewNotFoundError("account", id)
	}
	return a, err
}

func (s *Store) ListActiveAccounts(ctx context.Context, userID, platform string) ([]account.Account, error) {
	rows, err := s.db.QueryContext(ctx, accountSelectColumns+`
		FROM orc_accounts
		WHERE user_id = $1 AND platform = $2 AND status = 'active'
		ORDER BY last_used_at NULLS FIRST
	`, userID, platform)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []account.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) RecordAPIUsage(ctx context.Context, accountID string, success bool) error {
	failedDelta := 0
	if !success {
		failedDelta = 1
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE orc_accounts SET
			api_calls_total = api_calls_total + 1,
			api_calls_failed = api_calls_failed + $2,
			last_used_at = $3,
			updated_at = $3
		WHERE id = $1
	`, accountID, failedDelta, time.Now().UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.NewNotFoundError("account", accountID)
	}
	return nil
}

const accountSelectColumns = `
	SELECT id, user_id, platform, label, status, credentials, transform_script,
		api_calls_total, api_calls_failed, last_used_at, created_at, updated_at
`

func scanAccount(row rowScanner) (account.Account, error) {
	var (
		a          account.Account
		status     string
		credsRaw   []byte
		lastUsedAt sql.NullTime
	)
	if err := row.Scan(
		&a.ID, &a.UserID, &a.Platform, &a.Label, &status, &credsRaw, &a.TransformScript,
		&a.APICallsTotal, &a.APICallsFailed, &lastUsedAt, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return account.Account{}, err
	}
	a.Status = account.Status(status)
	a.LastUsedAt = lastUsedAt.Time
	if len(credsRaw) > 0 {
		_ = json.Unmarshal(credsRaw, &a.Credentials)
	}
	return a, nil
}
