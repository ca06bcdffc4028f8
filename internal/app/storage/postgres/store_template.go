package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/shipforge/orchestrator/internal/app/domain/template"
	"github.com/shipforge/orchestrator/internal/app/storage"
)

func (s *Store) RegisterTemplate(ctx context.Context, t template.Template) error {
	stagesJSON, err := json.Marshal(t.Stages)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orc_templates (name, stages, created_at)
		VALUES ($1, $2, $3)
	`, t.Name, stagesJSON, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, name string) (template.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, stages FROM orc_templates WHERE name = $1
	`, name)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return template.Template{}, storage.NewNotFoundError("template", name)
	}
	return t, err
}

func (s *Store) ListTemplates(ctx context.Context) ([]template.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, stages FROM orc_templates ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []template.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTemplate(row rowScanner) (template.Template, error) {
	var (
		t         template.Template
		stagesRaw []byte
	)
	if err := row.Scan(&t.Name, &stagesRaw); err != nil {
		return template.Template{}, err
	}
	if len(stagesRaw) > 0 {
		_ = json.Unmarshal(stagesRaw, &t.Stages)
	}
	return t, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505), without importing lib/pq's error type so tests
// can run against sqlmock's generic errors too.
func isUniqueViolation(err error) bool {
	return err != nil && (containsPgCode(err, "23505"))
}

func containsPgCode(err error, code string) bool {
	type pgError interface{ SQLState() string }
	var pe pgError
	if errors.As(err, &pe) {
		return pe.SQLState() == code
	}
	return false
}
