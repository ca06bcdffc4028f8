// Package postgres implements the orchestration storage interfaces against
// PostgreSQL using database/sql and lib/pq, with JSONB columns for the
// free-form blobs (config, results, payloads).
package postgres

import (
	"database/sql"

	core "github.com/shipforge/orchestrator/internal/app/core/service"
	"github.com/shipforge/orchestrator/internal/app/storage"
)

// Store implements storage.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle. The caller owns
// the handle's lifecycle (pooling, Close).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Descriptor advertises this store's placement and capabilities.
func (s *Store) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   "state-store",
		Domain: "state-store",
		Layer:  core.LayerStorage,
	}.WithCapabilities("postgres-backed", "jsonb-blobs", "durable")
}
