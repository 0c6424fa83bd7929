// Package pgstore persists the Verification Manifest and the execution
// plan's identifying metadata to Postgres via pgx, for audit and
// re-verification queries across runs.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"policypipeline/internal/manifest"
)

// Store wraps a pgx connection pool scoped to the run-audit schema.
type Store struct {
	pool *pgxpool.Pool
}

// Open opens a connection pool against dsn with the conservative defaults
// the rest of the pack uses for long-lived service pools.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// EnsureSchema creates the run_manifests table if it does not already
// exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS run_manifests (
	correlation_id TEXT PRIMARY KEY,
	policy_unit_id TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	source_hash TEXT NOT NULL,
	cpp_merkle_root TEXT NOT NULL,
	execution_plan_hash TEXT NOT NULL,
	body JSONB NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL
)`)
	return err
}

// SaveManifest upserts a run's Verification Manifest, keyed by correlation
// id so re-running the same correlation id overwrites its prior record.
func (s *Store) SaveManifest(ctx context.Context, policyUnitID string, m manifest.Manifest) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO run_manifests (correlation_id, policy_unit_id, success, source_hash, cpp_merkle_root, execution_plan_hash, body, generated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (correlation_id) DO UPDATE SET
	success = EXCLUDED.success,
	body = EXCLUDED.body,
	generated_at = EXCLUDED.generated_at
`, m.CorrelationID, policyUnitID, m.Success, m.SourceHash, m.CPPMerkleRoot, m.ExecutionPlanHash, body, m.GeneratedAt)
	return err
}

// LoadManifest fetches a previously stored manifest by correlation id.
func (s *Store) LoadManifest(ctx context.Context, correlationID string) (manifest.Manifest, bool, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM run_manifests WHERE correlation_id = $1`, correlationID).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return manifest.Manifest{}, false, nil
		}
		return manifest.Manifest{}, false, err
	}
	var m manifest.Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return manifest.Manifest{}, false, err
	}
	return m, true, nil
}
