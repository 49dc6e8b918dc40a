// Package store persists a run's Results (spec section 6) to Postgres,
// one row per traced (run, ASN, prefix_block_id) cell.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/route-beacon/bgpextrapolate/internal/metrics"
	"github.com/route-beacon/bgpextrapolate/internal/tsv"
)

// Store writes run results in batches, transaction-per-batch, the way
// the teacher's state writer commits one transaction per flushed batch
// of routes.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New builds a Store over an already-connected pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// FlushResults upserts one run's result rows within a single transaction,
// keyed by (run_id, asn, prefix_block_id).
func (s *Store) FlushResults(ctx context.Context, runID string, rows []tsv.ResultRow) error {
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var upserted int64
	for _, row := range rows {
		n, err := s.upsertResult(ctx, tx, runID, row)
		if err != nil {
			return fmt.Errorf("store: upsert result: %w", err)
		}
		upserted += n
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}

	dur := time.Since(start).Seconds()
	metrics.DBWriteDuration.WithLabelValues("results").Observe(dur)
	metrics.DBRowsAffectedTotal.WithLabelValues("results", "upsert").Add(float64(upserted))

	return nil
}

func (s *Store) upsertResult(ctx context.Context, tx pgx.Tx, runID string, row tsv.ResultRow) (int64, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO results (run_id, asn, prefix, as_path, timestamp, origin, prefix_id, block_id, prefix_block_id, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (run_id, asn, prefix_block_id)
		DO UPDATE SET
			prefix      = EXCLUDED.prefix,
			as_path     = EXCLUDED.as_path,
			timestamp   = EXCLUDED.timestamp,
			origin      = EXCLUDED.origin,
			prefix_id   = EXCLUDED.prefix_id,
			block_id    = EXCLUDED.block_id,
			computed_at = now()`,
		runID, uint32(row.ASN), row.Prefix, tsv.FormatASList(row.ASPath), row.Timestamp,
		uint32(row.Origin), row.PrefixID, uint32(row.BlockID), uint32(row.PrefixBlockID),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PurgeRun deletes every result row belonging to runID, used before
// re-writing a full run's output or discarding a stale one.
func (s *Store) PurgeRun(ctx context.Context, runID string) error {
	start := time.Now()

	tag, err := s.pool.Exec(ctx, `DELETE FROM results WHERE run_id = $1`, runID)
	if err != nil {
		return fmt.Errorf("store: purge run %s: %w", runID, err)
	}

	dur := time.Since(start).Seconds()
	metrics.DBWriteDuration.WithLabelValues("results").Observe(dur)
	purged := tag.RowsAffected()
	if purged > 0 {
		metrics.DBRowsAffectedTotal.WithLabelValues("results", "delete").Add(float64(purged))
	}
	s.logger.Info("purged run results", zap.String("run_id", runID), zap.Int64("purged", purged))

	return nil
}
