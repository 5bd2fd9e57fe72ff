package queue

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Reaper periodically rewrites jobs stuck in a non-terminal, non-queued
// status back to queued once they have been untouched for longer than
// staleAfter. It never touches attempt_count, so the ordinary backoff and
// maxAttempts bookkeeping in FailWithRetry stays authoritative — the
// reaper only recovers jobs orphaned by a worker that died mid-tick.
//
// Disabled when staleAfter is zero (see DESIGN.md Open Question #2).
type Reaper struct {
	db         *sql.DB
	staleAfter time.Duration
	interval   time.Duration
}

func NewReaper(db *sql.DB, staleAfter, interval time.Duration) *Reaper {
	return &Reaper{db: db, staleAfter: staleAfter, interval: interval}
}

// Run blocks, sweeping on interval until ctx is cancelled. A zero
// staleAfter disables the sweep entirely.
func (r *Reaper) Run(ctx context.Context) {
	if r.staleAfter <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.sweepOnce(ctx)
			if err != nil {
				slog.Error("stale claim reaper sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Warn("reaper requeued stale jobs", "count", n)
			}
		}
	}
}

func (r *Reaper) sweepOnce(ctx context.Context) (int64, error) {
	const query = `
		UPDATE ingestion_jobs
		SET status = 'queued', updated_at = NOW()
		WHERE status IN ('processing_structure', 'processing_embeddings')
		AND updated_at < NOW() - $1::interval`
	res, err := r.db.ExecContext(ctx, query, fmt.Sprintf("%d milliseconds", r.staleAfter.Milliseconds()))
	if err != nil {
		return 0, fmt.Errorf("sweep stale claims: %w", err)
	}
	return res.RowsAffected()
}
