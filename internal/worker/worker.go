// Package worker implements the periodic tick loop spec.md §4.7
// describes: at most one tick in flight at a time, claim-and-process on
// a configurable interval, a startup DB-reachability wait, and graceful
// shutdown.
package worker

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/SpasZahariev/rag-pulled/internal/ingestion"
)

// Queue is the narrow claim surface the worker needs.
type Queue interface {
	ClaimNext(ctx context.Context) (*ingestion.IngestionJob, error)
}

// Processor is the narrow processing surface the worker needs.
type Processor interface {
	Process(ctx context.Context, jobID string)
}

// Config controls tick interval and startup DB-wait behavior (spec.md
// §6.5).
type Config struct {
	PollInterval    time.Duration
	DBWaitTimeout   time.Duration
	DBWaitPoll      time.Duration
	DBHostPort      string // host:port to dial during the startup wait
}

// Worker runs the tick loop. A single atomic flag enforces "at most one
// tick in flight at a time" regardless of whether ticks are driven by a
// single goroutine (the default here) or, in a threaded runtime, by
// concurrent timers.
type Worker struct {
	queue     Queue
	processor Processor
	cfg       Config

	ticking         atomic.Bool
	shuttingDown    atomic.Bool
	loggedTransient atomic.Bool

	wake chan struct{}
}

func New(queue Queue, processor Processor, cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.DBWaitTimeout <= 0 {
		cfg.DBWaitTimeout = 30 * time.Second
	}
	if cfg.DBWaitPoll <= 0 {
		cfg.DBWaitPoll = 500 * time.Millisecond
	}
	return &Worker{queue: queue, processor: processor, cfg: cfg, wake: make(chan struct{}, 1)}
}

// Wake requests an immediate tick, shortening the wait until the next
// scheduled poll. This is how the optional internal/eventbus wake
// subscription lets the worker react promptly to a newly queued job; the
// ticker alone still guarantees forward progress if nothing ever wakes
// it.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run blocks, ticking until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.waitForDB(ctx)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.shuttingDown.Store(true)
			return
		case <-ticker.C:
			w.tick(ctx)
		case <-w.wake:
			w.tick(ctx)
		}
	}
}

func (w *Worker) waitForDB(ctx context.Context) {
	if w.cfg.DBHostPort == "" {
		return
	}
	deadline := time.Now().Add(w.cfg.DBWaitTimeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", w.cfg.DBHostPort, w.cfg.DBWaitPoll)
		if err == nil {
			conn.Close()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.DBWaitPoll):
		}
	}
	slog.Warn("db wait timeout elapsed, proceeding with retries on the tick loop", "host", w.cfg.DBHostPort)
}

func (w *Worker) tick(ctx context.Context) {
	if w.shuttingDown.Load() {
		return
	}
	if !w.ticking.CompareAndSwap(false, true) {
		// A prior tick is still running; this is the reentrancy guard
		// spec.md §4.7 requires.
		return
	}
	defer w.ticking.Store(false)

	job, err := w.queue.ClaimNext(ctx)
	if err != nil {
		// Transient-infrastructure errors during claim never consume an
		// attempt (no row was mutated) and are logged once until a
		// successful tick, to avoid log spam during e.g. DB startup.
		if ingestion.ClassifyError(err) == ingestion.ErrorClassTransient {
			if !w.loggedTransient.Swap(true) {
				slog.Warn("transient error claiming next job", "error", err)
			}
			return
		}
		slog.Error("unexpected error claiming next job", "error", err)
		return
	}
	w.loggedTransient.Store(false)

	if job == nil {
		return
	}

	slog.Info("claimed job", "job_id", job.JobID, "attempt", job.AttemptCount)
	w.processor.Process(ctx, job.JobID)
}
