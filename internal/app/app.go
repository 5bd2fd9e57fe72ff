// Package app is the composition root: it wires internal/store,
// internal/queue, internal/processor, internal/worker and internal/api
// onto one another and exposes Run, which drives the HTTP server, the
// worker tick loop, and the stale-claim reaper side by side until the
// context is cancelled — the teacher's app.go wiring pattern, rebuilt
// around the ingestion pipeline instead of the source/job/mcp features.
package app

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/SpasZahariev/rag-pulled/internal/api"
	"github.com/SpasZahariev/rag-pulled/internal/config"
	"github.com/SpasZahariev/rag-pulled/internal/embedder"
	"github.com/SpasZahariev/rag-pulled/internal/eventbus"
	"github.com/SpasZahariev/rag-pulled/internal/middleware"
	"github.com/SpasZahariev/rag-pulled/internal/processor"
	"github.com/SpasZahariev/rag-pulled/internal/queue"
	"github.com/SpasZahariev/rag-pulled/internal/store"
	"github.com/SpasZahariev/rag-pulled/internal/structurer"
	"github.com/SpasZahariev/rag-pulled/internal/worker"
)

// App holds the wired components Run drives concurrently.
type App struct {
	handler      http.Handler
	worker       *worker.Worker
	reaper       *queue.Reaper
	wakeConsumer *eventbus.WakeConsumer
	port         int
}

func New(cfg *config.Config, deps *Dependencies) (*App, error) {
	st := store.New(deps.DB)
	q := queue.New(st, deps.Publisher)

	s := structurer.New(structurer.Config{
		Provider:    cfg.DocumentStructurerProvider,
		BaseURL:     cfg.StructurerModelBaseURL,
		APIKey:      cfg.StructurerAPIKey,
		ModelName:   cfg.StructurerModelName,
		Temperature: cfg.StructurerTemperature,
		NumCtx:      cfg.StructurerNumCtx,
		MaxTokens:   cfg.StructurerMaxTokens,
	})
	e := embedder.New(embedder.Config{
		Provider: cfg.EmbeddingProvider,
		BaseURL:  cfg.EmbedderModelBaseURL,
		Model:    cfg.EmbedderModelName,
		APIKey:   cfg.EmbedderAPIKey,
	})

	proc := processor.New(q, st, s, e, cfg.UploadRoot)

	w := worker.New(q, proc, worker.Config{
		PollInterval:  time.Duration(cfg.IngestionWorkerPollMs) * time.Millisecond,
		DBWaitTimeout: time.Duration(cfg.IngestionWorkerDBWaitTimeoutMs) * time.Millisecond,
		DBWaitPoll:    time.Duration(cfg.IngestionWorkerDBWaitPollMs) * time.Millisecond,
		DBHostPort:    net.JoinHostPort(cfg.DBHost, strconv.Itoa(cfg.DBPort)),
	})

	reaper := queue.NewReaper(deps.DB,
		time.Duration(cfg.IngestionStaleClaimMs)*time.Millisecond,
		time.Duration(cfg.IngestionStaleClaimSweepMs)*time.Millisecond,
	)

	var wakeConsumer *eventbus.WakeConsumer
	if cfg.EnableNSQ {
		consumer, err := eventbus.NewWakeConsumer(cfg.NSQLookupd, "ingestion-worker", w.Wake)
		if err != nil {
			// Best-effort side channel: the ticker alone still drives
			// progress, so a failed wake subscription is a warning, not a
			// startup failure.
			slog.Warn("failed to start nsq wake consumer", "error", err)
		} else {
			wakeConsumer = consumer
		}
	}

	apiHandler := api.NewHandler(st, deps.Publisher)

	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("POST /jobs", middleware.CorrelationID(enableCORS(apiHandler.Enqueue)))
	mux.Handle("GET /jobs/{id}", middleware.CorrelationID(enableCORS(apiHandler.Get)))
	mux.Handle("GET /health", http.HandlerFunc(api.Health))

	return &App{handler: mux, worker: w, reaper: reaper, wakeConsumer: wakeConsumer, port: cfg.ServerPort}, nil
}

// Handler returns the wired HTTP handler, for tests driving requests
// through it directly without starting a listener.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run blocks, serving HTTP and driving the worker tick loop and reaper
// concurrently, until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    formatAddr(a.port),
		Handler: a.handler,
	}

	go a.worker.Run(ctx)
	go a.reaper.Run(ctx)

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if a.wakeConsumer != nil {
			a.wakeConsumer.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func formatAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
