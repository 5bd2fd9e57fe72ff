package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/SpasZahariev/rag-pulled/internal/config"
	"github.com/SpasZahariev/rag-pulled/internal/eventbus"
)

// Dependencies holds the infrastructure handles App wires features onto.
type Dependencies struct {
	DB        *sql.DB
	Publisher eventbus.Publisher
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", cfg.BootstrapRetryAttempts)
		time.Sleep(retryDelay)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db after retries: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("migration up: %w", err)
	}
	slog.Info("migrations applied successfully")

	var publisher eventbus.Publisher
	if cfg.EnableNSQ {
		nsqPublisher, err := eventbus.NewNSQPublisher(cfg.NSQDHost)
		if err != nil {
			return nil, fmt.Errorf("nsq producer: %w", err)
		}
		eventbus.PreCreateTopics(cfg.NSQDHTTP,
			eventbus.TopicJobQueued, eventbus.TopicJobCompleted, eventbus.TopicJobFailed, eventbus.TopicWake)
		publisher = nsqPublisher
	}

	return &Dependencies{DB: db, Publisher: publisher}, nil
}
