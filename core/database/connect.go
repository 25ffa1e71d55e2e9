package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/babababa22003300kaka-bot/eafc232cons/core/logger"
)

const defaultBusyTimeoutMS = 30000

// DSN builds a sqlite connection string with WAL journaling and a busy
// timeout. WAL keeps concurrent readers off the single writer's back.
func DSN(cfg Config) string {
	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = defaultBusyTimeoutMS
	}
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", fmt.Sprintf("%d", busy))
	q.Set("_foreign_keys", "on")
	return fmt.Sprintf("file:%s?%s", cfg.Path, q.Encode())
}

// Connect opens the sqlite database, configures the pool, and verifies connectivity.
func Connect(cfg Config) (*sqlx.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db connect: empty database path")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("db connect: create dir: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	sqlxDB, err := sqlx.ConnectContext(ctx, "sqlite3", DSN(cfg))
	took := time.Since(start)
	if err != nil {
		logger.DB.Error("db connect failed",
			slog.String("event", "db.connect"),
			slog.String("driver", "sqlite3"),
			slog.String("db", cfg.Path),
			slog.Duration("duration", logger.RoundMS(took)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	// sqlite tolerates a single writer; the pool mostly serves readers.
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 4
	}
	sqlxDB.SetMaxOpenConns(maxConns)
	sqlxDB.SetMaxIdleConns(maxConns)
	logger.DB.Debug("db pool configured",
		slog.String("event", "db.pool"),
		slog.Int("pool_open", maxConns),
	)

	logger.DB.Info("db connected",
		slog.String("event", "db.connect"),
		slog.String("driver", "sqlite3"),
		slog.String("db", cfg.Path),
		slog.Int("pool_open", maxConns),
		slog.Duration("duration", logger.RoundMS(took)),
	)

	return sqlxDB, nil
}
