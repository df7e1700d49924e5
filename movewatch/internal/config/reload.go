package config

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Reloader polls the selector database and calls an action once a change
// has settled. Changes are detected with PRAGMA data_version, which moves
// whenever another connection commits to the file: an operator editing
// selector_sets with the sqlite3 shell triggers a reload.
type Reloader struct {
	db       *sql.DB
	interval time.Duration
	debounce time.Duration
	logger   *slog.Logger
	version  func(ctx context.Context, db *sql.DB) (int64, error)
}

// NewReloader creates a Reloader. Zero durations default to 1s polling and
// a 500ms debounce.
func NewReloader(db *sql.DB, interval, debounce time.Duration, logger *slog.Logger) *Reloader {
	if interval <= 0 {
		interval = time.Second
	}
	if debounce < 0 {
		debounce = 0
	} else if debounce == 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{db: db, interval: interval, debounce: debounce, logger: logger, version: dataVersion}
}

func dataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// Run blocks until ctx is cancelled. A failed action leaves the version
// unacknowledged so it is retried on the next poll.
func (r *Reloader) Run(ctx context.Context, action func(context.Context) error) {
	seen, err := r.version(ctx, r.db)
	if err != nil {
		r.logger.Warn("config: initial selector version check failed", "error", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	var settle <-chan time.Time
	pending := seen

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur, err := r.version(ctx, r.db)
			if err != nil {
				r.logger.Warn("config: selector version check failed", "error", err)
				continue
			}
			if cur == seen || cur == pending {
				continue
			}
			pending = cur
			settle = time.After(r.debounce)
			r.logger.Debug("config: selector change detected", "version", cur)
		case <-settle:
			settle = nil
			if err := action(ctx); err != nil {
				r.logger.Error("config: selector reload failed", "error", err)
				pending = seen
				continue
			}
			seen = pending
			r.logger.Info("config: selectors reloaded", "version", seen)
		}
	}
}
