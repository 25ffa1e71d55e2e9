package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/babababa22003300kaka-bot/eafc232cons/core/logger"
)

const backupPrefix = "bot-"

// snapshotWarnBytes is the stored flow snapshot size above which the
// health check warns. A snapshot this large means sessions are piling up
// instead of being cleared when flows end.
const snapshotWarnBytes = 1 << 20

// Backup periodically snapshots the sqlite database into the backup
// directory and prunes old files down to the retention count. VACUUM INTO
// produces a consistent copy even while the bot is writing.
type Backup struct {
	db   *sqlx.DB
	cfg  BackupConfig
	now  func() time.Time
	stop chan struct{}
	done chan struct{}
}

// NewBackup builds the job; an interval of 0 disables it.
func NewBackup(db *sqlx.DB, cfg BackupConfig) *Backup {
	return &Backup{
		db:   db,
		cfg:  cfg,
		now:  time.Now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the ticker goroutine. Disabled jobs return immediately.
func (b *Backup) Start() {
	if b.cfg.IntervalMinutes <= 0 {
		close(b.done)
		logger.Backup.Info("backups disabled",
			slog.String("event", "disabled"),
		)
		return
	}
	go b.loop()
}

// Stop terminates the ticker and waits for an in-flight run to finish.
func (b *Backup) Stop() {
	select {
	case <-b.stop:
	default:
		close(b.stop)
	}
	<-b.done
}

func (b *Backup) loop() {
	defer close(b.done)
	interval := time.Duration(b.cfg.IntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Backup.Info("backup job started",
		slog.String("event", "started"),
		slog.String("dir", b.cfg.Dir),
		slog.Int("interval_minutes", b.cfg.IntervalMinutes),
		slog.Int("retention", b.cfg.Retention),
	)
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if err := b.RunOnce(context.Background()); err != nil {
				logger.Error(context.Background(), "backup", "run",
					slog.String("err", err.Error()),
				)
			}
		}
	}
}

// RunOnce writes one backup file and prunes old ones.
func (b *Backup) RunOnce(ctx context.Context) error {
	if err := os.MkdirAll(b.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("backup: create dir: %w", err)
	}

	name := backupPrefix + b.now().UTC().Format("20060102-150405") + ".db"
	target := filepath.Join(b.cfg.Dir, name)
	if _, err := b.db.ExecContext(ctx, "VACUUM INTO ?", target); err != nil {
		return fmt.Errorf("backup: vacuum into %s: %w", target, err)
	}
	logger.Info(ctx, "backup", "written",
		slog.String("path", target),
	)

	if size := b.snapshotHealth(ctx); size > snapshotWarnBytes {
		logger.Warn(ctx, "backup", "snapshot.large",
			slog.Int64("bytes", size),
		)
	} else {
		logger.Debug(ctx, "backup", "snapshot.size",
			slog.Int64("bytes", size),
		)
	}
	return b.prune(ctx)
}

// snapshotHealth reads the stored flow snapshot size. A missing row, or a
// database without the table yet, reads as zero.
func (b *Backup) snapshotHealth(ctx context.Context) int64 {
	var size int64
	if err := b.db.GetContext(ctx, &size, `SELECT length(payload) FROM flow_snapshots WHERE id = 1`); err != nil {
		return 0
	}
	return size
}

func (b *Backup) prune(ctx context.Context) error {
	entries, err := os.ReadDir(b.cfg.Dir)
	if err != nil {
		return fmt.Errorf("backup: read dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), backupPrefix) && strings.HasSuffix(e.Name(), ".db") {
			names = append(names, e.Name())
		}
	}
	if len(names) <= b.cfg.Retention {
		return nil
	}

	// Timestamped names sort chronologically.
	sort.Strings(names)
	for _, name := range names[:len(names)-b.cfg.Retention] {
		path := filepath.Join(b.cfg.Dir, name)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("backup: prune %s: %w", path, err)
		}
		logger.Debug(ctx, "backup", "pruned",
			slog.String("path", path),
		)
	}
	return nil
}
