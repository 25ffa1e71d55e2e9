package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
  admin_id: 900
logging:
  level: info
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "data/bot.db", cfg.Database.Path)
	require.Equal(t, 5000, cfg.Database.BusyTimeoutMS)
	require.Equal(t, "migrations", cfg.Database.MigrationsDir)
	require.Equal(t, "backups", cfg.Backup.Dir)
	require.Equal(t, 10, cfg.Backup.Retention)
	require.Equal(t, 10, cfg.Core.RateLimit.MaxRequests)
	require.Equal(t, 60, cfg.Core.RateLimit.WindowSeconds)
}

func TestLoadConfigHardenedProfileTightensRateLimit(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
  admin_id: 900
logging:
  profile: prod
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Core.RateLimit.MaxRequests)
}

func TestLoadConfigRequiresAdmin(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
`)
	_, err := LoadConfig(path)
	require.ErrorContains(t, err, "admin_id")
}

func backupDB(t *testing.T) *sqlx.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot.db")
	db, err := sqlx.Open("sqlite3", "file:"+path+"?_journal_mode=WAL")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE t (v INTEGER); INSERT INTO t VALUES (1);`)
	require.NoError(t, err)
	return db
}

func TestBackupRunOnceAndPrune(t *testing.T) {
	dir := t.TempDir()
	b := NewBackup(backupDB(t), BackupConfig{Dir: dir, IntervalMinutes: 60, Retention: 2})

	clock := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return clock }

	for i := 0; i < 4; i++ {
		require.NoError(t, b.RunOnce(context.Background()))
		clock = clock.Add(time.Minute)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2, "retention must cap backup count")

	// The survivors are the newest two.
	require.Equal(t, "bot-20260901-120200.db", entries[0].Name())
	require.Equal(t, "bot-20260901-120300.db", entries[1].Name())

	// A backup file is a usable database.
	restored, err := sqlx.Open("sqlite3", filepath.Join(dir, entries[1].Name()))
	require.NoError(t, err)
	defer restored.Close()
	var v int
	require.NoError(t, restored.Get(&v, `SELECT v FROM t`))
	require.Equal(t, 1, v)
}

func TestBackupSnapshotHealth(t *testing.T) {
	db := backupDB(t)
	b := NewBackup(db, BackupConfig{Dir: t.TempDir(), IntervalMinutes: 60, Retention: 2})

	require.Zero(t, b.snapshotHealth(context.Background()), "no snapshot table reads as zero")

	_, err := db.Exec(`CREATE TABLE flow_snapshots (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		payload BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	require.NoError(t, err)
	require.Zero(t, b.snapshotHealth(context.Background()), "no snapshot row reads as zero")

	_, err = db.Exec(`INSERT INTO flow_snapshots (id, payload) VALUES (1, ?)`, []byte(`{"version":1}`))
	require.NoError(t, err)
	require.Equal(t, int64(13), b.snapshotHealth(context.Background()))

	// The health check rides along with a backup run.
	require.NoError(t, b.RunOnce(context.Background()))
}

func TestBackupDisabled(t *testing.T) {
	b := NewBackup(backupDB(t), BackupConfig{IntervalMinutes: 0, Retention: 2})
	b.Start()
	b.Stop()
}
