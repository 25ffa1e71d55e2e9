package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/babababa22003300kaka-bot/eafc232cons/internal/domain"
)

const testSchema = `
CREATE TABLE users (
    telegram_id       INTEGER PRIMARY KEY,
    username          TEXT NOT NULL DEFAULT '',
    platform          TEXT NOT NULL DEFAULT '',
    whatsapp          TEXT NOT NULL DEFAULT '',
    payment_method    TEXT NOT NULL DEFAULT '',
    payment_details   TEXT NOT NULL DEFAULT '',
    registration_step TEXT NOT NULL DEFAULT 'start',
    created_at        TIMESTAMP NOT NULL,
    updated_at        TIMESTAMP NOT NULL
);
CREATE TABLE coin_prices (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    platform      TEXT NOT NULL,
    transfer_type TEXT NOT NULL,
    amount        INTEGER NOT NULL,
    price         INTEGER NOT NULL,
    updated_at    TIMESTAMP NOT NULL,
    UNIQUE (platform, transfer_type, amount)
);
CREATE TABLE price_audit (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    admin_id      INTEGER NOT NULL,
    platform      TEXT NOT NULL,
    transfer_type TEXT NOT NULL,
    amount        INTEGER NOT NULL,
    old_price     INTEGER NOT NULL,
    new_price     INTEGER NOT NULL,
    changed_at    TIMESTAMP NOT NULL
);
CREATE TABLE registration_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    telegram_id INTEGER NOT NULL,
    step        TEXT NOT NULL,
    data        TEXT NOT NULL DEFAULT '',
    ts          TIMESTAMP NOT NULL
);
CREATE TABLE flow_snapshots (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    payload    BLOB NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot.db")
	db, err := sqlx.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return db
}

func TestUsersRegistrationLifecycle(t *testing.T) {
	ctx := context.Background()
	users := NewUsers(testDB(t))

	_, err := users.Get(ctx, 42)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, users.Begin(ctx, 42, "seller"))
	step, err := users.Step(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, domain.StepStart, step)

	require.NoError(t, users.Checkpoint(ctx, 42, domain.StepEnteringWhatsapp, "platform", string(domain.PlatformPlayStation)))
	require.NoError(t, users.Checkpoint(ctx, 42, domain.StepChoosingPayment, "whatsapp", "01012345678"))
	require.NoError(t, users.Checkpoint(ctx, 42, domain.StepEnteringPaymentDetail, "payment_method", string(domain.PayTelda)))
	require.NoError(t, users.Checkpoint(ctx, 42, domain.StepEnteringPaymentDetail, "payment_details", "1234567890123456"))
	require.NoError(t, users.Complete(ctx, 42))

	u, err := users.Get(ctx, 42)
	require.NoError(t, err)
	require.True(t, u.Registered())
	require.Equal(t, domain.PlatformPlayStation, u.Platform)
	require.Equal(t, "01012345678", u.Whatsapp)
	require.Equal(t, domain.PayTelda, u.PaymentMethod)
	require.Equal(t, "1234567890123456", u.PaymentDetails)
}

func TestUsersBeginResetsAbandonedAttempt(t *testing.T) {
	ctx := context.Background()
	users := NewUsers(testDB(t))

	require.NoError(t, users.Begin(ctx, 7, "old_name"))
	require.NoError(t, users.Checkpoint(ctx, 7, domain.StepEnteringWhatsapp, "platform", string(domain.PlatformPC)))

	require.NoError(t, users.Begin(ctx, 7, "new_name"))
	u, err := users.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, domain.StepStart, u.Step)
	require.Equal(t, "new_name", u.Username)
	require.Equal(t, domain.PlatformPC, u.Platform, "captured fields survive a restart")
}

func TestUsersCheckpointUnknownUser(t *testing.T) {
	ctx := context.Background()
	users := NewUsers(testDB(t))
	err := users.Checkpoint(ctx, 99, domain.StepEnteringWhatsapp, "platform", "pc")
	require.Error(t, err)
}

func TestUsersErase(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	users := NewUsers(db)

	require.NoError(t, users.Begin(ctx, 11, "seller"))
	require.NoError(t, users.Erase(ctx, 11))

	_, err := users.Get(ctx, 11)
	require.ErrorIs(t, err, ErrNotFound)

	var logs int
	require.NoError(t, db.Get(&logs, `SELECT COUNT(*) FROM registration_log WHERE telegram_id = 11`))
	require.Zero(t, logs)
}

func seedPrices(t *testing.T, db *sqlx.DB) {
	t.Helper()
	for _, row := range []struct {
		platform domain.Platform
		tt       domain.TransferType
		price    int64
	}{
		{domain.PlatformPlayStation, domain.TransferNormal, 5600},
		{domain.PlatformPlayStation, domain.TransferInstant, 5300},
		{domain.PlatformXbox, domain.TransferNormal, 5600},
		{domain.PlatformXbox, domain.TransferInstant, 5300},
		{domain.PlatformPC, domain.TransferNormal, 6100},
		{domain.PlatformPC, domain.TransferInstant, 5800},
	} {
		_, err := db.Exec(`INSERT INTO coin_prices (platform, transfer_type, amount, price, updated_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
			row.platform, row.tt, domain.ReferenceAmount, row.price)
		require.NoError(t, err)
	}
}

func TestPricesUpdateWritesAuditAtomically(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	seedPrices(t, db)
	prices := NewPrices(db)

	require.NoError(t, prices.Update(ctx, 1000, domain.PlatformPC, domain.TransferNormal, 6100, 6400))

	p, err := prices.Get(ctx, domain.PlatformPC, domain.TransferNormal)
	require.NoError(t, err)
	require.Equal(t, int64(6400), p.Price)

	audit, err := prices.Audit(ctx, 10)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	require.Equal(t, int64(1000), audit[0].AdminID)
	require.Equal(t, int64(6100), audit[0].OldPrice)
	require.Equal(t, int64(6400), audit[0].NewPrice)
}

func TestPricesUpdateUnknownRowLeavesNoAudit(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	prices := NewPrices(db)

	err := prices.Update(ctx, 1000, domain.PlatformPC, domain.TransferNormal, 6100, 6400)
	require.Error(t, err)

	audit, err := prices.Audit(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, audit)
}

func TestPricesList(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	seedPrices(t, db)

	all, err := NewPrices(db).List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 6)
}

func TestSnapshotsOverwrite(t *testing.T) {
	ctx := context.Background()
	snaps := NewSnapshots(testDB(t))

	_, err := snaps.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, snaps.SaveSnapshot(ctx, []byte(`{"version":1}`)))
	require.NoError(t, snaps.SaveSnapshot(ctx, []byte(`{"version":1,"sessions":[]}`)))

	got, err := snaps.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte(`{"version":1,"sessions":[]}`), got)
}
