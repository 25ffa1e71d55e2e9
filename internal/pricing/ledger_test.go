package pricing

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/babababa22003300kaka-bot/eafc232cons/internal/domain"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/storage"
)

func testLedger(t *testing.T) (*Ledger, *sqlx.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot.db")
	db, err := sqlx.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE coin_prices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			platform TEXT NOT NULL, transfer_type TEXT NOT NULL,
			amount INTEGER NOT NULL, price INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (platform, transfer_type, amount)
		);
		CREATE TABLE price_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			admin_id INTEGER NOT NULL, platform TEXT NOT NULL,
			transfer_type TEXT NOT NULL, amount INTEGER NOT NULL,
			old_price INTEGER NOT NULL, new_price INTEGER NOT NULL,
			changed_at TIMESTAMP NOT NULL
		);`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO coin_prices (platform, transfer_type, amount, price, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		domain.PlatformPlayStation, domain.TransferNormal, domain.ReferenceAmount, 5600)
	require.NoError(t, err)

	return NewLedger(storage.NewPrices(db)), db
}

func TestLedgerValidationRejectsBeforeStorage(t *testing.T) {
	ctx := context.Background()
	ledger, db := testLedger(t)

	cases := []struct {
		name     string
		platform domain.Platform
		tt       domain.TransferType
		price    int64
	}{
		{"bad platform", "switch", domain.TransferNormal, 5000},
		{"bad transfer type", domain.PlatformPlayStation, "express", 5000},
		{"price below bound", domain.PlatformPlayStation, domain.TransferNormal, 999},
		{"price above bound", domain.PlatformPlayStation, domain.TransferNormal, 50001},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ledger.Update(ctx, 1, tc.platform, tc.tt, tc.price)
			require.Error(t, err)
			require.True(t, domain.IsValidation(err), "expected validation rejection, got %v", err)
		})
	}

	var audits int
	require.NoError(t, db.Get(&audits, `SELECT COUNT(*) FROM price_audit`))
	require.Zero(t, audits, "rejected updates must not touch storage")

	p, err := ledger.Read(ctx, domain.PlatformPlayStation, domain.TransferNormal)
	require.NoError(t, err)
	require.Equal(t, int64(5600), p.Price)
}

func TestLedgerStorageFailureIsNotValidation(t *testing.T) {
	ctx := context.Background()
	ledger, _ := testLedger(t)

	// Valid inputs against a missing catalog row surface as storage failure.
	err := ledger.Update(ctx, 1, domain.PlatformXbox, domain.TransferNormal, 5000)
	require.Error(t, err)
	require.False(t, domain.IsValidation(err))
}

func TestLedgerSerializesConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	ledger, db := testLedger(t)

	const writers = 8
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- ledger.Update(ctx, int64(i), domain.PlatformPlayStation, domain.TransferNormal, 5000+int64(i)*100)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	audit, err := ledger.Audit(ctx, writers+1)
	require.NoError(t, err)
	require.Len(t, audit, writers)

	// Each audit row must chain from the previous row's new price.
	for i := 0; i < len(audit)-1; i++ {
		require.Equal(t, audit[i+1].NewPrice, audit[i].OldPrice,
			fmt.Sprintf("audit row %d does not chain", i))
	}

	p, err := ledger.Read(ctx, domain.PlatformPlayStation, domain.TransferNormal)
	require.NoError(t, err)
	require.Equal(t, audit[0].NewPrice, p.Price)

	var priceRows int
	require.NoError(t, db.Get(&priceRows, `SELECT COUNT(*) FROM coin_prices`))
	require.Equal(t, 1, priceRows)
}

func TestLedgerQuote(t *testing.T) {
	ctx := context.Background()
	ledger, _ := testLedger(t)

	// 900k coins at 5600 per million.
	got, err := ledger.Quote(ctx, domain.PlatformPlayStation, domain.TransferNormal, 900)
	require.NoError(t, err)
	require.Equal(t, int64(5040), got)

	_, err = ledger.Quote(ctx, domain.PlatformPC, domain.TransferNormal, 900)
	require.Error(t, err, "missing catalog row must surface")
}
