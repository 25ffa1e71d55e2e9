// Package pricing serializes catalog price changes and computes sale
// quotes from the reference prices.
package pricing

import (
	"context"
	"log/slog"
	"sync"

	"github.com/babababa22003300kaka-bot/eafc232cons/core/logger"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/domain"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/storage"
)

// Ledger owns the priced catalog. Updates hold the ledger mutex across the
// read-validate-write-audit sequence, so concurrent admin edits apply one
// after another and every audit row records the true previous price.
// Reads never take the mutex; each read is a single consistent query.
type Ledger struct {
	mu     sync.Mutex
	prices *storage.Prices
}

// NewLedger builds a ledger over the prices repository.
func NewLedger(prices *storage.Prices) *Ledger {
	return &Ledger{prices: prices}
}

// Read returns the current price for (platform, transfer type).
func (l *Ledger) Read(ctx context.Context, platform domain.Platform, tt domain.TransferType) (*domain.Price, error) {
	return l.prices.Get(ctx, platform, tt)
}

// ReadAll returns the whole catalog.
func (l *Ledger) ReadAll(ctx context.Context) ([]domain.Price, error) {
	return l.prices.List(ctx)
}

// Audit returns the most recent price changes.
func (l *Ledger) Audit(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	return l.prices.Audit(ctx, limit)
}

// Update validates and applies a price change attributed to adminID.
// Validation failures return before any storage access; the price write and
// the audit append share one transaction.
func (l *Ledger) Update(ctx context.Context, adminID int64, platform domain.Platform, tt domain.TransferType, newPrice int64) error {
	if _, err := domain.ParsePlatform(string(platform)); err != nil {
		return err
	}
	if _, err := domain.ParseTransferType(string(tt)); err != nil {
		return err
	}
	if newPrice < domain.MinPrice || newPrice > domain.MaxPrice {
		return domain.NewValidationError("price", "out of accepted bounds", domain.CodeBadPriceRange)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.prices.Get(ctx, platform, tt)
	if err != nil {
		return err
	}
	if err := l.prices.Update(ctx, adminID, platform, tt, current.Price, newPrice); err != nil {
		return err
	}
	logger.Info(ctx, "service.catalog", "price.updated",
		slog.Int64("admin_id", adminID),
		slog.String("platform", string(platform)),
		slog.String("transfer_type", string(tt)),
		slog.Int64("old_price", current.Price),
		slog.Int64("new_price", newPrice),
	)
	return nil
}

// Quote computes the payout for amountK thousand coins from the reference
// price, which is quoted per million coins.
func (l *Ledger) Quote(ctx context.Context, platform domain.Platform, tt domain.TransferType, amountK int64) (int64, error) {
	p, err := l.prices.Get(ctx, platform, tt)
	if err != nil {
		return 0, err
	}
	// amountK * 1000 coins at p.Price per ReferenceAmount coins.
	return amountK * 1000 * p.Price / domain.ReferenceAmount, nil
}
