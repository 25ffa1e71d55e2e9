package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/babababa22003300kaka-bot/eafc232cons/internal/domain"
)

// Prices persists the coin price catalog and its audit trail.
type Prices struct {
	db *sqlx.DB
}

// NewPrices builds the prices repository.
func NewPrices(db *sqlx.DB) *Prices {
	return &Prices{db: db}
}

// Get returns the price row for (platform, transfer type) at the reference
// amount.
func (r *Prices) Get(ctx context.Context, platform domain.Platform, tt domain.TransferType) (*domain.Price, error) {
	var p domain.Price
	err := r.db.GetContext(ctx, &p, `
		SELECT platform, transfer_type, amount, price, updated_at
		FROM coin_prices
		WHERE platform = ? AND transfer_type = ? AND amount = ?`,
		platform, tt, domain.ReferenceAmount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.WrapStorage("prices.get", err)
	}
	return &p, nil
}

// List returns the whole catalog ordered for display.
func (r *Prices) List(ctx context.Context) ([]domain.Price, error) {
	var out []domain.Price
	err := r.db.SelectContext(ctx, &out, `
		SELECT platform, transfer_type, amount, price, updated_at
		FROM coin_prices
		ORDER BY platform, transfer_type`)
	if err != nil {
		return nil, domain.WrapStorage("prices.list", err)
	}
	return out, nil
}

// Update writes the new price and appends the audit record in a single
// transaction; either both land or neither does.
func (r *Prices) Update(ctx context.Context, adminID int64, platform domain.Platform, tt domain.TransferType, oldPrice, newPrice int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.WrapStorage("prices.update", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE coin_prices SET price = ?, updated_at = ?
		WHERE platform = ? AND transfer_type = ? AND amount = ?`,
		newPrice, now, platform, tt, domain.ReferenceAmount)
	if err != nil {
		return domain.WrapStorage("prices.update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapStorage("prices.update", ErrNotFound)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO price_audit (admin_id, platform, transfer_type, amount, old_price, new_price, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		adminID, platform, tt, domain.ReferenceAmount, oldPrice, newPrice, now)
	if err != nil {
		return domain.WrapStorage("prices.audit", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.WrapStorage("prices.update", err)
	}
	return nil
}

// Audit returns the most recent audit entries, newest first.
func (r *Prices) Audit(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, admin_id, platform, transfer_type, amount, old_price, new_price, changed_at
		FROM price_audit
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, domain.WrapStorage("prices.audit_list", err)
	}
	return out, nil
}
