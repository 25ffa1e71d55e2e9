package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/babababa22003300kaka-bot/eafc232cons/internal/domain"
)

// Snapshots persists the serialized flow state as a single row, overwritten
// on every save.
type Snapshots struct {
	db *sqlx.DB
}

// NewSnapshots builds the snapshots repository.
func NewSnapshots(db *sqlx.DB) *Snapshots {
	return &Snapshots{db: db}
}

// SaveSnapshot stores the payload, replacing any previous one. It
// satisfies the flow engine's snapshot sink.
func (r *Snapshots) SaveSnapshot(ctx context.Context, payload []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO flow_snapshots (id, payload, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		payload, time.Now().UTC())
	if err != nil {
		return domain.WrapStorage("snapshots.save", err)
	}
	return nil
}

// Load returns the stored payload; ErrNotFound when nothing was saved yet.
func (r *Snapshots) Load(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := r.db.GetContext(ctx, &payload, `SELECT payload FROM flow_snapshots WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.WrapStorage("snapshots.load", err)
	}
	return payload, nil
}
