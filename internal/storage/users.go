// Package storage holds the sqlx repositories over the sqlite schema.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/babababa22003300kaka-bot/eafc232cons/core/logger"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/domain"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("storage: not found")

// Users persists seller profiles and their registration checkpoints.
type Users struct {
	db *sqlx.DB
}

// NewUsers builds the users repository.
func NewUsers(db *sqlx.DB) *Users {
	return &Users{db: db}
}

// Get fetches a profile by telegram id. Missing users return ErrNotFound.
func (r *Users) Get(ctx context.Context, telegramID int64) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, `
		SELECT telegram_id, username, platform, whatsapp, payment_method,
		       payment_details, registration_step, created_at, updated_at
		FROM users WHERE telegram_id = ?`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.WrapStorage("users.get", err)
	}
	return &u, nil
}

// Begin creates the row at the start step, or resets an abandoned attempt
// back to the start step without touching already-captured fields.
func (r *Users) Begin(ctx context.Context, telegramID int64, username string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (telegram_id, username, registration_step, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			username = excluded.username,
			registration_step = excluded.registration_step,
			updated_at = excluded.updated_at`,
		telegramID, username, domain.StepStart, now, now)
	if err != nil {
		return domain.WrapStorage("users.begin", err)
	}
	return r.logStep(ctx, telegramID, domain.StepStart, "")
}

// Checkpoint persists one captured field together with the step that
// produced it and appends the step to the registration log.
func (r *Users) Checkpoint(ctx context.Context, telegramID int64, step domain.RegistrationStep, field, value string) error {
	allowed := map[string]string{
		"platform":        "platform",
		"whatsapp":        "whatsapp",
		"payment_method":  "payment_method",
		"payment_details": "payment_details",
	}
	col, ok := allowed[field]
	if !ok {
		return domain.WrapStorage("users.checkpoint", errors.New("unknown field "+field))
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET `+col+` = ?, registration_step = ?, updated_at = ? WHERE telegram_id = ?`,
		value, step, time.Now().UTC(), telegramID)
	if err != nil {
		return domain.WrapStorage("users.checkpoint", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapStorage("users.checkpoint", ErrNotFound)
	}
	return r.logStep(ctx, telegramID, step, value)
}

// Complete marks registration finished.
func (r *Users) Complete(ctx context.Context, telegramID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET registration_step = ?, updated_at = ? WHERE telegram_id = ?`,
		domain.StepCompleted, time.Now().UTC(), telegramID)
	if err != nil {
		return domain.WrapStorage("users.complete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapStorage("users.complete", ErrNotFound)
	}
	logger.Info(ctx, "service.users", "registration.completed",
		slog.Int64("user_id", telegramID),
	)
	return r.logStep(ctx, telegramID, domain.StepCompleted, "")
}

// Step returns the persisted registration step; ErrNotFound when the user
// never started.
func (r *Users) Step(ctx context.Context, telegramID int64) (domain.RegistrationStep, error) {
	var step domain.RegistrationStep
	err := r.db.GetContext(ctx, &step,
		`SELECT registration_step FROM users WHERE telegram_id = ?`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", domain.WrapStorage("users.step", err)
	}
	return step, nil
}

// Erase removes the profile and its registration log in one transaction.
func (r *Users) Erase(ctx context.Context, telegramID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.WrapStorage("users.erase", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM registration_log WHERE telegram_id = ?`, telegramID); err != nil {
		return domain.WrapStorage("users.erase", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE telegram_id = ?`, telegramID); err != nil {
		return domain.WrapStorage("users.erase", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.WrapStorage("users.erase", err)
	}
	logger.Info(ctx, "service.users", "profile.erased",
		slog.Int64("user_id", telegramID),
	)
	return nil
}

func (r *Users) logStep(ctx context.Context, telegramID int64, step domain.RegistrationStep, data string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO registration_log (telegram_id, step, data, ts) VALUES (?, ?, ?, ?)`,
		telegramID, step, data, time.Now().UTC())
	if err != nil {
		return domain.WrapStorage("users.log_step", err)
	}
	return nil
}
