// Package quota implements the entitlement and daily-allotment engine.
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/models"
	"github.com/den4ikerror/ai-crypto-indicator-bot/pkg/logger"
)

// Store is the slice of the persistent store the engine needs. Satisfied by
// *db.PostgresDB.
type Store interface {
	GetUser(ctx context.Context, chatID int64) (*models.Entitlement, error)
	SetPlan(ctx context.Context, chatID int64, plan models.PlanKey, expires int64, signalsDaily int) error
	AddSignalsUsed(ctx context.Context, chatID int64, amount int) (int, error)
	ResetDailySignals(ctx context.Context) error
}

type Engine struct {
	store  Store
	logger *logger.Logger
}

func New(store Store, logger *logger.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Entitlement returns the user's current entitlement row, or
// models.ErrNotFound when none was ever granted.
func (e *Engine) Entitlement(ctx context.Context, chatID int64) (*models.Entitlement, error) {
	return e.store.GetUser(ctx, chatID)
}

// SignalsAvailable returns (available, daily) for gating. An absent user is
// not an error: it reads as (0, 0), identical to an exhausted quota.
func (e *Engine) SignalsAvailable(ctx context.Context, chatID int64) (int, int, error) {
	ent, err := e.store.GetUser(ctx, chatID)
	if errors.Is(err, models.ErrNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return ent.SignalsAvailable(), ent.SignalsDaily, nil
}

// Consume increments today's usage by amount and returns the new counter.
// It does not re-check the ceiling: callers gate on SignalsAvailable first,
// so concurrent check-then-consume can overshoot the cap.
func (e *Engine) Consume(ctx context.Context, chatID int64, amount int) (int, error) {
	used, err := e.store.AddSignalsUsed(ctx, chatID, amount)
	if err != nil {
		return 0, fmt.Errorf("consume for %d: %w", chatID, err)
	}
	e.logger.Infow("signal consumed", "chat_id", chatID, "used_today", used)
	return used, nil
}

// ResetAllDaily zeroes consumption for every user with a positive daily
// allotment. Safe to call repeatedly.
func (e *Engine) ResetAllDaily(ctx context.Context) error {
	if err := e.store.ResetDailySignals(ctx); err != nil {
		return err
	}
	e.logger.Infow("daily signals reset")
	return nil
}

// Grant overwrites the user's entitlement with the given plan, expiry and
// daily allotment, zeroing today's usage. Previous values are discarded.
func (e *Engine) Grant(ctx context.Context, chatID int64, plan models.PlanKey, expires int64, signalsDaily int) error {
	if err := e.store.SetPlan(ctx, chatID, plan, expires, signalsDaily); err != nil {
		return err
	}
	e.logger.Infow("plan set", "chat_id", chatID, "plan", plan, "signals_daily", signalsDaily)
	return nil
}

// Revoke clears the user's plan and allotment. The row stays behind, inert.
func (e *Engine) Revoke(ctx context.Context, chatID int64) error {
	return e.Grant(ctx, chatID, models.PlanNone, 0, 0)
}
