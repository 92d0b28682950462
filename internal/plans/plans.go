// Package plans holds the static plan table and the grant service that
// turns a (plan, term) selection into a concrete entitlement.
package plans

import (
	"context"
	"fmt"
	"time"

	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/models"
	"github.com/den4ikerror/ai-crypto-indicator-bot/pkg/logger"
)

// Spec is one row of the static plan table.
type Spec struct {
	SignalsDaily int
}

var table = map[models.PlanKey]Spec{
	models.PlanStarter:  {SignalsDaily: 2},
	models.PlanPro:      {SignalsDaily: 5},
	models.PlanBot1Year: {SignalsDaily: 2},
	models.PlanBot2Year: {SignalsDaily: 5},
}

// Prices carries the charge for each plan, loaded from config. The year-term
// upsell for the month plans is a fixed product detail, not a config knob.
type Prices struct {
	Starter  float64
	Pro      float64
	Bot1Year float64
	Bot2Year float64
}

const (
	priceStarterYear = 240
	priceProYear     = 420
)

// For returns the charge for a plan over the given term.
func (p Prices) For(plan models.PlanKey, term models.Term) (float64, error) {
	if _, err := Lookup(plan); err != nil {
		return 0, err
	}
	if term == models.TermYear {
		switch plan {
		case models.PlanStarter:
			return priceStarterYear, nil
		case models.PlanPro:
			return priceProYear, nil
		}
	}
	switch plan {
	case models.PlanStarter:
		return p.Starter, nil
	case models.PlanPro:
		return p.Pro, nil
	case models.PlanBot1Year:
		return p.Bot1Year, nil
	default:
		return p.Bot2Year, nil
	}
}

// Lookup returns the plan spec, or models.ErrInvalidPlan.
func Lookup(plan models.PlanKey) (Spec, error) {
	spec, ok := table[plan]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", models.ErrInvalidPlan, plan)
	}
	return spec, nil
}

// DefaultTerm is the duration granted on payment approval. Payment records
// do not carry the purchased term, so the yearly bot plans imply a year and
// everything else a month.
func DefaultTerm(plan models.PlanKey) models.Term {
	if plan == models.PlanBot1Year || plan == models.PlanBot2Year {
		return models.TermYear
	}
	return models.TermMonth
}

// Duration maps a term to its wall-clock length: 30 days or 365 days.
func Duration(term models.Term) time.Duration {
	if term == models.TermYear {
		return 365 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}

// ReliabilityBounds returns the advertised reliability range for signal
// captions: only pro gets the premium band.
func ReliabilityBounds(plan models.PlanKey) (int, int) {
	if plan == models.PlanPro {
		return 80, 90
	}
	return 60, 80
}

// Granter is the engine slice the service writes entitlements through.
type Granter interface {
	Grant(ctx context.Context, chatID int64, plan models.PlanKey, expires int64, signalsDaily int) error
}

// Service applies plan selections as entitlements and answers price queries.
// Used on payment approval and by the operator's direct-grant path; the
// contract is identical.
type Service struct {
	quota  Granter
	prices Prices
	logger *logger.Logger
}

func NewService(quota Granter, prices Prices, logger *logger.Logger) *Service {
	return &Service{quota: quota, prices: prices, logger: logger}
}

// Price returns the configured charge for a plan over the given term.
func (s *Service) Price(plan models.PlanKey, term models.Term) (float64, error) {
	return s.prices.For(plan, term)
}

// ApplyPlan grants plan to the user for the given term, overwriting any
// previous entitlement.
func (s *Service) ApplyPlan(ctx context.Context, chatID int64, plan models.PlanKey, term models.Term) (Spec, error) {
	spec, err := Lookup(plan)
	if err != nil {
		return Spec{}, err
	}

	expires := time.Now().UTC().Add(Duration(term)).Unix()
	if err := s.quota.Grant(ctx, chatID, plan, expires, spec.SignalsDaily); err != nil {
		return Spec{}, fmt.Errorf("apply plan %s for %d: %w", plan, chatID, err)
	}

	s.logger.Infow("plan applied", "chat_id", chatID, "plan", plan, "term", term, "signals_daily", spec.SignalsDaily)
	return spec, nil
}
