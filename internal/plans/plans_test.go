package plans

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/models"
	"github.com/den4ikerror/ai-crypto-indicator-bot/pkg/logger"
)

type grantCall struct {
	chatID       int64
	plan         models.PlanKey
	expires      int64
	signalsDaily int
}

type fakeGranter struct {
	calls []grantCall
	err   error
}

func (g *fakeGranter) Grant(_ context.Context, chatID int64, plan models.PlanKey, expires int64, signalsDaily int) error {
	if g.err != nil {
		return g.err
	}
	g.calls = append(g.calls, grantCall{chatID, plan, expires, signalsDaily})
	return nil
}

var testPrices = Prices{Starter: 30, Pro: 50, Bot1Year: 270, Bot2Year: 360}

func TestApplyPlanProMonth(t *testing.T) {
	granter := &fakeGranter{}
	svc := NewService(granter, testPrices, logger.NewNop())

	spec, err := svc.ApplyPlan(context.Background(), 202, models.PlanPro, models.TermMonth)
	require.NoError(t, err)
	assert.Equal(t, 5, spec.SignalsDaily)

	require.Len(t, granter.calls, 1)
	call := granter.calls[0]
	assert.Equal(t, int64(202), call.chatID)
	assert.Equal(t, models.PlanPro, call.plan)
	assert.Equal(t, 5, call.signalsDaily)

	want := time.Now().UTC().Add(30 * 24 * time.Hour).Unix()
	assert.InDelta(t, want, call.expires, 5)
}

func TestApplyPlanYearTerm(t *testing.T) {
	granter := &fakeGranter{}
	svc := NewService(granter, testPrices, logger.NewNop())

	_, err := svc.ApplyPlan(context.Background(), 202, models.PlanStarter, models.TermYear)
	require.NoError(t, err)

	want := time.Now().UTC().Add(365 * 24 * time.Hour).Unix()
	assert.InDelta(t, want, granter.calls[0].expires, 5)
	assert.Equal(t, 2, granter.calls[0].signalsDaily)
}

func TestApplyPlanUnknownKey(t *testing.T) {
	granter := &fakeGranter{}
	svc := NewService(granter, testPrices, logger.NewNop())

	_, err := svc.ApplyPlan(context.Background(), 202, models.PlanKey("platinum"), models.TermMonth)
	require.ErrorIs(t, err, models.ErrInvalidPlan)
	assert.Empty(t, granter.calls)
}

func TestPrice(t *testing.T) {
	for _, tc := range []struct {
		plan models.PlanKey
		term models.Term
		want float64
	}{
		{models.PlanStarter, models.TermMonth, 30},
		{models.PlanStarter, models.TermYear, 240},
		{models.PlanPro, models.TermMonth, 50},
		{models.PlanPro, models.TermYear, 420},
		{models.PlanBot1Year, models.TermYear, 270},
		{models.PlanBot2Year, models.TermYear, 360},
	} {
		got, err := testPrices.For(tc.plan, tc.term)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s/%s", tc.plan, tc.term)
	}

	_, err := testPrices.For(models.PlanKey("nope"), models.TermMonth)
	require.ErrorIs(t, err, models.ErrInvalidPlan)
}

func TestPriceComesFromConfiguredTable(t *testing.T) {
	svc := NewService(&fakeGranter{}, Prices{Starter: 35, Pro: 55}, logger.NewNop())

	got, err := svc.Price(models.PlanStarter, models.TermMonth)
	require.NoError(t, err)
	assert.Equal(t, 35.0, got)

	got, err = svc.Price(models.PlanPro, models.TermMonth)
	require.NoError(t, err)
	assert.Equal(t, 55.0, got)
}

func TestDefaultTerm(t *testing.T) {
	assert.Equal(t, models.TermMonth, DefaultTerm(models.PlanStarter))
	assert.Equal(t, models.TermMonth, DefaultTerm(models.PlanPro))
	assert.Equal(t, models.TermYear, DefaultTerm(models.PlanBot1Year))
	assert.Equal(t, models.TermYear, DefaultTerm(models.PlanBot2Year))
}

func TestReliabilityBounds(t *testing.T) {
	low, high := ReliabilityBounds(models.PlanStarter)
	assert.Equal(t, 60, low)
	assert.Equal(t, 80, high)

	low, high = ReliabilityBounds(models.PlanPro)
	assert.Equal(t, 80, low)
	assert.Equal(t, 90, high)

	// The year bot plans stay in the base band; only pro is premium.
	low, high = ReliabilityBounds(models.PlanBot2Year)
	assert.Equal(t, 60, low)
	assert.Equal(t, 80, high)

	low, high = ReliabilityBounds(models.PlanBot1Year)
	assert.Equal(t, 60, low)
	assert.Equal(t, 80, high)
}
