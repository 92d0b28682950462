package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/models"
	"github.com/den4ikerror/ai-crypto-indicator-bot/pkg/logger"
)

type memStore struct {
	users map[int64]*models.Entitlement
}

func newMemStore() *memStore {
	return &memStore{users: make(map[int64]*models.Entitlement)}
}

func (s *memStore) GetUser(_ context.Context, chatID int64) (*models.Entitlement, error) {
	ent, ok := s.users[chatID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *ent
	return &cp, nil
}

func (s *memStore) SetPlan(_ context.Context, chatID int64, plan models.PlanKey, expires int64, signalsDaily int) error {
	s.users[chatID] = &models.Entitlement{
		ChatID:       chatID,
		Plan:         plan,
		PlanExpires:  expires,
		SignalsDaily: signalsDaily,
		LastReset:    time.Now().Unix(),
	}
	return nil
}

func (s *memStore) AddSignalsUsed(_ context.Context, chatID int64, amount int) (int, error) {
	ent, ok := s.users[chatID]
	if !ok {
		return 0, models.ErrNotFound
	}
	ent.SignalsUsedToday += amount
	return ent.SignalsUsedToday, nil
}

func (s *memStore) ResetDailySignals(_ context.Context) error {
	now := time.Now().Unix()
	for _, ent := range s.users {
		if ent.SignalsDaily > 0 {
			ent.SignalsUsedToday = 0
			ent.LastReset = now
		}
	}
	return nil
}

func newEngine(t *testing.T) (*Engine, *memStore) {
	t.Helper()
	store := newMemStore()
	return New(store, logger.NewNop()), store
}

func TestSignalsAvailableAbsentUser(t *testing.T) {
	engine, _ := newEngine(t)

	available, daily, err := engine.SignalsAvailable(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, 0, available)
	assert.Equal(t, 0, daily)
}

func TestConsumeAbsentUserFails(t *testing.T) {
	engine, _ := newEngine(t)

	_, err := engine.Consume(context.Background(), 101, 1)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestConsumeDoesNotSelfLimit(t *testing.T) {
	ctx := context.Background()
	engine, _ := newEngine(t)

	require.NoError(t, engine.Grant(ctx, 101, models.PlanStarter, time.Now().Add(30*24*time.Hour).Unix(), 2))

	for i := 1; i <= 3; i++ {
		used, err := engine.Consume(ctx, 101, 1)
		require.NoError(t, err)
		assert.Equal(t, i, used)
	}

	// Over-consumed, but availability clamps at zero.
	available, daily, err := engine.SignalsAvailable(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, 0, available)
	assert.Equal(t, 2, daily)

	ent, err := engine.Entitlement(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, 3, ent.SignalsUsedToday)
}

func TestAvailablePlusUsedEqualsDaily(t *testing.T) {
	ctx := context.Background()
	engine, _ := newEngine(t)

	require.NoError(t, engine.Grant(ctx, 7, models.PlanPro, 0, 5))
	_, err := engine.Consume(ctx, 7, 2)
	require.NoError(t, err)

	available, daily, err := engine.SignalsAvailable(ctx, 7)
	require.NoError(t, err)
	ent, err := engine.Entitlement(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, daily, available+ent.SignalsUsedToday)
}

func TestGrantOverwrites(t *testing.T) {
	ctx := context.Background()
	engine, _ := newEngine(t)

	require.NoError(t, engine.Grant(ctx, 101, models.PlanStarter, 1000, 2))
	_, err := engine.Consume(ctx, 101, 2)
	require.NoError(t, err)

	require.NoError(t, engine.Grant(ctx, 101, models.PlanPro, 2000, 5))

	ent, err := engine.Entitlement(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, ent.Plan)
	assert.Equal(t, int64(2000), ent.PlanExpires)
	assert.Equal(t, 5, ent.SignalsDaily)
	assert.Equal(t, 0, ent.SignalsUsedToday)
}

func TestResetAllDailyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, store := newEngine(t)

	require.NoError(t, engine.Grant(ctx, 1, models.PlanStarter, 0, 2))
	_, err := engine.Consume(ctx, 1, 3)
	require.NoError(t, err)

	// A revoked user has signals_daily == 0 and is untouched by reset.
	require.NoError(t, engine.Grant(ctx, 2, models.PlanNone, 0, 0))
	store.users[2].SignalsUsedToday = 4

	require.NoError(t, engine.ResetAllDaily(ctx))
	first := *store.users[1]
	require.NoError(t, engine.ResetAllDaily(ctx))
	second := *store.users[1]

	assert.Equal(t, 0, second.SignalsUsedToday)
	assert.Equal(t, 2, second.SignalsDaily)
	assert.Equal(t, first.SignalsUsedToday, second.SignalsUsedToday)
	assert.Equal(t, 4, store.users[2].SignalsUsedToday)
}

func TestRevokeLeavesInertRow(t *testing.T) {
	ctx := context.Background()
	engine, _ := newEngine(t)

	require.NoError(t, engine.Grant(ctx, 101, models.PlanPro, 5000, 5))
	require.NoError(t, engine.Revoke(ctx, 101))

	ent, err := engine.Entitlement(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, models.PlanNone, ent.Plan)
	assert.Equal(t, 0, ent.SignalsDaily)

	available, daily, err := engine.SignalsAvailable(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, 0, available)
	assert.Equal(t, 0, daily)
}
