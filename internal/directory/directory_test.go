package directory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/models"
	"github.com/den4ikerror/ai-crypto-indicator-bot/pkg/logger"
)

func newDirectory(t *testing.T) *Directory {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "users_data.json"), logger.NewNop())
}

func TestTrackAndFind(t *testing.T) {
	d := newDirectory(t)

	d.Track(42, "trader_joe", "Joe")

	p, ok := d.FindByID(42)
	require.True(t, ok)
	assert.Equal(t, "trader_joe", p.Username)
	assert.Equal(t, "Joe", p.FirstName)
	assert.False(t, p.CreatedAt.IsZero())

	byName, ok := d.FindByUsername("@Trader_Joe")
	require.True(t, ok)
	assert.Equal(t, int64(42), byName.UserID)

	_, ok = d.FindByUsername("nobody")
	assert.False(t, ok)
}

func TestTrackKeepsCreatedAt(t *testing.T) {
	d := newDirectory(t)

	d.Track(42, "trader_joe", "Joe")
	first, _ := d.FindByID(42)
	created := first.CreatedAt

	time.Sleep(5 * time.Millisecond)
	d.Track(42, "trader_joe", "Joe")

	p, ok := d.FindByID(42)
	require.True(t, ok)
	assert.Equal(t, created, p.CreatedAt)
	assert.True(t, !p.LastSeen.Before(created))
}

func TestRefreshPatchesSnapshot(t *testing.T) {
	d := newDirectory(t)
	d.Track(42, "trader_joe", "Joe")

	d.Refresh(42, &models.Entitlement{
		ChatID:           42,
		Plan:             models.PlanPro,
		SignalsDaily:     5,
		SignalsUsedToday: 2,
	})

	p, ok := d.FindByID(42)
	require.True(t, ok)
	assert.Equal(t, models.PlanPro, p.Plan)
	assert.Equal(t, 5, p.SignalsDaily)
	assert.Equal(t, 2, p.SignalsUsedToday)

	d.Refresh(42, nil)
	p, _ = d.FindByID(42)
	assert.Equal(t, models.PlanNone, p.Plan)
	assert.Equal(t, 0, p.SignalsDaily)
}

func TestRefreshUnknownUserIsNoop(t *testing.T) {
	d := newDirectory(t)
	d.Refresh(99, &models.Entitlement{ChatID: 99, Plan: models.PlanPro})
	_, ok := d.FindByID(99)
	assert.False(t, ok)
}

func TestRecentOrdering(t *testing.T) {
	d := newDirectory(t)

	d.Track(1, "first", "")
	time.Sleep(5 * time.Millisecond)
	d.Track(2, "second", "")
	time.Sleep(5 * time.Millisecond)
	d.Track(3, "third", "")

	recent := d.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(3), recent[0].UserID)
	assert.Equal(t, int64(2), recent[1].UserID)
}
