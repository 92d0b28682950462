package delivery

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/models"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/session"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/signal"
	"github.com/den4ikerror/ai-crypto-indicator-bot/pkg/logger"
)

type fakeQuota struct {
	mu        sync.Mutex
	available int
	daily     int
	plan      models.PlanKey
	consumed  int
}

func (q *fakeQuota) SignalsAvailable(_ context.Context, _ int64) (int, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.available, q.daily, nil
}

func (q *fakeQuota) Consume(_ context.Context, _ int64, amount int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.consumed += amount
	q.available -= amount
	return q.consumed, nil
}

func (q *fakeQuota) Entitlement(_ context.Context, chatID int64) (*models.Entitlement, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return &models.Entitlement{ChatID: chatID, Plan: q.plan, SignalsDaily: q.daily}, nil
}

type fakeProducer struct {
	mu      sync.Mutex
	signals map[string]*signal.Signal
	calls   int
}

func (p *fakeProducer) Generate(_ context.Context, symbol string) (*signal.Signal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if sig, ok := p.signals[symbol]; ok {
		copied := *sig
		copied.Symbol = symbol
		return &copied, nil
	}
	return &signal.Signal{Symbol: symbol, Type: signal.TypeNeutral, Caption: "flat"}, nil
}

type recordedPhoto struct {
	chatID  int64
	caption string
}

type fakeTransport struct {
	mu       sync.Mutex
	messages []string
	photos   []recordedPhoto
}

func (t *fakeTransport) SendMessage(_ int64, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, text)
	return nil
}

func (t *fakeTransport) SendPhoto(chatID int64, _ []byte, caption string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.photos = append(t.photos, recordedPhoto{chatID: chatID, caption: caption})
	return nil
}

func (t *fakeTransport) lastMessage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.messages) == 0 {
		return ""
	}
	return t.messages[len(t.messages)-1]
}

func (t *fakeTransport) photoCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.photos)
}

func buySignal() *signal.Signal {
	return &signal.Signal{
		Type:    signal.TypeBuy,
		Entry:   100,
		Caption: "📊 test caption",
		Chart:   []byte{0x89, 'P', 'N', 'G'},
	}
}

func newTestOrchestrator(q *fakeQuota, p *fakeProducer, tr *fakeTransport, cfg Config) *Orchestrator {
	if cfg.Symbols == nil {
		cfg.Symbols = []string{"BTC/USDT", "ETH/USDT"}
	}
	if cfg.ResetHour == 0 {
		cfg.ResetHour = 8
	}
	return New(q, p, tr, session.New(time.Hour), cfg, logger.NewNop())
}

func TestDispatchWithoutSubscription(t *testing.T) {
	tr := &fakeTransport{}
	o := newTestOrchestrator(&fakeQuota{}, &fakeProducer{}, tr, Config{})

	require.NoError(t, o.Dispatch(context.Background(), 1))

	assert.Contains(t, tr.lastMessage(), "немає активної підписки")
	assert.False(t, o.sessions.Searching(1))
}

func TestDispatchExhaustedQuota(t *testing.T) {
	tr := &fakeTransport{}
	o := newTestOrchestrator(&fakeQuota{available: 0, daily: 2}, &fakeProducer{}, tr, Config{})

	require.ErrorIs(t, o.Dispatch(context.Background(), 1), models.ErrQuotaExhausted)

	assert.Contains(t, tr.lastMessage(), "Ліміт сигналів")
	assert.Contains(t, tr.lastMessage(), "Наступне оновлення")
	assert.False(t, o.sessions.Searching(1))
}

func TestDispatchDeliversAndConsumes(t *testing.T) {
	q := &fakeQuota{available: 1, daily: 2, plan: models.PlanStarter}
	p := &fakeProducer{signals: map[string]*signal.Signal{"BTC/USDT": buySignal()}}
	tr := &fakeTransport{}
	o := newTestOrchestrator(q, p, tr, Config{})

	require.NoError(t, o.Dispatch(context.Background(), 42))

	require.Eventually(t, func() bool { return tr.photoCount() == 1 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !o.sessions.Searching(42) }, 3*time.Second, 10*time.Millisecond)

	tr.mu.Lock()
	photo := tr.photos[0]
	tr.mu.Unlock()
	assert.Equal(t, int64(42), photo.chatID)
	assert.Contains(t, photo.caption, "📡 Сигнал — BTC/USDT")
	assert.Contains(t, photo.caption, "Надійність:")
	assert.Contains(t, photo.caption, "Плече:")
	assert.Contains(t, photo.caption, "📊 test caption")

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Equal(t, 1, q.consumed)
}

func TestDispatchConcurrentUsers(t *testing.T) {
	q := &fakeQuota{available: 8, daily: 8, plan: models.PlanPro}
	p := &fakeProducer{signals: map[string]*signal.Signal{"BTC/USDT": buySignal()}}
	tr := &fakeTransport{}
	o := newTestOrchestrator(q, p, tr, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		chatID := int64(100 + i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, o.Dispatch(context.Background(), chatID))
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return tr.photoCount() == 4 }, 3*time.Second, 10*time.Millisecond)

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Equal(t, 4, q.consumed)
}

func TestDispatchRejectsConcurrentSearch(t *testing.T) {
	q := &fakeQuota{available: 1, daily: 2}
	tr := &fakeTransport{}
	o := newTestOrchestrator(q, &fakeProducer{}, tr, Config{MinDelay: time.Hour, MaxDelay: time.Hour})

	require.NoError(t, o.Dispatch(context.Background(), 7))
	require.True(t, o.sessions.Searching(7))

	require.NoError(t, o.Dispatch(context.Background(), 7))
	assert.Contains(t, tr.lastMessage(), "вже триває")

	o.sessions.CancelSearch(7)
}

func TestDeliverSkipsNeutralSignals(t *testing.T) {
	q := &fakeQuota{available: 1, daily: 2}
	p := &fakeProducer{} // every symbol reads neutral
	tr := &fakeTransport{}
	o := newTestOrchestrator(q, p, tr, Config{})

	require.NoError(t, o.Dispatch(context.Background(), 9))
	require.Eventually(t, func() bool {
		return strings.Contains(tr.lastMessage(), "немає якісного сигналу")
	}, 3*time.Second, 10*time.Millisecond)

	assert.Zero(t, tr.photoCount())
	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Zero(t, q.consumed)
}

func TestDeliverInstantSkipsQuota(t *testing.T) {
	q := &fakeQuota{available: 0, daily: 0}
	p := &fakeProducer{signals: map[string]*signal.Signal{"ETH/USDT": buySignal()}}
	tr := &fakeTransport{}
	o := newTestOrchestrator(q, p, tr, Config{})

	require.NoError(t, o.DeliverInstant(context.Background(), 5, models.PlanPro))

	require.Equal(t, 1, tr.photoCount())
	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Zero(t, q.consumed)
}

func TestCancelledSearchSendsNothing(t *testing.T) {
	q := &fakeQuota{available: 1, daily: 2}
	tr := &fakeTransport{}
	o := newTestOrchestrator(q, &fakeProducer{}, tr, Config{MinDelay: time.Hour, MaxDelay: time.Hour})

	require.NoError(t, o.Dispatch(context.Background(), 3))
	require.True(t, o.sessions.CancelSearch(3))

	require.Eventually(t, func() bool { return !o.sessions.Searching(3) }, 3*time.Second, 10*time.Millisecond)
	assert.Zero(t, tr.photoCount())
}
