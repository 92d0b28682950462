// Package delivery orchestrates signal delivery: quota gating, the delayed
// background search, caption decoration and quota consumption.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/models"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/plans"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/scheduler"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/session"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/signal"
	"github.com/den4ikerror/ai-crypto-indicator-bot/pkg/logger"
)

// Quota is the entitlement engine slice used for gating and consumption.
type Quota interface {
	SignalsAvailable(ctx context.Context, chatID int64) (int, int, error)
	Consume(ctx context.Context, chatID int64, amount int) (int, error)
	Entitlement(ctx context.Context, chatID int64) (*models.Entitlement, error)
}

// Producer generates one signal for a symbol.
type Producer interface {
	Generate(ctx context.Context, symbol string) (*signal.Signal, error)
}

// Transport sends messages back to the user. Satisfied by *bot.Bot.
type Transport interface {
	SendMessage(chatID int64, text string) error
	SendPhoto(chatID int64, photo []byte, caption string) error
}

// Annotator adds an optional market commentary under a delivered signal.
type Annotator interface {
	Commentary(ctx context.Context, signalText string) (string, error)
}

// Refresher patches the operator-lookup mirror after quota changes.
type Refresher interface {
	Refresh(userID int64, ent *models.Entitlement)
}

// Config carries the delivery tunables.
type Config struct {
	Symbols   []string
	MinDelay  time.Duration
	MaxDelay  time.Duration
	ChartDir  string
	ResetHour int
}

type Orchestrator struct {
	quota     Quota
	producer  Producer
	transport Transport
	annotator Annotator
	directory Refresher
	sessions  *session.State
	cfg       Config
	logger    *logger.Logger
}

func New(quota Quota, producer Producer, transport Transport, sessions *session.State, cfg Config, logger *logger.Logger) *Orchestrator {
	return &Orchestrator{
		quota:     quota,
		producer:  producer,
		transport: transport,
		sessions:  sessions,
		cfg:       cfg,
		logger:    logger,
	}
}

// WithAnnotator enables the AI commentary message after each delivery.
func (o *Orchestrator) WithAnnotator(a Annotator) *Orchestrator {
	o.annotator = a
	return o
}

// WithDirectory enables mirror refreshes after quota consumption.
func (o *Orchestrator) WithDirectory(d Refresher) *Orchestrator {
	o.directory = d
	return o
}

// Dispatch gates on the user's remaining quota and, if any is left, starts
// a background delivery task with a random delay. All user-facing replies
// are sent here. An exhausted quota is reported as models.ErrQuotaExhausted
// after the user has been told; other errors cover store and transport
// failures. A second dispatch while one is in flight is answered and
// dropped.
func (o *Orchestrator) Dispatch(ctx context.Context, chatID int64) error {
	available, daily, err := o.quota.SignalsAvailable(ctx, chatID)
	if err != nil {
		return fmt.Errorf("dispatch for %d: %w", chatID, err)
	}
	if daily == 0 {
		return o.transport.SendMessage(chatID, "ℹ️ У вас немає активної підписки. Оформіть план у меню «Купити підписку».")
	}
	if available <= 0 {
		if err := o.transport.SendMessage(chatID, o.limitText()); err != nil {
			return err
		}
		return models.ErrQuotaExhausted
	}

	taskCtx, cancel := context.WithCancel(ctx)
	if !o.sessions.BeginSearch(chatID, cancel) {
		cancel()
		return o.transport.SendMessage(chatID, "⏳ Пошук сигналу вже триває. Зачекайте, будь ласка.")
	}

	searching := fmt.Sprintf("🔍 Шукаю сигнал... Це може зайняти від %d до %d хвилин.",
		int(o.cfg.MinDelay.Minutes()), int(o.cfg.MaxDelay.Minutes()))
	if err := o.transport.SendMessage(chatID, searching); err != nil {
		o.logger.Warnw("searching notice failed", "chat_id", chatID, "error", err)
	}

	go o.deliver(taskCtx, chatID)
	return nil
}

// deliver waits out the random delay, re-checks the quota and sends the
// first non-neutral signal it can generate. The gap between the re-check
// and Consume is not atomic; the in-flight guard in Dispatch keeps a single
// user from racing themselves, which is the only case that occurs.
func (o *Orchestrator) deliver(ctx context.Context, chatID int64) {
	defer o.sessions.EndSearch(chatID)

	// Top-level rand only: deliver goroutines for different users run
	// concurrently.
	delay := o.cfg.MinDelay
	if span := o.cfg.MaxDelay - o.cfg.MinDelay; span > 0 {
		delay += time.Duration(rand.Int63n(int64(span)))
	}

	select {
	case <-ctx.Done():
		o.logger.Infow("delivery cancelled", "chat_id", chatID)
		return
	case <-time.After(delay):
	}

	available, _, err := o.quota.SignalsAvailable(ctx, chatID)
	if err != nil {
		o.logger.Errorw("quota re-check failed", "chat_id", chatID, "error", err)
		return
	}
	if available <= 0 {
		o.send(chatID, o.limitText())
		return
	}

	sig := o.findSignal(ctx)
	if sig == nil {
		o.send(chatID, "😕 Зараз немає якісного сигналу. Спробуйте трохи пізніше.")
		return
	}

	ent, err := o.quota.Entitlement(ctx, chatID)
	if err != nil {
		o.logger.Errorw("entitlement read failed", "chat_id", chatID, "error", err)
		return
	}

	caption := o.decorate(sig, ent.Plan)
	if err := o.transport.SendPhoto(chatID, sig.Chart, caption); err != nil {
		o.logger.Errorw("signal send failed", "chat_id", chatID, "error", err)
		return
	}
	o.spoolChart(chatID, sig.Chart)

	if _, err := o.quota.Consume(ctx, chatID, 1); err != nil {
		o.logger.Errorw("quota consume failed", "chat_id", chatID, "error", err)
	} else if o.directory != nil {
		if fresh, err := o.quota.Entitlement(ctx, chatID); err == nil {
			o.directory.Refresh(chatID, fresh)
		}
	}

	o.annotate(ctx, chatID, caption)
}

// DeliverInstant generates and sends a signal immediately, without delay,
// quota gating or consumption. Operator use only.
func (o *Orchestrator) DeliverInstant(ctx context.Context, chatID int64, plan models.PlanKey) error {
	sig := o.findSignal(ctx)
	if sig == nil {
		return o.transport.SendMessage(chatID, "😕 Зараз немає якісного сигналу. Спробуйте трохи пізніше.")
	}

	caption := o.decorate(sig, plan)
	if err := o.transport.SendPhoto(chatID, sig.Chart, caption); err != nil {
		return fmt.Errorf("instant delivery for %d: %w", chatID, err)
	}
	o.spoolChart(chatID, sig.Chart)
	o.annotate(ctx, chatID, caption)
	return nil
}

// findSignal walks the symbol list in random order and returns the first
// actionable signal. Neutral reads and per-symbol failures are skipped.
func (o *Orchestrator) findSignal(ctx context.Context) *signal.Signal {
	symbols := make([]string, len(o.cfg.Symbols))
	copy(symbols, o.cfg.Symbols)
	rand.Shuffle(len(symbols), func(i, j int) { symbols[i], symbols[j] = symbols[j], symbols[i] })

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return nil
		}
		sig, err := o.producer.Generate(ctx, symbol)
		if err != nil {
			if !errors.Is(err, models.ErrNoData) {
				o.logger.Warnw("signal generation failed", "symbol", symbol, "error", err)
			}
			continue
		}
		if sig.Type == signal.TypeNeutral {
			continue
		}
		return sig
	}
	return nil
}

// decorate prepends the delivery header: reliability drawn from the plan's
// band and a leverage suggestion from 25x to 100x in steps of 5.
func (o *Orchestrator) decorate(sig *signal.Signal, plan models.PlanKey) string {
	lo, hi := plans.ReliabilityBounds(plan)
	reliability := lo + rand.Intn(hi-lo+1)
	leverage := 25 + 5*rand.Intn(16)

	return fmt.Sprintf("📡 Сигнал — %s\n🔒 Надійність: %d%% | ⚖️ Плече: %dx\n\n%s",
		sig.Symbol, reliability, leverage, sig.Caption)
}

func (o *Orchestrator) annotate(ctx context.Context, chatID int64, caption string) {
	if o.annotator == nil {
		return
	}
	commentary, err := o.annotator.Commentary(ctx, caption)
	if err != nil {
		o.logger.Warnw("commentary failed", "chat_id", chatID, "error", err)
		return
	}
	o.send(chatID, "💬 "+commentary)
}

// spoolChart writes the sent PNG to the chart directory so the operator can
// inspect recent deliveries. Maintenance deletes the files after a day.
func (o *Orchestrator) spoolChart(chatID int64, png []byte) {
	if o.cfg.ChartDir == "" || len(png) == 0 {
		return
	}
	name := fmt.Sprintf("chart_%d_%d.png", chatID, time.Now().UnixNano())
	if err := os.WriteFile(filepath.Join(o.cfg.ChartDir, name), png, 0o644); err != nil {
		o.logger.Warnw("chart spool failed", "error", err)
	}
}

func (o *Orchestrator) limitText() string {
	next := scheduler.NextReset(time.Now(), o.cfg.ResetHour)
	return fmt.Sprintf("🚫 Ліміт сигналів на сьогодні вичерпано.\n⏭ Наступне оновлення: %s UTC", next.Format("2006-01-02 15:04"))
}

func (o *Orchestrator) send(chatID int64, text string) {
	if err := o.transport.SendMessage(chatID, text); err != nil {
		o.logger.Warnw("message send failed", "chat_id", chatID, "error", err)
	}
}
