package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/den4ikerror/ai-crypto-indicator-bot/config"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/delivery"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/directory"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/payment"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/plans"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/quota"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/session"
	"github.com/den4ikerror/ai-crypto-indicator-bot/pkg/logger"
)

// Config carries the front-end settings: operator identity, moderation
// channel and the payment rail table.
type Config struct {
	AdminID      int64
	ModChannelID int64
	Rails        map[string]config.Rail
	USDToUAH     float64
	ResetHour    int
}

type Bot struct {
	api       *tgbotapi.BotAPI
	quota     *quota.Engine
	plans     *plans.Service
	payments  *payment.Workflow
	delivery  *delivery.Orchestrator
	sessions  *session.State
	directory *directory.Directory
	stripe    *payment.StripeClient
	cfg       Config
	logger    *logger.Logger
}

func New(token string, q *quota.Engine, p *plans.Service, w *payment.Workflow, s *session.State, d *directory.Directory, cfg Config, logger *logger.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	logger.Infow("authorized on Telegram", "username", api.Self.UserName)

	return &Bot{
		api:       api,
		quota:     q,
		plans:     p,
		payments:  w,
		sessions:  s,
		directory: d,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// WithDelivery wires the orchestrator in. Set after construction because the
// orchestrator sends through this bot.
func (b *Bot) WithDelivery(o *delivery.Orchestrator) *Bot {
	b.delivery = o
	return b
}

// WithStripe enables the hosted-checkout card rail.
func (b *Bot) WithStripe(s *payment.StripeClient) *Bot {
	b.stripe = s
	return b
}

// Username returns the bot's telegram username.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Start begins receiving updates from Telegram via polling.
func (b *Bot) Start(ctx context.Context) error {
	_, err := b.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true})
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Infow("started receiving Telegram updates")
	go b.handleUpdates(ctx, updates)
	return nil
}

func (b *Bot) handleUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		go func(update tgbotapi.Update) {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Errorw("recovered from panic while processing update", "error", r)
				}
			}()

			switch {
			case update.Message != nil && update.Message.IsCommand():
				b.handleCommand(ctx, update.Message)
			case update.Message != nil:
				b.handleMessage(ctx, update.Message)
			case update.CallbackQuery != nil:
				b.handleCallback(ctx, update.CallbackQuery)
			}
		}(update)
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	user := message.From
	b.directory.Track(user.ID, user.UserName, user.FirstName)

	switch message.Command() {
	case "start":
		b.logger.Infow("user started", "user_id", user.ID)
		msg := tgbotapi.NewMessage(chatID, mainText)
		msg.ReplyMarkup = b.mainKeyboard(user.ID)
		b.sendMsg(msg)
	case "help":
		b.send(chatID, helpText)
	default:
		b.send(chatID, "Невідома команда. Натисніть /start для початку роботи.")
	}
}

// Stop gracefully shuts down the bot.
func (b *Bot) Stop(ctx context.Context) error {
	b.api.StopReceivingUpdates()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(500 * time.Millisecond):
		return nil
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	return userID == b.cfg.AdminID
}

// SendMessage sends a plain text message. Part of the delivery transport.
func (b *Bot) SendMessage(chatID int64, text string) error {
	_, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// SendPhoto sends a PNG with a caption. Part of the delivery transport.
func (b *Bot) SendPhoto(chatID int64, photo []byte, caption string) error {
	msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "chart.png", Bytes: photo})
	msg.Caption = caption
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) send(chatID int64, text string) {
	if err := b.SendMessage(chatID, text); err != nil {
		b.logger.Errorw("failed to send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) sendMsg(msg tgbotapi.MessageConfig) {
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Errorw("failed to send message", "chat_id", msg.ChatID, "error", err)
	}
}

// edit replaces the message the callback came from.
func (b *Bot) edit(query *tgbotapi.CallbackQuery, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, text)
	msg.ReplyMarkup = kb
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Errorw("failed to edit message", "chat_id", query.Message.Chat.ID, "error", err)
	}
}

func (b *Bot) answer(query *tgbotapi.CallbackQuery, text string, alert bool) {
	callback := tgbotapi.NewCallback(query.ID, text)
	callback.ShowAlert = alert
	if _, err := b.api.Request(callback); err != nil {
		b.logger.Warnw("failed to answer callback", "error", err)
	}
}
