// cmd/bot/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/den4ikerror/ai-crypto-indicator-bot/config"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/ai"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/bot"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/db"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/delivery"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/directory"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/market"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/payment"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/plans"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/quota"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/scheduler"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/server"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/session"
	signalgen "github.com/den4ikerror/ai-crypto-indicator-bot/internal/signal"
	"github.com/den4ikerror/ai-crypto-indicator-bot/pkg/logger"
)

func main() {
	l := logger.New()
	l.Infow("starting AI Crypto Indicator bot")

	cfg, err := config.Load()
	if err != nil {
		l.Fatalw("failed to load config", "error", err)
	}

	if err := cfg.Validate(); err != nil {
		l.Fatalw("invalid configuration", "error", err)
	}

	var database *db.PostgresDB
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		database, err = db.NewPostgresDB(cfg.DB)
		if err == nil {
			break
		}
		l.Errorw("failed to connect to database, retrying", "attempt", i+1, "error", err)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	if database == nil {
		l.Fatalw("failed to connect to database after multiple attempts", "error", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := database.InitSchema(ctx); err != nil {
		l.Fatalw("failed to initialize schema", "error", err)
	}

	quotaEngine := quota.New(database, l)
	planService := plans.NewService(quotaEngine, plans.Prices{
		Starter:  cfg.Prices.Starter,
		Pro:      cfg.Prices.Pro,
		Bot1Year: cfg.Prices.Bot1Year,
		Bot2Year: cfg.Prices.Bot2Year,
	}, l)
	paymentWorkflow := payment.NewWorkflow(database, planService, l)
	sessions := session.New(30 * time.Minute)
	userDir := directory.New(cfg.Signal.DirectoryPath, l)

	marketClient := market.NewClient(cfg.Kraken.APIKey, cfg.Kraken.APISecret, l)
	generator := signalgen.NewGenerator(marketClient, l)
	aiClient := ai.NewClient(cfg.AI.APIKey).WithModel(cfg.AI.Model)

	telegramBot, err := bot.New(cfg.Telegram.Token, quotaEngine, planService, paymentWorkflow, sessions, userDir, bot.Config{
		AdminID:      cfg.Telegram.AdminID,
		ModChannelID: cfg.Telegram.ModChannelID,
		Rails:        cfg.Rails,
		USDToUAH:     cfg.USDToUAH,
		ResetHour:    cfg.Signal.ResetHourUTC,
	}, l)
	if err != nil {
		l.Fatalw("failed to create Telegram bot", "error", err)
	}
	if cfg.Stripe.SecretKey != "" {
		telegramBot.WithStripe(payment.NewStripeClient(struct {
			SecretKey string
			PublicKey string
		}{cfg.Stripe.SecretKey, cfg.Stripe.PublicKey}))
	}

	orchestrator := delivery.New(quotaEngine, generator, telegramBot, sessions, delivery.Config{
		Symbols:   cfg.Signal.Symbols,
		MinDelay:  cfg.Signal.MinDelay,
		MaxDelay:  cfg.Signal.MaxDelay,
		ChartDir:  cfg.Signal.ChartDir,
		ResetHour: cfg.Signal.ResetHourUTC,
	}, l).WithDirectory(userDir)
	if cfg.AI.Annotate {
		orchestrator.WithAnnotator(aiClient)
	}
	telegramBot.WithDelivery(orchestrator)

	sched := scheduler.New(quotaEngine, sessions, cfg.Signal.ChartDir, cfg.Signal.ResetHourUTC, l)
	sched.WithProbes(marketClient, aiClient)
	go sched.RunDailyReset(ctx)
	go sched.RunMaintenance(ctx)

	if err := telegramBot.Start(ctx); err != nil {
		l.Fatalw("failed to start Telegram bot", "error", err)
	}
	l.Infow("telegram bot started")

	httpServer := server.NewServer(cfg.Server.Port, l)
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatalw("failed to start HTTP server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Infow("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		l.Errorw("error during HTTP server shutdown", "error", err)
	}
	if err := telegramBot.Stop(shutdownCtx); err != nil {
		l.Errorw("error during bot shutdown", "error", err)
	}

	l.Infow("stopped")
}
