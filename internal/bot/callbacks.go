package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/models"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/plans"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/scheduler"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/session"
)

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	data := query.Data
	user := query.From
	chatID := user.ID
	b.directory.Track(user.ID, user.UserName, user.FirstName)
	b.logger.Infow("callback", "chat_id", chatID, "data", data)

	if strings.HasPrefix(data, "admin") || strings.HasPrefix(data, "self:") || data == "menu:signal:admin" {
		if !b.isAdmin(chatID) {
			b.answer(query, "", false)
			return
		}
		b.handleAdminCallback(ctx, query)
		return
	}

	switch {
	case data == "menu:main":
		b.answer(query, "", false)
		kb := b.mainKeyboard(chatID)
		b.edit(query, mainText, &kb)

	case data == "menu:help":
		b.answer(query, "", false)
		b.edit(query, helpText, backKeyboard("menu:main"))

	case data == "menu:buy":
		b.answer(query, "", false)
		b.showBuyMenu(query)

	case strings.HasPrefix(data, "buy:"):
		b.answer(query, "", false)
		b.showTermMenu(query, models.PlanKey(strings.TrimPrefix(data, "buy:")))

	case strings.HasPrefix(data, "term:"):
		b.answer(query, "", false)
		b.showRailMenu(query, models.Term(strings.TrimPrefix(data, "term:")))

	case strings.HasPrefix(data, "crypto:"):
		b.answer(query, "", false)
		b.openPayment(ctx, query, models.PaymentMethod(strings.TrimPrefix(data, "crypto:")))

	case strings.HasPrefix(data, "copy:"):
		b.answer(query, "✅ Скопійовано!", false)

	case strings.HasPrefix(data, "payment:confirm:"):
		b.confirmPayment(ctx, query, strings.TrimPrefix(data, "payment:confirm:"))

	case data == "menu:signal":
		b.answer(query, "", false)
		err := b.delivery.Dispatch(ctx, chatID)
		if err != nil && !errors.Is(err, models.ErrQuotaExhausted) {
			b.logger.Errorw("signal dispatch failed", "chat_id", chatID, "error", err)
			b.send(chatID, "❌ Сталася помилка. Спробуйте пізніше.")
		}

	case data == "menu:status":
		b.answer(query, "", false)
		b.showStatus(ctx, query)

	default:
		b.answer(query, "", false)
	}
}

func (b *Bot) showBuyMenu(query *tgbotapi.CallbackQuery) {
	litePrice, _ := b.plans.Price(models.PlanStarter, models.TermMonth)
	proPrice, _ := b.plans.Price(models.PlanPro, models.TermMonth)

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("🔵 Lite — $%.0f (2 сигн./день)", litePrice), "buy:starter")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("🟢 Pro — $%.0f (5 сигн./день)", proPrice), "buy:pro")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "menu:main")),
	)
	b.edit(query,
		"🛒 Оберіть план:\n══════════════════════\n\n"+
			"Lite — бюджетний, 2 сигнали/день, середня - висока вірогідність.\n"+
			"Pro — преміум, 5 сигналів/день, найвища вірогідність.\n\n"+
			"Порівняння: Lite дешевше — базовий доступ; Pro — більше сигналів та найвища вірогідність успіху.",
		&kb)
}

func (b *Bot) showTermMenu(query *tgbotapi.CallbackQuery, plan models.PlanKey) {
	chatID := query.From.ID
	if _, err := plans.Lookup(plan); err != nil {
		kb := b.mainKeyboard(chatID)
		b.edit(query, "❌ Помилка. Почніть спочатку.", &kb)
		return
	}

	b.sessions.SetPurchase(chatID, session.Purchase{Plan: string(plan)})

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("1 місяць", "term:month")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("1 рік", "term:year")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "menu:buy")),
	)
	b.edit(query, fmt.Sprintf("📦 Ви обрали: %s\n⏳ Оберіть термін:", planTitle(plan)), &kb)
}

func (b *Bot) showRailMenu(query *tgbotapi.CallbackQuery, term models.Term) {
	chatID := query.From.ID
	purchase, ok := b.sessions.Purchase(chatID)
	if !ok || purchase.Plan == "" {
		kb := b.mainKeyboard(chatID)
		b.edit(query, "❌ Помилка. Почніть спочатку.", &kb)
		return
	}

	plan := models.PlanKey(purchase.Plan)
	amount, err := b.plans.Price(plan, term)
	if err != nil {
		kb := b.mainKeyboard(chatID)
		b.edit(query, "❌ Помилка. Почніть спочатку.", &kb)
		return
	}
	purchase.Term = string(term)
	purchase.Amount = amount
	b.sessions.SetPurchase(chatID, purchase)

	amountUAH := amount * b.cfg.USDToUAH

	rows := [][]tgbotapi.InlineKeyboardButton{
		{tgbotapi.NewInlineKeyboardButtonData(b.cfg.Rails["usdt"].Emoji+" USDT", "crypto:usdt")},
		{tgbotapi.NewInlineKeyboardButtonData(b.cfg.Rails["ton"].Emoji+" TON", "crypto:ton")},
		{tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s Monobank банка %.2f UAH", b.cfg.Rails["monobank"].Emoji, amountUAH), "crypto:monobank")},
		{tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s Monobank картка %.2f UAH", b.cfg.Rails["monobank_card"].Emoji, amountUAH), "crypto:monobank_card")},
	}
	if b.stripe != nil {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("💳 Картка (Visa/Mastercard)", "crypto:card"),
		})
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "menu:buy")})
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)

	b.edit(query, fmt.Sprintf(
		"💳 План: %s\n⏳ Термін: %s\n💰 Сума: %.0f USD (%.2f UAH)\n\n💱 Оберіть спосіб оплати:",
		planTitle(plan), termTitle(term), amount, amountUAH), &kb)
}

// openPayment creates the payment record for the chosen rail and shows the
// destination details with an "I have paid" button.
func (b *Bot) openPayment(ctx context.Context, query *tgbotapi.CallbackQuery, method models.PaymentMethod) {
	chatID := query.From.ID
	purchase, ok := b.sessions.Purchase(chatID)
	if !ok || purchase.Plan == "" {
		kb := b.mainKeyboard(chatID)
		b.edit(query, "❌ Помилка. Почніть спочатку.", &kb)
		return
	}
	plan := models.PlanKey(purchase.Plan)

	p, err := b.payments.Create(ctx, chatID, plan, purchase.Amount, method)
	if err != nil {
		b.logger.Errorw("payment creation failed", "chat_id", chatID, "error", err)
		kb := b.mainKeyboard(chatID)
		b.edit(query, "❌ Помилка створення платежу.", &kb)
		return
	}

	purchase.Method = string(method)
	b.sessions.SetPurchase(chatID, purchase)

	amountUAH := purchase.Amount * b.cfg.USDToUAH
	confirmBtn := tgbotapi.NewInlineKeyboardButtonData("✅ Оплачено", "payment:confirm:"+p.PaymentCode)
	backBtn := tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "menu:buy")

	switch method {
	case models.MethodMonobank:
		rail := b.cfg.Rails["monobank"]
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("🏦 Оплатити через Monobank банку", rail.Address)),
			tgbotapi.NewInlineKeyboardRow(confirmBtn),
			tgbotapi.NewInlineKeyboardRow(backBtn),
		)
		b.edit(query, fmt.Sprintf(
			"💳 Оплата Monobank (банка)\n══════════════════════\nСума: %.2f ₴ (UAH)\nПлан: %s\n\n📌 Посилання відкриється в Monobank\n✅ Після оплати натисніть «Оплачено»",
			amountUAH, plan), &kb)

	case models.MethodMonobankCard:
		rail := b.cfg.Rails["monobank_card"]
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(confirmBtn),
			tgbotapi.NewInlineKeyboardRow(backBtn),
		)
		b.edit(query, fmt.Sprintf(
			"💳 Оплата напряму на картку Monobank\n══════════════════════\nСума: %.2f ₴ (UAH)\nПлан: %s\n\n📌 Реквізити картки: %s\n✅ Після оплати натисніть «Оплачено»",
			amountUAH, plan, rail.Address), &kb)

	case models.MethodCard:
		b.openStripeCheckout(query, p, plan, purchase.Amount, confirmBtn, backBtn)

	default:
		rail, found := b.cfg.Rails[string(method)]
		if !found {
			kb := b.mainKeyboard(chatID)
			b.edit(query, "❌ Помилка. Почніть спочатку.", &kb)
			return
		}
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 Копіювати адресу", "copy:addr")),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 Копіювати код", "copy:code:"+p.PaymentCode)),
			tgbotapi.NewInlineKeyboardRow(confirmBtn),
			tgbotapi.NewInlineKeyboardRow(backBtn),
		)
		b.edit(query, fmt.Sprintf(
			"💳 Деталі платежу\n══════════════════════\nМонета: %s %s\nМережа: %s\nСума: %.0f USD\n\n📪 Адреса кошелька:\n%s\n\n🏷️ Код (Memo/Tag):\n%s\n\n⚠️ Обов'язково вкажіть код в Memo/Tag!\n✅ Після оплати натисніть «Оплачено»",
			rail.Emoji, rail.Name, rail.Network, purchase.Amount, rail.Address, p.PaymentCode), &kb)
	}
}

func (b *Bot) openStripeCheckout(query *tgbotapi.CallbackQuery, p *models.Payment, plan models.PlanKey, amount float64, confirmBtn, backBtn tgbotapi.InlineKeyboardButton) {
	botURL := "https://t.me/" + b.Username()
	checkoutURL, err := b.stripe.CreateCheckoutSession(p.ChatID, p.PaymentCode, planTitle(plan), amount, botURL, botURL)
	if err != nil {
		b.logger.Errorw("stripe checkout failed", "code", p.PaymentCode, "error", err)
		kb := b.mainKeyboard(p.ChatID)
		b.edit(query, "❌ Помилка створення платіжної сесії. Оберіть інший спосіб оплати.", &kb)
		return
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("💳 Перейти до оплати", checkoutURL)),
		tgbotapi.NewInlineKeyboardRow(confirmBtn),
		tgbotapi.NewInlineKeyboardRow(backBtn),
	)
	b.edit(query, fmt.Sprintf(
		"💳 Оплата карткою\n══════════════════════\nСума: %.0f USD\nПлан: %s\n\n📌 Оплата через захищену сторінку\n✅ Після оплати натисніть «Оплачено»",
		amount, plan), &kb)
}

// confirmPayment is the "I have paid" step: the record moves to
// pending_screenshot and the user is prompted for evidence.
func (b *Bot) confirmPayment(ctx context.Context, query *tgbotapi.CallbackQuery, code string) {
	chatID := query.From.ID
	b.answer(query, "", false)

	_, err := b.payments.ConfirmIntent(ctx, code)
	if err != nil {
		switch conflict, ok := models.IsConflict(err); {
		case ok:
			b.edit(query, fmt.Sprintf("⚠️ Статус: %s", conflict.Status), nil)
		case errors.Is(err, models.ErrNotFound):
			b.edit(query, "❌ Платіж не знайдено.", nil)
		default:
			b.logger.Errorw("confirm intent failed", "code", code, "error", err)
			b.edit(query, "❌ Сталася помилка. Спробуйте пізніше.", nil)
		}
		return
	}

	b.sessions.SetPrompt(chatID, session.Prompt{Kind: session.PromptScreenshot, PaymentCode: code})
	b.edit(query, "📸 Надішліть скріншот транзакції (фото: сума, адреса, статус)", nil)
}

func (b *Bot) showStatus(ctx context.Context, query *tgbotapi.CallbackQuery) {
	chatID := query.From.ID

	ent, err := b.quota.Entitlement(ctx, chatID)
	if err != nil || ent.Plan == models.PlanNone {
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🛒 Купити план", "menu:buy")),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "menu:main")),
		)
		b.edit(query, "📋 Ваш Статус\n❌ Активний тариф: Немає", &kb)
		return
	}

	now := time.Now().UTC()
	nextReset := scheduler.NextReset(now, b.cfg.ResetHour).Format("2006-01-02 15:04 UTC")

	expiresStr := "Невідомо"
	daysLeft := 0
	if ent.PlanExpires > 0 {
		expires := time.Unix(ent.PlanExpires, 0).UTC()
		expiresStr = expires.Format("2006-01-02 15:04 UTC")
		if d := int(expires.Sub(now).Hours() / 24); d > 0 {
			daysLeft = d
		}
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🛒 Поновити план", "menu:buy")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "menu:main")),
	)
	b.edit(query, fmt.Sprintf(
		"📊 Ваш Статус\n════════════════════\n📦 План: %s\n🎯 Сигналів сьогодні: %d / %d\n⏰ Наступне відновлення: %s\n\n📅 Підписка закінчується: %s (днів: %d)",
		ent.Plan, ent.SignalsAvailable(), ent.SignalsDaily, nextReset, expiresStr, daysLeft), &kb)
}
