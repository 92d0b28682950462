package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/models"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/session"
)

const mainText = "👋 Привіт! Ласкаво просимо до AI Crypto Indicator!\n\n" +
	"🚀 Професійна платформа для торгівлі криптовалютами\n" +
	"🔍 Отримуйте точні сигнали торгівлі в реальному часі\n" +
	"📊 Аналіз ринку на основі передової AI-технології\n" +
	"💡 Точні рівні входу та виходу з індикаторами\n" +
	"⚡ Швидка реакція на зміни ринку\n\n" +
	"🎯 Обираємо найперспективніші торговельні можливості:\n" +
	"• Підтримка BTC, ETH, SOL та інших топ-монет\n" +
	"• Таймфрейми від 15 хвилин до 4 годин\n" +
	"• Сигнали з рівнем довіри > 70%\n\n" +
	"💰 Легка оплата (USDT, TON, monobank)\n" +
	"✅ Моментальний доступ після підтвердження оплати\n\n" +
	"📌 Якщо залишились питання, зверніться до менеджера: @dima58s\n\n" +
	"Оберіть дію нижче для початку:"

const helpText = "❓ Як користуватись ботом?\n════════════════════\n" +
	"1) Купіть план\n2) Оплатіть і надішліть скрін\n3) Отримуйте сигнали\n\n" +
	"📞 Питання: @dima58s"

func (b *Bot) mainKeyboard(userID int64) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		{tgbotapi.NewInlineKeyboardButtonData("🛒 Купити план", "menu:buy")},
		{tgbotapi.NewInlineKeyboardButtonData("📡 Отримати сигнал", "menu:signal")},
	}
	if b.isAdmin(userID) {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("⚡ Сигнал моментально", "menu:signal:admin"),
		})
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("📋 Статус", "menu:status"),
	})
	if b.isAdmin(userID) {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("👨‍💼 Адмін панель", "admin:menu"),
		})
	}
	rows = append(rows,
		[]tgbotapi.InlineKeyboardButton{tgbotapi.NewInlineKeyboardButtonURL("💬 Відгуки", "https://t.me/+MBzp-7dZLH5kZTAy")},
		[]tgbotapi.InlineKeyboardButton{tgbotapi.NewInlineKeyboardButtonData("❓ Допомога", "menu:help")},
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func backKeyboard(target string) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", target)),
	)
	return &kb
}

// planTitle maps plan keys to the names shown to users.
func planTitle(plan models.PlanKey) string {
	switch plan {
	case models.PlanStarter:
		return "Lite"
	case models.PlanPro:
		return "Pro"
	case models.PlanBot1Year:
		return "Bot-1 (рік)"
	case models.PlanBot2Year:
		return "Bot-2 (рік)"
	default:
		return "Немає"
	}
}

func termTitle(term models.Term) string {
	if term == models.TermYear {
		return "1 рік"
	}
	return "1 місяць"
}

// handleMessage interprets free-text and photo messages according to the
// user's armed prompt. Messages with no prompt are ignored apart from a
// nudge to the menu.
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	user := message.From
	chatID := message.Chat.ID
	b.directory.Track(user.ID, user.UserName, user.FirstName)

	prompt, ok := b.sessions.Prompt(chatID)
	if !ok {
		if message.Text != "" {
			b.send(chatID, "Натисніть /start, щоб відкрити меню.")
		}
		return
	}

	switch prompt.Kind {
	case session.PromptScreenshot:
		b.handleScreenshot(ctx, message, prompt)
	case session.PromptAdminFindUser:
		if b.isAdmin(chatID) {
			b.handleFindUser(ctx, message)
		}
	case session.PromptAdminGrantUser:
		// Free text only matters while the target is still unknown; once
		// selected, the rest of the flow runs on callbacks.
		if b.isAdmin(chatID) && prompt.GrantTarget == 0 {
			b.handleGrantUserInput(ctx, message)
		}
	}
}

// handleScreenshot forwards payment evidence to the moderation channel with
// one-tap adjudication buttons. A failed plausibility check is advisory: the
// user is asked to resend, but the evidence is stored either way.
func (b *Bot) handleScreenshot(ctx context.Context, message *tgbotapi.Message, prompt session.Prompt) {
	chatID := message.Chat.ID
	if len(message.Photo) == 0 {
		b.send(chatID, "❌ Надішліть фотографію скріншота.")
		return
	}
	photoID := message.Photo[len(message.Photo)-1].FileID

	p, err := b.payments.Get(ctx, prompt.PaymentCode)
	if err != nil {
		b.logger.Errorw("payment lookup failed", "code", prompt.PaymentCode, "error", err)
		b.send(chatID, "❌ Платіж не знайдено. Почніть оплату спочатку.")
		b.sessions.ClearPrompt(chatID)
		return
	}

	walletAddr := ""
	if rail, ok := b.cfg.Rails[string(p.Method)]; ok {
		walletAddr = rail.Address
	}
	caption := strings.TrimSpace(message.Caption + " " + message.Text)

	_, plausible, err := b.payments.SubmitEvidence(ctx, prompt.PaymentCode, photoID, caption, walletAddr)
	if err != nil {
		if conflict, ok := models.IsConflict(err); ok {
			b.send(chatID, fmt.Sprintf("⚠️ Платіж уже оброблено. Статус: %s", conflict.Status))
			b.sessions.ClearPrompt(chatID)
			return
		}
		b.logger.Errorw("evidence submission failed", "code", prompt.PaymentCode, "error", err)
		b.send(chatID, "❌ Не вдалося зберегти скріншот. Спробуйте ще раз.")
		return
	}

	b.notifyModerators(message.From, p, photoID, plausible)

	if plausible {
		b.send(chatID, "✅ Скріншот отримано. Модератор перевірить протягом 5-10 хв.")
	} else {
		b.send(chatID, "❌ Фото недійсне або не містить коду/адреси. Надішліть нове фото з підписом.")
	}
}

func (b *Bot) notifyModerators(from *tgbotapi.User, p *models.Payment, photoID string, plausible bool) {
	uname := from.FirstName
	if from.UserName != "" {
		uname = "@" + from.UserName
	}

	caption := fmt.Sprintf(
		"🔔 Нова заявка на платіж\n\n💳 Код: %s\n👤 User ID: %d (%s)\n📦 План: %s\n💰 Сума: $%.0f\n💱 Спосіб: %s\n\n",
		p.PaymentCode, p.ChatID, uname, p.Plan, p.Amount, strings.ToUpper(string(p.Method)))
	if plausible {
		caption += "✅ Авт. валідація: пройдена"
	} else {
		caption += "⚠️ Авт. валідація: НЕ пройдена"
	}

	msg := tgbotapi.NewPhoto(b.cfg.ModChannelID, tgbotapi.FileID(photoID))
	msg.Caption = caption
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Підтвердити", "admin:approve:"+p.PaymentCode)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Відхилити", "admin:reject:"+p.PaymentCode)),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Errorw("failed to notify moderation channel", "code", p.PaymentCode, "error", err)
	}
}

// handleFindUser resolves an ID or username typed by the operator into a
// profile with an action keyboard.
func (b *Bot) handleFindUser(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	queryText := strings.TrimSpace(message.Text)
	b.sessions.ClearPrompt(chatID)

	var target *models.UserProfile
	if id, err := strconv.ParseInt(queryText, 10, 64); err == nil {
		target, _ = b.directory.FindByID(id)
	} else {
		target, _ = b.directory.FindByUsername(queryText)
	}
	if target == nil {
		b.send(chatID, "❌ Користувача не знайдено")
		return
	}

	id := strconv.FormatInt(target.UserID, 10)
	username := target.Username
	if username == "" {
		username = "N/A"
	}
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("👤 Знайдено: %d — @%s\nОберіть дію:", target.UserID, username))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Дати тариф", "admin:grant_plan:"+id)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Забрати тариф", "admin:revoke_plan:"+id)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("➕ +1 сигнал/день", "admin:add_signal:"+id)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("➖ -1 сигнал/день", "admin:remove_signal:"+id)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📊 Дані", "admin:info:"+id)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "admin:menu")),
	)
	b.sendMsg(msg)
}

// handleGrantUserInput reads a numeric user ID for the direct-grant flow.
func (b *Bot) handleGrantUserInput(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	targetID, err := strconv.ParseInt(strings.TrimSpace(message.Text), 10, 64)
	if err != nil {
		b.send(chatID, "❌ Введіть коректний ID (число)")
		return
	}

	if _, err := b.quota.Entitlement(ctx, targetID); errors.Is(err, models.ErrNotFound) {
		b.send(chatID, fmt.Sprintf("❌ Користувач %d не знайдений в БД", targetID))
		return
	} else if err != nil {
		b.logger.Errorw("entitlement lookup failed", "target", targetID, "error", err)
		b.send(chatID, "❌ Помилка. Спробуйте пізніше.")
		return
	}

	b.sessions.ClearPrompt(chatID)
	b.sendGrantPlanKeyboard(chatID, targetID)
}

func (b *Bot) sendGrantPlanKeyboard(chatID, targetID int64) {
	b.sessions.SetPrompt(chatID, session.Prompt{Kind: session.PromptAdminGrantUser, GrantTarget: targetID})

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("📦 Оберіть тариф для користувача %d:", targetID))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔵 Lite (2 сигнали/день)", "admin_grant_plan_lite")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🟢 Pro (5 сигналів/день)", "admin_grant_plan_pro")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "admin:menu")),
	)
	b.sendMsg(msg)
}
