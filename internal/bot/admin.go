package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/directory"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/models"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/session"
)

// handleAdminCallback routes the operator panel. The caller has already
// verified the admin identity.
func (b *Bot) handleAdminCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	data := query.Data
	chatID := query.From.ID

	switch {
	case data == "admin:menu":
		b.answer(query, "", false)
		b.showAdminMenu(query)

	case data == "admin:active_users":
		b.answer(query, "", false)
		b.showActiveUsers(query)

	case data == "admin:find_user":
		b.answer(query, "", false)
		b.sessions.SetPrompt(chatID, session.Prompt{Kind: session.PromptAdminFindUser})
		b.edit(query, "🔎 Введіть ID або username користувача для пошуку:", nil)

	case data == "admin:check_payments":
		b.answer(query, "", false)
		b.showPendingPayments(ctx, query)

	case strings.HasPrefix(data, "admin:approve:"):
		b.answer(query, "", false)
		b.approvePayment(ctx, query, strings.TrimPrefix(data, "admin:approve:"))

	case strings.HasPrefix(data, "admin:reject:"):
		b.answer(query, "", false)
		b.rejectPayment(ctx, query, strings.TrimPrefix(data, "admin:reject:"))

	case data == "admin:self_plan":
		b.answer(query, "", false)
		b.showSelfPlanMenu(query)

	case strings.HasPrefix(data, "self:"):
		b.answer(query, "", false)
		b.grantSelf(ctx, query, models.PlanKey(strings.TrimPrefix(data, "self:")))

	case strings.HasPrefix(data, "admin:grant_plan:"):
		b.answer(query, "", false)
		b.startGrant(query, strings.TrimPrefix(data, "admin:grant_plan:"))

	case strings.HasPrefix(data, "admin_grant_plan_"):
		b.answer(query, "", false)
		b.selectGrantPlan(query, strings.TrimPrefix(data, "admin_grant_plan_"))

	case strings.HasPrefix(data, "admin_grant_term_"):
		b.answer(query, "", false)
		b.finishGrant(ctx, query, models.Term(strings.TrimPrefix(data, "admin_grant_term_")))

	case strings.HasPrefix(data, "admin:revoke_plan:"):
		b.answer(query, "", false)
		b.revokePlan(ctx, query, strings.TrimPrefix(data, "admin:revoke_plan:"))

	case strings.HasPrefix(data, "admin:add_signal:"):
		b.answer(query, "", false)
		b.adjustDaily(ctx, query, strings.TrimPrefix(data, "admin:add_signal:"), +1)

	case strings.HasPrefix(data, "admin:remove_signal:"):
		b.answer(query, "", false)
		b.adjustDaily(ctx, query, strings.TrimPrefix(data, "admin:remove_signal:"), -1)

	case strings.HasPrefix(data, "admin:info:"):
		b.answer(query, "", false)
		b.showUserInfo(ctx, query, strings.TrimPrefix(data, "admin:info:"))

	case data == "menu:signal:admin":
		b.instantSignal(ctx, query)

	default:
		b.answer(query, "", false)
	}
}

func (b *Bot) showAdminMenu(query *tgbotapi.CallbackQuery) {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("👥 Активні користувачі", "admin:active_users")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔎 Знайти користувача", "admin:find_user")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💳 Перевірити платежі", "admin:check_payments")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🎁 Дати собі тариф", "admin:self_plan")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "menu:main")),
	)
	b.edit(query, "👨‍💼 Адмін Панель\n══════════════════════\nОберіть дію:", &kb)
}

func (b *Bot) showActiveUsers(query *tgbotapi.CallbackQuery) {
	profiles := b.directory.Recent(20)
	if len(profiles) == 0 {
		b.edit(query, "ℹ️ Немає активних користувачів", backKeyboard("admin:menu"))
		return
	}

	var sb strings.Builder
	sb.WriteString("👥 Останні активні користувачі (ID — username):\n\n")
	for _, p := range profiles {
		sb.WriteString(directory.Summary(p))
		sb.WriteString("\n")
	}
	b.edit(query, sb.String(), backKeyboard("admin:menu"))
}

func (b *Bot) showPendingPayments(ctx context.Context, query *tgbotapi.CallbackQuery) {
	pending, err := b.payments.Pending(ctx)
	if err != nil {
		b.logger.Errorw("pending payments lookup failed", "error", err)
		b.edit(query, "❌ Помилка. Спробуйте пізніше.", backKeyboard("admin:menu"))
		return
	}
	if len(pending) == 0 {
		b.edit(query, "✅ Немає очікуючих платежів", backKeyboard("admin:menu"))
		return
	}

	var sb strings.Builder
	sb.WriteString("💳 Платежі на перевірці:\n\n")
	limit := len(pending)
	if limit > 5 {
		limit = 5
	}
	for _, p := range pending[:limit] {
		fmt.Fprintf(&sb, "💳 %s\n   👤 User: %d\n   📦 План: %s | %s\n   💰 $%.0f\n",
			p.PaymentCode, p.ChatID, p.Plan, strings.ToUpper(string(p.Method)), p.Amount)
	}

	first := pending[0].PaymentCode
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Затвердити "+first[:6], "admin:approve:"+first)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Відхилити "+first[:6], "admin:reject:"+first)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "admin:menu")),
	)
	b.edit(query, sb.String(), &kb)
}

func (b *Bot) approvePayment(ctx context.Context, query *tgbotapi.CallbackQuery, code string) {
	p, err := b.payments.Approve(ctx, code)
	if err != nil {
		switch conflict, ok := models.IsConflict(err); {
		case ok:
			b.edit(query, fmt.Sprintf("⚠️ Платіж уже оброблено. Статус: %s", conflict.Status), backKeyboard("admin:menu"))
		case errors.Is(err, models.ErrNotFound):
			b.edit(query, "❌ Платіж не знайдено", backKeyboard("admin:menu"))
		default:
			b.logger.Errorw("approve failed", "code", code, "error", err)
			b.edit(query, fmt.Sprintf("❌ Помилка: %v", err), backKeyboard("admin:menu"))
		}
		return
	}

	b.refreshDirectory(ctx, p.ChatID)
	b.send(p.ChatID, fmt.Sprintf("✅ Оплату підтверджено! План: %s", p.Plan))
	b.edit(query, "✅ Платіж затверджено. Користувачу надіслано повідомлення.", backKeyboard("admin:menu"))
}

func (b *Bot) rejectPayment(ctx context.Context, query *tgbotapi.CallbackQuery, code string) {
	p, err := b.payments.Reject(ctx, code)
	if err != nil {
		switch conflict, ok := models.IsConflict(err); {
		case ok:
			b.edit(query, fmt.Sprintf("⚠️ Платіж уже оброблено. Статус: %s", conflict.Status), backKeyboard("admin:menu"))
		case errors.Is(err, models.ErrNotFound):
			b.edit(query, "❌ Платіж не знайдено", backKeyboard("admin:menu"))
		default:
			b.logger.Errorw("reject failed", "code", code, "error", err)
			b.edit(query, fmt.Sprintf("❌ Помилка: %v", err), backKeyboard("admin:menu"))
		}
		return
	}

	b.send(p.ChatID, fmt.Sprintf("❌ Ваш платіж відхилено.\n\nКод: %s", code))
	b.edit(query, "✅ Платіж відхилено. Користувачу надіслано повідомлення.", backKeyboard("admin:menu"))
}

func (b *Bot) showSelfPlanMenu(query *tgbotapi.CallbackQuery) {
	litePrice, _ := b.plans.Price(models.PlanStarter, models.TermMonth)
	proPrice, _ := b.plans.Price(models.PlanPro, models.TermMonth)

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Lite — $%.0f", litePrice), "self:starter")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Pro — $%.0f", proPrice), "self:pro")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "admin:menu")),
	)
	b.edit(query, "🎁 Оберіть тариф для себе:", &kb)
}

func (b *Bot) grantSelf(ctx context.Context, query *tgbotapi.CallbackQuery, plan models.PlanKey) {
	chatID := query.From.ID
	if _, err := b.plans.ApplyPlan(ctx, chatID, plan, models.TermMonth); err != nil {
		b.logger.Errorw("self grant failed", "plan", plan, "error", err)
		b.edit(query, fmt.Sprintf("❌ Помилка: %v", err), backKeyboard("admin:menu"))
		return
	}
	b.refreshDirectory(ctx, chatID)
	b.edit(query, fmt.Sprintf("✅ Вам виданий тариф: %s", plan), backKeyboard("admin:menu"))
}

func (b *Bot) startGrant(query *tgbotapi.CallbackQuery, rawID string) {
	chatID := query.From.ID
	targetID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		b.edit(query, "❌ Помилка. Почніть заново.", backKeyboard("admin:menu"))
		return
	}

	b.sessions.SetPrompt(chatID, session.Prompt{Kind: session.PromptAdminGrantUser, GrantTarget: targetID})
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔵 Lite (2 сигнали/день)", "admin_grant_plan_lite")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🟢 Pro (5 сигналів/день)", "admin_grant_plan_pro")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "admin:menu")),
	)
	b.edit(query, fmt.Sprintf("📦 Оберіть тариф для користувача %d:", targetID), &kb)
}

func (b *Bot) selectGrantPlan(query *tgbotapi.CallbackQuery, planType string) {
	chatID := query.From.ID
	prompt, ok := b.sessions.Prompt(chatID)
	if !ok || prompt.GrantTarget == 0 {
		b.edit(query, "❌ Помилка. Почніть заново.", backKeyboard("admin:menu"))
		return
	}

	plan := models.PlanStarter
	if planType == "pro" {
		plan = models.PlanPro
	}
	prompt.GrantPlan = string(plan)
	b.sessions.SetPrompt(chatID, prompt)

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📅 1 місяць", "admin_grant_term_month")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📅 1 рік", "admin_grant_term_year")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "admin:menu")),
	)
	b.edit(query, "⏳ Оберіть період підписки:", &kb)
}

func (b *Bot) finishGrant(ctx context.Context, query *tgbotapi.CallbackQuery, term models.Term) {
	chatID := query.From.ID
	prompt, ok := b.sessions.Prompt(chatID)
	if !ok || prompt.GrantTarget == 0 || prompt.GrantPlan == "" {
		b.edit(query, "❌ Помилка. Почніть заново.", backKeyboard("admin:menu"))
		return
	}
	b.sessions.ClearPrompt(chatID)

	plan := models.PlanKey(prompt.GrantPlan)
	spec, err := b.plans.ApplyPlan(ctx, prompt.GrantTarget, plan, term)
	if err != nil {
		b.logger.Errorw("grant failed", "target", prompt.GrantTarget, "plan", plan, "error", err)
		b.edit(query, fmt.Sprintf("❌ Помилка при видачі тарифу: %v", err), backKeyboard("admin:menu"))
		return
	}

	b.refreshDirectory(ctx, prompt.GrantTarget)
	b.edit(query, fmt.Sprintf(
		"✅ Тариф видано!\n\n👤 Користувач: %d\n📦 План: %s\n⏳ Період: %s\n🎯 Сигналів/день: %d",
		prompt.GrantTarget, plan, termTitle(term), spec.SignalsDaily), backKeyboard("admin:menu"))
}

func (b *Bot) revokePlan(ctx context.Context, query *tgbotapi.CallbackQuery, rawID string) {
	targetID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		b.edit(query, "❌ Помилка при знятті тарифу", backKeyboard("admin:menu"))
		return
	}

	if err := b.quota.Revoke(ctx, targetID); err != nil {
		b.logger.Errorw("revoke failed", "target", targetID, "error", err)
		b.edit(query, "❌ Помилка при знятті тарифу", backKeyboard("admin:menu"))
		return
	}
	b.directory.Refresh(targetID, nil)
	b.edit(query, fmt.Sprintf("✅ Тариф забрано у %d", targetID), backKeyboard("admin:menu"))
}

// adjustDaily bumps the user's daily allotment up or down one signal,
// keeping the plan and expiry. The regrant zeroes today's usage.
func (b *Bot) adjustDaily(ctx context.Context, query *tgbotapi.CallbackQuery, rawID string, delta int) {
	targetID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		b.edit(query, "❌ Помилка. Почніть заново.", backKeyboard("admin:menu"))
		return
	}

	ent, err := b.quota.Entitlement(ctx, targetID)
	if err != nil {
		b.edit(query, "❌ Користувач не знайдений в БД", backKeyboard("admin:menu"))
		return
	}

	daily := ent.SignalsDaily + delta
	if daily < 0 {
		daily = 0
	}
	if err := b.quota.Grant(ctx, targetID, ent.Plan, ent.PlanExpires, daily); err != nil {
		b.logger.Errorw("daily adjust failed", "target", targetID, "error", err)
		b.edit(query, "❌ Помилка. Спробуйте пізніше.", backKeyboard("admin:menu"))
		return
	}

	b.refreshDirectory(ctx, targetID)
	if delta > 0 {
		b.edit(query, fmt.Sprintf("✅ Додано 1 сигнал/день. Наразі: %d", daily), backKeyboard("admin:menu"))
	} else {
		b.edit(query, fmt.Sprintf("✅ Віднято 1 сигнал/день. Наразі: %d", daily), backKeyboard("admin:menu"))
	}
}

func (b *Bot) showUserInfo(ctx context.Context, query *tgbotapi.CallbackQuery, rawID string) {
	targetID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		b.edit(query, "❌ Помилка. Почніть заново.", backKeyboard("admin:menu"))
		return
	}

	ent, err := b.quota.Entitlement(ctx, targetID)
	if err != nil {
		b.edit(query, "❌ Користувач не знайдений в БД", backKeyboard("admin:menu"))
		return
	}

	expires := "N/A"
	if ent.PlanExpires > 0 {
		expires = time.Unix(ent.PlanExpires, 0).UTC().Format("2006-01-02")
	}
	b.edit(query, fmt.Sprintf(
		"👤 User ID: %d\n📦 План: %s\n🎯 Сигналів/день: %d\n📊 Витрачено сьогодні: %d\n📅 План закінчується: %s",
		targetID, planTitle(ent.Plan), ent.SignalsDaily, ent.SignalsUsedToday, expires), backKeyboard("admin:menu"))
}

// instantSignal generates and sends a signal to the operator with no delay
// and no quota consumption.
func (b *Bot) instantSignal(ctx context.Context, query *tgbotapi.CallbackQuery) {
	chatID := query.From.ID

	taskCtx, cancel := context.WithCancel(ctx)
	if !b.sessions.BeginSearch(chatID, cancel) {
		b.answer(query, "⏳ Сигнал уже в обробці!", true)
		cancel()
		return
	}
	b.answer(query, "", false)
	b.edit(query, "⚡ Генерування сигналу...\n\n🚀 Моментальна генерація для адміністратора", backKeyboard("menu:main"))

	plan := models.PlanNone
	if ent, err := b.quota.Entitlement(ctx, chatID); err == nil {
		plan = ent.Plan
	}

	go func() {
		defer cancel()
		defer b.sessions.EndSearch(chatID)
		if err := b.delivery.DeliverInstant(taskCtx, chatID, plan); err != nil {
			b.logger.Errorw("instant signal failed", "chat_id", chatID, "error", err)
			b.send(chatID, "❌ Помилка генерації сигналу.")
		}
	}()
}

// refreshDirectory patches the operator mirror from a fresh store read.
func (b *Bot) refreshDirectory(ctx context.Context, userID int64) {
	ent, err := b.quota.Entitlement(ctx, userID)
	if err != nil {
		return
	}
	b.directory.Refresh(userID, ent)
}
