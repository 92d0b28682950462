// Package payment implements the manual payment workflow:
// pending -> pending_screenshot -> approved | rejected.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/models"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/plans"
	"github.com/den4ikerror/ai-crypto-indicator-bot/pkg/logger"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const codeLength = 8
const createAttempts = 5

// Store is the slice of the persistent store the workflow needs. Satisfied
// by *db.PostgresDB.
type Store interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, code string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, code string, status models.PaymentStatus) error
	AttachScreenshot(ctx context.Context, code, screenshotRef, location string) error
	PendingPayments(ctx context.Context) ([]*models.Payment, error)
}

// Granter applies the purchased plan once the operator approves.
type Granter interface {
	ApplyPlan(ctx context.Context, chatID int64, plan models.PlanKey, term models.Term) (plans.Spec, error)
}

type Workflow struct {
	store   Store
	granter Granter
	logger  *logger.Logger
}

func NewWorkflow(store Store, granter Granter, logger *logger.Logger) *Workflow {
	return &Workflow{
		store:   store,
		granter: granter,
		logger:  logger,
	}
}

// generateCode uses the locked top-level rand source; Create runs
// concurrently, one goroutine per Telegram update.
func generateCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// Create opens a new payment in pending with a fresh unique code. The code
// is regenerated when the store reports a collision.
func (w *Workflow) Create(ctx context.Context, chatID int64, plan models.PlanKey, amount float64, method models.PaymentMethod) (*models.Payment, error) {
	for attempt := 0; attempt < createAttempts; attempt++ {
		p := &models.Payment{
			ChatID:      chatID,
			Plan:        plan,
			Amount:      amount,
			Method:      method,
			PaymentCode: generateCode(),
			Status:      models.PaymentPending,
			CreatedAt:   time.Now().Unix(),
		}

		err := w.store.CreatePayment(ctx, p)
		if errors.Is(err, models.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return nil, err
		}

		w.logger.Infow("payment created", "code", p.PaymentCode, "chat_id", chatID, "plan", plan, "amount", amount, "method", method)
		return p, nil
	}
	return nil, fmt.Errorf("failed to allocate a unique payment code after %d attempts", createAttempts)
}

// ConfirmIntent moves pending -> pending_screenshot when the user says
// "I have paid". Any other current status is a conflict.
func (w *Workflow) ConfirmIntent(ctx context.Context, code string) (*models.Payment, error) {
	p, err := w.store.GetPayment(ctx, code)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentPending {
		return nil, &models.ConflictError{Status: p.Status}
	}

	if err := w.store.UpdatePaymentStatus(ctx, code, models.PaymentPendingScreenshot); err != nil {
		return nil, err
	}
	p.Status = models.PaymentPendingScreenshot
	return p, nil
}

// SubmitEvidence stores the screenshot reference and reports whether the
// caption plausibly references this payment. The check is advisory only; a
// failed check never blocks the submission.
func (w *Workflow) SubmitEvidence(ctx context.Context, code, screenshotRef, caption, walletAddr string) (*models.Payment, bool, error) {
	p, err := w.store.GetPayment(ctx, code)
	if err != nil {
		return nil, false, err
	}
	if p.Status.Terminal() {
		return nil, false, &models.ConflictError{Status: p.Status}
	}

	if err := w.store.AttachScreenshot(ctx, code, screenshotRef, p.Location); err != nil {
		return nil, false, err
	}
	p.Status = models.PaymentPendingScreenshot
	p.ScreenshotURL = screenshotRef

	plausible := EvidenceMatches(caption, code, walletAddr)
	w.logger.Infow("evidence submitted", "code", code, "plausible", plausible)
	return p, plausible, nil
}

// EvidenceMatches scans a caption for the payment code or the destination
// wallet address, accepting trailing fragments (last 6 of the address, last
// 4 of the code) as a defense against truncation.
func EvidenceMatches(caption, code, walletAddr string) bool {
	if code != "" && strings.Contains(caption, code) {
		return true
	}
	if walletAddr != "" && strings.Contains(caption, walletAddr) {
		return true
	}
	if len(walletAddr) > 6 && strings.Contains(caption, walletAddr[len(walletAddr)-6:]) {
		return true
	}
	if len(code) > 4 && strings.Contains(caption, code[len(code)-4:]) {
		return true
	}
	return false
}

// Approve flips the payment to approved and grants the purchased plan. A
// screenshot is not required. If the grant fails the status is rolled back,
// so the record is never approved without the entitlement applied.
func (w *Workflow) Approve(ctx context.Context, code string) (*models.Payment, error) {
	p, err := w.store.GetPayment(ctx, code)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		return nil, &models.ConflictError{Status: p.Status}
	}

	prev := p.Status
	if err := w.store.UpdatePaymentStatus(ctx, code, models.PaymentApproved); err != nil {
		return nil, err
	}

	if _, err := w.granter.ApplyPlan(ctx, p.ChatID, p.Plan, plans.DefaultTerm(p.Plan)); err != nil {
		if rbErr := w.store.UpdatePaymentStatus(ctx, code, prev); rbErr != nil {
			w.logger.Errorw("failed to roll back payment status", "code", code, "error", rbErr)
			return nil, fmt.Errorf("approve %s: grant failed (%v) and status rollback failed, record left approved without an entitlement: %w", code, err, rbErr)
		}
		return nil, fmt.Errorf("approve %s: %w", code, err)
	}

	p.Status = models.PaymentApproved
	w.logger.Infow("payment approved", "code", code, "chat_id", p.ChatID, "plan", p.Plan)
	return p, nil
}

// Reject flips the payment to rejected. No entitlement side effect.
func (w *Workflow) Reject(ctx context.Context, code string) (*models.Payment, error) {
	p, err := w.store.GetPayment(ctx, code)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		return nil, &models.ConflictError{Status: p.Status}
	}

	if err := w.store.UpdatePaymentStatus(ctx, code, models.PaymentRejected); err != nil {
		return nil, err
	}
	p.Status = models.PaymentRejected
	w.logger.Infow("payment rejected", "code", code, "chat_id", p.ChatID)
	return p, nil
}

// Get loads one payment by code.
func (w *Workflow) Get(ctx context.Context, code string) (*models.Payment, error) {
	return w.store.GetPayment(ctx, code)
}

// Pending lists payments awaiting adjudication.
func (w *Workflow) Pending(ctx context.Context) ([]*models.Payment, error) {
	return w.store.PendingPayments(ctx)
}
