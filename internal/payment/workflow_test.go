package payment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/models"
	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/plans"
	"github.com/den4ikerror/ai-crypto-indicator-bot/pkg/logger"
)

type memPayments struct {
	mu                 sync.Mutex
	byCode             map[string]*models.Payment
	nextID             int64
	duplicates         int  // force this many ErrDuplicateCode results first
	failStatusRollback bool // refuse updates that move an approved record back
}

func newMemPayments() *memPayments {
	return &memPayments{byCode: make(map[string]*models.Payment)}
}

func (s *memPayments) CreatePayment(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.duplicates > 0 {
		s.duplicates--
		return models.ErrDuplicateCode
	}
	if _, exists := s.byCode[p.PaymentCode]; exists {
		return models.ErrDuplicateCode
	}
	s.nextID++
	p.ID = s.nextID
	cp := *p
	s.byCode[p.PaymentCode] = &cp
	return nil
}

func (s *memPayments) GetPayment(_ context.Context, code string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byCode[code]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memPayments) UpdatePaymentStatus(_ context.Context, code string, status models.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byCode[code]
	if !ok {
		return models.ErrNotFound
	}
	if s.failStatusRollback && p.Status == models.PaymentApproved && status != models.PaymentApproved {
		return errors.New("connection reset")
	}
	p.Status = status
	return nil
}

func (s *memPayments) AttachScreenshot(_ context.Context, code, ref, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byCode[code]
	if !ok {
		return models.ErrNotFound
	}
	p.Status = models.PaymentPendingScreenshot
	p.ScreenshotURL = ref
	p.Location = location
	return nil
}

func (s *memPayments) PendingPayments(_ context.Context) ([]*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Payment
	for _, p := range s.byCode {
		if p.Status == models.PaymentPendingScreenshot {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memPayments) status(code string) models.PaymentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byCode[code].Status
}

type fakeGranter struct {
	applied []models.PlanKey
	chatIDs []int64
	err     error
}

func (g *fakeGranter) ApplyPlan(_ context.Context, chatID int64, plan models.PlanKey, _ models.Term) (plans.Spec, error) {
	if g.err != nil {
		return plans.Spec{}, g.err
	}
	g.applied = append(g.applied, plan)
	g.chatIDs = append(g.chatIDs, chatID)
	spec, err := plans.Lookup(plan)
	return spec, err
}

func newWorkflow(t *testing.T) (*Workflow, *memPayments, *fakeGranter) {
	t.Helper()
	store := newMemPayments()
	granter := &fakeGranter{}
	return NewWorkflow(store, granter, logger.NewNop()), store, granter
}

func TestCreateGeneratesCode(t *testing.T) {
	w, _, _ := newWorkflow(t)

	p, err := w.Create(context.Background(), 303, models.PlanPro, 50, models.MethodUSDT)
	require.NoError(t, err)

	assert.Len(t, p.PaymentCode, 8)
	for _, r := range p.PaymentCode {
		assert.Contains(t, codeAlphabet, string(r))
	}
	assert.Equal(t, models.PaymentPending, p.Status)
	assert.NotZero(t, p.ID)
	assert.NotZero(t, p.CreatedAt)
}

func TestCreateRetriesOnDuplicateCode(t *testing.T) {
	w, store, _ := newWorkflow(t)
	store.duplicates = 2

	p, err := w.Create(context.Background(), 303, models.PlanStarter, 30, models.MethodTON)
	require.NoError(t, err)
	assert.NotEmpty(t, p.PaymentCode)
}

func TestConfirmIntentTransition(t *testing.T) {
	ctx := context.Background()
	w, _, _ := newWorkflow(t)

	p, err := w.Create(ctx, 303, models.PlanPro, 50, models.MethodUSDT)
	require.NoError(t, err)

	got, err := w.ConfirmIntent(ctx, p.PaymentCode)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPendingScreenshot, got.Status)

	// A second confirm is a conflict: there is no way back to pending.
	_, err = w.ConfirmIntent(ctx, p.PaymentCode)
	conflict, ok := models.IsConflict(err)
	require.True(t, ok)
	assert.Equal(t, models.PaymentPendingScreenshot, conflict.Status)
}

func TestConfirmIntentUnknownCode(t *testing.T) {
	w, _, _ := newWorkflow(t)

	_, err := w.ConfirmIntent(context.Background(), "NOPE1234")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestApproveGrantsPlan(t *testing.T) {
	ctx := context.Background()
	w, store, granter := newWorkflow(t)

	p, err := w.Create(ctx, 404, models.PlanPro, 50, models.MethodUSDT)
	require.NoError(t, err)
	_, err = w.ConfirmIntent(ctx, p.PaymentCode)
	require.NoError(t, err)

	got, err := w.Approve(ctx, p.PaymentCode)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentApproved, got.Status)
	require.Equal(t, []models.PlanKey{models.PlanPro}, granter.applied)
	assert.Equal(t, []int64{404}, granter.chatIDs)

	// Re-approving a terminal payment fails with Conflict and changes nothing.
	_, err = w.Approve(ctx, p.PaymentCode)
	conflict, ok := models.IsConflict(err)
	require.True(t, ok)
	assert.Equal(t, models.PaymentApproved, conflict.Status)
	assert.Len(t, granter.applied, 1)
	assert.Equal(t, models.PaymentApproved, store.status(p.PaymentCode))
}

func TestApproveWithoutScreenshotAllowed(t *testing.T) {
	ctx := context.Background()
	w, _, granter := newWorkflow(t)

	p, err := w.Create(ctx, 404, models.PlanStarter, 30, models.MethodBTC)
	require.NoError(t, err)

	_, err = w.Approve(ctx, p.PaymentCode)
	require.NoError(t, err)
	assert.Len(t, granter.applied, 1)
}

func TestCreateConcurrentUsers(t *testing.T) {
	w, store, _ := newWorkflow(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		chatID := int64(1000 + i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := w.Create(context.Background(), chatID, models.PlanPro, 50, models.MethodUSDT)
			assert.NoError(t, err)
			assert.Len(t, p.PaymentCode, 8)
		}()
	}
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.byCode, 16)
}

func TestApproveRollsBackOnGrantFailure(t *testing.T) {
	ctx := context.Background()
	w, store, granter := newWorkflow(t)
	granter.err = errors.New("storage down")

	p, err := w.Create(ctx, 404, models.PlanPro, 50, models.MethodUSDT)
	require.NoError(t, err)
	_, err = w.ConfirmIntent(ctx, p.PaymentCode)
	require.NoError(t, err)

	_, err = w.Approve(ctx, p.PaymentCode)
	require.Error(t, err)
	assert.Equal(t, models.PaymentPendingScreenshot, store.status(p.PaymentCode))
}

func TestApproveSurfacesFailedRollback(t *testing.T) {
	ctx := context.Background()
	w, store, granter := newWorkflow(t)
	granter.err = errors.New("grant refused")
	store.failStatusRollback = true

	p, err := w.Create(ctx, 404, models.PlanPro, 50, models.MethodUSDT)
	require.NoError(t, err)

	_, err = w.Approve(ctx, p.PaymentCode)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grant refused")
	assert.Contains(t, err.Error(), "rollback failed")
	assert.Equal(t, models.PaymentApproved, store.status(p.PaymentCode))
}

func TestRejectHasNoGrantSideEffect(t *testing.T) {
	ctx := context.Background()
	w, store, granter := newWorkflow(t)

	p, err := w.Create(ctx, 505, models.PlanStarter, 30, models.MethodMonobank)
	require.NoError(t, err)

	got, err := w.Reject(ctx, p.PaymentCode)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRejected, got.Status)
	assert.Empty(t, granter.applied)

	_, err = w.Reject(ctx, p.PaymentCode)
	conflict, ok := models.IsConflict(err)
	require.True(t, ok)
	assert.Equal(t, models.PaymentRejected, conflict.Status)
	assert.Equal(t, models.PaymentRejected, store.status(p.PaymentCode))
}

func TestSubmitEvidence(t *testing.T) {
	ctx := context.Background()
	w, store, _ := newWorkflow(t)

	p, err := w.Create(ctx, 606, models.PlanPro, 50, models.MethodUSDT)
	require.NoError(t, err)
	_, err = w.ConfirmIntent(ctx, p.PaymentCode)
	require.NoError(t, err)

	got, plausible, err := w.SubmitEvidence(ctx, p.PaymentCode, "file-123", "sent "+p.PaymentCode, "TWallet123456")
	require.NoError(t, err)
	assert.True(t, plausible)
	assert.Equal(t, "file-123", got.ScreenshotURL)
	assert.Equal(t, models.PaymentPendingScreenshot, store.status(p.PaymentCode))

	// An implausible caption still goes through; the flag is advisory.
	_, plausible, err = w.SubmitEvidence(ctx, p.PaymentCode, "file-456", "here you go", "TWallet123456")
	require.NoError(t, err)
	assert.False(t, plausible)
	assert.Equal(t, "file-456", store.byCode[p.PaymentCode].ScreenshotURL)
}

func TestEvidenceMatches(t *testing.T) {
	const code = "AB12CD34"
	const addr = "TQrYx9mPa7w2kLitE5u8"

	for _, tc := range []struct {
		name    string
		caption string
		want    bool
	}{
		{"exact code", "memo AB12CD34 done", true},
		{"exact address", "sent to TQrYx9mPa7w2kLitE5u8", true},
		{"address tail", "…itE5u8 confirmed", true},
		{"code tail", "ref CD34", true},
		{"no reference", "payment attached", false},
		{"short fragment", "34", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EvidenceMatches(tc.caption, code, addr))
		})
	}
}
