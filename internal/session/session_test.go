package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseRoundTrip(t *testing.T) {
	s := New(time.Hour)

	_, ok := s.Purchase(1)
	assert.False(t, ok)

	s.SetPurchase(1, Purchase{Plan: "pro", Term: "month", Amount: 50})
	p, ok := s.Purchase(1)
	require.True(t, ok)
	assert.Equal(t, "pro", p.Plan)
	assert.Equal(t, 50.0, p.Amount)

	s.ClearPurchase(1)
	_, ok = s.Purchase(1)
	assert.False(t, ok)
}

func TestPromptRoundTrip(t *testing.T) {
	s := New(time.Hour)

	s.SetPrompt(1, Prompt{Kind: PromptScreenshot, PaymentCode: "AB12CD34"})
	p, ok := s.Prompt(1)
	require.True(t, ok)
	assert.Equal(t, PromptScreenshot, p.Kind)
	assert.Equal(t, "AB12CD34", p.PaymentCode)

	s.ClearPrompt(1)
	_, ok = s.Prompt(1)
	assert.False(t, ok)
}

func TestBeginSearchGuardsConcurrentRequests(t *testing.T) {
	s := New(time.Hour)
	_, cancel := context.WithCancel(context.Background())

	require.True(t, s.BeginSearch(1, cancel))
	assert.False(t, s.BeginSearch(1, cancel), "second concurrent search must be refused")
	assert.True(t, s.Searching(1))

	s.EndSearch(1)
	assert.False(t, s.Searching(1))
	assert.True(t, s.BeginSearch(1, cancel))
}

func TestCancelSearch(t *testing.T) {
	s := New(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	require.True(t, s.BeginSearch(1, cancel))
	require.True(t, s.CancelSearch(1))

	select {
	case <-ctx.Done():
	default:
		t.Fatal("cancel func was not invoked")
	}

	assert.False(t, s.CancelSearch(1))
}

func TestSweepExpiresStaleEntries(t *testing.T) {
	s := New(10 * time.Millisecond)

	s.SetPurchase(1, Purchase{Plan: "starter"})
	s.SetPrompt(2, Prompt{Kind: PromptAdminFindUser})

	time.Sleep(20 * time.Millisecond)
	s.SetPurchase(3, Purchase{Plan: "pro"})
	s.Sweep()

	_, ok := s.Purchase(1)
	assert.False(t, ok)
	_, ok = s.Prompt(2)
	assert.False(t, ok)
	_, ok = s.Purchase(3)
	assert.True(t, ok)
}
