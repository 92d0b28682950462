// Package session holds per-user ephemeral state: multi-step purchase
// selections, operator prompt modes and the in-flight signal guard. Nothing
// here is durable or authoritative; entries expire after a TTL.
package session

import (
	"context"
	"sync"
	"time"
)

// PromptKind marks what the next free-text or photo message from a user
// should be interpreted as.
type PromptKind string

const (
	PromptNone           PromptKind = ""
	PromptScreenshot     PromptKind = "awaiting_screenshot"
	PromptAdminFindUser  PromptKind = "admin_find_user"
	PromptAdminGrantUser PromptKind = "admin_grant_select_user"
)

// Purchase is an in-progress buy flow: plan, then term, then rail.
type Purchase struct {
	Plan   string
	Term   string
	Amount float64
	Method string
}

// Prompt is the pending input mode for a user, with the context it needs.
type Prompt struct {
	Kind        PromptKind
	PaymentCode string
	GrantTarget int64
	GrantPlan   string
}

type entry[T any] struct {
	value   T
	touched time.Time
}

type State struct {
	mu        sync.Mutex
	purchases map[int64]*entry[Purchase]
	prompts   map[int64]*entry[Prompt]
	inflight  map[int64]context.CancelFunc
	ttl       time.Duration
}

func New(ttl time.Duration) *State {
	return &State{
		purchases: make(map[int64]*entry[Purchase]),
		prompts:   make(map[int64]*entry[Prompt]),
		inflight:  make(map[int64]context.CancelFunc),
		ttl:       ttl,
	}
}

// SetPurchase stores or replaces the user's in-progress purchase.
func (s *State) SetPurchase(chatID int64, p Purchase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases[chatID] = &entry[Purchase]{value: p, touched: time.Now()}
}

// Purchase returns the user's in-progress purchase, if any.
func (s *State) Purchase(chatID int64) (Purchase, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.purchases[chatID]
	if !ok {
		return Purchase{}, false
	}
	e.touched = time.Now()
	return e.value, true
}

func (s *State) ClearPurchase(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.purchases, chatID)
}

// SetPrompt arms the next-message interpretation for a user.
func (s *State) SetPrompt(chatID int64, p Prompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[chatID] = &entry[Prompt]{value: p, touched: time.Now()}
}

// Prompt returns the armed input mode, if any.
func (s *State) Prompt(chatID int64) (Prompt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.prompts[chatID]
	if !ok {
		return Prompt{}, false
	}
	return e.value, true
}

func (s *State) ClearPrompt(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prompts, chatID)
}

// BeginSearch registers an in-flight signal search for the user. Returns
// false when one is already running; this collapses the common double-click
// race without providing true quota atomicity.
func (s *State) BeginSearch(chatID int64, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.inflight[chatID]; running {
		return false
	}
	s.inflight[chatID] = cancel
	return true
}

// EndSearch drops the in-flight marker and releases the task context.
// Called by the delivery task itself; cancelling a finished task is a no-op.
func (s *State) EndSearch(chatID int64) {
	s.mu.Lock()
	cancel, ok := s.inflight[chatID]
	delete(s.inflight, chatID)
	s.mu.Unlock()
	if ok && cancel != nil {
		cancel()
	}
}

// CancelSearch aborts a dispatched delivery task, if one is pending.
func (s *State) CancelSearch(chatID int64) bool {
	s.mu.Lock()
	cancel, ok := s.inflight[chatID]
	delete(s.inflight, chatID)
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Searching reports whether a delivery task is in flight for the user.
func (s *State) Searching(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[chatID]
	return ok
}

// Sweep drops purchase and prompt entries older than the TTL. The in-flight
// set is owned by the delivery tasks and is not swept.
func (s *State) Sweep() {
	cutoff := time.Now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.purchases {
		if e.touched.Before(cutoff) {
			delete(s.purchases, id)
		}
	}
	for id, e := range s.prompts {
		if e.touched.Before(cutoff) {
			delete(s.prompts, id)
		}
	}
}
