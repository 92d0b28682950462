// internal/models/models.go
package models

import (
	"time"
)

// PlanKey identifies a subscription tier. An empty key means no plan.
type PlanKey string

const (
	PlanNone     PlanKey = ""
	PlanStarter  PlanKey = "starter"
	PlanPro      PlanKey = "pro"
	PlanBot1Year PlanKey = "bot1_year"
	PlanBot2Year PlanKey = "bot2_year"
)

// Term is a subscription duration selected at purchase time.
type Term string

const (
	TermMonth Term = "month"
	TermYear  Term = "year"
)

// PaymentStatus is the workflow state of a payment record.
// pending -> pending_screenshot -> approved | rejected.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentPendingScreenshot PaymentStatus = "pending_screenshot"
	PaymentApproved          PaymentStatus = "approved"
	PaymentRejected          PaymentStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentApproved || s == PaymentRejected
}

// PaymentMethod is one of the supported payment rails.
type PaymentMethod string

const (
	MethodUSDT         PaymentMethod = "usdt"
	MethodTON          PaymentMethod = "ton"
	MethodBTC          PaymentMethod = "btc"
	MethodETH          PaymentMethod = "eth"
	MethodMonobank     PaymentMethod = "monobank"
	MethodMonobankCard PaymentMethod = "monobank_card"
	MethodCard         PaymentMethod = "card"
)

// Entitlement is a user's subscription state: one row per chat, never deleted.
type Entitlement struct {
	ChatID           int64   `json:"chat_id"`
	Plan             PlanKey `json:"paid_plan"`
	PlanExpires      int64   `json:"plan_expires"`
	SignalsDaily     int     `json:"signals_daily"`
	SignalsUsedToday int     `json:"signals_used_today"`
	LastReset        int64   `json:"last_reset"`
}

// SignalsAvailable returns the remaining allotment, clamped at zero.
func (e *Entitlement) SignalsAvailable() int {
	avail := e.SignalsDaily - e.SignalsUsedToday
	if avail < 0 {
		return 0
	}
	return avail
}

// Payment is one purchase attempt, kept forever as an audit trail.
type Payment struct {
	ID            int64         `json:"id"`
	ChatID        int64         `json:"chat_id"`
	Plan          PlanKey       `json:"plan"`
	Amount        float64       `json:"amount"`
	Method        PaymentMethod `json:"crypto"`
	PaymentCode   string        `json:"payment_code"`
	Status        PaymentStatus `json:"status"`
	CreatedAt     int64         `json:"created_at"`
	ScreenshotURL string        `json:"screenshot_url"`
	Location      string        `json:"location"`
}

// UserProfile is the operator-directory snapshot of a user. It mirrors the
// persistent store and is never authoritative.
type UserProfile struct {
	UserID           int64     `json:"user_id"`
	Username         string    `json:"username"`
	FirstName        string    `json:"first_name"`
	CreatedAt        time.Time `json:"created_at"`
	LastSeen         time.Time `json:"last_seen"`
	Plan             PlanKey   `json:"plan"`
	SignalsDaily     int       `json:"signals_daily"`
	SignalsUsedToday int       `json:"signals_used_today"`
}
