package models

import "time"

// PaymentStatus captures the one-way payment transaction lifecycle.
type PaymentStatus string

const (
	PaymentWaiting  PaymentStatus = "WAITING_PAYMENT"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRejected PaymentStatus = "REJECTED"
	PaymentExpired  PaymentStatus = "EXPIRED"
)

// PaymentTransaction is a manual bank-transfer purchase of a plan. FinalAmount
// carries a unique decimal suffix so an operator can match an incoming
// transfer amount to exactly one pending transaction.
type PaymentTransaction struct {
	ID           string        `db:"id" json:"id"`
	UserID       string        `db:"user_id" json:"user_id"`
	PlanType     PlanType      `db:"plan_type" json:"plan_type"`
	BaseAmount   int64         `db:"base_amount" json:"base_amount"`
	FinalAmount  int64         `db:"final_amount" json:"final_amount"`
	Status       PaymentStatus `db:"status" json:"status"`
	RejectReason *string       `db:"reject_reason" json:"reject_reason,omitempty"`
	ExpiresAt    time.Time     `db:"expires_at" json:"expires_at"`
	ResolvedAt   *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy   *string       `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}
