package models

import "time"

// PlanType enumerates subscription plans governing monthly token quota.
type PlanType string

const (
	PlanFree  PlanType = "FREE"
	PlanBasic PlanType = "BASIC"
	PlanPro   PlanType = "PRO"
	PlanMax   PlanType = "MAX"
)

// MonthlyTokens returns the quota granted by a plan on each reset.
func (p PlanType) MonthlyTokens() int {
	switch p {
	case PlanBasic:
		return 100
	case PlanPro:
		return 300
	case PlanMax:
		return 1000
	default:
		return 30
	}
}

// TokenBalance is the per-user token quota. tokensRemaining never goes
// negative: a debit that would do so is rejected before the job starts.
type TokenBalance struct {
	UserID          string    `db:"user_id" json:"user_id"`
	TokensRemaining int       `db:"tokens_remaining" json:"tokens_remaining"`
	TokensPerMonth  int       `db:"tokens_per_month" json:"tokens_per_month"`
	PlanType        PlanType  `db:"plan_type" json:"plan_type"`
	LastResetAt     time.Time `db:"last_reset_at" json:"last_reset_at"`
	NextResetAt     time.Time `db:"next_reset_at" json:"next_reset_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// TokenEntryKind labels ledger history entries.
type TokenEntryKind string

const (
	TokenEntryDebit      TokenEntryKind = "DEBIT"
	TokenEntryReset      TokenEntryKind = "RESET"
	TokenEntryAdjustment TokenEntryKind = "ADJUSTMENT"
	TokenEntryUpgrade    TokenEntryKind = "UPGRADE"
)

// TokenLedgerEntry records one balance mutation.
type TokenLedgerEntry struct {
	ID           string         `db:"id" json:"id"`
	UserID       string         `db:"user_id" json:"user_id"`
	Kind         TokenEntryKind `db:"kind" json:"kind"`
	Amount       int            `db:"amount" json:"amount"`
	BalanceAfter int            `db:"balance_after" json:"balance_after"`
	Reference    *string        `db:"reference" json:"reference,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
