package dto

import (
	"time"

	"github.com/gradeforge/gradeforge-api/internal/models"
)

// TokenBalanceResponse exposes the current balance to clients.
type TokenBalanceResponse struct {
	TokensRemaining int             `json:"tokensRemaining"`
	TokensPerMonth  int             `json:"tokensPerMonth"`
	PlanType        models.PlanType `json:"planType"`
	NextResetAt     time.Time       `json:"nextResetAt"`
}

// TokenLedgerEntryResponse is one row of spend history.
type TokenLedgerEntryResponse struct {
	ID           string                `json:"id"`
	Kind         models.TokenEntryKind `json:"kind"`
	Amount       int                   `json:"amount"`
	BalanceAfter int                   `json:"balanceAfter"`
	Reference    *string               `json:"reference,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
}

// AdjustTokensRequest captures the admin balance adjustment payload.
type AdjustTokensRequest struct {
	UserID string `json:"userId" binding:"required"`
	Delta  int    `json:"delta" binding:"required"`
	Reason string `json:"reason"`
}
