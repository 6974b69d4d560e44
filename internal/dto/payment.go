package dto

import (
	"time"

	"github.com/gradeforge/gradeforge-api/internal/models"
)

// CreatePaymentRequest opens a manual bank-transfer transaction.
type CreatePaymentRequest struct {
	PlanType models.PlanType `json:"planType" binding:"required"`
}

// PaymentResponse is the API projection of a payment transaction.
type PaymentResponse struct {
	ID           string               `json:"id"`
	PlanType     models.PlanType      `json:"planType"`
	BaseAmount   int64                `json:"baseAmount"`
	FinalAmount  int64                `json:"finalAmount"`
	Status       models.PaymentStatus `json:"status"`
	RejectReason *string              `json:"rejectReason,omitempty"`
	ExpiresAt    time.Time            `json:"expiresAt"`
	CreatedAt    time.Time            `json:"createdAt"`
}

// RejectPaymentRequest captures the admin rejection payload.
type RejectPaymentRequest struct {
	Reason string `json:"reason" binding:"required"`
}
