package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gradeforge/gradeforge-api/internal/dto"
	"github.com/gradeforge/gradeforge-api/internal/service"
	appErrors "github.com/gradeforge/gradeforge-api/pkg/errors"
	"github.com/gradeforge/gradeforge-api/pkg/response"
)

// PaymentHandler exposes manual bank-transfer purchase endpoints.
type PaymentHandler struct {
	payments *service.PaymentService
}

// NewPaymentHandler constructs the handler.
func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Create godoc
// @Summary Open a pending plan purchase
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body dto.CreatePaymentRequest true "Plan"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /payments [post]
func (h *PaymentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment payload"))
		return
	}
	res, err := h.payments.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Get godoc
// @Summary Get a payment transaction
// @Tags Payments
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /payments/{id} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	res, err := h.payments.Get(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// ListPending godoc
// @Summary List pending payment transactions
// @Tags Admin
// @Produce json
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /admin/payments/pending [get]
func (h *PaymentHandler) ListPending(c *gin.Context) {
	res, err := h.payments.ListPending(c.Request.Context(), queryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Approve godoc
// @Summary Approve a pending payment
// @Tags Admin
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/payments/{id}/approve [post]
func (h *PaymentHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	res, err := h.payments.Approve(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Reject godoc
// @Summary Reject a pending payment
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Param payload body dto.RejectPaymentRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/payments/{id}/reject [post]
func (h *PaymentHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RejectPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "reject reason required"))
		return
	}
	res, err := h.payments.Reject(c.Request.Context(), c.Param("id"), claims.UserID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
