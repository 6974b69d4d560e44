package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gradeforge/gradeforge-api/internal/dto"
	"github.com/gradeforge/gradeforge-api/internal/service"
	appErrors "github.com/gradeforge/gradeforge-api/pkg/errors"
	"github.com/gradeforge/gradeforge-api/pkg/response"
)

// TokenHandler exposes the token ledger endpoints.
type TokenHandler struct {
	tokens *service.TokenService
}

// NewTokenHandler constructs the handler.
func NewTokenHandler(tokens *service.TokenService) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

// Balance godoc
// @Summary Get the current user's token balance
// @Tags Tokens
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /tokens/balance [get]
func (h *TokenHandler) Balance(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	balance, err := h.tokens.GetBalance(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}

// History godoc
// @Summary Get the current user's ledger history
// @Tags Tokens
// @Produce json
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /tokens/history [get]
func (h *TokenHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	entries, err := h.tokens.History(c.Request.Context(), claims.UserID, queryInt(c, "limit", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Adjust godoc
// @Summary Adjust a user's token balance
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.AdjustTokensRequest true "Adjustment"
// @Success 200 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Router /admin/tokens/adjust [post]
func (h *TokenHandler) Adjust(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.AdjustTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid adjustment payload"))
		return
	}
	balance, err := h.tokens.Adjust(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}
