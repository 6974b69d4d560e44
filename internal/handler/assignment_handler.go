package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gradeforge/gradeforge-api/internal/dto"
	"github.com/gradeforge/gradeforge-api/internal/models"
	"github.com/gradeforge/gradeforge-api/internal/service"
	appErrors "github.com/gradeforge/gradeforge-api/pkg/errors"
	"github.com/gradeforge/gradeforge-api/pkg/response"
)

// AssignmentHandler exposes the assignment lifecycle endpoints.
type AssignmentHandler struct {
	assignments *service.AssignmentService
	tokens      *service.TokenService
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(assignments *service.AssignmentService, tokens *service.TokenService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments, tokens: tokens}
}

// Create godoc
// @Summary Create a draft assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body dto.CreateAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}
	res, err := h.assignments.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Get godoc
// @Summary Get an assignment
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assignments/{id} [get]
func (h *AssignmentHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	res, err := h.assignments.Get(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// List godoc
// @Summary List assignments
// @Tags Assignments
// @Produce json
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.AssignmentFilter{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", 20),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.AssignmentStatus(raw)
		filter.Status = &status
	}
	if claims.Role == models.RoleAdmin {
		filter.UserID = c.Query("userId")
	}
	items, total, err := h.assignments.List(c.Request.Context(), filter, claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// SaveInputs godoc
// @Summary Save student inputs
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.SaveInputsRequest true "Student inputs"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments/{id}/inputs [put]
func (h *AssignmentHandler) SaveInputs(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SaveInputsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid inputs payload"))
		return
	}
	res, err := h.assignments.SaveInputs(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role, req.Inputs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// InputsStatus godoc
// @Summary Validate stored student inputs
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/inputs/status [get]
func (h *AssignmentHandler) InputsStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	res, err := h.assignments.InputsStatus(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// StartGeneration godoc
// @Summary Start generation for a draft assignment
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 202 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /assignments/{id}/generate [post]
func (h *AssignmentHandler) StartGeneration(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	res, _, err := h.assignments.StartGeneration(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.tokens != nil {
		h.tokens.InvalidateBalance(c.Request.Context(), claims.UserID)
		if balance, err := h.tokens.GetBalance(c.Request.Context(), claims.UserID); err == nil {
			res.TokensRemaining = balance.TokensRemaining
		}
	}
	response.JSON(c, http.StatusAccepted, res, nil)
}

// ForceComplete godoc
// @Summary Force-complete a generating assignment
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.ForceCompleteRequest false "Operator note"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/assignments/{id}/force-complete [post]
func (h *AssignmentHandler) ForceComplete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ForceCompleteRequest
	_ = c.ShouldBindJSON(&req)
	res, err := h.assignments.ForceComplete(c.Request.Context(), c.Param("id"), claims.UserID, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Cancel godoc
// @Summary Cancel a generating assignment
// @Tags Admin
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/assignments/{id}/cancel [post]
func (h *AssignmentHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	res, err := h.assignments.Cancel(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Regenerate godoc
// @Summary Regenerate a terminal assignment
// @Tags Admin
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/assignments/{id}/regenerate [post]
func (h *AssignmentHandler) Regenerate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	res, err := h.assignments.Regenerate(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, res, nil)
}

// BulkDelete godoc
// @Summary Delete assignments in bulk
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.BulkAssignmentRequest true "Assignment IDs"
// @Success 200 {object} response.Envelope
// @Router /admin/assignments/bulk-delete [post]
func (h *AssignmentHandler) BulkDelete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.BulkAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "assignment ids required"))
		return
	}
	res, err := h.assignments.BulkDelete(c.Request.Context(), req.IDs, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// BulkRegenerate godoc
// @Summary Regenerate assignments in bulk
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.BulkAssignmentRequest true "Assignment IDs"
// @Success 200 {object} response.Envelope
// @Router /admin/assignments/bulk-regenerate [post]
func (h *AssignmentHandler) BulkRegenerate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.BulkAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "assignment ids required"))
		return
	}
	res, err := h.assignments.BulkRegenerate(c.Request.Context(), req.IDs, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
