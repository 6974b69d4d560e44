package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gradeforge/gradeforge-api/internal/dto"
	"github.com/gradeforge/gradeforge-api/internal/service"
	appErrors "github.com/gradeforge/gradeforge-api/pkg/errors"
	"github.com/gradeforge/gradeforge-api/pkg/response"
)

// BriefHandler exposes brief template endpoints.
type BriefHandler struct {
	briefs *service.BriefService
}

// NewBriefHandler constructs the handler.
func NewBriefHandler(briefs *service.BriefService) *BriefHandler {
	return &BriefHandler{briefs: briefs}
}

// List godoc
// @Summary List briefs
// @Tags Briefs
// @Produce json
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /briefs [get]
func (h *BriefHandler) List(c *gin.Context) {
	res, err := h.briefs.List(c.Request.Context(), queryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Get godoc
// @Summary Get a brief
// @Tags Briefs
// @Produce json
// @Param id path string true "Brief ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /briefs/{id} [get]
func (h *BriefHandler) Get(c *gin.Context) {
	res, err := h.briefs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Create godoc
// @Summary Create a brief
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.BriefRequest true "Brief"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/briefs [post]
func (h *BriefHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.BriefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid brief payload"))
		return
	}
	res, err := h.briefs.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Update godoc
// @Summary Update a brief
// @Description Edits only affect assignments created afterwards; existing
// @Description assignments keep their snapshot.
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Brief ID"
// @Param payload body dto.BriefRequest true "Brief"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/briefs/{id} [put]
func (h *BriefHandler) Update(c *gin.Context) {
	var req dto.BriefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid brief payload"))
		return
	}
	res, err := h.briefs.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Delete godoc
// @Summary Delete a brief
// @Tags Admin
// @Produce json
// @Param id path string true "Brief ID"
// @Success 204 {object} response.Envelope
// @Router /admin/briefs/{id} [delete]
func (h *BriefHandler) Delete(c *gin.Context) {
	if err := h.briefs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
