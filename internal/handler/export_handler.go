package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gradeforge/gradeforge-api/internal/service"
	appErrors "github.com/gradeforge/gradeforge-api/pkg/errors"
	"github.com/gradeforge/gradeforge-api/pkg/response"
)

// ExportHandler exposes document export and download endpoints.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Export godoc
// @Summary Render a completed assignment as PDF and return a signed download link
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments/{id}/export [post]
func (h *ExportHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	res, err := h.exports.ExportAssignment(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Download godoc
// @Summary Download a previously exported document
// @Tags Assignments
// @Produce application/pdf
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /documents/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token query parameter required"))
		return
	}
	file, err := h.exports.OpenDocument(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat document"))
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), "application/pdf", file, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", info.Name()),
	})
}

// LedgerCSV godoc
// @Summary Export a user's token ledger as CSV
// @Tags Admin
// @Produce text/csv
// @Param userId path string true "User ID"
// @Param limit query int false "Max entries"
// @Success 200 {file} binary
// @Router /admin/tokens/{userId}/ledger.csv [get]
func (h *ExportHandler) LedgerCSV(c *gin.Context) {
	userID := c.Param("userId")
	payload, err := h.exports.ExportLedgerCSV(c.Request.Context(), userID, queryInt(c, "limit", 500))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "ledger-"+userID+".csv"))
	c.Data(http.StatusOK, "text/csv", payload)
}
