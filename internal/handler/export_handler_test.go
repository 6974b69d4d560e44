package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExportHandlerExportRequiresAuth(t *testing.T) {
	h := NewExportHandler(nil)
	c, w := newTestContext(t, http.MethodPost, "/assignments/assignment-1/export", nil)

	h.Export(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExportHandlerDownloadRequiresToken(t *testing.T) {
	h := NewExportHandler(nil)
	c, w := newTestContext(t, http.MethodGet, "/documents/download", nil)

	h.Download(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
