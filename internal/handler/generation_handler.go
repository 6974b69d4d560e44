package handler

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/gradeforge/gradeforge-api/internal/service"
	"github.com/gradeforge/gradeforge-api/internal/ws"
	appErrors "github.com/gradeforge/gradeforge-api/pkg/errors"
	"github.com/gradeforge/gradeforge-api/pkg/response"
)

// GenerationHandler exposes the progress channel: the websocket stream, the
// polling fallback, and the manual approval release.
type GenerationHandler struct {
	generation *service.GenerationService
	hub        *ws.Hub
	metrics    *service.MetricsService
	connCfg    ws.ConnConfig
	buffer     int
	active     atomic.Int64
	upgrader   websocket.Upgrader
}

// NewGenerationHandler constructs the handler.
func NewGenerationHandler(generation *service.GenerationService, hub *ws.Hub, metrics *service.MetricsService, connCfg ws.ConnConfig, buffer int, allowedOrigins []string) *GenerationHandler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &GenerationHandler{
		generation: generation,
		hub:        hub,
		metrics:    metrics,
		connCfg:    connCfg,
		buffer:     buffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// Progress godoc
// @Summary Websocket progress stream
// @Description Upgrades to a websocket. Clients send subscribe/unsubscribe
// @Description messages naming a jobId; the token query parameter carries the
// @Description access token since browsers cannot set headers on upgrades.
// @Tags Generation
// @Param token query string true "Access token"
// @Success 101
// @Router /ws/progress [get]
func (h *GenerationHandler) Progress(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		return
	}

	client := h.hub.NewClient(claims.UserID, h.buffer)
	if h.metrics != nil {
		h.metrics.SetProgressSubscribers(int(h.active.Add(1)))
		defer func() {
			h.metrics.SetProgressSubscribers(int(h.active.Add(-1)))
		}()
	}
	h.hub.ServeConn(conn, client, h.connCfg)
}

// Status godoc
// @Summary Poll generation status
// @Description Polling fallback carrying the same fields as the websocket
// @Description stream; clients re-sync here after any stream anomaly.
// @Tags Generation
// @Produce json
// @Param assignmentId path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /generation/status/{assignmentId} [get]
func (h *GenerationHandler) Status(c *gin.Context) {
	snapshot, err := h.generation.Status(c.Request.Context(), c.Param("assignmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}

// Approve godoc
// @Summary Release a job paused at the approval gate
// @Tags Admin
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/generation/jobs/{jobId}/approve [post]
func (h *GenerationHandler) Approve(c *gin.Context) {
	if err := h.generation.Approve(c.Request.Context(), c.Param("jobId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
