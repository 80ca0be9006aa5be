package stats

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/middleware"
	"github.com/aura-attendance/backend/pkg/response"
)

// Handler serves per-event statistics. Routes run after the event loader.
type Handler struct {
	agg    *Aggregator
	logger *zap.Logger
}

// NewHandler creates a stats handler.
func NewHandler(agg *Aggregator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{agg: agg, logger: logger}
}

// Summary handles GET /events/:id/stats.
func (h *Handler) Summary(c *gin.Context) {
	t := middleware.EventTablesFrom(c)
	s, err := h.agg.GetEventStats(c.Request.Context(), t.Partition, t.Attendance, t.Verification)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, s)
}

// Full handles GET /events/:id/stats/full.
func (h *Handler) Full(c *gin.Context) {
	s, err := h.agg.ForEvent(c.Request.Context(), middleware.EventTablesFrom(c))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, s)
}
