package verification

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/attendance"
	"github.com/aura-attendance/backend/internal/middleware"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/pkg/response"
)

// ScanRequest is the body for POST /events/:id/scan.
type ScanRequest struct {
	ParticipantID string `json:"participantId"`
}

// MarkInvalidRequest is the optional body for POST /events/:id/verifications/:participantId/invalid.
type MarkInvalidRequest struct {
	Note string `json:"note"`
}

// Handler exposes the engine over HTTP. Routes run after the event loader.
type Handler struct {
	engine *Engine
	exec   sqlgw.Executor
	logger *zap.Logger
}

// NewHandler creates a verification handler.
func NewHandler(engine *Engine, exec sqlgw.Executor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, exec: exec, logger: logger}
}

func (h *Handler) store(c *gin.Context) Store {
	return attendance.NewRepository(h.exec, middleware.EventTablesFrom(c), h.logger)
}

// Scan handles POST /events/:id/scan.
func (h *Handler) Scan(c *gin.Context) {
	var body ScanRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.engine.Scan(c.Request.Context(), h.store(c), middleware.EventFrom(c), body.ParticipantID)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Created(c, res)
}

// MarkInvalid handles POST /events/:id/verifications/:participantId/invalid.
func (h *Handler) MarkInvalid(c *gin.Context) {
	var body MarkInvalidRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	rec, err := h.engine.MarkInvalid(c.Request.Context(), h.store(c), c.Param("participantId"), body.Note)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Created(c, rec)
}

// State handles GET /events/:id/participants/:participantId/state.
func (h *Handler) State(c *gin.Context) {
	st, err := h.engine.CurrentState(c.Request.Context(), h.store(c), c.Param("participantId"))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, st)
}
