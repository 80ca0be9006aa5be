package events

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/middleware"
	"github.com/aura-attendance/backend/internal/schema"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/pkg/queue"
	"github.com/aura-attendance/backend/pkg/response"
)

// Enqueuer queues background jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.JobType, partition string, payload any) (*queue.Job, error)
}

// Handler handles event HTTP endpoints. Routes taking :id run after Load.
type Handler struct {
	exec   sqlgw.Executor
	prov   *schema.Provisioner
	jobs   Enqueuer
	logger *zap.Logger
}

// NewHandler creates an events handler. jobs may be nil when no queue is configured.
func NewHandler(exec sqlgw.Executor, prov *schema.Provisioner, jobs Enqueuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{exec: exec, prov: prov, jobs: jobs, logger: logger}
}

func (h *Handler) repo(c *gin.Context) *Repository {
	return NewRepository(h.exec, h.prov, middleware.IdentityFrom(c).Partition, h.logger)
}

// Create handles POST /events.
func (h *Handler) Create(c *gin.Context) {
	var body CreateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sub := middleware.IdentityFrom(c).SubjectID
	body.CreatedBy = &sub
	res, err := h.repo(c).Create(c.Request.Context(), body)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Created(c, res)
}

// List handles GET /events?active=true|false&page=&limit=.
func (h *Handler) List(c *gin.Context) {
	page, limit := response.PageQuery(c)
	f := ListFilter{Page: page, Limit: limit}
	if v := c.Query("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			response.BadRequest(c, "active must be true or false")
			return
		}
		f.Active = &active
	}
	list, err := h.repo(c).List(c.Request.Context(), f)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /events/:id.
func (h *Handler) Get(c *gin.Context) {
	response.OK(c, middleware.EventFrom(c))
}

// Rename handles PATCH /events/:id.
func (h *Handler) Rename(c *gin.Context) {
	var body RenameInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ev, err := h.repo(c).Rename(c.Request.Context(), middleware.EventFrom(c).ID, body)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, ev)
}

// End handles POST /events/:id/end.
func (h *Handler) End(c *gin.Context) {
	ev, err := h.repo(c).EndEvent(c.Request.Context(), middleware.EventFrom(c).ID)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, ev)
}

// Reactivate handles POST /events/:id/reactivate.
func (h *Handler) Reactivate(c *gin.Context) {
	ev, err := h.repo(c).ReactivateEvent(c.Request.Context(), middleware.EventFrom(c).ID)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, ev)
}

// Delete handles DELETE /events/:id.
func (h *Handler) Delete(c *gin.Context) {
	if err := h.repo(c).Delete(c.Request.Context(), middleware.EventFrom(c).ID); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.NoContent(c)
}

// Export handles POST /events/:id/export by queueing a CSV report job.
func (h *Handler) Export(c *gin.Context) {
	if h.jobs == nil {
		response.ServiceUnavailable(c, "background jobs are not configured")
		return
	}
	id := middleware.IdentityFrom(c)
	job, err := h.jobs.Enqueue(c.Request.Context(), queue.JobTypeAttendanceExport, id.Partition, queue.ExportPayload{
		OrganizationID: id.OrganizationID,
		Partition:      id.Partition,
		EventID:        middleware.EventFrom(c).ID,
	})
	if err != nil {
		h.logger.Error("enqueue export failed", zap.Error(err))
		response.ServiceUnavailable(c, "failed to queue export")
		return
	}
	response.Accepted(c, gin.H{"jobId": job.ID})
}
