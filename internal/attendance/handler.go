package attendance

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/middleware"
	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/pkg/response"
)

// MaxImportBytes caps an uploaded attendee list.
const MaxImportBytes = 10 << 20

// Handler handles attendee and verification-log HTTP endpoints. Routes run
// after the event loader.
type Handler struct {
	exec   sqlgw.Executor
	logger *zap.Logger
}

// NewHandler creates an attendance handler.
func NewHandler(exec sqlgw.Executor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{exec: exec, logger: logger}
}

func (h *Handler) repo(c *gin.Context) *Repository {
	return NewRepository(h.exec, middleware.EventTablesFrom(c), h.logger)
}

// ListAttendees handles GET /events/:id/attendees?search=&page=&limit=.
func (h *Handler) ListAttendees(c *gin.Context) {
	page, limit := response.PageQuery(c)
	list, err := h.repo(c).ListAttendees(c.Request.Context(), AttendeeFilter{Search: c.Query("search"), Page: page, Limit: limit})
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, list)
}

// CreateAttendee handles POST /events/:id/attendees.
func (h *Handler) CreateAttendee(c *gin.Context) {
	var body AttendeeInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	a, err := h.repo(c).CreateAttendee(c.Request.Context(), body)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Created(c, a)
}

// Import handles POST /events/:id/attendees/import. It takes a CSV upload in
// the "file" form field, a text/csv body, or a JSON array of attendees.
func (h *Handler) Import(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxImportBytes)
	repo := h.repo(c)
	ctx := c.Request.Context()

	var (
		res *ImportResult
		err error
	)
	switch ct := c.ContentType(); {
	case strings.HasPrefix(ct, "multipart/"):
		fh, ferr := c.FormFile("file")
		if ferr != nil {
			response.BadRequest(c, "file field required")
			return
		}
		f, ferr := fh.Open()
		if ferr != nil {
			response.BadRequest(c, "cannot read upload")
			return
		}
		defer f.Close()
		res, err = repo.ImportCSV(ctx, f)
	case ct == "text/csv":
		res, err = repo.ImportCSV(ctx, c.Request.Body)
	default:
		var rows []AttendeeInput
		if berr := c.ShouldBindJSON(&rows); berr != nil {
			response.BadRequest(c, "expected a CSV upload or a JSON array of attendees")
			return
		}
		for i := range rows {
			rows[i].Row = i + 1
		}
		res, err = repo.BulkImport(ctx, rows)
	}
	if err != nil {
		if res != nil && len(res.Imported) > 0 {
			response.ErrorWithData(c, h.logger, err, res)
			return
		}
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, res)
}

// DeleteAttendee handles DELETE /events/:id/attendees/:participantId.
func (h *Handler) DeleteAttendee(c *gin.Context) {
	if err := h.repo(c).DeleteAttendee(c.Request.Context(), c.Param("participantId")); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.NoContent(c)
}

// ListVerifications handles GET /events/:id/verifications?status=&page=&limit=.
func (h *Handler) ListVerifications(c *gin.Context) {
	page, limit := response.PageQuery(c)
	status := models.VerificationStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		response.BadRequest(c, "status must be one of: verified duplicate invalid")
		return
	}
	list, err := h.repo(c).ListVerifications(c.Request.Context(), VerificationFilter{Status: status, Page: page, Limit: limit})
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, list)
}
