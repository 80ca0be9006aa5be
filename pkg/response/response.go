package response

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/apperr"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Fields  interface{} `json:"fields,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// Accepted sends a 202 JSON response with data, used for queued jobs.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Error: err})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	c.JSON(http.StatusUnauthorized, Body{Success: false, Error: err})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, err string) {
	c.JSON(http.StatusForbidden, Body{Success: false, Error: err})
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	c.JSON(http.StatusNotFound, Body{Success: false, Error: err})
}

// Conflict sends 409.
func Conflict(c *gin.Context, err string) {
	c.JSON(http.StatusConflict, Body{Success: false, Error: err})
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, err string) {
	c.JSON(http.StatusServiceUnavailable, Body{Success: false, Error: err})
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Error: err})
}

// Error maps err to a status by its apperr kind. Validation, conflict and
// not-found messages are shown to the caller; storage and provisioning
// failures are logged and answered with a generic message.
func Error(c *gin.Context, logger *zap.Logger, err error) {
	ErrorWithData(c, logger, err, nil)
}

// ErrorWithData answers like Error and attaches data, such as the part of a
// batch that was committed before the failure.
func ErrorWithData(c *gin.Context, logger *zap.Logger, err error, data interface{}) {
	body := Body{Success: false, Data: data}
	status := http.StatusInternalServerError
	var ve *apperr.ValidationError
	switch {
	case errors.Is(err, apperr.ErrInvalidCredentials):
		status, body.Error = http.StatusUnauthorized, err.Error()
	case errors.As(err, &ve):
		status, body.Error, body.Fields = http.StatusBadRequest, "validation failed", ve.Fields
	default:
		switch apperr.KindOf(err) {
		case apperr.KindConflict:
			status, body.Error = http.StatusConflict, apperr.PublicMessage(err)
		case apperr.KindNotFound:
			status, body.Error = http.StatusNotFound, apperr.PublicMessage(err)
		case apperr.KindStorageMissing:
			logFailure(c, logger, err)
			body.Error = "storage is not provisioned"
		case apperr.KindTransient:
			logFailure(c, logger, err)
			status, body.Error = http.StatusServiceUnavailable, "storage temporarily unavailable"
		case apperr.KindProvision:
			logFailure(c, logger, err)
			body.Error = "failed to provision storage"
		default:
			logFailure(c, logger, err)
			body.Error = "internal error"
		}
	}
	c.JSON(status, body)
}

func logFailure(c *gin.Context, logger *zap.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
}

// PageQuery reads the page and limit query parameters. Missing or malformed
// values are returned as zero and normalized by the listing.
func PageQuery(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.Query("page"))
	limit, _ = strconv.Atoi(c.Query("limit"))
	return page, limit
}
