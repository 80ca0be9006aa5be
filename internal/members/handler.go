package members

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/auth"
	"github.com/aura-attendance/backend/internal/middleware"
	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/pkg/response"
)

// UpdateRoleRequest is the body for PATCH /members/:id/role.
type UpdateRoleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

// TokenResponse carries a token a member's device signs in with.
type TokenResponse struct {
	Token  string         `json:"token"`
	Member *models.Member `json:"member"`
}

// Handler handles member HTTP endpoints.
type Handler struct {
	exec   sqlgw.Executor
	jwt    *auth.JWTService
	logger *zap.Logger
}

// NewHandler creates a members handler.
func NewHandler(exec sqlgw.Executor, jwt *auth.JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{exec: exec, jwt: jwt, logger: logger}
}

func (h *Handler) repo(c *gin.Context) *Repository {
	return NewRepository(h.exec, middleware.IdentityFrom(c).Partition, h.logger)
}

func memberID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid member id")
		return uuid.Nil, false
	}
	return id, true
}

// List handles GET /members?role=&page=&limit=.
func (h *Handler) List(c *gin.Context) {
	page, limit := response.PageQuery(c)
	list, err := h.repo(c).List(c.Request.Context(), ListFilter{Role: models.Role(c.Query("role")), Page: page, Limit: limit})
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, list)
}

// Create handles POST /members.
func (h *Handler) Create(c *gin.Context) {
	var body CreateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.repo(c).Create(c.Request.Context(), body)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Created(c, m)
}

// Counts handles GET /members/counts.
func (h *Handler) Counts(c *gin.Context) {
	counts, err := h.repo(c).CountByRole(c.Request.Context())
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, counts)
}

// UpdateRole handles PATCH /members/:id/role.
func (h *Handler) UpdateRole(c *gin.Context) {
	id, ok := memberID(c)
	if !ok {
		return
	}
	var body UpdateRoleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "role required")
		return
	}
	m, err := h.repo(c).UpdateRole(c.Request.Context(), id, body.Role)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, m)
}

// Delete handles DELETE /members/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := memberID(c)
	if !ok {
		return
	}
	if err := h.repo(c).Delete(c.Request.Context(), id); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.NoContent(c)
}

// IssueToken handles POST /members/:id/token. The token carries the member's
// current role inside the caller's partition.
func (h *Handler) IssueToken(c *gin.Context) {
	id, ok := memberID(c)
	if !ok {
		return
	}
	m, err := h.repo(c).GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	caller := middleware.IdentityFrom(c)
	token, err := h.jwt.Generate(auth.MemberIdentity(caller.OrganizationID, caller.Partition, m))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.Created(c, TokenResponse{Token: token, Member: m})
}
