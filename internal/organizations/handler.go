package organizations

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/apperr"
	"github.com/aura-attendance/backend/internal/auth"
	"github.com/aura-attendance/backend/internal/middleware"
	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/pkg/queue"
	"github.com/aura-attendance/backend/pkg/response"
)

// Jobs is the slice of the job queue the organization endpoints use.
type Jobs interface {
	Enqueue(ctx context.Context, t queue.JobType, partition string, payload any) (*queue.Job, error)
	GetStatus(ctx context.Context, jobID string) (*queue.Status, error)
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// PasswordRequest is the body for PUT /organization/password.
type PasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	Token        string               `json:"token"`
	Organization *models.Organization `json:"organization"`
}

// Handler handles signup, login and the caller's own organization.
type Handler struct {
	repo   *Repository
	jwt    *auth.JWTService
	jobs   Jobs
	logger *zap.Logger
}

// NewHandler creates an organizations handler. jobs may be nil when no queue is configured.
func NewHandler(repo *Repository, jwt *auth.JWTService, jobs Jobs, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, jwt: jwt, jobs: jobs, logger: logger}
}

func (h *Handler) respondWithToken(c *gin.Context, status int, org *models.Organization) {
	token, err := h.jwt.Generate(auth.OwnerIdentity(org))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	c.JSON(status, response.Body{Success: true, Data: AuthResponse{Token: token, Organization: org}})
}

// Signup handles POST /auth/signup.
func (h *Handler) Signup(c *gin.Context) {
	var body CreateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	org, err := h.repo.Create(c.Request.Context(), body)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	h.respondWithToken(c, http.StatusCreated, org)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var body LoginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "email and password required")
		return
	}
	org, err := h.repo.VerifyCredential(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	h.respondWithToken(c, http.StatusOK, org)
}

// Get handles GET /organization.
func (h *Handler) Get(c *gin.Context) {
	org, err := h.repo.GetByID(c.Request.Context(), middleware.IdentityFrom(c).OrganizationID)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, org)
}

// Update handles PATCH /organization.
func (h *Handler) Update(c *gin.Context) {
	var body UpdateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	org, err := h.repo.Update(c.Request.Context(), middleware.IdentityFrom(c).OrganizationID, body)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, org)
}

// ChangePassword handles PUT /organization/password. Only the owner account may call it.
func (h *Handler) ChangePassword(c *gin.Context) {
	id := middleware.IdentityFrom(c)
	if !isOwner(id) {
		response.Forbidden(c, "only the organization owner can change the password")
		return
	}
	var body PasswordRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.repo.UpdatePassword(c.Request.Context(), id.OrganizationID, body.CurrentPassword, body.NewPassword); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.NoContent(c)
}

// Delete handles DELETE /organization. It drops the partition and everything in it.
func (h *Handler) Delete(c *gin.Context) {
	id := middleware.IdentityFrom(c)
	if !isOwner(id) {
		response.Forbidden(c, "only the organization owner can delete the organization")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id.OrganizationID); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.NoContent(c)
}

// Reconcile handles POST /organization/reconcile by queueing a repair of the caller's partition.
func (h *Handler) Reconcile(c *gin.Context) {
	if h.jobs == nil {
		response.ServiceUnavailable(c, "background jobs are not configured")
		return
	}
	id := middleware.IdentityFrom(c)
	job, err := h.jobs.Enqueue(c.Request.Context(), queue.JobTypePartitionReconcile, id.Partition,
		queue.ReconcilePayload{OrganizationID: id.OrganizationID, Partition: id.Partition})
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Accepted(c, gin.H{"jobId": job.ID})
}

// JobStatus handles GET /jobs/:id. Jobs of other partitions are reported as not found.
func (h *Handler) JobStatus(c *gin.Context) {
	if h.jobs == nil {
		response.ServiceUnavailable(c, "background jobs are not configured")
		return
	}
	st, err := h.jobs.GetStatus(c.Request.Context(), c.Param("id"))
	if errors.Is(err, queue.ErrUnknownJob) || (err == nil && st.Partition != middleware.IdentityFrom(c).Partition) {
		response.NotFound(c, "job not found")
		return
	}
	if err != nil {
		response.Error(c, h.logger, apperr.Transient(err, "job status"))
		return
	}
	response.OK(c, st)
}

func isOwner(id auth.Identity) bool {
	return id.SubjectID == id.OrganizationID
}
