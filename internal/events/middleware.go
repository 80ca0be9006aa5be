package events

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/middleware"
	"github.com/aura-attendance/backend/internal/schema"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/pkg/response"
)

// Load resolves the :id path parameter to an event of the caller's partition
// and stores it under middleware.ContextEvent. Call after JWT.
func Load(exec sqlgw.Executor, prov *schema.Provisioner, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid event id")
			c.Abort()
			return
		}
		repo := NewRepository(exec, prov, middleware.IdentityFrom(c).Partition, logger)
		ev, err := repo.GetByID(c.Request.Context(), id)
		if err != nil {
			response.Error(c, logger, err)
			c.Abort()
			return
		}
		c.Set(middleware.ContextEvent, ev)
		c.Next()
	}
}
