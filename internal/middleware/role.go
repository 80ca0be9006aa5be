package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-attendance/backend/internal/auth"
	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		v, ok := c.Get(ContextIdentity)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		id, _ := v.(auth.Identity)
		if _, ok := allowed[id.Role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireManage allows roles that may create or modify events and members.
func RequireManage() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin, models.RoleManager)
}
