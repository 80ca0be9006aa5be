package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aura-attendance/backend/internal/auth"
	"github.com/aura-attendance/backend/pkg/response"
)

const (
	// ContextIdentity is the key for the token's auth.Identity in gin context.
	ContextIdentity = "identity"
	// ContextPartition is the key for the caller's partition in gin context.
	ContextPartition = "partition"
)

// JWT returns a middleware that validates JWT and sets the caller's identity in context.
// Browsers cannot set headers on websocket upgrades, so a token query parameter is accepted too.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextIdentity, claims.Identity())
		c.Set(ContextPartition, claims.Partition)
		c.Next()
	}
}

func bearer(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		t := c.Query("token")
		return t, t != ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// IdentityFrom returns the identity set by JWT.
func IdentityFrom(c *gin.Context) auth.Identity {
	return c.MustGet(ContextIdentity).(auth.Identity)
}
