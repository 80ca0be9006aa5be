package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// OriginPolicy decides which browser origins may call the API.
type OriginPolicy struct {
	any     bool
	origins map[string]bool
}

// ParseOrigins reads "*" or a comma-separated origin list (e.g. "http://localhost:3000,https://door.example").
// An empty list allows any origin.
func ParseOrigins(s string) OriginPolicy {
	p := OriginPolicy{origins: make(map[string]bool)}
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			p.origins[o] = true
		}
	}
	p.any = len(p.origins) == 0 || p.origins["*"]
	return p
}

// AllowOrigin returns the Access-Control-Allow-Origin value for origin, or "" to refuse it.
func (p OriginPolicy) AllowOrigin(origin string) string {
	switch {
	case p.any:
		return "*"
	case origin != "" && p.origins[origin]:
		return origin
	}
	return ""
}

// CORS sets CORS headers for cross-origin requests and answers preflights.
func CORS(allowedOrigins string) gin.HandlerFunc {
	policy := ParseOrigins(allowedOrigins)
	return func(c *gin.Context) {
		if allow := policy.AllowOrigin(c.GetHeader("Origin")); allow != "" {
			c.Header("Access-Control-Allow-Origin", allow)
			if allow != "*" {
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "86400")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
