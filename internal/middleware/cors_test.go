package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	assert.Equal(t, "*", ParseOrigins("").AllowOrigin("https://any.example"))
	assert.Equal(t, "*", ParseOrigins("*").AllowOrigin(""))

	p := ParseOrigins(" http://localhost:3000, https://door.example/ ")
	assert.Equal(t, "https://door.example", p.AllowOrigin("https://door.example"))
	assert.Equal(t, "http://localhost:3000", p.AllowOrigin("http://localhost:3000"))
	assert.Empty(t, p.AllowOrigin("https://evil.example"))
	assert.Empty(t, p.AllowOrigin(""))
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("https://door.example"))
	r.POST("/events/:id/scan", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodOptions, "/events/x/scan", nil)
	req.Header.Set("Origin", "https://door.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://door.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))

	req = httptest.NewRequest(http.MethodPost, "/events/x/scan", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
