package members

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-attendance/backend/internal/auth"
	"github.com/aura-attendance/backend/internal/middleware"
	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/internal/sqlgw/sqlgwtest"
)

var jwtSvc = auth.NewJWTService("test", 1)

func serve(t *testing.T, rec *sqlgwtest.Recorder, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(rec, jwtSvc, nil)
	r := gin.New()
	api := r.Group("", middleware.JWT(jwtSvc))
	api.GET("/members/counts", h.Counts)
	api.POST("/members/:id/token", middleware.RequireRole(models.RoleAdmin), h.IssueToken)
	api.DELETE("/members/:id", middleware.RequireManage(), h.Delete)

	tok, err := jwtSvc.Generate(auth.Identity{OrganizationID: uuid.New(), Partition: "org_acme", SubjectID: uuid.New(), Role: models.RoleAdmin})
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIssueTokenCarriesMemberRole(t *testing.T) {
	id := uuid.New()
	rec := sqlgwtest.New().Return(`FROM "org_acme"."members" WHERE "id"`,
		sqlgw.Row{"id": id, "name": "Door 1", "email": "door1@acme.io", "role": "viewer"})

	w := serve(t, rec, http.MethodPost, "/members/"+id.String()+"/token", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body struct {
		Data TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	claims, err := jwtSvc.Validate(body.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, claims.Role)
	assert.Equal(t, "org_acme", claims.Partition)
	assert.Equal(t, id.String(), claims.Subject)
}

func TestCountsEndpoint(t *testing.T) {
	rec := sqlgwtest.New().Return(`GROUP BY`, sqlgw.Row{"role": "manager", "count": int64(2)})
	w := serve(t, rec, http.MethodGet, "/members/counts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"admin":0,"manager":2,"viewer":0}}`, w.Body.String())
}

func TestDeleteUnknownMember(t *testing.T) {
	w := serve(t, sqlgwtest.New(), http.MethodDelete, "/members/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = serve(t, sqlgwtest.New(), http.MethodDelete, "/members/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
