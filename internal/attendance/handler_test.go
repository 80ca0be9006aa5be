package attendance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-attendance/backend/internal/apperr"
	"github.com/aura-attendance/backend/internal/auth"
	"github.com/aura-attendance/backend/internal/middleware"
	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/internal/sqlgw/sqlgwtest"
)

func eventRouter(rec *sqlgwtest.Recorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(rec, nil)
	r := gin.New()
	g := r.Group("/events/:id", func(c *gin.Context) {
		c.Set(middleware.ContextIdentity, auth.Identity{Partition: "org_acme", Role: models.RoleAdmin})
		c.Set(middleware.ContextEvent, &models.Event{ID: uuid.New(), AttendanceTable: "gala_attendance", VerificationTable: "gala_verification"})
	})
	g.POST("/attendees/import", h.Import)
	g.GET("/verifications", h.ListVerifications)
	return r
}

type importBody struct {
	Data ImportResult `json:"data"`
}

func decodeImport(t *testing.T, w *httptest.ResponseRecorder) ImportResult {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var b importBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return b.Data
}

func TestImportEndpointCSVBody(t *testing.T) {
	rec := sqlgwtest.New().On(`INSERT INTO "org_acme"."gala_attendance"`, insertManyEcho())
	req := httptest.NewRequest(http.MethodPost, "/events/x/attendees/import", strings.NewReader("participant id,name\nP1,Ada\nP1,Ada again\n"))
	req.Header.Set("Content-Type", "text/csv")
	w := httptest.NewRecorder()
	eventRouter(rec).ServeHTTP(w, req)

	res := decodeImport(t, w)
	assert.Len(t, res.Imported, 1)
	require.Len(t, res.Duplicates, 1)
	assert.Equal(t, 2, res.Duplicates[0].Row)
}

func TestImportEndpointMultipart(t *testing.T) {
	rec := sqlgwtest.New().On(`INSERT INTO "org_acme"."gala_attendance"`, insertManyEcho())
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "list.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("id,name,email\nP1,Ada,ada@x.io\nP2,Grace,not-an-email\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/events/x/attendees/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	eventRouter(rec).ServeHTTP(w, req)

	res := decodeImport(t, w)
	assert.Len(t, res.Imported, 1)
	require.Len(t, res.Invalid, 1)
	assert.Equal(t, "P2", res.Invalid[0].ParticipantID)
}

func TestImportEndpointJSON(t *testing.T) {
	rec := sqlgwtest.New().On(`INSERT INTO "org_acme"."gala_attendance"`, insertManyEcho())
	req := httptest.NewRequest(http.MethodPost, "/events/x/attendees/import",
		strings.NewReader(`[{"participantId":"P1","name":"Ada"},{"participantId":"","name":"Nobody"}]`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	eventRouter(rec).ServeHTTP(w, req)

	res := decodeImport(t, w)
	assert.Len(t, res.Imported, 1)
	require.Len(t, res.Invalid, 1)
	assert.Equal(t, 2, res.Invalid[0].Row)
}

func TestImportEndpointReportsCommittedRowsOnFailure(t *testing.T) {
	echo := insertManyEcho()
	calls := 0
	rec := sqlgwtest.New().On(`INSERT INTO "org_acme"."gala_attendance"`, func(sql string, p map[string]any) ([]sqlgw.Row, error) {
		calls++
		if calls > 1 {
			return nil, apperr.Transient(errors.New("conn reset"), "execution gateway")
		}
		return echo(sql, p)
	})
	rows := make([]map[string]string, importChunk+5)
	for i := range rows {
		rows[i] = map[string]string{"participantId": fmt.Sprintf("P%d", i+1), "name": "Guest"}
	}
	payload, err := json.Marshal(rows)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/events/x/attendees/import", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	eventRouter(rec).ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Success bool         `json:"success"`
		Error   string       `json:"error"`
		Data    ImportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "storage temporarily unavailable", body.Error)
	assert.Len(t, body.Data.Imported, importChunk)
	require.Len(t, body.Data.Failed, 5)
	assert.Equal(t, importChunk+1, body.Data.Failed[0].Row)
}

func TestImportEndpointFailureWithNothingCommitted(t *testing.T) {
	rec := sqlgwtest.New().Fail("INSERT", apperr.Transient(errors.New("conn reset"), "execution gateway"))
	req := httptest.NewRequest(http.MethodPost, "/events/x/attendees/import",
		strings.NewReader(`[{"participantId":"P1","name":"Ada"}]`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	eventRouter(rec).ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), `"data"`)
}

func TestListVerificationsRejectsUnknownStatus(t *testing.T) {
	rec := sqlgwtest.New()
	req := httptest.NewRequest(http.MethodGet, "/events/x/verifications?status=maybe", nil)
	w := httptest.NewRecorder()
	eventRouter(rec).ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, rec.Calls())
}
