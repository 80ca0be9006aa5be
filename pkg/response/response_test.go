package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-attendance/backend/internal/apperr"
)

func TestErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", apperr.Validation("name", "is required"), http.StatusBadRequest, "validation failed"},
		{"conflict", apperr.Conflict("email taken"), http.StatusConflict, "email taken"},
		{"not found", apperr.NotFound("event not found"), http.StatusNotFound, "event not found"},
		{"credentials", apperr.ErrInvalidCredentials, http.StatusUnauthorized, "invalid email or password"},
		{"transient", apperr.Transient(errors.New("dial tcp"), "execution gateway"), http.StatusServiceUnavailable, "storage temporarily unavailable"},
		{"provisioning", apperr.Provisioning(errors.New("denied"), "create schema"), http.StatusInternalServerError, "failed to provision storage"},
		{"storage missing", apperr.StorageMissing(errors.New(`relation "org_acme.attendance" does not exist`), "storage is not provisioned"), http.StatusInternalServerError, "storage is not provisioned"},
		{"conflict hides cause", &apperr.Error{Kind: apperr.KindConflict, Message: "value already exists", Err: errors.New(`duplicate key violates "attendance_pkey"`)}, http.StatusConflict, "value already exists"},
		{"plain", errors.New("secret detail"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			Error(c, nil, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body Body
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.msg, body.Error)
		})
	}
}

func TestErrorListsValidationFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	Error(c, nil, &apperr.ValidationError{Fields: []apperr.FieldError{{Field: "email", Message: "must be a valid email"}}})

	assert.JSONEq(t, `{"success":false,"error":"validation failed","fields":[{"field":"email","message":"must be a valid email"}]}`, w.Body.String())
}

func TestErrorWithDataKeepsPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	ErrorWithData(c, nil, apperr.Transient(errors.New("dial tcp"), "execution gateway"), map[string]int{"imported": 3})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"success":false,"data":{"imported":3},"error":"storage temporarily unavailable"}`, w.Body.String())
}
