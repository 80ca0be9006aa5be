package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-attendance/backend/internal/apperr"
)

type signupShape struct {
	Name     string `json:"name" validate:"required,identname"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=admin manager viewer"`
}

func TestStructValid(t *testing.T) {
	err := Struct(signupShape{Name: "Test Company", Email: "ops@test.co", Password: "longenough"})
	require.NoError(t, err)
}

func TestStructListsEveryField(t *testing.T) {
	err := Struct(signupShape{Name: "!!!", Email: "nope", Password: "short", Role: "owner"})
	require.Error(t, err)

	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	fields := map[string]string{}
	for _, f := range ve.Fields {
		fields[f.Field] = f.Message
	}
	assert.Len(t, fields, 4)
	assert.Contains(t, fields, "name")
	assert.Equal(t, "must be a valid email address", fields["email"])
	assert.Equal(t, "must be at least 8 characters", fields["password"])
	assert.Equal(t, "must be one of: admin manager viewer", fields["role"])
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestIdentNameLength(t *testing.T) {
	long := strings.Repeat("a", 51)
	err := Struct(signupShape{Name: long, Email: "a@b.co", Password: "longenough"})
	require.Error(t, err)

	ok := strings.Repeat("a", 50)
	require.NoError(t, Struct(signupShape{Name: ok, Email: "a@b.co", Password: "longenough"}))
}
