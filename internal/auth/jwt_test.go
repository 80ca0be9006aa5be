package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-attendance/backend/internal/models"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	id := Identity{
		OrganizationID: uuid.New(),
		Partition:      "org_acme",
		SubjectID:      uuid.New(),
		Email:          "door@acme.io",
		Role:           models.RoleViewer,
	}
	token, err := svc.Generate(id)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Identity())
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	token, err := NewJWTService("one", 1).Generate(Identity{Partition: "org_a", Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = NewJWTService("two", 1).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := NewJWTService("s", -1)
	token, err := svc.Generate(Identity{Partition: "org_a", Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsTokenWithoutPartition(t *testing.T) {
	svc := NewJWTService("s", 1)
	token, err := svc.Generate(Identity{Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
