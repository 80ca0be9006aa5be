package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aura-attendance/backend/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is who a token speaks for: the organization account itself or one
// of its members, always bound to the organization's partition.
type Identity struct {
	OrganizationID uuid.UUID
	Partition      string
	SubjectID      uuid.UUID // organization id for the owner account, member id otherwise
	Email          string
	Role           models.Role
}

// Claims holds JWT claims including the organization partition and role.
type Claims struct {
	OrganizationID uuid.UUID   `json:"org_id"`
	Partition      string      `json:"partition"`
	Email          string      `json:"email"`
	Role           models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the identity carried by c.
func (c *Claims) Identity() Identity {
	sub, _ := uuid.Parse(c.Subject)
	return Identity{
		OrganizationID: c.OrganizationID,
		Partition:      c.Partition,
		SubjectID:      sub,
		Email:          c.Email,
		Role:           c.Role,
	}
}

// JWTService handles token generation and validation.
type JWTService struct {
	secret      []byte
	expireHours int
}

// NewJWTService creates a JWT service.
func NewJWTService(secret string, expireHours int) *JWTService {
	return &JWTService{
		secret:      []byte(secret),
		expireHours: expireHours,
	}
}

// Generate creates a new JWT for id.
func (s *JWTService) Generate(id Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		OrganizationID: id.OrganizationID,
		Partition:      id.Partition,
		Email:          id.Email,
		Role:           id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.SubjectID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a JWT, returning claims or error.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Partition == "" || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
