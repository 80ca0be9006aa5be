package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization is a tenant. PartitionID is derived from the name at signup and never recomputed.
type Organization struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	PartitionID  string    `json:"partitionId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
