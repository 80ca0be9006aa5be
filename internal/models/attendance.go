package models

import (
	"time"

	"github.com/google/uuid"
)

// VerificationStatus tags one verification log entry.
type VerificationStatus string

const (
	StatusVerified  VerificationStatus = "verified"
	StatusDuplicate VerificationStatus = "duplicate"
	// StatusInvalid is only written by administrative marking.
	StatusInvalid VerificationStatus = "invalid"
)

// Valid reports whether s is a known status.
func (s VerificationStatus) Valid() bool {
	return s == StatusVerified || s == StatusDuplicate || s == StatusInvalid
}

// AttendanceRecord is one expected participant of an event.
type AttendanceRecord struct {
	ID            uuid.UUID `json:"id"`
	ParticipantID string    `json:"participantId"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// VerificationRecord is an append-only log entry for one scan attempt.
type VerificationRecord struct {
	ID            uuid.UUID          `json:"id"`
	Name          string             `json:"name"`
	ParticipantID string             `json:"participantId"`
	Status        VerificationStatus `json:"status"`
	VerifiedAt    time.Time          `json:"verifiedAt"`
	Note          string             `json:"note,omitempty"`
}

// ParticipantState is derived from the verification log, never stored.
type ParticipantState string

const (
	StateUnknown   ParticipantState = "unknown"
	StatePending   ParticipantState = "pending"
	StateConfirmed ParticipantState = "confirmed"
)
