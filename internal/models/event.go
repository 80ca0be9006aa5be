package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is an attendance event. Its table names are fixed at creation.
type Event struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	CreatedBy         *uuid.UUID `json:"createdBy,omitempty"`
	IsActive          bool       `json:"isActive"`
	EndedAt           *time.Time `json:"endedAt"`
	AttendanceTable   string     `json:"attendanceTable"`
	VerificationTable string     `json:"verificationTable"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// EventTables locates an event's tables inside a partition.
type EventTables struct {
	Partition    string `json:"partition"`
	Attendance   string `json:"attendanceTable"`
	Verification string `json:"verificationTable"`
}

// Tables returns the event's table locations within partition.
func (e *Event) Tables(partition string) EventTables {
	return EventTables{Partition: partition, Attendance: e.AttendanceTable, Verification: e.VerificationTable}
}
