package models

// AttendanceStats summarizes one event's attendance and verification tables.
type AttendanceStats struct {
	TotalAttendees      int                  `json:"totalAttendees"`
	VerifiedCount       int                  `json:"verifiedCount"`
	DuplicateCount      int                  `json:"duplicateCount"`
	InvalidCount        int                  `json:"invalidCount"`
	VerificationRate    float64              `json:"verificationRate"`
	RecentVerifications []VerificationRecord `json:"recentVerifications"`
}

// EventStats is the reduced per-event summary.
type EventStats struct {
	TotalAttendees    int     `json:"totalAttendees"`
	VerifiedAttendees int     `json:"verifiedAttendees"`
	VerificationRate  float64 `json:"verificationRate"`
}
