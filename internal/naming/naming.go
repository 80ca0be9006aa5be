// Package naming derives storage identifiers (partition schemas, event tables,
// notification channels) from organization and event display names.
package naming

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

const (
	// PartitionPrefix is prepended to every organization partition identifier.
	PartitionPrefix = "org_"
	// AttendanceSuffix is appended to an event's attendance table name.
	AttendanceSuffix = "_attendance"
	// VerificationSuffix is appended to an event's verification table name.
	VerificationSuffix = "_verification"
	// MaxIdentifierLen is PostgreSQL's identifier limit (NAMEDATALEN - 1).
	MaxIdentifierLen = 63
	// ChannelPrefix prefixes change-notification channel names.
	ChannelPrefix = "vf_"
)

// Sanitize lower-cases s, replaces every character outside [a-z0-9] with '_'
// and collapses runs of '_'. Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevUnderscore := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevUnderscore = false
			continue
		}
		if !prevUnderscore {
			b.WriteByte('_')
			prevUnderscore = true
		}
	}
	return b.String()
}

// OrganizationPartition returns the partition (schema) identifier for an organization name.
// It is computed once at signup and stored; renames never recompute it.
func OrganizationPartition(name string) string {
	return PartitionPrefix + Sanitize(name)
}

// AttendanceTable returns the attendance table name for an event name.
func AttendanceTable(eventName string) string {
	return Sanitize(eventName) + AttendanceSuffix
}

// VerificationTable returns the verification table name for an event name.
func VerificationTable(eventName string) string {
	return Sanitize(eventName) + VerificationSuffix
}

// AttendanceTableFor maps a verification table name to the attendance table of the same event.
func AttendanceTableFor(verificationTable string) string {
	return strings.TrimSuffix(verificationTable, VerificationSuffix) + AttendanceSuffix
}

// ChangeChannel returns the LISTEN/NOTIFY channel for a table. The provisioned
// trigger derives the same value with md5(schema || '.' || table).
func ChangeChannel(partition, table string) string {
	sum := md5.Sum([]byte(partition + "." + table))
	return ChannelPrefix + hex.EncodeToString(sum[:])
}

// ValidIdentifier reports whether s only holds sanitizer characters and fits
// PostgreSQL's identifier limit without truncation.
// Only identifiers passing this check are spliced into SQL.
func ValidIdentifier(s string) bool {
	if s == "" || len(s) > MaxIdentifierLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9') && c != '_' {
			return false
		}
	}
	return true
}

// IndexName returns the participant-id index name for a table, falling back to
// a hashed name when the readable form would exceed the identifier limit.
func IndexName(table string) string {
	name := table + "_pid_idx"
	if len(name) <= MaxIdentifierLen {
		return name
	}
	sum := md5.Sum([]byte(table))
	return "ix_" + hex.EncodeToString(sum[:])
}
