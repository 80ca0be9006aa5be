package sqlgw

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Row is one result row keyed by column name. Values arrive either from the
// driver or decoded from JSON (change feed), so the getters accept both shapes.
type Row map[string]any

// String returns the column as a string; missing or NULL yields "".
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the column as an int; counts come back as int64 from the driver
// and float64 from JSON.
func (r Row) Int(col string) int {
	switch v := r[col].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

// Bool returns the column as a bool.
func (r Row) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// Time returns the column as a time; unparsable or NULL yields the zero time.
func (r Row) Time(col string) time.Time {
	t := r.TimePtr(col)
	if t == nil {
		return time.Time{}
	}
	return *t
}

// TimePtr returns the column as a time, or nil when NULL.
func (r Row) TimePtr(col string) *time.Time {
	switch v := r[col].(type) {
	case time.Time:
		return &v
	case *time.Time:
		return v
	case pgtype.Timestamptz:
		if !v.Valid {
			return nil
		}
		return &v.Time
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999-07"} {
			if t, err := time.Parse(layout, v); err == nil {
				return &t
			}
		}
	}
	return nil
}

// UUID returns the column as a uuid; the driver yields [16]byte for uuid columns.
func (r Row) UUID(col string) uuid.UUID {
	switch v := r[col].(type) {
	case uuid.UUID:
		return v
	case [16]byte:
		return uuid.UUID(v)
	case []byte:
		if id, err := uuid.FromBytes(v); err == nil {
			return id
		}
	case pgtype.UUID:
		if v.Valid {
			return uuid.UUID(v.Bytes)
		}
	case string:
		if id, err := uuid.Parse(v); err == nil {
			return id
		}
	}
	return uuid.Nil
}

// UUIDPtr returns the column as a uuid, or nil when NULL or unparsable.
func (r Row) UUIDPtr(col string) *uuid.UUID {
	id := r.UUID(col)
	if id == uuid.Nil {
		return nil
	}
	return &id
}
