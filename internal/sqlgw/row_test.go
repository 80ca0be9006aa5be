package sqlgw

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRowGetters(t *testing.T) {
	id := uuid.New()
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	r := Row{
		"id_bytes": [16]byte(id),
		"id_str":   id.String(),
		"count":    int64(7),
		"json_num": float64(3),
		"active":   true,
		"at":       now,
		"at_json":  "2024-05-01T09:30:00+00:00",
		"null":     nil,
	}
	assert.Equal(t, id, r.UUID("id_bytes"))
	assert.Equal(t, id, r.UUID("id_str"))
	assert.Nil(t, r.UUIDPtr("null"))
	assert.Equal(t, 7, r.Int("count"))
	assert.Equal(t, 3, r.Int("json_num"))
	assert.True(t, r.Bool("active"))
	assert.True(t, now.Equal(r.Time("at")))
	assert.True(t, now.Equal(r.Time("at_json")))
	assert.Nil(t, r.TimePtr("null"))
	assert.Equal(t, "", r.String("missing"))
}
