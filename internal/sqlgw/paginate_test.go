package sqlgw_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/internal/sqlgw/sqlgwtest"
)

func rowsN(n int) []sqlgw.Row {
	out := make([]sqlgw.Row, n)
	for i := range out {
		out[i] = sqlgw.Row{"id": fmt.Sprint(i)}
	}
	return out
}

func TestHasMore(t *testing.T) {
	assert.False(t, sqlgw.HasMore(0, 50, 50))
	assert.True(t, sqlgw.HasMore(0, 50, 51))
	assert.False(t, sqlgw.HasMore(50, 1, 51))
	assert.False(t, sqlgw.HasMore(0, 0, 0))
}

func TestPaginateBoundary(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		hasMore bool
	}{
		{"exact page", 50, false},
		{"one more row", 51, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := sqlgwtest.New().
				Return("COUNT(*) AS total", sqlgw.Row{"total": int64(tt.total)}).
				Return("LIMIT", rowsN(50)...)

			page, err := sqlgw.Paginate(context.Background(), rec, sqlgw.Select("org_acme", "members"), 1, 50)
			require.NoError(t, err)
			assert.Equal(t, tt.total, page.Total)
			assert.Equal(t, 1, page.Page)
			assert.Equal(t, 50, page.Limit)
			assert.Len(t, page.Data, 50)
			assert.Equal(t, tt.hasMore, page.HasMore)
			assert.Equal(t, 2, len(rec.Calls()))
		})
	}
}

func TestPaginateOffset(t *testing.T) {
	rec := sqlgwtest.New().
		Return("COUNT(*) AS total", sqlgw.Row{"total": int64(120)}).
		Return("LIMIT", rowsN(20)...)

	page, err := sqlgw.Paginate(context.Background(), rec, sqlgw.Select("org_acme", "members"), 3, 50)
	require.NoError(t, err)
	assert.False(t, page.HasMore)

	var data sqlgwtest.Call
	for _, c := range rec.Calls() {
		if c.Params["p2"] != nil {
			data = c
		}
	}
	assert.Equal(t, 100, data.Params["p2"])
}

func TestPaginateFailsTogether(t *testing.T) {
	boom := errors.New("count failed")
	rec := sqlgwtest.New().
		Fail("COUNT(*) AS total", boom).
		Return("LIMIT", rowsN(5)...)

	page, err := sqlgw.Paginate(context.Background(), rec, sqlgw.Select("org_acme", "members"), 1, 50)
	require.ErrorIs(t, err, boom)
	assert.Nil(t, page.Data)
}

func TestNormalizePage(t *testing.T) {
	p, l := sqlgw.NormalizePage(0, 0)
	assert.Equal(t, 1, p)
	assert.Equal(t, sqlgw.DefaultLimit, l)
	_, l = sqlgw.NormalizePage(2, 10_000)
	assert.Equal(t, sqlgw.MaxLimit, l)
}
