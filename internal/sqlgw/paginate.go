package sqlgw

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultLimit is used when a caller passes a non-positive limit.
	DefaultLimit = 50
	// MaxLimit caps page sizes.
	MaxLimit = 500
)

// Page is one page of a listing.
type Page[T any] struct {
	Data    []T  `json:"data"`
	Total   int  `json:"total"`
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"hasMore"`
}

// HasMore reports whether rows remain after a page starting at offset holding n rows.
func HasMore(offset, n, total int) bool {
	return offset+n < total
}

// NormalizePage clamps page to >= 1 and limit to (0, MaxLimit].
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// Paginate runs the data query and its count query concurrently. Both must
// succeed; the first error cancels the other and is returned.
func Paginate(ctx context.Context, exec Executor, q *SelectQuery, page, limit int) (Page[Row], error) {
	page, limit = NormalizePage(page, limit)
	offset := (page - 1) * limit

	dataStmt, err := q.Limit(limit).Offset(offset).Build()
	if err != nil {
		return Page[Row]{}, err
	}
	countStmt, err := q.CountStatement()
	if err != nil {
		return Page[Row]{}, err
	}

	var (
		data  []Row
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := exec.Execute(gctx, dataStmt.SQL, dataStmt.Params)
		data = rows
		return err
	})
	g.Go(func() error {
		rows, err := exec.Execute(gctx, countStmt.SQL, countStmt.Params)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			total = rows[0].Int("total")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Page[Row]{}, err
	}
	if data == nil {
		data = []Row{}
	}
	return Page[Row]{
		Data:    data,
		Total:   total,
		Page:    page,
		Limit:   limit,
		HasMore: HasMore(offset, len(data), total),
	}, nil
}

// MapPage converts a page of rows into a page of T.
func MapPage[T any](p Page[Row], fn func(Row) T) Page[T] {
	out := Page[T]{Data: make([]T, 0, len(p.Data)), Total: p.Total, Page: p.Page, Limit: p.Limit, HasMore: p.HasMore}
	for _, r := range p.Data {
		out.Data = append(out.Data, fn(r))
	}
	return out
}
