// Package sqlgwtest provides a recording sqlgw.Executor for tests.
package sqlgwtest

import (
	"context"
	"strings"
	"sync"

	"github.com/aura-attendance/backend/internal/sqlgw"
)

// Call is one executed statement.
type Call struct {
	SQL    string
	Params map[string]any
}

// Handler answers a matched statement.
type Handler func(sql string, params map[string]any) ([]sqlgw.Row, error)

type rule struct {
	match string
	h     Handler
}

// Recorder records every statement and answers from rules matched by substring,
// first registered rule first. Unmatched statements return no rows.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	rules []rule
}

// New creates an empty recorder.
func New() *Recorder { return &Recorder{} }

// On registers h for statements containing substr.
func (r *Recorder) On(substr string, h Handler) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{match: substr, h: h})
	return r
}

// Return answers statements containing substr with rows.
func (r *Recorder) Return(substr string, rows ...sqlgw.Row) *Recorder {
	return r.On(substr, func(string, map[string]any) ([]sqlgw.Row, error) { return rows, nil })
}

// Fail answers statements containing substr with err.
func (r *Recorder) Fail(substr string, err error) *Recorder {
	return r.On(substr, func(string, map[string]any) ([]sqlgw.Row, error) { return nil, err })
}

// Execute implements sqlgw.Executor.
func (r *Recorder) Execute(_ context.Context, sql string, params map[string]any) ([]sqlgw.Row, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{SQL: sql, Params: params})
	var h Handler
	for _, ru := range r.rules {
		if strings.Contains(sql, ru.match) {
			h = ru.h
			break
		}
	}
	r.mu.Unlock()
	if h == nil {
		return nil, nil
	}
	return h(sql, params)
}

// Calls returns a copy of the executed statements in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Index returns the position of the first statement containing substr, or -1.
func (r *Recorder) Index(substr string) int {
	for i, c := range r.Calls() {
		if strings.Contains(c.SQL, substr) {
			return i
		}
	}
	return -1
}

// Count returns how many statements contained substr.
func (r *Recorder) Count(substr string) int {
	n := 0
	for _, c := range r.Calls() {
		if strings.Contains(c.SQL, substr) {
			n++
		}
	}
	return n
}
