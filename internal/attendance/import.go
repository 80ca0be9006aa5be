package attendance

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/apperr"
	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/internal/validation"
)

// importChunk bounds rows per INSERT so the statement stays under the
// protocol's 65535 bind parameters.
const importChunk = 1000

// RowIssue reports why one import row was not imported.
type RowIssue struct {
	Row           int    `json:"row"`
	ParticipantID string `json:"participantId,omitempty"`
	Reason        string `json:"reason"`
}

// ImportResult splits a batch into imported rows, duplicates and malformed rows.
type ImportResult struct {
	Imported   []models.AttendanceRecord `json:"imported"`
	Duplicates []RowIssue                `json:"duplicates"`
	Invalid    []RowIssue                `json:"invalid"`
	// Failed lists valid rows left unwritten when storage failed mid-batch.
	Failed []RowIssue `json:"failed,omitempty"`
}

// BulkImport validates every row on its own and inserts the valid ones.
// Rows repeating a participant id, within the batch or already stored, land
// in Duplicates; rows failing validation land in Invalid. Neither aborts the batch.
// A storage failure stops the batch; the result returned with the error holds
// the chunks already committed and lists the rest in Failed.
func (r *Repository) BulkImport(ctx context.Context, rows []AttendeeInput) (*ImportResult, error) {
	res := &ImportResult{
		Imported:   []models.AttendanceRecord{},
		Duplicates: []RowIssue{},
		Invalid:    []RowIssue{},
	}
	seen := make(map[string]bool, len(rows))
	valid := make([]AttendeeInput, 0, len(rows))
	for i, in := range rows {
		in = in.normalized()
		if in.Row == 0 {
			in.Row = i + 1
		}
		if err := validation.Struct(in); err != nil {
			res.Invalid = append(res.Invalid, RowIssue{Row: in.Row, ParticipantID: in.ParticipantID, Reason: reason(err)})
			continue
		}
		if seen[in.ParticipantID] {
			res.Duplicates = append(res.Duplicates, RowIssue{Row: in.Row, ParticipantID: in.ParticipantID, Reason: "duplicate participant id in batch"})
			continue
		}
		seen[in.ParticipantID] = true
		valid = append(valid, in)
	}

	for start := 0; start < len(valid); start += importChunk {
		chunk := valid[start:min(start+importChunk, len(valid))]
		values := make([][]any, len(chunk))
		for i, in := range chunk {
			var email any
			if in.Email != "" {
				email = in.Email
			}
			values[i] = []any{in.ParticipantID, in.Name, email}
		}
		inserted, err := sqlgw.Query(ctx, r.exec,
			sqlgw.InsertMany(r.tables.Partition, r.tables.Attendance, []string{"participant_id", "name", "email"}, values).
				OnConflictDoNothing("participant_id").
				Returning(attendeeColumns...))
		if err != nil {
			for _, in := range valid[start:] {
				res.Failed = append(res.Failed, RowIssue{Row: in.Row, ParticipantID: in.ParticipantID, Reason: "not written"})
			}
			r.logger.Warn("attendee import stopped",
				zap.Int("imported", len(res.Imported)),
				zap.Int("failed", len(res.Failed)),
				zap.Error(err))
			return res, fmt.Errorf("import rows %d-%d: %w", chunk[0].Row, chunk[len(chunk)-1].Row, err)
		}
		stored := make(map[string]bool, len(inserted))
		for _, row := range inserted {
			rec := AttendeeFromRow(row)
			stored[rec.ParticipantID] = true
			res.Imported = append(res.Imported, rec)
		}
		for _, in := range chunk {
			if !stored[in.ParticipantID] {
				res.Duplicates = append(res.Duplicates, RowIssue{Row: in.Row, ParticipantID: in.ParticipantID, Reason: "participant id already registered"})
			}
		}
	}
	r.logger.Info("attendees imported",
		zap.Int("imported", len(res.Imported)),
		zap.Int("duplicates", len(res.Duplicates)),
		zap.Int("invalid", len(res.Invalid)))
	return res, nil
}

func reason(err error) string {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		parts := make([]string, 0, len(ve.Fields))
		for _, f := range ve.Fields {
			parts = append(parts, f.Field+" "+f.Message)
		}
		return strings.Join(parts, "; ")
	}
	return err.Error()
}

var headerAliases = map[string]string{
	"participantid": "participant_id",
	"participant":   "participant_id",
	"id":            "participant_id",
	"ticket":        "participant_id",
	"ticketid":      "participant_id",
	"name":          "name",
	"fullname":      "name",
	"email":         "email",
	"emailaddress":  "email",
}

func headerKey(h string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(strings.TrimSpace(h)) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	return headerAliases[b.String()]
}

// ParseCSV reads a header row naming at least the participant id and name
// columns, then one attendee per record. Records the reader cannot parse are
// returned as issues; short records come back with empty fields so that
// validation reports them.
func ParseCSV(src io.Reader) ([]AttendeeInput, []RowIssue, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, apperr.Validation("file", "is empty")
	}
	if err != nil {
		return nil, nil, apperr.Validation("file", "header row cannot be parsed")
	}
	index := map[string]int{}
	for i, h := range header {
		if k := headerKey(h); k != "" {
			if _, dup := index[k]; !dup {
				index[k] = i
			}
		}
	}
	if _, ok := index["participant_id"]; !ok {
		return nil, nil, apperr.Validation("file", "header must include a participant id column")
	}
	if _, ok := index["name"]; !ok {
		return nil, nil, apperr.Validation("file", "header must include a name column")
	}

	cell := func(rec []string, key string) string {
		i, ok := index[key]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}
	var (
		rows   []AttendeeInput
		issues []RowIssue
	)
	for n := 1; ; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				issues = append(issues, RowIssue{Row: n, Reason: pe.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		rows = append(rows, AttendeeInput{
			ParticipantID: cell(rec, "participant_id"),
			Name:          cell(rec, "name"),
			Email:         cell(rec, "email"),
			Row:           n,
		})
	}
	return rows, issues, nil
}

// ImportCSV parses src and imports its rows; unparsable records join Invalid.
func (r *Repository) ImportCSV(ctx context.Context, src io.Reader) (*ImportResult, error) {
	rows, issues, err := ParseCSV(src)
	if err != nil {
		return nil, err
	}
	res, err := r.BulkImport(ctx, rows)
	if res != nil && len(issues) > 0 {
		res.Invalid = append(issues, res.Invalid...)
	}
	return res, err
}
