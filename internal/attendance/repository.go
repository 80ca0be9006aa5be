// Package attendance stores one event's expected participants and its
// append-only verification log.
package attendance

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/apperr"
	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/internal/validation"
)

var (
	attendeeColumns     = []string{"id", "participant_id", "name", "email", "created_at"}
	verificationColumns = []string{"id", "participant_id", "name", "status", "verified_at", "note"}
)

// AttendeeInput is the shape of one expected participant.
type AttendeeInput struct {
	ParticipantID string `json:"participantId" validate:"required,max=200"`
	Name          string `json:"name" validate:"required,max=200"`
	Email         string `json:"email" validate:"omitempty,email"`
	// Row is the 1-based source position used in import reports.
	Row int `json:"-"`
}

func (in AttendeeInput) normalized() AttendeeInput {
	in.ParticipantID = strings.TrimSpace(in.ParticipantID)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	return in
}

// VerificationFilter narrows ListVerifications.
type VerificationFilter struct {
	Status models.VerificationStatus
	Page   int
	Limit  int
}

// AttendeeFilter narrows ListAttendees; Search matches names case-insensitively.
type AttendeeFilter struct {
	Search string
	Page   int
	Limit  int
}

// Repository reads and writes one event's attendance and verification tables.
type Repository struct {
	exec   sqlgw.Executor
	tables models.EventTables
	logger *zap.Logger
}

// NewRepository creates a repository for the event tables t.
func NewRepository(exec sqlgw.Executor, t models.EventTables, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{exec: exec, tables: t, logger: logger.With(
		zap.String("partition", t.Partition), zap.String("attendance_table", t.Attendance))}
}

// Tables returns the event tables the repository operates on.
func (r *Repository) Tables() models.EventTables { return r.tables }

// AttendeeFromRow maps an attendance row.
func AttendeeFromRow(r sqlgw.Row) models.AttendanceRecord {
	return models.AttendanceRecord{
		ID:            r.UUID("id"),
		ParticipantID: r.String("participant_id"),
		Name:          r.String("name"),
		Email:         r.String("email"),
		CreatedAt:     r.Time("created_at"),
	}
}

// VerificationFromRow maps a verification row, either from the driver or
// decoded from a change-feed payload. Unknown columns are ignored.
func VerificationFromRow(r sqlgw.Row) models.VerificationRecord {
	return models.VerificationRecord{
		ID:            r.UUID("id"),
		Name:          r.String("name"),
		ParticipantID: r.String("participant_id"),
		Status:        models.VerificationStatus(r.String("status")),
		VerifiedAt:    r.Time("verified_at"),
		Note:          r.String("note"),
	}
}

// CreateAttendee adds one participant. A participant id already present is a conflict.
func (r *Repository) CreateAttendee(ctx context.Context, in AttendeeInput) (*models.AttendanceRecord, error) {
	in = in.normalized()
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	values := map[string]any{"participant_id": in.ParticipantID, "name": in.Name}
	if in.Email != "" {
		values["email"] = in.Email
	}
	row, err := sqlgw.QueryOne(ctx, r.exec,
		sqlgw.Insert(r.tables.Partition, r.tables.Attendance, values).Returning(attendeeColumns...), "attendee")
	if err != nil {
		if apperr.IsConflict(err) {
			return nil, apperr.Conflict("participant %s is already registered", in.ParticipantID)
		}
		return nil, err
	}
	rec := AttendeeFromRow(row)
	return &rec, nil
}

// FindAttendee returns the attendance row for participantID or a NotFound error.
func (r *Repository) FindAttendee(ctx context.Context, participantID string) (*models.AttendanceRecord, error) {
	row, err := sqlgw.QueryOne(ctx, r.exec,
		sqlgw.Select(r.tables.Partition, r.tables.Attendance, attendeeColumns...).
			Where("participant_id", participantID), "participant "+participantID)
	if err != nil {
		return nil, err
	}
	rec := AttendeeFromRow(row)
	return &rec, nil
}

// ListAttendees returns a page of attendees ordered by creation time.
func (r *Repository) ListAttendees(ctx context.Context, f AttendeeFilter) (sqlgw.Page[models.AttendanceRecord], error) {
	q := sqlgw.Select(r.tables.Partition, r.tables.Attendance, attendeeColumns...).OrderBy("created_at", false)
	if s := strings.TrimSpace(f.Search); s != "" {
		q.WhereOp("name", sqlgw.ILike, sqlgw.Contains(s))
	}
	page, err := sqlgw.Paginate(ctx, r.exec, q, f.Page, f.Limit)
	if err != nil {
		return sqlgw.Page[models.AttendanceRecord]{}, err
	}
	return sqlgw.MapPage(page, AttendeeFromRow), nil
}

// DeleteAttendee removes a participant. Their verification rows go with them.
func (r *Repository) DeleteAttendee(ctx context.Context, participantID string) error {
	_, err := sqlgw.QueryOne(ctx, r.exec,
		sqlgw.Delete(r.tables.Partition, r.tables.Attendance).
			Where("participant_id", participantID).Returning("id"), "participant "+participantID)
	if err == nil {
		r.logger.Info("attendee deleted", zap.String("participant_id", participantID))
	}
	return err
}

// LatestVerification returns the most recent verification row for
// participantID, or nil when there is none.
func (r *Repository) LatestVerification(ctx context.Context, participantID string) (*models.VerificationRecord, error) {
	rows, err := sqlgw.Query(ctx, r.exec,
		sqlgw.Select(r.tables.Partition, r.tables.Verification, verificationColumns...).
			Where("participant_id", participantID).
			OrderBy("verified_at", true).Limit(1))
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	rec := VerificationFromRow(rows[0])
	return &rec, nil
}

// CountVerifications returns how many verification rows exist for participantID.
func (r *Repository) CountVerifications(ctx context.Context, participantID string) (int, error) {
	stmt, err := sqlgw.Select(r.tables.Partition, r.tables.Verification).
		Where("participant_id", participantID).CountStatement()
	if err != nil {
		return 0, err
	}
	rows, err := r.exec.Execute(ctx, stmt.SQL, stmt.Params)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	return rows[0].Int("total"), nil
}

// AppendVerification inserts one verification log entry.
func (r *Repository) AppendVerification(ctx context.Context, a *models.AttendanceRecord, status models.VerificationStatus, note string) (*models.VerificationRecord, error) {
	values := map[string]any{
		"participant_id": a.ParticipantID,
		"name":           a.Name,
		"status":         string(status),
	}
	if note != "" {
		values["note"] = note
	}
	row, err := sqlgw.QueryOne(ctx, r.exec,
		sqlgw.Insert(r.tables.Partition, r.tables.Verification, values).Returning(verificationColumns...), "verification")
	if err != nil {
		return nil, err
	}
	rec := VerificationFromRow(row)
	return &rec, nil
}

// ListVerifications returns a page of the verification log, newest first.
func (r *Repository) ListVerifications(ctx context.Context, f VerificationFilter) (sqlgw.Page[models.VerificationRecord], error) {
	q := sqlgw.Select(r.tables.Partition, r.tables.Verification, verificationColumns...).OrderBy("verified_at", true)
	if f.Status != "" {
		if !f.Status.Valid() {
			return sqlgw.Page[models.VerificationRecord]{}, apperr.Validation("status", "must be one of: verified duplicate invalid")
		}
		q.Where("status", string(f.Status))
	}
	page, err := sqlgw.Paginate(ctx, r.exec, q, f.Page, f.Limit)
	if err != nil {
		return sqlgw.Page[models.VerificationRecord]{}, err
	}
	return sqlgw.MapPage(page, VerificationFromRow), nil
}

// ExportRow is one attendee with the status of their latest verification.
type ExportRow struct {
	models.AttendanceRecord
	LatestStatus models.VerificationStatus
	LastVerified *models.VerificationRecord
}

// ExportRows returns every attendee with their latest verification, if any.
func (r *Repository) ExportRows(ctx context.Context) ([]ExportRow, error) {
	attendees, err := sqlgw.Query(ctx, r.exec,
		sqlgw.Select(r.tables.Partition, r.tables.Attendance, attendeeColumns...).OrderBy("created_at", false))
	if err != nil {
		return nil, err
	}
	verifications, err := sqlgw.Query(ctx, r.exec,
		sqlgw.Select(r.tables.Partition, r.tables.Verification, verificationColumns...).OrderBy("verified_at", false))
	if err != nil {
		return nil, err
	}
	latest := make(map[string]models.VerificationRecord, len(verifications))
	for _, row := range verifications {
		v := VerificationFromRow(row)
		latest[v.ParticipantID] = v
	}
	out := make([]ExportRow, 0, len(attendees))
	for _, row := range attendees {
		e := ExportRow{AttendanceRecord: AttendeeFromRow(row)}
		if v, ok := latest[e.ParticipantID]; ok {
			e.LatestStatus = v.Status
			e.LastVerified = &v
		}
		out = append(out, e)
	}
	return out, nil
}
