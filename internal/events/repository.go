// Package events stores event metadata and owns the lifecycle of each event's tables.
package events

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/apperr"
	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/internal/naming"
	"github.com/aura-attendance/backend/internal/schema"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/internal/telemetry"
	"github.com/aura-attendance/backend/internal/validation"
)

var columns = []string{
	"id", "name", "created_by", "is_active", "ended_at",
	"attendance_table", "verification_table", "created_at", "updated_at",
}

// CreateInput is the shape of a new event.
type CreateInput struct {
	Name      string     `json:"name" validate:"required,max=200,identname"`
	CreatedBy *uuid.UUID `json:"createdBy"`
}

// RenameInput changes an event's display name only.
type RenameInput struct {
	Name string `json:"name" validate:"required,max=200"`
}

// CreateResult is a created event plus non-fatal provisioning warnings.
type CreateResult struct {
	Event    *models.Event `json:"event"`
	Warnings []string      `json:"warnings,omitempty"`
}

// ListFilter narrows List; a nil Active lists every event.
type ListFilter struct {
	Active *bool
	Page   int
	Limit  int
}

// Repository handles event persistence for one partition.
type Repository struct {
	exec      sqlgw.Executor
	prov      *schema.Provisioner
	partition string
	logger    *zap.Logger
}

// NewRepository creates an events repository scoped to partition.
func NewRepository(exec sqlgw.Executor, prov *schema.Provisioner, partition string, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{exec: exec, prov: prov, partition: partition, logger: logger.With(zap.String("partition", partition))}
}

// Partition returns the partition the repository is scoped to.
func (r *Repository) Partition() string { return r.partition }

func scan(r sqlgw.Row) models.Event {
	return models.Event{
		ID:                r.UUID("id"),
		Name:              r.String("name"),
		CreatedBy:         r.UUIDPtr("created_by"),
		IsActive:          r.Bool("is_active"),
		EndedAt:           r.TimePtr("ended_at"),
		AttendanceTable:   r.String("attendance_table"),
		VerificationTable: r.String("verification_table"),
		CreatedAt:         r.Time("created_at"),
		UpdatedAt:         r.Time("updated_at"),
	}
}

// Create rejects a name whose tables already belong to another event, records
// the metadata row, then provisions the tables. If provisioning fails the row
// is deleted again.
func (r *Repository) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	attendance, verification := naming.AttendanceTable(name), naming.VerificationTable(name)

	existing, err := sqlgw.Query(ctx, r.exec,
		sqlgw.Select(r.partition, schema.EventsTable, "id").Where("attendance_table", attendance).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, apperr.Conflict("an event named %q already exists", name)
	}

	values := map[string]any{
		"name":               name,
		"is_active":          true,
		"attendance_table":   attendance,
		"verification_table": verification,
	}
	if in.CreatedBy != nil {
		values["created_by"] = *in.CreatedBy
	}
	row, err := sqlgw.QueryOne(ctx, r.exec,
		sqlgw.Insert(r.partition, schema.EventsTable, values).Returning(columns...), "event")
	if err != nil {
		return nil, err
	}
	ev := scan(row)

	prov, err := r.prov.CreateEventTables(ctx, r.partition, name)
	if err != nil {
		telemetry.CompensationsTotal.WithLabelValues("event").Inc()
		if _, derr := sqlgw.Query(ctx, r.exec,
			sqlgw.Delete(r.partition, schema.EventsTable).Where("id", ev.ID)); derr != nil {
			r.logger.Error("compensating event delete failed", zap.String("event_id", ev.ID.String()), zap.Error(derr))
		}
		return nil, err
	}
	r.logger.Info("event created", zap.String("event_id", ev.ID.String()), zap.String("name", ev.Name))
	return &CreateResult{Event: &ev, Warnings: prov.Warnings}, nil
}

// GetByID returns an event.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	row, err := sqlgw.QueryOne(ctx, r.exec,
		sqlgw.Select(r.partition, schema.EventsTable, columns...).Where("id", id), "event")
	if err != nil {
		return nil, err
	}
	ev := scan(row)
	return &ev, nil
}

// List returns a page of events, newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) (sqlgw.Page[models.Event], error) {
	q := sqlgw.Select(r.partition, schema.EventsTable, columns...).OrderBy("created_at", true)
	if f.Active != nil {
		q.Where("is_active", *f.Active)
	}
	page, err := sqlgw.Paginate(ctx, r.exec, q, f.Page, f.Limit)
	if err != nil {
		return sqlgw.Page[models.Event]{}, err
	}
	return sqlgw.MapPage(page, scan), nil
}

// Rename changes the display name. Table names stay as created and the new
// name is not checked for uniqueness.
func (r *Repository) Rename(ctx context.Context, id uuid.UUID, in RenameInput) (*models.Event, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	return r.update(ctx, id, sqlgw.Update(r.partition, schema.EventsTable,
		map[string]any{"name": strings.TrimSpace(in.Name)}))
}

// EndEvent marks the event ended in a single update.
func (r *Repository) EndEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return r.update(ctx, id, sqlgw.Update(r.partition, schema.EventsTable,
		map[string]any{"is_active": false}).SetNow("ended_at"))
}

// ReactivateEvent clears the end state in a single update.
func (r *Repository) ReactivateEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return r.update(ctx, id, sqlgw.Update(r.partition, schema.EventsTable,
		map[string]any{"is_active": true, "ended_at": nil}))
}

func (r *Repository) update(ctx context.Context, id uuid.UUID, q *sqlgw.UpdateQuery) (*models.Event, error) {
	row, err := sqlgw.QueryOne(ctx, r.exec, q.SetNow("updated_at").Where("id", id).Returning(columns...), "event")
	if err != nil {
		return nil, err
	}
	ev := scan(row)
	return &ev, nil
}

// Delete drops the event's tables, then deletes its row. A failed drop is
// logged and does not stop the row delete.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	ev, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := r.prov.DropTables(ctx, ev.Tables(r.partition)); err != nil {
		r.logger.Warn("event table drop failed", zap.String("event_id", id.String()), zap.Error(err))
	}
	if _, err := sqlgw.Query(ctx, r.exec, sqlgw.Delete(r.partition, schema.EventsTable).Where("id", id)); err != nil {
		return err
	}
	r.logger.Info("event deleted", zap.String("event_id", id.String()))
	return nil
}
