// Package members stores organization members inside the organization's partition.
package members

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/apperr"
	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/internal/schema"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/internal/validation"
)

var columns = []string{"id", "name", "email", "role", "created_at", "updated_at"}

// CreateInput is the shape of a new member.
type CreateInput struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=admin manager viewer"`
}

// ListFilter narrows List; an empty Role lists every member.
type ListFilter struct {
	Role  models.Role
	Page  int
	Limit int
}

// Repository handles member persistence for one partition.
type Repository struct {
	exec      sqlgw.Executor
	partition string
	logger    *zap.Logger
}

// NewRepository creates a members repository scoped to partition.
func NewRepository(exec sqlgw.Executor, partition string, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{exec: exec, partition: partition, logger: logger.With(zap.String("partition", partition))}
}

func scan(r sqlgw.Row) models.Member {
	return models.Member{
		ID:        r.UUID("id"),
		Name:      r.String("name"),
		Email:     r.String("email"),
		Role:      models.Role(r.String("role")),
		CreatedAt: r.Time("created_at"),
		UpdatedAt: r.Time("updated_at"),
	}
}

// Create adds a member. Emails are unique within the partition.
func (r *Repository) Create(ctx context.Context, in CreateInput) (*models.Member, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	existing, err := sqlgw.Query(ctx, r.exec,
		sqlgw.Select(r.partition, schema.MembersTable, "id").Where("email", email).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, apperr.Conflict("a member with email %s already exists", email)
	}
	row, err := sqlgw.QueryOne(ctx, r.exec, sqlgw.Insert(r.partition, schema.MembersTable, map[string]any{
		"name":  strings.TrimSpace(in.Name),
		"email": email,
		"role":  in.Role,
	}).Returning(columns...), "member")
	if err != nil {
		if apperr.IsConflict(err) {
			return nil, apperr.Conflict("a member with email %s already exists", email)
		}
		return nil, err
	}
	m := scan(row)
	r.logger.Info("member created", zap.String("member_id", m.ID.String()), zap.String("role", string(m.Role)))
	return &m, nil
}

// GetByID returns a member.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	row, err := sqlgw.QueryOne(ctx, r.exec,
		sqlgw.Select(r.partition, schema.MembersTable, columns...).Where("id", id), "member")
	if err != nil {
		return nil, err
	}
	m := scan(row)
	return &m, nil
}

// GetByEmail returns a member by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Member, error) {
	row, err := sqlgw.QueryOne(ctx, r.exec,
		sqlgw.Select(r.partition, schema.MembersTable, columns...).Where("email", strings.ToLower(strings.TrimSpace(email))), "member")
	if err != nil {
		return nil, err
	}
	m := scan(row)
	return &m, nil
}

// List returns a page of members ordered by creation time.
func (r *Repository) List(ctx context.Context, f ListFilter) (sqlgw.Page[models.Member], error) {
	q := sqlgw.Select(r.partition, schema.MembersTable, columns...).OrderBy("created_at", false)
	if f.Role != "" {
		if !f.Role.Valid() {
			return sqlgw.Page[models.Member]{}, apperr.Validation("role", "must be one of: admin manager viewer")
		}
		q.Where("role", string(f.Role))
	}
	page, err := sqlgw.Paginate(ctx, r.exec, q, f.Page, f.Limit)
	if err != nil {
		return sqlgw.Page[models.Member]{}, err
	}
	return sqlgw.MapPage(page, scan), nil
}

// CountByRole returns the number of members per role; roles without members map to zero.
func (r *Repository) CountByRole(ctx context.Context) (map[models.Role]int, error) {
	rows, err := sqlgw.Query(ctx, r.exec,
		sqlgw.Select(r.partition, schema.MembersTable, "role").CountAs("count").GroupBy("role"))
	if err != nil {
		return nil, err
	}
	out := make(map[models.Role]int, len(models.Roles))
	for _, role := range models.Roles {
		out[role] = 0
	}
	for _, row := range rows {
		out[models.Role(row.String("role"))] = row.Int("count")
	}
	return out, nil
}

// UpdateRole changes a member's role.
func (r *Repository) UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) (*models.Member, error) {
	if !role.Valid() {
		return nil, apperr.Validation("role", "must be one of: admin manager viewer")
	}
	row, err := sqlgw.QueryOne(ctx, r.exec,
		sqlgw.Update(r.partition, schema.MembersTable, map[string]any{"role": string(role)}).
			SetNow("updated_at").Where("id", id).Returning(columns...), "member")
	if err != nil {
		return nil, err
	}
	m := scan(row)
	return &m, nil
}

// Delete removes a member.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := sqlgw.QueryOne(ctx, r.exec,
		sqlgw.Delete(r.partition, schema.MembersTable).Where("id", id).Returning("id"), "member")
	return err
}
