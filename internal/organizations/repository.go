package organizations

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/aura-attendance/backend/pkg/utils"
)

const (
	globalSchema = "public"
	table        = "organizations"
)

var columns = []string{"id", "name", "email", "password_hash", "partition_id", "created_at", "updated_at"}

// CreateInput is the signup shape.
type CreateInput struct {
	Name     string `json:"name" validate:"required,max=200,identname"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// UpdateInput changes display fields. The partition is never recomputed.
type UpdateInput struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=200"`
	Email *string `json:"email" validate:"omitempty,email"`
}

// Repository handles organization persistence in the global table and owns
// the lifecycle of each organization's partition.
type Repository struct {
	exec   sqlgw.Executor
	prov   *schema.Provisioner
	logger *zap.Logger
}

// NewRepository creates an organizations repository.
func NewRepository(exec sqlgw.Executor, prov *schema.Provisioner, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{exec: exec, prov: prov, logger: logger}
}

func scan(r sqlgw.Row) *models.Organization {
	return &models.Organization{
		ID:           r.UUID("id"),
		Name:         r.String("name"),
		Email:        r.String("email"),
		PasswordHash: r.String("password_hash"),
		PartitionID:  r.String("partition_id"),
		CreatedAt:    r.Time("created_at"),
		UpdatedAt:    r.Time("updated_at"),
	}
}

// Create checks email uniqueness, stores the organization with a bcrypt hash
// of the password, then provisions its partition. If provisioning fails the
// organization row is deleted again.
func (r *Repository) Create(ctx context.Context, in CreateInput) (*models.Organization, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)

	if _, err := r.GetByEmail(ctx, in.Email); err == nil {
		return nil, apperr.Conflict("an organization with email %s already exists", in.Email)
	} else if !apperr.IsNotFound(err) {
		return nil, err
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	row, err := sqlgw.QueryOne(ctx, r.exec, sqlgw.Insert(globalSchema, table, map[string]any{
		"name":          in.Name,
		"email":         in.Email,
		"password_hash": hash,
		"partition_id":  naming.OrganizationPartition(in.Name),
	}).Returning(columns...), "organization")
	if err != nil {
		if apperr.IsConflict(err) {
			return nil, apperr.Conflict("an organization with this name or email already exists")
		}
		return nil, err
	}
	org := scan(row)

	if _, err := r.prov.CreateOrganizationPartition(ctx, in.Name); err != nil {
		telemetry.CompensationsTotal.WithLabelValues("organization").Inc()
		if _, derr := sqlgw.Query(ctx, r.exec, sqlgw.Delete(globalSchema, table).Where("id", org.ID)); derr != nil {
			r.logger.Error("compensating organization delete failed",
				zap.String("organization_id", org.ID.String()), zap.Error(derr))
		}
		return nil, err
	}
	r.logger.Info("organization created",
		zap.String("organization_id", org.ID.String()),
		zap.String("partition", org.PartitionID))
	return org, nil
}

// GetByID returns an organization by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	row, err := sqlgw.QueryOne(ctx, r.exec,
		sqlgw.Select(globalSchema, table, columns...).Where("id", id), "organization")
	if err != nil {
		return nil, err
	}
	return scan(row), nil
}

// GetByEmail returns an organization by its login email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Organization, error) {
	row, err := sqlgw.QueryOne(ctx, r.exec,
		sqlgw.Select(globalSchema, table, columns...).Where("email", strings.ToLower(strings.TrimSpace(email))), "organization")
	if err != nil {
		return nil, err
	}
	return scan(row), nil
}

// VerifyCredential fetches by email and compares password against the stored hash.
// Unknown emails and wrong passwords both yield apperr.ErrInvalidCredentials.
func (r *Repository) VerifyCredential(ctx context.Context, email, password string) (*models.Organization, error) {
	org, err := r.GetByEmail(ctx, email)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, err
	}
	if !utils.CheckPassword(password, org.PasswordHash) {
		return nil, apperr.ErrInvalidCredentials
	}
	return org, nil
}

// Update changes the display name and/or email.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*models.Organization, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	set := map[string]any{}
	if in.Name != nil {
		set["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		set["email"] = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if len(set) == 0 {
		return r.GetByID(ctx, id)
	}
	row, err := sqlgw.QueryOne(ctx, r.exec,
		sqlgw.Update(globalSchema, table, set).SetNow("updated_at").Where("id", id).Returning(columns...), "organization")
	if err != nil {
		if apperr.IsConflict(err) {
			return nil, apperr.Conflict("email is already in use")
		}
		return nil, err
	}
	return scan(row), nil
}

// UpdatePassword replaces the credential hash after checking the current password.
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	if err := validation.Struct(struct {
		Current string `json:"currentPassword" validate:"required"`
		Next    string `json:"newPassword" validate:"required,min=8,max=72"`
	}{current, next}); err != nil {
		return err
	}
	org, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(current, org.PasswordHash) {
		return apperr.ErrInvalidCredentials
	}
	hash, err := utils.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = sqlgw.QueryOne(ctx, r.exec,
		sqlgw.Update(globalSchema, table, map[string]any{"password_hash": hash}).
			SetNow("updated_at").Where("id", id).Returning("id"), "organization")
	return err
}

// Delete tears the organization down: every event's tables, then the
// partition, then the organization row. Event-table drop failures are logged;
// the partition drop cascades over anything left behind.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	org, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	rows, err := sqlgw.Query(ctx, r.exec,
		sqlgw.Select(org.PartitionID, schema.EventsTable, "attendance_table", "verification_table"))
	if err != nil && !apperr.IsNotFound(err) && !apperr.IsStorageMissing(err) {
		return err
	}
	for _, row := range rows {
		t := models.EventTables{
			Partition:    org.PartitionID,
			Attendance:   row.String("attendance_table"),
			Verification: row.String("verification_table"),
		}
		if derr := r.prov.DropTables(ctx, t); derr != nil {
			r.logger.Warn("event table drop failed during organization teardown",
				zap.String("partition", org.PartitionID), zap.String("attendance_table", t.Attendance), zap.Error(derr))
		}
	}
	if err := r.prov.DropOrganizationPartition(ctx, org.PartitionID); err != nil {
		return err
	}
	_, err = sqlgw.Query(ctx, r.exec, sqlgw.Delete(globalSchema, table).Where("id", id))
	if err != nil {
		return err
	}
	r.logger.Info("organization deleted", zap.String("organization_id", id.String()), zap.String("partition", org.PartitionID))
	return nil
}

// IsInvalidCredentials reports whether err is a credential mismatch.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, apperr.ErrInvalidCredentials)
}
