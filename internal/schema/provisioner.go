// Package schema provisions and tears down per-organization partitions
// (PostgreSQL schemas) and per-event attendance/verification tables.
package schema

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/apperr"
	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/internal/naming"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/internal/telemetry"
)

const (
	// EventsTable and MembersTable are the core tables of every partition.
	EventsTable  = "events"
	MembersTable = "members"
)

// EventProvision is the outcome of CreateEventTables. Warnings lists steps
// (indexes, change trigger) that failed after both tables were created.
type EventProvision struct {
	models.EventTables
	Warnings []string `json:"warnings,omitempty"`
}

// Provisioner creates and drops partitions and event tables through an Executor.
// Each operation is a short sequence of independent statements, not a transaction.
type Provisioner struct {
	exec   sqlgw.Executor
	logger *zap.Logger
}

// NewProvisioner creates a provisioner.
func NewProvisioner(exec sqlgw.Executor, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{exec: exec, logger: logger}
}

func (p *Provisioner) run(ctx context.Context, sql string) error {
	_, err := p.exec.Execute(ctx, sql, nil)
	return err
}

func (p *Provisioner) fail(op string, err error, format string, args ...any) error {
	telemetry.ProvisioningFailuresTotal.WithLabelValues(op).Inc()
	p.logger.Error("provisioning failed", zap.String("operation", op), zap.Error(err))
	return apperr.Provisioning(err, format, args...)
}

// CreateOrganizationPartition derives the partition id from name, creates the
// schema and then its core tables. When the schema cannot be created no tables
// are attempted. Core-table failures are reported but not rolled back.
func (p *Provisioner) CreateOrganizationPartition(ctx context.Context, name string) (string, error) {
	partitionID := naming.OrganizationPartition(name)
	schemaIdent, err := sqlgw.Ident(partitionID)
	if err != nil || strings.Trim(naming.Sanitize(name), "_") == "" {
		return "", apperr.Validation("name", "cannot be turned into a storage partition")
	}
	exists, err := p.PartitionExists(ctx, partitionID)
	if err != nil {
		return "", err
	}
	if exists {
		return "", apperr.Conflict("partition %s already exists", partitionID)
	}
	if err := p.run(ctx, ddl(createSchemaSQL, schemaIdent)); err != nil {
		return "", p.fail("create_partition", err, "create partition %s", partitionID)
	}
	if err := p.createCoreTables(ctx, partitionID); err != nil {
		return partitionID, err
	}
	p.logger.Info("partition created", zap.String("partition", partitionID))
	return partitionID, nil
}

func (p *Provisioner) createCoreTables(ctx context.Context, partitionID string) error {
	schemaIdent, err := sqlgw.Ident(partitionID)
	if err != nil {
		return err
	}
	events, err := sqlgw.Qualified(partitionID, EventsTable)
	if err != nil {
		return err
	}
	members, err := sqlgw.Qualified(partitionID, MembersTable)
	if err != nil {
		return err
	}
	steps := []struct{ op, sql string }{
		{"create_events_table", ddl(createEventsSQL, events)},
		{"create_members_table", ddl(createMembersSQL, members)},
		{"create_notify_function", ddl(createNotifyFuncSQL, schemaIdent)},
	}
	for _, s := range steps {
		if err := p.run(ctx, s.sql); err != nil {
			return p.fail(s.op, err, "create core tables in %s", partitionID)
		}
	}
	return nil
}

// CreateEventTables derives both table names from eventName and creates them.
func (p *Provisioner) CreateEventTables(ctx context.Context, partitionID, eventName string) (EventProvision, error) {
	return p.createEventTables(ctx, partitionID, naming.AttendanceTable(eventName), naming.VerificationTable(eventName))
}

// createEventTables creates the attendance table, then the verification table
// referencing it, then one participant_id index per table and the change
// trigger. Index and trigger failures become warnings.
func (p *Provisioner) createEventTables(ctx context.Context, partitionID, attendance, verification string) (EventProvision, error) {
	out := EventProvision{EventTables: models.EventTables{
		Partition:    partitionID,
		Attendance:   attendance,
		Verification: verification,
	}}
	schemaIdent, err := sqlgw.Ident(partitionID)
	if err != nil {
		return out, apperr.Validation("partition", "invalid partition identifier")
	}
	att, err := sqlgw.Qualified(partitionID, attendance)
	if err != nil {
		return out, apperr.Validation("name", "event name is too long or has no letters or digits")
	}
	ver, err := sqlgw.Qualified(partitionID, verification)
	if err != nil {
		return out, apperr.Validation("name", "event name is too long or has no letters or digits")
	}
	attIdx, _ := sqlgw.Ident(naming.IndexName(attendance))
	verIdx, _ := sqlgw.Ident(naming.IndexName(verification))

	if err := p.run(ctx, ddl(createAttendanceSQL, att)); err != nil {
		return out, p.fail("create_attendance_table", err, "create attendance table %s", attendance)
	}
	if err := p.run(ctx, ddl(createVerificationSQL, ver, att)); err != nil {
		return out, p.fail("create_verification_table", err, "create verification table %s", verification)
	}

	optional := []struct{ op, sql string }{
		{"create_attendance_index", ddl(createIndexSQL, attIdx, att)},
		{"create_verification_index", ddl(createIndexSQL, verIdx, ver)},
		{"create_change_trigger", ddl(createTriggerSQL, ver, schemaIdent)},
	}
	for _, s := range optional {
		if err := p.run(ctx, s.sql); err != nil {
			telemetry.ProvisioningFailuresTotal.WithLabelValues(s.op).Inc()
			p.logger.Warn("partial provisioning", zap.String("operation", s.op),
				zap.String("partition", partitionID), zap.Error(err))
			out.Warnings = append(out.Warnings, s.op+" failed")
		}
	}
	p.logger.Info("event tables created",
		zap.String("partition", partitionID),
		zap.String("attendance_table", attendance),
		zap.String("verification_table", verification),
		zap.Int("warnings", len(out.Warnings)))
	return out, nil
}

// DropEventTables drops the verification table before the attendance table it references.
func (p *Provisioner) DropEventTables(ctx context.Context, partitionID, eventName string) error {
	return p.dropEventTables(ctx, partitionID, naming.AttendanceTable(eventName), naming.VerificationTable(eventName))
}

// DropTables drops an event's tables by their stored names.
func (p *Provisioner) DropTables(ctx context.Context, t models.EventTables) error {
	return p.dropEventTables(ctx, t.Partition, t.Attendance, t.Verification)
}

func (p *Provisioner) dropEventTables(ctx context.Context, partitionID, attendance, verification string) error {
	ver, err := sqlgw.Qualified(partitionID, verification)
	if err != nil {
		return err
	}
	att, err := sqlgw.Qualified(partitionID, attendance)
	if err != nil {
		return err
	}
	if err := p.run(ctx, ddl(dropTableSQL, ver)); err != nil {
		return p.fail("drop_verification_table", err, "drop verification table %s", verification)
	}
	if err := p.run(ctx, ddl(dropTableSQL, att)); err != nil {
		return p.fail("drop_attendance_table", err, "drop attendance table %s", attendance)
	}
	p.logger.Info("event tables dropped", zap.String("partition", partitionID), zap.String("attendance_table", attendance))
	return nil
}

// DropOrganizationPartition drops the partition and anything left inside it.
func (p *Provisioner) DropOrganizationPartition(ctx context.Context, partitionID string) error {
	schemaIdent, err := sqlgw.Ident(partitionID)
	if err != nil {
		return err
	}
	if err := p.run(ctx, ddl(dropSchemaSQL, schemaIdent)); err != nil {
		return p.fail("drop_partition", err, "drop partition %s", partitionID)
	}
	p.logger.Info("partition dropped", zap.String("partition", partitionID))
	return nil
}

// PartitionExists probes information_schema for the partition.
func (p *Provisioner) PartitionExists(ctx context.Context, partitionID string) (bool, error) {
	rows, err := sqlgw.Query(ctx, p.exec,
		sqlgw.Select("information_schema", "schemata", "schema_name").Where("schema_name", partitionID))
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// listTables returns the set of table names inside a partition.
func (p *Provisioner) listTables(ctx context.Context, partitionID string) (map[string]bool, error) {
	rows, err := sqlgw.Query(ctx, p.exec,
		sqlgw.Select("information_schema", "tables", "table_name").Where("table_schema", partitionID))
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(rows))
	for _, r := range rows {
		set[r.String("table_name")] = true
	}
	return set, nil
}

// EventTablesStatus reports which of an event's two tables exist.
func (p *Provisioner) EventTablesStatus(ctx context.Context, partitionID, eventName string) (attendance, verification bool, err error) {
	tables, err := p.listTables(ctx, partitionID)
	if err != nil {
		return false, false, err
	}
	return tables[naming.AttendanceTable(eventName)], tables[naming.VerificationTable(eventName)], nil
}

// EventTablesExist reports whether both of an event's tables exist.
func (p *Provisioner) EventTablesExist(ctx context.Context, partitionID, eventName string) (bool, error) {
	att, ver, err := p.EventTablesStatus(ctx, partitionID, eventName)
	return att && ver, err
}

// ReconcileReport describes what a Reconcile pass found and repaired.
type ReconcileReport struct {
	Partition        string   `json:"partition"`
	CreatedPartition bool     `json:"createdPartition"`
	RepairedCore     []string `json:"repairedCore,omitempty"`
	RepairedEvents   []string `json:"repairedEvents,omitempty"`
	OrphanTables     []string `json:"orphanTables,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
}

// Reconcile is the idempotent repair pass for partially provisioned state: it
// recreates a missing partition or core tables, recreates missing tables of
// existing events using their stored names, and reports event tables that no
// event row references. It never drops anything.
func (p *Provisioner) Reconcile(ctx context.Context, partitionID string) (*ReconcileReport, error) {
	report := &ReconcileReport{Partition: partitionID}
	schemaIdent, err := sqlgw.Ident(partitionID)
	if err != nil {
		return nil, err
	}
	exists, err := p.PartitionExists(ctx, partitionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := p.run(ctx, ddl(createSchemaSQL, schemaIdent)); err != nil {
			return nil, p.fail("create_partition", err, "recreate partition %s", partitionID)
		}
		report.CreatedPartition = true
	}

	tables, err := p.listTables(ctx, partitionID)
	if err != nil {
		return nil, err
	}
	for _, core := range []string{EventsTable, MembersTable} {
		if !tables[core] {
			report.RepairedCore = append(report.RepairedCore, core)
		}
	}
	if err := p.createCoreTables(ctx, partitionID); err != nil {
		return nil, err
	}

	rows, err := sqlgw.Query(ctx, p.exec,
		sqlgw.Select(partitionID, EventsTable, "name", "attendance_table", "verification_table"))
	if err != nil {
		return nil, err
	}
	referenced := make(map[string]bool, 2*len(rows))
	for _, r := range rows {
		att, ver := r.String("attendance_table"), r.String("verification_table")
		referenced[att], referenced[ver] = true, true
		if tables[att] && tables[ver] {
			continue
		}
		res, err := p.createEventTables(ctx, partitionID, att, ver)
		if err != nil {
			report.Warnings = append(report.Warnings, "repair "+r.String("name")+": "+err.Error())
			continue
		}
		report.RepairedEvents = append(report.RepairedEvents, r.String("name"))
		report.Warnings = append(report.Warnings, res.Warnings...)
	}
	for t := range tables {
		if referenced[t] {
			continue
		}
		if strings.HasSuffix(t, naming.AttendanceSuffix) || strings.HasSuffix(t, naming.VerificationSuffix) {
			report.OrphanTables = append(report.OrphanTables, t)
		}
	}
	p.logger.Info("partition reconciled",
		zap.String("partition", partitionID),
		zap.Bool("created_partition", report.CreatedPartition),
		zap.Strings("repaired_core", report.RepairedCore),
		zap.Strings("repaired_events", report.RepairedEvents),
		zap.Strings("orphan_tables", report.OrphanTables))
	return report, nil
}
