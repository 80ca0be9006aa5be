// Package sqlgw builds parameterized statements scoped to a partition and
// executes them through a single execution entry point.
package sqlgw

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/apperr"
	"github.com/aura-attendance/backend/internal/telemetry"
)

// Executor is the remote execution contract: sql holds only sanitized
// identifiers and named placeholders, params binds every placeholder.
type Executor interface {
	Execute(ctx context.Context, sql string, params map[string]any) ([]Row, error)
}

// Query builds b and executes it.
func Query(ctx context.Context, exec Executor, b Builder) ([]Row, error) {
	stmt, err := b.Build()
	if err != nil {
		return nil, err
	}
	return exec.Execute(ctx, stmt.SQL, stmt.Params)
}

// QueryOne is Query returning the first row, or a NotFound error naming what.
func QueryOne(ctx context.Context, exec Executor, b Builder, what string) (Row, error) {
	rows, err := Query(ctx, exec, b)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("%s not found", what)
	}
	return rows[0], nil
}

// Gateway executes statements against PostgreSQL through a pgx pool.
type Gateway struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewGateway creates a pgx-backed gateway.
func NewGateway(pool *pgxpool.Pool, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{pool: pool, logger: logger}
}

// Pool exposes the underlying pool for components that need a dedicated connection.
func (g *Gateway) Pool() *pgxpool.Pool { return g.pool }

// Execute runs sql with params bound as pgx named arguments and collects every row as a map.
func (g *Gateway) Execute(ctx context.Context, sql string, params map[string]any) ([]Row, error) {
	start := time.Now()
	// Parameterless statements (DDL, probes) skip the prepared-statement cache.
	args := []any{pgx.QueryExecModeSimpleProtocol}
	if len(params) > 0 {
		args = []any{pgx.NamedArgs(params)}
	}
	rows, err := g.pool.Query(ctx, sql, args...)
	if err == nil {
		var maps []map[string]any
		maps, err = pgx.CollectRows(rows, pgx.RowToMap)
		if err == nil {
			telemetry.GatewayDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
			out := make([]Row, len(maps))
			for i, m := range maps {
				out[i] = Row(m)
			}
			return out, nil
		}
	}
	telemetry.GatewayDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
	mapped := classify(err)
	g.logger.Debug("statement failed", zap.String("sql", sql), zap.Error(err))
	return nil, mapped
}

// classify maps driver errors to the apperr taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return apperr.Transient(err, "execution gateway")
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return &apperr.Error{Kind: apperr.KindConflict, Message: "value already exists", Err: err}

	case pgerrcode.DuplicateSchema, pgerrcode.DuplicateTable, pgerrcode.DuplicateObject:
		return &apperr.Error{Kind: apperr.KindConflict, Message: "storage object already exists", Err: err}

	case pgerrcode.ForeignKeyViolation:
		return &apperr.Error{Kind: apperr.KindNotFound, Message: "referenced row does not exist", Err: err}

	case pgerrcode.UndefinedTable, pgerrcode.InvalidSchemaName:
		return apperr.StorageMissing(err, "storage is not provisioned")

	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation, pgerrcode.InvalidTextRepresentation,
		pgerrcode.StringDataRightTruncationDataException:
		field := pgErr.ColumnName
		if field == "" {
			field = pgErr.ConstraintName
		}
		return apperr.Validation(field, pgErr.Message)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected,
		pgerrcode.ConnectionException, pgerrcode.ConnectionDoesNotExist, pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow, pgerrcode.SQLClientUnableToEstablishSQLConnection,
		pgerrcode.AdminShutdown, pgerrcode.CrashShutdown, pgerrcode.QueryCanceled,
		pgerrcode.InsufficientResources, pgerrcode.DiskFull, pgerrcode.OutOfMemory, pgerrcode.TooManyConnections:
		return apperr.Transient(err, "execution gateway")

	default:
		return fmt.Errorf("postgres error [%s]: %s (detail: %s, hint: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
}
