// Package stats computes attendance and verification figures for one event.
package stats

import (
	"context"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aura-attendance/backend/internal/attendance"
	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/internal/sqlgw"
)

// RecentLimit is how many recent verifications GetAttendanceStats returns.
const RecentLimit = 10

// Aggregator computes statistics over an event's tables.
type Aggregator struct {
	exec   sqlgw.Executor
	logger *zap.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(exec sqlgw.Executor, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{exec: exec, logger: logger}
}

// Rate returns verified/total as a percentage rounded to two decimals, or 0 when total is 0.
func Rate(verified, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(verified)/float64(total)*100*100) / 100
}

func (a *Aggregator) total(ctx context.Context, partition, attendanceTable string) (int, error) {
	stmt, err := sqlgw.Select(partition, attendanceTable).CountStatement()
	if err != nil {
		return 0, err
	}
	rows, err := a.exec.Execute(ctx, stmt.SQL, stmt.Params)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	return rows[0].Int("total"), nil
}

func (a *Aggregator) statusCounts(ctx context.Context, partition, verificationTable string) (map[models.VerificationStatus]int, error) {
	rows, err := sqlgw.Query(ctx, a.exec,
		sqlgw.Select(partition, verificationTable, "status").CountAs("count").GroupBy("status"))
	if err != nil {
		return nil, err
	}
	out := make(map[models.VerificationStatus]int, 3)
	for _, r := range rows {
		out[models.VerificationStatus(r.String("status"))] = r.Int("count")
	}
	return out, nil
}

// GetAttendanceStats returns totals, per-status counts, the verification rate
// and the most recent verifications. The three queries run concurrently and
// fail together.
func (a *Aggregator) GetAttendanceStats(ctx context.Context, partition, attendanceTable, verificationTable string) (*models.AttendanceStats, error) {
	var (
		total  int
		counts map[models.VerificationStatus]int
		recent []sqlgw.Row
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		total, err = a.total(gctx, partition, attendanceTable)
		return err
	})
	g.Go(func() (err error) {
		counts, err = a.statusCounts(gctx, partition, verificationTable)
		return err
	})
	g.Go(func() (err error) {
		recent, err = sqlgw.Query(gctx, a.exec,
			sqlgw.Select(partition, verificationTable, "id", "participant_id", "name", "status", "verified_at", "note").
				OrderBy("verified_at", true).Limit(RecentLimit))
		return err
	})
	if err := g.Wait(); err != nil {
		a.logger.Warn("attendance stats failed", zap.String("partition", partition),
			zap.String("verification_table", verificationTable), zap.Error(err))
		return nil, err
	}

	out := &models.AttendanceStats{
		TotalAttendees:      total,
		VerifiedCount:       counts[models.StatusVerified],
		DuplicateCount:      counts[models.StatusDuplicate],
		InvalidCount:        counts[models.StatusInvalid],
		RecentVerifications: make([]models.VerificationRecord, 0, len(recent)),
	}
	out.VerificationRate = Rate(out.VerifiedCount, total)
	for _, r := range recent {
		out.RecentVerifications = append(out.RecentVerifications, attendance.VerificationFromRow(r))
	}
	return out, nil
}

// GetEventStats returns total, verified and rate for one event's tables.
func (a *Aggregator) GetEventStats(ctx context.Context, partition, attendanceTable, verificationTable string) (*models.EventStats, error) {
	var (
		total  int
		counts map[models.VerificationStatus]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		total, err = a.total(gctx, partition, attendanceTable)
		return err
	})
	g.Go(func() (err error) {
		counts, err = a.statusCounts(gctx, partition, verificationTable)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	verified := counts[models.StatusVerified]
	return &models.EventStats{
		TotalAttendees:    total,
		VerifiedAttendees: verified,
		VerificationRate:  Rate(verified, total),
	}, nil
}

// ForEvent is GetAttendanceStats for t.
func (a *Aggregator) ForEvent(ctx context.Context, t models.EventTables) (*models.AttendanceStats, error) {
	return a.GetAttendanceStats(ctx, t.Partition, t.Attendance, t.Verification)
}
