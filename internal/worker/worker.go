// Package worker runs the attendance background jobs: report export to S3
// and partition reconciliation.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/attendance"
	"github.com/aura-attendance/backend/internal/events"
	"github.com/aura-attendance/backend/internal/schema"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/pkg/queue"
	"github.com/aura-attendance/backend/pkg/storage"
)

// JobSource is the queue the processor drains.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (bool, error)
	SetStatus(ctx context.Context, s queue.Status) error
}

// ReportStore receives exported reports.
type ReportStore interface {
	UploadReport(ctx context.Context, key string, body io.Reader) (string, error)
	PresignReport(ctx context.Context, key string) (string, error)
}

// ExportResult is recorded on a finished export job.
type ExportResult struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Rows int    `json:"rows"`
}

// Processor executes queued jobs.
type Processor struct {
	exec    sqlgw.Executor
	prov    *schema.Provisioner
	reports ReportStore
	queue   JobSource
	logger  *zap.Logger
	now     func() time.Time
}

// NewProcessor creates a job processor. reports may be nil, in which case
// export jobs fail permanently.
func NewProcessor(exec sqlgw.Executor, prov *schema.Provisioner, reports ReportStore, q JobSource, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{exec: exec, prov: prov, reports: reports, queue: q, logger: logger, now: time.Now}
}

// Process executes one job and returns its result document.
func (p *Processor) Process(ctx context.Context, job *queue.Job) (any, error) {
	switch job.Type {
	case queue.JobTypeAttendanceExport:
		var payload queue.ExportPayload
		if err := job.Decode(&payload); err != nil {
			return nil, err
		}
		return p.export(ctx, payload)
	case queue.JobTypePartitionReconcile:
		var payload queue.ReconcilePayload
		if err := job.Decode(&payload); err != nil {
			return nil, err
		}
		return p.prov.Reconcile(ctx, payload.Partition)
	default:
		return nil, fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) export(ctx context.Context, payload queue.ExportPayload) (*ExportResult, error) {
	if p.reports == nil {
		return nil, fmt.Errorf("report storage is not configured")
	}
	ev, err := events.NewRepository(p.exec, p.prov, payload.Partition, p.logger).GetByID(ctx, payload.EventID)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	rows, err := attendance.NewRepository(p.exec, ev.Tables(payload.Partition), p.logger).ExportRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("load attendance: %w", err)
	}
	var buf bytes.Buffer
	if err := attendance.WriteCSV(&buf, rows); err != nil {
		return nil, err
	}
	key, err := p.reports.UploadReport(ctx, storage.ReportKey(payload.Partition, ev.ID.String(), p.now()), &buf)
	if err != nil {
		return nil, err
	}
	url, err := p.reports.PresignReport(ctx, key)
	if err != nil {
		return nil, err
	}
	p.logger.Info("attendance report exported",
		zap.String("partition", payload.Partition),
		zap.String("event_id", ev.ID.String()),
		zap.Int("rows", len(rows)))
	return &ExportResult{Key: key, URL: url, Rows: len(rows)}, nil
}

// Handle processes job and records its status, re-enqueueing it on failure.
func (p *Processor) Handle(ctx context.Context, job *queue.Job) {
	partition := jobPartition(job)
	p.setStatus(ctx, queue.Status{JobID: job.ID, Type: job.Type, State: queue.StateRunning, Attempt: job.Attempt, Partition: partition})

	result, err := p.Process(ctx, job)
	if err != nil {
		p.logger.Error("job failed", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Error(err))
		dead, reErr := p.queue.Retry(ctx, job)
		if reErr != nil {
			p.logger.Error("retry enqueue failed", zap.Error(reErr))
		}
		state := queue.StateQueued
		if dead || reErr != nil {
			state = queue.StateFailed
		}
		p.setStatus(ctx, queue.Status{JobID: job.ID, Type: job.Type, State: state, Attempt: job.Attempt, Error: err.Error(), Partition: partition})
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		p.logger.Warn("marshal job result", zap.String("job_id", job.ID), zap.Error(err))
	}
	p.setStatus(ctx, queue.Status{JobID: job.ID, Type: job.Type, State: queue.StateDone, Attempt: job.Attempt, Result: raw, Partition: partition})
}

func (p *Processor) setStatus(ctx context.Context, s queue.Status) {
	if err := p.queue.SetStatus(ctx, s); err != nil {
		p.logger.Warn("record job status", zap.String("job_id", s.JobID), zap.Error(err))
	}
}

func jobPartition(job *queue.Job) string {
	var p struct {
		Partition string `json:"partition"`
	}
	_ = json.Unmarshal(job.Payload, &p)
	return p.Partition
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("attendance worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			sleep(ctx, queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		p.Handle(ctx, job)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
