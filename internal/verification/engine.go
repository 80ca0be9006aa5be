// Package verification classifies scans against an event's attendance list
// and appends them to the event's verification log.
package verification

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/apperr"
	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/internal/telemetry"
)

// Store is the storage contract the engine needs for one event.
type Store interface {
	Tables() models.EventTables
	FindAttendee(ctx context.Context, participantID string) (*models.AttendanceRecord, error)
	LatestVerification(ctx context.Context, participantID string) (*models.VerificationRecord, error)
	CountVerifications(ctx context.Context, participantID string) (int, error)
	AppendVerification(ctx context.Context, a *models.AttendanceRecord, status models.VerificationStatus, note string) (*models.VerificationRecord, error)
}

// Publisher receives every appended verification row. It is used when the
// change feed is not the database itself.
type Publisher interface {
	Publish(ctx context.Context, t models.EventTables, rec models.VerificationRecord) error
}

// ScanResult is the outcome of one accepted scan.
type ScanResult struct {
	Verification *models.VerificationRecord `json:"verification"`
	Attendee     *models.AttendanceRecord   `json:"attendee"`
	Status       models.VerificationStatus  `json:"status"`
}

// ParticipantStatus is a participant's state derived from the verification log.
type ParticipantStatus struct {
	ParticipantID string                     `json:"participantId"`
	State         models.ParticipantState    `json:"state"`
	Verifications int                        `json:"verifications"`
	Latest        *models.VerificationRecord `json:"latest,omitempty"`
}

// Engine runs the scan state machine.
type Engine struct {
	locker    Locker
	publisher Publisher
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocker replaces the default process-local locker.
func WithLocker(l Locker) Option { return func(e *Engine) { e.locker = l } }

// WithPublisher sets a publisher notified after every append.
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }

// NewEngine creates an engine.
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{locker: NewLocalLocker(), logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

func lockKey(t models.EventTables, participantID string) string {
	return "scan:" + t.Partition + "." + t.Verification + ":" + participantID
}

// Scan classifies a scan of participantID for ev. An unknown participant is
// rejected with NotFound and nothing is written. Otherwise the first scan is
// verified and every later one duplicate; both are appended to the log.
// The lookup-decide-insert sequence holds the participant's lock.
func (e *Engine) Scan(ctx context.Context, store Store, ev *models.Event, participantID string) (*ScanResult, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		telemetry.ScansTotal.WithLabelValues("rejected").Inc()
		return nil, apperr.Validation("participantId", "is required")
	}
	if ev != nil && (!ev.IsActive || ev.EndedAt != nil) {
		telemetry.ScansTotal.WithLabelValues("rejected").Inc()
		return nil, apperr.Conflict("event %q has ended", ev.Name)
	}

	attendee, err := store.FindAttendee(ctx, participantID)
	if err != nil {
		if apperr.IsNotFound(err) {
			telemetry.ScansTotal.WithLabelValues("not_found").Inc()
			return nil, apperr.NotFound("participant %s is not registered for this event", participantID)
		}
		telemetry.ScansTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	t := store.Tables()
	unlock, err := e.locker.Lock(ctx, lockKey(t, participantID))
	if err != nil {
		telemetry.ScansTotal.WithLabelValues("error").Inc()
		return nil, apperr.Transient(err, "acquire scan lock")
	}
	rec, err := e.appendNext(ctx, store, attendee)
	unlock()
	if err != nil {
		telemetry.ScansTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	telemetry.ScansTotal.WithLabelValues(string(rec.Status)).Inc()
	e.logger.Info("scan recorded",
		zap.String("partition", t.Partition),
		zap.String("verification_table", t.Verification),
		zap.String("participant_id", participantID),
		zap.String("status", string(rec.Status)))
	e.publish(ctx, t, *rec)
	return &ScanResult{Verification: rec, Attendee: attendee, Status: rec.Status}, nil
}

func (e *Engine) appendNext(ctx context.Context, store Store, a *models.AttendanceRecord) (*models.VerificationRecord, error) {
	prior, err := store.LatestVerification(ctx, a.ParticipantID)
	if err != nil {
		return nil, err
	}
	status := models.StatusVerified
	if prior != nil {
		status = models.StatusDuplicate
	}
	return store.AppendVerification(ctx, a, status, "")
}

// MarkInvalid appends an administrative invalid entry for a registered participant.
func (e *Engine) MarkInvalid(ctx context.Context, store Store, participantID, note string) (*models.VerificationRecord, error) {
	attendee, err := store.FindAttendee(ctx, strings.TrimSpace(participantID))
	if err != nil {
		return nil, err
	}
	t := store.Tables()
	unlock, err := e.locker.Lock(ctx, lockKey(t, attendee.ParticipantID))
	if err != nil {
		return nil, apperr.Transient(err, "acquire scan lock")
	}
	rec, err := store.AppendVerification(ctx, attendee, models.StatusInvalid, strings.TrimSpace(note))
	unlock()
	if err != nil {
		return nil, err
	}
	telemetry.ScansTotal.WithLabelValues(string(models.StatusInvalid)).Inc()
	e.logger.Info("participant marked invalid",
		zap.String("partition", t.Partition),
		zap.String("participant_id", attendee.ParticipantID))
	e.publish(ctx, t, *rec)
	return rec, nil
}

// CurrentState derives a participant's state: unknown without an attendance
// row, pending without verification rows, confirmed otherwise.
func (e *Engine) CurrentState(ctx context.Context, store Store, participantID string) (*ParticipantStatus, error) {
	participantID = strings.TrimSpace(participantID)
	out := &ParticipantStatus{ParticipantID: participantID, State: models.StateUnknown}
	if _, err := store.FindAttendee(ctx, participantID); err != nil {
		if apperr.IsNotFound(err) {
			return out, nil
		}
		return nil, err
	}
	n, err := store.CountVerifications(ctx, participantID)
	if err != nil {
		return nil, err
	}
	out.Verifications = n
	if n == 0 {
		out.State = models.StatePending
		return out, nil
	}
	latest, err := store.LatestVerification(ctx, participantID)
	if err != nil {
		return nil, err
	}
	out.State = models.StateConfirmed
	out.Latest = latest
	return out, nil
}

func (e *Engine) publish(ctx context.Context, t models.EventTables, rec models.VerificationRecord) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, t, rec); err != nil {
		e.logger.Warn("verification publish failed", zap.String("participant_id", rec.ParticipantID), zap.Error(err))
	}
}
