// Package notifier turns row changes on an event's verification table into
// typed verification updates and refreshed statistics for live subscribers.
package notifier

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/attendance"
	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/internal/naming"
	"github.com/aura-attendance/backend/internal/sqlgw"
	"github.com/aura-attendance/backend/internal/telemetry"
)

// Change is one row-level change event. Unknown fields are ignored.
type Change struct {
	EventType string    `json:"eventType"`
	New       sqlgw.Row `json:"new"`
}

// Feed delivers changes of one table. Listen returns once listening is
// established; changes is closed when delivery ends and errs carries at most
// one error explaining why.
type Feed interface {
	Listen(ctx context.Context, partition, table string) (changes <-chan Change, errs <-chan error, err error)
}

// StatsSource recomputes an event's statistics.
type StatsSource interface {
	GetAttendanceStats(ctx context.Context, partition, attendanceTable, verificationTable string) (*models.AttendanceStats, error)
}

// Handlers receive a subscription's deliveries. Nil handlers are skipped.
type Handlers struct {
	OnVerificationUpdate func(models.VerificationRecord)
	OnStatsUpdate        func(*models.AttendanceStats)
	OnError              func(error)
}

type subscription struct {
	gen    uint64
	cancel context.CancelFunc
}

// Notifier keeps at most one subscription per event id. Each subscription
// runs its handlers on its own goroutine, so a slow handler only delays its
// own event.
type Notifier struct {
	feed   Feed
	stats  StatsSource
	logger *zap.Logger

	mu   sync.Mutex
	gen  uint64
	subs map[string]*subscription
}

// New creates a notifier.
func New(feed Feed, stats StatsSource, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{feed: feed, stats: stats, logger: logger, subs: make(map[string]*subscription)}
}

// Subscribe starts delivering inserts on verificationTable to h. A previous
// subscription for eventID is released first. The subscription lives until
// Unsubscribe, UnsubscribeAll, cancellation of ctx, or a feed error; feed
// errors are reported through OnError and are not retried.
func (n *Notifier) Subscribe(ctx context.Context, eventID, partition, verificationTable string, h Handlers) error {
	if !naming.ValidIdentifier(partition) || !naming.ValidIdentifier(verificationTable) {
		return fmt.Errorf("%w: %s.%s", sqlgw.ErrUnsafeIdentifier, partition, verificationTable)
	}
	n.Unsubscribe(eventID)

	subCtx, cancel := context.WithCancel(ctx)
	changes, errs, err := n.feed.Listen(subCtx, partition, verificationTable)
	if err != nil {
		cancel()
		n.logger.Warn("subscribe failed", zap.String("event_id", eventID), zap.Error(err))
		safeCall(n.logger, func() {
			if h.OnError != nil {
				h.OnError(err)
			}
		})
		return err
	}

	n.mu.Lock()
	if prev, ok := n.subs[eventID]; ok {
		// A concurrent Subscribe for the same id won the race; release it.
		prev.cancel()
		telemetry.ActiveSubscriptions.Dec()
	}
	n.gen++
	sub := &subscription{gen: n.gen, cancel: cancel}
	n.subs[eventID] = sub
	n.mu.Unlock()
	telemetry.ActiveSubscriptions.Inc()

	go n.run(subCtx, eventID, sub, partition, verificationTable, h, changes, errs)
	n.logger.Info("subscribed", zap.String("event_id", eventID), zap.String("partition", partition),
		zap.String("verification_table", verificationTable))
	return nil
}

func (n *Notifier) run(ctx context.Context, eventID string, sub *subscription, partition, verificationTable string,
	h Handlers, changes <-chan Change, errs <-chan error) {
	attendanceTable := naming.AttendanceTableFor(verificationTable)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok || err == nil {
				errs = nil
				continue
			}
			if ctx.Err() != nil {
				return
			}
			n.fail(eventID, sub, h, err)
			return
		case c, ok := <-changes:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				var err error
				if errs != nil {
					select {
					case err = <-errs:
					default:
					}
				}
				if err == nil {
					err = fmt.Errorf("change feed for event %s closed", eventID)
				}
				n.fail(eventID, sub, h, err)
				return
			}
			if c.EventType != "INSERT" || ctx.Err() != nil {
				continue
			}
			n.deliver(ctx, eventID, partition, attendanceTable, verificationTable, h, c)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, eventID, partition, attendanceTable, verificationTable string, h Handlers, c Change) {
	rec := attendance.VerificationFromRow(c.New)
	if h.OnVerificationUpdate != nil {
		if !safeCall(n.logger, func() { h.OnVerificationUpdate(rec) }) {
			telemetry.NotifierDeliveriesTotal.WithLabelValues("handler_panic").Inc()
			n.report(h, fmt.Errorf("verification handler for event %s panicked", eventID))
		}
	}
	if n.stats == nil || ctx.Err() != nil {
		return
	}
	st, err := n.stats.GetAttendanceStats(ctx, partition, attendanceTable, verificationTable)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		telemetry.NotifierDeliveriesTotal.WithLabelValues("stats_error").Inc()
		n.report(h, fmt.Errorf("refresh stats for event %s: %w", eventID, err))
		return
	}
	if h.OnStatsUpdate != nil {
		if !safeCall(n.logger, func() { h.OnStatsUpdate(st) }) {
			telemetry.NotifierDeliveriesTotal.WithLabelValues("handler_panic").Inc()
			n.report(h, fmt.Errorf("stats handler for event %s panicked", eventID))
			return
		}
	}
	telemetry.NotifierDeliveriesTotal.WithLabelValues("ok").Inc()
}

func (n *Notifier) report(h Handlers, err error) {
	n.logger.Warn("subscription error", zap.Error(err))
	if h.OnError != nil {
		safeCall(n.logger, func() { h.OnError(err) })
	}
}

func (n *Notifier) fail(eventID string, sub *subscription, h Handlers, err error) {
	n.mu.Lock()
	if cur, ok := n.subs[eventID]; ok && cur.gen == sub.gen {
		delete(n.subs, eventID)
		telemetry.ActiveSubscriptions.Dec()
	}
	n.mu.Unlock()
	sub.cancel()
	telemetry.NotifierDeliveriesTotal.WithLabelValues("feed_error").Inc()
	n.report(h, err)
}

// Unsubscribe releases eventID's subscription, if any. A handler already
// running finishes; no further changes are dispatched.
func (n *Notifier) Unsubscribe(eventID string) {
	n.mu.Lock()
	sub, ok := n.subs[eventID]
	if ok {
		delete(n.subs, eventID)
	}
	n.mu.Unlock()
	if !ok {
		return
	}
	sub.cancel()
	telemetry.ActiveSubscriptions.Dec()
	n.logger.Info("unsubscribed", zap.String("event_id", eventID))
}

// UnsubscribeAll releases every subscription.
func (n *Notifier) UnsubscribeAll() {
	n.mu.Lock()
	ids := make([]string, 0, len(n.subs))
	for id := range n.subs {
		ids = append(ids, id)
	}
	n.mu.Unlock()
	for _, id := range ids {
		n.Unsubscribe(id)
	}
}

// Active reports whether eventID has a live subscription.
func (n *Notifier) Active(eventID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.subs[eventID]
	return ok
}

func safeCall(logger *zap.Logger, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("subscriber handler panicked", zap.Any("panic", r))
			ok = false
		}
	}()
	fn()
	return true
}
