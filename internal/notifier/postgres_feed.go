package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/naming"
)

// PostgresFeed listens for the NOTIFY payloads sent by the verification
// table trigger. Every Listen holds one dedicated connection taken out of the pool.
type PostgresFeed struct {
	pool   *pgxpool.Pool
	buffer int
	logger *zap.Logger
}

// NewPostgresFeed creates a LISTEN/NOTIFY feed.
func NewPostgresFeed(pool *pgxpool.Pool, buffer int, logger *zap.Logger) *PostgresFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &PostgresFeed{pool: pool, buffer: buffer, logger: logger}
}

// Listen implements Feed.
func (f *PostgresFeed) Listen(ctx context.Context, partition, table string) (<-chan Change, <-chan error, error) {
	pc, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	conn := pc.Hijack()
	channel := naming.ChangeChannel(partition, table)
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, nil, fmt.Errorf("listen %s: %w", channel, err)
	}

	changes := make(chan Change, f.buffer)
	errs := make(chan error, 1)
	go func() {
		defer close(changes)
		defer conn.Close(context.Background())
		for {
			n, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("wait for notification on %s: %w", channel, err)
				}
				return
			}
			var c Change
			if err := json.Unmarshal([]byte(n.Payload), &c); err != nil {
				f.logger.Warn("malformed change payload", zap.String("channel", channel), zap.Error(err))
				continue
			}
			select {
			case changes <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	f.logger.Debug("listening", zap.String("channel", channel), zap.String("partition", partition), zap.String("table", table))
	return changes, errs, nil
}
