package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/internal/naming"
	"github.com/aura-attendance/backend/internal/sqlgw"
)

const (
	redisChannelPrefix = "attendance:"
	publishTimeout     = 5 * time.Second
)

// RedisFeed carries verification changes over Redis pub/sub so every API
// instance sees scans recorded by the others. The verification engine
// publishes through Publish.
type RedisFeed struct {
	client *redis.Client
	buffer int
	logger *zap.Logger
}

// NewRedisFeed creates a Redis pub/sub feed.
func NewRedisFeed(client *redis.Client, buffer int, logger *zap.Logger) *RedisFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &RedisFeed{client: client, buffer: buffer, logger: logger}
}

func redisChannel(partition, table string) string {
	return redisChannelPrefix + naming.ChangeChannel(partition, table)
}

// Publish sends rec as an INSERT change on the event's channel.
func (f *RedisFeed) Publish(ctx context.Context, t models.EventTables, rec models.VerificationRecord) error {
	row := sqlgw.Row{
		"id":             rec.ID.String(),
		"participant_id": rec.ParticipantID,
		"name":           rec.Name,
		"status":         string(rec.Status),
		"verified_at":    rec.VerifiedAt.Format(time.RFC3339Nano),
	}
	if rec.Note != "" {
		row["note"] = rec.Note
	}
	body, err := json.Marshal(Change{EventType: "INSERT", New: row})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return f.client.Publish(ctx, redisChannel(t.Partition, t.Verification), body).Err()
}

// Listen implements Feed.
func (f *RedisFeed) Listen(ctx context.Context, partition, table string) (<-chan Change, <-chan error, error) {
	channel := redisChannel(partition, table)
	pubsub := f.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	changes := make(chan Change, f.buffer)
	errs := make(chan error, 1)
	go func() {
		defer close(changes)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					if ctx.Err() == nil {
						errs <- fmt.Errorf("redis subscription %s closed", channel)
					}
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					f.logger.Warn("malformed change payload", zap.String("channel", channel), zap.Error(err))
					continue
				}
				select {
				case changes <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return changes, errs, nil
}
