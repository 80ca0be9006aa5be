package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/models"
	"github.com/aura-attendance/backend/internal/notifier"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Outbound event names.
const (
	EventVerificationUpdate = "verification_update"
	EventStatsUpdate        = "stats_update"
	EventError              = "error"
	EventViewers            = "viewer_count"
)

// Room locates the event a connection watches.
type Room struct {
	EventID uuid.UUID
	Tables  models.EventTables
}

// Subscriber is the live change source the hub fans out.
type Subscriber interface {
	Subscribe(ctx context.Context, eventID, partition, verificationTable string, h notifier.Handlers) error
	Unsubscribe(eventID string)
	Active(eventID string) bool
}

// Snapshotter supplies the stats sent to a client when it joins.
type Snapshotter interface {
	ForEvent(ctx context.Context, t models.EventTables) (*models.AttendanceStats, error)
}

// Hub maintains event_id -> set of connections. The first client of an event
// opens its notifier subscription and the last one to leave releases it.
type Hub struct {
	ctx    context.Context
	rooms  map[uuid.UUID]map[string]*Client
	mu     sync.RWMutex
	// subMu serializes subscription changes so they follow room membership.
	subMu  sync.Mutex
	subs   Subscriber
	stats  Snapshotter
	logger *zap.Logger
}

// NewHub creates a new WebSocket hub. Subscriptions live until ctx is done.
func NewHub(ctx context.Context, subs Subscriber, stats Snapshotter, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		ctx:    ctx,
		rooms:  make(map[uuid.UUID]map[string]*Client),
		subs:   subs,
		stats:  stats,
		logger: logger,
	}
}

// Register adds a client to its event room, subscribing to the event's
// changes if no live subscription exists, and sends it a stats snapshot.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.Room.EventID] == nil {
		h.rooms[c.Room.EventID] = make(map[string]*Client)
	}
	h.rooms[c.Room.EventID][c.ID] = c
	count := len(h.rooms[c.Room.EventID])
	h.mu.Unlock()

	h.syncSubscription(c.Room)
	if h.stats != nil {
		if st, err := h.stats.ForEvent(h.ctx, c.Room.Tables); err == nil {
			h.SendToClient(c.Room.EventID, c.ID, EventStatsUpdate, st)
		} else {
			h.logger.Warn("stats snapshot failed", zap.String("event_id", c.Room.EventID.String()), zap.Error(err))
		}
	}
	h.Broadcast(c.Room.EventID, EventViewers, map[string]int{"count": count})
	h.logger.Debug("client joined event", zap.String("client_id", c.ID), zap.String("event_id", c.Room.EventID.String()))
}

// syncSubscription opens or releases the room's subscription to match its
// current membership.
func (h *Hub) syncSubscription(room Room) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.mu.RLock()
	n := len(h.rooms[room.EventID])
	h.mu.RUnlock()
	active := h.subs.Active(room.EventID.String())
	switch {
	case n > 0 && !active:
		h.subscribe(room)
	case n == 0 && active:
		h.subs.Unsubscribe(room.EventID.String())
	}
}

func (h *Hub) subscribe(room Room) {
	eventID := room.EventID
	err := h.subs.Subscribe(h.ctx, eventID.String(), room.Tables.Partition, room.Tables.Verification, notifier.Handlers{
		OnVerificationUpdate: func(v models.VerificationRecord) { h.Broadcast(eventID, EventVerificationUpdate, v) },
		OnStatsUpdate:        func(s *models.AttendanceStats) { h.Broadcast(eventID, EventStatsUpdate, s) },
		OnError: func(err error) {
			h.Broadcast(eventID, EventError, map[string]string{"message": err.Error()})
		},
	})
	if err != nil {
		h.logger.Warn("event subscription failed", zap.String("event_id", eventID.String()), zap.Error(err))
	}
}

// Unregister removes a client from its room. The last client out releases the subscription.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	var count int
	last := false
	if m, ok := h.rooms[c.Room.EventID]; ok {
		if _, present := m[c.ID]; present {
			delete(m, c.ID)
			close(c.send)
		}
		count = len(m)
		if count == 0 {
			delete(h.rooms, c.Room.EventID)
			last = true
		}
	}
	h.mu.Unlock()
	if last {
		h.syncSubscription(c.Room)
	} else {
		h.Broadcast(c.Room.EventID, EventViewers, map[string]int{"count": count})
	}
	h.logger.Debug("client left event", zap.String("client_id", c.ID), zap.String("event_id", c.Room.EventID.String()))
}

func encode(event string, payload interface{}) (WSMessage, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		return WSMessage{}, false
	}
	return WSMessage{Event: event, Data: data}, true
}

// Broadcast sends a message to every client watching eventID.
func (h *Hub) Broadcast(eventID uuid.UUID, event string, payload interface{}) {
	msg, ok := encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[eventID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// SendToClient sends a message to a single client.
func (h *Hub) SendToClient(eventID uuid.UUID, clientID string, event string, payload interface{}) {
	msg, ok := encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, found := h.rooms[eventID][clientID]
	if !found {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// Viewers returns the number of connected clients watching eventID.
func (h *Hub) Viewers(eventID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}
