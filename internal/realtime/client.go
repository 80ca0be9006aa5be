package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-attendance/backend/internal/apperr"
)

// OriginCheck reports whether a WebSocket handshake's origin is acceptable. Nil allows every origin.
type OriginCheck func(r *http.Request) bool

// ErrUnauthorized is returned by an Authorizer for a bad or expired token.
var ErrUnauthorized = errors.New("unauthorized")

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Authorizer checks token and resolves the room for eventID within the
// token's partition.
type Authorizer func(ctx context.Context, token string, eventID uuid.UUID) (Room, error)

// Client represents a single WebSocket connection watching one event.
type Client struct {
	ID     string
	Room   Room
	hub    *Hub
	conn   *websocket.Conn
	send   chan WSMessage
	logger *zap.Logger
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
func ServeWs(hub *Hub, logger *zap.Logger, authorize Authorizer, checkOrigin OriginCheck) gin.HandlerFunc {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
	return func(c *gin.Context) {
		eventIDStr := c.Query("event_id")
		token := c.Query("token")
		if eventIDStr == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event_id and token required"})
			return
		}
		eventID, err := uuid.Parse(eventIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event_id"})
			return
		}
		room, err := authorize(c.Request.Context(), token, eventID)
		if err != nil {
			switch {
			case errors.Is(err, ErrUnauthorized):
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			case apperr.IsNotFound(err):
				c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			default:
				logger.Error("websocket authorize failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:     uuid.New().String(),
			Room:   room,
			hub:    hub,
			conn:   conn,
			send:   make(chan WSMessage, 256),
			logger: logger,
		}
		go client.writePump()
		hub.Register(client)
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "ping":
			c.hub.SendToClient(c.Room.EventID, c.ID, "pong", map[string]int64{"at": time.Now().UnixMilli()})
		case "refresh_stats":
			if c.hub.stats == nil {
				continue
			}
			st, err := c.hub.stats.ForEvent(c.hub.ctx, c.Room.Tables)
			if err != nil {
				c.hub.SendToClient(c.Room.EventID, c.ID, EventError, map[string]string{"message": "stats unavailable"})
				continue
			}
			c.hub.SendToClient(c.Room.EventID, c.ID, EventStatsUpdate, st)
		default:
			// ignore
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ViewerCount returns a handler for GET /events/:id/viewers. It runs after the event loader.
func ViewerCount(hub *Hub, eventFrom func(*gin.Context) uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"viewers": hub.Viewers(eventFrom(c))}})
	}
}
