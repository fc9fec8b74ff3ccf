package realtime

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/intranet-events/backend/internal/middleware"
	"github.com/intranet-events/backend/internal/models"
	"github.com/intranet-events/backend/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced by the HTTP middleware
	},
}

// Client is one read-only websocket connection.
type Client struct {
	ID      string
	UserID  uuid.UUID
	Role    models.Role
	EventID int64 // 0 watches every event
	hub     *Hub
	conn    *websocket.Conn
	send    chan Message
	logger  *zap.Logger
}

// NewClient creates an unconnected client, used by ServeWs and tests.
func NewClient(hub *Hub, who models.Identity, eventID int64) *Client {
	return &Client{
		ID:      uuid.NewString(),
		UserID:  who.UserID,
		Role:    who.Role,
		EventID: eventID,
		hub:     hub,
		send:    make(chan Message, sendBuffer),
		logger:  hub.logger,
	}
}

func (c *Client) wants(env envelope) bool {
	if env.UserID != uuid.Nil {
		return env.UserID == c.UserID
	}
	if c.EventID != 0 && c.EventID != env.Message.EventID {
		return false
	}
	return env.Audience.Admits(c.Role)
}

// ServeWs upgrades the request and streams change notices. The token comes
// from the "token" query parameter (browsers cannot set headers on websocket
// requests) or the Authorization header. "event_id" narrows the feed.
func ServeWs(hub *Hub, tokens middleware.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token, _ = middleware.BearerToken(c.GetHeader("Authorization"))
		}
		if token == "" {
			response.Unauthorized(c, "token required")
			return
		}
		id, err := tokens.ValidateIdentity(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		var eventID int64
		if raw := c.Query("event_id"); raw != "" {
			eventID, err = strconv.ParseInt(raw, 10, 64)
			if err != nil || eventID <= 0 {
				response.BadRequest(c, "invalid event_id")
				return
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := NewClient(hub, id, eventID)
		client.conn = conn
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

// readPump only services control frames; clients never send commands.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	})
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
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
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("websocket write failed", zap.String("client_id", c.ID), zap.Error(err))
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
