package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/intranet-events/backend/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat (seconds).
	PingInterval = 30
	PongWait     = 60

	sendBuffer = 64
)

// Message is what a connected client receives.
type Message struct {
	Kind    string          `json:"kind"`
	EventID int64           `json:"event_id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// envelope is a message plus its audience. A non-nil UserID targets one user,
// otherwise every client watching EventID (or all events) whose role the
// audience admits receives it.
type envelope struct {
	UserID   uuid.UUID       `json:"user_id,omitempty"`
	Audience models.Audience `json:"audience"`
	Message  Message         `json:"message"`
}

// Relay fans messages out across server instances.
type Relay interface {
	Publish(ctx context.Context, body []byte) error
	Subscribe(ctx context.Context, handler func(body []byte)) (cancel func(), err error)
}

// Hub tracks connected clients and pushes change notices to them.
// With a relay configured every notice goes through the relay so that each
// instance, this one included, delivers it exactly once.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	relay   Relay
	logger  *zap.Logger
}

// NewHub creates a hub. relay may be nil for a single instance.
func NewHub(relay Relay, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[string]*Client), relay: relay, logger: logger}
}

// Start subscribes to the relay until ctx is cancelled.
func (h *Hub) Start(ctx context.Context) error {
	if h.relay == nil {
		return nil
	}
	cancel, err := h.relay.Subscribe(ctx, func(body []byte) {
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			h.logger.Warn("realtime: dropping malformed relay message", zap.Error(err))
			return
		}
		h.deliver(env)
	})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return nil
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client connected",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.UserID.String()),
		zap.String("role", string(c.Role)),
		zap.Int64("event_id", c.EventID))
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishEventChange notifies clients watching eventID or the whole feed
// that audience admits.
func (h *Hub) PublishEventChange(eventID int64, audience models.Audience, kind string, payload any) {
	h.dispatch(envelope{Audience: audience, Message: h.message(eventID, kind, payload)})
}

// PublishUserNotice notifies every connection of one user.
func (h *Hub) PublishUserNotice(userID uuid.UUID, kind string, payload any) {
	h.dispatch(envelope{UserID: userID, Message: h.message(0, kind, payload)})
}

func (h *Hub) message(eventID int64, kind string, payload any) Message {
	msg := Message{Kind: kind, EventID: eventID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			h.logger.Warn("realtime: payload not serializable", zap.String("kind", kind), zap.Error(err))
		} else {
			msg.Data = data
		}
	}
	return msg
}

func (h *Hub) dispatch(env envelope) {
	if h.relay != nil {
		body, err := json.Marshal(env)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			err = h.relay.Publish(ctx, body)
			cancel()
			if err == nil {
				return
			}
		}
		h.logger.Warn("realtime: relay publish failed, delivering locally", zap.Error(err))
	}
	h.deliver(env)
}

func (h *Hub) deliver(env envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.wants(env) {
			continue
		}
		select {
		case c.send <- env.Message:
		default:
			h.logger.Debug("realtime: client buffer full, dropping", zap.String("client_id", c.ID))
		}
	}
}
