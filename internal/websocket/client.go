package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"push-gateway/internal/models"
	"push-gateway/internal/state"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, implement proper origin checking
		return true
	},
}

// Client is one live socket. It owns a sync engine instance and the bus
// connection feeding it; readPump, writePump and run are its three
// goroutines.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string

	state *state.State

	ctx        context.Context
	cancel     context.CancelFunc
	closed     int32
	sendClosed int32

	wg sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		id:     uuid.New().String(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Client) GetID() string {
	return c.id
}

func (c *Client) GetUserID() string {
	return c.userID
}

func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.cancel()
		slog.Debug("Client marked as closed", "clientID", c.id, "userID", c.userID)
	}
}

func (c *Client) closeSendChannel() {
	if atomic.CompareAndSwapInt32(&c.sendClosed, 0, 1) {
		close(c.send)
		slog.Debug("Send channel closed", "clientID", c.id, "userID", c.userID)
	}
}

// run drives the sync engine: initial snapshot, presence announce, then the
// delivery pump until the bus connection or socket closes.
func (c *Client) run() {
	c.wg.Add(1)
	defer c.wg.Done()

	busConn, err := c.hub.bus.Open(c.ctx, c.id)
	if err != nil {
		slog.Error("Failed to open bus connection", "clientID", c.id, "userID", c.userID, "error", err)
		c.sendError("InternalError")
		c.close()
		return
	}
	defer busConn.Close()

	c.state = state.New(state.Options{
		SelfID:       c.userID,
		PrivateTopic: c.userID + "!",
		DB:           c.hub.db,
		Connection:   busConn,
		Publisher:    c.hub.bus,
		Presence:     c.hub.presence,
		Voice:        c.hub.voice,
		Logger:       c.hub.log,
	})

	ready, err := c.state.Ready(c.ctx, models.DefaultReadyFields())
	if err != nil {
		slog.Error("Initial sync failed", "clientID", c.id, "userID", c.userID, "error", err)
		c.sendError("InternalError")
		c.close()
		return
	}
	if !c.sendEvent(ready) {
		return
	}

	if c.hub.lastConnectionOf(c) {
		c.state.BroadcastPresenceChange(c.ctx, true)
	}
	defer func() {
		if c.hub.lastConnectionOf(c) {
			c.state.BroadcastPresenceChange(context.Background(), false)
		}
	}()

	for {
		select {
		case delivery, ok := <-busConn.Deliveries():
			if !ok {
				return
			}
			out, forward := c.state.HandleEvent(c.ctx, delivery.Event)
			if !forward {
				continue
			}
			if !c.sendEvent(out) {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// sendEvent frames an event and enqueues it; false means the client is gone.
func (c *Client) sendEvent(event models.Event) bool {
	data, err := models.EncodeEvent(event)
	if err != nil {
		slog.Error("Failed to encode event", "clientID", c.id, "kind", event.EventType(), "error", err)
		return true
	}
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) bool {
	if c.isClosed() {
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.ctx.Done():
		return false
	default:
		// Send buffer is full, drop the client rather than block the pump.
		slog.Warn("Send buffer full, closing client", "clientID", c.id, "userID", c.userID)
		c.close()
		return false
	}
}

func (c *Client) sendError(code string) {
	c.sendEvent(&ErrorFrame{Error: code})
}

func (c *Client) readPump() {
	c.wg.Add(1)
	defer func() {
		c.wg.Done()
		c.close()

		select {
		case c.hub.unregister <- c:
		case <-time.After(5 * time.Second):
			slog.Warn("Timeout sending unregister request", "clientID", c.id, "userID", c.userID)
		}

		if err := c.conn.Close(); err != nil {
			slog.Debug("Error closing connection", "clientID", c.id, "userID", c.userID, "error", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "clientID", c.id, "userID", c.userID, "error", err)
			} else {
				slog.Debug("WebSocket connection closed", "clientID", c.id, "userID", c.userID, "error", err)
			}
			break
		}

		var frame ClientFrame
		if err := json.Unmarshal(messageBytes, &frame); err != nil {
			slog.Debug("Invalid client frame", "clientID", c.id, "userID", c.userID, "error", err)
			c.sendError("InvalidMessage")
			continue
		}
		c.handleClientFrame(&frame)
	}
}

func (c *Client) handleClientFrame(frame *ClientFrame) {
	switch frame.Type {
	case ClientMessagePing:
		c.sendEvent(&Pong{Data: frame.Data})

	case ClientMessageBeginTyping:
		if frame.Channel == "" {
			return
		}
		event := &models.ChannelStartTyping{ID: frame.Channel, User: c.userID}
		if err := c.hub.bus.Publish(c.ctx, frame.Channel, event); err != nil {
			slog.Error("Typing publish failed", "clientID", c.id, "channelID", frame.Channel, "error", err)
		}

	case ClientMessageEndTyping:
		if frame.Channel == "" {
			return
		}
		event := &models.ChannelStopTyping{ID: frame.Channel, User: c.userID}
		if err := c.hub.bus.Publish(c.ctx, frame.Channel, event); err != nil {
			slog.Error("Typing publish failed", "clientID", c.id, "channelID", frame.Channel, "error", err)
		}

	default:
		c.sendError("InvalidMessage")
	}
}

func (c *Client) writePump() {
	c.wg.Add(1)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		c.wg.Done()
		ticker.Stop()
		slog.Debug("WritePump finished", "clientID", c.id, "userID", c.userID)
	}()

	for {
		select {
		case message, ok := <-c.send:
			if c.isClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("Error writing message", "clientID", c.id, "userID", c.userID, "error", err)
				return
			}

		case <-ticker.C:
			if c.isClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Error sending ping", "clientID", c.id, "userID", c.userID, "error", err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// ServeWS upgrades an authenticated request and starts the connection's
// goroutines.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "userID", userID, "error", err)
		return
	}

	client := NewClient(hub, conn, userID)
	slog.Info("New WebSocket connection established", "clientID", client.id, "userID", client.userID)

	select {
	case hub.register <- client:
	case <-time.After(5 * time.Second):
		slog.Error("Timeout sending registration request", "clientID", client.id, "userID", client.userID)
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
	go client.run()
}
