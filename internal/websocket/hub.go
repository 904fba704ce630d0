// Package websocket carries the gateway's client transport: one goroutine
// trio per connection pumping frames between the socket and the per
// connection sync engine.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"push-gateway/internal/bus"
	"push-gateway/internal/database"
	"push-gateway/internal/presence"
)

var ErrClientDisconnected = fmt.Errorf("client disconnected")

// Hub tracks live connections and hands each one the shared platform
// collaborators.
type Hub struct {
	clients     map[*Client]bool
	userClients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	db       database.Store
	bus      bus.Bus
	presence presence.Tracker
	voice    presence.VoiceOracle

	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.RWMutex
	log *slog.Logger
}

func NewHub(db database.Store, b bus.Bus, tracker presence.Tracker, voice presence.VoiceOracle, log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients:     make(map[*Client]bool),
		userClients: make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		db:          db,
		bus:         b,
		presence:    tracker,
		voice:       voice,
		ctx:         ctx,
		cancel:      cancel,
		log:         log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-h.ctx.Done():
			h.log.Info("WebSocket hub shutting down")
			return
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	if h.userClients[client.userID] == nil {
		h.userClients[client.userID] = make(map[*Client]bool)
	}
	h.userClients[client.userID][client] = true

	h.log.Info("Client registered", "clientID", client.id, "userID", client.userID)

	if err := h.presence.SetOnline(h.ctx, client.userID); err != nil {
		h.log.Error("Failed to set user online", "userID", client.userID, "error", err)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)

	if set, ok := h.userClients[client.userID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.userClients, client.userID)
			// Last connection of the account is gone.
			if err := h.presence.SetOffline(h.ctx, client.userID); err != nil {
				h.log.Error("Failed to set user offline", "userID", client.userID, "error", err)
			}
		}
	}
	client.closeSendChannel()

	h.log.Info("Client unregistered", "clientID", client.id, "userID", client.userID)
}

// lastConnectionOf reports whether the client is the account's only live
// connection; presence broadcasts fire only for the last one out.
func (h *Hub) lastConnectionOf(client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set, ok := h.userClients[client.userID]
	if !ok {
		return true
	}
	if len(set) > 1 {
		return false
	}
	_, held := set[client]
	return held || len(set) == 0
}

// ConnectionCount reports the number of live clients; used by health checks.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
