package state

import (
	"context"
	"log/slog"

	"push-gateway/internal/bus"
	"push-gateway/internal/database"
	"push-gateway/internal/models"
	"push-gateway/internal/permissions"
	"push-gateway/internal/presence"
)

// State drives one connection: it owns the visibility cache and the
// authoritative subscription set and reconciles both against incoming
// platform events. All methods are called from the single flow owning the
// connection; the injected collaborators carry their own thread safety.
type State struct {
	cache *Cache

	db       database.Store
	perms    permissions.Evaluator
	conn     bus.Connection
	pub      bus.Publisher
	presence presence.Oracle
	voice    presence.VoiceOracle

	subscriptions map[string]struct{}
	privateTopic  string

	log *slog.Logger
}

// Options wires a State; every collaborator is an injected capability so the
// engine is testable with recording fakes.
type Options struct {
	SelfID       string
	PrivateTopic string

	DB          database.Store
	Permissions permissions.Evaluator
	Connection  bus.Connection
	Publisher   bus.Publisher
	Presence    presence.Oracle
	Voice       presence.VoiceOracle

	Logger *slog.Logger
}

func New(opts Options) *State {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	perms := opts.Permissions
	if perms == nil {
		perms = permissions.Calculator{}
	}
	return &State{
		cache:         newCache(opts.SelfID),
		db:            opts.DB,
		perms:         perms,
		conn:          opts.Connection,
		pub:           opts.Publisher,
		presence:      opts.Presence,
		voice:         opts.Voice,
		subscriptions: make(map[string]struct{}),
		privateTopic:  opts.PrivateTopic,
		log:           logger.With("selfID", opts.SelfID),
	}
}

// Cache exposes the visibility cache; used by the transport layer and tests.
func (s *State) Cache() *Cache {
	return s.cache
}

// insertSubscription subscribes the connection to a topic. Idempotent; an
// already-held topic is not re-subscribed.
func (s *State) insertSubscription(ctx context.Context, topic string) bool {
	if _, ok := s.subscriptions[topic]; ok {
		return true
	}
	if err := s.conn.Subscribe(ctx, topic); err != nil {
		s.log.Error("Subscribe failed", "topic", topic, "error", err)
		return false
	}
	s.subscriptions[topic] = struct{}{}
	return true
}

// removeSubscription unsubscribes the connection from a topic it holds.
func (s *State) removeSubscription(ctx context.Context, topic string) {
	if _, ok := s.subscriptions[topic]; !ok {
		return
	}
	if err := s.conn.Unsubscribe(ctx, topic); err != nil {
		s.log.Error("Unsubscribe failed", "topic", topic, "error", err)
	}
	delete(s.subscriptions, topic)
}

// insertChannel pairs subscribe-before-insert: the channel enters the cache
// only once its subscription is active.
func (s *State) insertChannel(ctx context.Context, channel *models.Channel) {
	if !s.insertSubscription(ctx, channel.ID) {
		return
	}
	s.cache.channels[channel.ID] = channel
}

// evictChannel pairs unsubscribe-before-evict.
func (s *State) evictChannel(ctx context.Context, channelID string) {
	s.removeSubscription(ctx, channelID)
	delete(s.cache.channels, channelID)
}

// evictServer drops the server, its member record and every cached channel
// belonging to it, releasing all their subscriptions.
func (s *State) evictServer(ctx context.Context, serverID string) {
	s.removeSubscription(ctx, serverID)
	if s.cache.isBot {
		s.removeSubscription(ctx, serverID+"u")
	}
	delete(s.cache.servers, serverID)
	delete(s.cache.members, serverID)

	for id, ch := range s.cache.channels {
		if ch.Server == serverID {
			s.evictChannel(ctx, id)
		}
	}
}

// resetState tears down every subscription and clears the object caches; the
// caller rebuilds both.
func (s *State) resetState(ctx context.Context) {
	for topic := range s.subscriptions {
		if err := s.conn.Unsubscribe(ctx, topic); err != nil {
			s.log.Error("Unsubscribe failed during reset", "topic", topic, "error", err)
		}
	}
	s.subscriptions = make(map[string]struct{})
	s.cache.clearObjects()
}

// Subscriptions returns a snapshot of the held topic set; test hook.
func (s *State) Subscriptions() map[string]struct{} {
	snapshot := make(map[string]struct{}, len(s.subscriptions))
	for topic := range s.subscriptions {
		snapshot[topic] = struct{}{}
	}
	return snapshot
}
