// Package state implements the per-connection session state cache and event
// projection engine: Ready snapshots, incremental event application with
// visibility re-derivation, subscription management and presence broadcast.
package state

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"push-gateway/internal/models"
)

// seenEventsCapacity bounds the idempotency-key memory used for UserUpdate
// dedup. Oldest keys are evicted first; a key falling out of the window can
// be applied again, which is acceptable because rebroadcasts arrive close
// together.
const seenEventsCapacity = 256

// Cache is the denormalized store of everything this connection's account
// may currently see. It is exclusively owned by the flow driving the
// connection; no internal locking.
type Cache struct {
	selfID string
	isBot  bool

	users    map[string]*models.User
	servers  map[string]*models.Server
	channels map[string]*models.Channel

	// members holds the account's own membership per server id, never
	// other members.
	members map[string]*models.Member

	seenEvents *lru.Cache[string, struct{}]
}

func newCache(selfID string) *Cache {
	// Capacity is a positive constant, construction cannot fail.
	seen, _ := lru.New[string, struct{}](seenEventsCapacity)
	return &Cache{
		selfID:     selfID,
		users:      make(map[string]*models.User),
		servers:    make(map[string]*models.Server),
		channels:   make(map[string]*models.Channel),
		members:    make(map[string]*models.Member),
		seenEvents: seen,
	}
}

// Self returns the cached record of the connection's own account, nil before
// the first Ready.
func (c *Cache) Self() *models.User {
	return c.users[c.selfID]
}

// clearObjects drops every cached object. The dedup window survives so a
// rebroadcast arriving across a resync is still suppressed.
func (c *Cache) clearObjects() {
	c.users = make(map[string]*models.User)
	c.servers = make(map[string]*models.Server)
	c.channels = make(map[string]*models.Channel)
	c.members = make(map[string]*models.Member)
}
