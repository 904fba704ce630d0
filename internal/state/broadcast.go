package state

import (
	"context"

	"github.com/google/uuid"

	"push-gateway/internal/models"
)

// BroadcastPresenceChange announces the connection going online or offline
// to the private topic and every server the account belongs to. Invisible
// accounts broadcast nothing. The event carries a fresh idempotency key so
// receivers holding several shared servers apply it once.
func (s *State) BroadcastPresenceChange(ctx context.Context, online bool) {
	self := s.cache.Self()
	if self == nil {
		return
	}
	if self.Status != nil && self.Status.Presence == models.PresenceInvisible {
		return
	}

	event := &models.UserUpdate{
		ID:      s.cache.selfID,
		Data:    models.PartialUser{Online: &online},
		EventID: uuid.NewString(),
	}

	if err := s.pub.Publish(ctx, s.privateTopic, event); err != nil {
		s.log.Error("Presence publish failed", "topic", s.privateTopic, "error", err)
	}
	for serverID := range s.cache.servers {
		if err := s.pub.Publish(ctx, serverID, event); err != nil {
			s.log.Error("Presence publish failed", "topic", serverID, "error", err)
		}
	}
}
