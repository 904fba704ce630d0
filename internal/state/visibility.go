package state

import (
	"context"

	"push-gateway/internal/models"
	"push-gateway/internal/permissions"
)

// CanViewChannel reports whether the connection's account may currently
// observe the channel. Server-owned channels are evaluated against the
// cached self user, membership and server; everything else is visible to a
// holder unconditionally. Evaluation failures count as hidden, never as an
// error.
func (s *State) CanViewChannel(ctx context.Context, channel *models.Channel) bool {
	if !channel.IsServerOwned() {
		return true
	}

	self := s.cache.Self()
	if self == nil {
		return false
	}

	perms, err := s.perms.CalculateChannelPermissions(ctx, permissions.Query{
		User:    self,
		Member:  s.cache.members[channel.Server],
		Server:  s.cache.servers[channel.Server],
		Channel: channel,
	})
	if err != nil {
		s.log.Warn("Permission evaluation failed, hiding channel",
			"channelID", channel.ID, "error", err)
		return false
	}
	return perms.Has(permissions.CapViewChannel)
}

// FilterAccessibleChannels keeps the channels the account may view,
// preserving order. Evaluated sequentially: the predicates share the cache.
func (s *State) FilterAccessibleChannels(ctx context.Context, channels []models.Channel) []models.Channel {
	viewable := make([]models.Channel, 0, len(channels))
	for i := range channels {
		if s.CanViewChannel(ctx, &channels[i]) {
			viewable = append(viewable, channels[i])
		}
	}
	return viewable
}

// CanSubscribeToUser reports whether any reason remains to hold a user-level
// subscription: a live relationship, or co-occurrence as a recipient of any
// cached direct or group channel.
func (s *State) CanSubscribeToUser(userID string) bool {
	self := s.cache.Self()
	if self == nil {
		return false
	}

	switch self.RelationshipWith(userID) {
	case models.RelationshipFriend, models.RelationshipIncoming,
		models.RelationshipOutgoing, models.RelationshipSelf:
		return true
	}

	for _, ch := range s.cache.channels {
		if ch.IsDirect() && ch.HasRecipient(userID) {
			return true
		}
	}
	return false
}
