package state

import (
	"context"
	"time"

	"push-gateway/internal/models"
)

// effects collects the side work a dispatch branch queues instead of
// performing inline. The caller applies them after dispatch: server
// recalculation first, then subscribes, then unsubscribes.
type effects struct {
	recalcServer string

	subscribe   []string
	unsubscribe []string

	// cacheUser enters the cache only after its subscribe succeeds.
	cacheUser *models.User
}

// HandleEvent applies one platform event to the connection's state and
// returns the event to forward to the client, possibly rewritten or wrapped
// in a Bulk with synthetic reconciliation events. A false second return
// suppresses the event entirely.
func (s *State) HandleEvent(ctx context.Context, event models.Event) (models.Event, bool) {
	out, fx, forward := s.dispatch(ctx, event)
	if !forward {
		return nil, false
	}

	if fx.recalcServer != "" {
		if synthetic := s.recalculateServer(ctx, fx.recalcServer); len(synthetic) > 0 {
			out = &models.Bulk{V: append(synthetic, out)}
		}
	}
	for _, topic := range fx.subscribe {
		if !s.insertSubscription(ctx, topic) {
			continue
		}
		if fx.cacheUser != nil && fx.cacheUser.ID == topic {
			s.cache.users[topic] = fx.cacheUser
		}
	}
	for _, topic := range fx.unsubscribe {
		s.removeSubscription(ctx, topic)
		delete(s.cache.users, topic)
	}
	return out, true
}

func (s *State) dispatch(ctx context.Context, event models.Event) (models.Event, effects, bool) {
	var fx effects

	switch ev := event.(type) {
	case *models.Bulk:
		survivors := make([]models.Event, 0, len(ev.V))
		for _, member := range ev.V {
			if out, ok := s.HandleEvent(ctx, member); ok {
				survivors = append(survivors, out)
			}
		}
		if len(survivors) == 0 {
			return nil, fx, false
		}
		return &models.Bulk{V: survivors}, fx, true

	case *models.ChannelCreate:
		// Announced channels are cached unconditionally; a later
		// recalculation reconciles any that turn out not to be viewable.
		channel := ev.Channel
		s.insertChannel(ctx, &channel)

	case *models.ChannelUpdate:
		return s.handleChannelUpdate(ctx, ev), fx, true

	case *models.ChannelDelete:
		s.evictChannel(ctx, ev.ID)

	case *models.ChannelGroupJoin:
		if ch, ok := s.cache.channels[ev.ID]; ok && !ch.HasRecipient(ev.User) {
			ch.Recipients = append(ch.Recipients, ev.User)
		}
		fx.subscribe = append(fx.subscribe, ev.User)

	case *models.ChannelGroupLeave:
		s.handleGroupLeave(ctx, ev, &fx)

	case *models.ServerCreate:
		s.handleServerCreate(ctx, ev, &fx)

	case *models.ServerUpdate:
		if server, ok := s.cache.servers[ev.ID]; ok {
			for _, field := range ev.Clear {
				server.Remove(field)
			}
			server.Apply(ev.Data)
			if ev.Data.DefaultPermissions != nil || ev.Data.ChannelIDs != nil {
				fx.recalcServer = ev.ID
			}
		}

	case *models.ServerDelete:
		s.evictServer(ctx, ev.ID)

	case *models.ServerMemberUpdate:
		if ev.ID.User != s.cache.selfID {
			break
		}
		if member, ok := s.cache.members[ev.ID.Server]; ok {
			rolesChanged := ev.Data.Roles != nil
			for _, field := range ev.Clear {
				if field == models.FieldsMemberRoles {
					rolesChanged = true
				}
				member.Remove(field)
			}
			member.Apply(ev.Data)
			if rolesChanged {
				fx.recalcServer = ev.ID.Server
			}
		}

	case *models.ServerMemberLeave:
		if ev.User == s.cache.selfID {
			s.evictServer(ctx, ev.ID)
		}

	case *models.ServerRoleUpdate:
		s.handleRoleUpdate(ev, &fx)

	case *models.ServerRoleDelete:
		if server, ok := s.cache.servers[ev.ID]; ok {
			delete(server.Roles, ev.RoleID)
		}
		if member, ok := s.cache.members[ev.ID]; ok && member.HasRole(ev.RoleID) {
			kept := member.Roles[:0]
			for _, r := range member.Roles {
				if r != ev.RoleID {
					kept = append(kept, r)
				}
			}
			member.Roles = kept
			fx.recalcServer = ev.ID
		}

	case *models.UserUpdate:
		return s.handleUserUpdate(ctx, ev, &fx)

	case *models.UserRelationship:
		s.handleRelationship(ev, &fx)

	case *models.MessageEvent:
		if ev.User != nil {
			if self := s.cache.Self(); self != nil {
				ev.User.Relationship = self.RelationshipWith(ev.Author)
			}
		}

	default:
		// Kinds this engine does not interpret pass through untouched.
	}

	return event, fx, true
}

// handleChannelUpdate applies the diff and reconciles a visibility flip:
// newly hidden channels leave the cache and the event becomes a synthetic
// ChannelDelete; newly visible ones are fetched, cached and announced as a
// synthetic ChannelCreate.
func (s *State) handleChannelUpdate(ctx context.Context, ev *models.ChannelUpdate) models.Event {
	if cached, ok := s.cache.channels[ev.ID]; ok {
		for _, field := range ev.Clear {
			cached.Remove(field)
		}
		cached.Apply(ev.Data)

		if cached.IsServerOwned() && !s.CanViewChannel(ctx, cached) {
			s.evictChannel(ctx, ev.ID)
			return &models.ChannelDelete{ID: ev.ID}
		}
		return ev
	}

	// Not cached: a permission-affecting update may have made the channel
	// visible. Fetch the post-update record and check.
	channel, err := s.db.FetchChannel(ctx, ev.ID)
	if err != nil {
		s.log.Warn("Channel fetch failed during update", "channelID", ev.ID, "error", err)
		return ev
	}
	for _, field := range ev.Clear {
		channel.Remove(field)
	}
	channel.Apply(ev.Data)

	if !s.CanViewChannel(ctx, channel) {
		return ev
	}
	s.insertChannel(ctx, channel)
	return &models.ChannelCreate{Channel: *channel}
}

// handleGroupLeave drops the leaver from the cached recipient list first so
// the subscription check sees the post-leave membership.
func (s *State) handleGroupLeave(ctx context.Context, ev *models.ChannelGroupLeave, fx *effects) {
	if ch, ok := s.cache.channels[ev.ID]; ok && ch.HasRecipient(ev.User) {
		kept := ch.Recipients[:0]
		for _, r := range ch.Recipients {
			if r != ev.User {
				kept = append(kept, r)
			}
		}
		ch.Recipients = kept
	}

	if ev.User == s.cache.selfID {
		s.evictChannel(ctx, ev.ID)
		return
	}
	if !s.CanSubscribeToUser(ev.User) {
		fx.unsubscribe = append(fx.unsubscribe, ev.User)
	}
}

// handleServerCreate seeds the server, a synthetic self membership and the
// viewable bundled channels, then queues a recalculation to pick up any
// channel the bundle missed.
func (s *State) handleServerCreate(ctx context.Context, ev *models.ServerCreate, fx *effects) {
	if !s.insertSubscription(ctx, ev.ID) {
		return
	}
	if s.cache.isBot {
		s.insertSubscription(ctx, ev.ID+"u")
	}

	server := ev.Server
	s.cache.servers[ev.ID] = &server
	s.cache.members[ev.ID] = &models.Member{
		ID:       models.MemberID{Server: ev.ID, User: s.cache.selfID},
		JoinedAt: time.Now().UTC(),
	}

	for i := range ev.Channels {
		if s.CanViewChannel(ctx, &ev.Channels[i]) {
			s.insertChannel(ctx, &ev.Channels[i])
		}
	}
	fx.recalcServer = ev.ID
}

func (s *State) handleRoleUpdate(ev *models.ServerRoleUpdate, fx *effects) {
	server, ok := s.cache.servers[ev.ID]
	if !ok {
		return
	}
	role, ok := server.Roles[ev.RoleID]
	if !ok {
		return
	}
	for _, field := range ev.Clear {
		role.Remove(field)
	}
	role.Apply(ev.Data)
	server.Roles[ev.RoleID] = role

	if ev.Data.Rank == nil && ev.Data.Permissions == nil {
		return
	}
	if member, held := s.cache.members[ev.ID]; held && member.HasRole(ev.RoleID) {
		fx.recalcServer = ev.ID
	}
}

// handleUserUpdate dedups rebroadcasts by idempotency key and applies the
// diff. Changes touching neither identity nor presence nor avatar are
// forwarded without any cache work; an uncached user is fetched and cached
// only for identity or presence changes.
func (s *State) handleUserUpdate(ctx context.Context, ev *models.UserUpdate, fx *effects) (models.Event, effects, bool) {
	if ev.EventID != "" {
		if s.cache.seenEvents.Contains(ev.EventID) {
			return nil, *fx, false
		}
		s.cache.seenEvents.Add(ev.EventID, struct{}{})
		ev.EventID = ""
	}

	essential := ev.Data.DisplayName != nil || ev.Data.Status != nil || ev.Data.Online != nil
	avatar := ev.Data.Avatar != nil
	for _, field := range ev.Clear {
		switch field {
		case models.FieldsUserDisplayName, models.FieldsUserStatusText, models.FieldsUserStatusPresence:
			essential = true
		case models.FieldsUserAvatar:
			avatar = true
		}
	}
	if !essential && !avatar {
		return ev, *fx, true
	}

	if cached, ok := s.cache.users[ev.ID]; ok {
		for _, field := range ev.Clear {
			cached.Remove(field)
		}
		cached.Apply(ev.Data)
		return ev, *fx, true
	}

	if essential {
		user, err := s.db.FetchUser(ctx, ev.ID)
		if err != nil {
			s.log.Warn("User fetch failed during update", "userID", ev.ID, "error", err)
			return ev, *fx, true
		}
		for _, field := range ev.Clear {
			user.Remove(field)
		}
		user.Apply(ev.Data)
		fx.subscribe = append(fx.subscribe, ev.ID)
		fx.cacheUser = user
	}
	return ev, *fx, true
}

// handleRelationship records the new status on the self record, then keeps
// or drops the counterpart's cache entry and subscription to match what
// CanSubscribeToUser now says.
func (s *State) handleRelationship(ev *models.UserRelationship, fx *effects) {
	if self := s.cache.Self(); self != nil {
		updated := false
		kept := self.Relations[:0]
		for _, rel := range self.Relations {
			if rel.ID != ev.ID {
				kept = append(kept, rel)
				continue
			}
			if ev.Status != models.RelationshipNone {
				rel.Status = ev.Status
				kept = append(kept, rel)
			}
			updated = true
		}
		self.Relations = kept
		if !updated && ev.Status != models.RelationshipNone {
			self.Relations = append(self.Relations, models.Relationship{ID: ev.ID, Status: ev.Status})
		}
	}

	if s.CanSubscribeToUser(ev.ID) {
		user := ev.User
		fx.subscribe = append(fx.subscribe, ev.ID)
		fx.cacheUser = &user
	} else {
		fx.unsubscribe = append(fx.unsubscribe, ev.ID)
	}
}
