package state

import (
	"context"
	"fmt"
	"sort"

	"push-gateway/internal/models"
)

// Ready builds the initial permission-filtered snapshot and rebuilds the
// cache and subscription set from scratch. Any fetch failure aborts the
// whole call; a partial Ready is never returned. The caller frames the
// result as the first event on the wire.
func (s *State) Ready(ctx context.Context, fields models.ReadyFields) (*models.Ready, error) {
	self, err := s.db.FetchUser(ctx, s.cache.selfID)
	if err != nil {
		return nil, fmt.Errorf("resolve self account: %w", err)
	}
	isBot := self.IsBot()

	var policyChanges *[]models.PolicyChange
	if fields.PolicyChanges && !isBot {
		all, err := s.db.FetchPolicyChanges(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch policy changes: %w", err)
		}
		pending := make([]models.PolicyChange, 0)
		for _, pc := range all {
			if pc.CreatedTime.After(self.LastAcknowledgedPolicyChange) {
				pending = append(pending, pc)
			}
		}
		policyChanges = &pending
	}

	knownUserIDs := make(map[string]struct{})
	for _, rel := range self.Relations {
		knownUserIDs[rel.ID] = struct{}{}
	}

	members, err := s.db.FetchMemberships(ctx, self.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch memberships: %w", err)
	}

	serverIDs := make([]string, 0, len(members))
	for _, m := range members {
		serverIDs = append(serverIDs, m.ID.Server)
	}
	servers, err := s.db.FetchServers(ctx, serverIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch servers: %w", err)
	}

	// Stage self, servers and memberships so the visibility predicates see
	// current state while filtering. The full rebuild below replaces all of
	// this anyway.
	s.cache.users[self.ID] = self
	for i := range servers {
		s.cache.servers[servers[i].ID] = &servers[i]
	}
	for i := range members {
		s.cache.members[members[i].ID.Server] = &members[i]
	}

	var serverChannelIDs []string
	for _, srv := range servers {
		serverChannelIDs = append(serverChannelIDs, srv.ChannelIDs...)
	}

	channels, err := s.db.FetchDirectChannels(ctx, self.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch direct channels: %w", err)
	}
	serverChannels, err := s.db.FetchChannels(ctx, serverChannelIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch server channels: %w", err)
	}
	channels = append(channels, serverChannels...)
	channels = s.FilterAccessibleChannels(ctx, channels)

	for i := range channels {
		if channels[i].IsDirect() {
			for _, r := range channels[i].Recipients {
				knownUserIDs[r] = struct{}{}
			}
		}
	}

	var voiceStates *[]models.VoiceState
	if fields.VoiceStates {
		states, extraMembers := s.gatherVoiceStates(ctx, channels, knownUserIDs)
		members = append(members, extraMembers...)
		voiceStates = &states
	}

	// Sorted for deterministic payload ordering.
	knownIDList := make([]string, 0, len(knownUserIDs))
	for id := range knownUserIDs {
		knownIDList = append(knownIDList, id)
	}
	sort.Strings(knownIDList)

	onlineIDs, err := s.presence.FilterOnline(ctx, knownIDList)
	if err != nil {
		return nil, fmt.Errorf("presence lookup: %w", err)
	}

	// Batch-fetch only users we have never seen; merge with cached copies.
	var toFetch []string
	for _, id := range knownIDList {
		if id == self.ID {
			continue
		}
		if _, ok := s.cache.users[id]; !ok {
			toFetch = append(toFetch, id)
		}
	}
	fetchedUsers, err := s.db.FetchUsers(ctx, toFetch)
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}

	knownUsers := make(map[string]*models.User, len(knownUserIDs))
	for i := range fetchedUsers {
		knownUsers[fetchedUsers[i].ID] = &fetchedUsers[i]
	}
	for _, id := range knownIDList {
		if id == self.ID {
			continue
		}
		if _, ok := knownUsers[id]; ok {
			continue
		}
		if cached, ok := s.cache.users[id]; ok {
			knownUsers[id] = cached
		}
	}

	// Convert to client-visible form; self last with its distinguished
	// conversion.
	userViews := make([]models.UserView, 0, len(knownUsers)+1)
	for _, id := range knownIDList {
		user, ok := knownUsers[id]
		if !ok {
			continue
		}
		_, online := onlineIDs[id]
		userViews = append(userViews, user.IntoKnown(self, online))
	}
	userViews = append(userViews, self.IntoSelf(true))

	var emoji *[]models.Emoji
	if fields.Emoji {
		fetched, err := s.db.FetchEmojiByParents(ctx, serverIDs)
		if err != nil {
			return nil, fmt.Errorf("fetch emoji: %w", err)
		}
		if fetched == nil {
			fetched = make([]models.Emoji, 0)
		}
		emoji = &fetched
	}

	var userSettings map[string]models.UserSetting
	if len(fields.UserSettings) > 0 {
		userSettings, err = s.db.FetchUserSettings(ctx, self.ID, fields.UserSettings)
		if err != nil {
			return nil, fmt.Errorf("fetch user settings: %w", err)
		}
		if userSettings == nil {
			userSettings = make(map[string]models.UserSetting)
		}
	}

	var channelUnreads *[]models.ChannelUnread
	if fields.ChannelUnreads {
		fetched, err := s.db.FetchUnreads(ctx, self.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch unreads: %w", err)
		}
		if fetched == nil {
			fetched = make([]models.ChannelUnread, 0)
		}
		channelUnreads = &fetched
	}

	// Full reset, then rebuild cache and subscriptions pairwise:
	// subscribe-before-insert for every object that enters the cache.
	s.resetState(ctx)
	s.cache.isBot = isBot

	s.insertSubscription(ctx, s.privateTopic)

	for _, view := range userViews {
		if s.insertSubscription(ctx, view.User.ID) {
			if cached, ok := knownUsers[view.User.ID]; ok {
				s.cache.users[view.User.ID] = cached
			}
		}
	}
	s.cache.users[self.ID] = self

	for i := range servers {
		if !s.insertSubscription(ctx, servers[i].ID) {
			continue
		}
		s.cache.servers[servers[i].ID] = &servers[i]
		if isBot {
			s.insertSubscription(ctx, servers[i].ID+"u")
		}
	}
	for i := range members {
		if _, ok := s.cache.servers[members[i].ID.Server]; ok {
			if _, held := s.cache.members[members[i].ID.Server]; !held {
				s.cache.members[members[i].ID.Server] = &members[i]
			}
		}
	}
	for i := range channels {
		s.insertChannel(ctx, &channels[i])
	}

	ready := &models.Ready{
		VoiceStates:    voiceStates,
		Emoji:          emoji,
		UserSettings:   userSettings,
		ChannelUnreads: channelUnreads,
		PolicyChanges:  policyChanges,
	}
	if fields.Users {
		ready.Users = &userViews
	}
	if fields.Servers {
		ready.Servers = &servers
	}
	if fields.Channels {
		ready.Channels = &channels
	}
	if fields.Members {
		ready.Members = &members
	}
	return ready, nil
}

// gatherVoiceStates queries the voice oracle for every direct, group and
// voice-enabled text channel. Participants become known users; for
// server-scoped channels their memberships are backfilled so the client can
// render them even outside the account's own member list. Backfill failures
// are logged and ignored.
func (s *State) gatherVoiceStates(ctx context.Context, channels []models.Channel, knownUserIDs map[string]struct{}) ([]models.VoiceState, []models.Member) {
	states := make([]models.VoiceState, 0)
	serverToParticipants := make(map[string]map[string]struct{})

	for i := range channels {
		ch := &channels[i]
		if !ch.HasVoice() {
			continue
		}

		vs, err := s.voice.GetChannelVoiceState(ctx, ch)
		if err != nil {
			s.log.Warn("Voice state lookup failed", "channelID", ch.ID, "error", err)
			continue
		}
		if vs == nil {
			continue
		}

		if ch.IsServerOwned() {
			set, ok := serverToParticipants[ch.Server]
			if !ok {
				set = make(map[string]struct{})
				serverToParticipants[ch.Server] = set
			}
			for _, p := range vs.Participants {
				knownUserIDs[p.ID] = struct{}{}
				set[p.ID] = struct{}{}
			}
		} else {
			// Direct and group participants become known users only; no
			// membership backfill for them.
			for _, p := range vs.Participants {
				knownUserIDs[p.ID] = struct{}{}
			}
		}
		states = append(states, *vs)
	}

	var extra []models.Member
	for serverID, participants := range serverToParticipants {
		ids := make([]string, 0, len(participants))
		for id := range participants {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		fetched, err := s.db.FetchMembers(ctx, serverID, ids)
		if err != nil {
			s.log.Warn("Voice member backfill failed", "serverID", serverID, "error", err)
			continue
		}
		extra = append(extra, fetched...)
	}
	return states, extra
}
