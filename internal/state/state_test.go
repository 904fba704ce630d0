package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"push-gateway/internal/models"
	"push-gateway/internal/permissions"
)

const viewGrant = uint64(permissions.CapViewChannel | permissions.CapReadHistory)

// fixtureStore builds the shared scenario: alice belongs to server A (three
// viewable channels) and server B (one channel, no view grant), shares group
// g1 with bob (a friend) and carol (a stranger).
func fixtureStore() *fakeStore {
	store := newFakeStore()
	store.users["alice"] = models.User{
		ID:       "alice",
		Username: "alice",
		Relations: []models.Relationship{
			{ID: "bob", Status: models.RelationshipFriend},
		},
	}
	store.users["bob"] = models.User{ID: "bob", Username: "bob"}
	store.users["carol"] = models.User{ID: "carol", Username: "carol"}

	store.servers["srvA"] = models.Server{
		ID: "srvA", Owner: "owner1", Name: "A",
		ChannelIDs:         []string{"c1", "c2", "c3"},
		DefaultPermissions: viewGrant,
	}
	store.servers["srvB"] = models.Server{
		ID: "srvB", Owner: "owner1", Name: "B",
		ChannelIDs:         []string{"c4"},
		DefaultPermissions: 0,
	}
	store.members = []models.Member{
		{ID: models.MemberID{Server: "srvA", User: "alice"}},
		{ID: models.MemberID{Server: "srvB", User: "alice"}},
	}

	for _, id := range []string{"c1", "c2", "c3"} {
		store.channels[id] = models.Channel{ID: id, Kind: models.ChannelText, Server: "srvA"}
	}
	store.channels["c4"] = models.Channel{ID: "c4", Kind: models.ChannelText, Server: "srvB"}
	store.channels["g1"] = models.Channel{
		ID: "g1", Kind: models.ChannelGroup, Owner: "alice",
		Recipients: []string{"alice", "bob", "carol"},
	}
	return store
}

func newTestState(store *fakeStore) (*State, *fakeConn, *fakePublisher) {
	conn := newFakeConn()
	pub := &fakePublisher{}
	s := New(Options{
		SelfID:       "alice",
		PrivateTopic: "alice!",
		DB:           store,
		Connection:   conn,
		Publisher:    pub,
		Presence:     &staticPresence{online: map[string]struct{}{"alice": {}, "bob": {}}},
		Voice:        &staticVoice{},
	})
	return s, conn, pub
}

func syncTestState(t *testing.T, store *fakeStore) (*State, *fakeConn, *fakePublisher) {
	t.Helper()
	s, conn, pub := newTestState(store)
	_, err := s.Ready(context.Background(), models.DefaultReadyFields())
	require.NoError(t, err)
	return s, conn, pub
}

// assertPairing checks that every cached object id has a live subscription.
func assertPairing(t *testing.T, s *State, conn *fakeConn) {
	t.Helper()
	for id := range s.cache.users {
		assert.True(t, conn.isSubscribed(id), "user %s cached without subscription", id)
	}
	for id := range s.cache.servers {
		assert.True(t, conn.isSubscribed(id), "server %s cached without subscription", id)
	}
	for id := range s.cache.channels {
		assert.True(t, conn.isSubscribed(id), "channel %s cached without subscription", id)
	}
}

func TestReadyFiltersAndSubscribes(t *testing.T) {
	s, conn, _ := newTestState(fixtureStore())

	ready, err := s.Ready(context.Background(), models.DefaultReadyFields())
	require.NoError(t, err)
	require.NotNil(t, ready.Channels)
	require.NotNil(t, ready.Servers)
	require.NotNil(t, ready.Users)

	channelIDs := make(map[string]bool)
	for _, c := range *ready.Channels {
		channelIDs[c.ID] = true
	}
	assert.True(t, channelIDs["c1"])
	assert.True(t, channelIDs["c2"])
	assert.True(t, channelIDs["c3"])
	assert.True(t, channelIDs["g1"])
	assert.False(t, channelIDs["c4"], "channel without view grant leaked into Ready")

	assert.Len(t, *ready.Servers, 2)

	// Self comes last with relations intact.
	users := *ready.Users
	require.NotEmpty(t, users)
	self := users[len(users)-1]
	assert.Equal(t, "alice", self.User.ID)
	assert.Equal(t, models.RelationshipSelf, self.Relationship)
	assert.NotEmpty(t, self.User.Relations)
	for _, v := range users[:len(users)-1] {
		assert.Empty(t, v.User.Relations, "relations leaked for %s", v.User.ID)
	}

	assert.True(t, conn.isSubscribed("alice!"))
	assert.True(t, conn.isSubscribed("srvB"), "membership without visible channels still subscribes the server")
	assert.False(t, conn.isSubscribed("c4"))
	assertPairing(t, s, conn)
}

func TestReadyIsDeterministic(t *testing.T) {
	store := fixtureStore()
	s, _, _ := newTestState(store)

	first, err := s.Ready(context.Background(), models.DefaultReadyFields())
	require.NoError(t, err)
	second, err := s.Ready(context.Background(), models.DefaultReadyFields())
	require.NoError(t, err)

	ids := func(chs *[]models.Channel) map[string]bool {
		out := make(map[string]bool)
		for _, c := range *chs {
			out[c.ID] = true
		}
		return out
	}
	assert.Equal(t, ids(first.Channels), ids(second.Channels))
	assert.Equal(t, len(*first.Servers), len(*second.Servers))
	assert.Equal(t, len(*first.Users), len(*second.Users))
}

func TestCanViewChannelIdempotent(t *testing.T) {
	s, _, _ := syncTestState(t, fixtureStore())
	ctx := context.Background()

	c1 := s.cache.channels["c1"]
	require.NotNil(t, c1)
	first := s.CanViewChannel(ctx, c1)
	second := s.CanViewChannel(ctx, c1)
	assert.True(t, first)
	assert.Equal(t, first, second)

	c4 := models.Channel{ID: "c4", Kind: models.ChannelText, Server: "srvB"}
	assert.False(t, s.CanViewChannel(ctx, &c4))
	assert.False(t, s.CanViewChannel(ctx, &c4))
}

func TestRecalculateAfterPermissionGrant(t *testing.T) {
	s, conn, _ := syncTestState(t, fixtureStore())
	ctx := context.Background()

	grant := viewGrant
	out, forward := s.HandleEvent(ctx, &models.ServerUpdate{
		ID:   "srvB",
		Data: models.PartialServer{DefaultPermissions: &grant},
	})
	require.True(t, forward)

	bulk, ok := out.(*models.Bulk)
	require.True(t, ok, "permission change should splice a Bulk")
	require.Len(t, bulk.V, 2)

	created, ok := bulk.V[0].(*models.ChannelCreate)
	require.True(t, ok)
	assert.Equal(t, "c4", created.ID)
	_, ok = bulk.V[1].(*models.ServerUpdate)
	assert.True(t, ok, "triggering event rides last in the Bulk")

	assert.NotNil(t, s.cache.channels["c4"])
	assert.True(t, conn.isSubscribed("c4"))
	assertPairing(t, s, conn)
}

func TestRecalculateEvictsOnRevoke(t *testing.T) {
	s, conn, _ := syncTestState(t, fixtureStore())
	ctx := context.Background()

	var revoked uint64
	out, forward := s.HandleEvent(ctx, &models.ServerUpdate{
		ID:   "srvA",
		Data: models.PartialServer{DefaultPermissions: &revoked},
	})
	require.True(t, forward)

	bulk, ok := out.(*models.Bulk)
	require.True(t, ok)
	deletes := 0
	for _, e := range bulk.V {
		if _, isDelete := e.(*models.ChannelDelete); isDelete {
			deletes++
		}
	}
	assert.Equal(t, 3, deletes)
	assert.Nil(t, s.cache.channels["c1"])
	assert.False(t, conn.isSubscribed("c1"))
	assertPairing(t, s, conn)
}

func TestUserUpdateDedup(t *testing.T) {
	s, _, _ := syncTestState(t, fixtureStore())
	ctx := context.Background()

	name := "X"
	first := &models.UserUpdate{
		ID:      "bob",
		Data:    models.PartialUser{DisplayName: &name},
		EventID: "E1",
	}
	out, forward := s.HandleEvent(ctx, first)
	require.True(t, forward)
	require.NotNil(t, s.cache.users["bob"].DisplayName)
	assert.Equal(t, "X", *s.cache.users["bob"].DisplayName)

	// The forwarded copy no longer carries the idempotency key.
	forwarded, ok := out.(*models.UserUpdate)
	require.True(t, ok)
	assert.Empty(t, forwarded.EventID)

	other := "Y"
	replay := &models.UserUpdate{
		ID:      "bob",
		Data:    models.PartialUser{DisplayName: &other},
		EventID: "E1",
	}
	out, forward = s.HandleEvent(ctx, replay)
	assert.False(t, forward)
	assert.Nil(t, out)
	assert.Equal(t, "X", *s.cache.users["bob"].DisplayName)
}

func TestUserUpdateAvatarOnlySkipsFetch(t *testing.T) {
	store := fixtureStore()
	store.users["dave"] = models.User{ID: "dave", Username: "dave"}
	s, conn, _ := syncTestState(t, store)
	ctx := context.Background()

	avatar := "pic"
	_, forward := s.HandleEvent(ctx, &models.UserUpdate{
		ID:   "dave",
		Data: models.PartialUser{Avatar: &avatar},
	})
	require.True(t, forward)
	assert.Nil(t, s.cache.users["dave"], "avatar-only change must not pull an uncached user in")
	assert.False(t, conn.isSubscribed("dave"))
}

func TestGroupLeaveUnsubscribesStranger(t *testing.T) {
	s, conn, _ := syncTestState(t, fixtureStore())
	ctx := context.Background()

	require.True(t, conn.isSubscribed("carol"))

	_, forward := s.HandleEvent(ctx, &models.ChannelGroupLeave{ID: "g1", User: "carol"})
	require.True(t, forward)

	assert.False(t, conn.isSubscribed("carol"))
	assert.Nil(t, s.cache.users["carol"])
	assert.False(t, s.cache.channels["g1"].HasRecipient("carol"))

	// bob stays: still a friend.
	_, forward = s.HandleEvent(ctx, &models.ChannelGroupLeave{ID: "g1", User: "bob"})
	require.True(t, forward)
	assert.True(t, conn.isSubscribed("bob"))
	assertPairing(t, s, conn)
}

func TestGroupLeaveSelfEvictsChannel(t *testing.T) {
	s, conn, _ := syncTestState(t, fixtureStore())

	_, forward := s.HandleEvent(context.Background(), &models.ChannelGroupLeave{ID: "g1", User: "alice"})
	require.True(t, forward)
	assert.Nil(t, s.cache.channels["g1"])
	assert.False(t, conn.isSubscribed("g1"))
	assertPairing(t, s, conn)
}

func TestChannelUpdateVisibilityFlip(t *testing.T) {
	s, conn, _ := syncTestState(t, fixtureStore())
	ctx := context.Background()

	deny := models.Override{Deny: viewGrant}
	out, forward := s.HandleEvent(ctx, &models.ChannelUpdate{
		ID:   "c1",
		Data: models.PartialChannel{DefaultPermissions: &deny},
	})
	require.True(t, forward)

	deleted, ok := out.(*models.ChannelDelete)
	require.True(t, ok, "hidden flip rewrites to ChannelDelete")
	assert.Equal(t, "c1", deleted.ID)
	assert.Nil(t, s.cache.channels["c1"])
	assert.False(t, conn.isSubscribed("c1"))
	assertPairing(t, s, conn)
}

func TestServerDeleteEvictsEverything(t *testing.T) {
	s, conn, _ := syncTestState(t, fixtureStore())

	_, forward := s.HandleEvent(context.Background(), &models.ServerDelete{ID: "srvA"})
	require.True(t, forward)

	assert.Nil(t, s.cache.servers["srvA"])
	assert.Nil(t, s.cache.members["srvA"])
	assert.Nil(t, s.cache.channels["c1"])
	assert.False(t, conn.isSubscribed("srvA"))
	assert.False(t, conn.isSubscribed("c2"))
	assertPairing(t, s, conn)
}

func TestServerCreateSeedsState(t *testing.T) {
	store := fixtureStore()
	s, conn, _ := syncTestState(t, store)
	ctx := context.Background()

	newServer := models.Server{
		ID: "srvC", Owner: "owner1", Name: "C",
		ChannelIDs:         []string{"c5"},
		DefaultPermissions: viewGrant,
	}
	newChannel := models.Channel{ID: "c5", Kind: models.ChannelText, Server: "srvC"}
	store.servers["srvC"] = newServer
	store.channels["c5"] = newChannel

	_, forward := s.HandleEvent(ctx, &models.ServerCreate{
		ID:       "srvC",
		Server:   newServer,
		Channels: []models.Channel{newChannel},
	})
	require.True(t, forward)

	require.NotNil(t, s.cache.servers["srvC"])
	require.NotNil(t, s.cache.members["srvC"], "joining a server seeds the self membership")
	assert.Equal(t, "alice", s.cache.members["srvC"].ID.User)
	assert.NotNil(t, s.cache.channels["c5"])
	assert.True(t, conn.isSubscribed("srvC"))
	assertPairing(t, s, conn)
}

func TestChannelCreateCachesUnconditionally(t *testing.T) {
	s, conn, _ := syncTestState(t, fixtureStore())

	// srvB grants no view capability; the announcement still subscribes,
	// caches and forwards.
	ch := models.Channel{ID: "c9", Kind: models.ChannelText, Server: "srvB"}
	out, forward := s.HandleEvent(context.Background(), &models.ChannelCreate{Channel: ch})
	require.True(t, forward)

	created, ok := out.(*models.ChannelCreate)
	require.True(t, ok)
	assert.Equal(t, "c9", created.ID)
	assert.NotNil(t, s.cache.channels["c9"])
	assert.True(t, conn.isSubscribed("c9"))
	assertPairing(t, s, conn)
}

func TestRoleUpdateIgnoresUnknownRole(t *testing.T) {
	s, _, _ := syncTestState(t, fixtureStore())

	rank := int64(3)
	_, forward := s.HandleEvent(context.Background(), &models.ServerRoleUpdate{
		ID:     "srvA",
		RoleID: "ghost",
		Data:   models.PartialRole{Rank: &rank},
	})
	require.True(t, forward)

	server := s.cache.servers["srvA"]
	require.NotNil(t, server)
	_, exists := server.Roles["ghost"]
	assert.False(t, exists, "a diff must not fabricate a role")
}

func TestServerCreateSkipsHiddenBundledChannels(t *testing.T) {
	store := fixtureStore()
	s, conn, _ := syncTestState(t, store)

	hiddenServer := models.Server{
		ID: "srvD", Owner: "owner1", Name: "D",
		ChannelIDs:         []string{"c6"},
		DefaultPermissions: 0,
	}
	hiddenChannel := models.Channel{ID: "c6", Kind: models.ChannelText, Server: "srvD"}
	store.servers["srvD"] = hiddenServer
	store.channels["c6"] = hiddenChannel

	out, forward := s.HandleEvent(context.Background(), &models.ServerCreate{
		ID:       "srvD",
		Server:   hiddenServer,
		Channels: []models.Channel{hiddenChannel},
	})
	require.True(t, forward)

	// No channel ever became visible, so nothing is spliced into a Bulk.
	_, ok := out.(*models.ServerCreate)
	assert.True(t, ok)
	require.NotNil(t, s.cache.servers["srvD"])
	require.NotNil(t, s.cache.members["srvD"])
	assert.Nil(t, s.cache.channels["c6"])
	assert.False(t, conn.isSubscribed("c6"))
	assertPairing(t, s, conn)
}

func TestRelationshipChangeReconcilesSubscription(t *testing.T) {
	s, conn, _ := syncTestState(t, fixtureStore())
	ctx := context.Background()

	// Blocking bob removes the only remaining reason once the shared group
	// is gone.
	_, forward := s.HandleEvent(ctx, &models.ChannelGroupLeave{ID: "g1", User: "alice"})
	require.True(t, forward)

	_, forward = s.HandleEvent(ctx, &models.UserRelationship{
		ID:     "bob",
		User:   models.User{ID: "bob", Username: "bob"},
		Status: models.RelationshipBlocked,
	})
	require.True(t, forward)
	assert.False(t, conn.isSubscribed("bob"))
	assert.Nil(t, s.cache.users["bob"])

	// A fresh incoming request restores it.
	_, forward = s.HandleEvent(ctx, &models.UserRelationship{
		ID:     "bob",
		User:   models.User{ID: "bob", Username: "bob"},
		Status: models.RelationshipIncoming,
	})
	require.True(t, forward)
	assert.True(t, conn.isSubscribed("bob"))
	require.NotNil(t, s.cache.users["bob"])
	assertPairing(t, s, conn)
}

func TestBroadcastPresence(t *testing.T) {
	s, _, pub := syncTestState(t, fixtureStore())
	ctx := context.Background()

	s.BroadcastPresenceChange(ctx, true)
	topics := pub.topics()
	assert.Len(t, topics, 3)
	assert.Contains(t, topics, "alice!")
	assert.Contains(t, topics, "srvA")
	assert.Contains(t, topics, "srvB")

	update, ok := pub.published[0].event.(*models.UserUpdate)
	require.True(t, ok)
	assert.Equal(t, "alice", update.ID)
	require.NotNil(t, update.Data.Online)
	assert.True(t, *update.Data.Online)
	assert.NotEmpty(t, update.EventID)
}

func TestBroadcastPresenceInvisible(t *testing.T) {
	store := fixtureStore()
	invisible := store.users["alice"]
	invisible.Status = &models.UserStatus{Presence: models.PresenceInvisible}
	store.users["alice"] = invisible

	s, _, pub := syncTestState(t, store)
	s.BroadcastPresenceChange(context.Background(), true)
	assert.Empty(t, pub.published)
}

func TestBroadcastPresenceBeforeSync(t *testing.T) {
	s, _, pub := newTestState(fixtureStore())

	// No Ready yet, so the self record is uncached and nothing publishes.
	s.BroadcastPresenceChange(context.Background(), true)
	assert.Empty(t, pub.published)
}

func TestBulkSuppressedWhenAllMembersDrop(t *testing.T) {
	s, _, _ := syncTestState(t, fixtureStore())
	ctx := context.Background()

	name := "X"
	update := &models.UserUpdate{
		ID:      "bob",
		Data:    models.PartialUser{DisplayName: &name},
		EventID: "E9",
	}
	_, forward := s.HandleEvent(ctx, update)
	require.True(t, forward)

	replay := &models.Bulk{V: []models.Event{&models.UserUpdate{
		ID:      "bob",
		Data:    models.PartialUser{DisplayName: &name},
		EventID: "E9",
	}}}
	out, forward := s.HandleEvent(ctx, replay)
	assert.False(t, forward)
	assert.Nil(t, out)
}

func TestUnknownEventPassesThrough(t *testing.T) {
	s, _, _ := syncTestState(t, fixtureStore())

	raw := &models.UnknownEvent{Type: "Auth", Raw: []byte(`{"type":"Auth"}`)}
	out, forward := s.HandleEvent(context.Background(), raw)
	require.True(t, forward)
	assert.Same(t, models.Event(raw), out)
}
