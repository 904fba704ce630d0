package state

import (
	"context"
	"sync"

	"push-gateway/internal/bus"
	"push-gateway/internal/database"
	"push-gateway/internal/models"
)

// fakeStore is an in-memory Store backed by plain maps.
type fakeStore struct {
	users    map[string]models.User
	servers  map[string]models.Server
	channels map[string]models.Channel
	members  []models.Member

	policyChanges []models.PolicyChange
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]models.User),
		servers:  make(map[string]models.Server),
		channels: make(map[string]models.Channel),
	}
}

func (f *fakeStore) FetchUser(ctx context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &u, nil
}

func (f *fakeStore) FetchUsers(ctx context.Context, ids []string) ([]models.User, error) {
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchServers(ctx context.Context, ids []string) ([]models.Server, error) {
	out := make([]models.Server, 0, len(ids))
	for _, id := range ids {
		if s, ok := f.servers[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchMemberships(ctx context.Context, userID string) ([]models.Member, error) {
	var out []models.Member
	for _, m := range f.members {
		if m.ID.User == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchMembers(ctx context.Context, serverID string, userIDs []string) ([]models.Member, error) {
	var out []models.Member
	for _, m := range f.members {
		if m.ID.Server != serverID {
			continue
		}
		for _, id := range userIDs {
			if m.ID.User == id {
				out = append(out, m)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) FetchChannel(ctx context.Context, id string) (*models.Channel, error) {
	c, ok := f.channels[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &c, nil
}

func (f *fakeStore) FetchChannels(ctx context.Context, ids []string) ([]models.Channel, error) {
	out := make([]models.Channel, 0, len(ids))
	for _, id := range ids {
		if c, ok := f.channels[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchDirectChannels(ctx context.Context, userID string) ([]models.Channel, error) {
	var out []models.Channel
	for _, c := range f.channels {
		if c.IsDirect() && c.HasRecipient(userID) {
			out = append(out, c)
		}
		if c.Kind == models.ChannelSavedMessages && c.Owner == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchEmojiByParents(ctx context.Context, parentIDs []string) ([]models.Emoji, error) {
	return nil, nil
}

func (f *fakeStore) FetchUserSettings(ctx context.Context, userID string, keys []string) (map[string]models.UserSetting, error) {
	return nil, nil
}

func (f *fakeStore) FetchUnreads(ctx context.Context, userID string) ([]models.ChannelUnread, error) {
	return nil, nil
}

func (f *fakeStore) FetchPolicyChanges(ctx context.Context) ([]models.PolicyChange, error) {
	return f.policyChanges, nil
}

// fakeConn records subscription traffic.
type fakeConn struct {
	mu         sync.Mutex
	subscribed map[string]struct{}
	calls      []string
	deliveries chan bus.Delivery
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		subscribed: make(map[string]struct{}),
		deliveries: make(chan bus.Delivery, 16),
	}
}

func (c *fakeConn) Subscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed[topic] = struct{}{}
	c.calls = append(c.calls, "+"+topic)
	return nil
}

func (c *fakeConn) Unsubscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribed, topic)
	c.calls = append(c.calls, "-"+topic)
	return nil
}

func (c *fakeConn) Deliveries() <-chan bus.Delivery { return c.deliveries }
func (c *fakeConn) Close() error                    { return nil }

func (c *fakeConn) isSubscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscribed[topic]
	return ok
}

// fakePublisher records published events per topic.
type fakePublisher struct {
	mu        sync.Mutex
	published []publishedEvent
}

type publishedEvent struct {
	topic string
	event models.Event
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, event models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, publishedEvent{topic: topic, event: event})
	return nil
}

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.published))
	for _, pub := range p.published {
		out = append(out, pub.topic)
	}
	return out
}

// staticPresence answers from a fixed online set.
type staticPresence struct {
	online map[string]struct{}
}

func (p *staticPresence) FilterOnline(ctx context.Context, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := p.online[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// staticVoice answers from fixed per-channel participant lists.
type staticVoice struct {
	participants map[string][]string
}

func (v *staticVoice) GetChannelVoiceState(ctx context.Context, channel *models.Channel) (*models.VoiceState, error) {
	ids, ok := v.participants[channel.ID]
	if !ok || len(ids) == 0 {
		return nil, nil
	}
	state := &models.VoiceState{ChannelID: channel.ID}
	for _, id := range ids {
		state.Participants = append(state.Participants, models.VoiceParticipant{ID: id})
	}
	return state, nil
}
