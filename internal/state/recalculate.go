package state

import (
	"context"

	"push-gateway/internal/models"
)

// RecalculateServer re-derives which of a server's channels are visible and
// reconciles the cache and subscriptions against that, emitting a synthetic
// ChannelCreate for each newly visible channel and a ChannelDelete for each
// newly hidden one. Returns the synthetic events wrapped in a Bulk, or nil
// when nothing changed.
func (s *State) RecalculateServer(ctx context.Context, serverID string) models.Event {
	synthetic := s.recalculateServer(ctx, serverID)
	if len(synthetic) == 0 {
		return nil
	}
	return &models.Bulk{V: synthetic}
}

func (s *State) recalculateServer(ctx context.Context, serverID string) []models.Event {
	server, ok := s.cache.servers[serverID]
	if !ok {
		return nil
	}

	var synthetic []models.Event
	known := make(map[string]struct{}, len(server.ChannelIDs))
	var missing []string

	for _, id := range server.ChannelIDs {
		cached, held := s.cache.channels[id]
		if !held {
			missing = append(missing, id)
			continue
		}
		known[id] = struct{}{}
		if !s.CanViewChannel(ctx, cached) {
			s.evictChannel(ctx, id)
			synthetic = append(synthetic, &models.ChannelDelete{ID: id})
		}
	}

	// Cached channels the server no longer lists are stale; drop them too.
	for id, ch := range s.cache.channels {
		if ch.Server != serverID {
			continue
		}
		if _, listed := known[id]; !listed {
			s.evictChannel(ctx, id)
			synthetic = append(synthetic, &models.ChannelDelete{ID: id})
		}
	}

	if len(missing) > 0 {
		fetched, err := s.db.FetchChannels(ctx, missing)
		if err != nil {
			s.log.Warn("Channel backfill failed during recalculation",
				"serverID", serverID, "error", err)
		} else {
			for i := range fetched {
				if !s.CanViewChannel(ctx, &fetched[i]) {
					continue
				}
				s.insertChannel(ctx, &fetched[i])
				synthetic = append(synthetic, &models.ChannelCreate{Channel: fetched[i]})
			}
		}
	}

	return synthetic
}
