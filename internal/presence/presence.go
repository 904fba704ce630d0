// Package presence holds the redis-backed presence and voice oracles.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const onlineUsersKey = "online_users"

// Oracle answers which of a set of users are currently online.
// Safe for concurrent use.
type Oracle interface {
	FilterOnline(ctx context.Context, ids []string) (map[string]struct{}, error)
}

// Tracker additionally flips a user's own presence as connections come and go.
type Tracker interface {
	Oracle
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
}

// RedisPresence keeps liveness in a shared redis set plus a per-user status
// hash with a liveness TTL.
type RedisPresence struct {
	client *redis.Client
}

var _ Tracker = (*RedisPresence)(nil)

func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{client: client}
}

// FilterOnline returns the online subset of ids as a set.
func (p *RedisPresence) FilterOnline(ctx context.Context, ids []string) (map[string]struct{}, error) {
	online := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return online, nil
	}

	flags, err := p.client.SMIsMember(ctx, onlineUsersKey, toAnySlice(ids)...).Result()
	if err != nil {
		return nil, fmt.Errorf("presence lookup: %w", err)
	}
	for i, isOnline := range flags {
		if isOnline {
			online[ids[i]] = struct{}{}
		}
	}
	return online, nil
}

func (p *RedisPresence) SetOnline(ctx context.Context, userID string) error {
	pipe := p.client.Pipeline()
	pipe.SAdd(ctx, onlineUsersKey, userID)
	pipe.HSet(ctx, statusKey(userID), map[string]interface{}{
		"status":     "online",
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, statusKey(userID), 5*time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to set user online", "userID", userID, "error", err)
		return err
	}
	return nil
}

func (p *RedisPresence) SetOffline(ctx context.Context, userID string) error {
	pipe := p.client.Pipeline()
	pipe.SRem(ctx, onlineUsersKey, userID)
	pipe.HSet(ctx, statusKey(userID), map[string]interface{}{
		"status":     "offline",
		"last_seen":  time.Now().Unix(),
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, statusKey(userID), 24*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to set user offline", "userID", userID, "error", err)
		return err
	}
	return nil
}

func statusKey(userID string) string {
	return fmt.Sprintf("user:%s:status", userID)
}

func toAnySlice(ids []string) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
