// Package database exposes the fetch surface the sync engine consumes and
// its production GORM/MySQL implementation.
package database

import (
	"context"
	"errors"

	"push-gateway/internal/models"
)

// ErrNotFound reports a fetch-by-id miss.
var ErrNotFound = errors.New("database: not found")

// Store is the read surface the engine depends on. Implementations must be
// safe for concurrent use across connection flows.
type Store interface {
	// Users
	FetchUser(ctx context.Context, id string) (*models.User, error)
	FetchUsers(ctx context.Context, ids []string) ([]models.User, error)

	// Servers and memberships
	FetchServers(ctx context.Context, ids []string) ([]models.Server, error)
	FetchMemberships(ctx context.Context, userID string) ([]models.Member, error)
	FetchMembers(ctx context.Context, serverID string, userIDs []string) ([]models.Member, error)

	// Channels
	FetchChannel(ctx context.Context, id string) (*models.Channel, error)
	FetchChannels(ctx context.Context, ids []string) ([]models.Channel, error)
	FetchDirectChannels(ctx context.Context, userID string) ([]models.Channel, error)

	// Ready extras
	FetchEmojiByParents(ctx context.Context, parentIDs []string) ([]models.Emoji, error)
	FetchUserSettings(ctx context.Context, userID string, keys []string) (map[string]models.UserSetting, error)
	FetchUnreads(ctx context.Context, userID string) ([]models.ChannelUnread, error)
	FetchPolicyChanges(ctx context.Context) ([]models.PolicyChange, error)
}
