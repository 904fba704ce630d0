package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"push-gateway/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// NewMySQLConnection opens the shared GORM handle and migrates the schema.
func NewMySQLConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		PrepareStmt:            false,
		SkipDefaultTransaction: true,
		AllowGlobalUpdate:      false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	err = db.AutoMigrate(
		&models.User{},
		&models.Server{},
		&models.Channel{},
		&models.Member{},
		&models.Emoji{},
		&models.ChannelUnread{},
		&models.PolicyChange{},
		&models.UserSetting{},
	)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// GormStore implements Store on a GORM handle.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FetchUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch user %s: %w", id, err)
	}
	return &user, nil
}

func (s *GormStore) FetchUsers(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	return users, nil
}

func (s *GormStore) FetchServers(ctx context.Context, ids []string) ([]models.Server, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var servers []models.Server
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&servers).Error; err != nil {
		return nil, fmt.Errorf("fetch servers: %w", err)
	}
	return servers, nil
}

func (s *GormStore) FetchMemberships(ctx context.Context, userID string) ([]models.Member, error) {
	var members []models.Member
	if err := s.db.WithContext(ctx).Where("user = ?", userID).Find(&members).Error; err != nil {
		return nil, fmt.Errorf("fetch memberships of %s: %w", userID, err)
	}
	return members, nil
}

func (s *GormStore) FetchMembers(ctx context.Context, serverID string, userIDs []string) ([]models.Member, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var members []models.Member
	err := s.db.WithContext(ctx).
		Where("server = ? AND user IN ?", serverID, userIDs).
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("fetch members of %s: %w", serverID, err)
	}
	return members, nil
}

func (s *GormStore) FetchChannel(ctx context.Context, id string) (*models.Channel, error) {
	var channel models.Channel
	if err := s.db.WithContext(ctx).First(&channel, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("channel %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch channel %s: %w", id, err)
	}
	return &channel, nil
}

func (s *GormStore) FetchChannels(ctx context.Context, ids []string) ([]models.Channel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var channels []models.Channel
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("fetch channels: %w", err)
	}
	return channels, nil
}

func (s *GormStore) FetchDirectChannels(ctx context.Context, userID string) ([]models.Channel, error) {
	var channels []models.Channel
	err := s.db.WithContext(ctx).
		Where("kind IN ? AND JSON_CONTAINS(recipients, JSON_QUOTE(?))",
			[]models.ChannelKind{models.ChannelDirectMessage, models.ChannelGroup}, userID).
		Or("kind = ? AND owner = ?", models.ChannelSavedMessages, userID).
		Find(&channels).Error
	if err != nil {
		return nil, fmt.Errorf("fetch direct channels of %s: %w", userID, err)
	}
	return channels, nil
}

func (s *GormStore) FetchEmojiByParents(ctx context.Context, parentIDs []string) ([]models.Emoji, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var emoji []models.Emoji
	if err := s.db.WithContext(ctx).Where("parent IN ?", parentIDs).Find(&emoji).Error; err != nil {
		return nil, fmt.Errorf("fetch emoji: %w", err)
	}
	return emoji, nil
}

func (s *GormStore) FetchUserSettings(ctx context.Context, userID string, keys []string) (map[string]models.UserSetting, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var rows []models.UserSetting
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND `key` IN ?", userID, keys).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch settings of %s: %w", userID, err)
	}
	settings := make(map[string]models.UserSetting, len(rows))
	for _, row := range rows {
		settings[row.Key] = row
	}
	return settings, nil
}

func (s *GormStore) FetchUnreads(ctx context.Context, userID string) ([]models.ChannelUnread, error) {
	var unreads []models.ChannelUnread
	if err := s.db.WithContext(ctx).Where("user = ?", userID).Find(&unreads).Error; err != nil {
		return nil, fmt.Errorf("fetch unreads of %s: %w", userID, err)
	}
	return unreads, nil
}

func (s *GormStore) FetchPolicyChanges(ctx context.Context) ([]models.PolicyChange, error) {
	var changes []models.PolicyChange
	if err := s.db.WithContext(ctx).Order("created_time ASC").Find(&changes).Error; err != nil {
		return nil, fmt.Errorf("fetch policy changes: %w", err)
	}
	return changes, nil
}
