package models

import (
	"time"
)

// Emoji is a custom emote owned by a server.
type Emoji struct {
	ID        string `gorm:"primaryKey;size:26" json:"_id"`
	Parent    string `gorm:"index;size:26" json:"parent"`
	CreatorID string `gorm:"size:26" json:"creator_id"`
	Name      string `json:"name"`
	Animated  bool   `json:"animated,omitempty"`
}

// ChannelUnread tracks the account's read state in one channel.
type ChannelUnread struct {
	ID       ChannelUnreadID `gorm:"embedded" json:"_id"`
	LastID   *string         `json:"last_id,omitempty"`
	Mentions []string        `gorm:"serializer:json" json:"mentions,omitempty"`
}

// ChannelUnreadID is the composite unread key.
type ChannelUnreadID struct {
	Channel string `gorm:"index;size:26" json:"channel"`
	User    string `gorm:"index;size:26" json:"user"`
}

// PolicyChange is a platform policy notice users must acknowledge.
type PolicyChange struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	CreatedTime   time.Time `json:"created_time"`
	EffectiveTime time.Time `json:"effective_time"`
	Description   string    `json:"description"`
	URL           string    `json:"url"`
}

// UserSetting is one stored settings entry; the payload is opaque to the
// gateway and revision ordering is the client's concern.
type UserSetting struct {
	UserID   string `gorm:"primaryKey;size:26" json:"-"`
	Key      string `gorm:"primaryKey" json:"-"`
	Revision int64  `json:"revision"`
	Payload  string `json:"payload"`
}

// VoiceParticipant is one user present in a voice room.
type VoiceParticipant struct {
	ID string `json:"id"`
}

// VoiceState is the live call state of one channel.
type VoiceState struct {
	ChannelID    string             `json:"id"`
	Participants []VoiceParticipant `json:"participants"`
}

// Message is the chat message payload relayed through the gateway. Only the
// embedded author view is touched here; everything else passes through.
type Message struct {
	ID      string  `json:"_id"`
	Channel string  `json:"channel"`
	Author  string  `json:"author"`
	Content *string `json:"content,omitempty"`

	// User is the denormalized author view some clients request.
	User *UserView `json:"user,omitempty"`
}
