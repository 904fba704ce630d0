package models

import (
	"time"
)

/** -------------------- ENTITIES -------------------- */

// RelationshipStatus describes how the session's account relates to another user.
type RelationshipStatus string

const (
	RelationshipNone         RelationshipStatus = "None"
	RelationshipSelf         RelationshipStatus = "User" // the account itself
	RelationshipFriend       RelationshipStatus = "Friend"
	RelationshipOutgoing     RelationshipStatus = "Outgoing"
	RelationshipIncoming     RelationshipStatus = "Incoming"
	RelationshipBlocked      RelationshipStatus = "Blocked"
	RelationshipBlockedOther RelationshipStatus = "BlockedOther"
)

// Relationship is one entry of a user's stored relations list.
type Relationship struct {
	ID     string             `json:"_id"`
	Status RelationshipStatus `json:"status"`
}

// PresenceKind is the user-selected presence mode.
type PresenceKind string

const (
	PresenceOnline    PresenceKind = "Online"
	PresenceIdle      PresenceKind = "Idle"
	PresenceFocus     PresenceKind = "Focus"
	PresenceBusy      PresenceKind = "Busy"
	PresenceInvisible PresenceKind = "Invisible"
)

// UserStatus is the custom status block on a user.
type UserStatus struct {
	Text     string       `json:"text,omitempty"`
	Presence PresenceKind `json:"presence,omitempty"`
}

// BotInfo marks an account as a bot and records its owner.
type BotInfo struct {
	Owner string `json:"owner"`
}

// User represents the user entity as cached per connection.
type User struct {
	ID            string         `gorm:"primaryKey;size:26" json:"_id"`
	Username      string         `gorm:"uniqueIndex;not null" json:"username"`
	Discriminator string         `gorm:"size:4" json:"discriminator"`
	DisplayName   *string        `json:"display_name,omitempty"`
	Avatar        *string        `json:"avatar,omitempty"`
	Relations     []Relationship `gorm:"serializer:json" json:"relations,omitempty"`
	Status        *UserStatus    `gorm:"serializer:json" json:"status,omitempty"`
	Bot           *BotInfo       `gorm:"serializer:json" json:"bot,omitempty"`
	Privileged    bool           `json:"privileged,omitempty"`

	// Timestamp of the newest policy change the account has acknowledged.
	LastAcknowledgedPolicyChange time.Time `json:"last_acknowledged_policy_change,omitempty"`
}

// RelationshipWith resolves the account's relationship with the given user id.
func (u *User) RelationshipWith(userID string) RelationshipStatus {
	if u.ID == userID {
		return RelationshipSelf
	}
	for _, rel := range u.Relations {
		if rel.ID == userID {
			return rel.Status
		}
	}
	return RelationshipNone
}

// IsBot reports whether the account is a bot account.
func (u *User) IsBot() bool {
	return u.Bot != nil
}

/** -------------------- PARTIALS -------------------- */

// FieldsUser enumerates clearable user fields carried on UserUpdate events.
type FieldsUser string

const (
	FieldsUserAvatar            FieldsUser = "Avatar"
	FieldsUserStatusText        FieldsUser = "StatusText"
	FieldsUserStatusPresence    FieldsUser = "StatusPresence"
	FieldsUserDisplayName       FieldsUser = "DisplayName"
	FieldsUserProfileContent    FieldsUser = "ProfileContent"
	FieldsUserProfileBackground FieldsUser = "ProfileBackground"
	FieldsUserInternal          FieldsUser = "Internal"
)

// PartialUser is the diff payload of a UserUpdate event. Online rides along
// on synthesized presence broadcasts and is never persisted.
type PartialUser struct {
	Username    *string     `json:"username,omitempty"`
	DisplayName *string     `json:"display_name,omitempty"`
	Avatar      *string     `json:"avatar,omitempty"`
	Status      *UserStatus `json:"status,omitempty"`
	Online      *bool       `json:"online,omitempty"`
}

// Apply merges the set fields of the diff into the user, last write wins.
func (u *User) Apply(data PartialUser) {
	if data.Username != nil {
		u.Username = *data.Username
	}
	if data.DisplayName != nil {
		u.DisplayName = data.DisplayName
	}
	if data.Avatar != nil {
		u.Avatar = data.Avatar
	}
	if data.Status != nil {
		if u.Status == nil {
			u.Status = &UserStatus{}
		}
		if data.Status.Text != "" {
			u.Status.Text = data.Status.Text
		}
		if data.Status.Presence != "" {
			u.Status.Presence = data.Status.Presence
		}
	}
}

// Remove clears one field of the user.
func (u *User) Remove(field FieldsUser) {
	switch field {
	case FieldsUserAvatar:
		u.Avatar = nil
	case FieldsUserDisplayName:
		u.DisplayName = nil
	case FieldsUserStatusText:
		if u.Status != nil {
			u.Status.Text = ""
		}
	case FieldsUserStatusPresence:
		if u.Status != nil {
			u.Status.Presence = ""
		}
	}
}

/** -------------------- VIEWS -------------------- */

// UserView is the client-visible conversion of a cached user, tagged with
// the relationship to the session's account and the live online flag.
type UserView struct {
	User
	Relationship RelationshipStatus `json:"relationship"`
	Online       bool               `json:"online"`
}

// IntoKnown converts a user for delivery to the given viewer.
func (u User) IntoKnown(viewer *User, online bool) UserView {
	// Stored relations are private to their owner.
	u.Relations = nil
	return UserView{
		User:         u,
		Relationship: viewer.RelationshipWith(u.ID),
		Online:       online,
	}
}

// IntoSelf converts the account's own user record; relations stay attached.
func (u User) IntoSelf(online bool) UserView {
	return UserView{
		User:         u,
		Relationship: RelationshipSelf,
		Online:       online,
	}
}
