package models

/** -------------------- ENTITIES -------------------- */

// ChannelKind discriminates the channel variants.
type ChannelKind string

const (
	ChannelSavedMessages ChannelKind = "SavedMessages"
	ChannelDirectMessage ChannelKind = "DirectMessage"
	ChannelGroup         ChannelKind = "Group"
	ChannelText          ChannelKind = "TextChannel"
	ChannelVoice         ChannelKind = "VoiceChannel"
)

// Channel represents any channel variant; unused fields stay zero for
// variants that do not carry them.
type Channel struct {
	ID   string      `gorm:"primaryKey;size:26" json:"_id"`
	Kind ChannelKind `gorm:"not null;size:20" json:"channel_type"`
	Name string      `json:"name,omitempty"`

	// Server is set only for server-owned channels (text/voice).
	Server string `gorm:"index;size:26" json:"server,omitempty"`

	// Recipients is set for direct message and group channels.
	Recipients []string `gorm:"serializer:json" json:"recipients,omitempty"`

	// Owner is the group owner, or the holder of a saved-messages channel.
	Owner       string  `gorm:"size:26" json:"owner,omitempty"`
	Description *string `json:"description,omitempty"`
	Icon        *string `json:"icon,omitempty"`

	DefaultPermissions *Override           `gorm:"serializer:json" json:"default_permissions,omitempty"`
	RolePermissions    map[string]Override `gorm:"serializer:json" json:"role_permissions,omitempty"`

	NSFW bool `json:"nsfw,omitempty"`

	// VoiceEnabled marks a text channel that also carries a voice room.
	VoiceEnabled bool `json:"voice,omitempty"`

	LastMessageID *string `json:"last_message_id,omitempty"`
}

// IsServerOwned reports whether the channel belongs to a server.
func (c *Channel) IsServerOwned() bool {
	return c.Kind == ChannelText || c.Kind == ChannelVoice
}

// IsDirect reports whether the channel is a direct message or group channel.
func (c *Channel) IsDirect() bool {
	return c.Kind == ChannelDirectMessage || c.Kind == ChannelGroup
}

// HasVoice reports whether a voice state may exist for the channel: direct
// and group calls, dedicated voice channels, and voice-enabled text channels.
func (c *Channel) HasVoice() bool {
	return c.IsDirect() || c.Kind == ChannelVoice || (c.Kind == ChannelText && c.VoiceEnabled)
}

// HasRecipient reports whether the user appears in the recipients list.
func (c *Channel) HasRecipient(userID string) bool {
	for _, r := range c.Recipients {
		if r == userID {
			return true
		}
	}
	return false
}

/** -------------------- PARTIALS -------------------- */

// FieldsChannel enumerates clearable channel fields on ChannelUpdate events.
type FieldsChannel string

const (
	FieldsChannelDescription        FieldsChannel = "Description"
	FieldsChannelIcon               FieldsChannel = "Icon"
	FieldsChannelDefaultPermissions FieldsChannel = "DefaultPermissions"
)

// PartialChannel is the diff payload of a ChannelUpdate event.
type PartialChannel struct {
	Name               *string             `json:"name,omitempty"`
	Owner              *string             `json:"owner,omitempty"`
	Description        *string             `json:"description,omitempty"`
	Icon               *string             `json:"icon,omitempty"`
	NSFW               *bool               `json:"nsfw,omitempty"`
	DefaultPermissions *Override           `json:"default_permissions,omitempty"`
	RolePermissions    map[string]Override `json:"role_permissions,omitempty"`
	LastMessageID      *string             `json:"last_message_id,omitempty"`
}

// Apply merges the set fields of the diff into the channel, last write wins.
func (c *Channel) Apply(data PartialChannel) {
	if data.Name != nil {
		c.Name = *data.Name
	}
	if data.Owner != nil {
		c.Owner = *data.Owner
	}
	if data.Description != nil {
		c.Description = data.Description
	}
	if data.Icon != nil {
		c.Icon = data.Icon
	}
	if data.NSFW != nil {
		c.NSFW = *data.NSFW
	}
	if data.DefaultPermissions != nil {
		c.DefaultPermissions = data.DefaultPermissions
	}
	for role, override := range data.RolePermissions {
		if c.RolePermissions == nil {
			c.RolePermissions = make(map[string]Override)
		}
		c.RolePermissions[role] = override
	}
	if data.LastMessageID != nil {
		c.LastMessageID = data.LastMessageID
	}
}

// Remove clears one field of the channel.
func (c *Channel) Remove(field FieldsChannel) {
	switch field {
	case FieldsChannelDescription:
		c.Description = nil
	case FieldsChannelIcon:
		c.Icon = nil
	case FieldsChannelDefaultPermissions:
		c.DefaultPermissions = nil
	}
}
