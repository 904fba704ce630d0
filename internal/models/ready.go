package models

// ReadyFields selects which optional sections a Ready payload carries.
// UserSettings holds the requested setting keys; empty means not requested.
type ReadyFields struct {
	Users          bool
	Servers        bool
	Channels       bool
	Members        bool
	Emoji          bool
	ChannelUnreads bool
	PolicyChanges  bool
	VoiceStates    bool
	UserSettings   []string
}

// DefaultReadyFields is what a connection gets when it asks for nothing
// specific: the four object lists.
func DefaultReadyFields() ReadyFields {
	return ReadyFields{
		Users:    true,
		Servers:  true,
		Channels: true,
		Members:  true,
	}
}

// Ready is the one-time bulk snapshot sent after connection establishment.
// Sections are pointer-to-slice so an absent section (nil, not requested)
// stays distinguishable from a requested-but-empty one.
type Ready struct {
	Users          *[]UserView             `json:"users,omitempty"`
	Servers        *[]Server               `json:"servers,omitempty"`
	Channels       *[]Channel              `json:"channels,omitempty"`
	Members        *[]Member               `json:"members,omitempty"`
	VoiceStates    *[]VoiceState           `json:"voice_states,omitempty"`
	Emoji          *[]Emoji                `json:"emojis,omitempty"`
	UserSettings   map[string]UserSetting  `json:"user_settings,omitempty"`
	ChannelUnreads *[]ChannelUnread        `json:"channel_unreads,omitempty"`
	PolicyChanges  *[]PolicyChange         `json:"policy_changes,omitempty"`
}

func (*Ready) EventType() string { return "Ready" }
