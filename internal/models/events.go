package models

import (
	"encoding/json"
	"fmt"
)

// Event is any platform mutation event flowing through the gateway. The
// concrete type decides the wire "type" tag.
type Event interface {
	EventType() string
}

/** -------------------- EVENT KINDS -------------------- */

// ChannelCreate announces a channel newly visible to the connection.
type ChannelCreate struct {
	Channel
}

func (*ChannelCreate) EventType() string { return "ChannelCreate" }

// ChannelUpdate carries a field diff for one channel.
type ChannelUpdate struct {
	ID    string          `json:"id"`
	Data  PartialChannel  `json:"data"`
	Clear []FieldsChannel `json:"clear,omitempty"`
}

func (*ChannelUpdate) EventType() string { return "ChannelUpdate" }

// ChannelDelete announces a channel no longer visible to the connection.
type ChannelDelete struct {
	ID string `json:"id"`
}

func (*ChannelDelete) EventType() string { return "ChannelDelete" }

// ChannelGroupJoin announces a user joining a group channel.
type ChannelGroupJoin struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

func (*ChannelGroupJoin) EventType() string { return "ChannelGroupJoin" }

// ChannelGroupLeave announces a user leaving a group channel.
type ChannelGroupLeave struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

func (*ChannelGroupLeave) EventType() string { return "ChannelGroupLeave" }

// ServerCreate announces a server the account just joined, bundled with its
// channels.
type ServerCreate struct {
	ID       string    `json:"id"`
	Server   Server    `json:"server"`
	Channels []Channel `json:"channels"`
}

func (*ServerCreate) EventType() string { return "ServerCreate" }

// ServerUpdate carries a field diff for one server.
type ServerUpdate struct {
	ID    string         `json:"id"`
	Data  PartialServer  `json:"data"`
	Clear []FieldsServer `json:"clear,omitempty"`
}

func (*ServerUpdate) EventType() string { return "ServerUpdate" }

// ServerDelete announces a deleted server.
type ServerDelete struct {
	ID string `json:"id"`
}

func (*ServerDelete) EventType() string { return "ServerDelete" }

// ServerMemberUpdate carries a field diff for one membership.
type ServerMemberUpdate struct {
	ID    MemberID       `json:"id"`
	Data  PartialMember  `json:"data"`
	Clear []FieldsMember `json:"clear,omitempty"`
}

func (*ServerMemberUpdate) EventType() string { return "ServerMemberUpdate" }

// ServerMemberLeave announces a member leaving a server.
type ServerMemberLeave struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

func (*ServerMemberLeave) EventType() string { return "ServerMemberLeave" }

// ServerRoleUpdate carries a field diff for one role.
type ServerRoleUpdate struct {
	ID     string       `json:"id"`
	RoleID string       `json:"role_id"`
	Data   PartialRole  `json:"data"`
	Clear  []FieldsRole `json:"clear,omitempty"`
}

func (*ServerRoleUpdate) EventType() string { return "ServerRoleUpdate" }

// ServerRoleDelete announces a deleted role.
type ServerRoleDelete struct {
	ID     string `json:"id"`
	RoleID string `json:"role_id"`
}

func (*ServerRoleDelete) EventType() string { return "ServerRoleDelete" }

// UserUpdate carries a field diff for one user. EventID keys idempotent
// rebroadcast dedup and is stripped before the event reaches the wire.
type UserUpdate struct {
	ID      string       `json:"id"`
	Data    PartialUser  `json:"data"`
	Clear   []FieldsUser `json:"clear,omitempty"`
	EventID string       `json:"event_id,omitempty"`
}

func (*UserUpdate) EventType() string { return "UserUpdate" }

// UserRelationship announces a relationship change with another user,
// carrying that user's fresh record and the new status from the recipient's
// perspective.
type UserRelationship struct {
	ID     string             `json:"id"`
	User   User               `json:"user"`
	Status RelationshipStatus `json:"status"`
}

func (*UserRelationship) EventType() string { return "UserRelationship" }

// ChannelStartTyping announces a user typing in a channel.
type ChannelStartTyping struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

func (*ChannelStartTyping) EventType() string { return "ChannelStartTyping" }

// ChannelStopTyping announces a user no longer typing in a channel.
type ChannelStopTyping struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

func (*ChannelStopTyping) EventType() string { return "ChannelStopTyping" }

// MessageEvent relays one chat message.
type MessageEvent struct {
	Message
}

func (*MessageEvent) EventType() string { return "Message" }

// Bulk is an ordered container of events delivered as one frame.
type Bulk struct {
	V []Event `json:"-"`
}

func (*Bulk) EventType() string { return "Bulk" }

// UnknownEvent preserves kinds this engine does not interpret; they pass
// through to the wire untouched.
type UnknownEvent struct {
	Type string          `json:"-"`
	Raw  json.RawMessage `json:"-"`
}

func (e *UnknownEvent) EventType() string { return e.Type }

func (e *UnknownEvent) MarshalJSON() ([]byte, error) {
	return e.Raw, nil
}

/** -------------------- WIRE CODEC -------------------- */

// EncodeEvent frames an event with its inline "type" tag.
func EncodeEvent(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.EventType(), err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("reframe %s event: %w", e.EventType(), err)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 1)
	}
	kind, _ := json.Marshal(e.EventType())
	fields["type"] = kind

	return json.Marshal(fields)
}

// DecodeEvent parses a framed event. Unrecognized kinds come back as
// UnknownEvent rather than an error.
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode event head: %w", err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("decode event: missing type tag")
	}

	var event Event
	switch head.Type {
	case "ChannelCreate":
		event = &ChannelCreate{}
	case "ChannelUpdate":
		event = &ChannelUpdate{}
	case "ChannelDelete":
		event = &ChannelDelete{}
	case "ChannelGroupJoin":
		event = &ChannelGroupJoin{}
	case "ChannelGroupLeave":
		event = &ChannelGroupLeave{}
	case "ServerCreate":
		event = &ServerCreate{}
	case "ServerUpdate":
		event = &ServerUpdate{}
	case "ServerDelete":
		event = &ServerDelete{}
	case "ServerMemberUpdate":
		event = &ServerMemberUpdate{}
	case "ServerMemberLeave":
		event = &ServerMemberLeave{}
	case "ServerRoleUpdate":
		event = &ServerRoleUpdate{}
	case "ServerRoleDelete":
		event = &ServerRoleDelete{}
	case "UserUpdate":
		event = &UserUpdate{}
	case "UserRelationship":
		event = &UserRelationship{}
	case "ChannelStartTyping":
		event = &ChannelStartTyping{}
	case "ChannelStopTyping":
		event = &ChannelStopTyping{}
	case "Message":
		event = &MessageEvent{}
	case "Bulk":
		event = &Bulk{}
	default:
		return &UnknownEvent{Type: head.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}

	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", head.Type, err)
	}
	return event, nil
}

// MarshalJSON frames every nested event so the container survives a
// round-trip through the codec.
func (b *Bulk) MarshalJSON() ([]byte, error) {
	framed := make([]json.RawMessage, 0, len(b.V))
	for _, e := range b.V {
		data, err := EncodeEvent(e)
		if err != nil {
			return nil, err
		}
		framed = append(framed, data)
	}
	return json.Marshal(struct {
		V []json.RawMessage `json:"v"`
	}{V: framed})
}

func (b *Bulk) UnmarshalJSON(data []byte) error {
	var raw struct {
		V []json.RawMessage `json:"v"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.V = make([]Event, 0, len(raw.V))
	for _, member := range raw.V {
		e, err := DecodeEvent(member)
		if err != nil {
			return err
		}
		b.V = append(b.V, e)
	}
	return nil
}
