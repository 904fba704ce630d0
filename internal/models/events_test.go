package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEventFramesTypeTag(t *testing.T) {
	data, err := EncodeEvent(&ChannelDelete{ID: "c1"})
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.JSONEq(t, `"ChannelDelete"`, string(fields["type"]))
	assert.JSONEq(t, `"c1"`, string(fields["id"]))
}

func TestDecodeEventRoundTrip(t *testing.T) {
	name := "general"
	original := &ChannelUpdate{
		ID:    "c1",
		Data:  PartialChannel{Name: &name},
		Clear: []FieldsChannel{FieldsChannelIcon},
	}

	data, err := EncodeEvent(original)
	require.NoError(t, err)

	decoded, err := DecodeEvent(data)
	require.NoError(t, err)
	update, ok := decoded.(*ChannelUpdate)
	require.True(t, ok)
	assert.Equal(t, original.ID, update.ID)
	require.NotNil(t, update.Data.Name)
	assert.Equal(t, "general", *update.Data.Name)
	assert.Equal(t, original.Clear, update.Clear)
}

func TestDecodeEventMissingType(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"id":"c1"}`))
	assert.Error(t, err)
}

func TestUnknownEventPassthrough(t *testing.T) {
	raw := []byte(`{"type":"Auth","token":"abc"}`)

	decoded, err := DecodeEvent(raw)
	require.NoError(t, err)
	unknown, ok := decoded.(*UnknownEvent)
	require.True(t, ok)
	assert.Equal(t, "Auth", unknown.EventType())

	reencoded, err := EncodeEvent(unknown)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(reencoded))
}

func TestBulkRoundTrip(t *testing.T) {
	bulk := &Bulk{V: []Event{
		&ChannelDelete{ID: "c1"},
		&ChannelCreate{Channel: Channel{ID: "c2", Kind: ChannelText, Server: "s1"}},
	}}

	data, err := EncodeEvent(bulk)
	require.NoError(t, err)

	decoded, err := DecodeEvent(data)
	require.NoError(t, err)
	out, ok := decoded.(*Bulk)
	require.True(t, ok)
	require.Len(t, out.V, 2)

	deleted, ok := out.V[0].(*ChannelDelete)
	require.True(t, ok)
	assert.Equal(t, "c1", deleted.ID)

	created, ok := out.V[1].(*ChannelCreate)
	require.True(t, ok)
	assert.Equal(t, "c2", created.ID)
	assert.Equal(t, ChannelText, created.Kind)
}

func TestPartialApplyAndRemove(t *testing.T) {
	display := "Old"
	user := User{ID: "u1", Username: "u", DisplayName: &display}

	next := "New"
	user.Apply(PartialUser{DisplayName: &next, Status: &UserStatus{Presence: PresenceBusy}})
	require.NotNil(t, user.DisplayName)
	assert.Equal(t, "New", *user.DisplayName)
	require.NotNil(t, user.Status)
	assert.Equal(t, PresenceBusy, user.Status.Presence)

	user.Remove(FieldsUserDisplayName)
	assert.Nil(t, user.DisplayName)
	user.Remove(FieldsUserStatusPresence)
	assert.Empty(t, user.Status.Presence)
}
