package models

import (
	"time"
)

/** -------------------- ENTITIES -------------------- */

// Override is an allow/deny pair of capability bits.
type Override struct {
	Allow uint64 `json:"a"`
	Deny  uint64 `json:"d"`
}

// Role is one server role; Rank orders roles, lower rank wins conflicts.
type Role struct {
	Name        string   `json:"name"`
	Permissions Override `json:"permissions"`
	Rank        int64    `json:"rank"`
	Hoist       bool     `json:"hoist,omitempty"`
	Colour      *string  `json:"colour,omitempty"`
}

// Server represents the server entity as cached per connection.
type Server struct {
	ID          string  `gorm:"primaryKey;size:26" json:"_id"`
	Owner       string  `gorm:"index;size:26" json:"owner"`
	Name        string  `gorm:"not null" json:"name"`
	Description *string `json:"description,omitempty"`

	// ChannelIDs is the denormalized list of channel ids the server claims.
	ChannelIDs []string `gorm:"serializer:json" json:"channels"`

	Roles              map[string]Role `gorm:"serializer:json" json:"roles,omitempty"`
	DefaultPermissions uint64          `json:"default_permissions"`
	NSFW               bool            `json:"nsfw,omitempty"`
}

// Member is the session account's own membership in one server. The cache
// never holds other members.
type Member struct {
	ID       MemberID  `gorm:"embedded" json:"_id"`
	Nickname *string   `json:"nickname,omitempty"`
	Avatar   *string   `json:"avatar,omitempty"`
	Roles    []string  `gorm:"serializer:json" json:"roles,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// MemberID is the composite membership key.
type MemberID struct {
	Server string `gorm:"index;size:26" json:"server"`
	User   string `gorm:"index;size:26" json:"user"`
}

// HasRole reports whether the member holds the given role.
func (m *Member) HasRole(roleID string) bool {
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

/** -------------------- PARTIALS -------------------- */

// FieldsServer enumerates clearable server fields on ServerUpdate events.
type FieldsServer string

const (
	FieldsServerDescription FieldsServer = "Description"
	FieldsServerIcon        FieldsServer = "Icon"
	FieldsServerBanner      FieldsServer = "Banner"
)

// PartialServer is the diff payload of a ServerUpdate event.
type PartialServer struct {
	Owner              *string   `json:"owner,omitempty"`
	Name               *string   `json:"name,omitempty"`
	Description        *string   `json:"description,omitempty"`
	ChannelIDs         *[]string `json:"channels,omitempty"`
	DefaultPermissions *uint64   `json:"default_permissions,omitempty"`
	NSFW               *bool     `json:"nsfw,omitempty"`
}

// Apply merges the set fields of the diff into the server, last write wins.
func (s *Server) Apply(data PartialServer) {
	if data.Owner != nil {
		s.Owner = *data.Owner
	}
	if data.Name != nil {
		s.Name = *data.Name
	}
	if data.Description != nil {
		s.Description = data.Description
	}
	if data.ChannelIDs != nil {
		s.ChannelIDs = *data.ChannelIDs
	}
	if data.DefaultPermissions != nil {
		s.DefaultPermissions = *data.DefaultPermissions
	}
	if data.NSFW != nil {
		s.NSFW = *data.NSFW
	}
}

// Remove clears one field of the server.
func (s *Server) Remove(field FieldsServer) {
	if field == FieldsServerDescription {
		s.Description = nil
	}
}

// FieldsMember enumerates clearable member fields on ServerMemberUpdate events.
type FieldsMember string

const (
	FieldsMemberNickname FieldsMember = "Nickname"
	FieldsMemberAvatar   FieldsMember = "Avatar"
	FieldsMemberRoles    FieldsMember = "Roles"
)

// PartialMember is the diff payload of a ServerMemberUpdate event.
type PartialMember struct {
	Nickname *string   `json:"nickname,omitempty"`
	Avatar   *string   `json:"avatar,omitempty"`
	Roles    *[]string `json:"roles,omitempty"`
}

// Apply merges the set fields of the diff into the member, last write wins.
func (m *Member) Apply(data PartialMember) {
	if data.Nickname != nil {
		m.Nickname = data.Nickname
	}
	if data.Avatar != nil {
		m.Avatar = data.Avatar
	}
	if data.Roles != nil {
		m.Roles = *data.Roles
	}
}

// Remove clears one field of the member.
func (m *Member) Remove(field FieldsMember) {
	switch field {
	case FieldsMemberNickname:
		m.Nickname = nil
	case FieldsMemberAvatar:
		m.Avatar = nil
	case FieldsMemberRoles:
		m.Roles = nil
	}
}

// FieldsRole enumerates clearable role fields on ServerRoleUpdate events.
type FieldsRole string

const (
	FieldsRoleColour FieldsRole = "Colour"
)

// PartialRole is the diff payload of a ServerRoleUpdate event.
type PartialRole struct {
	Name        *string   `json:"name,omitempty"`
	Permissions *Override `json:"permissions,omitempty"`
	Rank        *int64    `json:"rank,omitempty"`
	Hoist       *bool     `json:"hoist,omitempty"`
	Colour      *string   `json:"colour,omitempty"`
}

// Apply merges the set fields of the diff into the role, last write wins.
func (r *Role) Apply(data PartialRole) {
	if data.Name != nil {
		r.Name = *data.Name
	}
	if data.Permissions != nil {
		r.Permissions = *data.Permissions
	}
	if data.Rank != nil {
		r.Rank = *data.Rank
	}
	if data.Hoist != nil {
		r.Hoist = *data.Hoist
	}
	if data.Colour != nil {
		r.Colour = data.Colour
	}
}

// Remove clears one field of the role.
func (r *Role) Remove(field FieldsRole) {
	if field == FieldsRoleColour {
		r.Colour = nil
	}
}
