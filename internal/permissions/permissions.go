// Package permissions computes capability bitsets from account, member,
// server and role state.
package permissions

import (
	"errors"
	"fmt"
)

// Capability is a single permission bit.
type Capability uint64

const (
	// Server management
	CapManageChannel Capability = 1 << 0
	CapManageServer  Capability = 1 << 1
	CapManagePerms   Capability = 1 << 2
	CapManageRole    Capability = 1 << 3
	CapManageEmoji   Capability = 1 << 4

	// Membership
	CapKickMembers   Capability = 1 << 6
	CapBanMembers    Capability = 1 << 7
	CapChangeNick    Capability = 1 << 10
	CapManageNicks   Capability = 1 << 11
	CapInviteOthers  Capability = 1 << 13

	// Channels
	CapViewChannel    Capability = 1 << 20
	CapReadHistory    Capability = 1 << 21
	CapSendMessage    Capability = 1 << 22
	CapManageMessages Capability = 1 << 23
	CapMasquerade     Capability = 1 << 28
	CapReact          Capability = 1 << 29

	// Voice
	CapConnect Capability = 1 << 30
	CapSpeak   Capability = 1 << 31
)

// CapAll grants everything; used for owners and privileged accounts.
const CapAll Capability = ^Capability(0)

// CapDefaultDirect is what participants of direct and group channels hold.
const CapDefaultDirect = CapViewChannel | CapReadHistory | CapSendMessage |
	CapManageChannel | CapReact | CapConnect | CapSpeak

// CapDefaultView is the floor for any visible saved-messages holder.
const CapDefaultView = CapViewChannel | CapReadHistory

// ErrMissingPermission reports a denied capability check.
var ErrMissingPermission = errors.New("missing permission")

// Capabilities is a resolved capability bitset.
type Capabilities uint64

// Has reports whether the capability is granted.
func (c Capabilities) Has(cap Capability) bool {
	return uint64(c)&uint64(cap) == uint64(cap)
}

// Require returns ErrMissingPermission when the capability is absent.
func (c Capabilities) Require(cap Capability) error {
	if !c.Has(cap) {
		return fmt.Errorf("%w: %b", ErrMissingPermission, cap)
	}
	return nil
}

// apply folds one allow/deny override into the set.
func (c Capabilities) apply(allow, deny uint64) Capabilities {
	return Capabilities((uint64(c) | allow) &^ deny)
}
