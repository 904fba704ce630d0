package permissions

import (
	"context"
	"sort"

	"push-gateway/internal/models"
)

// Query bundles the state a calculation may consult. User is mandatory;
// the rest defaults to "not known", which only ever narrows the result.
type Query struct {
	User    *models.User
	Member  *models.Member
	Server  *models.Server
	Channel *models.Channel
}

// Evaluator resolves capability bitsets. It must be safe for concurrent use
// across connection flows.
type Evaluator interface {
	CalculateServerPermissions(ctx context.Context, q Query) (Capabilities, error)
	CalculateChannelPermissions(ctx context.Context, q Query) (Capabilities, error)
}

// Calculator is the stock Evaluator over denormalized cached state.
type Calculator struct{}

var _ Evaluator = Calculator{}

// CalculateServerPermissions resolves the user's capabilities in a server:
// the server default set, then each held role's override in rank order
// (higher rank first, so lower ranks win conflicts).
func (Calculator) CalculateServerPermissions(ctx context.Context, q Query) (Capabilities, error) {
	if q.User == nil || q.Server == nil {
		return 0, nil
	}
	if q.User.Privileged || q.Server.Owner == q.User.ID {
		return Capabilities(CapAll), nil
	}

	perms := Capabilities(q.Server.DefaultPermissions)
	if q.Member == nil {
		return perms, nil
	}

	for _, roleID := range heldRolesByRank(q.Server, q.Member) {
		role := q.Server.Roles[roleID]
		perms = perms.apply(role.Permissions.Allow, role.Permissions.Deny)
	}
	return perms, nil
}

// CalculateChannelPermissions resolves the user's capabilities in a channel.
// For server channels the server result is the base, narrowed or widened by
// the channel default override and the per-role channel overrides.
func (c Calculator) CalculateChannelPermissions(ctx context.Context, q Query) (Capabilities, error) {
	if q.User == nil || q.Channel == nil {
		return 0, nil
	}

	switch q.Channel.Kind {
	case models.ChannelSavedMessages:
		if q.Channel.Owner == q.User.ID {
			return Capabilities(CapAll), nil
		}
		return 0, nil

	case models.ChannelDirectMessage, models.ChannelGroup:
		if q.Channel.HasRecipient(q.User.ID) {
			return Capabilities(CapDefaultDirect), nil
		}
		return 0, nil
	}

	perms, err := c.CalculateServerPermissions(ctx, q)
	if err != nil {
		return 0, err
	}
	if perms.Has(CapAll) {
		return perms, nil
	}

	if o := q.Channel.DefaultPermissions; o != nil {
		perms = perms.apply(o.Allow, o.Deny)
	}
	if q.Member != nil && q.Server != nil && len(q.Channel.RolePermissions) > 0 {
		for _, roleID := range heldRolesByRank(q.Server, q.Member) {
			if o, ok := q.Channel.RolePermissions[roleID]; ok {
				perms = perms.apply(o.Allow, o.Deny)
			}
		}
	}
	return perms, nil
}

// heldRolesByRank lists the member's roles that exist on the server, sorted
// by descending rank so the lowest rank is applied last.
func heldRolesByRank(server *models.Server, member *models.Member) []string {
	held := make([]string, 0, len(member.Roles))
	for _, roleID := range member.Roles {
		if _, ok := server.Roles[roleID]; ok {
			held = append(held, roleID)
		}
	}
	sort.Slice(held, func(i, j int) bool {
		ri, rj := server.Roles[held[i]].Rank, server.Roles[held[j]].Rank
		if ri != rj {
			return ri > rj
		}
		return held[i] > held[j]
	})
	return held
}
