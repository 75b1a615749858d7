// Permission-aware role provisioning: ensures marker roles exist and assigns them, checking the engine's own capability and role hierarchy position before any mutation.
package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wardenbot/warden/moderation/platform"
)

var (
	ErrInsufficientPrivilege = errors.New("missing manage-roles capability")
	ErrHierarchyTooLow       = errors.New("role is positioned at or above own highest role")
)

type AssignResult int

const (
	Assigned AssignResult = iota + 1
	AlreadyAssigned
)

func (r AssignResult) String() string {
	switch r {
	case Assigned:
		return "assigned"
	case AlreadyAssigned:
		return "already-assigned"
	default:
		return "unknown"
	}
}

type Provisioner struct {
	Client platform.Client
	Cache  RoleCache
	Owners *OwnerNotifier
	Logger *slog.Logger

	// serializes find-or-create so concurrent callers do not create duplicate roles
	ensureMu sync.Mutex
}

func NewProvisioner(client platform.Client, cache RoleCache, owners *OwnerNotifier, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		Client: client,
		Cache:  cache,
		Owners: owners,
		Logger: logger,
	}
}

// Fetches the engine's own standing in the guild. If it cannot manage roles, the owner is notified and ErrInsufficientPrivilege is returned along with the standing.
func (p *Provisioner) CheckCapability(ctx context.Context, guildID string) (*platform.Standing, error) {
	st, err := p.Client.SelfStanding(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("fetching own standing: %w", err)
	}
	if !st.CanManageRoles {
		p.Owners.Notify(ctx, guildID, NoticeMissingCapability, MissingCapabilityNotice(guildLabel(ctx, p.Client, guildID)))
		return st, ErrInsufficientPrivilege
	}
	return st, nil
}

// Finds the role named spec.Name (exact match) in the guild, creating it if absent.
//
// Creation is only attempted when the engine can manage roles; otherwise the owner is notified and ErrInsufficientPrivilege is returned. Other platform failures are returned wrapped.
func (p *Provisioner) EnsureRole(ctx context.Context, guildID string, spec platform.RoleSpec) (*platform.Role, error) {
	logger := p.Logger.With("guild", guildID, "role", spec.Name)

	p.ensureMu.Lock()
	defer p.ensureMu.Unlock()

	all, err := p.Client.GuildRoles(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("listing guild roles: %w", err)
	}
	if r := p.resolve(guildID, spec.Name, all); r != nil {
		return r, nil
	}

	if _, err := p.CheckCapability(ctx, guildID); err != nil {
		return nil, err
	}
	r, err := p.Client.CreateRole(ctx, guildID, spec)
	if err != nil {
		return nil, fmt.Errorf("creating role: %w", err)
	}
	logger.Info("created role", "roleID", r.ID)
	p.Cache.Set(guildID, spec.Name, r.ID)
	return r, nil
}

// looks up a role by cached ID, then by exact name, re-validating the cache against the current role list
func (p *Provisioner) resolve(guildID, name string, all []platform.Role) *platform.Role {
	if id, ok := p.Cache.Get(guildID, name); ok {
		for _, r := range all {
			if r.ID == id && r.Name == name {
				return &r
			}
		}
		// deleted or renamed since it was cached
		p.Cache.Purge(guildID, name)
	}
	for _, r := range all {
		if r.Name == name {
			p.Cache.Set(guildID, name, r.ID)
			return &r
		}
	}
	return nil
}

// Grants role to member.
//
// The hierarchy rule is checked first: if the engine's highest role is not strictly above the target role, ErrHierarchyTooLow is returned whatever the capability state. Then capability is re-checked. Owners are notified of either deficiency. No mutation is attempted unless both checks pass.
func (p *Provisioner) AssignRole(ctx context.Context, guildID string, member *platform.Member, role *platform.Role) (AssignResult, error) {
	logger := p.Logger.With("guild", guildID, "user", member.User.ID, "role", role.Name)

	st, err := p.Client.SelfStanding(ctx, guildID)
	if err != nil {
		return 0, fmt.Errorf("fetching own standing: %w", err)
	}
	if st.HighestPosition <= role.Position {
		logger.Warn("role hierarchy too low to assign role", "ownPosition", st.HighestPosition, "rolePosition", role.Position)
		p.Owners.Notify(ctx, guildID, NoticeHierarchy, HierarchyNotice(guildLabel(ctx, p.Client, guildID), role.Name))
		return 0, ErrHierarchyTooLow
	}
	if !st.CanManageRoles {
		logger.Warn("missing capability to assign role")
		p.Owners.Notify(ctx, guildID, NoticeMissingCapability, MissingCapabilityNotice(guildLabel(ctx, p.Client, guildID)))
		return 0, ErrInsufficientPrivilege
	}
	if member.HasRole(role.ID) {
		return AlreadyAssigned, nil
	}
	if err := p.Client.AddMemberRole(ctx, guildID, member.User.ID, role.ID); err != nil {
		return 0, fmt.Errorf("adding member role: %w", err)
	}
	logger.Info("assigned role")
	return Assigned, nil
}
