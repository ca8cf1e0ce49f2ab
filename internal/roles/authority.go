package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tallyboard.io/internal/auth"
	"tallyboard.io/internal/rbac"
)

// User is a directory user as seen by the authority.
type User struct {
	ID         string
	Email      string
	SystemRole SystemRole
	Disabled   bool
}

// Organization is a directory organization. OwnerID is the single owner.
type Organization struct {
	ID      string
	Name    string
	OwnerID string
}

// Directory is the read side the authority needs. Lookups return ErrNotFound
// when the row does not exist.
type Directory interface {
	User(ctx context.Context, userID string) (User, error)
	Organization(ctx context.Context, orgID string) (Organization, error)
	Membership(ctx context.Context, userID, orgID string) (Membership, error)
	// DefaultMembership returns the membership the user lands in after login.
	DefaultMembership(ctx context.Context, userID string) (Membership, error)
}

// Authority computes ResolvedRole from the directory.
type Authority struct {
	dir Directory
}

// NewAuthority constructs an Authority over dir.
func NewAuthority(dir Directory) *Authority {
	return &Authority{dir: dir}
}

// EffectiveRole is owner when the user owns the organization, whatever the
// membership row says, and the membership role otherwise.
func EffectiveRole(ownerID, userID string, assigned rbac.Role) rbac.Role {
	if ownerID != "" && ownerID == userID {
		return rbac.RoleOwner
	}
	return assigned
}

// Resolve answers a role request for userID.
func (a *Authority) Resolve(ctx context.Context, userID string, req Request) (ResolvedRole, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ResolvedRole{}, ErrUnauthenticated
	}
	user, err := a.dir.User(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ResolvedRole{}, ErrUnauthenticated
		}
		return ResolvedRole{}, fmt.Errorf("roles: load user: %w", err)
	}
	if user.Disabled {
		return ResolvedRole{}, fmt.Errorf("%w: user disabled", ErrForbidden)
	}

	out := ResolvedRole{
		SystemRole:   user.SystemRole,
		IsSuperAdmin: user.SystemRole == SystemRoleSuperAdmin,
	}
	if out.SystemRole == "" {
		out.SystemRole = SystemRoleUser
	}

	if req.IsImpersonating {
		return a.impersonate(ctx, out, strings.TrimSpace(req.target()))
	}

	orgID := strings.TrimSpace(req.OrganizationID)
	if orgID == "" {
		m, err := a.dir.DefaultMembership(ctx, userID)
		switch {
		case errors.Is(err, ErrNotFound):
			return out, nil
		case err != nil:
			return ResolvedRole{}, fmt.Errorf("roles: default membership: %w", err)
		}
		orgID = m.OrganizationID
	}

	org, err := a.dir.Organization(ctx, orgID)
	if err != nil {
		return ResolvedRole{}, wrapLookup("organization", err)
	}
	out.OrganizationID = org.ID

	m, err := a.dir.Membership(ctx, userID, org.ID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return ResolvedRole{}, fmt.Errorf("roles: load membership: %w", err)
	case m.Status == MembershipActive:
		member := m
		out.Membership = &member
		out.OrgRole = m.Role
	}

	out.EffectiveRole = EffectiveRole(org.OwnerID, userID, out.OrgRole)
	if out.EffectiveRole == rbac.RoleOwner {
		out.OrgRole = rbac.RoleOwner
	}
	if out.EffectiveRole == "" && !out.IsSuperAdmin {
		return ResolvedRole{}, ErrNotMember
	}
	return out, nil
}

// Impersonation acts as the organization's owner.
func (a *Authority) impersonate(ctx context.Context, out ResolvedRole, orgID string) (ResolvedRole, error) {
	if !out.IsSuperAdmin {
		return ResolvedRole{}, fmt.Errorf("%w: impersonation requires super admin", ErrForbidden)
	}
	if orgID == "" {
		return ResolvedRole{}, fmt.Errorf("%w: impersonation target required", ErrInvalidInput)
	}
	org, err := a.dir.Organization(ctx, orgID)
	if err != nil {
		return ResolvedRole{}, wrapLookup("organization", err)
	}
	out.OrganizationID = org.ID
	out.IsImpersonating = true
	out.OrgRole = rbac.RoleOwner
	out.EffectiveRole = rbac.RoleOwner
	return out, nil
}

// ForUser binds the authority to one user so it can serve in-process callers
// through the Resolver interface.
func (a *Authority) ForUser(userID string) Resolver {
	return ResolverFunc(func(ctx context.Context, req Request) (ResolvedRole, error) {
		return a.Resolve(ctx, userID, req)
	})
}

// FromContext resolves for the user authenticated on ctx.
func (a *Authority) FromContext() Resolver {
	return ResolverFunc(func(ctx context.Context, req Request) (ResolvedRole, error) {
		userID, ok := auth.UserIDFromContext(ctx)
		if !ok {
			return ResolvedRole{}, ErrUnauthenticated
		}
		return a.Resolve(ctx, userID, req)
	})
}

func wrapLookup(what string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return fmt.Errorf("roles: load %s: %w", what, err)
}
