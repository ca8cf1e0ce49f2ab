// Package roles resolves a user's effective role in an organization.
//
// The Authority computes the answer from the directory; clients ask a remote
// Authority over HTTP or gRPC. A ResolvedRole is request-scoped and is never
// cached or persisted by callers.
package roles

import (
	"context"

	"tallyboard.io/internal/rbac"
)

// SystemRole is the platform-wide role of a user, distinct from any organization role.
type SystemRole string

const (
	SystemRoleUser       SystemRole = "user"
	SystemRoleSuperAdmin SystemRole = "super_admin"
)

// Membership is a user's row in an organization.
type Membership struct {
	OrganizationID string    `json:"organizationId"`
	UserID         string    `json:"userId"`
	Role           rbac.Role `json:"role"`
	Status         string    `json:"status"`
}

// MembershipActive is the only membership status that grants access.
const MembershipActive = "active"

// ResolvedRole is the authoritative answer for one user and organization.
type ResolvedRole struct {
	SystemRole      SystemRole  `json:"systemRole"`
	IsSuperAdmin    bool        `json:"isSuperAdmin"`
	OrgRole         rbac.Role   `json:"orgRole,omitempty"`
	OrganizationID  string      `json:"organizationId,omitempty"`
	IsImpersonating bool        `json:"isImpersonating"`
	EffectiveRole   rbac.Role   `json:"effectiveRole,omitempty"`
	Membership      *Membership `json:"membership,omitempty"`
}

// Request selects the organization to resolve against. An empty
// OrganizationID resolves against the user's default organization.
// ImpersonationTarget names the organization a super-admin acts on; when
// empty, OrganizationID is used.
type Request struct {
	OrganizationID      string `json:"organizationId,omitempty"`
	IsImpersonating     bool   `json:"isImpersonating,omitempty"`
	ImpersonationTarget string `json:"impersonationTarget,omitempty"`
}

func (r Request) target() string {
	if r.IsImpersonating && r.ImpersonationTarget != "" {
		return r.ImpersonationTarget
	}
	return r.OrganizationID
}

// Resolver returns the authoritative role for the caller identified by ctx.
type Resolver interface {
	ResolveRole(ctx context.Context, req Request) (ResolvedRole, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, req Request) (ResolvedRole, error)

func (f ResolverFunc) ResolveRole(ctx context.Context, req Request) (ResolvedRole, error) {
	return f(ctx, req)
}
