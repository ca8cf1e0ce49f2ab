package roles

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"tallyboard.io/internal/rbac"
)

// VerifyOwnerRole asks r whether the caller is the owner of orgID. Any
// resolution failure yields false.
func VerifyOwnerRole(ctx context.Context, r Resolver, orgID string) bool {
	orgID = strings.TrimSpace(orgID)
	if r == nil || orgID == "" {
		return false
	}
	resolved, err := r.ResolveRole(ctx, Request{OrganizationID: orgID})
	if err != nil {
		log.Warn().Err(err).Str("component", "roles").Str("organization_id", orgID).Msg("owner verification failed")
		return false
	}
	if resolved.OrganizationID != "" && resolved.OrganizationID != orgID {
		log.Warn().Str("component", "roles").Str("organization_id", orgID).
			Str("resolved_organization_id", resolved.OrganizationID).Msg("owner verification resolved another organization")
		return false
	}
	return resolved.EffectiveRole == rbac.RoleOwner
}
