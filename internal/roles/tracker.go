package roles

import (
	"context"
	"strings"
	"sync"
)

// Tracker follows the organization a session is currently working in and
// drops resolutions that finish after the user switched away.
type Tracker struct {
	resolver Resolver

	mu     sync.Mutex
	active string
}

// NewTracker wraps r.
func NewTracker(r Resolver) *Tracker {
	return &Tracker{resolver: r}
}

// Switch makes orgID the active organization.
func (t *Tracker) Switch(orgID string) {
	t.mu.Lock()
	t.active = strings.TrimSpace(orgID)
	t.mu.Unlock()
}

// Active returns the active organization.
func (t *Tracker) Active() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// ResolveRole resolves against req.OrganizationID, or the active organization
// when none is given. The result is ErrStale if the active organization is
// different by the time the answer arrives.
func (t *Tracker) ResolveRole(ctx context.Context, req Request) (ResolvedRole, error) {
	requested := strings.TrimSpace(req.OrganizationID)
	if requested == "" {
		requested = t.Active()
		req.OrganizationID = requested
	}

	resolved, err := t.resolver.ResolveRole(ctx, req)
	if err != nil {
		return ResolvedRole{}, err
	}
	if t.Active() != requested {
		return ResolvedRole{}, ErrStale
	}
	return resolved, nil
}
