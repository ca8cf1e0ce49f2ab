package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tallyboard.io/internal/access"
	"tallyboard.io/internal/rbac"
	"tallyboard.io/internal/roles"
)

// MaxBulkDelete caps the ids accepted in one request.
const MaxBulkDelete = 500

// Entity is a deletable business record kind.
type Entity string

const (
	EntityInvoices  Entity = "invoices"
	EntityExpenses  Entity = "expenses"
	EntityVendors   Entity = "vendors"
	EntityTasks     Entity = "tasks"
	EntityCustomers Entity = "customers"
)

var entityModules = map[Entity]rbac.Module{
	EntityInvoices:  rbac.ModuleInvoices,
	EntityExpenses:  rbac.ModuleExpenses,
	EntityVendors:   rbac.ModuleVendors,
	EntityTasks:     rbac.ModuleTasks,
	EntityCustomers: rbac.ModuleCustomers,
}

// Module returns the permission module guarding e.
func (e Entity) Module() (rbac.Module, bool) {
	m, ok := entityModules[e]
	return m, ok
}

// ParseEntity normalizes raw into a known entity.
func ParseEntity(raw string) (Entity, bool) {
	e := Entity(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := entityModules[e]
	return e, ok
}

var (
	ErrInvalidInput  = errors.New("jobs: invalid input")
	ErrOwnerRequired = errors.New("jobs: permanent deletion requires the organization owner")
	// ErrConflict reports records that other rows still reference.
	ErrConflict = errors.New("jobs: records are still referenced")
)

// DeniedError carries the verdict that blocked an operation.
type DeniedError struct {
	Verdict access.Verdict
}

func (e *DeniedError) Error() string { return "jobs: access denied: " + e.Verdict.Message }

// DeleteStore removes records of one organization. Implementations ignore
// ids belonging to other organizations.
type DeleteStore interface {
	SoftDelete(ctx context.Context, entity Entity, orgID string, ids []string, at time.Time) (int64, error)
	HardDelete(ctx context.Context, entity Entity, orgID string, ids []string) (int64, error)
}

// BulkDeleteRequest asks to delete ids of one entity kind.
type BulkDeleteRequest struct {
	OrganizationID string   `json:"organization_id"`
	Entity         Entity   `json:"entity"`
	IDs            []string `json:"ids"`
	Permanent      bool     `json:"permanent"`
}

// BulkDeleteResult reports what was removed.
type BulkDeleteResult struct {
	Entity    Entity `json:"entity"`
	Requested int    `json:"requested"`
	Deleted   int64  `json:"deleted"`
	Permanent bool   `json:"permanent"`
}

// BulkDeleter deletes records after checking access.
type BulkDeleter struct {
	store    DeleteStore
	resolver *access.Resolver
	now      func() time.Time
}

// NewBulkDeleter builds a BulkDeleter.
func NewBulkDeleter(store DeleteStore, resolver *access.Resolver) *BulkDeleter {
	if resolver == nil {
		resolver = access.New()
	}
	return &BulkDeleter{store: store, resolver: resolver, now: time.Now}
}

// Delete requires delete permission on the entity's module. Permanent
// deletion additionally requires owner confirmed through authority.
func (b *BulkDeleter) Delete(ctx context.Context, subject access.Subject, authority roles.Resolver, req BulkDeleteRequest) (BulkDeleteResult, error) {
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	if req.OrganizationID == "" {
		return BulkDeleteResult{}, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	module, ok := req.Entity.Module()
	if !ok {
		return BulkDeleteResult{}, fmt.Errorf("%w: unknown entity %q", ErrInvalidInput, req.Entity)
	}
	ids := dedupe(req.IDs)
	if len(ids) == 0 {
		return BulkDeleteResult{}, fmt.Errorf("%w: ids are required", ErrInvalidInput)
	}
	if len(ids) > MaxBulkDelete {
		return BulkDeleteResult{}, fmt.Errorf("%w: at most %d ids per request", ErrInvalidInput, MaxBulkDelete)
	}

	if v := b.resolver.CheckPermission(subject, module, rbac.ActionDelete); !v.HasAccess {
		return BulkDeleteResult{}, &DeniedError{Verdict: v}
	}

	result := BulkDeleteResult{Entity: req.Entity, Requested: len(ids), Permanent: req.Permanent}
	var err error
	if req.Permanent {
		if !roles.VerifyOwnerRole(ctx, authority, req.OrganizationID) {
			return BulkDeleteResult{}, ErrOwnerRequired
		}
		result.Deleted, err = b.store.HardDelete(ctx, req.Entity, req.OrganizationID, ids)
	} else {
		result.Deleted, err = b.store.SoftDelete(ctx, req.Entity, req.OrganizationID, ids, b.now().UTC())
	}
	if err != nil {
		return BulkDeleteResult{}, fmt.Errorf("jobs: delete %s: %w", req.Entity, err)
	}
	return result, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
