package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"tallyboard.io/internal/audit"
	"tallyboard.io/internal/jobs"
	"tallyboard.io/internal/rbac"
	"tallyboard.io/internal/roles"
)

type transferOwnershipRequest struct {
	NewOwnerID string `json:"newOwnerId"`
}

type bulkDeleteRequest struct {
	Entity    string   `json:"entity"`
	IDs       []string `json:"ids"`
	Permanent bool     `json:"permanent"`
}

func (a *API) handleOrganizationScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/organizations/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	orgID := parts[0]
	switch parts[1] {
	case "transfer-ownership":
		a.handleTransferOwnership(w, r, orgID)
	case "bulk-delete":
		a.handleBulkDelete(w, r, orgID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// handleTransferOwnership is open to the current owner and to super-admins.
func (a *API) handleTransferOwnership(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.deps.Ownership == nil {
		writeError(w, r, http.StatusServiceUnavailable, "organization store unavailable")
		return
	}
	var req transferOwnershipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.NewOwnerID = strings.TrimSpace(req.NewOwnerID)
	if req.NewOwnerID == "" {
		writeError(w, r, http.StatusBadRequest, "newOwnerId is required")
		return
	}

	resolved, err := a.resolveRole(r.Context(), roles.Request{OrganizationID: orgID})
	if err != nil {
		a.writeRoleError(w, r, err)
		return
	}
	isOwner := resolved.OrganizationID == orgID && resolved.EffectiveRole == rbac.RoleOwner
	if !isOwner && !resolved.IsSuperAdmin {
		writeError(w, r, http.StatusForbidden, "only the organization owner can transfer ownership")
		return
	}

	org, err := a.deps.Ownership.TransferOwnership(r.Context(), orgID, req.NewOwnerID)
	if err != nil {
		a.writeRoleError(w, r, err)
		return
	}
	_ = a.audit.LogEvent(r.Context(), audit.EventOwnershipTransfer, map[string]any{
		"organization_id": orgID,
		"new_owner_id":    org.OwnerID,
		"by_super_admin":  !isOwner,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"organizationId": org.ID,
		"name":           org.Name,
		"ownerId":        org.OwnerID,
	})
}

func (a *API) handleBulkDelete(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.deps.Deleter == nil {
		writeError(w, r, http.StatusServiceUnavailable, "record store unavailable")
		return
	}
	var req bulkDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entity, ok := jobs.ParseEntity(req.Entity)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown entity")
		return
	}

	subject, resolved, err := a.subject(r.Context(), roles.Request{OrganizationID: orgID})
	if err != nil {
		a.writeRoleError(w, r, err)
		return
	}
	if resolved.OrganizationID != orgID {
		writeError(w, r, http.StatusForbidden, "organization mismatch")
		return
	}

	result, err := a.deps.Deleter.Delete(r.Context(), subject, a.deps.Roles, jobs.BulkDeleteRequest{
		OrganizationID: orgID,
		Entity:         entity,
		IDs:            req.IDs,
		Permanent:      req.Permanent,
	})
	if err != nil {
		var denied *jobs.DeniedError
		switch {
		case errors.As(err, &denied):
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":      denied.Verdict.Message,
				"verdict":    denied.Verdict,
				"request_id": RequestIDFromContext(r.Context()),
			})
		case errors.Is(err, jobs.ErrOwnerRequired):
			_ = a.audit.LogEvent(r.Context(), audit.EventPermanentDeleteDenied, map[string]any{
				"organization_id": orgID,
				"entity":          string(entity),
			})
			writeError(w, r, http.StatusForbidden, err.Error())
		case errors.Is(err, jobs.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, jobs.ErrConflict):
			writeError(w, r, http.StatusConflict, "records are still referenced")
		default:
			a.log.Error().Err(err).Str("organization_id", orgID).Msg("bulk delete failed")
			writeError(w, r, http.StatusInternalServerError, "bulk delete failed")
		}
		return
	}
	_ = a.audit.LogEvent(r.Context(), audit.EventBulkDelete, map[string]any{
		"organization_id": orgID,
		"entity":          string(entity),
		"requested":       result.Requested,
		"deleted":         result.Deleted,
		"permanent":       result.Permanent,
	})
	writeJSON(w, http.StatusOK, result)
}
