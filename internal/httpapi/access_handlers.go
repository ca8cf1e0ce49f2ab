package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tallyboard.io/internal/access"
	"tallyboard.io/internal/audit"
	"tallyboard.io/internal/obs"
	"tallyboard.io/internal/plans"
	"tallyboard.io/internal/rbac"
	"tallyboard.io/internal/roles"
	"tallyboard.io/internal/subscription"
)

type accessCheckRequest struct {
	OrganizationID      string `json:"organizationId"`
	IsImpersonating     bool   `json:"isImpersonating"`
	ImpersonationTarget string `json:"impersonationTarget"`
	Feature             string `json:"feature"`
	Module              string `json:"module"`
	Action              string `json:"action"`
}

type accessCheckResponse struct {
	Verdict  access.Verdict     `json:"verdict"`
	Role     roles.ResolvedRole `json:"role"`
	ReadOnly bool               `json:"readOnly"`
}

type capabilitiesResponse struct {
	access.Capabilities
	Role          roles.ResolvedRole  `json:"role"`
	Plan          plans.Plan          `json:"plan"`
	PlanName      string              `json:"planName"`
	Status        subscription.Status `json:"status"`
	TrialDaysLeft int                 `json:"trialDaysLeft"`
	Limits        plans.Limits        `json:"limits"`
	Modules       []rbac.Module       `json:"modules"`
}

func (a *API) handleResolveRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req roles.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	resolved, err := a.resolveRole(r.Context(), req)
	if err != nil {
		a.writeRoleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func (a *API) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req accessCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	check, err := parseCheck(req)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	subject, resolved, err := a.subject(r.Context(), roles.Request{
		OrganizationID:      req.OrganizationID,
		IsImpersonating:     req.IsImpersonating,
		ImpersonationTarget: req.ImpersonationTarget,
	})
	if err != nil {
		a.writeRoleError(w, r, err)
		return
	}

	verdict := a.access.Check(subject, check)
	obs.ObserveAccessDecision(verdict.Outcome())
	writeJSON(w, http.StatusOK, accessCheckResponse{
		Verdict:  verdict,
		Role:     resolved,
		ReadOnly: a.access.ReadOnly(subject),
	})
}

func (a *API) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	q := r.URL.Query()
	subject, resolved, err := a.subject(r.Context(), roles.Request{
		OrganizationID:  strings.TrimSpace(q.Get("organizationId")),
		IsImpersonating: q.Get("impersonating") == "true",
	})
	if err != nil {
		a.writeRoleError(w, r, err)
		return
	}
	plan := subject.Subscription.Plan
	writeJSON(w, http.StatusOK, capabilitiesResponse{
		Capabilities:  a.access.Capabilities(subject),
		Role:          resolved,
		Plan:          plan,
		PlanName:      plans.DisplayName(plan),
		Status:        subject.Subscription.Status,
		TrialDaysLeft: subscription.TrialDaysRemaining(subject.Subscription, subject.Now),
		Limits:        plans.LimitsFor(plan),
		Modules:       rbac.DefaultMatrix.VisibleModules(subject.Role),
	})
}

func parseCheck(req accessCheckRequest) (access.Request, error) {
	var out access.Request
	if strings.TrimSpace(req.Feature) != "" {
		f, ok := plans.ParseFeature(req.Feature)
		if !ok {
			return access.Request{}, fmt.Errorf("unknown feature %q", req.Feature)
		}
		out.Feature = f
	}
	if strings.TrimSpace(req.Module) != "" {
		m, ok := rbac.ParseModule(req.Module)
		if !ok {
			return access.Request{}, fmt.Errorf("unknown module %q", req.Module)
		}
		act, ok := rbac.ParseAction(req.Action)
		if !ok {
			return access.Request{}, fmt.Errorf("unknown action %q", req.Action)
		}
		out.Module, out.Action = m, act
	}
	if out.Feature == "" && out.Module == "" {
		return access.Request{}, errors.New("feature or module is required")
	}
	return out, nil
}

// resolveRole asks the authority and records the outcome.
func (a *API) resolveRole(ctx context.Context, req roles.Request) (roles.ResolvedRole, error) {
	if a.deps.Roles == nil {
		return roles.ResolvedRole{}, errors.New("role resolution unavailable")
	}
	resolved, err := a.deps.Roles.ResolveRole(ctx, req)
	if err != nil {
		obs.ObserveRoleResolution("error")
		return roles.ResolvedRole{}, err
	}
	obs.ObserveRoleResolution("ok")
	if resolved.IsImpersonating {
		_ = a.audit.LogEvent(ctx, audit.EventImpersonation, map[string]any{
			"organization_id": resolved.OrganizationID,
		})
	}
	return resolved, nil
}

// subject builds the access subject from the authoritative role and the
// stored subscription. Token claims never contribute.
func (a *API) subject(ctx context.Context, req roles.Request) (access.Subject, roles.ResolvedRole, error) {
	resolved, err := a.resolveRole(ctx, req)
	if err != nil {
		return access.Subject{}, roles.ResolvedRole{}, err
	}
	if resolved.OrganizationID == "" {
		return access.Subject{}, roles.ResolvedRole{}, fmt.Errorf("%w: no organization selected", roles.ErrInvalidInput)
	}
	sub, err := a.loadSubscription(ctx, resolved.OrganizationID)
	if err != nil {
		return access.Subject{}, roles.ResolvedRole{}, err
	}
	return access.Subject{
		IsSuperAdmin:    resolved.IsSuperAdmin,
		IsImpersonating: resolved.IsImpersonating,
		Role:            resolved.EffectiveRole,
		Subscription:    sub,
		Now:             a.now(),
	}, resolved, nil
}

// loadSubscription treats a missing row as an expired free plan.
func (a *API) loadSubscription(ctx context.Context, orgID string) (subscription.Subscription, error) {
	if a.deps.Subscriptions == nil {
		return subscription.Subscription{}, errors.New("subscription store unavailable")
	}
	sub, err := a.deps.Subscriptions.Subscription(ctx, orgID)
	if errors.Is(err, subscription.ErrNotFound) {
		return subscription.Subscription{OrganizationID: orgID, Plan: plans.Free, Status: subscription.StatusExpired}, nil
	}
	if err != nil {
		return subscription.Subscription{}, err
	}
	return sub, nil
}

func (a *API) writeRoleError(w http.ResponseWriter, r *http.Request, err error) {
	code := roles.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		a.log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("role resolution failed")
		msg := "role resolution failed"
		if code == http.StatusBadGateway {
			msg = "role authority unavailable"
		}
		writeError(w, r, code, msg)
		return
	}
	writeError(w, r, code, err.Error())
}
