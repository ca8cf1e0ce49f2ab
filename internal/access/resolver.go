// Package access combines the plan catalog, the subscription evaluator and the
// role permission matrix into a single access verdict.
//
// Everything here is a pure function of its arguments. Identity, subscription
// and the current time are passed in explicitly; nothing is read from globals.
package access

import (
	"fmt"
	"strings"
	"time"

	"tallyboard.io/internal/plans"
	"tallyboard.io/internal/rbac"
	"tallyboard.io/internal/subscription"
)

// Subject is the identity and subscription context a check runs against.
type Subject struct {
	IsSuperAdmin    bool
	IsImpersonating bool
	Role            rbac.Role
	Subscription    subscription.Subscription
	Now             time.Time
}

// Request names the capability being checked. Zero fields are "not supplied".
type Request struct {
	Feature plans.Feature
	Module  rbac.Module
	Action  rbac.Action
}

// Resolver evaluates access requests.
type Resolver struct {
	catalog plans.Catalog
	matrix  rbac.Matrix
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCatalog overrides the plan catalog.
func WithCatalog(c plans.Catalog) Option {
	return func(r *Resolver) { r.catalog = c }
}

// WithMatrix overrides the role permission matrix.
func WithMatrix(m rbac.Matrix) Option {
	return func(r *Resolver) {
		if m != nil {
			r.matrix = m
		}
	}
}

// New constructs a Resolver using the default catalog and matrix.
func New(opts ...Option) *Resolver {
	r := &Resolver{catalog: plans.Default, matrix: rbac.DefaultMatrix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Check evaluates req for s. Rules apply in order and the first match wins:
// super-admin bypass, subscription state, plan feature, role permission.
func (r *Resolver) Check(s Subject, req Request) Verdict {
	if s.IsSuperAdmin || s.IsImpersonating {
		// Impersonation stays read-only against a suspended organization.
		if s.IsImpersonating && s.Subscription.Status == subscription.StatusSuspended && mutates(req.Action) {
			return denyByPlan(RequiredActiveSubscription, subscriptionMessage(s))
		}
		return allow()
	}

	state := subscription.Evaluate(s.Subscription, s.Now)
	if !state.IsActive || state.IsTrialExpired {
		return denyByPlan(RequiredActiveSubscription, subscriptionMessage(s))
	}

	if req.Feature != "" {
		if v, blocked := r.checkPlan(s.Subscription.Plan, req.Feature); blocked {
			return v
		}
	}

	if req.Module != "" && !r.matrix.IsAllowed(s.Role, req.Module, req.Action) {
		return denyByRole(fmt.Sprintf("Your role (%s) does not allow %s on %s.",
			humanize(string(s.Role)), humanize(string(req.Action)), humanize(string(req.Module))))
	}

	return allow()
}

func (r *Resolver) checkPlan(plan plans.Plan, feature plans.Feature) (Verdict, bool) {
	required, err := r.catalog.MinimumPlanFor(feature)
	if err != nil {
		return denyByPlan("", "This feature is not available."), true
	}
	if r.catalog.HasFeature(plan, feature) {
		return Verdict{}, false
	}
	name := plans.DisplayName(required)
	return denyByPlan(name, fmt.Sprintf("%s requires the %s plan or higher. Upgrade to %s to unlock it.",
		plans.FeatureDisplayName(feature), name, name)), true
}

// CheckFeature is Check with only a feature.
func (r *Resolver) CheckFeature(s Subject, feature plans.Feature) Verdict {
	return r.Check(s, Request{Feature: feature, Action: rbac.ActionView})
}

// CheckPermission is Check with only a module and action.
func (r *Resolver) CheckPermission(s Subject, module rbac.Module, action rbac.Action) Verdict {
	return r.Check(s, Request{Module: module, Action: action})
}

// ReadOnly reports whether mutation controls must be disabled for s.
func (r *Resolver) ReadOnly(s Subject) bool {
	switch {
	case s.IsImpersonating:
		return s.Subscription.Status == subscription.StatusSuspended
	case s.IsSuperAdmin:
		return false
	default:
		return subscription.Evaluate(s.Subscription, s.Now).ReadOnly()
	}
}

// An empty action is treated as a read.
func mutates(a rbac.Action) bool {
	return a != "" && a.Mutates()
}

func subscriptionMessage(s Subject) string {
	sub := s.Subscription
	switch {
	case sub.Status == subscription.StatusSuspended:
		return "This organization's subscription is suspended. Update billing or contact support to restore access."
	case subscription.Evaluate(sub, s.Now).IsTrialExpired:
		return "Your free trial has ended. Activate a subscription to continue."
	default:
		return "This organization has no active subscription. Choose a plan to continue."
	}
}

func humanize(s string) string {
	if s == "" {
		return "none"
	}
	return strings.ReplaceAll(s, "_", " ")
}
