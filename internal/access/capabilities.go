package access

import (
	"tallyboard.io/internal/plans"
	"tallyboard.io/internal/rbac"
)

// Capabilities is the bundle of convenience booleans shown to clients.
type Capabilities struct {
	CanAccessReports   bool `json:"canAccessReports"`
	CanAccessAnalytics bool `json:"canAccessAnalytics"`
	CanAccessAuditLogs bool `json:"canAccessAuditLogs"`
	CanManageTeam      bool `json:"canManageTeam"`
	CanAccessBilling   bool `json:"canAccessBilling"`
	CanAccessSettings  bool `json:"canAccessSettings"`
	IsReadOnly         bool `json:"isReadOnly"`
}

func (r *Resolver) CanAccessReports(s Subject) bool {
	return r.Check(s, Request{Feature: plans.FeatureReports, Module: rbac.ModuleReports, Action: rbac.ActionView}).HasAccess
}

func (r *Resolver) CanAccessAnalytics(s Subject) bool {
	return r.Check(s, Request{Feature: plans.FeatureAnalytics, Module: rbac.ModuleAnalytics, Action: rbac.ActionView}).HasAccess
}

func (r *Resolver) CanAccessAuditLogs(s Subject) bool {
	return r.Check(s, Request{Feature: plans.FeatureAuditLogs, Module: rbac.ModuleAuditLogs, Action: rbac.ActionView}).HasAccess
}

// CanManageTeam needs the team_management feature and edit rights on team members.
func (r *Resolver) CanManageTeam(s Subject) bool {
	return r.Check(s, Request{Feature: plans.FeatureTeamManagement, Module: rbac.ModuleTeamMembers, Action: rbac.ActionEdit}).HasAccess
}

// CanAccessBilling has no feature gate; only the role and subscription state apply.
func (r *Resolver) CanAccessBilling(s Subject) bool {
	return r.Check(s, Request{Module: rbac.ModuleBilling, Action: rbac.ActionView}).HasAccess
}

func (r *Resolver) CanAccessSettings(s Subject) bool {
	return r.Check(s, Request{Module: rbac.ModuleSettings, Action: rbac.ActionView}).HasAccess
}

// Capabilities evaluates every convenience predicate for s.
func (r *Resolver) Capabilities(s Subject) Capabilities {
	return Capabilities{
		CanAccessReports:   r.CanAccessReports(s),
		CanAccessAnalytics: r.CanAccessAnalytics(s),
		CanAccessAuditLogs: r.CanAccessAuditLogs(s),
		CanManageTeam:      r.CanManageTeam(s),
		CanAccessBilling:   r.CanAccessBilling(s),
		CanAccessSettings:  r.CanAccessSettings(s),
		IsReadOnly:         r.ReadOnly(s),
	}
}
