// Package rbac holds the organization role permission matrix.
//
// The matrix is data, not code: every role has an explicit row and every row
// lists the actions it grants per module. Nothing is inherited, and owners get
// no implicit grants here; bypasses for super-admins live in the access package.
package rbac

import (
	"sort"
	"strings"
)

// Role is a user's permission level inside one organization.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleManager    Role = "manager"
	RoleAccounts   Role = "accounts"
	RoleSalesStaff Role = "sales_staff"
	RoleDesigner   Role = "designer"
	RoleEmployee   Role = "employee"
)

// Module is an organization resource.
type Module string

const (
	ModuleDashboard   Module = "dashboard"
	ModuleInvoices    Module = "invoices"
	ModuleQuotations  Module = "quotations"
	ModuleExpenses    Module = "expenses"
	ModuleVendors     Module = "vendors"
	ModuleCustomers   Module = "customers"
	ModuleTasks       Module = "tasks"
	ModuleReports     Module = "reports"
	ModuleAnalytics   Module = "analytics"
	ModuleTeamMembers Module = "team_members"
	ModuleSettings    Module = "settings"
	ModuleBilling     Module = "billing"
	ModuleAuditLogs   Module = "audit_logs"
)

// Action is a verb applied to a module.
type Action string

const (
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionExport  Action = "export"
	ActionApprove Action = "approve"
)

var (
	allRoles   = []Role{RoleOwner, RoleManager, RoleAccounts, RoleSalesStaff, RoleDesigner, RoleEmployee}
	allModules = []Module{
		ModuleDashboard, ModuleInvoices, ModuleQuotations, ModuleExpenses, ModuleVendors,
		ModuleCustomers, ModuleTasks, ModuleReports, ModuleAnalytics, ModuleTeamMembers,
		ModuleSettings, ModuleBilling, ModuleAuditLogs,
	}
	allActions = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport, ActionApprove}
)

var (
	full     = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport, ActionApprove}
	manage   = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport}
	author   = []Action{ActionView, ActionCreate, ActionEdit, ActionExport}
	contrib  = []Action{ActionView, ActionCreate, ActionEdit}
	readOnly = []Action{ActionView}
	reader   = []Action{ActionView, ActionExport}
)

// Matrix maps role -> module -> granted actions.
type Matrix map[Role]map[Module][]Action

// DefaultMatrix is the permission table used in production.
var DefaultMatrix = Matrix{
	RoleOwner: {
		ModuleDashboard:   readOnly,
		ModuleInvoices:    full,
		ModuleQuotations:  full,
		ModuleExpenses:    full,
		ModuleVendors:     full,
		ModuleCustomers:   full,
		ModuleTasks:       full,
		ModuleReports:     reader,
		ModuleAnalytics:   reader,
		ModuleTeamMembers: manage,
		ModuleSettings:    {ActionView, ActionEdit},
		ModuleBilling:     {ActionView, ActionEdit},
		ModuleAuditLogs:   reader,
	},
	RoleManager: {
		ModuleDashboard:   readOnly,
		ModuleInvoices:    full,
		ModuleQuotations:  full,
		ModuleExpenses:    full,
		ModuleVendors:     manage,
		ModuleCustomers:   manage,
		ModuleTasks:       full,
		ModuleReports:     reader,
		ModuleAnalytics:   reader,
		ModuleTeamMembers: contrib,
		ModuleSettings:    readOnly,
		ModuleBilling:     readOnly,
		ModuleAuditLogs:   readOnly,
	},
	RoleAccounts: {
		ModuleDashboard:   readOnly,
		ModuleInvoices:    full,
		ModuleQuotations:  author,
		ModuleExpenses:    full,
		ModuleVendors:     author,
		ModuleCustomers:   author,
		ModuleTasks:       contrib,
		ModuleReports:     reader,
		ModuleAnalytics:   readOnly,
		ModuleTeamMembers: readOnly,
		ModuleBilling:     readOnly,
	},
	RoleSalesStaff: {
		ModuleDashboard:  readOnly,
		ModuleInvoices:   author,
		ModuleQuotations: manage,
		ModuleCustomers:  contrib,
		ModuleTasks:      contrib,
		ModuleReports:    readOnly,
	},
	RoleDesigner: {
		ModuleDashboard:  readOnly,
		ModuleQuotations: readOnly,
		ModuleCustomers:  readOnly,
		ModuleTasks:      contrib,
	},
	RoleEmployee: {
		ModuleDashboard: readOnly,
		ModuleExpenses:  {ActionView, ActionCreate},
		ModuleTasks:     {ActionView, ActionEdit},
	},
}

// IsAllowed reports whether role may perform action on module.
// Unknown roles, modules and actions are denied.
func (m Matrix) IsAllowed(role Role, module Module, action Action) bool {
	for _, a := range m[role][module] {
		if a == action {
			return true
		}
	}
	return false
}

// AllowedActions returns a copy of the actions role has on module.
func (m Matrix) AllowedActions(role Role, module Module) []Action {
	granted := m[role][module]
	out := make([]Action, len(granted))
	copy(out, granted)
	return out
}

// VisibleModules lists the modules role can view, in declaration order.
func (m Matrix) VisibleModules(role Role) []Module {
	var out []Module
	for _, mod := range allModules {
		if m.IsAllowed(role, mod, ActionView) {
			out = append(out, mod)
		}
	}
	return out
}

// IsAllowed checks the default matrix.
func IsAllowed(role Role, module Module, action Action) bool {
	return DefaultMatrix.IsAllowed(role, module, action)
}

// Roles returns all declared roles.
func Roles() []Role { return append([]Role(nil), allRoles...) }

// Modules returns all declared modules.
func Modules() []Module { return append([]Module(nil), allModules...) }

// Actions returns all declared actions.
func Actions() []Action { return append([]Action(nil), allActions...) }

// Mutates reports whether the action changes state.
func (a Action) Mutates() bool {
	switch a {
	case ActionView, ActionExport:
		return false
	default:
		return true
	}
}

// ParseRole normalizes a stored role value.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := DefaultMatrix[r]
	return r, ok
}

// ParseModule normalizes a module name.
func ParseModule(raw string) (Module, bool) {
	m := Module(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range allModules {
		if known == m {
			return m, true
		}
	}
	return m, false
}

// ParseAction normalizes an action verb.
func ParseAction(raw string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range allActions {
		if known == a {
			return a, true
		}
	}
	return a, false
}

// Grants flattens the matrix row for role into "module:action" keys, sorted.
func (m Matrix) Grants(role Role) []string {
	var out []string
	for mod, actions := range m[role] {
		for _, a := range actions {
			out = append(out, string(mod)+":"+string(a))
		}
	}
	sort.Strings(out)
	return out
}
