// Package plans defines subscription plans, the features each plan unlocks and
// the numeric limits that come with them.
//
// Plans are totally ordered by tier. A feature is declared once with the lowest
// plan that includes it, so every higher plan includes it as well.
package plans

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Plan is a subscription tier.
type Plan string

const (
	Free       Plan = "free"
	Basic      Plan = "basic"
	Pro        Plan = "pro"
	Enterprise Plan = "enterprise"
)

// Feature is a capability gated by plan.
type Feature string

const (
	FeatureInvoicing         Feature = "invoicing"
	FeatureExpenses          Feature = "expenses"
	FeatureVendors           Feature = "vendors"
	FeatureTasks             Feature = "tasks"
	FeatureCustomers         Feature = "customers"
	FeatureRecurringInvoices Feature = "recurring_invoices"
	FeatureReports           Feature = "reports"
	FeatureMultiCurrency     Feature = "multi_currency"
	FeatureTeamManagement    Feature = "team_management"
	FeatureAnalytics         Feature = "analytics"
	FeatureAPIAccess         Feature = "api_access"
	FeatureCustomBranding    Feature = "custom_branding"
	FeatureAuditLogs         Feature = "audit_logs"
	FeaturePrioritySupport   Feature = "priority_support"
)

// ErrUnknownFeature is returned for a feature missing from the catalog.
var ErrUnknownFeature = errors.New("plans: unknown feature")

// orderedPlans lists plans from lowest to highest tier.
var orderedPlans = []Plan{Free, Basic, Pro, Enterprise}

var planTier = func() map[Plan]int {
	m := make(map[Plan]int, len(orderedPlans))
	for i, p := range orderedPlans {
		m[p] = i
	}
	return m
}()

// minimumPlan is the single source of plan gating. Keep one entry per Feature.
var minimumPlan = map[Feature]Plan{
	FeatureInvoicing:         Free,
	FeatureExpenses:          Free,
	FeatureCustomers:         Free,
	FeatureTasks:             Free,
	FeatureVendors:           Basic,
	FeatureRecurringInvoices: Basic,
	FeatureReports:           Basic,
	FeatureMultiCurrency:     Pro,
	FeatureTeamManagement:    Pro,
	FeatureAnalytics:         Pro,
	FeatureAPIAccess:         Pro,
	FeatureCustomBranding:    Enterprise,
	FeatureAuditLogs:         Enterprise,
	FeaturePrioritySupport:   Enterprise,
}

var featureNames = map[Feature]string{
	FeatureInvoicing:         "Invoicing",
	FeatureExpenses:          "Expense Tracking",
	FeatureVendors:           "Vendor Management",
	FeatureTasks:             "Tasks",
	FeatureCustomers:         "Customers",
	FeatureRecurringInvoices: "Recurring Invoices",
	FeatureReports:           "Reports",
	FeatureMultiCurrency:     "Multi-Currency",
	FeatureTeamManagement:    "Team Management",
	FeatureAnalytics:         "Analytics",
	FeatureAPIAccess:         "API Access",
	FeatureCustomBranding:    "Custom Branding",
	FeatureAuditLogs:         "Audit Logs",
	FeaturePrioritySupport:   "Priority Support",
}

// Plans returns all plans ordered by tier.
func Plans() []Plan {
	out := make([]Plan, len(orderedPlans))
	copy(out, orderedPlans)
	return out
}

// Features returns every declared feature, sorted by name.
func Features() []Feature {
	out := make([]Feature, 0, len(minimumPlan))
	for f := range minimumPlan {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Valid reports whether p is a declared plan.
func (p Plan) Valid() bool {
	_, ok := planTier[p]
	return ok
}

// Tier returns the plan's position in the tier order, or -1 for unknown plans.
func (p Plan) Tier() int {
	if t, ok := planTier[p]; ok {
		return t
	}
	return -1
}

// AtLeast reports whether p is the same tier as other or higher.
func (p Plan) AtLeast(other Plan) bool {
	return p.Valid() && other.Valid() && p.Tier() >= other.Tier()
}

// ParsePlan normalizes a stored plan value.
func ParsePlan(raw string) (Plan, bool) {
	p := Plan(strings.ToLower(strings.TrimSpace(raw)))
	return p, p.Valid()
}

// ParseFeature normalizes a feature tag.
func ParseFeature(raw string) (Feature, bool) {
	f := Feature(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := minimumPlan[f]
	return f, ok
}

// DisplayName returns a human-readable name for the plan.
func DisplayName(p Plan) string {
	switch p {
	case Free:
		return "Free"
	case Basic:
		return "Basic"
	case Pro:
		return "Pro"
	case Enterprise:
		return "Enterprise"
	default:
		return "Unknown"
	}
}

// FeatureDisplayName returns a human-readable name for a feature.
func FeatureDisplayName(f Feature) string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return string(f)
}

// Catalog answers plan questions. The zero value is the production catalog.
type Catalog struct {
	strict bool
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithStrict makes lookups of unknown features panic instead of denying.
func WithStrict(strict bool) Option {
	return func(c *Catalog) { c.strict = strict }
}

// NewCatalog constructs a Catalog.
func NewCatalog(opts ...Option) Catalog {
	var c Catalog
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Default is the non-strict catalog.
var Default = NewCatalog()

// MinimumPlanFor returns the lowest plan that includes feature.
func (c Catalog) MinimumPlanFor(feature Feature) (Plan, error) {
	p, ok := minimumPlan[feature]
	if !ok {
		c.unknown(feature)
		return "", fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
	}
	return p, nil
}

// HasFeature reports whether plan includes feature. Unknown plans have no features.
func (c Catalog) HasFeature(plan Plan, feature Feature) bool {
	required, err := c.MinimumPlanFor(feature)
	if err != nil {
		return false
	}
	return plan.AtLeast(required)
}

// FeaturesFor lists the features included in plan, sorted by name.
func (c Catalog) FeaturesFor(plan Plan) []Feature {
	var out []Feature
	for _, f := range Features() {
		if c.HasFeature(plan, f) {
			out = append(out, f)
		}
	}
	return out
}

// LimitsFor returns the limits attached to plan.
func (c Catalog) LimitsFor(plan Plan) Limits {
	return LimitsFor(plan)
}

func (c Catalog) unknown(feature Feature) {
	if c.strict {
		panic(fmt.Sprintf("plans: feature %q has no minimum plan", feature))
	}
	log.Error().Str("feature", string(feature)).Msg("plans: lookup of undeclared feature denied")
}

// HasFeature reports whether plan includes feature using the default catalog.
func HasFeature(plan Plan, feature Feature) bool {
	return Default.HasFeature(plan, feature)
}

// MinimumPlanFor returns the lowest plan including feature using the default catalog.
func MinimumPlanFor(feature Feature) (Plan, error) {
	return Default.MinimumPlanFor(feature)
}
