package plans

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryFeatureHasMinimumPlan(t *testing.T) {
	for _, f := range Features() {
		p, err := MinimumPlanFor(f)
		require.NoError(t, err, "feature %s", f)
		assert.True(t, p.Valid(), "feature %s maps to undeclared plan %q", f, p)
		assert.NotEqual(t, string(f), FeatureDisplayName(f), "feature %s has no display name", f)
	}
}

func TestHasFeatureIsMonotonicInTier(t *testing.T) {
	ordered := Plans()
	for _, f := range Features() {
		for i, lower := range ordered {
			for _, higher := range ordered[i:] {
				if HasFeature(lower, f) {
					assert.True(t, HasFeature(higher, f), "%s has %s but %s does not", lower, f, higher)
				}
			}
		}
	}
}

func TestMinimumPlanIsLowestIncludingPlan(t *testing.T) {
	for _, f := range Features() {
		required, err := MinimumPlanFor(f)
		require.NoError(t, err)
		for _, p := range Plans() {
			assert.Equal(t, p.Tier() >= required.Tier(), HasFeature(p, f), "plan %s feature %s", p, f)
		}
	}
}

func TestHasFeatureKnownGates(t *testing.T) {
	tests := []struct {
		plan    Plan
		feature Feature
		want    bool
	}{
		{Free, FeatureInvoicing, true},
		{Free, FeatureReports, false},
		{Basic, FeatureReports, true},
		{Basic, FeatureAnalytics, false},
		{Pro, FeatureAnalytics, true},
		{Pro, FeatureAuditLogs, false},
		{Enterprise, FeatureAuditLogs, true},
		{Plan("platinum"), FeatureInvoicing, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HasFeature(tt.plan, tt.feature), "%s/%s", tt.plan, tt.feature)
	}
}

func TestUnknownFeatureDegradesToNoAccess(t *testing.T) {
	_, err := MinimumPlanFor(Feature("teleportation"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownFeature))
	assert.False(t, HasFeature(Enterprise, Feature("teleportation")))
}

func TestStrictCatalogPanicsOnUnknownFeature(t *testing.T) {
	strict := NewCatalog(WithStrict(true))
	assert.Panics(t, func() { strict.HasFeature(Enterprise, Feature("teleportation")) })
	assert.NotPanics(t, func() { strict.HasFeature(Free, FeatureReports) })
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Enterprise", DisplayName(Enterprise))
	assert.Equal(t, "Free", DisplayName(Free))
	assert.Equal(t, "Unknown", DisplayName(Plan("x")))
}

func TestParsePlan(t *testing.T) {
	p, ok := ParsePlan("  PRO ")
	assert.True(t, ok)
	assert.Equal(t, Pro, p)

	_, ok = ParsePlan("gold")
	assert.False(t, ok)
}

func TestFeaturesForIsSortedAndGrows(t *testing.T) {
	prev := 0
	for _, p := range Plans() {
		got := Default.FeaturesFor(p)
		assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i] < got[j] }))
		assert.GreaterOrEqual(t, len(got), prev, "plan %s", p)
		prev = len(got)
	}
	assert.Len(t, Default.FeaturesFor(Enterprise), len(Features()))
}

func TestLimitsFor(t *testing.T) {
	assert.Equal(t, 1, LimitsFor(Free).MaxUsers)
	assert.True(t, LimitsFor(Enterprise).CustomBranding)
	assert.Zero(t, LimitsFor(Enterprise).MaxUsers)
	assert.Equal(t, LimitsFor(Free), LimitsFor(Plan("unknown")))
	for _, p := range Plans() {
		assert.Equal(t, HasFeature(p, FeatureAPIAccess), LimitsFor(p).APIAccess, "plan %s", p)
		assert.Equal(t, HasFeature(p, FeatureCustomBranding), LimitsFor(p).CustomBranding, "plan %s", p)
	}
}

func TestCheckLimit(t *testing.T) {
	tests := []struct {
		limit, observed int64
		want            LimitCheck
	}{
		{0, 1000, LimitAllowed},
		{10, 5, LimitAllowed},
		{10, 9, LimitSoftBlock},
		{10, 10, LimitHardBlock},
		{10, 11, LimitHardBlock},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CheckLimit(tt.limit, tt.observed), "limit=%d observed=%d", tt.limit, tt.observed)
	}
}
