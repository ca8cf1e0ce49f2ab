// Package subscription derives the operating state of an organization's
// subscription from its stored fields and a caller-supplied clock reading.
package subscription

import (
	"errors"
	"math"
	"strings"
	"time"

	"tallyboard.io/internal/plans"
)

// Status is the stored subscription status.
type Status string

const (
	StatusActive    Status = "active"
	StatusTrial     Status = "trial"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// ErrNotFound is returned by stores when an organization has no subscription row.
var ErrNotFound = errors.New("subscription: not found")

// Subscription is the stored snapshot for one organization.
type Subscription struct {
	OrganizationID string     `json:"organization_id"`
	Plan           plans.Plan `json:"plan"`
	Status         Status     `json:"status"`
	TrialEnd       *time.Time `json:"trial_end,omitempty"`
}

// State is derived from a Subscription at a point in time.
type State struct {
	IsActive       bool `json:"is_active"`
	IsTrialExpired bool `json:"is_trial_expired"`
}

// ReadOnly reports whether mutations must be blocked.
func (s State) ReadOnly() bool {
	return !s.IsActive || s.IsTrialExpired
}

// Evaluate derives the state of sub at now. It keeps no state between calls.
func Evaluate(sub Subscription, now time.Time) State {
	return State{
		IsActive:       isActive(sub.Status),
		IsTrialExpired: sub.Status == StatusTrial && sub.TrialEnd != nil && now.After(*sub.TrialEnd),
	}
}

// Unknown statuses count as inactive.
func isActive(status Status) bool {
	switch status {
	case StatusActive, StatusTrial:
		return true
	default:
		return false
	}
}

// TrialDaysRemaining returns whole days left in a running trial, rounding partial days up.
// It is zero for non-trial subscriptions, trials without an end and expired trials.
func TrialDaysRemaining(sub Subscription, now time.Time) int {
	if sub.Status != StatusTrial || sub.TrialEnd == nil {
		return 0
	}
	left := sub.TrialEnd.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

// ParseStatus normalizes a stored status. "canceled" is accepted as an alias.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if s == "canceled" {
		s = StatusCancelled
	}
	switch s {
	case StatusActive, StatusTrial, StatusSuspended, StatusCancelled, StatusExpired:
		return s, true
	}
	return s, false
}
