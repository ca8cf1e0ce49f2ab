package jobs

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"tallyboard.io/internal/plans"
	"tallyboard.io/internal/subscription"
)

var (
	ErrBadSignature         = errors.New("jobs: payment signature mismatch")
	ErrMissingPaymentSecret = errors.New("jobs: payment secret is not configured")
	ErrSubscriptionNotFound = errors.New("jobs: subscription not found")
	ErrPaymentReplayed      = errors.New("jobs: payment order already used")
)

// Payment is a provider callback confirming a checkout.
type Payment struct {
	OrganizationID string     `json:"organization_id"`
	OrderID        string     `json:"order_id"`
	PaymentID      string     `json:"payment_id"`
	Signature      string     `json:"signature"`
	Plan           plans.Plan `json:"plan"`
}

// SubscriptionActivator records a verified payment and turns the
// organization's subscription active on the paid plan in one step.
// Missing subscriptions return ErrSubscriptionNotFound and an order id
// that was already recorded returns ErrPaymentReplayed.
type SubscriptionActivator interface {
	ActivatePayment(ctx context.Context, p Payment, at time.Time) (subscription.Subscription, error)
}

// PaymentVerifier checks provider signatures and activates subscriptions.
type PaymentVerifier struct {
	secret []byte
	store  SubscriptionActivator
	now    func() time.Time
}

// NewPaymentVerifier builds a verifier keyed with the provider secret.
func NewPaymentVerifier(secret string, store SubscriptionActivator) (*PaymentVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingPaymentSecret
	}
	return &PaymentVerifier{secret: []byte(secret), store: store, now: time.Now}, nil
}

// Sign returns the hex HMAC-SHA256 of
// "organization_id|plan|order_id|payment_id".
func (v *PaymentVerifier) Sign(p Payment) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strings.Join([]string{p.OrganizationID, string(p.Plan), p.OrderID, p.PaymentID}, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature in constant time and, when it matches,
// activates the subscription on the paid plan. Each order id activates
// at most once.
func (v *PaymentVerifier) Verify(ctx context.Context, p Payment) (subscription.Subscription, error) {
	p.OrganizationID = strings.TrimSpace(p.OrganizationID)
	p.OrderID = strings.TrimSpace(p.OrderID)
	p.PaymentID = strings.TrimSpace(p.PaymentID)
	if p.OrganizationID == "" || p.OrderID == "" || p.PaymentID == "" {
		return subscription.Subscription{}, fmt.Errorf("%w: organization_id, order_id and payment_id are required", ErrInvalidInput)
	}
	if !p.Plan.Valid() || p.Plan == plans.Free {
		return subscription.Subscription{}, fmt.Errorf("%w: plan %q cannot be purchased", ErrInvalidInput, p.Plan)
	}

	got, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(p.Signature)))
	if err != nil {
		return subscription.Subscription{}, ErrBadSignature
	}
	want, _ := hex.DecodeString(v.Sign(p))
	if !hmac.Equal(got, want) {
		return subscription.Subscription{}, ErrBadSignature
	}

	sub, err := v.store.ActivatePayment(ctx, p, v.now().UTC())
	if err != nil {
		return subscription.Subscription{}, fmt.Errorf("jobs: activate subscription: %w", err)
	}
	return sub, nil
}
