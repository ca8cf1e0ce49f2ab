package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tallyboard.io/internal/access"
	"tallyboard.io/internal/auth"
	"tallyboard.io/internal/jobs"
	"tallyboard.io/internal/plans"
	"tallyboard.io/internal/rbac"
	"tallyboard.io/internal/roles"
	"tallyboard.io/internal/subscription"
)

const (
	testSecret   = "httpapi-test-secret"
	testPassword = "correct horse battery"
	paymentKey   = "payment-test-secret"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubDirectory struct {
	users       map[string]roles.User
	orgs        map[string]roles.Organization
	memberships map[string]roles.Membership // key: user|org
}

func (d *stubDirectory) User(_ context.Context, id string) (roles.User, error) {
	u, ok := d.users[id]
	if !ok {
		return roles.User{}, roles.ErrNotFound
	}
	return u, nil
}

func (d *stubDirectory) Organization(_ context.Context, id string) (roles.Organization, error) {
	o, ok := d.orgs[id]
	if !ok {
		return roles.Organization{}, roles.ErrNotFound
	}
	return o, nil
}

func (d *stubDirectory) Membership(_ context.Context, userID, orgID string) (roles.Membership, error) {
	m, ok := d.memberships[userID+"|"+orgID]
	if !ok {
		return roles.Membership{}, roles.ErrNotFound
	}
	return m, nil
}

func (d *stubDirectory) DefaultMembership(_ context.Context, userID string) (roles.Membership, error) {
	for _, m := range d.memberships {
		if m.UserID == userID && m.Status == roles.MembershipActive {
			return m, nil
		}
	}
	return roles.Membership{}, roles.ErrNotFound
}

type stubCredentials map[string]auth.Credentials

func (s stubCredentials) FindCredentials(_ context.Context, email string) (auth.Credentials, error) {
	c, ok := s[email]
	if !ok {
		return auth.Credentials{}, auth.ErrNotFound
	}
	return c, nil
}

type stubSubscriptions map[string]subscription.Subscription

func (s stubSubscriptions) Subscription(_ context.Context, orgID string) (subscription.Subscription, error) {
	sub, ok := s[orgID]
	if !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	return sub, nil
}

type stubPayments struct {
	subs   stubSubscriptions
	orders map[string]bool
}

func (s *stubPayments) ActivatePayment(_ context.Context, p jobs.Payment, _ time.Time) (subscription.Subscription, error) {
	if _, ok := s.subs[p.OrganizationID]; !ok {
		return subscription.Subscription{}, jobs.ErrSubscriptionNotFound
	}
	if s.orders[p.OrderID] {
		return subscription.Subscription{}, jobs.ErrPaymentReplayed
	}
	s.orders[p.OrderID] = true
	sub := subscription.Subscription{OrganizationID: p.OrganizationID, Plan: p.Plan, Status: subscription.StatusActive}
	s.subs[p.OrganizationID] = sub
	return sub, nil
}

type stubOwnership struct {
	dir   *stubDirectory
	calls int
}

func (s *stubOwnership) TransferOwnership(_ context.Context, orgID, newOwnerID string) (roles.Organization, error) {
	s.calls++
	org, ok := s.dir.orgs[orgID]
	if !ok {
		return roles.Organization{}, roles.ErrNotFound
	}
	if _, ok := s.dir.memberships[newOwnerID+"|"+orgID]; !ok {
		return roles.Organization{}, roles.ErrNotMember
	}
	org.OwnerID = newOwnerID
	return org, nil
}

type deleteCall struct {
	entity    jobs.Entity
	orgID     string
	ids       []string
	permanent bool
}

type stubDeletes struct {
	mu    sync.Mutex
	calls []deleteCall
	err   error
}

func (s *stubDeletes) SoftDelete(_ context.Context, e jobs.Entity, orgID string, ids []string, _ time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, deleteCall{entity: e, orgID: orgID, ids: ids})
	return int64(len(ids)), nil
}

func (s *stubDeletes) HardDelete(_ context.Context, e jobs.Entity, orgID string, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, deleteCall{entity: e, orgID: orgID, ids: ids, permanent: true})
	if s.err != nil {
		return 0, s.err
	}
	return int64(len(ids)), nil
}

type stubReady struct{ err error }

func (s stubReady) Ping(context.Context) error { return s.err }

type testEnv struct {
	t         *testing.T
	srv       *httptest.Server
	sessions  *auth.Sessions
	dir       *stubDirectory
	subs      stubSubscriptions
	ownership *stubOwnership
	deletes   *stubDeletes
	payments  *jobs.PaymentVerifier
	handler   http.Handler
}

func newDirectory() *stubDirectory {
	member := func(userID, orgID string, role rbac.Role, status string) roles.Membership {
		return roles.Membership{OrganizationID: orgID, UserID: userID, Role: role, Status: status}
	}
	return &stubDirectory{
		users: map[string]roles.User{
			"u-owner":   {ID: "u-owner", Email: "owner@example.com", SystemRole: roles.SystemRoleUser},
			"u-manager": {ID: "u-manager", Email: "manager@example.com", SystemRole: roles.SystemRoleUser},
			"u-emp":     {ID: "u-emp", Email: "emp@example.com", SystemRole: roles.SystemRoleUser},
			"u-admin":   {ID: "u-admin", Email: "admin@example.com", SystemRole: roles.SystemRoleSuperAdmin},
			"u-outside": {ID: "u-outside", Email: "outside@example.com", SystemRole: roles.SystemRoleUser},
		},
		orgs: map[string]roles.Organization{
			"org-1": {ID: "org-1", Name: "Acme", OwnerID: "u-owner"},
			"org-2": {ID: "org-2", Name: "Frozen", OwnerID: "u-owner"},
		},
		memberships: map[string]roles.Membership{
			"u-owner|org-1":   member("u-owner", "org-1", rbac.RoleOwner, roles.MembershipActive),
			"u-manager|org-1": member("u-manager", "org-1", rbac.RoleManager, roles.MembershipActive),
			"u-emp|org-1":     member("u-emp", "org-1", rbac.RoleEmployee, roles.MembershipActive),
			"u-owner|org-2":   member("u-owner", "org-2", rbac.RoleOwner, roles.MembershipActive),
		},
	}
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	return newLoggedTestEnv(t, zerolog.Nop(), opts...)
}

func newLoggedTestEnv(t *testing.T, logger zerolog.Logger, opts ...Option) *testEnv {
	t.Helper()

	sessions, err := auth.NewSessions(testSecret)
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	dir := newDirectory()
	subs := stubSubscriptions{
		"org-1": {OrganizationID: "org-1", Plan: plans.Pro, Status: subscription.StatusActive},
		"org-2": {OrganizationID: "org-2", Plan: plans.Enterprise, Status: subscription.StatusSuspended},
	}
	ownership := &stubOwnership{dir: dir}
	deletes := &stubDeletes{}
	resolver := access.New()
	payments, err := jobs.NewPaymentVerifier(paymentKey, &stubPayments{subs: subs, orders: map[string]bool{}})
	if err != nil {
		t.Fatalf("NewPaymentVerifier: %v", err)
	}

	api := New(Deps{
		Sessions: sessions,
		Credentials: stubCredentials{
			"owner@example.com": {UserID: "u-owner", Email: "owner@example.com", PasswordHash: hash},
		},
		Roles:         roles.NewAuthority(dir).FromContext(),
		Subscriptions: subs,
		Ownership:     ownership,
		Deleter:       jobs.NewBulkDeleter(deletes, resolver),
		Payments:      payments,
		Access:        resolver,
		Ready:         stubReady{},
		Logger:        logger,
		Version:       "test",
	}, append([]Option{WithRateLimit(1000, 1000), WithClock(func() time.Time { return fixedNow })}, opts...)...)

	handler := api.Handler()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testEnv{
		t:         t,
		srv:       srv,
		sessions:  sessions,
		dir:       dir,
		subs:      subs,
		ownership: ownership,
		deletes:   deletes,
		payments:  payments,
		handler:   handler,
	}
}

func (e *testEnv) token(userID string) string {
	e.t.Helper()
	tok, _, err := e.sessions.Issue(userID, userID+"@example.com")
	if err != nil {
		e.t.Fatalf("Issue: %v", err)
	}
	return tok
}

func (e *testEnv) do(method, path, token string, body any) *http.Response {
	e.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, bytes.NewReader(payload))
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		e.t.Fatalf("do request: %v", err)
	}
	return resp
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, r *http.Response, want int) {
	t.Helper()
	if r.StatusCode != want {
		var body bytes.Buffer
		_, _ = body.ReadFrom(r.Body)
		r.Body.Close()
		t.Fatalf("expected status %d, got %d: %s", want, r.StatusCode, body.String())
	}
}
