package roles

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallyboard.io/internal/auth"
	"tallyboard.io/internal/rbac"
)

func authorityServer(t *testing.T, calls *int32, handle func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		handle(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientWithoutSessionMakesNoCall(t *testing.T) {
	var calls int32
	srv := authorityServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	c := NewClient(srv.URL)
	resolved, err := c.ResolveRole(context.Background(), Request{OrganizationID: "org-1"})
	require.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, ResolvedRole{}, resolved)
	assert.Zero(t, atomic.LoadInt32(&calls))

	assert.False(t, VerifyOwnerRole(context.Background(), c, "org-1"))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestClientResolvesRole(t *testing.T) {
	var calls int32
	srv := authorityServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ResolvePath, r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		var req Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "org-9", req.OrganizationID)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"systemRole":"user","isSuperAdmin":false,"orgRole":"manager",
			"organizationId":"org-9","isImpersonating":false,"effectiveRole":"owner",
			"membership":{"organizationId":"org-9","userId":"u-1","role":"manager","status":"active"}}`))
	})

	ctx := auth.ContextWithToken(context.Background(), "tok-1")
	c := NewClient(srv.URL + "/")
	resolved, err := c.ResolveRole(ctx, Request{OrganizationID: "org-9"})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleOwner, resolved.EffectiveRole)
	assert.Equal(t, rbac.RoleManager, resolved.OrgRole)
	require.NotNil(t, resolved.Membership)
	assert.Equal(t, "u-1", resolved.Membership.UserID)

	assert.True(t, VerifyOwnerRole(ctx, c, "org-9"))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestClientRemoteErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		message  string
	}{
		{name: "expired session", status: http.StatusUnauthorized, body: `{"error":"session expired"}`, sentinel: ErrUnauthenticated, message: "session expired"},
		{name: "forbidden", status: http.StatusForbidden, body: `{"error":"impersonation requires super admin"}`, sentinel: ErrForbidden, message: "impersonation requires super admin"},
		{name: "server failure", status: http.StatusInternalServerError, body: `{"error":"database unavailable"}`, message: "database unavailable"},
		{name: "no payload", status: http.StatusBadGateway, body: ``, message: "Bad Gateway"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls int32
			srv := authorityServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			c := NewClient(srv.URL, WithTokenSource(StaticToken("tok")))
			_, err := c.ResolveRole(context.Background(), Request{})
			require.Error(t, err)

			var remote *RemoteError
			require.ErrorAs(t, err, &remote)
			assert.Equal(t, tt.status, remote.Status)
			assert.Equal(t, tt.message, remote.Message)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
			assert.False(t, VerifyOwnerRole(context.Background(), c, "org-1"))
		})
	}
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, WithTokenSource(StaticToken("tok")))
	_, err := c.ResolveRole(context.Background(), Request{OrganizationID: "org-1"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnauthenticated))
	assert.False(t, VerifyOwnerRole(context.Background(), c, "org-1"))
}

func TestVerifyOwnerRole(t *testing.T) {
	fixed := func(r ResolvedRole, err error) Resolver {
		return ResolverFunc(func(context.Context, Request) (ResolvedRole, error) { return r, err })
	}
	ctx := context.Background()

	assert.True(t, VerifyOwnerRole(ctx, fixed(ResolvedRole{OrganizationID: "org-1", EffectiveRole: rbac.RoleOwner}, nil), "org-1"))
	assert.False(t, VerifyOwnerRole(ctx, fixed(ResolvedRole{OrganizationID: "org-1", EffectiveRole: rbac.RoleManager}, nil), "org-1"))
	assert.False(t, VerifyOwnerRole(ctx, fixed(ResolvedRole{OrganizationID: "org-2", EffectiveRole: rbac.RoleOwner}, nil), "org-1"))
	assert.False(t, VerifyOwnerRole(ctx, fixed(ResolvedRole{EffectiveRole: rbac.RoleOwner}, errors.New("boom")), "org-1"))
	assert.False(t, VerifyOwnerRole(ctx, fixed(ResolvedRole{EffectiveRole: rbac.RoleOwner}, nil), " "))
	assert.False(t, VerifyOwnerRole(ctx, nil, "org-1"))
}

func TestTrackerDiscardsStaleResponse(t *testing.T) {
	var tracker *Tracker
	inner := ResolverFunc(func(_ context.Context, req Request) (ResolvedRole, error) {
		if req.OrganizationID == "org-a" {
			// The user switches organization while this call is in flight.
			tracker.Switch("org-b")
		}
		return ResolvedRole{OrganizationID: req.OrganizationID, EffectiveRole: rbac.RoleOwner}, nil
	})
	tracker = NewTracker(inner)

	tracker.Switch("org-a")
	_, err := tracker.ResolveRole(context.Background(), Request{})
	require.ErrorIs(t, err, ErrStale)
	assert.Equal(t, "org-b", tracker.Active())

	resolved, err := tracker.ResolveRole(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "org-b", resolved.OrganizationID)
}

func TestRemoteErrorStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(&RemoteError{Status: http.StatusUnauthorized}))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(&RemoteError{Status: http.StatusInternalServerError}))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(ErrNotMember))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrStale))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("x")))
	assert.Contains(t, (&RemoteError{Status: 500, Message: "db"}).Error(), "db")
}

func TestStructCodec(t *testing.T) {
	in := ResolvedRole{
		SystemRole:     SystemRoleSuperAdmin,
		IsSuperAdmin:   true,
		OrganizationID: "org-1",
		EffectiveRole:  rbac.RoleOwner,
		Membership:     &Membership{OrganizationID: "org-1", UserID: "u-1", Role: rbac.RoleAccounts, Status: MembershipActive},
	}
	s, err := EncodeStruct(in)
	require.NoError(t, err)
	assert.Equal(t, "owner", s.GetFields()["effectiveRole"].GetStringValue())

	var out ResolvedRole
	require.NoError(t, DecodeStruct(s, &out))
	assert.Equal(t, in, out)

	require.ErrorIs(t, DecodeStruct(nil, &out), ErrInvalidInput)
}
