package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallyboard.io/internal/rbac"
	"tallyboard.io/internal/roles"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

type checkOutput struct {
	Verdict struct {
		HasAccess     bool    `json:"hasAccess"`
		BlockedByPlan bool    `json:"blockedByPlan"`
		BlockedByRole bool    `json:"blockedByRole"`
		RequiredPlan  *string `json:"requiredPlan"`
	} `json:"verdict"`
	ReadOnly bool `json:"readOnly"`
}

func TestCheckCmd(t *testing.T) {
	t.Run("role denial", func(t *testing.T) {
		out, err := run(t, "check", "--role", "employee", "--plan", "pro", "--module", "reports", "--action", "view")
		require.NoError(t, err)
		var got checkOutput
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.False(t, got.Verdict.HasAccess)
		assert.True(t, got.Verdict.BlockedByRole)
		assert.False(t, got.ReadOnly)
	})

	t.Run("expired trial", func(t *testing.T) {
		out, err := run(t, "check", "--role", "owner", "--plan", "pro", "--status", "trial",
			"--trial-end", "2026-01-01T00:00:00Z", "--at", "2026-02-01T00:00:00Z", "--feature", "analytics")
		require.NoError(t, err)
		var got checkOutput
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.True(t, got.Verdict.BlockedByPlan)
		require.NotNil(t, got.Verdict.RequiredPlan)
		assert.Equal(t, "active subscription", *got.Verdict.RequiredPlan)
		assert.True(t, got.ReadOnly)
	})

	t.Run("plan denial", func(t *testing.T) {
		out, err := run(t, "check", "--role", "owner", "--plan", "basic", "--feature", "analytics")
		require.NoError(t, err)
		var got checkOutput
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		require.NotNil(t, got.Verdict.RequiredPlan)
		assert.Equal(t, "Pro", *got.Verdict.RequiredPlan)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := run(t, "check", "--role", "owner")
		assert.Error(t, err)
		_, err = run(t, "check", "--role", "janitor", "--feature", "reports")
		assert.ErrorContains(t, err, "unknown role")
	})
}

func TestMatrixCmd(t *testing.T) {
	out, err := run(t, "matrix", "--role", "employee")
	require.NoError(t, err)
	assert.Contains(t, out, "ROLE")
	assert.Contains(t, out, "tasks")
	assert.NotContains(t, out, "invoices")
	assert.NotContains(t, out, "owner")
}

func TestPlansCmd(t *testing.T) {
	out, err := run(t, "plans")
	require.NoError(t, err)
	assert.Contains(t, out, "Audit Logs")
	assert.Contains(t, out, "Enterprise")
	assert.Contains(t, out, "unlimited")
}

func TestResolveCmdOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != roles.ResolvePath || r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req roles.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(roles.ResolvedRole{
			SystemRole:     roles.SystemRoleUser,
			OrganizationID: req.OrganizationID,
			OrgRole:        rbac.RoleManager,
			EffectiveRole:  rbac.RoleManager,
		})
	}))
	defer srv.Close()

	out, err := run(t, "resolve", "--url", srv.URL, "--token", "tok", "--org", "org-7")
	require.NoError(t, err)
	var got roles.ResolvedRole
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "org-7", got.OrganizationID)
	assert.Equal(t, rbac.RoleManager, got.EffectiveRole)

	_, err = run(t, "resolve", "--url", srv.URL, "--token", "bad", "--org", "org-7")
	assert.ErrorIs(t, err, roles.ErrUnauthenticated)

	_, err = run(t, "resolve", "--org", "org-7")
	assert.ErrorContains(t, err, "--url or --grpc")
}
