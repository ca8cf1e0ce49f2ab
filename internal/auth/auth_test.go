package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newSessions(t *testing.T, opts ...SessionOption) *Sessions {
	t.Helper()
	s, err := NewSessions("test-secret", opts...)
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}
	return s
}

func TestSessionsIssueAndParse(t *testing.T) {
	s := newSessions(t, WithTTL(30*time.Minute))

	token, expires, err := s.Issue(" user-42 ", "ana@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expected future expiry, got %v", expires)
	}

	claims, err := s.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Issuer != "tallyboard" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("expected token id")
	}
	if claims.Email != "ana@example.com" {
		t.Fatalf("unexpected email: %s", claims.Email)
	}
}

func TestNewSessionsRequiresSecret(t *testing.T) {
	if _, err := NewSessions("  "); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestParseRejects(t *testing.T) {
	s := newSessions(t)
	forger, err := NewSessions("another-secret")
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}
	forged, _, err := forger.Issue("user-1", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other := newSessions(t, WithIssuer("someone-else"))
	foreignIssuer, _, err := other.Issue("user-1", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	past := time.Now().Add(-3 * time.Hour)
	stale := newSessions(t, WithClock(func() time.Time { return past }))
	expired, _, err := stale.Issue("user-1", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1", Issuer: "tallyboard"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	cases := map[string]string{
		"empty":          "",
		"garbage":        "not-a-token",
		"wrong secret":   forged,
		"foreign issuer": foreignIssuer,
		"expired":        expired,
		"alg none":       none,
	}
	for name, token := range cases {
		name, token := name, token
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := s.Parse(token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestIssueRequiresUser(t *testing.T) {
	s := newSessions(t)
	if _, _, err := s.Issue(" ", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := UserIDFromContext(ctx); ok {
		t.Fatal("expected no user on empty context")
	}
	if _, ok := TokenFromContext(ctx); ok {
		t.Fatal("expected no token on empty context")
	}

	ctx = ContextWithUser(ctx, " user-7 ")
	ctx = ContextWithToken(ctx, "tok")
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "user-7" {
		t.Fatalf("unexpected user id: %s, ok=%v", id, ok)
	}
	tok, ok := TokenFromContext(ctx)
	if !ok || tok != "tok" {
		t.Fatalf("unexpected token: %s, ok=%v", tok, ok)
	}
}

type credStore struct {
	creds map[string]Credentials
	err   error
}

func (s credStore) FindCredentials(_ context.Context, email string) (Credentials, error) {
	if s.err != nil {
		return Credentials{}, s.err
	}
	c, ok := s.creds[email]
	if !ok {
		return Credentials{}, ErrNotFound
	}
	return c, nil
}

func TestLogin(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	store := credStore{creds: map[string]Credentials{
		"ana@example.com":  {UserID: "u-ana", Email: "ana@example.com", PasswordHash: hash},
		"gone@example.com": {UserID: "u-gone", Email: "gone@example.com", PasswordHash: hash, Disabled: true},
	}}
	s := newSessions(t)

	tok, err := Login(context.Background(), store, s, "  ANA@example.com ", "s3cret!")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok.UserID != "u-ana" || tok.Token == "" {
		t.Fatalf("unexpected token: %+v", tok)
	}
	claims, err := s.Parse(tok.Token)
	if err != nil || claims.Subject != "u-ana" {
		t.Fatalf("issued token does not parse: %v", err)
	}

	for _, tc := range []struct{ email, password string }{
		{"ana@example.com", "wrong"},
		{"nobody@example.com", "s3cret!"},
		{"gone@example.com", "s3cret!"},
	} {
		if _, err := Login(context.Background(), store, s, tc.email, tc.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", tc.email, err)
		}
	}

	if _, err := Login(context.Background(), store, s, "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	broken := credStore{err: errors.New("db down")}
	_, err = Login(context.Background(), broken, s, "ana@example.com", "s3cret!")
	if err == nil || errors.Is(err, ErrInvalidCredentials) || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("expected store failure to surface, got %v", err)
	}
}
