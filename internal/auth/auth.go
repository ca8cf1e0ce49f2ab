package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer = "tallyboard"
	defaultTTL    = time.Hour
	clockSkew     = 5 * time.Second
)

// Claims are the session token claims. Roles are never carried in the token;
// they are resolved per request by the role authority.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies HS256 session tokens.
type Sessions struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// SessionOption configures Sessions.
type SessionOption func(*Sessions)

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) SessionOption {
	return func(s *Sessions) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithTTL sets the token lifetime.
func WithTTL(ttl time.Duration) SessionOption {
	return func(s *Sessions) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) SessionOption {
	return func(s *Sessions) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewSessions builds Sessions signing with secret.
func NewSessions(secret string, opts ...SessionOption) (*Sessions, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	s := &Sessions{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    defaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the configured token lifetime.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue signs a token for userID.
func (s *Sessions) Issue(userID, email string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	now := s.now().UTC()
	expires := now.Add(s.ttl)
	claims := Claims{
		Email: strings.TrimSpace(email),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies the signature and required claims of token.
func (s *Sessions) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithLeeway(clockSkew))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := s.validate(claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

func (s *Sessions) validate(claims *Claims) error {
	if claims.Issuer != s.issuer {
		return fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return fmt.Errorf("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return fmt.Errorf("timestamps missing")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return fmt.Errorf("expiry precedes issued-at")
	}
	if claims.IssuedAt.Time.After(s.now().Add(clockSkew)) {
		return fmt.Errorf("issued in the future")
	}
	return nil
}
