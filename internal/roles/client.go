package roles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tallyboard.io/internal/auth"
)

// ResolvePath is the HTTP route of the role authority.
const ResolvePath = "/v1/roles/resolve"

// TokenSource supplies the caller's session token.
type TokenSource interface {
	Token(ctx context.Context) (string, bool)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, bool)

func (f TokenFunc) Token(ctx context.Context) (string, bool) { return f(ctx) }

// StaticToken always returns the same token. An empty token means no session.
func StaticToken(token string) TokenSource {
	token = strings.TrimSpace(token)
	return TokenFunc(func(context.Context) (string, bool) { return token, token != "" })
}

// ContextToken reads the bearer token attached to the request context.
var ContextToken TokenSource = TokenFunc(auth.TokenFromContext)

// Client calls a remote authority over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokenSource overrides where the session token comes from.
func WithTokenSource(ts TokenSource) ClientOption {
	return func(c *Client) {
		if ts != nil {
			c.tokens = ts
		}
	}
}

// NewClient builds a Client for the authority at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		tokens:  ContextToken,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveRole performs exactly one round trip. Without a session token it
// fails with ErrUnauthenticated and makes no request.
func (c *Client) ResolveRole(ctx context.Context, req Request) (ResolvedRole, error) {
	token, ok := c.tokens.Token(ctx)
	if !ok || strings.TrimSpace(token) == "" {
		return ResolvedRole{}, ErrUnauthenticated
	}

	body, err := json.Marshal(req)
	if err != nil {
		return ResolvedRole{}, fmt.Errorf("roles: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ResolvePath, bytes.NewReader(body))
	if err != nil {
		return ResolvedRole{}, fmt.Errorf("roles: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ResolvedRole{}, fmt.Errorf("roles: resolve: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ResolvedRole{}, fmt.Errorf("roles: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &payload)
		msg := strings.TrimSpace(payload.Error)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return ResolvedRole{}, &RemoteError{Status: resp.StatusCode, Message: msg}
	}

	var out ResolvedRole
	if err := json.Unmarshal(raw, &out); err != nil {
		return ResolvedRole{}, &RemoteError{Status: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}
	return out, nil
}
