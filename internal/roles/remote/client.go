// Package remote talks to a role authority over gRPC.
package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"tallyboard.io/internal/roles"
)

// Client wraps a connection to the RoleService.
type Client struct {
	conn   *grpc.ClientConn
	owned  bool
	tokens roles.TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithTokenSource overrides where the session token comes from.
func WithTokenSource(ts roles.TokenSource) Option {
	return func(c *Client) {
		if ts != nil {
			c.tokens = ts
		}
	}
}

// Dial creates a new client with sensible defaults (insecure transport).
func Dial(ctx context.Context, target string, opts []grpc.DialOption, clientOpts ...Option) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return nil, fmt.Errorf("remote: dial %s: %w", target, err)
	}
	c := New(conn, clientOpts...)
	c.owned = true
	return c, nil
}

// New wraps an existing connection. Close leaves conn open.
func New(conn *grpc.ClientConn, opts ...Option) *Client {
	c := &Client{conn: conn, tokens: roles.ContextToken}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close closes the underlying connection if Dial opened it.
func (c *Client) Close() error {
	if c == nil || c.conn == nil || !c.owned {
		return nil
	}
	return c.conn.Close()
}

// ResolveRole performs one ResolveRole call. Without a session token it
// fails with roles.ErrUnauthenticated and makes no call.
func (c *Client) ResolveRole(ctx context.Context, req roles.Request) (roles.ResolvedRole, error) {
	token, ok := c.tokens.Token(ctx)
	if !ok || strings.TrimSpace(token) == "" {
		return roles.ResolvedRole{}, roles.ErrUnauthenticated
	}
	in, err := roles.EncodeStruct(req)
	if err != nil {
		return roles.ResolvedRole{}, err
	}

	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, roles.ResolveRoleMethod, in, out); err != nil {
		return roles.ResolvedRole{}, mapStatusError(err)
	}

	var resolved roles.ResolvedRole
	if err := roles.DecodeStruct(out, &resolved); err != nil {
		return roles.ResolvedRole{}, &roles.RemoteError{Status: http.StatusBadGateway, Message: "malformed response: " + err.Error()}
	}
	return resolved, nil
}

var codeStatus = map[codes.Code]int{
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.Unauthenticated:    http.StatusUnauthorized,
	codes.PermissionDenied:   http.StatusForbidden,
	codes.NotFound:           http.StatusNotFound,
	codes.FailedPrecondition: http.StatusConflict,
	codes.Unavailable:        http.StatusServiceUnavailable,
	codes.DeadlineExceeded:   http.StatusGatewayTimeout,
}

// mapStatusError turns a gRPC status into a RemoteError so callers can use
// errors.Is against the roles sentinels.
func mapStatusError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("remote: resolve: %w", err)
	}
	code, known := codeStatus[st.Code()]
	if !known {
		code = http.StatusBadGateway
	}
	return &roles.RemoteError{Status: code, Message: st.Message()}
}

// WithTimeout returns a context with default timeout useful for CLI tools.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}
