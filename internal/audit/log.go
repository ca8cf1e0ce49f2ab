package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"tallyboard.io/internal/auth"
	"tallyboard.io/internal/obs"
)

// Event names emitted by the service.
const (
	EventTokenIssued           = "auth.token_issued"
	EventImpersonation         = "roles.impersonation"
	EventOwnershipTransfer     = "organization.ownership_transferred"
	EventBulkDelete            = "records.bulk_deleted"
	EventPermanentDeleteDenied = "records.permanent_delete_denied"
	EventPaymentActivated      = "billing.subscription_activated"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Logger writes audit entries to a zerolog logger.
type Logger struct {
	log zerolog.Logger
}

// New returns an audit logger writing through base.
func New(base zerolog.Logger) *Logger {
	return &Logger{log: base.With().Str("type", "audit").Logger()}
}

// Default writes through the shared service logger.
func Default() *Logger { return New(*obs.Logger()) }

// LogEvent writes an audit log entry enriched with request and user context.
func (l *Logger) LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("audit: event name is required")
	}
	ev := l.log.WithLevel(zerolog.NoLevel).Str("event", event)
	if rid := RequestIDFromContext(ctx); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		ev = ev.Str("user_id", userID)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	ev.Interface("fields", fields).Send()
	return nil
}

// LogEvent writes through Default.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	return Default().LogEvent(ctx, event, fields)
}
