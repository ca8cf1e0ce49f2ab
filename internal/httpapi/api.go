// Package httpapi serves the access, role resolution, organization and
// billing endpoints over HTTP and the role service over gRPC.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tallyboard.io/internal/access"
	"tallyboard.io/internal/audit"
	"tallyboard.io/internal/auth"
	"tallyboard.io/internal/jobs"
	"tallyboard.io/internal/obs"
	"tallyboard.io/internal/roles"
	"tallyboard.io/internal/subscription"
)

const serviceName = "tallyboard-api"

// ReadinessChecker reports whether dependencies are reachable.
type ReadinessChecker interface {
	Ping(ctx context.Context) error
}

// SubscriptionSource reads an organization's subscription snapshot.
type SubscriptionSource interface {
	Subscription(ctx context.Context, orgID string) (subscription.Subscription, error)
}

// OwnershipStore moves organization ownership.
type OwnershipStore interface {
	TransferOwnership(ctx context.Context, orgID, newOwnerID string) (roles.Organization, error)
}

// Deps are the collaborators the API needs. Roles must resolve for the
// user authenticated on the request context.
type Deps struct {
	Sessions      *auth.Sessions
	Credentials   auth.CredentialStore
	Roles         roles.Resolver
	Subscriptions SubscriptionSource
	Ownership     OwnershipStore
	Deleter       *jobs.BulkDeleter
	Payments      *jobs.PaymentVerifier
	Access        *access.Resolver
	Ready         ReadinessChecker
	Audit         *audit.Logger
	Logger        zerolog.Logger
	Version       string
}

// API is the HTTP layer.
type API struct {
	mux       *http.ServeMux
	deps      Deps
	access    *access.Resolver
	audit     *audit.Logger
	log       zerolog.Logger
	now       func() time.Time
	origins   []string
	rateRPS   float64
	rateBurst int
}

// Option configures the API.
type Option func(*API)

// WithCORSOrigins sets the allowed browser origins.
func WithCORSOrigins(origins []string) Option {
	return func(a *API) { a.origins = origins }
}

// WithRateLimit sets the per-client token bucket. A non-positive rate
// disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		a.rateRPS = perSecond
		a.rateBurst = burst
	}
}

// WithClock overrides the clock used for subscription evaluation.
func WithClock(now func() time.Time) Option {
	return func(a *API) {
		if now != nil {
			a.now = now
		}
	}
}

func New(deps Deps, opts ...Option) *API {
	a := &API{
		mux:       http.NewServeMux(),
		deps:      deps,
		access:    deps.Access,
		audit:     deps.Audit,
		log:       deps.Logger,
		now:       time.Now,
		rateRPS:   20,
		rateBurst: 40,
	}
	if a.access == nil {
		a.access = access.New()
	}
	if a.audit == nil {
		a.audit = audit.New(deps.Logger)
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/v1/roles/resolve", a.handleResolveRole)
	a.mux.HandleFunc("/v1/access/check", a.handleAccessCheck)
	a.mux.HandleFunc("/v1/access/capabilities", a.handleCapabilities)
	a.mux.HandleFunc("/v1/organizations/", a.handleOrganizationScoped)
	a.mux.HandleFunc("/v1/billing/verify-payment", a.handleVerifyPayment)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	return a
}

// Handler returns the fully wrapped handler.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	if a.rateRPS > 0 {
		h = NewRateLimiter(a.rateRPS, a.rateBurst).Middleware(h)
	}
	h = CORS(a.origins)(h)
	h = SecurityHeaders(h)
	h = Logging(a.log)(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.deps.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.deps.Ready != nil {
		if err := a.deps.Ready.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.deps.Version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
