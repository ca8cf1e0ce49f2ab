package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	accessDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Access verdicts by outcome (allowed, plan, role).",
		},
		[]string{"outcome"},
	)

	roleResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_resolutions_total",
			Help: "Authoritative role resolutions by result.",
		},
		[]string{"result"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_runs_total",
			Help: "Background job runs by job and result.",
		},
		[]string{"job", "result"},
	)

	jobAffected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_affected_rows_total",
			Help: "Rows changed by background jobs.",
		},
		[]string{"job"},
	)
)

// Init registers metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			accessDecisions, roleResolutions, jobRuns, jobAffected,
		)
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAccessDecision counts a verdict. outcome is "allowed", "plan" or "role".
func ObserveAccessDecision(outcome string) {
	accessDecisions.WithLabelValues(outcome).Inc()
}

// ObserveRoleResolution counts a role resolution attempt.
func ObserveRoleResolution(result string) {
	roleResolutions.WithLabelValues(result).Inc()
}

// ObserveJobRun counts a job execution and the rows it touched.
func ObserveJobRun(job string, affected int64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	jobRuns.WithLabelValues(job, result).Inc()
	if affected > 0 {
		jobAffected.WithLabelValues(job).Add(float64(affected))
	}
}

// Instrument measures request count, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses organization identifiers so label cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) == 4 && parts[0] == "v1" && parts[1] == "organizations" {
		switch parts[3] {
		case "transfer-ownership", "bulk-delete":
			return "/v1/organizations/:id/" + parts[3]
		}
	}
	return raw
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
