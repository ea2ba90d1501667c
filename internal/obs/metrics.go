package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"assetdesk.org/internal/ids"
)

// HTTP metrics
var (
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
)

// Authorization and audit metrics
var (
	permissionResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_resolutions_total",
			Help: "Permission decisions by the step that produced them.",
		},
		[]string{"source"},
	)

	permissionLookupTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "permission_lookup_timeouts_total",
		Help: "Permission store lookups that exceeded their deadline.",
	})

	auditWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_writes_total",
			Help: "Audit log writes by outcome.",
		},
		[]string{"outcome"},
	)

	auditQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audit_queue_depth",
		Help: "Audit events waiting to be written.",
	})
)

var initOnce sync.Once

// Init registers all collectors with the default registry. Repeated calls are no-ops.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			permissionResolutions, permissionLookupTimeouts,
			auditWrites, auditQueueDepth,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func PermissionResolved(source string) { permissionResolutions.WithLabelValues(source).Inc() }
func PermissionLookupTimedOut()        { permissionLookupTimeouts.Inc() }
func AuditWritten(outcome string)      { auditWrites.WithLabelValues(outcome).Inc() }
func AuditQueueDepth(n int)            { auditQueueDepth.Set(float64(n)) }

// Instrument records in-flight, count and latency per route. The chi route
// pattern is used as the path label when available.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			path = rc.RoutePattern()
		}
		if path == "" {
			path = CanonicalPath(r.URL.Path)
		}
		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

// CanonicalPath drops the query and replaces identifier segments with :id
// so label cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" || p == "/" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, seg := range parts {
		if isIdentifier(seg) {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

func isIdentifier(seg string) bool {
	if ids.Valid(seg) {
		return true
	}
	if _, err := strconv.ParseUint(seg, 10, 64); err == nil {
		return true
	}
	return len(seg) == 36 && strings.Count(seg, "-") == 4
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
