// Package metrics exposes Prometheus collectors for a single service.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkrupp/joynest/internal/domain"
)

const namespace = "joynest"

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `env:"ENABLED" default:"true"`
	Path    string `env:"PATH" default:"/metrics"`
}

// Registry is a service scoped Prometheus registry carrying the HTTP collectors.
// Services register their own collectors on it.
type Registry struct {
	*prometheus.Registry

	subsystem    string
	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry for the named service, with process and Go
// runtime collectors already registered.
func NewRegistry(subsystem string) *Registry {
	reg := &Registry{
		Registry:  prometheus.NewRegistry(),
		subsystem: subsystem,
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		reg.httpInFlight,
		reg.httpRequests,
		reg.httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	return reg
}

// NewCounterVec creates and registers a counter in the registry's namespace.
func (reg *Registry) NewCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: reg.subsystem,
		Name:      name,
		Help:      help,
	}, labels)

	reg.MustRegister(counter)

	return counter
}

// Outcome labels the result of an operation for counters: "ok" or the kind
// of err.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}

	return domain.KindOf(err).String()
}

// Handler returns an HTTP handler exposing the registered metrics.
func (reg *Registry) Handler() http.Handler {
	//nolint:exhaustruct
	return promhttp.HandlerFor(reg.Registry, promhttp.HandlerOpts{Registry: reg.Registry})
}

// InstrumentingMiddleware records request counts and durations. Paths are
// reduced to route shapes so IDs do not explode label cardinality.
func (reg *Registry) InstrumentingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		reg.httpInFlight.Inc()
		defer reg.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := CanonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		reg.httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		reg.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets websocket upgrades through the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijack: %w", http.ErrNotSupported)
	}

	r.status = http.StatusSwitchingProtocols

	return hj.Hijack() //nolint:wrapcheck
}

// CanonicalPath replaces UUIDs and media IDs in a URL path with ":id".
func CanonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}

	parts := strings.Split(trimmed, "/")

	for i, part := range parts {
		if isIdentifier(part) {
			parts[i] = ":id"
		}
	}

	return "/" + strings.Join(parts, "/")
}

func isIdentifier(segment string) bool {
	if _, err := uuid.Parse(segment); err == nil {
		return true
	}

	base, _, _ := strings.Cut(segment, ".")

	// content hashes are 52 characters of crockford base32
	return len(base) >= 26
}
