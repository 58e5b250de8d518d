package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"uav-deconflict/internal/deconflict"
)

// Metrics holds the collectors for one registry. Use New per process (or
// per test) rather than sharing global collectors.
type Metrics struct {
	reg *prometheus.Registry

	checksTotal         *prometheus.CounterVec
	checkErrorsTotal    prometheus.Counter
	conflictsTotal      *prometheus.CounterVec
	checkDurationSecs   prometheus.Histogram
	trafficPerCheck     prometheus.Histogram
	httpRequestsTotal   *prometheus.CounterVec
	httpDurationSeconds *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deconflict_checks_total",
				Help: "Completed deconfliction checks by result status.",
			},
			[]string{"status"},
		),
		checkErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deconflict_check_errors_total",
			Help: "Deconfliction checks rejected for invalid input or config.",
		}),
		conflictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deconflict_conflicts_total",
				Help: "Conflict records emitted, by scenario.",
			},
			[]string{"scenario"},
		),
		checkDurationSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deconflict_check_duration_seconds",
			Help:    "Wall time of a single check.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		trafficPerCheck: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deconflict_traffic_trajectories",
			Help:    "Traffic trajectories evaluated per check.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deconflict_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"path", "method", "code"},
		),
		httpDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deconflict_http_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
	}
	m.reg.MustRegister(
		m.checksTotal,
		m.checkErrorsTotal,
		m.conflictsTotal,
		m.checkDurationSecs,
		m.trafficPerCheck,
		m.httpRequestsTotal,
		m.httpDurationSeconds,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveCheck records one completed check.
func (m *Metrics) ObserveCheck(scenario string, traffic int, res deconflict.CheckResult, took time.Duration) {
	if m == nil {
		return
	}
	m.checksTotal.WithLabelValues(res.Status).Inc()
	m.conflictsTotal.WithLabelValues(scenario).Add(float64(len(res.Conflicts)))
	m.checkDurationSecs.Observe(took.Seconds())
	m.trafficPerCheck.Observe(float64(traffic))
}

func (m *Metrics) ObserveCheckError() {
	if m == nil {
		return
	}
	m.checkErrorsTotal.Inc()
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		m.httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		m.httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

var knownRoutes = map[string]bool{
	"/":           true,
	"/metrics":    true,
	"/api/check":  true,
	"/api/runs":   true,
	"/api/status": true,
	"/api/logs":   true,
	"/api/about":  true,
}

// normalizeRoute keeps the path label bounded: run ids collapse into one
// label and unknown paths into "other".
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/runs/"); ok && rest != "" {
		if strings.HasSuffix(rest, "/chart") {
			return "/api/runs/{id}/chart"
		}
		if !strings.Contains(rest, "/") {
			return "/api/runs/{id}"
		}
	}
	return "other"
}
