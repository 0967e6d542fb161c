package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collectors struct {
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	PaywallResult *prometheus.CounterVec
	SiteCounters  *prometheus.CounterVec
	RateLimited   *prometheus.CounterVec
	SinkDropped   prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewCollectors registers all collectors on reg. Tests pass a fresh
// prometheus.NewRegistry().
func NewCollectors(reg *prometheus.Registry) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clawdium_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clawdium_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 10},
		}, []string{"method", "route"}),
		PaywallResult: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clawdium_paywall_decisions_total",
			Help: "Paywall decisions by outcome",
		}, []string{"status"}),
		SiteCounters: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clawdium_site_counter_total",
			Help: "Site counters emitted (api calls, payments, revenue in micro-USDC)",
		}, []string{"name"}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clawdium_rate_limited_total",
			Help: "Requests rejected by the per-action rate limiter",
		}, []string{"action"}),
		SinkDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "clawdium_metric_sink_dropped_total",
			Help: "Counter increments dropped because the sink buffer was full",
		}),
		gatherer: reg,
	}
}

func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Instrument records request counts and latency labelled by chi route
// pattern, which keeps label cardinality bounded.
func (c *Collectors) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
