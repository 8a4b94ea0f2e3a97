// Package metrics exposes Prometheus collectors for the HTTP front-end, the
// dispatcher, the session registry, Pipedrive requests and the reference-data
// cache. Collectors live on a private registry served by Handler.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ggoodman/pipedrive-mcp-server-go/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pipedrive_mcp"

// Metrics owns the registry and every collector on it.
type Metrics struct {
	reg *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	dispatchWait       prometheus.Histogram
	downstreamRequests *prometheus.CounterVec
	downstreamDuration *prometheus.HistogramVec
	cacheLookups       *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, along with the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route and status.",
		}, []string{"route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration. Stream requests last as long as the session.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"route"}),
		dispatchWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "wait_seconds",
			Help:      "Time a call spent queued before admission.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		downstreamRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipedrive",
			Name:      "requests_total",
			Help:      "Pipedrive API requests, by operation and HTTP status (0 on transport failure).",
		}, []string{"op", "status"}),
		downstreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipedrive",
			Name:      "request_duration_seconds",
			Help:      "Pipedrive API request latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"op"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Reference data cache lookups, by operation and result.",
		}, []string{"op", "result"}),
	}
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, dur time.Duration) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
}

// ObserveDispatchWait records how long an admitted call was queued.
func (m *Metrics) ObserveDispatchWait(d time.Duration) {
	m.dispatchWait.Observe(d.Seconds())
}

// ObserveDownstream records one Pipedrive API request.
func (m *Metrics) ObserveDownstream(op string, status int, dur time.Duration) {
	m.downstreamRequests.WithLabelValues(op, strconv.Itoa(status)).Inc()
	m.downstreamDuration.WithLabelValues(op).Observe(dur.Seconds())
}

// ObserveCache records a cache lookup.
func (m *Metrics) ObserveCache(op string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(op, result).Inc()
}

// RegisterDispatcher exports the dispatcher's queue depth, in-flight count and
// admissions.
func (m *Metrics) RegisterDispatcher(d *ratelimit.Dispatcher) {
	f := promauto.With(m.reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dispatcher",
		Name:      "queued",
		Help:      "Calls waiting for admission.",
	}, func() float64 { return float64(d.Stats().Queued) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dispatcher",
		Name:      "in_flight",
		Help:      "Admitted calls still running.",
	}, func() float64 { return float64(d.Stats().InFlight) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatcher",
		Name:      "admitted_total",
		Help:      "Calls admitted since start.",
	}, func() float64 { return float64(d.Stats().Admitted) })
}

// RegisterSessions exports the number of open sessions reported by count.
func (m *Metrics) RegisterSessions(count func() int) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sessions",
		Name:      "open",
		Help:      "Sessions currently registered.",
	}, func() float64 { return float64(count()) })
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
