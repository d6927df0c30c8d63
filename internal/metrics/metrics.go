// Package metrics holds the Prometheus collectors for the tool server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	Requests       *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
	ToolErrors     *prometheus.CounterVec

	// Swap flow
	FlowFailures *prometheus.CounterVec
	OrdersPosted *prometheus.CounterVec
	Approvals    *prometheus.CounterVec

	// Upstream
	ABICacheHits   prometheus.Counter
	ABICacheMisses prometheus.Counter
}

// New registers every collector on a fresh registry, plus the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evmagent_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "status"}),

		RequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evmagent_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route"}),

		ToolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evmagent_tool_errors_total",
			Help: "Tool failures by route and error class",
		}, []string{"route", "class"}),

		FlowFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evmagent_swap_flow_failures_total",
			Help: "Swap flow aborts by the step that failed",
		}, []string{"step"}),

		OrdersPosted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evmagent_orders_posted_total",
			Help: "Orders accepted by the order book",
		}, []string{"chain_id"}),

		Approvals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "evmagent_approvals_required_total",
			Help: "Swaps that needed an approval transaction prepended",
		}, []string{"chain_id"}),

		ABICacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "evmagent_abi_cache_hits_total",
			Help: "Contract ABI lookups served from cache",
		}),

		ABICacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "evmagent_abi_cache_misses_total",
			Help: "Contract ABI lookups sent to the explorer",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordToolError(route, class string) {
	if m == nil {
		return
	}
	m.ToolErrors.WithLabelValues(route, class).Inc()
}

func (m *Metrics) RecordFlowFailure(step string) {
	if m == nil {
		return
	}
	m.FlowFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) RecordOrderPosted(chainID int64) {
	if m == nil {
		return
	}
	m.OrdersPosted.WithLabelValues(strconv.FormatInt(chainID, 10)).Inc()
}

func (m *Metrics) RecordApproval(chainID int64) {
	if m == nil {
		return
	}
	m.Approvals.WithLabelValues(strconv.FormatInt(chainID, 10)).Inc()
}

func (m *Metrics) RecordABILookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.ABICacheHits.Inc()
	} else {
		m.ABICacheMisses.Inc()
	}
}
