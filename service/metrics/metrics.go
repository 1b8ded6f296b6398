package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Query API Metrics
	queryCallsTotal   *prometheus.CounterVec
	queryCallDuration *prometheus.HistogramVec
	queryCacheTotal   *prometheus.CounterVec

	// Network Resolution Metrics
	probesTotal       *prometheus.CounterVec
	resolutionsTotal  *prometheus.CounterVec
	resolveDuration   prometheus.Histogram
	resolutionsShared prometheus.Counter

	// Browsing Metrics
	tableRefreshesTotal *prometheus.CounterVec
	staleResponsesTotal *prometheus.CounterVec
	activeSessions      prometheus.Gauge

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Query API Metrics
		queryCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "query_api_calls_total",
				Help: "Total number of query API calls by operation, network and status",
			},
			[]string{"operation", "network", "status"},
		),
		queryCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "query_api_call_duration_seconds",
				Help:    "Duration of query API calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"operation"},
		),
		queryCacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "query_cache_lookups_total",
				Help: "Query response cache lookups by operation and result (hit, miss)",
			},
			[]string{"operation", "result"},
		),

		// Network Resolution Metrics
		probesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "network_probes_total",
				Help: "Total number of per-network probes by outcome (found, absent, error)",
			},
			[]string{"network", "outcome"},
		),
		resolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "network_resolutions_total",
				Help: "Total number of completed network resolutions by terminal state",
			},
			[]string{"state"},
		),
		resolveDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "network_resolution_duration_seconds",
				Help:    "Duration of a full network resolution (join of all probes)",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		resolutionsShared: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "network_resolutions_shared_total",
				Help: "Resolve calls served by an in-flight or memoized resolution",
			},
		),

		// Browsing Metrics
		tableRefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "table_refreshes_total",
				Help: "Total number of table refreshes by resource kind and status",
			},
			[]string{"kind", "status"},
		),
		staleResponsesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stale_responses_discarded_total",
				Help: "Responses discarded because a newer request generation superseded them",
			},
			[]string{"kind"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "browsing_sessions_active",
				Help: "Number of live browsing sessions",
			},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Query API metric helpers

// RecordQueryCall records a query API call with duration.
func (m *Metrics) RecordQueryCall(operation, network, status string, duration float64) {
	m.queryCallsTotal.WithLabelValues(operation, network, status).Inc()
	m.queryCallDuration.WithLabelValues(operation).Observe(duration)
}

// RecordCacheLookup records a response cache hit or miss.
func (m *Metrics) RecordCacheLookup(operation string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.queryCacheTotal.WithLabelValues(operation, result).Inc()
}

// Resolution metric helpers

// RecordProbe records the outcome of a single network probe.
func (m *Metrics) RecordProbe(network, outcome string) {
	m.probesTotal.WithLabelValues(network, outcome).Inc()
}

// RecordResolution records a completed resolution and its duration.
func (m *Metrics) RecordResolution(state string, duration float64) {
	m.resolutionsTotal.WithLabelValues(state).Inc()
	m.resolveDuration.Observe(duration)
}

// RecordResolutionShared records a resolve call that did not start new probes.
func (m *Metrics) RecordResolutionShared() {
	m.resolutionsShared.Inc()
}

// Browsing metric helpers

// RecordTableRefresh records a table refresh outcome (success, error, stale).
func (m *Metrics) RecordTableRefresh(kind, status string) {
	m.tableRefreshesTotal.WithLabelValues(kind, status).Inc()
}

// RecordStaleResponse records a discarded response.
func (m *Metrics) RecordStaleResponse(kind string) {
	m.staleResponsesTotal.WithLabelValues(kind).Inc()
}

// RecordSessionChange records a change in live session count.
func (m *Metrics) RecordSessionChange(delta float64) {
	m.activeSessions.Add(delta)
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordHTTPStream counts a finished event-stream request without observing
// its duration.
func (m *Metrics) RecordHTTPStream(handler, method string, statusCode int) {
	m.httpRequestsTotal.WithLabelValues(handler, method, statusCodeToString(statusCode)).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	m.sseActiveConnections.Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
