package observability

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fluxbase-eu/tabulate/internal/query"
)

// Outcome labels
const (
	OutcomeSuccess     = "success"
	OutcomeClientError = "client_error"
	OutcomeError       = "error"
)

// Metrics holds the Prometheus collectors of a tabulate server. It satisfies
// tabulate.Recorder so pipelines can report per-stage timings.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Pipeline metrics
	stageDuration   *prometheus.HistogramVec
	stagesTotal     *prometheus.CounterVec
	conditionsCount *prometheus.HistogramVec
	pageSize        prometheus.Histogram
	resultRows      prometheus.Histogram

	// Database metrics
	dbQueriesTotal  *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec
	dbConnections   *prometheus.GaugeVec

	// System metrics
	systemUptime prometheus.Gauge
}

// NewMetrics creates the collectors on a fresh registry, so several servers
// (or tests) can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabulate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabulate_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tabulate_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabulate_stage_duration_seconds",
				Help:    "Pipeline stage latency in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"stage"},
		),
		stagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabulate_stages_total",
				Help: "Total number of pipeline stages run, by outcome",
			},
			[]string{"stage", "outcome"},
		),
		conditionsCount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabulate_conditions",
				Help:    "Number of resolved conditions per request",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
			},
			[]string{"type"},
		),
		pageSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tabulate_page_size",
				Help:    "Effective per_page of paginated requests",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		resultRows: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tabulate_result_total_count",
				Help:    "Total matching rows reported by paginated requests",
				Buckets: prometheus.ExponentialBuckets(1, 10, 8),
			},
		),

		dbQueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabulate_db_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "table", "outcome"},
		),
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabulate_db_query_duration_seconds",
				Help:    "Database query latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation", "table"},
		),
		dbConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tabulate_db_connections",
				Help: "Database pool connections by state",
			},
			[]string{"state"},
		),

		systemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tabulate_uptime_seconds",
				Help: "Time since the server started in seconds",
			},
		),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		method := c.Method()
		err := c.Next()

		// The route pattern keeps resource names out of the label set.
		path := normalizePath(c.Route().Path)
		status := statusClass(c.Response().StatusCode())

		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())

		return err
	}
}

// RecordStage records one pipeline stage.
func (m *Metrics) RecordStage(stage string, duration time.Duration, err error) {
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	m.stagesTotal.WithLabelValues(stage, outcome(err)).Inc()
}

// RecordConditions records how many filters and sorts a request resolved.
func (m *Metrics) RecordConditions(filters, sorts int) {
	m.conditionsCount.WithLabelValues("filter").Observe(float64(filters))
	m.conditionsCount.WithLabelValues("sort").Observe(float64(sorts))
}

// RecordPage records the page size and total count of a paginated request.
func (m *Metrics) RecordPage(perPage, totalCount int) {
	m.pageSize.Observe(float64(perPage))
	m.resultRows.Observe(float64(totalCount))
}

// RecordDBQuery records database query metrics
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration, err error) {
	m.dbQueriesTotal.WithLabelValues(operation, table, outcome(err)).Inc()
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// UpdateDBStats updates database connection pool stats
func (m *Metrics) UpdateDBStats(open, inUse, idle int) {
	m.dbConnections.WithLabelValues("open").Set(float64(open))
	m.dbConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.dbConnections.WithLabelValues("idle").Set(float64(idle))
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes the registry
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	var ce query.ClientError
	if errors.As(err, &ce) {
		return OutcomeClientError
	}
	return OutcomeError
}

// normalizePath bounds label cardinality for unmatched or overly long paths
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	if len(path) > 50 {
		return "long_path"
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
