package middleware

import (
	"strconv"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/switchyard/pkg/httperr"
	"github.com/vango-dev/switchyard/pkg/server"
)

// MetricsConfig configures the Prometheus metrics collector.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "switchyard").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request and handler duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics collector.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "switchyard",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors registered for one server.
type Metrics struct {
	clock clock.Clock

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	handlerDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	closedTotal     *prometheus.CounterVec
	inflight        prometheus.GaugeFunc
}

// Prometheus registers request metrics for srv and records them from its
// after event.
//
// Metrics collected:
//   - switchyard_requests_total: Counter of retired requests by route, method and status
//   - switchyard_request_duration_seconds: Histogram of request duration by route and method
//   - switchyard_handler_duration_seconds: Histogram of completed handler timers by handler
//   - switchyard_errors_total: Counter of requests that ended with an error, by route and kind
//   - switchyard_connections_closed_total: Counter of requests whose client went away, by reason
//   - switchyard_inflight_requests: Gauge reading the server's in-flight count
//
// Example:
//
//	srv := server.New(nil)
//	middleware.Prometheus(srv, middleware.WithNamespace("api"))
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.Handler())
func Prometheus(srv *server.Server, opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	m := &Metrics{
		clock: srv.Config().Clock,

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of retired requests",
			ConstLabels: config.ConstLabels,
		}, []string{"route", "method", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "Request duration in seconds, from arrival to retirement",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"route", "method"}),

		handlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handler_duration_seconds",
			Help:        "Duration of completed handlers in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"handler"}),

		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "errors_total",
			Help:        "Total number of requests that ended with an error",
			ConstLabels: config.ConstLabels,
		}, []string{"route", "kind"}),

		closedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_closed_total",
			Help:        "Total number of requests whose connection closed before completion",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),

		inflight: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "inflight_requests",
			Help:        "Number of admitted requests not yet retired",
			ConstLabels: config.ConstLabels,
		}, func() float64 {
			return float64(srv.Inflight())
		}),
	}

	srv.OnAfter(m.observe)
	return m
}

// observe records one retired request.
func (m *Metrics) observe(req *server.Request, res *server.Response, route *server.Route, err error) {
	name := routeLabel(route)
	method := req.Method()

	m.requestsTotal.WithLabelValues(name, method, strconv.Itoa(res.StatusCode())).Inc()
	m.requestDuration.WithLabelValues(name, method).Observe(m.clock.Since(req.Time()).Seconds())
	for _, t := range req.Timers() {
		m.handlerDuration.WithLabelValues(t.Name).Observe(t.Elapsed.Seconds())
	}

	if err == nil {
		return
	}
	switch {
	case httperr.IsRequestClose(err):
		m.closedTotal.WithLabelValues("close").Inc()
	case httperr.IsRequestTimeout(err):
		m.closedTotal.WithLabelValues("timeout").Inc()
	default:
		m.errorsTotal.WithLabelValues(name, httperr.KindOf(err)).Inc()
	}
}

// routeLabel keeps label cardinality bounded: unmatched requests share one
// label instead of carrying their path.
func routeLabel(route *server.Route) string {
	if route == nil {
		return "unmatched"
	}
	return route.Name
}
