package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application's collectors on a private registry. All
// recording methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	notifications   *prometheus.CounterVec
	turnAdvances    *prometheus.CounterVec
	functionCalls   *prometheus.CounterVec
	backups         *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cabinshare",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cabinshare",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cabinshare",
			Name:      "notifications_total",
			Help:      "Notifications by channel and result.",
		}, []string{"channel", "result"}),
		turnAdvances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cabinshare",
			Name:      "selection_turn_advances_total",
			Help:      "Selection turn advances by phase and reason.",
		}, []string{"phase", "reason"}),
		functionCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cabinshare",
			Name:      "function_invocations_total",
			Help:      "Function invocations by name and result.",
		}, []string{"name", "result"}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cabinshare",
			Name:      "backups_total",
			Help:      "Organization backups by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.notifications, m.turnAdvances, m.functionCalls, m.backups,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) Notification(channel string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, result(err)).Inc()
}

func (m *Metrics) TurnAdvanced(phase, reason string) {
	if m == nil {
		return
	}
	m.turnAdvances.WithLabelValues(phase, reason).Inc()
}

func (m *Metrics) FunctionCalled(name string, err error) {
	if m == nil {
		return
	}
	m.functionCalls.WithLabelValues(name, result(err)).Inc()
}

func (m *Metrics) Backup(err error) {
	if m == nil {
		return
	}
	m.backups.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	}
	return "2xx"
}
