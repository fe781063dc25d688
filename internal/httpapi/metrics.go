package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	sendResultSuccess = "success"
	sendResultError   = "error"
)

// Metrics holds the Prometheus instruments for the bridge. Each instance owns
// its own registry so tests and multiple routers never collide.
type Metrics struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	sends        *prometheus.CounterVec
	sendDuration *prometheus.HistogramVec
}

// NewMetrics creates the instruments and registers them together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mail_bridge_http_requests_total",
			Help: "HTTP requests handled, by method, route pattern and status code.",
		}, []string{"method", "route", "code"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mail_bridge_send_total",
			Help: "Send attempts, by transport and result.",
		}, []string{"transport", "result"}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mail_bridge_send_duration_seconds",
			Help:    "Time spent in the transport per send.",
			Buckets: prometheus.DefBuckets,
		}, []string{"transport"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.sends,
		m.sendDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeRequest(method, route string, status int) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) observeSend(transport string, err error, elapsed time.Duration) {
	result := sendResultSuccess
	if err != nil {
		result = sendResultError
	}
	m.sends.WithLabelValues(transport, result).Inc()
	m.sendDuration.WithLabelValues(transport).Observe(elapsed.Seconds())
}
