// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing
// for the board, the remote client and the HTTP server.
package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/controldesk/controldesk/internal/board"
	"github.com/controldesk/controldesk/internal/control"
	"github.com/controldesk/controldesk/internal/remote"
)

const namespace = "controldesk"

// Metrics holds the collectors of one process. Each instance owns its own
// registry, so tests can create as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	events         *prometheus.CounterVec
	remoteRequests *prometheus.CounterVec
	remoteLatency  *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
}

// NewMetrics registers the controldesk collectors plus the Go runtime and
// process collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "board",
			Name:      "events_total",
			Help:      "Board events by type and outcome.",
		}, []string{"type", "ok"}),
		remoteRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "requests_total",
			Help:      "Calls to the Remote Control Service by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		remoteLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "request_duration_seconds",
			Help:      "Latency of calls to the Remote Control Service.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Dashboard HTTP requests by method and status code.",
		}, []string{"method", "code"}),
	}
}

// OnEvent counts a board event. It implements board.Observer.
func (m *Metrics) OnEvent(e board.Event) {
	m.events.WithLabelValues(string(e.Type), strconv.FormatBool(e.OK)).Inc()
}

// ObserveRemote records one remote call. Its signature matches
// remote.CallObserver.
func (m *Metrics) ObserveRemote(endpoint string, elapsed time.Duration, err error) {
	m.remoteRequests.WithLabelValues(endpoint, outcome(err)).Inc()
	m.remoteLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveHTTP counts one served request.
func (m *Metrics) ObserveHTTP(method string, code int) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// TrackSummary exposes the board counters as gauges read at scrape time.
func (m *Metrics) TrackSummary(summary func() control.Summary) {
	gauge := func(name, help string, pick func(control.Summary) int) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controls",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(pick(summary())) })
	}
	m.Registry.MustRegister(
		gauge("total", "Controls in the collection.", func(s control.Summary) int { return s.Total }),
		gauge("high_risk", "Controls rated High.", func(s control.Summary) int { return s.HighRisk }),
		gauge("completed", "Approved controls.", func(s control.Summary) int { return s.Completed }),
		gauge("in_progress", "Controls In Progress or Pending Review.", func(s control.Summary) int { return s.InProgress }),
		gauge("not_started", "Controls not started.", func(s control.Summary) int { return s.NotStarted }),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func outcome(err error) string {
	var apiErr *remote.APIError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, remote.ErrUnavailable):
		return "unavailable"
	case errors.As(err, &apiErr):
		return "api_error"
	}
	return "error"
}
