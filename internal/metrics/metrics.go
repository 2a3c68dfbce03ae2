package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Business metrics
	cyclesTotal      *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	signalsEvaluated *prometheus.CounterVec
	historyRecords   *prometheus.CounterVec
	historySize      prometheus.Gauge
	notifications    *prometheus.CounterVec
	liveClients      prometheus.Gauge
	refreshInterval  prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Business metrics
	r.cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scalper_cycles_total",
			Help: "Total number of refresh cycles by resulting feed status",
		},
		[]string{"status"},
	)
	r.cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scalper_cycle_duration_seconds",
			Help:    "Refresh cycle duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	r.signalsEvaluated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scalper_signals_evaluated_total",
			Help: "Total number of evaluated bars by pair and signal",
		},
		[]string{"pair", "signal"},
	)
	r.historyRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scalper_history_records_total",
			Help: "Actionable signals offered to the history log by outcome",
		},
		[]string{"outcome"},
	)
	r.historySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scalper_history_size",
			Help: "Number of records in the signal history",
		},
	)
	r.notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scalper_notifications_total",
			Help: "Total number of notifications sent",
		},
		[]string{"notifier", "status"},
	)
	r.liveClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scalper_live_clients",
			Help: "Number of connected live dashboard clients",
		},
	)
	r.refreshInterval = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scalper_refresh_interval_seconds",
			Help: "Configured refresh interval in seconds",
		},
	)

	reg.MustRegister(r.cyclesTotal)
	reg.MustRegister(r.cycleDuration)
	reg.MustRegister(r.signalsEvaluated)
	reg.MustRegister(r.historyRecords)
	reg.MustRegister(r.historySize)
	reg.MustRegister(r.notifications)
	reg.MustRegister(r.liveClients)
	reg.MustRegister(r.refreshInterval)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordCycle records a refresh cycle completion.
func (r *Registry) RecordCycle(status string, duration float64) {
	r.cyclesTotal.WithLabelValues(status).Inc()
	r.cycleDuration.Observe(duration)
}

// RecordEvaluation records the signal computed for a bar.
func (r *Registry) RecordEvaluation(pair, signal string) {
	r.signalsEvaluated.WithLabelValues(pair, signal).Inc()
}

// RecordHistory records whether an actionable signal was logged or suppressed.
func (r *Registry) RecordHistory(accepted bool, size int) {
	outcome := "suppressed"
	if accepted {
		outcome = "accepted"
	}
	r.historyRecords.WithLabelValues(outcome).Inc()
	r.historySize.Set(float64(size))
}

// SetHistorySize sets the history size gauge.
func (r *Registry) SetHistorySize(size int) {
	r.historySize.Set(float64(size))
}

// RecordNotification records a notifier delivery attempt.
func (r *Registry) RecordNotification(notifier, status string) {
	r.notifications.WithLabelValues(notifier, status).Inc()
}

// SetLiveClients sets the number of connected live clients.
func (r *Registry) SetLiveClients(n int) {
	r.liveClients.Set(float64(n))
}

// SetRefreshInterval sets the refresh interval gauge.
func (r *Registry) SetRefreshInterval(seconds float64) {
	r.refreshInterval.Set(seconds)
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
