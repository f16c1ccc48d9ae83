package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveSessions is the current number of leases held in the store,
	// sampled periodically by Collector.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coupe_active_sessions",
			Help: "Current number of function sessions held in the store",
		},
	)

	ColdStartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupe_cold_starts_total",
			Help: "Total number of cold starts by function",
		},
		[]string{"function_name"},
	)

	ColdStartDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coupe_cold_start_duration_seconds",
			Help:    "Time from EnsureRunning call to healthy, by function",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"function_name"},
	)

	ProxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupe_proxy_requests_total",
			Help: "Total number of proxied requests by function and status",
		},
		[]string{"function_name", "status"},
	)

	ProxyRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coupe_proxy_request_duration_seconds",
			Help:    "End-to-end request duration (including any cold start) by function",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"function_name"},
	)

	ReaperCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coupe_reaper_cycles_total",
			Help: "Total number of reaper sweep cycles completed",
		},
	)

	ReaperSessionsEndedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupe_reaper_sessions_ended_total",
			Help: "Total number of sessions ended by the reaper, by function and outcome",
		},
		[]string{"function_name", "outcome"},
	)

	ControlAPIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupe_control_api_requests_total",
			Help: "Total number of Control API requests by path and status",
		},
		[]string{"path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		ActiveSessions,
		ColdStartsTotal,
		ColdStartDuration,
		ProxyRequestsTotal,
		ProxyRequestDuration,
		ReaperCyclesTotal,
		ReaperSessionsEndedTotal,
		ControlAPIRequestsTotal,
	)
}

// Handler returns the Prometheus scrape handler, mounted at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed time for ObserveDuration/ObserveDurationVec calls.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records elapsed time to a labeled histogram vec.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
