// Package metrics defines the Prometheus collectors clockd exposes through
// pkg/adminsrv. Grounded on the teacher's pkg/metrics/metrics.go: a package
// var block of collectors, an init() MustRegister block, a Handler(), and a
// Timer helper — same shape, metric set replaced with clockd's own concerns.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clockd_sessions_active",
			Help: "Number of sessions currently held in the session cache",
		},
	)

	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clockd_sessions_total",
			Help: "Total number of sessions by terminal outcome",
		},
		[]string{"outcome"},
	)

	ProtocolFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clockd_protocol_frames_total",
			Help: "Total number of protocol frames handled by event type and reply type",
		},
		[]string{"event", "reply"},
	)

	ProtocolViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clockd_protocol_violations_total",
			Help: "Total number of frames rejected as a protocol violation",
		},
	)

	PolicyCompileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clockd_policy_compile_duration_seconds",
			Help:    "Time taken to evaluate a manifest and assemble bytecode for one host",
			Buckets: prometheus.DefBuckets,
		},
	)

	PolicyCompileFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clockd_policy_compile_failures_total",
			Help: "Total number of POLICY requests that failed to evaluate or assemble",
		},
	)

	FileServeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clockd_file_serve_duration_seconds",
			Help:    "Time taken to open and digest a resource's content on a FILE request",
			Buckets: prometheus.DefBuckets,
		},
	)

	DataBlocksServedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clockd_data_blocks_served_total",
			Help: "Total number of DATA blocks served across all sessions",
		},
	)

	BytesServedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clockd_bytes_served_total",
			Help: "Total number of content bytes served across DATA replies",
		},
	)

	ManifestReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clockd_manifest_reloads_total",
			Help: "Total number of manifest reload attempts by outcome",
		},
		[]string{"outcome"},
	)

	ManifestReloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clockd_manifest_reload_duration_seconds",
			Help:    "Time taken to parse and swap in a reloaded manifest",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReportsReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clockd_reports_received_total",
			Help: "Total number of REPORT frames accepted",
		},
	)

	AuthFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clockd_auth_failures_total",
			Help: "Total number of connections rejected by trust database verification",
		},
	)
)

func init() {
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(SessionsTotal)
	prometheus.MustRegister(ProtocolFramesTotal)
	prometheus.MustRegister(ProtocolViolationsTotal)
	prometheus.MustRegister(PolicyCompileDuration)
	prometheus.MustRegister(PolicyCompileFailuresTotal)
	prometheus.MustRegister(FileServeDuration)
	prometheus.MustRegister(DataBlocksServedTotal)
	prometheus.MustRegister(BytesServedTotal)
	prometheus.MustRegister(ManifestReloadsTotal)
	prometheus.MustRegister(ManifestReloadDuration)
	prometheus.MustRegister(ReportsReceivedTotal)
	prometheus.MustRegister(AuthFailuresTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
