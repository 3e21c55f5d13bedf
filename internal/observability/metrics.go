package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	appduMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "avproxy",
			Subsystem: "appdu",
			Name:      "messages_total",
			Help:      "APPDU messages processed, by role, direction, and type.",
		},
		[]string{"role", "direction", "type"},
	)
	appduParseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "avproxy",
			Subsystem: "appdu",
			Name:      "parse_errors_total",
			Help:      "Malformed APPDU headers discarded by the stream parser.",
		},
		[]string{"role"},
	)
	streamBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "avproxy",
			Subsystem: "appdu",
			Name:      "stream_bytes_total",
			Help:      "Raw transport octets, by role and direction.",
		},
		[]string{"role", "direction"},
	)
	activeSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "avproxy",
			Subsystem: "proxy",
			Name:      "active_sessions",
			Help:      "Currently connected proxy sessions.",
		},
		[]string{"role"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "avproxy",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "avproxy",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			appduMessages,
			appduParseErrors,
			streamBytes,
			activeSessions,
			httpRequests,
			httpDuration,
		)
	})
}

// RecordMessage counts one processed APPDU. Direction is "rx" or "tx".
func RecordMessage(role, direction, msgType string) {
	RegisterMetrics()
	appduMessages.WithLabelValues(role, direction, msgType).Inc()
}

// RecordParseErrors adds newly observed malformed-header counts.
func RecordParseErrors(role string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	appduParseErrors.WithLabelValues(role).Add(float64(n))
}

// RecordStreamBytes counts raw transport octets.
func RecordStreamBytes(role, direction string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	streamBytes.WithLabelValues(role, direction).Add(float64(n))
}

// SessionOpened and SessionClosed track the active session gauge.
func SessionOpened(role string) {
	RegisterMetrics()
	activeSessions.WithLabelValues(role).Inc()
}

func SessionClosed(role string) {
	RegisterMetrics()
	activeSessions.WithLabelValues(role).Dec()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
