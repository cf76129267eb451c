// Package metrics provides Prometheus-based metrics collection for netrecon.
// A single process-wide registry records scan outcomes, per-probe failures,
// port states and the number of in-flight port probes.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all netrecon metrics
	namespace = "netrecon"

	// Subsystems
	subsystemScan  = "scan"
	subsystemProbe = "probe"
	subsystemPort  = "port"
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	scansTotal    *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	probeDuration *prometheus.HistogramVec
	probeFailures *prometheus.CounterVec
	portsTotal    *prometheus.CounterVec
	portsInFlight prometheus.Gauge

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{registry: registry}
	pm.initScanMetrics()
	pm.initProbeMetrics()
	pm.initPortMetrics()

	registry.MustRegister(
		pm.scansTotal,
		pm.scanDuration,
		pm.probeDuration,
		pm.probeFailures,
		pm.portsTotal,
		pm.portsInFlight,
	)
	registry.MustRegister(collectors.NewGoCollector())

	return pm
}

func (pm *PrometheusMetrics) initScanMetrics() {
	pm.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "total",
			Help:      "Total number of scans by status",
		},
		[]string{"status"},
	)

	pm.scanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "duration_seconds",
			Help:      "Duration of complete scans in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
		},
	)
}

func (pm *PrometheusMetrics) initProbeMetrics() {
	pm.probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "duration_seconds",
			Help:      "Duration of individual probes in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
		[]string{"probe"},
	)

	pm.probeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "failures_total",
			Help:      "Total number of probes that captured a failure, by probe and error code",
		},
		[]string{"probe", "code"},
	)
}

func (pm *PrometheusMetrics) initPortMetrics() {
	pm.portsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPort,
			Name:      "probes_total",
			Help:      "Total number of port probes by resulting status",
		},
		[]string{"status"},
	)

	pm.portsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemPort,
			Name:      "in_flight",
			Help:      "Number of port probes currently connecting",
		},
	)
}

// GetRegistry returns the Prometheus registry backing these metrics
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// IncrementScansTotal increments the total scan counter
func (pm *PrometheusMetrics) IncrementScansTotal(status string) {
	pm.scansTotal.WithLabelValues(status).Inc()
}

// RecordScanDuration records a scan duration
func (pm *PrometheusMetrics) RecordScanDuration(duration time.Duration) {
	pm.scanDuration.Observe(duration.Seconds())
}

// RecordProbeDuration records how long one probe took
func (pm *PrometheusMetrics) RecordProbeDuration(probe string, duration time.Duration) {
	pm.probeDuration.WithLabelValues(probe).Observe(duration.Seconds())
}

// IncrementProbeFailures counts a probe that returned an error-bearing section
func (pm *PrometheusMetrics) IncrementProbeFailures(probe, code string) {
	pm.probeFailures.WithLabelValues(probe, code).Inc()
}

// IncrementPorts counts a finished port probe
func (pm *PrometheusMetrics) IncrementPorts(status string) {
	pm.portsTotal.WithLabelValues(status).Inc()
}

// PortProbeStarted marks one more port probe as in flight
func (pm *PrometheusMetrics) PortProbeStarted() {
	pm.portsInFlight.Inc()
}

// PortProbeFinished marks one port probe as no longer in flight
func (pm *PrometheusMetrics) PortProbeFinished() {
	pm.portsInFlight.Dec()
}

// WriteTextfile writes the current metrics in the node-exporter textfile format.
func (pm *PrometheusMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, pm.registry)
}

// Global instance for easy access
var globalMetrics *PrometheusMetrics
var metricsOnce sync.Once

// GetGlobalMetrics returns the global Prometheus metrics instance
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}
