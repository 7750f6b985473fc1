package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for rbacdash
type Metrics struct {
	// Collection counters
	MutationsTotal *prometheus.CounterVec
	ExportsTotal   *prometheus.CounterVec
	BootstrapTotal *prometheus.CounterVec
	LoginsTotal    *prometheus.CounterVec

	// Collection gauges
	CollectionRows  *prometheus.GaugeVec
	ActivityEntries *prometheus.GaugeVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbacdash_mutations_total",
				Help: "Total number of committed collection mutations",
			},
			[]string{"collection", "op"},
		),
		ExportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbacdash_exports_total",
				Help: "Total number of CSV exports",
			},
			[]string{"collection"},
		),
		BootstrapTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbacdash_bootstrap_total",
				Help: "Upstream user directory bootstrap attempts by result",
			},
			[]string{"result"},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbacdash_logins_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),

		CollectionRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rbacdash_collection_rows",
				Help: "Number of records in each collection",
			},
			[]string{"collection"},
		),
		ActivityEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rbacdash_activity_entries",
				Help: "Number of retained activity log entries per collection",
			},
			[]string{"collection"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbacdash_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rbacdash_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbacdash_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rbacdash_uptime_seconds",
				Help: "Time since server start in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rbacdash_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rbacdash_storage_used_bytes",
				Help: "Size of the storage file in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.MutationsTotal,
		m.ExportsTotal,
		m.BootstrapTotal,
		m.LoginsTotal,
		m.CollectionRows,
		m.ActivityEntries,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// counterVecs maps metric names to the counters that survive restarts
func (m *Metrics) counterVecs() map[string]*prometheus.CounterVec {
	return map[string]*prometheus.CounterVec{
		"rbacdash_mutations_total":    m.MutationsTotal,
		"rbacdash_exports_total":      m.ExportsTotal,
		"rbacdash_bootstrap_total":    m.BootstrapTotal,
		"rbacdash_logins_total":       m.LoginsTotal,
		"rbacdash_api_requests_total": m.APIRequestsTotal,
		"rbacdash_api_errors_total":   m.APIErrorsTotal,
	}
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncMutations increments the mutation counter
func IncMutations(collection, op string) {
	m := Global()
	if m != nil {
		m.MutationsTotal.WithLabelValues(collection, op).Inc()
	}
}

// IncExports increments the export counter
func IncExports(collection string) {
	m := Global()
	if m != nil {
		m.ExportsTotal.WithLabelValues(collection).Inc()
	}
}

// IncBootstrap records a bootstrap outcome (ok, failed, skipped)
func IncBootstrap(result string) {
	m := Global()
	if m != nil {
		m.BootstrapTotal.WithLabelValues(result).Inc()
	}
}

// IncLogins records a login outcome (ok, failed)
func IncLogins(result string) {
	m := Global()
	if m != nil {
		m.LoginsTotal.WithLabelValues(result).Inc()
	}
}

// SetCollectionSize updates the row and activity gauges of a collection
func SetCollectionSize(collection string, rows, entries int) {
	m := Global()
	if m != nil {
		m.CollectionRows.WithLabelValues(collection).Set(float64(rows))
		m.ActivityEntries.WithLabelValues(collection).Set(float64(entries))
	}
}
