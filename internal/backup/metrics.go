package backup

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector records backup, verification, replication and restore outcomes.
// A nil *MetricsCollector is valid and records nothing.
type MetricsCollector struct {
	registry *prometheus.Registry

	operations       *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	dumpBytes        prometheus.Histogram
	statements       *prometheus.CounterVec
	lastSuccess      *prometheus.GaugeVec
	compressionRate  prometheus.Gauge
	scheduleFailures *prometheus.CounterVec
}

// NewMetricsCollector registers the backup collectors on a fresh registry
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &MetricsCollector{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital_backup",
			Name:      "operations_total",
			Help:      "Backup subsystem operations by kind and outcome",
		}, []string{"operation", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hospital_backup",
			Name:      "operation_duration_seconds",
			Help:      "Duration of backup subsystem operations",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"operation"}),
		dumpBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hospital_backup",
			Name:      "dump_size_bytes",
			Help:      "Size of written dump files",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 12),
		}),
		statements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital_backup",
			Name:      "restore_statements_total",
			Help:      "Statements replayed during restores by result",
		}, []string{"result"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hospital_backup",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful backup per tenant",
		}, []string{"tenant"}),
		compressionRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "hospital_backup",
			Name:      "replica_compression_ratio",
			Help:      "Compression ratio of the most recent replica",
		}),
		scheduleFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital_backup",
			Name:      "schedule_failures_total",
			Help:      "Failed scheduled runs per tenant",
		}, []string{"tenant"}),
	}
}

// Registry exposes the underlying registry
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}

// Handler serves the collectors in the Prometheus exposition format
func (mc *MetricsCollector) Handler() http.Handler {
	if mc == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

// WriteToTextfile writes the current values for the node exporter textfile collector
func (mc *MetricsCollector) WriteToTextfile(path string) error {
	if mc == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, mc.registry)
}

// RecordBackupOperation records one dump run
func (mc *MetricsCollector) RecordBackupOperation(tenantID string, success bool, duration time.Duration, size int64) {
	if mc == nil {
		return
	}
	mc.observe(ActionDump, success, duration)
	if success {
		mc.dumpBytes.Observe(float64(size))
		mc.lastSuccess.WithLabelValues(tenantID).SetToCurrentTime()
	}
}

// RecordValidationOperation records one verification
func (mc *MetricsCollector) RecordValidationOperation(success bool, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.observe(ActionVerify, success, duration)
}

// RecordReplication records one off-site copy
func (mc *MetricsCollector) RecordReplication(success bool, duration time.Duration, compressionRatio float64) {
	if mc == nil {
		return
	}
	mc.observe(ActionReplicate, success, duration)
	if success && compressionRatio > 0 {
		mc.compressionRate.Set(compressionRatio)
	}
}

// RecordRestoreOperation records one restore with its statement counts
func (mc *MetricsCollector) RecordRestoreOperation(success bool, duration time.Duration, executed, failed int) {
	if mc == nil {
		return
	}
	mc.observe(ActionRestore, success, duration)
	mc.statements.WithLabelValues("executed").Add(float64(executed))
	mc.statements.WithLabelValues("failed").Add(float64(failed))
}

// RecordScheduleRun records one scheduled backup run
func (mc *MetricsCollector) RecordScheduleRun(tenantID string, success bool, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.observe("schedule", success, duration)
	if !success {
		mc.scheduleFailures.WithLabelValues(tenantID).Inc()
	}
}

func (mc *MetricsCollector) observe(operation string, success bool, duration time.Duration) {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeFailed
	}
	mc.operations.WithLabelValues(operation, outcome).Inc()
	mc.duration.WithLabelValues(operation).Observe(duration.Seconds())
}
