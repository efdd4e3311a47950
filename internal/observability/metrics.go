// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Run lifecycle metrics
	RunsStarted     prometheus.Counter
	RunsFinished    *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	BarsProcessed   prometheus.Counter
	TradesSimulated *prometheus.CounterVec
	SignalErrors    prometheus.Counter

	// Scheduler metrics
	SchedulerRunning    prometheus.Gauge
	SchedulerQueueDepth prometheus.Gauge
	AdmissionsTotal     *prometheus.CounterVec

	// Progress metrics
	ProgressEntries   prometheus.Gauge
	ProgressEvictions prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered on reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "started_total",
			Help:      "Total number of runs that began simulating",
		}),
		RunsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "finished_total",
			Help:      "Total number of runs reaching a terminal status",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "Wall-clock run execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}),
		BarsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "bars_processed_total",
			Help:      "Total number of bars replayed by the engine",
		}),
		TradesSimulated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trades_simulated_total",
			Help:      "Total number of simulated trades by kind",
		}, []string{"kind"}),
		SignalErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "signal_errors_total",
			Help:      "Total number of rule evaluation failures treated as no signal",
		}),

		SchedulerRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "running",
			Help:      "Number of runs holding a concurrency slot",
		}),
		SchedulerQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Number of runs waiting for a slot",
		}),
		AdmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "admissions_total",
			Help:      "Slot requests by outcome",
		}, []string{"outcome"}),

		ProgressEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "entries",
			Help:      "Number of progress records held in memory",
		}),
		ProgressEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "evictions_total",
			Help:      "Total number of stale progress records swept",
		}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultNamespace prefixes every metric unless UseNamespace picks another.
const DefaultNamespace = "backtest_lab"

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// UseNamespace replaces DefaultMetrics with metrics under namespace on a
// fresh registry and returns the handler serving it. Call once at startup,
// before any Record* helper runs concurrently.
func UseNamespace(namespace string) http.Handler {
	if namespace == "" || namespace == DefaultNamespace {
		return Handler()
	}
	reg := prometheus.NewRegistry()
	DefaultMetrics = NewMetrics(namespace, reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// RecordRunStarted increments the runs started counter.
func RecordRunStarted() {
	DefaultMetrics.RunsStarted.Inc()
}

// RecordRunFinished records a terminal run status and its duration.
func RecordRunFinished(status string, durationSeconds float64) {
	DefaultMetrics.RunsFinished.WithLabelValues(status).Inc()
	if durationSeconds > 0 {
		DefaultMetrics.RunDuration.Observe(durationSeconds)
	}
}

// RecordBarsProcessed adds n to the bars processed counter.
func RecordBarsProcessed(n int) {
	DefaultMetrics.BarsProcessed.Add(float64(n))
}

// RecordTrade increments the simulated trades counter.
func RecordTrade(kind string) {
	DefaultMetrics.TradesSimulated.WithLabelValues(kind).Inc()
}

// RecordSignalError increments the rule evaluation failure counter.
func RecordSignalError() {
	DefaultMetrics.SignalErrors.Inc()
}

// RecordAdmission records a slot request outcome.
func RecordAdmission(outcome string) {
	DefaultMetrics.AdmissionsTotal.WithLabelValues(outcome).Inc()
}

// UpdateSchedulerGauges sets the scheduler occupancy gauges.
func UpdateSchedulerGauges(running, queued int) {
	DefaultMetrics.SchedulerRunning.Set(float64(running))
	DefaultMetrics.SchedulerQueueDepth.Set(float64(queued))
}

// RecordProgressSweep records a sweep pass over the progress store.
func RecordProgressSweep(evicted, remaining int) {
	DefaultMetrics.ProgressEvictions.Add(float64(evicted))
	DefaultMetrics.ProgressEntries.Set(float64(remaining))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
