package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type TaskOutcome string

const (
	TaskOutcomeCompleted TaskOutcome = "completed"
	TaskOutcomeCancelled TaskOutcome = "cancelled"
	TaskOutcomeFailed    TaskOutcome = "failed"
)

const SimRunnerMetricsPrefix = "simrunner_"

// Metrics records pipeline activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	tasks             *prometheus.CounterVec
	snapshotsSent     prometheus.Counter
	throttleSlotsUsed prometheus.Gauge
	batchesFlushed    prometheus.Counter
	rowsFlushed       prometheus.Counter
	sinkErrors        prometheus.Counter
	flushLatency      prometheus.Histogram
}

// NewMetrics creates the pipeline metrics and registers them with registerer.
func NewMetrics(prefix string, registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		tasks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "tasks_total",
			Help: "Number of simulation tasks that finished, grouped by outcome",
		}, []string{"outcome"}),
		snapshotsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "snapshots_sent_total",
			Help: "Number of snapshots written to the multiplexer",
		}),
		throttleSlotsUsed: factory.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "throttle_slots_in_use",
			Help: "Number of tasks currently holding a throttle slot",
		}),
		batchesFlushed: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "batches_flushed_total",
			Help: "Number of batches successfully stored by the sink",
		}),
		rowsFlushed: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "snapshots_flushed_total",
			Help: "Number of snapshots successfully stored by the sink",
		}),
		sinkErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "sink_errors_total",
			Help: "Number of batches the sink failed to store",
		}),
		flushLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    prefix + "flush_latency_seconds",
			Help:    "Time taken by the sink to store a batch",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
	}
}

func (m *Metrics) RecordTaskOutcome(outcome TaskOutcome) {
	if m == nil {
		return
	}
	m.tasks.With(map[string]string{"outcome": string(outcome)}).Inc()
}

func (m *Metrics) RecordSnapshotSent() {
	if m == nil {
		return
	}
	m.snapshotsSent.Inc()
}

func (m *Metrics) SetThrottleSlotsInUse(n int) {
	if m == nil {
		return
	}
	m.throttleSlotsUsed.Set(float64(n))
}

func (m *Metrics) RecordFlush(size int, seconds float64, err error) {
	if m == nil {
		return
	}
	m.flushLatency.Observe(seconds)
	if err != nil {
		m.sinkErrors.Inc()
		return
	}
	m.batchesFlushed.Inc()
	m.rowsFlushed.Add(float64(size))
}

// Tasks returns the counter of tasks that finished with outcome.
func (m *Metrics) Tasks(outcome TaskOutcome) prometheus.Counter {
	return m.tasks.With(map[string]string{"outcome": string(outcome)})
}

// SnapshotsSent returns the counter of snapshots written to the multiplexer.
func (m *Metrics) SnapshotsSent() prometheus.Counter {
	return m.snapshotsSent
}
