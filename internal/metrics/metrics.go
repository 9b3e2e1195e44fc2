package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ricirt/job-harvester/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	ItemsProcessed *prometheus.CounterVec
	FetchRetries   prometheus.Counter
	ItemDuration   prometheus.Histogram
	Batches        prometheus.Counter
	QueueDepth     prometheus.Gauge
	ProcessorState prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ItemsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_items_total",
			Help: "Work items handled, by outcome (succeeded, failed, dead_lettered).",
		}, []string{"outcome"}),

		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_fetch_retries_total",
			Help: "Fetch attempts that failed and were retried.",
		}),

		ItemDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvest_item_duration_seconds",
			Help:    "Time from starting an item to its removal or failure, retries included.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_batches_total",
			Help: "Batches dequeued by the processor.",
		}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_queue_depth",
			Help: "Work items waiting in the queue at the last check.",
		}),

		ProcessorState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_processor_state",
			Help: "Processor state: 0 stopped, 1 running, 2 draining.",
		}),
	}

	reg.MustRegister(
		m.ItemsProcessed,
		m.FetchRetries,
		m.ItemDuration,
		m.Batches,
		m.QueueDepth,
		m.ProcessorState,
	)

	return m
}

// ProcessorHooks returns the callbacks expected by worker.Options.Hooks.
// Centralises the prometheus observation calls so the processor stays
// metrics-agnostic.
func (m *Metrics) ProcessorHooks() worker.Hooks {
	return worker.Hooks{
		OnItem: func(outcome string, elapsed time.Duration) {
			m.ItemsProcessed.WithLabelValues(outcome).Inc()
			m.ItemDuration.Observe(elapsed.Seconds())
		},
		OnRetry: func(int, time.Duration, error) {
			m.FetchRetries.Inc()
		},
		OnBatch: func(int) {
			m.Batches.Inc()
		},
		OnState: func(s worker.State) {
			m.ProcessorState.Set(float64(s))
		},
	}
}

// SetQueueDepth records the latest known queue length.
func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}
