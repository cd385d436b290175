package pipeline

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks process-wide pipeline counters. Every concurrent loop
// increments through the same instance; a mutex serializes the updates and
// the values are mirrored into Prometheus collectors.
type Metrics struct {
	mu sync.Mutex

	startTime time.Time

	eventsProduced           uint64
	validEventsConsumed      uint64
	deadLetterEventsConsumed uint64
	eventsTransformed        uint64
	eventsWritten            uint64
	deadLetterEvents         uint64
	errors                   uint64
	batchesProcessed         uint64

	producedTotal    prometheus.Counter
	consumedTotal    *prometheus.CounterVec
	transformedTotal prometheus.Counter
	writtenTotal     prometheus.Counter
	deadLetterTotal  prometheus.Counter
	errorsTotal      prometheus.Counter
	batchesTotal     prometheus.Counter

	registerer prometheus.Registerer
	registered bool
}

// MetricsSnapshot is a point-in-time copy of the pipeline counters plus the
// derived rates.
type MetricsSnapshot struct {
	StartTime                time.Time `json:"start_time"`
	EventsProduced           uint64    `json:"events_produced"`
	ValidEventsConsumed      uint64    `json:"valid_events_consumed"`
	DeadLetterEventsConsumed uint64    `json:"dead_letter_events_consumed"`
	EventsTransformed        uint64    `json:"events_transformed"`
	EventsWritten            uint64    `json:"events_written"`
	DeadLetterEvents         uint64    `json:"dead_letter_events"`
	Errors                   uint64    `json:"errors"`
	BatchesProcessed         uint64    `json:"batches_processed"`
	ProcessingTimeSeconds    float64   `json:"processing_time_seconds"`
	SuccessRate              float64   `json:"success_rate"`
	ErrorRate                float64   `json:"error_rate"`
	EventsPerSecond          float64   `json:"events_per_second"`
}

func newPipelineCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streaming",
		Subsystem: "pipeline",
		Name:      name,
		Help:      help,
	})
}

// NewMetrics creates a metrics instance. A nil registerer falls back to the
// Prometheus default.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		startTime:        time.Now(),
		registerer:       registerer,
		producedTotal:    newPipelineCounter("events_produced_total", "Events published to the events topic"),
		transformedTotal: newPipelineCounter("events_transformed_total", "Events enriched by the transform stage"),
		writtenTotal:     newPipelineCounter("events_written_total", "Events accepted by the columnar sink"),
		deadLetterTotal:  newPipelineCounter("dead_letter_events_total", "Records routed to the dead-letter subsystem"),
		errorsTotal:      newPipelineCounter("errors_total", "Processing errors across all loops"),
		batchesTotal:     newPipelineCounter("batches_total", "Batches pulled from the events topic"),
		consumedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streaming",
			Subsystem: "pipeline",
			Name:      "events_consumed_total",
			Help:      "Events consumed from the bus, labeled by topic kind",
		}, []string{"kind"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	collectors := []prometheus.Collector{
		m.producedTotal,
		m.consumedTotal,
		m.transformedTotal,
		m.writtenTotal,
		m.deadLetterTotal,
		m.errorsTotal,
		m.batchesTotal,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

// MarkStart resets the run start time.
func (m *Metrics) MarkStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startTime = time.Now()
}

// RecordProduced counts one event published to the events topic.
func (m *Metrics) RecordProduced() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventsProduced++
	m.producedTotal.Inc()
}

// RecordValidConsumed counts records pulled from the events topic.
func (m *Metrics) RecordValidConsumed(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validEventsConsumed += uint64(n)
	m.consumedTotal.WithLabelValues("events").Add(float64(n))
}

// RecordDeadLetterConsumed counts one record pulled from the dead-letter
// topic.
func (m *Metrics) RecordDeadLetterConsumed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLetterEventsConsumed++
	m.consumedTotal.WithLabelValues("dead_letter").Inc()
}

// RecordTransformed counts one enriched record.
func (m *Metrics) RecordTransformed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventsTransformed++
	m.transformedTotal.Inc()
}

// RecordWritten counts one record accepted by the sink.
func (m *Metrics) RecordWritten() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventsWritten++
	m.writtenTotal.Inc()
}

// RecordDeadLetter counts one record handed to the dead-letter subsystem.
func (m *Metrics) RecordDeadLetter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLetterEvents++
	m.deadLetterTotal.Inc()
}

// RecordError counts one processing error.
func (m *Metrics) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
	m.errorsTotal.Inc()
}

// RecordBatch counts one consumed batch.
func (m *Metrics) RecordBatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchesProcessed++
	m.batchesTotal.Inc()
}

// Snapshot returns a copy of the counters with derived rates.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := time.Since(m.startTime).Seconds()
	snap := MetricsSnapshot{
		StartTime:                m.startTime,
		EventsProduced:           m.eventsProduced,
		ValidEventsConsumed:      m.validEventsConsumed,
		DeadLetterEventsConsumed: m.deadLetterEventsConsumed,
		EventsTransformed:        m.eventsTransformed,
		EventsWritten:            m.eventsWritten,
		DeadLetterEvents:         m.deadLetterEvents,
		Errors:                   m.errors,
		BatchesProcessed:         m.batchesProcessed,
		ProcessingTimeSeconds:    elapsed,
	}
	if m.validEventsConsumed > 0 {
		snap.SuccessRate = float64(m.eventsWritten) / float64(m.validEventsConsumed) * 100
		snap.ErrorRate = float64(m.errors) / float64(m.validEventsConsumed) * 100
	}
	if elapsed > 0 {
		snap.EventsPerSecond = float64(m.validEventsConsumed+m.deadLetterEventsConsumed) / elapsed
	}
	return snap
}
