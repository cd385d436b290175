// Package pipeline orchestrates the streaming run: it drives the synthetic
// producer, the valid-event consumer, the dead-letter consumer, and the
// health monitor concurrently over one shared metrics instance and one
// cancellation signal.
package pipeline

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/bus"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/config"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/deadletter"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/event"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/logging"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/producer"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/schema"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/sink"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/transform"
)

// State is the orchestrator lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyStarted is returned when Run is called on a pipeline that has
	// left the idle state.
	ErrAlreadyStarted = errors.New("pipeline: already started")
)

// idleSleep bounds the wait between empty consumer iterations.
const idleSleep = 100 * time.Millisecond

// stopWait bounds how long Stop waits for loops to drain.
const stopWait = 5 * time.Second

// Pipeline owns every component of one streaming run.
type Pipeline struct {
	cfg config.Config
	bus *bus.Bus
	log logging.Logger

	validator   *schema.Validator
	transformer *transform.Transformer
	sinkWriter  *sink.ParquetWriter
	handler     *deadletter.Handler
	producer    *producer.Producer

	metrics *Metrics
	health  *HealthChecker
	tracer  trace.Tracer

	eventsStats loopStats
	dlStats     loopStats

	state       atomic.Int32
	cancel      context.CancelFunc
	workers     sync.WaitGroup
	monitorDone chan struct{}
	stopOnce    sync.Once
}

// New wires a Pipeline from the configuration and an already-built bus.
func New(cfg config.Config, b *bus.Bus, log logging.Logger) (*Pipeline, error) {
	validator, err := schema.Load(cfg.SchemaFile)
	if err != nil {
		return nil, err
	}

	sinkWriter, err := sink.NewParquetWriter(cfg.OutputDir, cfg.BatchSize, log)
	if err != nil {
		return nil, err
	}
	dlWriter, err := sink.NewDeadLetterWriter(cfg.DeadLetterDir, log)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics(nil)
	if err := metrics.Register(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:         cfg,
		bus:         b,
		log:         log,
		validator:   validator,
		transformer: transform.New(validator, log),
		sinkWriter:  sinkWriter,
		handler:     deadletter.NewHandler(dlWriter, validator, log),
		producer:    producer.New(b, validator, cfg.EventsTopic, cfg.DeadLetterTopic, log),
		metrics:     metrics,
		health:      NewHealthChecker(),
		tracer:      otel.Tracer("streaming-data-pipeline"),
		monitorDone: make(chan struct{}),
	}
	return p, nil
}

// State returns the current lifecycle phase.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Metrics returns the shared metrics instance.
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// Health returns the most recent health snapshot.
func (p *Pipeline) Health() HealthSnapshot {
	return p.health.Last()
}

// Handler exposes the dead-letter handler, mainly for offline analysis.
func (p *Pipeline) Handler() *deadletter.Handler {
	return p.handler
}

// ReprocessDeadLetters scans the dead-letters directory, aggregates failure
// patterns, and re-validates every retryable record to judge whether
// reprocessing the backlog would succeed now. Intended after a run has
// stopped; it reads only what the handler persisted.
func (p *Pipeline) ReprocessDeadLetters() (deadletter.ReprocessReport, error) {
	return deadletter.ScanAndReprocess(p.cfg.DeadLetterDir, p.validator, p.log)
}

// Run starts the four loops and blocks until the configured run duration
// elapses or ctx is cancelled, then stops the pipeline. The caller only ever
// sees aggregate counts and health status, never per-record errors.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.metrics.MarkStart()

	p.log.Info("starting pipeline", logging.LogFields{
		"duration":   p.cfg.RunDuration.String(),
		"event_rate": p.cfg.EventRate,
		"transport":  p.cfg.Transport,
	})

	eventsCh, err := p.bus.Subscribe(runCtx, p.cfg.EventsTopic)
	if err != nil {
		cancel()
		p.state.Store(int32(StateStopped))
		return err
	}
	deadLetterCh, err := p.bus.Subscribe(runCtx, p.cfg.DeadLetterTopic)
	if err != nil {
		cancel()
		p.state.Store(int32(StateStopped))
		return err
	}

	p.workers.Add(3)
	go p.produceLoop(runCtx)
	go p.eventsLoop(runCtx, eventsCh)
	go p.deadLetterLoop(runCtx, deadLetterCh)
	go p.monitorLoop(runCtx)

	select {
	case <-time.After(p.cfg.RunDuration):
	case <-ctx.Done():
	}

	p.Stop()
	return nil
}

// Stop cancels every loop, closes the owned components, and waits briefly
// for the monitor. Safe to call more than once.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.state.Store(int32(StateStopping))
		p.log.Info("stopping pipeline", nil)
		if p.cancel != nil {
			p.cancel()
		}

		waitBounded(&p.workers, stopWait)

		if err := p.sinkWriter.Close(); err != nil {
			p.log.Error("error closing sink writer", err, nil)
		}
		p.handler.Close()
		if err := p.bus.Close(); err != nil {
			p.log.Error("error closing bus", err, nil)
		}

		select {
		case <-p.monitorDone:
		case <-time.After(stopWait):
		}

		p.state.Store(int32(StateStopped))
		p.log.Info("pipeline stopped", logging.LogFields{
			"metrics": p.metrics.Snapshot(),
		})
	})
}

// produceLoop generates synthetic events at the configured rate, routing the
// deliberately invalid fraction through producer-side validation into the
// dead-letter topic.
func (p *Pipeline) produceLoop(ctx context.Context) {
	defer p.workers.Done()

	interval := time.Second / time.Duration(p.cfg.EventRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var rec event.RawRecord
			if rand.Float64() < p.cfg.InvalidRatio {
				rec = p.producer.GenerateInvalidEvent()
			} else {
				rec = p.producer.GenerateEvent()
			}
			if p.producer.Process(rec) {
				p.metrics.RecordProduced()
			} else {
				p.metrics.RecordError()
			}
		}
	}
}

// eventsLoop accumulates bounded batches from the events topic and processes
// them. Post-validation failures become dead-letter records instead of
// crashing the loop.
func (p *Pipeline) eventsLoop(ctx context.Context, messages <-chan *message.Message) {
	defer p.workers.Done()

	acc := bus.NewAccumulator(messages, p.log)
	for {
		if ctx.Err() != nil {
			return
		}
		batch := acc.Accumulate(ctx, p.cfg.BatchSize, p.cfg.BatchTimeout)
		if len(batch) == 0 {
			sleepBounded(ctx, idleSleep)
			continue
		}
		p.processBatch(ctx, batch)
	}
}

func (p *Pipeline) processBatch(ctx context.Context, batch []bus.Delivery) {
	_, span := p.tracer.Start(ctx, "pipeline.process_batch",
		trace.WithAttributes(attribute.Int("batch.size", len(batch))))
	defer span.End()

	p.metrics.RecordValidConsumed(len(batch))
	p.metrics.RecordBatch()

	processed, failed := 0, 0
	for _, delivery := range batch {
		if p.processRecord(delivery.Record) {
			processed++
		} else {
			failed++
		}
	}

	p.log.Info("events batch processed", logging.LogFields{
		"processed": processed,
		"errors":    failed,
	})
}

func (p *Pipeline) processRecord(raw event.RawRecord) bool {
	enriched, err := p.transformer.Transform(raw)
	if err != nil {
		p.routeFailure(raw, classifyError(err), err.Error())
		p.eventsStats.record(false)
		return false
	}

	if !p.sinkWriter.Add(enriched) {
		p.routeFailure(raw, event.ErrTypeSinkWrite, "sink writer rejected record")
		p.eventsStats.record(false)
		return false
	}

	p.metrics.RecordTransformed()
	p.metrics.RecordWritten()
	p.eventsStats.record(true)
	return true
}

// routeFailure synthesizes a dead-letter record for a post-validation
// failure and hands it to the dead-letter subsystem.
func (p *Pipeline) routeFailure(raw event.RawRecord, errorType, message string) {
	p.metrics.RecordError()

	dead := event.DeadLetterRecord{
		OriginalEvent:   raw.ToMap(),
		ErrorType:       errorType,
		ErrorMessage:    message,
		FailedAt:        time.Now(),
		ProcessingStage: event.StageEventsConsumerProcessed,
	}
	if p.handler.Process(dead) {
		p.metrics.RecordDeadLetter()
	}
}

// deadLetterLoop consumes the dead-letter topic and writes each record, with
// its analysis attached, to the dead-letters directory. Failures here are
// logged and counted only.
func (p *Pipeline) deadLetterLoop(ctx context.Context, messages <-chan *message.Message) {
	defer p.workers.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		msg := bus.PollOne(ctx, messages, time.Second)
		if msg == nil {
			continue
		}

		var rec event.DeadLetterRecord
		if err := event.DecodeJSON(msg.Payload, &rec); err != nil {
			p.log.Error("failed to decode dead-letter record", err, logging.LogFields{
				"message_uuid": msg.UUID,
			})
			p.metrics.RecordError()
			p.dlStats.record(false)
			msg.Ack()
			continue
		}

		ok := p.handler.Process(rec)
		p.metrics.RecordDeadLetterConsumed()
		if ok {
			p.metrics.RecordDeadLetter()
			p.dlStats.record(true)
		} else {
			p.metrics.RecordError()
			p.dlStats.record(false)
		}
		msg.Ack()
	}
}

// monitorLoop periodically recomputes the health snapshot.
func (p *Pipeline) monitorLoop(ctx context.Context) {
	defer close(p.monitorDone)

	ticker := time.NewTicker(p.cfg.HealthInterval)
	defer ticker.Stop()

	components := map[string]ComponentStats{
		"producer":             p.producer,
		"events_consumer":      &p.eventsStats,
		"dead_letter_consumer": &p.dlStats,
		"sink_writer":          p.sinkWriter,
		"dead_letter_handler":  p.handler,
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := p.health.Check(components)
			if snapshot.Overall != StatusHealthy {
				p.log.Warn("pipeline health degraded", logging.LogFields{
					"overall":    string(snapshot.Overall),
					"components": snapshot.Components,
				})
			}
		}
	}
}

func classifyError(err error) string {
	var terr *transform.Error
	if errors.As(err, &terr) {
		return event.ErrTypeTransformation
	}
	return event.ErrTypeUnknown
}

// loopStats tracks one consumption loop's success/error counters.
type loopStats struct {
	mu        sync.Mutex
	processed uint64
	errored   uint64
}

func (s *loopStats) record(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.processed++
	} else {
		s.errored++
	}
}

// Stats implements ComponentStats.
func (s *loopStats) Stats() (successes, errors uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed, s.errored, nil
}

func sleepBounded(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func waitBounded(wg *sync.WaitGroup, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
