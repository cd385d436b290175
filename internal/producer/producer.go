// Package producer generates synthetic user-activity events, validates them,
// and publishes them to the bus. Invalid events are routed to the dead-letter
// topic at ingest and never raised to the caller.
package producer

import (
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/oklog/ulid/v2"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/event"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/logging"
)

var eventTypes = []string{"page_view", "click", "purchase", "signup", "login", "logout"}

// Publisher publishes an encoded payload to a topic. Satisfied by bus.Bus.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Validator validates a raw event field map. Satisfied by schema.Validator.
type Validator interface {
	ValidateUserEvent(fields map[string]any) (map[string]any, error)
}

// Producer generates and publishes synthetic events.
type Producer struct {
	mu sync.Mutex

	publisher Publisher
	validator Validator

	eventsTopic     string
	deadLetterTopic string

	produced uint64
	errored  uint64

	log logging.Logger
	now func() time.Time
}

// New builds a Producer.
func New(publisher Publisher, validator Validator, eventsTopic, deadLetterTopic string, log logging.Logger) *Producer {
	return &Producer{
		publisher:       publisher,
		validator:       validator,
		eventsTopic:     eventsTopic,
		deadLetterTopic: deadLetterTopic,
		log:             log,
		now:             time.Now,
	}
}

// GenerateEvent produces one synthetic user event with type-specific fields.
func (p *Producer) GenerateEvent() event.RawRecord {
	eventType := gofakeit.RandomString(eventTypes)

	rec := event.RawRecord{
		EventID:   ulid.Make().String(),
		UserID:    gofakeit.UUID(),
		EventType: eventType,
		Timestamp: p.now().Format(time.RFC3339Nano),
		SessionID: gofakeit.UUID(),
		Source:    "web",
		Version:   "1.0",
		Extra:     make(map[string]any),
	}

	rec.Extra["page_url"] = gofakeit.URL()
	rec.Extra["user_agent"] = gofakeit.UserAgent()
	rec.Extra["ip_address"] = gofakeit.IPv4Address()

	switch eventType {
	case "click":
		rec.Extra["element_id"] = gofakeit.Numerify("btn_###")
	case "purchase":
		rec.Extra["product_id"] = gofakeit.Numerify("prod_####")
		rec.Extra["amount"] = gofakeit.Price(10, 500)
		rec.Extra["country"] = gofakeit.Country()
	default:
		rec.Extra["country"] = gofakeit.Country()
	}

	return rec
}

// GenerateInvalidEvent produces an event that fails schema validation, used
// to exercise the dead-letter path.
func (p *Producer) GenerateInvalidEvent() event.RawRecord {
	rec := p.GenerateEvent()
	rec.EventType = "invalid_event_type"
	return rec
}

// Process validates the record and publishes it: valid records go to the
// events topic, invalid ones become dead-letter records on the dead-letter
// topic. Returns true when the record reached the events topic.
func (p *Producer) Process(rec event.RawRecord) bool {
	defaulted, err := p.validator.ValidateUserEvent(rec.ToMap())
	if err != nil {
		p.routeDeadLetter(rec, err)
		return false
	}

	payload, err := event.EncodeJSON(defaulted)
	if err != nil {
		p.countError()
		p.log.Error("failed to encode event", err, nil)
		return false
	}
	if err := p.publisher.Publish(p.eventsTopic, payload); err != nil {
		p.countError()
		p.log.Error("failed to publish event", err, logging.LogFields{
			"topic": p.eventsTopic,
		})
		return false
	}

	p.mu.Lock()
	p.produced++
	p.mu.Unlock()
	return true
}

func (p *Producer) routeDeadLetter(rec event.RawRecord, cause error) {
	p.countError()

	dead := event.DeadLetterRecord{
		OriginalEvent:   rec.ToMap(),
		ErrorType:       event.ErrTypeValidation,
		ErrorMessage:    cause.Error(),
		FailedAt:        p.now(),
		ProcessingStage: event.StageProducerValidation,
	}
	payload, err := event.EncodeJSON(dead)
	if err != nil {
		p.log.Error("failed to encode dead-letter record", err, nil)
		return
	}
	if err := p.publisher.Publish(p.deadLetterTopic, payload); err != nil {
		p.log.Error("failed to publish dead-letter record", err, logging.LogFields{
			"topic": p.deadLetterTopic,
		})
		return
	}
	p.log.Warn("routed invalid event to dead-letter topic", logging.LogFields{
		"event_type": rec.EventType,
	})
}

func (p *Producer) countError() {
	p.mu.Lock()
	p.errored++
	p.mu.Unlock()
}

// Stats reports published and errored counts for health checks.
func (p *Producer) Stats() (successes, errors uint64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.produced, p.errored, nil
}
