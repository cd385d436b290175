package bus

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/event"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/logging"
)

// DefaultPollTimeout bounds each individual poll against the bus. A poll that
// yields nothing within this window means "no more available right now".
const DefaultPollTimeout = 100 * time.Millisecond

// Delivery is one record accepted into a batch. The message is acked at
// acceptance: Watermill gates delivery of the next message on the previous
// ack, so deferring acks to the end of the batch would serialize consumption
// to one record at a time. Once accepted, a record is never dropped; failures
// downstream divert to the dead-letter path instead of relying on redelivery.
type Delivery struct {
	Record event.RawRecord
}

// Accumulator assembles bounded batches of raw records from a subscribed
// topic stream.
type Accumulator struct {
	messages    <-chan *message.Message
	pollTimeout time.Duration
	log         logging.Logger
}

// NewAccumulator wraps an already-subscribed message stream.
func NewAccumulator(messages <-chan *message.Message, log logging.Logger) *Accumulator {
	return &Accumulator{
		messages:    messages,
		pollTimeout: DefaultPollTimeout,
		log:         log,
	}
}

// Accumulate pulls records until maxCount is reached, maxWait elapses, or a
// poll comes back empty. An empty result is not a failure. Records that fail
// to decode are acked and skipped; once a record is accepted into the batch
// it is never dropped.
func (a *Accumulator) Accumulate(ctx context.Context, maxCount int, maxWait time.Duration) []Delivery {
	deadline := time.Now().Add(maxWait)
	batch := make([]Delivery, 0, maxCount)

	for len(batch) < maxCount && time.Now().Before(deadline) {
		msg, ok := a.poll(ctx)
		if !ok {
			break
		}
		var raw event.RawRecord
		if err := event.DecodeJSON(msg.Payload, &raw); err != nil {
			a.log.Error("failed to decode record from bus", err, logging.LogFields{
				"message_uuid": msg.UUID,
			})
			msg.Ack()
			continue
		}
		msg.Ack()
		batch = append(batch, Delivery{Record: raw})
	}
	return batch
}

func (a *Accumulator) poll(ctx context.Context) (*message.Message, bool) {
	timer := time.NewTimer(a.pollTimeout)
	defer timer.Stop()

	select {
	case msg, open := <-a.messages:
		if !open {
			return nil, false
		}
		return msg, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// PollOne waits up to timeout for a single message on the stream. Returns
// nil when nothing arrives; that is not an error.
func PollOne(ctx context.Context, messages <-chan *message.Message, timeout time.Duration) *message.Message {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg, open := <-messages:
		if !open {
			return nil
		}
		return msg
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}
}
