// Package bus wires the Watermill publisher/subscriber pair the pipeline
// talks to and implements bounded batch accumulation on top of it. The broker
// itself is a black box: the pipeline only publishes, subscribes, and acks.
package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/logging"
)

// Transport names accepted by Build.
const (
	TransportChannel = "channel"
	TransportKafka   = "kafka"
)

// Options selects and configures the backing transport.
type Options struct {
	// Transport is "channel" (in-memory, demo and tests) or "kafka".
	Transport string

	KafkaBrokers       []string
	KafkaConsumerGroup string
}

// Bus bundles the publisher/subscriber pair for one transport.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	log logging.Logger
}

// ChannelFactory allows overriding in-memory channel creation for testing.
var ChannelFactory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

// Build creates a Bus for the configured transport.
func Build(opts Options, log logging.Logger) (*Bus, error) {
	wmLogger := logging.NewWatermillAdapter(log)

	switch strings.ToLower(opts.Transport) {
	case TransportChannel, "":
		// Buffered so producers are not lockstepped with batch consumption.
		pub, sub := ChannelFactory(gochannel.Config{OutputChannelBuffer: 1024}, wmLogger)
		return &Bus{Publisher: pub, Subscriber: sub, log: log}, nil

	case TransportKafka:
		publisher, err := kafka.NewPublisher(
			kafka.PublisherConfig{
				Brokers:   opts.KafkaBrokers,
				Marshaler: kafka.DefaultMarshaler{},
			},
			wmLogger,
		)
		if err != nil {
			return nil, fmt.Errorf("bus: kafka publisher: %w", err)
		}
		subscriber, err := kafka.NewSubscriber(
			kafka.SubscriberConfig{
				Brokers:       opts.KafkaBrokers,
				Unmarshaler:   kafka.DefaultMarshaler{},
				ConsumerGroup: opts.KafkaConsumerGroup,
			},
			wmLogger,
		)
		if err != nil {
			return nil, fmt.Errorf("bus: kafka subscriber: %w", err)
		}
		return &Bus{Publisher: publisher, Subscriber: subscriber, log: log}, nil

	default:
		return nil, fmt.Errorf("bus: unknown transport %q", opts.Transport)
	}
}

// Publish serializes nothing; callers hand over the already-encoded payload.
func (b *Bus) Publish(topic string, payload []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return b.Publisher.Publish(topic, msg)
}

// Subscribe opens a consumer stream on the given topic.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.Subscriber.Subscribe(ctx, topic)
}

// Close shuts down both sides of the transport.
func (b *Bus) Close() error {
	var first error
	if err := b.Publisher.Close(); err != nil {
		first = err
	}
	if err := b.Subscriber.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
