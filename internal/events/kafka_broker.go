package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Shopify/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
)

const monitorTopicKey = "monitor_topic"

// KafkaBroker implements Broker using Watermill with Kafka. All monitor topics share one
// Kafka topic; the monitor topic travels in the message metadata.
type KafkaBroker struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
	topicName  string
}

// KafkaConfig holds configuration for the Kafka broker
type KafkaConfig struct {
	KafkaBrokers []string
	TopicName    string
	Logger       *slog.Logger
}

// NewKafkaBroker creates a new Kafka-based broker using Watermill
func NewKafkaBroker(config KafkaConfig) (*KafkaBroker, error) {
	logger := watermill.NewSlogLogger(config.Logger)

	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   config.KafkaBrokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
	}

	// Every instance reads every event, so no consumer group and only new offsets.
	saramaConfig := kafka.DefaultSaramaSubscriberConfig()
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest

	subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               config.KafkaBrokers,
		Unmarshaler:           kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: saramaConfig,
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("failed to create Kafka subscriber: %w", err)
	}

	return &KafkaBroker{
		publisher:  publisher,
		subscriber: subscriber,
		logger:     config.Logger,
		topicName:  config.TopicName,
	}, nil
}

// Publish publishes a monitor event to Kafka
func (k *KafkaBroker) Publish(ctx context.Context, topic string, event *MonitorEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal monitor event: %w", err)
	}

	msg := message.NewMessage(event.ID, eventBytes)
	msg.SetContext(ctx)

	msg.Metadata.Set(monitorTopicKey, topic)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("source", event.Source)
	msg.Metadata.Set("version", event.Version)

	if err := k.publisher.Publish(k.topicName, msg); err != nil {
		k.logger.Error("Failed to publish monitor event",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err)
		return fmt.Errorf("failed to publish monitor event: %w", err)
	}

	k.logger.Debug("Published monitor event",
		"event_id", event.ID,
		"event_type", event.Type,
		"topic", k.topicName)
	return nil
}

func (k *KafkaBroker) Subscribe(ctx context.Context, handler Handler) error {
	messages, err := k.subscriber.Subscribe(ctx, k.topicName)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", k.topicName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event MonitorEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				k.logger.Warn("Dropping malformed monitor event", "message_uuid", msg.UUID, "error", err)
				msg.Ack()
				continue
			}
			handler(msg.Metadata.Get(monitorTopicKey), &event)
			msg.Ack()
		}
	}
}

// Close closes the publisher and subscriber and releases resources
func (k *KafkaBroker) Close() error {
	pubErr := k.publisher.Close()
	subErr := k.subscriber.Close()
	if pubErr != nil {
		return pubErr
	}
	return subErr
}
