package config

import (
	"log/slog"
	"strings"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/events"
	"github.com/redis/go-redis/v9"
)

// EventConfig holds configuration for monitoring event fan-out
type EventConfig struct {
	Enabled      bool
	Publisher    string // memory, redis or kafka
	KafkaBrokers string
	MonitorTopic string
}

// GetKafkaBrokers returns Kafka brokers as a slice
func (c *EventConfig) GetKafkaBrokers() []string {
	brokers := strings.Split(c.KafkaBrokers, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}
	return brokers
}

// CreateBroker creates an event broker based on configuration. redisClient is only
// used by the redis broker and may be nil otherwise.
func (c *EventConfig) CreateBroker(logger *slog.Logger, redisClient *redis.Client) (events.Broker, error) {
	if !c.Enabled {
		logger.Info("Event fan-out disabled, using in-memory broker")
		return events.NewMemoryBroker(logger), nil
	}

	switch c.Publisher {
	case "kafka":
		logger.Info("Creating Kafka event broker",
			"brokers", c.KafkaBrokers,
			"topic", c.MonitorTopic)

		return events.NewKafkaBroker(events.KafkaConfig{
			KafkaBrokers: c.GetKafkaBrokers(),
			TopicName:    c.MonitorTopic,
			Logger:       logger,
		})
	case "redis":
		if redisClient == nil {
			logger.Warn("Redis broker requested without a redis client, falling back to in-memory broker")
			return events.NewMemoryBroker(logger), nil
		}
		logger.Info("Creating Redis event broker")
		return events.NewRedisBroker(redisClient, logger), nil
	case "memory":
		logger.Info("Using in-memory event broker")
		return events.NewMemoryBroker(logger), nil
	default:
		logger.Warn("Unknown event broker type, falling back to in-memory broker", "publisher", c.Publisher)
		return events.NewMemoryBroker(logger), nil
	}
}
