package events

import (
	"context"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/rs/zerolog"
)

// KafkaMirror forwards every published event to a single Kafka topic,
// keyed by event type, grounded on the teacher's tools/kafka Writer usage.
type KafkaMirror struct {
	writer *kafkago.Writer
	log    zerolog.Logger
}

// NewKafkaMirror builds a mirror against the given brokers and topic.
func NewKafkaMirror(brokers []string, topic string, log zerolog.Logger) *KafkaMirror {
	return &KafkaMirror{
		writer: &kafkago.Writer{
			Addr:     kafkago.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafkago.LeastBytes{},
		},
		log: log.With().Str("component", "events.kafka_mirror").Logger(),
	}
}

func (m *KafkaMirror) Mirror(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := m.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(e.EventType),
		Value: e.Payload,
		Time:  e.OccurredAt,
	})
	if err != nil {
		m.log.Error().Err(err).Str("event_type", string(e.EventType)).Msg("failed to mirror event to kafka")
	}
}

func (m *KafkaMirror) Close() error { return m.writer.Close() }
