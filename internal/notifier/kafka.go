package notifier

import (
	"context"
	"encoding/json"

	"reorder/internal/model"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes notification intents to a topic consumed by the
// notification transport service. Publishing is best-effort: the caller
// treats errors as non-fatal.
type KafkaSink struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

func NewKafkaSink(brokers []string, topic string, log zerolog.Logger) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		log: log,
	}
}

func (s *KafkaSink) Send(ctx context.Context, intent model.NotificationIntent) error {
	value, err := json.Marshal(intent)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(intent.DedupeKey),
		Value: value,
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// LogSink is a stand-in transport for environments without a broker; it
// just records what would have been sent.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Send(_ context.Context, intent model.NotificationIntent) error {
	s.log.Info().
		Str("event", intent.EventType).
		Str("channel", intent.Channel).
		Str("recipient", intent.Recipient).
		Str("template", intent.TemplateKey).
		Msg("notification intent")
	return nil
}
