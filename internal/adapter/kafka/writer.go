package kafka

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-track-tagger/internal/config"
	"github.com/couchcryptid/storm-track-tagger/internal/domain"
)

// Writer produces job results to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes the encoded results, keyed by job id, in a single
// WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, events []domain.OutputEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msgs[i] = serializeToMessage(events[i])
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage converts an output event into a Kafka message with
// headers in key order.
func serializeToMessage(event domain.OutputEvent) kafkago.Message {
	msg := kafkago.Message{Key: event.Key, Value: event.Value}
	for _, k := range slices.Sorted(maps.Keys(event.Headers)) {
		msg.Headers = append(msg.Headers, kafkago.Header{Key: k, Value: []byte(event.Headers[k])})
	}
	return msg
}
