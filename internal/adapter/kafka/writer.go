package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/climate-insights-service/internal/config"
	"github.com/couchcryptid/climate-insights-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes country aggregate snapshots to a Kafka topic.
// It implements pipeline.SnapshotPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured snapshot topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaSnapshotTopic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishSnapshot writes one message per country aggregate in a single
// WriteMessages call. Messages are keyed by country so that successive
// snapshots of a country land on the same partition.
func (w *Writer) PublishSnapshot(ctx context.Context, fingerprint string, loadedAt time.Time, aggs []domain.CountryAggregate) error {
	if len(aggs) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(aggs))
	for i := range aggs {
		msg, err := serializeToMessage(aggs[i], fingerprint, loadedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish snapshot %s: %w", fingerprint, err)
	}
	w.logger.Debug("snapshot published", "fingerprint", fingerprint, "countries", len(aggs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a CountryAggregate into a Kafka message.
func serializeToMessage(agg domain.CountryAggregate, fingerprint string, loadedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(agg)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize country aggregate: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(agg.Country),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "fingerprint", Value: []byte(fingerprint)},
			{Key: "loaded_at", Value: []byte(loadedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
