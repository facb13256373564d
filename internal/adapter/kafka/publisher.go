// Package kafka publishes day summaries to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/corona-data-service/internal/casedata"
	"github.com/couchcryptid/corona-data-service/internal/config"
)

// Publisher produces day summaries to the summary topic.
// It implements refresh.SummaryPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured summary topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSummaryTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		Compression:  kafkago.Snappy,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishSummary serializes and publishes one day summary.
func (p *Publisher) PublishSummary(ctx context.Context, summary casedata.Summary) error {
	msg, err := serializeSummary(summary)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish summary: %w", err)
	}
	p.logger.Debug("summary published", "day", summary.Day, "continents", len(summary.Totals))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeSummary marshals a Summary into a Kafka message keyed by day, so
// re-publishes of the same day compact onto one key.
func serializeSummary(summary casedata.Summary) (kafkago.Message, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(summary.Day),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "produced_at", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
			{Key: "row_count", Value: []byte(strconv.Itoa(summary.Rows))},
		},
	}, nil
}
