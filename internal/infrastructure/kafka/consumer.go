package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/ndiakov/auth-service/internal/models"
	"github.com/ndiakov/auth-service/internal/repository"
)

// Consumer reads auth lifecycle events from Kafka and persists them into the
// auth_events audit table.
type Consumer struct {
	reader    *kafka.Reader
	auditRepo repository.AuditRepository
}

func NewConsumer(brokers []string, topic, groupID string, auditRepo repository.AuditRepository) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		auditRepo: auditRepo,
	}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.reader.Config().Topic, "error", err)
			continue
		}

		var event models.AuthEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			slog.Error("failed to unmarshal auth event", "error", err)
			continue
		}

		if err := c.auditRepo.Record(ctx, &event); err != nil {
			slog.Error("failed to record auth event", "event_id", event.EventID, "error", err)
			continue
		}

		slog.Info("auth event recorded",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"username", event.Username)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
