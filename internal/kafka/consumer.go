package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"eventpulse/internal/logger"
	"eventpulse/internal/models"
)

type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log}
}

// StartScanEvents consumes committed scans until the context is
// cancelled, invoking handler for each decoded event.
func (c *Consumer) StartScanEvents(ctx context.Context, handler func(ctx context.Context, ev models.ScanEvent)) {
	c.logger.LogKafka("CONSUME", c.reader.Config().Topic, "consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("KAFKA", "read message: "+err.Error())
			continue
		}

		var ev models.ScanEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.logger.Warn("KAFKA", "unmarshal scan event: "+err.Error())
			continue
		}

		handler(ctx, ev)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
