package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"eventpulse/internal/config"
	"eventpulse/internal/logger"
	"eventpulse/internal/models"
)

// Producer streams ledger commits onto the event bus. The fraud engine
// and any external analytics consumers read from these topics.
type Producer struct {
	scanWriter    *kafka.Writer
	voucherWriter *kafka.Writer
	logger        *logger.Logger
}

func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	return &Producer{
		scanWriter: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   topics.ScanCommitted,
		}),
		voucherWriter: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   topics.VoucherIssued,
		}),
		logger: log,
	}
}

// PublishScanCommitted streams a committed scan event.
func (p *Producer) PublishScanCommitted(ev models.ScanEvent) error {
	msgBytes, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	p.logger.LogKafka("PUBLISH", p.scanWriter.Topic, "scan "+ev.ID)

	return p.scanWriter.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(ev.UserID),
			Value: msgBytes,
		},
	)
}

// PublishVoucherIssued streams a voucher issuance.
func (p *Producer) PublishVoucherIssued(voucher models.Voucher) error {
	msgBytes, err := json.Marshal(voucher)
	if err != nil {
		return err
	}

	p.logger.LogKafka("PUBLISH", p.voucherWriter.Topic, "voucher "+voucher.Code)

	return p.voucherWriter.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(voucher.UserID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	if err := p.scanWriter.Close(); err != nil {
		return err
	}
	return p.voucherWriter.Close()
}
