package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/r2flows/churn-agent/pkg/metrics"
)

// Producer publishes alert events to Kafka
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	config ProducerConfig
}

// NewProducer creates a new Kafka producer
func NewProducer(config ProducerConfig, logger ectologger.Logger) (*Producer, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	var compression kafka.Compression
	switch config.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "snappy":
		compression = kafka.Snappy
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	default:
		compression = 0 // no compression
	}

	// Topic stays unset on the Writer so each message can carry its own
	// destination topic.
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Balancer:               &kafka.Hash{}, // hash by key for partition affinity
		BatchSize:              config.BatchSize,
		BatchTimeout:           config.BatchTimeout,
		MaxAttempts:            config.MaxAttempts,
		WriteTimeout:           config.WriteTimeout,
		Async:                  config.Async,
		Compression:            compression,
		RequiredAcks:           kafka.RequiredAcks(config.RequiredAcks),
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		config: config,
	}, nil
}

// Publish publishes an alert event to the configured topic
func (p *Producer) Publish(ctx context.Context, event *AlertEvent) error {
	return p.PublishToTopic(ctx, p.config.Topic, event)
}

// PublishToTopic publishes an alert event to a specific topic
func (p *Producer) PublishToTopic(ctx context.Context, topic string, event *AlertEvent) error {
	msg, err := p.buildMessage(topic, event)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordKafkaPublish(topic, "error", time.Since(start).Seconds())
		return fmt.Errorf("failed to publish event: %w", err)
	}
	metrics.RecordKafkaPublish(topic, "success", time.Since(start).Seconds())

	return nil
}

// PublishBatch publishes multiple alert events in one write
func (p *Producer) PublishBatch(ctx context.Context, events []*AlertEvent) error {
	if len(events) == 0 {
		return nil
	}

	kafkaMessages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		msg, err := p.buildMessage(p.config.Topic, event)
		if err != nil {
			p.logger.WithError(err).Error("Failed to serialize event in batch, skipping")
			continue
		}
		kafkaMessages = append(kafkaMessages, msg)
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, kafkaMessages...); err != nil {
		metrics.RecordKafkaPublish(p.config.Topic, "error", time.Since(start).Seconds())
		return fmt.Errorf("failed to publish batch: %w", err)
	}
	metrics.RecordKafkaPublish(p.config.Topic, "success", time.Since(start).Seconds())

	return nil
}

func (p *Producer) buildMessage(topic string, event *AlertEvent) (kafka.Message, error) {
	data, err := event.ToJSON()
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to serialize event: %w", err)
	}

	headers := MessageHeaders{
		EventType: event.Type,
		RunID:     event.RunID,
		EntityID:  event.EntityID,
	}
	if event.TraceID != "" {
		headers.TraceParent = fmt.Sprintf("00-%s-%s-01", event.TraceID, event.SpanID)
	}

	kafkaHeaders := make([]kafka.Header, 0)
	for _, h := range headers.ToKafkaHeaders() {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: h.Key, Value: h.Value})
	}

	return kafka.Message{
		Topic:   topic,
		Key:     []byte(event.EntityID),
		Value:   data,
		Headers: kafkaHeaders,
		Time:    event.OccurredAt,
	}, nil
}

// Close closes the producer
func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close producer: %w", err)
	}
	p.logger.Info("Kafka producer closed")
	return nil
}

// Stats returns producer statistics
func (p *Producer) Stats() kafka.WriterStats {
	return p.writer.Stats()
}
