package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaSender publishes messages to a topic consumed by the mail worker
type KafkaSender struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaSender wraps an existing producer
func NewKafkaSender(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaSender {
	return &KafkaSender{producer: producer, topic: topic, logger: logger}
}

// NewKafkaProducer connects a synchronous producer that waits for all
// in-sync replicas to acknowledge each message.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to start kafka producer: %w", err)
	}
	return producer, nil
}

func (s *KafkaSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	partition, offset, err := s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(msg.To),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	s.logger.Debug("Published notification",
		zap.String("topic", s.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close releases the underlying producer
func (s *KafkaSender) Close() error {
	return s.producer.Close()
}
