package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes notifications as JSON keyed by user id, so the messages of
// one user stay ordered within a partition.
type Kafka struct {
	w messageWriter
}

func NewKafka(c *KafkaConfig) (*Kafka, error) {
	if len(c.Brokers) == 0 || c.Topic == "" {
		return nil, fmt.Errorf("kafka brokers and topic are required")
	}
	timeout := c.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Kafka{
		w: &kafka.Writer{
			Addr:         kafka.TCP(c.Brokers...),
			Topic:        c.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: timeout,
		},
	}, nil
}

func (k *Kafka) Notify(ctx context.Context, n *entity.Notification) error {
	bs, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("can't encode notification: %w", err)
	}
	err = k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.UserId),
		Value: bs,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(n.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("can't publish notification: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.w.Close()
}
