package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	amqp "github.com/rabbitmq/amqp091-go"
)

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQP publishes notifications on a topic exchange with the kind as routing key.
type AMQP struct {
	conn     *amqp.Connection
	ch       publisher
	exchange string
}

func NewAMQP(c *AMQPConfig) (*AMQP, error) {
	if c.URL == "" || c.Exchange == "" {
		return nil, fmt.Errorf("amqp url and exchange are required")
	}
	conn, err := amqp.Dial(c.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(c.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQP{conn: conn, ch: ch, exchange: c.Exchange}, nil
}

func (a *AMQP) Notify(ctx context.Context, n *entity.Notification) error {
	bs, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("can't encode notification: %w", err)
	}
	err = a.ch.PublishWithContext(ctx, a.exchange, string(n.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         bs,
	})
	if err != nil {
		return fmt.Errorf("can't publish notification: %w", err)
	}
	return nil
}

func (a *AMQP) Close() error {
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
