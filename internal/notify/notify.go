// Package notify delivers engine notifications to users through one or more
// sinks. Delivery is best effort: a sink failure is reported to the caller,
// which records it and moves on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	"golang.org/x/sync/errgroup"
)

const (
	SinkLog   = "log"
	SinkMail  = "mail"
	SinkKafka = "kafka"
	SinkAMQP  = "amqp"
)

type Config struct {
	Sinks []string    `mapstructure:"sinks"`
	Mail  MailConfig  `mapstructure:"mail"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	AMQP  AMQPConfig  `mapstructure:"amqp"`
}

type sink struct {
	name string
	dependency.Notifier
}

// Notifier fans a notification out to every configured sink concurrently.
type Notifier struct {
	sinks   []sink
	closers []io.Closer
}

var _ dependency.Notifier = (*Notifier)(nil)

// New builds the sinks listed in c. The log sink is used when none is listed.
func New(ctx context.Context, c *Config, users dependency.Users) (*Notifier, error) {
	names := c.Sinks
	if len(names) == 0 {
		names = []string{SinkLog}
	}

	n := &Notifier{}
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case SinkLog:
			n.Add(SinkLog, NewLog())
		case SinkMail:
			m, err := NewMailer(&c.Mail, users)
			if err != nil {
				return nil, fmt.Errorf("can't create mail sink: %w", err)
			}
			n.Add(SinkMail, m)
		case SinkKafka:
			k, err := NewKafka(&c.Kafka)
			if err != nil {
				_ = n.Close()
				return nil, fmt.Errorf("can't create kafka sink: %w", err)
			}
			n.Add(SinkKafka, k)
			n.closers = append(n.closers, k)
		case SinkAMQP:
			a, err := NewAMQP(&c.AMQP)
			if err != nil {
				_ = n.Close()
				return nil, fmt.Errorf("can't create amqp sink: %w", err)
			}
			n.Add(SinkAMQP, a)
			n.closers = append(n.closers, a)
		default:
			_ = n.Close()
			return nil, fmt.Errorf("unknown notification sink %q", name)
		}
	}
	return n, nil
}

// Add registers another sink.
func (n *Notifier) Add(name string, s dependency.Notifier) {
	n.sinks = append(n.sinks, sink{name: name, Notifier: s})
}

// Notify delivers note to every sink and joins their errors. One failing
// sink does not stop the others.
func (n *Notifier) Notify(ctx context.Context, note *entity.Notification) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, s := range n.sinks {
		g.Go(func() error {
			if err := s.Notify(ctx, note); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (n *Notifier) Close() error {
	var errs []error
	for _, c := range n.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	n.closers = nil
	return errors.Join(errs...)
}
