package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/wolfman30/barber-booking/internal/events"
	"github.com/wolfman30/barber-booking/pkg/logging"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSender publishes event envelopes to a topic exchange, routed by event type.
type AMQPSender struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	logger   *logging.Logger
}

// NewAMQPSender dials the broker and declares a durable topic exchange.
func NewAMQPSender(url, exchange string, logger *logging.Logger) (*AMQPSender, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify: dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("notify: declare exchange: %w", err)
	}
	s := newAMQPSenderWithChannel(ch, exchange, logger)
	s.conn = conn
	return s, nil
}

func newAMQPSenderWithChannel(ch amqpChannel, exchange string, logger *logging.Logger) *AMQPSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &AMQPSender{ch: ch, exchange: exchange, logger: logger}
}

func (s *AMQPSender) Send(ctx context.Context, userID string, evt events.CanonicalEvent) error {
	env, err := events.NewEnvelope(events.AggregateFor(evt), evt, events.WithRecipient(userID))
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("notify: marshal envelope: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.ch.PublishWithContext(ctx, s.exchange, env.EventType, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.EventID.String(),
		Timestamp:    time.Now().UTC(),
		Type:         env.EventType,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("notify: publish %s: %w", env.EventType, err)
	}
	s.logger.Debug("event published", "event_type", env.EventType, "user_id", userID, "exchange", s.exchange)
	return nil
}

func (s *AMQPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

var _ Sender = (*AMQPSender)(nil)
