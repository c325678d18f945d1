// Package amqpbus publishes engine events to a RabbitMQ fanout exchange consumed
// by the email and SMS workers.
package amqpbus

import (
	"context"
	"sync"

	"github.com/streadway/amqp"

	"github.com/wrenchhub/wrenchhub/internal/domain/notification"
)

// DefaultExchange is used when no exchange name is configured.
const DefaultExchange = "wrenchhub.events"

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Sink implements notification.Sink. The exchange is declared once.
type Sink struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	declared bool
}

// Dial connects to the broker and opens a channel.
func Dial(url, exchange string) (*Sink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	s := newSink(ch, exchange)
	s.conn = conn
	return s, nil
}

func newSink(ch channel, exchange string) *Sink {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Sink{ch: ch, exchange: exchange}
}

func (s *Sink) Name() string { return "amqp" }

// Publish sends the event with its type as the message type. The channel is not
// safe for concurrent use, so publishes are serialized.
func (s *Sink) Publish(ctx context.Context, event notification.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := event.Marshal()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.declared {
		if err := s.ch.ExchangeDeclare(s.exchange, "fanout", true, false, false, false, nil); err != nil {
			return err
		}
		s.declared = true
	}
	return s.ch.Publish(s.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID.String(),
		Type:         string(event.Type),
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
}

// Close closes the channel and connection.
func (s *Sink) Close() {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}
