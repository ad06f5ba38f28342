package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go" // RabbitMQ client
	"github.com/sirupsen/logrus"          // Logrus for structured logging
)

// Publisher delivers domain events. Implementations must be safe for
// concurrent use. A publish failure never undoes a committed transaction.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
	Close()
}

// broker is the part of an AMQP connection the publisher uses.
type broker interface {
	IsClosed() bool
	Channel() (channel, error)
	Close() error
}

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpBroker struct{ *amqp.Connection }

func (b amqpBroker) Channel() (channel, error) {
	ch, err := b.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialBroker(url string) (broker, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	return amqpBroker{conn}, nil
}

// RabbitPublisher publishes JSON messages to a durable topic exchange. A
// dropped connection is redialled on the next publish.
type RabbitPublisher struct {
	mu       sync.Mutex
	url      string
	dial     func(url string) (broker, error)
	conn     broker
	channel  channel // nil after a failed reopen
	exchange string
}

// NewRabbitPublisher dials the broker and declares the exchange.
func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "amqp://") && !strings.HasPrefix(url, "amqps://") {
		return nil, errors.New("AMQP URL must start with amqp:// or amqps://")
	}
	return newRabbitPublisher(url, exchange, dialBroker)
}

func newRabbitPublisher(url, exchange string, dial func(string) (broker, error)) (*RabbitPublisher, error) {
	p := &RabbitPublisher{url: url, dial: dial, exchange: exchange}
	if err := p.reopen(); err != nil {
		if p.conn != nil {
			p.conn.Close()
		}
		return nil, err
	}
	return p, nil
}

// reopen replaces the channel, redialling first when the connection is gone.
// The caller holds p.mu.
func (p *RabbitPublisher) reopen() error {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		if p.conn != nil {
			_ = p.conn.Close()
			p.conn = nil
		}
		conn, err := p.dial(p.url)
		if err != nil {
			return fmt.Errorf("dial rabbitmq: %w", err)
		}
		p.conn = conn
		logrus.WithField("exchange", p.exchange).Info("connected to rabbitmq")
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	); err != nil {
		ch.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.channel = ch
	return nil
}

// Publish sends body as JSON. A failed publish reopens the channel, redialling
// a closed connection, and retries once.
func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil && p.conn != nil && !p.conn.IsClosed() {
		err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
		if err == nil {
			return nil
		}
	} else {
		err = amqp.ErrClosed
	}
	logrus.WithFields(logrus.Fields{
		"exchange":    p.exchange,
		"routing_key": routingKey,
		"error":       err,
	}).Warn("publish failed, reopening channel")
	if rerr := p.reopen(); rerr != nil {
		return rerr
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

func (p *RabbitPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// Fallback drops events. It is used when no broker is configured or reachable.
type Fallback struct{}

func (Fallback) Publish(_ context.Context, routingKey string, _ any) error {
	logrus.WithField("routing_key", routingKey).Debug("event publish skipped, no broker")
	return nil
}

func (Fallback) Close() {}

// Connect returns a RabbitMQ publisher, or the fallback when url is empty or
// the broker cannot be reached.
func Connect(url, exchange string) Publisher {
	if strings.TrimSpace(url) == "" {
		logrus.Info("RABBITMQ_URL not set, domain events disabled")
		return Fallback{}
	}
	p, err := NewRabbitPublisher(url, exchange)
	if err != nil {
		logrus.WithError(err).Warn("rabbitmq unavailable, domain events disabled")
		return Fallback{}
	}
	logrus.WithField("exchange", exchange).Info("publishing domain events to rabbitmq")
	return p
}

// Emit publishes with a bounded timeout and only logs failures. It ignores
// cancellation of ctx so an abandoned request still announces its commit.
func Emit(ctx context.Context, p Publisher, routingKey string, body any) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.Publish(ctx, routingKey, body); err != nil {
		logrus.WithFields(logrus.Fields{
			"routing_key": routingKey,
			"error":       err,
		}).Warn("failed to publish event")
	}
}
