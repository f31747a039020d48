package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// NotificationsExchange is the fanout exchange ready notices go to.
const NotificationsExchange = "notifications_fanout"

const publishTimeout = 5 * time.Second

// RabbitClient is one AMQP connection with a confirm-mode channel.
type RabbitClient struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	acks <-chan amqp.Confirmation

	mu sync.Mutex
}

// DialRabbit connects to url (amqp:// or amqps://) and enables publisher
// confirms.
func DialRabbit(url string) (*RabbitClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "enable confirms")
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return &RabbitClient{conn: conn, ch: ch, acks: acks}, nil
}

// DeclareFanout declares a durable fanout exchange.
func (c *RabbitClient) DeclareFanout(name string) error {
	return c.ch.ExchangeDeclare(name, amqp.ExchangeFanout, true, false, false, false, nil)
}

// Ping reports whether the connection is still open.
func (c *RabbitClient) Ping() error {
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// Publish sends one persistent message and waits for the broker's confirm.
// Calls are serialized so acks line up with publishes.
func (c *RabbitClient) Publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    time.Now(),
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return err
	}

	select {
	case conf := <-c.acks:
		if conf.Ack {
			return nil
		}
		return errors.New("publish NACK from broker")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes channel and connection.
func (c *RabbitClient) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Publisher is the part of RabbitClient the sink needs.
type Publisher interface {
	Ping() error
	Publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error
}

// RabbitSink publishes notices to a fanout exchange for downstream
// consumers (SMS, push gateways).
type RabbitSink struct {
	pub      Publisher
	exchange string
}

// NewRabbitSink publishes to exchange via pub.
func NewRabbitSink(pub Publisher, exchange string) *RabbitSink {
	if exchange == "" {
		exchange = NotificationsExchange
	}
	return &RabbitSink{pub: pub, exchange: exchange}
}

func (s *RabbitSink) RequestPermission() bool {
	return s.pub != nil && s.pub.Ping() == nil
}

func (s *RabbitSink) Notify(ctx context.Context, title, body string) {
	msg, err := json.Marshal(newNotification(title, body))
	if err != nil {
		log.WithError(err).Error("encode notification")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := s.pub.Publish(ctx, s.exchange, "", msg, amqp.Table{"type": "order_ready"}); err != nil {
		log.WithError(err).WithField("exchange", s.exchange).Error("publish notification")
	}
}
