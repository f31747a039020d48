package events

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// Broadcaster receives relayed events, typically the dashboard hub.
type Broadcaster interface {
	BroadcastJSON(v any) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer relays order events from Kafka to the dashboard.
type Consumer struct {
	reader messageReader
	out    Broadcaster
	topic  string
}

// NewConsumer reads topic as consumer group groupID.
func NewConsumer(brokers []string, topic, groupID string, dialer *kafka.Dialer, out Broadcaster) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		Dialer:      dialer,
	})
	return &Consumer{reader: r, out: out, topic: topic}
}

type relayed struct {
	Type  string `json:"type"`
	Event Event  `json:"event"`
}

// Run blocks until ctx ends. Read errors back off for a second; payloads
// that cannot be decoded are skipped.
func (c *Consumer) Run(ctx context.Context) error {
	logger := log.WithField("topic", c.topic)
	logger.Info("kafka consumer started")
	defer func() {
		if err := c.reader.Close(); err != nil {
			logger.WithError(err).Warn("close kafka reader")
		}
	}()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Info("kafka consumer stopped")
				return nil
			}
			logger.WithError(err).Warn("kafka read")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		e, err := Decode(msg.Value)
		if err != nil {
			logger.WithError(err).WithField("offset", msg.Offset).Debug("skip undecodable event")
			continue
		}
		if err := c.out.BroadcastJSON(relayed{Type: "order_event", Event: e}); err != nil {
			logger.WithError(err).Warn("relay order event")
		}
	}
}
