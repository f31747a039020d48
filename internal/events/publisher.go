package events

import (
	"context"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// Publisher emits order events. Implementations never block the caller on
// broker round trips and never fail the operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, e Event)
	Close() error
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
func (NopPublisher) Close() error                   { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by order id, so one order's events
// stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher creates an async writer for topic.
func NewKafkaPublisher(brokers []string, topic string, dialer *kafka.Dialer) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
		Async:    true,
		Transport: &kafka.Transport{
			SASL: dialer.SASLMechanism,
			TLS:  dialer.TLS,
		},
		AllowAutoTopicCreation: true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.WithError(err).WithField("messages", len(msgs)).Warn("kafka: event delivery failed")
			}
		},
	}
	return &KafkaPublisher{writer: w, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) {
	body, err := Encode(e)
	if err != nil {
		log.WithError(err).WithField("order_id", e.OrderID).Error("encode order event")
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.OrderID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(e.Kind)},
		},
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"order_id": e.OrderID, "topic": p.topic}).Warn("kafka: publish order event")
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
