// Package notify delivers "order ready" notices to whoever is listening:
// customer browser sessions over websocket, downstream services over
// RabbitMQ, or the log.
package notify

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Sink is a fire-and-forget notification channel. Delivery failures are
// logged by the sink and never returned to the caller.
type Sink interface {
	// RequestPermission reports whether notices can currently be shown.
	RequestPermission() bool
	Notify(ctx context.Context, title, body string)
}

// Notification is the wire shape used by the push sinks.
type Notification struct {
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

func newNotification(title, body string) Notification {
	return Notification{Type: "notification", Title: title, Body: body, Timestamp: time.Now().UTC()}
}

// MultiSink fans a notice out to every member that grants permission.
type MultiSink []Sink

func (m MultiSink) RequestPermission() bool {
	for _, s := range m {
		if s.RequestPermission() {
			return true
		}
	}
	return false
}

func (m MultiSink) Notify(ctx context.Context, title, body string) {
	for _, s := range m {
		if s.RequestPermission() {
			s.Notify(ctx, title, body)
		}
	}
}

// LogSink writes notices to the log. It is always permitted.
type LogSink struct {
	Logger log.FieldLogger
}

func (l LogSink) RequestPermission() bool { return true }

func (l LogSink) Notify(_ context.Context, title, body string) {
	logger := l.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger.WithFields(log.Fields{"title": title, "body": body}).Info("notification")
}
