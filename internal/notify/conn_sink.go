package notify

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// ConnSink writes frames and notices to a single websocket. Permission is
// granted until Close.
type ConnSink struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func NewConnSink(conn *websocket.Conn) *ConnSink {
	return &ConnSink{conn: conn}
}

// WriteJSON sends v as one text frame.
func (s *ConnSink) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// Close stops further writes. The connection itself is left to its owner.
func (s *ConnSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *ConnSink) RequestPermission() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *ConnSink) Notify(_ context.Context, title, body string) {
	if err := s.WriteJSON(newNotification(title, body)); err != nil {
		log.WithError(err).Debug("notification not delivered to websocket")
	}
}
