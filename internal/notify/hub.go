package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

// Hub broadcasts text frames to a set of websocket clients. One hub serves
// customer sessions and another the owner dashboard. Clients carry a tag
// (the customer session id) so a message can target one session.
type Hub struct {
	name      string
	clients   map[*websocket.Conn]string
	broadcast chan envelope
	mu        sync.RWMutex
}

type envelope struct {
	tag string
	msg []byte
}

// NewHub creates a hub; call Run to start delivering.
func NewHub(name string) *Hub {
	return &Hub{
		name:      name,
		clients:   make(map[*websocket.Conn]string),
		broadcast: make(chan envelope, 256),
	}
}

// Run delivers queued messages until ctx ends, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

func (h *Hub) deliver(env envelope) {
	h.mu.RLock()
	var failed []*websocket.Conn
	for c, tag := range h.clients {
		if env.tag != "" && env.tag != tag {
			continue
		}
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, env.msg); err != nil {
			failed = append(failed, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range failed {
		log.WithField("hub", h.name).Debug("dropping websocket client after write error")
		h.RemoveClient(c)
	}
}

// AddClient registers a connection under tag. An empty tag only receives
// untargeted broadcasts.
func (h *Hub) AddClient(conn *websocket.Conn, tag string) {
	h.mu.Lock()
	h.clients[conn] = tag
	h.mu.Unlock()
}

// RemoveClient unregisters and closes a connection.
func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		_ = conn.Close()
	}
	h.mu.Unlock()
}

// Broadcast queues msg for every client. A full queue drops the message.
func (h *Hub) Broadcast(msg []byte) bool {
	return h.BroadcastTo("", msg)
}

// BroadcastTo queues msg for the clients tagged tag, or for everyone when
// tag is empty.
func (h *Hub) BroadcastTo(tag string, msg []byte) bool {
	select {
	case h.broadcast <- envelope{tag: tag, msg: msg}:
		return true
	default:
		log.WithField("hub", h.name).Warn("broadcast queue full, message dropped")
		return false
	}
}

// BroadcastJSON encodes v and queues it.
func (h *Hub) BroadcastJSON(v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// ClientsCount returns the number of connected clients.
func (h *Hub) ClientsCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TagCount returns the number of clients connected under tag.
func (h *Hub) TagCount(tag string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, t := range h.clients {
		if t == tag {
			n++
		}
	}
	return n
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.Close()
		delete(h.clients, c)
	}
}

// HubSink pushes notices to browser sessions. With a Tag it targets one
// session; permission is granted while a matching client is connected.
type HubSink struct {
	Hub *Hub
	Tag string
}

func (s HubSink) RequestPermission() bool {
	if s.Hub == nil {
		return false
	}
	if s.Tag == "" {
		return s.Hub.ClientsCount() > 0
	}
	return s.Hub.TagCount(s.Tag) > 0
}

func (s HubSink) Notify(_ context.Context, title, body string) {
	msg, err := json.Marshal(newNotification(title, body))
	if err != nil {
		log.WithError(err).Error("encode notification")
		return
	}
	s.Hub.BroadcastTo(s.Tag, msg)
}
