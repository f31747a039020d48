// Package events publishes order lifecycle events to Kafka and relays them
// to the owner dashboard.
package events

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Kind names an order event.
type Kind string

const (
	KindCreated       Kind = "order.created"
	KindStatusChanged Kind = "order.status_changed"
	KindDeleted       Kind = "order.deleted"
)

// Event is one order lifecycle fact.
type Event struct {
	Kind         Kind      `json:"kind"`
	OrderID      string    `json:"order_id"`
	CustomerName string    `json:"customer_name,omitempty"`
	OldStatus    string    `json:"old_status,omitempty"`
	NewStatus    string    `json:"new_status,omitempty"`
	Actor        string    `json:"actor,omitempty"`
	Total        int64     `json:"total,omitempty"`
	At           time.Time `json:"at"`
}

// Encode marshals e as a protobuf Struct.
func Encode(e Event) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"kind":          string(e.Kind),
		"order_id":      e.OrderID,
		"customer_name": e.CustomerName,
		"old_status":    e.OldStatus,
		"new_status":    e.NewStatus,
		"actor":         e.Actor,
		"total":         float64(e.Total),
		"at":            e.At.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, errors.Wrap(err, "build event struct")
	}
	return proto.Marshal(s)
}

// Decode reads a protobuf Struct payload, falling back to JSON for
// producers that never switched to protobuf.
func Decode(b []byte) (Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err == nil {
		if e := fromStruct(&s); e.Kind != "" {
			return e, nil
		}
	}

	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, errors.Wrap(err, "decode event")
	}
	if e.Kind == "" {
		return Event{}, errors.New("decode event: missing kind")
	}
	return e, nil
}

func fromStruct(s *structpb.Struct) Event {
	f := s.GetFields()
	str := func(k string) string { return f[k].GetStringValue() }

	e := Event{
		Kind:         Kind(str("kind")),
		OrderID:      str("order_id"),
		CustomerName: str("customer_name"),
		OldStatus:    str("old_status"),
		NewStatus:    str("new_status"),
		Actor:        str("actor"),
		Total:        int64(f["total"].GetNumberValue()),
	}
	if at, err := time.Parse(time.RFC3339Nano, str("at")); err == nil {
		e.At = at
	}
	return e
}
