package services

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"canteen/server/internal/models"
)

// OrderBuilder turns a cart snapshot into a new order. It does not persist.
type OrderBuilder struct {
	eta   *ETAService
	clock Clock
	seq   atomic.Uint64
}

// NewOrderBuilder creates a builder.
func NewOrderBuilder(eta *ETAService, clock Clock) *OrderBuilder {
	if clock == nil {
		clock = SystemClock
	}
	return &OrderBuilder{eta: eta, clock: clock}
}

// Build validates the input and returns an order with status new, a deep
// copy of cart, its total and a queue-aware ETA against pending.
func (b *OrderBuilder) Build(cart []models.CartLine, customerName, contact, note, payment string, pending []models.Order) (models.Order, error) {
	if len(cart) == 0 {
		return models.Order{}, &models.ValidationError{Reason: "empty cart"}
	}
	name := strings.TrimSpace(customerName)
	if name == "" {
		return models.Order{}, &models.ValidationError{Reason: "missing name"}
	}
	method, ok := models.ParsePaymentMethod(payment)
	if !ok {
		return models.Order{}, &models.ValidationError{Reason: "missing payment method"}
	}
	for _, l := range cart {
		if l.Quantity < 1 {
			return models.Order{}, &models.ValidationError{Reason: "invalid quantity"}
		}
		if l.UnitPrice < 0 {
			return models.Order{}, &models.ValidationError{Reason: "invalid price"}
		}
	}

	now := b.clock.Now().UTC()
	items := models.CopyLines(cart)
	o := models.Order{
		ID:            b.nextID(now),
		CustomerName:  name,
		Contact:       strings.TrimSpace(contact),
		Note:          strings.TrimSpace(note),
		Items:         items,
		PaymentMethod: method,
		Total:         models.SumLines(items),
		Status:        models.StatusNew,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	o.ETAMinutes = b.eta.Estimate(o, pending)
	o.ETADeadline = now.Add(time.Duration(o.ETAMinutes) * time.Minute)
	return o, nil
}

// nextID is ORD-<millis>-<seq>-<4 hex>. The sequence makes ids unique in
// this process; the random suffix separates processes.
func (b *OrderBuilder) nextID(now time.Time) string {
	seq := b.seq.Add(1)
	return fmt.Sprintf("ORD-%d-%d-%s", now.UnixMilli(), seq, uuid.NewString()[:4])
}
