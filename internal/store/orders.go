package store

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"canteen/server/internal/models"
)

const (
	ordersPrefix     = "orders/"
	legacyOrdersPath = "orders"
)

// OrderPath returns the store path of one order record.
func OrderPath(id string) string { return ordersPrefix + id }

// OrderRepository is the only place that knows how orders are laid out in
// the store. Reads accept every shape older clients wrote; writes always use
// the canonical models.Order encoding, one record per orders/{id}.
type OrderRepository struct {
	store Store
}

// NewOrderRepository creates a repository over s.
func NewOrderRepository(s Store) *OrderRepository {
	return &OrderRepository{store: s}
}

// All returns every order in queue order (earliest CreatedAt first).
func (r *OrderRepository) All(ctx context.Context) ([]models.Order, error) {
	docs, err := r.store.List(ctx, ordersPrefix)
	if err != nil {
		return nil, err
	}
	orders := make([]models.Order, 0, len(docs))
	for path, raw := range docs {
		o, err := decodeOrder(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
		if o.ID == "" {
			o.ID = Base(path)
		}
		orders = append(orders, o)
	}
	sortQueue(orders)
	return orders, nil
}

// Get loads one order.
func (r *OrderRepository) Get(ctx context.Context, id string) (models.Order, error) {
	var raw json.RawMessage
	if err := r.store.Get(ctx, OrderPath(id), &raw); err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.Order{}, &models.NotFoundError{ID: id}
		}
		return models.Order{}, err
	}
	o, err := decodeOrder(raw)
	if err != nil {
		return models.Order{}, errors.Wrapf(err, "decode order %s", id)
	}
	if o.ID == "" {
		o.ID = id
	}
	return o, nil
}

// Save writes the whole record.
func (r *OrderRepository) Save(ctx context.Context, o models.Order) error {
	return r.store.Set(ctx, OrderPath(o.ID), o)
}

// UpdateStatus is a single-record partial write of status and updated_at.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) error {
	err := r.store.Update(ctx, OrderPath(id), map[string]any{
		"status":     status,
		"updated_at": at.UTC().Format(time.RFC3339Nano),
	})
	if errors.Is(err, ErrNotFound) {
		return &models.NotFoundError{ID: id}
	}
	return err
}

// Delete removes the record. Missing ids are not an error here.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	return r.store.Remove(ctx, OrderPath(id))
}

// MigrateLegacy splits a whole-collection "orders" document, as written by
// the first storefront, into canonical per-id records and removes it.
func (r *OrderRepository) MigrateLegacy(ctx context.Context) (int, error) {
	var raw json.RawMessage
	if err := r.store.Get(ctx, legacyOrdersPath, &raw); err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	orders, err := decodeCollection(raw)
	if err != nil {
		return 0, errors.Wrap(err, "decode legacy orders")
	}
	for _, o := range orders {
		if err := r.Save(ctx, o); err != nil {
			return 0, err
		}
	}
	if err := r.store.Remove(ctx, legacyOrdersPath); err != nil {
		return len(orders), err
	}
	return len(orders), nil
}

func sortQueue(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return idBefore(orders[i].ID, orders[j].ID)
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}

// idBefore orders ids of the form ORD-<millis>-<seq>-<suffix> by their
// numeric parts, so seq 10 follows seq 2. Other ids compare as strings.
func idBefore(a, b string) bool {
	am, as, aok := idNumbers(a)
	bm, bs, bok := idNumbers(b)
	switch {
	case aok && bok:
		if am != bm {
			return am < bm
		}
		if as != bs {
			return as < bs
		}
		return a < b
	case aok != bok:
		return aok
	}
	return a < b
}

func idNumbers(id string) (millis, seq int64, ok bool) {
	parts := strings.Split(id, "-")
	if len(parts) < 3 || parts[0] != "ORD" {
		return 0, 0, false
	}
	millis, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	seq, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return millis, seq, true
}

// decodeCollection accepts a JSON array of orders or an object keyed by id.
func decodeCollection(raw []byte) ([]models.Order, error) {
	raw = bytes.TrimSpace(raw)
	var list []json.RawMessage
	var keys []string

	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return nil, nil
	case raw[0] == '[':
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
	case raw[0] == '{':
		var items map[string]json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		for k := range items {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			list = append(list, items[k])
		}
	default:
		return nil, errors.New("orders collection is neither array nor object")
	}

	out := make([]models.Order, 0, len(list))
	for i, item := range list {
		o, err := decodeOrder(item)
		if err != nil {
			return nil, errors.Wrapf(err, "order #%d", i)
		}
		if o.ID == "" && keys != nil {
			o.ID = keys[i]
		}
		if o.ID == "" {
			continue
		}
		out = append(out, o)
	}
	sortQueue(out)
	return out, nil
}

// storedOrder lists canonical and legacy field names side by side.
type storedOrder struct {
	ID            string       `json:"id"`
	CustomerName  string       `json:"customer_name"`
	Name          string       `json:"name"`
	Contact       string       `json:"contact"`
	Note          string       `json:"note"`
	Items         []storedLine `json:"items"`
	PaymentMethod string       `json:"payment_method"`
	Payment       string       `json:"payment"`
	Total         flexInt      `json:"total"`
	Status        string       `json:"status"`
	CreatedAt     *time.Time   `json:"created_at"`
	CreatedAtJS   *time.Time   `json:"createdAt"`
	UpdatedAt     *time.Time   `json:"updated_at"`
	ETAMinutes    flexInt      `json:"eta_minutes"`
	ETAText       flexInt      `json:"eta"`
	ETADeadline   *time.Time   `json:"eta_deadline"`
	ETATimestamp  flexInt      `json:"etaTimestamp"`
	SessionID     string       `json:"session_id"`
}

type storedLine struct {
	Name      string  `json:"name"`
	UnitPrice flexInt `json:"unit_price"`
	Price     flexInt `json:"price"`
	Quantity  flexInt `json:"quantity"`
	Qty       flexInt `json:"qty"`
	ImageRef  string  `json:"image_ref"`
	Img       string  `json:"img"`
}

func decodeOrder(raw []byte) (models.Order, error) {
	var s storedOrder
	if err := json.Unmarshal(raw, &s); err != nil {
		return models.Order{}, err
	}

	o := models.Order{
		ID:           s.ID,
		CustomerName: firstNonEmpty(s.CustomerName, s.Name),
		Contact:      s.Contact,
		Note:         s.Note,
		Total:        int64(s.Total),
		ETAMinutes:   int(firstNonZero(s.ETAMinutes, s.ETAText)),
		SessionID:    s.SessionID,
	}

	o.Items = make([]models.CartLine, 0, len(s.Items))
	for _, l := range s.Items {
		qty := int(firstNonZero(l.Quantity, l.Qty))
		if qty == 0 {
			qty = 1
		}
		o.Items = append(o.Items, models.CartLine{
			Name:      l.Name,
			UnitPrice: int64(firstNonZero(l.UnitPrice, l.Price)),
			Quantity:  qty,
			ImageRef:  firstNonEmpty(l.ImageRef, l.Img),
		})
	}
	if o.Total == 0 {
		o.Total = models.SumLines(o.Items)
	}

	payment := firstNonEmpty(s.PaymentMethod, s.Payment)
	if pm, ok := models.ParsePaymentMethod(payment); ok {
		o.PaymentMethod = pm
	} else {
		o.PaymentMethod = models.PaymentMethod(payment)
	}

	if st, ok := models.ParseOrderStatus(s.Status); ok {
		o.Status = st
	} else {
		o.Status = models.StatusNew
	}

	switch {
	case s.CreatedAt != nil:
		o.CreatedAt = *s.CreatedAt
	case s.CreatedAtJS != nil:
		o.CreatedAt = *s.CreatedAtJS
	}
	o.UpdatedAt = o.CreatedAt
	if s.UpdatedAt != nil {
		o.UpdatedAt = *s.UpdatedAt
	}

	switch {
	case s.ETADeadline != nil:
		o.ETADeadline = *s.ETADeadline
	case s.ETATimestamp > 0:
		o.ETADeadline = time.UnixMilli(int64(s.ETATimestamp)).UTC()
	case !o.CreatedAt.IsZero():
		o.ETADeadline = o.CreatedAt.Add(time.Duration(o.ETAMinutes) * time.Minute)
	}
	return o, nil
}

// flexInt decodes JSON numbers and strings such as "Rp 15.000" or "15 menit".
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] != '"' {
		n, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return err
		}
		*f = flexInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*f = flexInt(leadingDigits(s))
	return nil
}

// leadingDigits reads the first run of digits, skipping thousands dots,
// so "Rp 15.000" is 15000 and "30 menit" is 30.
func leadingDigits(s string) int64 {
	var n int64
	seen := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seen = true
			n = n*10 + int64(r-'0')
		case seen && (r == '.' || r == ','):
			continue
		case seen:
			return n
		}
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(vals ...flexInt) flexInt {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
