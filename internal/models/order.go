package models

import (
	"strings"
	"time"
)

// PaymentMethod is how the customer pays at pickup.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentEWallet      PaymentMethod = "e_wallet"
)

// ParsePaymentMethod accepts canonical values and the storefront's labels.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cash", "tunai":
		return PaymentCash, true
	case "bank_transfer", "bank-transfer", "bank", "transfer":
		return PaymentBankTransfer, true
	case "e_wallet", "e-wallet", "ewallet":
		return PaymentEWallet, true
	}
	return "", false
}

// CartLine is one menu item in a cart or a placed order. Prices are Rupiah.
type CartLine struct {
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	ImageRef  string `json:"image_ref,omitempty"`
}

// Subtotal returns UnitPrice × Quantity.
func (l CartLine) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// Order is a submitted canteen order.
type Order struct {
	ID            string        `json:"id"`
	CustomerName  string        `json:"customer_name"`
	Contact       string        `json:"contact,omitempty"`
	Note          string        `json:"note,omitempty"`
	Items         []CartLine    `json:"items"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Total         int64         `json:"total"`
	Status        OrderStatus   `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	ETAMinutes    int           `json:"eta_minutes"`
	ETADeadline   time.Time     `json:"eta_deadline"`
	SessionID     string        `json:"session_id,omitempty"`
}

// CopyLines returns a deep copy of lines.
func CopyLines(lines []CartLine) []CartLine {
	out := make([]CartLine, len(lines))
	copy(out, lines)
	return out
}

// SumLines returns Σ UnitPrice × Quantity.
func SumLines(lines []CartLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.Subtotal()
	}
	return total
}

// Clone returns a copy that shares no slices with o.
func (o Order) Clone() Order {
	o.Items = CopyLines(o.Items)
	return o
}

// IsTerminal reports whether the order no longer occupies the kitchen.
func (o Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}
