package models

import "time"

// StatusChange is one row of the order status audit trail.
type StatusChange struct {
	OrderID   string      `json:"order_id"`
	From      OrderStatus `json:"old_status"`
	To        OrderStatus `json:"new_status"`
	ChangedBy string      `json:"changed_by"`
	ChangedAt time.Time   `json:"changed_at"`
}
