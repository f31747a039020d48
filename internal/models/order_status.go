package models

import "strings"

// OrderStatus is a lifecycle state. Orders only move forward:
// new -> processing -> ready -> done.
type OrderStatus string

const (
	StatusNew        OrderStatus = "new"
	StatusProcessing OrderStatus = "processing"
	StatusReady      OrderStatus = "ready"
	StatusDone       OrderStatus = "done"
)

var statusRank = map[OrderStatus]int{
	StatusNew:        0,
	StatusProcessing: 1,
	StatusReady:      2,
	StatusDone:       3,
}

// ParseOrderStatus normalizes canonical values, "cooking" and the labels the
// storefront and dashboard used to write.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "new", "", "waiting":
		return StatusNew, true
	case "processing", "process", "cooking", "diproses", "dimasak":
		return StatusProcessing, true
	case "ready", "siap diambil":
		return StatusReady, true
	case "done", "selesai":
		return StatusDone, true
	}
	return "", false
}

// Valid reports whether s is one of the four canonical states.
func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsTerminal reports ready or done.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusDone
}

// Next returns the single forward step from s.
func (s OrderStatus) Next() (OrderStatus, bool) {
	switch s {
	case StatusNew:
		return StatusProcessing, true
	case StatusProcessing:
		return StatusReady, true
	case StatusReady:
		return StatusDone, true
	}
	return "", false
}

// Before reports whether s comes earlier in the chain than other.
func (s OrderStatus) Before(other OrderStatus) bool {
	return statusRank[s] < statusRank[other]
}

// CanTransition allows exactly one forward step.
func CanTransition(from, to OrderStatus) bool {
	next, ok := from.Next()
	return ok && next == to
}
