package services

import (
	"canteen/server/internal/models"
)

// ETAService estimates preparation time for a single serial kitchen.
type ETAService struct {
	timing *models.MenuTiming
}

// NewETAService uses timing for per-item minutes; nil means the default table.
func NewETAService(timing *models.MenuTiming) *ETAService {
	if timing == nil {
		timing = models.DefaultMenuTiming()
	}
	return &ETAService{timing: timing}
}

// Timing returns the table in use.
func (e *ETAService) Timing() *models.MenuTiming { return e.timing }

// PrepMinutes is Σ minutesFor(name) × quantity over the order's lines.
func (e *ETAService) PrepMinutes(o models.Order) int {
	total := 0
	for _, l := range o.Items {
		total += e.timing.MinutesFor(l.Name) * l.Quantity
	}
	return total
}

// Backlog sums PrepMinutes over the non-terminal orders queued ahead of o.
// pending is in queue order; if o is not in it, all of pending is ahead.
func (e *ETAService) Backlog(o models.Order, pending []models.Order) int {
	backlog := 0
	for _, p := range pending {
		if o.ID != "" && p.ID == o.ID {
			break
		}
		if p.Status.IsTerminal() {
			continue
		}
		backlog += e.PrepMinutes(p)
	}
	return backlog
}

// Estimate returns backlog plus the order's own preparation time.
func (e *ETAService) Estimate(o models.Order, pending []models.Order) int {
	return e.Backlog(o, pending) + e.PrepMinutes(o)
}

// Remaining is the live queue estimate for an existing order. It does not
// touch the stored deadline, which is fixed at creation.
func (e *ETAService) Remaining(o models.Order, pending []models.Order) (minutes int, ready bool) {
	if o.Status.IsTerminal() {
		return 0, true
	}
	return e.Estimate(o, pending), false
}
