package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"canteen/server/internal/services"
)

// OrderController serves order submission and the customer read side.
type OrderController struct {
	orders *services.OrderService
}

func NewOrderController(orders *services.OrderService) *OrderController {
	return &OrderController{orders: orders}
}

// CreateOrder submits a session cart or inline items.
// POST /api/v1/orders
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var req services.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := oc.orders.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// GetOrder returns one order.
// GET /api/v1/orders/:id
func (oc *OrderController) GetOrder(c *gin.Context) {
	order, stale, err := oc.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, staleness(gin.H{"order": order}, stale, oc.orders))
}

// GetETA returns the live queue estimate and countdown display.
// GET /api/v1/orders/:id/eta
func (oc *OrderController) GetETA(c *gin.Context) {
	view, err := oc.orders.LiveETA(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetHistory returns the recorded status transitions of an order.
// GET /api/v1/orders/:id/history
func (oc *OrderController) GetHistory(c *gin.Context) {
	id := c.Param("id")
	changes, err := oc.orders.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": id, "changes": changes})
}

// GetSessionOrders lists the purchase activity of one session, newest first.
// GET /api/v1/sessions/:sid/orders
func (oc *OrderController) GetSessionOrders(c *gin.Context) {
	orders, stale, err := oc.orders.ForSession(c.Request.Context(), c.Param("sid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, staleness(gin.H{"orders": orders, "count": len(orders)}, stale, oc.orders))
}

// staleness marks a response served from the snapshot and says how old it is.
func staleness(h gin.H, stale bool, orders *services.OrderService) gin.H {
	h["stale"] = stale
	if stale {
		h["stale_since"] = orders.SnapshotAt()
	}
	return h
}
