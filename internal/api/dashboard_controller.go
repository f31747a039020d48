package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"canteen/server/internal/models"
	"canteen/server/internal/services"
)

// DashboardController serves the owner dashboard: the order queue, status
// changes and account management.
type DashboardController struct {
	orders     *services.OrderService
	lifecycle  *services.Lifecycle
	owners     *services.OwnerService
	dispatcher *services.Dispatcher
}

func NewDashboardController(orders *services.OrderService, lifecycle *services.Lifecycle, owners *services.OwnerService, dispatcher *services.Dispatcher) *DashboardController {
	return &DashboardController{
		orders:     orders,
		lifecycle:  lifecycle,
		owners:     owners,
		dispatcher: dispatcher,
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login POST /api/v1/auth/login
func (dc *DashboardController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	token, err := dc.owners.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "username": req.Username})
}

// Logout POST /api/v1/auth/logout
func (dc *DashboardController) Logout(c *gin.Context) {
	if err := dc.owners.Logout(c.Request.Context(), bearerToken(c.GetHeader("Authorization"))); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListOrders returns the whole queue in creation order.
// GET /api/v1/dashboard/orders
func (dc *DashboardController) ListOrders(c *gin.Context) {
	orders, stale, err := dc.orders.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if status := c.Query("status"); status != "" {
		want, ok := models.ParseOrderStatus(status)
		if !ok {
			respondError(c, &models.ValidationError{Reason: "unknown status " + status})
			return
		}
		filtered := orders[:0]
		for _, o := range orders {
			if o.Status == want {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}
	c.JSON(http.StatusOK, staleness(gin.H{"orders": orders, "count": len(orders)}, stale, dc.orders))
}

// AdvanceOrder moves an order one step forward.
// POST /api/v1/dashboard/orders/:id/advance
func (dc *DashboardController) AdvanceOrder(c *gin.Context) {
	order, err := dc.lifecycle.Advance(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// UpdateStatus sets an explicit forward status. Legacy labels are accepted.
// PUT /api/v1/dashboard/orders/:id/status
func (dc *DashboardController) UpdateStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	to, ok := models.ParseOrderStatus(req.Status)
	if !ok {
		respondError(c, &models.ValidationError{Reason: "unknown status " + req.Status})
		return
	}
	order, err := dc.lifecycle.Transition(c.Request.Context(), actorFrom(c), c.Param("id"), to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// DeleteOrder removes an order in any status and stops its countdowns.
// DELETE /api/v1/dashboard/orders/:id
func (dc *DashboardController) DeleteOrder(c *gin.Context) {
	id := c.Param("id")
	if err := dc.lifecycle.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	if n := dc.dispatcher.StopOrder(id); n > 0 {
		log.WithFields(log.Fields{"order_id": id, "countdowns": n}).Info("stopped countdowns of deleted order")
	}
	c.Status(http.StatusNoContent)
}

// ListOwners GET /api/v1/dashboard/owners
func (dc *DashboardController) ListOwners(c *gin.Context) {
	owners, err := dc.owners.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(owners))
	for i := range owners {
		out = append(out, owners[i].ToMap())
	}
	c.JSON(http.StatusOK, gin.H{"owners": out, "primary": dc.owners.Primary()})
}

// AddOwner POST /api/v1/dashboard/owners
func (dc *DashboardController) AddOwner(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Name     string `json:"name"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := dc.owners.Add(c.Request.Context(), actorFrom(c), req.Username, req.Name, req.Password); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"username": req.Username})
}

// RemoveOwner DELETE /api/v1/dashboard/owners/:username
func (dc *DashboardController) RemoveOwner(c *gin.Context) {
	if err := dc.owners.Remove(c.Request.Context(), actorFrom(c), c.Param("username")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
