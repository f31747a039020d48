package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"canteen/server/internal/models"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Orders    *OrderController
	Carts     *CartController
	Dashboard *DashboardController
	WS        *WSController
	Health    *HealthMonitor
	Timing    *models.MenuTiming
	Tokens    TokenResolver
}

// NewRouter builds the gin engine with every route under /api/v1.
func NewRouter(h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Registered before CORS so load balancer health checks skip it.
	if h.Health != nil {
		r.GET("/api/v1/health", h.Health.Serve)
	}

	r.Use(RequestLogger(), CORS())

	apiGroup := r.Group("/api/v1")
	apiGroup.GET("/menu", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"items": h.Timing.Entries(), "default_minutes": models.DefaultPrepMinutes})
	})

	orders := apiGroup.Group("/orders")
	{
		orders.POST("", h.Orders.CreateOrder)
		orders.GET("/:id", h.Orders.GetOrder)
		orders.GET("/:id/eta", h.Orders.GetETA)
		orders.GET("/:id/history", h.Orders.GetHistory)
		orders.GET("/:id/countdown", h.WS.ServeCountdown)
	}

	sessions := apiGroup.Group("/sessions")
	{
		sessions.POST("", h.Carts.NewSession)
		sessions.DELETE("/:sid", h.Carts.EndSession)
		sessions.GET("/:sid/orders", h.Orders.GetSessionOrders)
		sessions.GET("/:sid/cart", h.Carts.GetCart)
		sessions.POST("/:sid/cart", h.Carts.AddItem)
		sessions.DELETE("/:sid/cart", h.Carts.ClearCart)
		sessions.PUT("/:sid/cart/:name", h.Carts.SetQuantity)
		sessions.DELETE("/:sid/cart/:name", h.Carts.RemoveItem)
	}

	apiGroup.GET("/ws", h.WS.ServeCustomer)

	auth := apiGroup.Group("/auth")
	{
		auth.POST("/login", h.Dashboard.Login)
		auth.POST("/logout", h.Dashboard.Logout)
	}

	dashboard := apiGroup.Group("/dashboard", RequireOwner(h.Tokens))
	{
		dashboard.GET("/orders", h.Dashboard.ListOrders)
		dashboard.POST("/orders/:id/advance", h.Dashboard.AdvanceOrder)
		dashboard.PUT("/orders/:id/status", h.Dashboard.UpdateStatus)
		dashboard.DELETE("/orders/:id", h.Dashboard.DeleteOrder)
		dashboard.GET("/owners", h.Dashboard.ListOwners)
		dashboard.POST("/owners", h.Dashboard.AddOwner)
		dashboard.DELETE("/owners/:username", h.Dashboard.RemoveOwner)
		dashboard.GET("/ws", h.WS.ServeDashboard)
	}

	return r
}
