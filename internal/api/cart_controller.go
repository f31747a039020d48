package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"canteen/server/internal/models"
	"canteen/server/internal/services"
)

// CartController edits the cart held in a customer session.
type CartController struct {
	sessions *services.SessionService
}

func NewCartController(sessions *services.SessionService) *CartController {
	return &CartController{sessions: sessions}
}

type cartView struct {
	SessionID string            `json:"session_id"`
	Items     []models.CartLine `json:"items"`
	Count     int               `json:"count"`
	Total     int64             `json:"total"`
}

func viewOf(s services.Session) cartView {
	items := s.Cart
	if items == nil {
		items = []models.CartLine{}
	}
	return cartView{SessionID: s.ID, Items: items, Count: s.CartCount(), Total: s.CartTotal()}
}

func (cc *CartController) reply(c *gin.Context, sess services.Session, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(sess))
}

// NewSession hands out a fresh session id.
// POST /api/v1/sessions
func (cc *CartController) NewSession(c *gin.Context) {
	sess, err := cc.sessions.Get(c.Request.Context(), cc.sessions.NewID())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(sess))
}

// GetCart GET /api/v1/sessions/:sid/cart
func (cc *CartController) GetCart(c *gin.Context) {
	sess, err := cc.sessions.Get(c.Request.Context(), c.Param("sid"))
	cc.reply(c, sess, err)
}

// AddItem POST /api/v1/sessions/:sid/cart
func (cc *CartController) AddItem(c *gin.Context) {
	var line models.CartLine
	if err := c.ShouldBindJSON(&line); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := cc.sessions.AddToCart(c.Request.Context(), c.Param("sid"), line)
	cc.reply(c, sess, err)
}

// SetQuantity PUT /api/v1/sessions/:sid/cart/:name
func (cc *CartController) SetQuantity(c *gin.Context) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := cc.sessions.SetQuantity(c.Request.Context(), c.Param("sid"), c.Param("name"), req.Quantity)
	cc.reply(c, sess, err)
}

// RemoveItem DELETE /api/v1/sessions/:sid/cart/:name
func (cc *CartController) RemoveItem(c *gin.Context) {
	sess, err := cc.sessions.RemoveFromCart(c.Request.Context(), c.Param("sid"), c.Param("name"))
	cc.reply(c, sess, err)
}

// ClearCart DELETE /api/v1/sessions/:sid/cart
func (cc *CartController) ClearCart(c *gin.Context) {
	sess, err := cc.sessions.ClearCart(c.Request.Context(), c.Param("sid"))
	cc.reply(c, sess, err)
}

// EndSession DELETE /api/v1/sessions/:sid
func (cc *CartController) EndSession(c *gin.Context) {
	if err := cc.sessions.End(c.Request.Context(), c.Param("sid")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
