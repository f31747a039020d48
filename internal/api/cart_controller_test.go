package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canteen/server/internal/models"
)

func TestCart_EditAndCheckout(t *testing.T) {
	s := newTestServer(t)

	var view cartView
	w := s.do(http.MethodPost, "/api/v1/sessions", nil, "")
	require.Equal(t, http.StatusCreated, w.Code)
	decode(t, w, &view)
	sid := view.SessionID
	require.NotEmpty(t, sid)
	base := "/api/v1/sessions/" + sid + "/cart"

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base, models.CartLine{Name: "Bakso", UnitPrice: 15000, Quantity: 1}, "").Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base, models.CartLine{Name: "bakso", UnitPrice: 15000}, "").Code)
	w = s.do(http.MethodPost, base, models.CartLine{Name: "Teh", UnitPrice: 3000, Quantity: 1}, "")
	decode(t, w, &view)
	assert.Equal(t, 3, view.Count)
	assert.EqualValues(t, 33000, view.Total)

	w = s.do(http.MethodPut, base+"/Teh", map[string]int{"quantity": 3}, "")
	decode(t, w, &view)
	assert.EqualValues(t, 39000, view.Total)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPut, base+"/Kopi", map[string]int{"quantity": 1}, "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, base, models.CartLine{Name: "Kopi", Quantity: -2}, "").Code)

	w = s.do(http.MethodDelete, base+"/Teh", nil, "")
	decode(t, w, &view)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].Quantity)

	o := s.submit(t, sid)
	assert.EqualValues(t, 30000, o.Total)
	assert.Equal(t, sid, o.SessionID)

	decode(t, s.do(http.MethodGet, base, nil, ""), &view)
	assert.Empty(t, view.Items)

	watched, err := s.sessions.Watched(t.Context(), sid)
	require.NoError(t, err)
	assert.Equal(t, []string{o.ID}, watched)
}

func TestCart_ClearAndEnd(t *testing.T) {
	s := newTestServer(t)
	base := "/api/v1/sessions/s-9/cart"

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base, models.CartLine{Name: "Milo", UnitPrice: 4000, Quantity: 2}, "").Code)
	var view cartView
	decode(t, s.do(http.MethodDelete, base, nil, ""), &view)
	assert.Empty(t, view.Items)
	assert.Zero(t, view.Total)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/v1/sessions/s-9", nil, "").Code)

	// An empty cart cannot be submitted.
	w := s.do(http.MethodPost, "/api/v1/orders", map[string]string{"session_id": "s-9", "customer_name": "Budi", "payment_method": "cash"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
