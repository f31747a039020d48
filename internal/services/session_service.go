package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"canteen/server/internal/models"
	"canteen/server/internal/store"
)

// Session is one customer's storefront state: the cart being built and
// the orders whose readiness the session waits for.
type Session struct {
	ID        string            `json:"id"`
	Cart      []models.CartLine `json:"cart"`
	Watched   []string          `json:"watched_orders"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// CartTotal is Σ UnitPrice × Quantity over the cart.
func (s Session) CartTotal() int64 { return models.SumLines(s.Cart) }

// CartCount is the number of units in the cart.
func (s Session) CartCount() int {
	n := 0
	for _, l := range s.Cart {
		n += l.Quantity
	}
	return n
}

func sessionPath(id string) string { return store.Join("sessions", id) }

// SessionService persists sessions in the store.
type SessionService struct {
	store store.Store
	clock Clock
}

// NewSessionService creates a service over s.
func NewSessionService(s store.Store, clock Clock) *SessionService {
	if clock == nil {
		clock = SystemClock
	}
	return &SessionService{store: s, clock: clock}
}

// NewID returns a fresh session id.
func (s *SessionService) NewID() string { return uuid.NewString() }

// Get loads the session, creating it on first use.
func (s *SessionService) Get(ctx context.Context, id string) (Session, error) {
	if strings.TrimSpace(id) == "" {
		return Session{}, &models.ValidationError{Reason: "missing session id"}
	}
	var sess Session
	err := s.store.Get(ctx, sessionPath(id), &sess)
	if errors.Is(err, store.ErrNotFound) {
		now := s.clock.Now()
		sess = Session{ID: id, Cart: []models.CartLine{}, Watched: []string{}, CreatedAt: now, UpdatedAt: now}
		return sess, s.store.Set(ctx, sessionPath(id), sess)
	}
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *SessionService) mutate(ctx context.Context, id string, fn func(*Session) error) (Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if err := fn(&sess); err != nil {
		return Session{}, err
	}
	sess.UpdatedAt = s.clock.Now()
	if err := s.store.Set(ctx, sessionPath(id), sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// AddToCart adds line, merging quantities with an existing line of the same
// name.
func (s *SessionService) AddToCart(ctx context.Context, id string, line models.CartLine) (Session, error) {
	if strings.TrimSpace(line.Name) == "" {
		return Session{}, &models.ValidationError{Reason: "missing item name"}
	}
	if line.Quantity == 0 {
		line.Quantity = 1
	}
	if line.Quantity < 1 {
		return Session{}, &models.ValidationError{Reason: "invalid quantity"}
	}
	return s.mutate(ctx, id, func(sess *Session) error {
		for i := range sess.Cart {
			if strings.EqualFold(sess.Cart[i].Name, line.Name) {
				sess.Cart[i].Quantity += line.Quantity
				return nil
			}
		}
		sess.Cart = append(sess.Cart, line)
		return nil
	})
}

// SetQuantity sets an item's quantity; zero or less removes it.
func (s *SessionService) SetQuantity(ctx context.Context, id, name string, qty int) (Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		for i := range sess.Cart {
			if !strings.EqualFold(sess.Cart[i].Name, name) {
				continue
			}
			if qty <= 0 {
				sess.Cart = append(sess.Cart[:i], sess.Cart[i+1:]...)
			} else {
				sess.Cart[i].Quantity = qty
			}
			return nil
		}
		return &models.NotFoundError{Kind: "cart item", ID: name}
	})
}

// RemoveFromCart drops an item. Unknown names are ignored.
func (s *SessionService) RemoveFromCart(ctx context.Context, id, name string) (Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		for i := range sess.Cart {
			if strings.EqualFold(sess.Cart[i].Name, name) {
				sess.Cart = append(sess.Cart[:i], sess.Cart[i+1:]...)
				break
			}
		}
		return nil
	})
}

// ClearCart empties the cart.
func (s *SessionService) ClearCart(ctx context.Context, id string) (Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		sess.Cart = []models.CartLine{}
		return nil
	})
}

// CheckedOut empties the cart and starts watching orderID.
func (s *SessionService) CheckedOut(ctx context.Context, id, orderID string) (Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		sess.Cart = []models.CartLine{}
		if !contains(sess.Watched, orderID) {
			sess.Watched = append(sess.Watched, orderID)
		}
		return nil
	})
}

// Watched returns the order ids the session waits for. It never creates
// the session, so a socket left open after End does not bring it back.
func (s *SessionService) Watched(ctx context.Context, id string) ([]string, error) {
	var sess Session
	err := s.store.Get(ctx, sessionPath(id), &sess)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess.Watched, nil
}

// End drops the session.
func (s *SessionService) End(ctx context.Context, id string) error {
	return s.store.Remove(ctx, sessionPath(id))
}
