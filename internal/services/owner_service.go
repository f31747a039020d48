package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"canteen/server/internal/models"
	"canteen/server/internal/store"
)

// ownerSession is what a login token resolves to.
type ownerSession struct {
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

const ownerSessionTTL = 12 * time.Hour

// OwnerService manages dashboard accounts and their login sessions. Only
// the primary owner may add or delete accounts, and it cannot be deleted.
type OwnerService struct {
	repo    OwnerRepository
	store   store.Store
	primary string
	clock   Clock
}

// NewOwnerService creates the service. Tokens live in s.
func NewOwnerService(repo OwnerRepository, s store.Store, primary string, clock Clock) *OwnerService {
	if clock == nil {
		clock = SystemClock
	}
	return &OwnerService{repo: repo, store: s, primary: primary, clock: clock}
}

// Primary returns the primary owner's username.
func (s *OwnerService) Primary() string { return s.primary }

// EnsurePrimary creates the primary account with password if it is missing.
func (s *OwnerService) EnsurePrimary(ctx context.Context, password string) (bool, error) {
	_, err := s.repo.Find(ctx, s.primary)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return false, err
	}
	if password == "" {
		return false, &models.ValidationError{Reason: "primary owner password is empty"}
	}
	if err := s.create(ctx, s.primary, "", password, true); err != nil {
		return false, err
	}
	log.WithField("username", s.primary).Info("primary owner created")
	return true, nil
}

// Login checks the password and returns a session token.
func (s *OwnerService) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	o, err := s.repo.Find(ctx, username)
	if errors.Is(err, models.ErrNotFound) {
		return "", &models.ForbiddenError{Actor: username}
	}
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(o.PasswordHash), []byte(password)); err != nil {
		return "", &models.ForbiddenError{Actor: username}
	}

	now := s.clock.Now()
	token := uuid.NewString()
	sess := ownerSession{Username: o.Username, IssuedAt: now, ExpiresAt: now.Add(ownerSessionTTL)}
	if err := s.store.Set(ctx, tokenPath(token), sess); err != nil {
		return "", err
	}
	if err := s.repo.TouchLogin(ctx, o.Username, now); err != nil {
		log.WithError(err).WithField("username", o.Username).Warn("record last login")
	}
	log.WithField("username", o.Username).Info("owner logged in")
	return token, nil
}

// Logout drops a token.
func (s *OwnerService) Logout(ctx context.Context, token string) error {
	return s.store.Remove(ctx, tokenPath(token))
}

// Resolve maps a token to its username.
func (s *OwnerService) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", &models.ForbiddenError{}
	}
	var sess ownerSession
	if err := s.store.Get(ctx, tokenPath(token), &sess); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", &models.ForbiddenError{}
		}
		return "", err
	}
	if s.clock.Now().After(sess.ExpiresAt) {
		_ = s.store.Remove(ctx, tokenPath(token))
		return "", &models.ForbiddenError{Actor: sess.Username}
	}
	return sess.Username, nil
}

// Permitted reports whether actor is an existing owner.
func (s *OwnerService) Permitted(ctx context.Context, actor string) bool {
	if actor == "" {
		return false
	}
	_, err := s.repo.Find(ctx, actor)
	return err == nil
}

// List returns every account.
func (s *OwnerService) List(ctx context.Context) ([]models.Owner, error) {
	return s.repo.List(ctx)
}

// Add creates an account on behalf of actor.
func (s *OwnerService) Add(ctx context.Context, actor, username, name, password string) error {
	if actor != s.primary {
		return &models.ForbiddenError{Actor: actor}
	}
	return s.create(ctx, username, name, password, false)
}

// Remove deletes an account on behalf of actor.
func (s *OwnerService) Remove(ctx context.Context, actor, username string) error {
	if actor != s.primary || username == s.primary {
		return &models.ForbiddenError{Actor: actor}
	}
	return s.repo.Delete(ctx, username)
}

func (s *OwnerService) create(ctx context.Context, username, name, password string, primary bool) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return &models.ValidationError{Reason: "username and password are required"}
	}
	if username == SystemActor {
		return &models.ValidationError{Reason: "username is reserved"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	return s.repo.Create(ctx, models.Owner{
		Username:     username,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		IsPrimary:    primary,
		CreatedAt:    s.clock.Now(),
	})
}

func tokenPath(token string) string { return store.Join("ownerSessions", token) }
