package store

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"canteen/server/internal/models"
)

const (
	ownersPrefix     = "owners/"
	legacyOwnersPath = "owners"
)

// storedOwner keeps the hash that models.Owner hides from JSON. Password
// is the plaintext field of the first dashboard, read only for migration.
type storedOwner struct {
	Username     string     `json:"username"`
	Name         string     `json:"name,omitempty"`
	PasswordHash string     `json:"password_hash,omitempty"`
	Password     string     `json:"password,omitempty"`
	IsPrimary    bool       `json:"is_primary"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

func (s storedOwner) owner() models.Owner {
	return models.Owner{
		Username:     s.Username,
		Name:         s.Name,
		PasswordHash: s.PasswordHash,
		IsPrimary:    s.IsPrimary,
		CreatedAt:    s.CreatedAt,
		LastLoginAt:  s.LastLoginAt,
	}
}

func toStored(o models.Owner) storedOwner {
	return storedOwner{
		Username:     o.Username,
		Name:         o.Name,
		PasswordHash: o.PasswordHash,
		IsPrimary:    o.IsPrimary,
		CreatedAt:    o.CreatedAt,
		LastLoginAt:  o.LastLoginAt,
	}
}

// OwnerRepository keeps dashboard accounts under owners/{username}. It is
// used when no Postgres database is configured.
type OwnerRepository struct {
	store Store
}

// NewOwnerRepository creates a repository over s.
func NewOwnerRepository(s Store) *OwnerRepository {
	return &OwnerRepository{store: s}
}

func (r *OwnerRepository) Find(ctx context.Context, username string) (models.Owner, error) {
	var s storedOwner
	if err := r.store.Get(ctx, ownersPrefix+username, &s); err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.Owner{}, &models.NotFoundError{Kind: "owner", ID: username}
		}
		return models.Owner{}, err
	}
	return s.owner(), nil
}

func (r *OwnerRepository) List(ctx context.Context) ([]models.Owner, error) {
	docs, err := r.store.List(ctx, ownersPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]models.Owner, 0, len(docs))
	for path, raw := range docs {
		var s storedOwner
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
		out = append(out, s.owner())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r *OwnerRepository) Create(ctx context.Context, o models.Owner) error {
	_, err := r.Find(ctx, o.Username)
	if err == nil {
		return &models.ValidationError{Reason: "username already exists"}
	}
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}
	return r.store.Set(ctx, ownersPrefix+o.Username, toStored(o))
}

func (r *OwnerRepository) Delete(ctx context.Context, username string) error {
	if _, err := r.Find(ctx, username); err != nil {
		return err
	}
	return r.store.Remove(ctx, ownersPrefix+username)
}

func (r *OwnerRepository) TouchLogin(ctx context.Context, username string, at time.Time) error {
	return r.store.Update(ctx, ownersPrefix+username, map[string]any{
		"last_login_at": at.UTC().Format(time.RFC3339Nano),
	})
}

// MigrateLegacy converts an "owners" collection document (array or keyed
// object of {username, password}) into hashed per-user records.
func (r *OwnerRepository) MigrateLegacy(ctx context.Context, primary string) (int, error) {
	var raw json.RawMessage
	if err := r.store.Get(ctx, legacyOwnersPath, &raw); err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	var list []storedOwner
	if err := json.Unmarshal(raw, &list); err != nil {
		var keyed map[string]storedOwner
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return 0, errors.Wrap(err, "decode legacy owners")
		}
		for k, s := range keyed {
			if s.Username == "" {
				s.Username = k
			}
			list = append(list, s)
		}
	}

	n := 0
	for _, s := range list {
		if s.Username == "" {
			continue
		}
		if s.PasswordHash == "" && s.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(s.Password), bcrypt.DefaultCost)
			if err != nil {
				return n, errors.Wrap(err, "hash legacy password")
			}
			s.PasswordHash = string(hash)
		}
		s.Password = ""
		s.IsPrimary = s.Username == primary
		if s.CreatedAt.IsZero() {
			s.CreatedAt = time.Now().UTC()
		}
		if err := r.store.Set(ctx, ownersPrefix+s.Username, s); err != nil {
			return n, err
		}
		n++
	}
	return n, r.store.Remove(ctx, legacyOwnersPath)
}
