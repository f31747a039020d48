package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"canteen/server/internal/models"
)

// OwnerRepository persists dashboard accounts.
type OwnerRepository interface {
	Find(ctx context.Context, username string) (models.Owner, error)
	List(ctx context.Context) ([]models.Owner, error)
	Create(ctx context.Context, o models.Owner) error
	Delete(ctx context.Context, username string) error
	TouchLogin(ctx context.Context, username string, at time.Time) error
}

// GormOwnerRepository stores owners in Postgres.
type GormOwnerRepository struct {
	db *gorm.DB
}

// NewGormOwnerRepository migrates the owners table and returns a repository.
func NewGormOwnerRepository(db *gorm.DB) (*GormOwnerRepository, error) {
	if err := db.AutoMigrate(&models.Owner{}); err != nil {
		return nil, errors.Wrap(err, "migrate owners")
	}
	return &GormOwnerRepository{db: db}, nil
}

func (r *GormOwnerRepository) Find(ctx context.Context, username string) (models.Owner, error) {
	var o models.Owner
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Owner{}, &models.NotFoundError{Kind: "owner", ID: username}
	}
	return o, errors.Wrap(err, "find owner")
}

func (r *GormOwnerRepository) List(ctx context.Context) ([]models.Owner, error) {
	var owners []models.Owner
	err := r.db.WithContext(ctx).Order("username").Find(&owners).Error
	return owners, errors.Wrap(err, "list owners")
}

func (r *GormOwnerRepository) Create(ctx context.Context, o models.Owner) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Owner{}).Where("username = ?", o.Username).Count(&count).Error; err != nil {
		return errors.Wrap(err, "check owner")
	}
	if count > 0 {
		return &models.ValidationError{Reason: "username already exists"}
	}
	return errors.Wrap(r.db.WithContext(ctx).Create(&o).Error, "create owner")
}

func (r *GormOwnerRepository) Delete(ctx context.Context, username string) error {
	res := r.db.WithContext(ctx).Where("username = ?", username).Delete(&models.Owner{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete owner")
	}
	if res.RowsAffected == 0 {
		return &models.NotFoundError{Kind: "owner", ID: username}
	}
	return nil
}

func (r *GormOwnerRepository) TouchLogin(ctx context.Context, username string, at time.Time) error {
	return errors.Wrap(r.db.WithContext(ctx).Model(&models.Owner{}).
		Where("username = ?", username).
		Update("last_login_at", at).Error, "touch owner login")
}
