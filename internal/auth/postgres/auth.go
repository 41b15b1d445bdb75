package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/razorpay-reconciliation/internal/auth"
	usermodel "github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/user"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*auth.Account, error) {
	var u usermodel.AdminUser
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toAccount(&u, nil), nil
}

func (r *Repository) GetAccountByID(ctx context.Context, id int64) (*auth.Account, error) {
	var u usermodel.AdminUser
	err := r.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var permissions []string
	err = r.db.WithContext(ctx).
		Table("permissions p").
		Select("p.name").
		Joins("JOIN admin_user_permissions up ON p.id = up.permission_id").
		Where("up.admin_user_id = ?", id).
		Order("p.name").
		Pluck("p.name", &permissions).Error
	if err != nil {
		return nil, err
	}

	return toAccount(&u, permissions), nil
}

func (r *Repository) TouchLastLogin(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&usermodel.AdminUser{}).
		Where("id = ?", id).
		Update("last_login_at", time.Now().UTC()).Error
}

func toAccount(u *usermodel.AdminUser, permissions []string) *auth.Account {
	return &auth.Account{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
		Permissions:  permissions,
	}
}
