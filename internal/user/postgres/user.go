package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	userDatamodel "github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/user"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, userID int64) (*userDatamodel.AdminUser, error) {
	return r.first(ctx, "id = ?", userID)
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*userDatamodel.AdminUser, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *Repository) first(ctx context.Context, query string, arg interface{}) (*userDatamodel.AdminUser, error) {
	var u userDatamodel.AdminUser
	err := r.db.WithContext(ctx).Where(query, arg).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) GetPermissions(ctx context.Context, userID int64) ([]string, error) {
	permissions := []string{}
	err := r.db.WithContext(ctx).
		Table("permissions p").
		Joins("JOIN admin_user_permissions up ON p.id = up.permission_id").
		Where("up.admin_user_id = ?", userID).
		Order("p.name").
		Pluck("p.name", &permissions).Error
	return permissions, err
}

func (r *Repository) Create(ctx context.Context, u *userDatamodel.AdminUser) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repository) UpsertPermissions(ctx context.Context, catalogue map[string]string) error {
	if len(catalogue) == 0 {
		return nil
	}
	rows := make([]userDatamodel.Permission, 0, len(catalogue))
	for name, description := range catalogue {
		rows = append(rows, userDatamodel.Permission{Name: name, Description: description})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"description"}),
		}).
		Create(&rows).Error
}

func (r *Repository) Grant(ctx context.Context, userID int64, permissions []string, grantedBy *int64) error {
	if len(permissions) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []int64
		if err := tx.Model(&userDatamodel.Permission{}).Where("name IN ?", permissions).Pluck("id", &ids).Error; err != nil {
			return err
		}

		var existing []int64
		if err := tx.Model(&userDatamodel.AdminUserPermission{}).
			Where("admin_user_id = ?", userID).
			Pluck("permission_id", &existing).Error; err != nil {
			return err
		}
		have := make(map[int64]bool, len(existing))
		for _, id := range existing {
			have[id] = true
		}

		for _, id := range ids {
			if have[id] {
				continue
			}
			link := userDatamodel.AdminUserPermission{AdminUserID: userID, PermissionID: id, GrantedBy: grantedBy}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
