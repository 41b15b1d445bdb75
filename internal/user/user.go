package user

import (
	"time"

	userDatamodel "github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/user"
)

// User is an admin operator of the reconciliation console.
type User struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	IsActive    bool       `json:"is_active"`
	Permissions []string   `json:"permissions"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (u *User) HasPermission(permission string) bool {
	for _, p := range u.Permissions {
		if p == permission || p == "admin" {
			return true
		}
	}
	return false
}

type Permission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func FromDataModel(u *userDatamodel.AdminUser) *User {
	if u == nil {
		return nil
	}
	return &User{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
		Permissions: []string{},
	}
}

func FromDataModelWithPermissions(u *userDatamodel.AdminUser, permissions []string) *User {
	domainUser := FromDataModel(u)
	if domainUser != nil && permissions != nil {
		domainUser.Permissions = permissions
	}
	return domainUser
}
