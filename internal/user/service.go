package user

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	userDatamodel "github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/user"
)

type Repository interface {
	GetByID(ctx context.Context, userID int64) (*userDatamodel.AdminUser, error)
	GetByEmail(ctx context.Context, email string) (*userDatamodel.AdminUser, error)
	GetPermissions(ctx context.Context, userID int64) ([]string, error)
	Create(ctx context.Context, u *userDatamodel.AdminUser) error
	UpsertPermissions(ctx context.Context, catalogue map[string]string) error
	// Grant links the named permissions; already granted ones are skipped.
	Grant(ctx context.Context, userID int64, permissions []string, grantedBy *int64) error
}

// PasswordHasher turns a plain password into the stored hash.
type PasswordHasher func(password string) (string, error)

type Service struct {
	repo   Repository
	hash   PasswordHasher
	logger *slog.Logger
}

func NewService(repo Repository, hash PasswordHasher, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		hash:   hash,
		logger: logger,
	}
}

func (s *Service) GetByID(ctx context.Context, userID int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, internal.NewInternalError("failed to get admin user", err)
	}
	if u == nil {
		return nil, internal.ErrUserNotFound
	}

	perms, err := s.repo.GetPermissions(ctx, userID)
	if err != nil {
		return nil, internal.NewInternalError("failed to get admin user permissions", err)
	}

	return FromDataModelWithPermissions(u, perms), nil
}

// EnsureAdmin creates the operator when the email is unused and grants the
// requested permissions either way. The permission catalogue is upserted first.
func (s *Service) EnsureAdmin(ctx context.Context, dto CreateUserDTO, catalogue map[string]string) (*User, bool, error) {
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return nil, false, err
	}

	if err := s.repo.UpsertPermissions(ctx, catalogue); err != nil {
		return nil, false, internal.NewInternalError("failed to seed permissions", err)
	}

	existing, err := s.repo.GetByEmail(ctx, dto.Email)
	if err != nil {
		return nil, false, internal.NewInternalError("failed to look up admin user", err)
	}

	created := false
	if existing == nil {
		hash, err := s.hash(dto.Password)
		if err != nil {
			return nil, false, internal.NewInternalError("failed to hash password", err)
		}
		existing = &userDatamodel.AdminUser{
			Email:        dto.Email,
			Name:         dto.Name,
			PasswordHash: hash,
			IsActive:     true,
		}
		if err := s.repo.Create(ctx, existing); err != nil {
			return nil, false, internal.NewInternalError("failed to create admin user", err)
		}
		created = true
		s.logger.Info("admin user created", "user_id", existing.ID, "email", existing.Email)
	}

	for _, p := range dto.Permissions {
		if _, ok := catalogue[p]; !ok {
			return nil, false, internal.NewValidationFieldError("permissions", "unknown permission "+p, internal.ErrCodeValidationFailed)
		}
	}
	if err := s.repo.Grant(ctx, existing.ID, dto.Permissions, nil); err != nil {
		return nil, false, internal.NewInternalError("failed to grant permissions", err)
	}

	u, err := s.GetByID(ctx, existing.ID)
	if err != nil {
		return nil, false, err
	}
	return u, created, nil
}
