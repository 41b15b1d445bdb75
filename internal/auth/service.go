package auth

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
)

// Account is an admin operator as the auth layer sees it.
type Account struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	Permissions  []string
}

type RepositoryAPI interface {
	// GetAccountByEmail returns nil when no operator uses email.
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	// GetAccountByID loads the operator with permissions; nil when absent.
	GetAccountByID(ctx context.Context, id int64) (*Account, error)
	TouchLastLogin(ctx context.Context, id int64) error
}

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error)
	RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error)
	Authorize(ctx context.Context, accessToken string) (*internal.User, error)
}

type Service struct {
	repo           RepositoryAPI
	tokenGenerator TokenGeneratorAPI
	bcryptCost     int
	logger         *slog.Logger
}

func NewService(repo RepositoryAPI, tokenGen TokenGeneratorAPI, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:           repo,
		tokenGenerator: tokenGen,
		bcryptCost:     bcryptCost,
		logger:         logger,
	}
}

// Authenticate validates credentials and returns tokens
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	account, err := s.repo.GetAccountByEmail(ctx, strings.ToLower(strings.TrimSpace(dto.Email)))
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to load credentials", err)
	}
	if account == nil {
		return AuthTokens{}, internal.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(dto.Password)); err != nil {
		s.logger.Warn("login rejected", "user_id", account.ID)
		return AuthTokens{}, internal.ErrInvalidCredentials
	}
	if !account.IsActive {
		return AuthTokens{}, internal.ErrUserInactive
	}

	tokens, err := s.issue(account)
	if err != nil {
		return AuthTokens{}, err
	}

	if err := s.repo.TouchLastLogin(ctx, account.ID); err != nil {
		s.logger.Warn("failed to record last login", "user_id", account.ID, "error", err)
	}
	s.logger.Info("admin user logged in", "user_id", account.ID)
	return tokens, nil
}

// RefreshTokens validates refresh token and returns new tokens
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error) {
	if err := (RefreshTokenDTO{RefreshToken: refreshToken}).Validate(); err != nil {
		return AuthTokens{}, err
	}

	claims, err := s.tokenGenerator.ValidateRefreshToken(refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}

	account, err := s.activeAccount(ctx, claims)
	if err != nil {
		return AuthTokens{}, err
	}
	return s.issue(account)
}

// Authorize resolves an access token to the operator it was issued to.
// Permissions are read fresh so revocations apply before the token expires.
func (s *Service) Authorize(ctx context.Context, accessToken string) (*internal.User, error) {
	claims, err := s.tokenGenerator.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	account, err := s.activeAccount(ctx, claims)
	if err != nil {
		return nil, err
	}

	return &internal.User{
		ID:          account.ID,
		Email:       account.Email,
		Name:        account.Name,
		Permissions: account.Permissions,
	}, nil
}

func (s *Service) activeAccount(ctx context.Context, claims *Claims) (*Account, error) {
	id, err := claims.AdminUserID()
	if err != nil {
		return nil, err
	}

	account, err := s.repo.GetAccountByID(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load admin user", err)
	}
	if account == nil {
		return nil, internal.ErrInvalidToken
	}
	if !account.IsActive {
		return nil, internal.ErrUserInactive
	}
	return account, nil
}

func (s *Service) issue(account *Account) (AuthTokens, error) {
	userID := strconv.FormatInt(account.ID, 10)

	accessToken, err := s.tokenGenerator.GenerateAccessToken(userID, account.Email)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue access token", err)
	}

	refreshToken, err := s.tokenGenerator.GenerateRefreshToken(userID, account.Email)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue refresh token", err)
	}

	return AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokenGenerator.AccessTTL().Seconds()),
	}, nil
}

// HashPassword creates a bcrypt hash of the password
func (s *Service) HashPassword(password string) (string, error) {
	return HashPassword(password, s.bcryptCost)
}

func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
