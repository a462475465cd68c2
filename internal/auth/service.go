package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tripdesk/tripdesk-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with an existing email.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidEmail is returned when the email doesn't meet constraints.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword is returned when the password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Service provides authentication for site users and agency staff.
type Service struct {
	users     store.UserStore
	admins    store.AdminStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(users store.UserStore, admins store.AdminStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		users:     users,
		admins:    admins,
		jwtConfig: jwtConfig,
	}
}

// RegisterUser creates a new site user and returns a JWT token.
func (s *Service) RegisterUser(ctx context.Context, name, email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", ErrInvalidEmail
	}
	if len(password) < 6 {
		return "", ErrInvalidPassword
	}

	if existing, err := s.users.GetUserByEmail(ctx, email); err == nil && existing != nil {
		return "", ErrUserExists
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, name, email, hashed)
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Name, RoleUser)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// LoginUser validates site-user credentials and returns a JWT token.
func (s *Service) LoginUser(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Name, RoleUser)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// LoginAdmin validates staff credentials and returns a JWT token.
func (s *Service) LoginAdmin(ctx context.Context, email, password string) (string, error) {
	admin, err := s.admins.GetAdminByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if errPwd := ComparePassword(admin.PasswordHash, password); errPwd != nil {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, admin.ID, admin.Name, RoleAdmin)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
