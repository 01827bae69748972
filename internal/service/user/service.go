// Package user manages dashboard accounts and credential checks.
package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/fin-advisor/backend/internal/model/user"
	"github.com/zhouzirui/fin-advisor/backend/internal/store"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLength = 72
)

var (
	ErrUsernameRequired   = errors.New("username is required")
	ErrInvalidEmail       = errors.New("a valid email is required")
	ErrInvalidPassword    = fmt.Errorf("password must be %d to %d characters", minPasswordLength, maxPasswordLength)
	ErrInvalidRole        = errors.New("role must be admin or user")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")
	ErrUserNotFound       = store.ErrUserNotFound
	ErrUserExists         = store.ErrDuplicateUser
)

// CreateInput describes a new account.
type CreateInput struct {
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Password string    `json:"password"`
	Role     user.Role `json:"role"`
}

// UpdateInput carries optional field changes.
type UpdateInput struct {
	Username *string    `json:"username,omitempty"`
	Email    *string    `json:"email,omitempty"`
	Password *string    `json:"password,omitempty"`
	Role     *user.Role `json:"role,omitempty"`
	IsActive *bool      `json:"isActive,omitempty"`
}

// Service implements the dashboard user operations.
type Service struct {
	repo   store.UserRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewService wraps repo.
func NewService(repo store.UserRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger.Named("users"), now: time.Now}
}

func normalizeUsername(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrUsernameRequired
	}
	return name, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return ErrInvalidPassword
	}
	return nil
}

// Register creates a regular user account.
func (s *Service) Register(ctx context.Context, username, email, password string) (*user.User, error) {
	return s.Create(ctx, CreateInput{Username: username, Email: email, Password: password, Role: user.RoleUser})
}

// Create validates input and stores a new account.
func (s *Service) Create(ctx context.Context, in CreateInput) (*user.User, error) {
	username, err := normalizeUsername(in.Username)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = user.RoleUser
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	u, err := user.New(username, email, in.Password, role)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("user created", zap.String("id", u.ID), zap.String("username", u.Username), zap.String("role", string(u.Role)))
	return u, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (*user.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// List returns every user.
func (s *Service) List(ctx context.Context) ([]user.User, error) {
	return s.repo.ListUsers(ctx)
}

// Update applies the non-nil fields of in.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*user.User, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Username != nil {
		if u.Username, err = normalizeUsername(*in.Username); err != nil {
			return nil, err
		}
	}
	if in.Email != nil {
		if u.Email, err = normalizeEmail(*in.Email); err != nil {
			return nil, err
		}
	}
	if in.Password != nil {
		if err := validatePassword(*in.Password); err != nil {
			return nil, err
		}
		if u.PasswordHash, err = user.HashPassword(*in.Password); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, ErrInvalidRole
		}
		u.Role = *in.Role
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}

	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Delete removes a user.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logger.Info("user deleted", zap.String("id", id))
	return nil
}

// Authenticate checks a password against the account found by email or
// username and stamps the login time.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*user.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var (
		u   *user.User
		err error
	)
	if strings.Contains(identifier, "@") {
		u, err = s.repo.GetUserByEmail(ctx, strings.ToLower(identifier))
	} else {
		u, err = s.repo.GetUserByUsername(ctx, identifier)
	}
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !u.CheckPassword(password) {
		s.logger.Info("login rejected", zap.String("identifier", identifier))
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}

	now := s.now().UTC()
	u.LastLogin = &now
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		// The login itself succeeded.
		s.logger.Warn("failed to record last login", zap.String("id", u.ID), zap.Error(err))
	}
	return u, nil
}

// Seed creates an admin account when the store has no users. It reports
// whether an account was created.
func (s *Service) Seed(ctx context.Context, email, password string) (bool, error) {
	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	username := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		username = email[:at]
	}
	if _, err := s.Create(ctx, CreateInput{Username: username, Email: email, Password: password, Role: user.RoleAdmin}); err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	return true, nil
}

// IsValidationError reports whether err came from input validation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrUsernameRequired) ||
		errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrInvalidPassword) ||
		errors.Is(err, ErrInvalidRole)
}
