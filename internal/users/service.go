package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/collabnotes/backend/internal/auth"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrMissingField indicates a required registration field was empty.
	ErrMissingField = errors.New("users: missing required field")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrInvalidCredentials indicates the email/password pair did not match.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrUserNotFound indicates no account exists for the identifier.
	ErrUserNotFound = errors.New("users: user not found")
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Hasher   *auth.PasswordHasher
	Clock    func() time.Time
}

// Service manages durable user accounts.
type Service struct {
	db     *gorm.DB
	hasher *auth.PasswordHasher
	now    func() time.Time
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = auth.NewPasswordHasher(0)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:     cfg.Database,
		hasher: hasher,
		now:    clock,
	}, nil
}

// RegisterRequest carries the fields required to create an account.
type RegisterRequest struct {
	Name     string
	Email    string
	Password string
	Mobile   string
}

// Register creates a new account, rejecting duplicate emails.
func (s *Service) Register(ctx context.Context, request RegisterRequest) (User, error) {
	name := strings.TrimSpace(request.Name)
	email := normalizeEmail(request.Email)
	mobile := strings.TrimSpace(request.Mobile)
	if name == "" || email == "" || request.Password == "" || mobile == "" {
		return User{}, ErrMissingField
	}

	var existing User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return User{}, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, err
	}

	hashed, err := s.hasher.Hash(request.Password)
	if err != nil {
		return User{}, err
	}

	identifier, err := uuid.NewV7()
	if err != nil {
		return User{}, err
	}

	account := User{
		UserID:       identifier.String(),
		Name:         name,
		Email:        email,
		PasswordHash: hashed,
		Mobile:       mobile,
		CreatedAt:    s.now().UTC(),
		UpdatedAt:    s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		return User{}, err
	}
	return account, nil
}

// Authenticate resolves an account from an email/password pair. Unknown emails
// and wrong passwords produce the same error so callers leak nothing.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	normalized := normalizeEmail(email)
	if normalized == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	var account User
	err := s.db.WithContext(ctx).Where("email = ?", normalized).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	return account, nil
}

// GetByID resolves an account from its canonical identifier.
func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return User{}, ErrUserNotFound
	}
	var account User
	err := s.db.WithContext(ctx).Where("user_id = ?", trimmed).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return account, nil
}

// EmailExists reports whether an account is registered under the email.
func (s *Service) EmailExists(ctx context.Context, email string) (bool, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&User{}).Where("email = ?", normalized).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
