package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const defaultHashCost = 12

var (
	// ErrEmptyPassword indicates an empty password was supplied for hashing.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordMismatch indicates the password does not match the stored hash.
	ErrPasswordMismatch = errors.New("password does not match")
)

// PasswordHasher wraps bcrypt hashing with a fixed cost.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher constructs a PasswordHasher. A non-positive cost falls back
// to the default.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost <= 0 {
		cost = defaultHashCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash derives a bcrypt hash from the plaintext password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare checks the plaintext password against a stored hash.
func (h *PasswordHasher) Compare(hashedPassword, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}
