package auth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	hashed, err := hasher.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("unexpected hash error: %v", err)
	}
	if hashed == "correct horse battery staple" {
		t.Fatal("hash must not equal the plaintext")
	}
	if err := hasher.Compare(hashed, "correct horse battery staple"); err != nil {
		t.Fatalf("unexpected compare error: %v", err)
	}
}

func TestPasswordCompareMismatch(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	hashed, err := hasher.Hash("right password")
	if err != nil {
		t.Fatalf("unexpected hash error: %v", err)
	}
	err = hasher.Compare(hashed, "wrong password")
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected mismatch error, got %v", err)
	}
}

func TestPasswordHashRejectsEmpty(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)
	if _, err := hasher.Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected empty password error, got %v", err)
	}
}
