package users

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/collabnotes/backend/internal/auth"
	githubsqlite "github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(githubsqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database: openTestDatabase(t),
		Hasher:   auth.NewPasswordHasher(bcrypt.MinCost),
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func TestRegisterAndAuthenticate(t *testing.T) {
	service := newTestService(t)

	account, err := service.Register(context.Background(), RegisterRequest{
		Name:     "Alice",
		Email:    "Alice@Example.com",
		Password: "secret-password",
		Mobile:   "555-0100",
	})
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if account.UserID == "" {
		t.Fatal("expected generated user id")
	}
	if account.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", account.Email)
	}
	if account.PasswordHash == "secret-password" {
		t.Fatal("password must be stored hashed")
	}

	authenticated, err := service.Authenticate(context.Background(), "alice@example.com", "secret-password")
	if err != nil {
		t.Fatalf("unexpected authenticate error: %v", err)
	}
	if authenticated.UserID != account.UserID {
		t.Fatalf("unexpected account: %q", authenticated.UserID)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	service := newTestService(t)

	request := RegisterRequest{Name: "Alice", Email: "alice@example.com", Password: "pw", Mobile: "555-0100"}
	if _, err := service.Register(context.Background(), request); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	_, err := service.Register(context.Background(), request)
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}
}

func TestRegisterRejectsMissingFields(t *testing.T) {
	service := newTestService(t)

	testCases := []RegisterRequest{
		{Email: "a@example.com", Password: "pw", Mobile: "555"},
		{Name: "A", Password: "pw", Mobile: "555"},
		{Name: "A", Email: "a@example.com", Mobile: "555"},
		{Name: "A", Email: "a@example.com", Password: "pw"},
	}
	for _, request := range testCases {
		if _, err := service.Register(context.Background(), request); !errors.Is(err, ErrMissingField) {
			t.Fatalf("expected missing field error for %#v, got %v", request, err)
		}
	}
}

func TestAuthenticateHidesFailureCause(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Register(context.Background(), RegisterRequest{
		Name: "Alice", Email: "alice@example.com", Password: "right", Mobile: "555",
	}); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	_, wrongPassword := service.Authenticate(context.Background(), "alice@example.com", "wrong")
	_, unknownEmail := service.Authenticate(context.Background(), "nobody@example.com", "right")
	if !errors.Is(wrongPassword, ErrInvalidCredentials) || !errors.Is(unknownEmail, ErrInvalidCredentials) {
		t.Fatalf("expected identical invalid credentials errors, got %v and %v", wrongPassword, unknownEmail)
	}
}

func TestEmailExists(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Register(context.Background(), RegisterRequest{
		Name: "Alice", Email: "alice@example.com", Password: "pw", Mobile: "555",
	}); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	exists, err := service.EmailExists(context.Background(), "ALICE@example.com")
	if err != nil || !exists {
		t.Fatalf("expected registered email to exist, got %v %v", exists, err)
	}
	exists, err = service.EmailExists(context.Background(), "bob@example.com")
	if err != nil || exists {
		t.Fatalf("expected unknown email to be absent, got %v %v", exists, err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	service := newTestService(t)
	_, err := service.GetByID(context.Background(), "missing-user")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}
