package server

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/collabnotes/backend/internal/auth"
	"github.com/collabnotes/backend/internal/notes"
	"github.com/collabnotes/backend/internal/realtime"
	"github.com/collabnotes/backend/internal/users"
	githubsqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type testEnvironment struct {
	handler      http.Handler
	tokenIssuer  *auth.TokenIssuer
	usersService *users.Service
	db           *gorm.DB
}

func newTestEnvironment(t *testing.T, typingQuiet time.Duration) *testEnvironment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(githubsqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &notes.Note{}, &notes.Collaborator{}, &notes.Snapshot{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "collabnotes-auth",
		Audience:      "collabnotes-api",
		TokenTTL:      time.Minute,
	})

	usersService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Hasher:   auth.NewPasswordHasher(bcrypt.MinCost),
	})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}

	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:   db,
		IDProvider: notes.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct notes service: %v", err)
	}

	hub := realtime.NewHub(realtime.HubConfig{TypingQuietPeriod: typingQuiet})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager:   tokenIssuer,
		UsersService:   usersService,
		NotesService:   notesService,
		Hub:            hub,
		Logger:         zap.NewNop(),
		AllowedOrigins: []string{"*"},
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	return &testEnvironment{
		handler:      handler,
		tokenIssuer:  tokenIssuer,
		usersService: usersService,
		db:           db,
	}
}

// registerUser creates an account directly through the service and returns the
// account with a freshly issued bearer token.
func (env *testEnvironment) registerUser(t *testing.T, name, email string) (users.User, string) {
	t.Helper()
	account, err := env.usersService.Register(context.Background(), users.RegisterRequest{
		Name:     name,
		Email:    email,
		Password: "test-password",
		Mobile:   "555-0100",
	})
	if err != nil {
		t.Fatalf("failed to register %s: %v", email, err)
	}
	token, _, err := env.tokenIssuer.IssueToken(context.Background(), account.UserID)
	if err != nil {
		t.Fatalf("failed to issue token for %s: %v", email, err)
	}
	return account, token
}
