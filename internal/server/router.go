package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/collabnotes/backend/internal/auth"
	"github.com/collabnotes/backend/internal/notes"
	"github.com/collabnotes/backend/internal/realtime"
	"github.com/collabnotes/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDContextKey = "collabnotes_user_id"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingUsersService  = errors.New("users service dependency required")
	errMissingNotesService  = errors.New("notes service dependency required")
	errMissingHub           = errors.New("realtime hub dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates the bearer tokens used by both the REST
// surface and the realtime handshake.
type TokenManager interface {
	IssueToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP surface to its collaborating services.
type Dependencies struct {
	TokenManager   TokenManager
	UsersService   *users.Service
	NotesService   *notes.Service
	Hub            *realtime.Hub
	Logger         *zap.Logger
	AllowedOrigins []string
}

// NewHTTPHandler builds the gin router serving the REST API and the realtime
// WebSocket endpoint.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	if deps.NotesService == nil {
		return nil, errMissingNotesService
	}
	if deps.Hub == nil {
		return nil, errMissingHub
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	allowedOrigins := deps.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:         deps.TokenManager,
		usersService:   deps.UsersService,
		notesService:   deps.NotesService,
		hub:            deps.Hub,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}

	router.POST("/api/auth/signup", handler.handleSignup)
	router.POST("/api/auth/login", handler.handleLogin)
	router.GET("/ws", handler.handleRealtime)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.POST("/users/check-email", handler.handleCheckEmail)
	protected.GET("/notes", handler.handleListNotes)
	protected.POST("/notes/create", handler.handleCreateNote)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.PUT("/notes/:id", handler.handleUpdateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)
	protected.GET("/notes/:id/snapshots", handler.handleListSnapshots)

	return router, nil
}

type httpHandler struct {
	tokens         TokenManager
	usersService   *users.Service
	notesService   *notes.Service
	hub            *realtime.Hub
	logger         *zap.Logger
	allowedOrigins []string
}

type signupRequestPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Mobile   string `json:"mobile"`
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	var request signupRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing fields"})
		return
	}

	account, err := h.usersService.Register(c.Request.Context(), users.RegisterRequest{
		Name:     request.Name,
		Email:    request.Email,
		Password: request.Password,
		Mobile:   request.Mobile,
	})
	if errors.Is(err, users.ErrMissingField) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing fields"})
		return
	}
	if errors.Is(err, users.ErrEmailTaken) {
		c.JSON(http.StatusConflict, gin.H{"message": "User already exists"})
		return
	}
	if err != nil {
		h.logger.Error("failed to register user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User created", "userId": account.UserID})
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginUserPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Mobile string `json:"mobile"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing fields"})
		return
	}

	account, err := h.usersService.Authenticate(c.Request.Context(), request.Email, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		return
	}
	if err != nil {
		h.logger.Error("failed to authenticate user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Login failed"})
		return
	}

	token, _, err := h.tokens.IssueToken(c.Request.Context(), account.UserID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": loginUserPayload{
			ID:     account.UserID,
			Name:   account.Name,
			Email:  account.Email,
			Mobile: account.Mobile,
		},
	})
}

type checkEmailRequestPayload struct {
	Email string `json:"email"`
}

func (h *httpHandler) handleCheckEmail(c *gin.Context) {
	var request checkEmailRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email is required"})
		return
	}

	exists, err := h.usersService.EmailExists(c.Request.Context(), request.Email)
	if err != nil {
		h.logger.Error("failed to check email", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

type notePayload struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	OwnerID       string    `json:"ownerId"`
	OwnerEmail    string    `json:"ownerEmail,omitempty"`
	Collaborators []string  `json:"collaborators"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func buildNotePayload(view notes.View) notePayload {
	collaborators := view.CollaboratorEmails
	if collaborators == nil {
		collaborators = []string{}
	}
	return notePayload{
		ID:            view.NoteID,
		Title:         view.Title,
		Content:       view.Content,
		OwnerID:       view.OwnerID,
		OwnerEmail:    view.OwnerEmail,
		Collaborators: collaborators,
		CreatedAt:     view.CreatedAt,
		UpdatedAt:     view.UpdatedAt,
	}
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	userID, ok := h.requestUserID(c)
	if !ok {
		return
	}

	views, err := h.notesService.ListForUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list notes", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch notes"})
		return
	}

	payloads := make([]notePayload, 0, len(views))
	for _, view := range views {
		payloads = append(payloads, buildNotePayload(view))
	}
	c.JSON(http.StatusOK, gin.H{"notes": payloads})
}

type noteRequestPayload struct {
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Collaborators []string `json:"collaborators"`
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	userID, ok := h.requestUserID(c)
	if !ok {
		return
	}

	var request noteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}

	view, err := h.notesService.Create(c.Request.Context(), userID, notes.CreateRequest{
		Title:              request.Title,
		Content:            request.Content,
		CollaboratorEmails: request.Collaborators,
	})
	if err != nil {
		h.logger.Error("failed to create note", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to create note"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"note": buildNotePayload(view)})
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	userID, ok := h.requestUserID(c)
	if !ok {
		return
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid note id"})
		return
	}

	view, err := h.notesService.Get(c.Request.Context(), userID, noteID)
	if h.respondNoteError(c, err, "failed to fetch note") {
		return
	}
	c.JSON(http.StatusOK, gin.H{"note": buildNotePayload(view)})
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	userID, ok := h.requestUserID(c)
	if !ok {
		return
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid note id"})
		return
	}

	var request noteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}

	err = h.notesService.Update(c.Request.Context(), userID, noteID, notes.UpdateRequest{
		Title:              request.Title,
		Content:            request.Content,
		CollaboratorEmails: request.Collaborators,
	})
	if h.respondNoteError(c, err, "failed to update note") {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Note updated and snapshot created successfully"})
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	userID, ok := h.requestUserID(c)
	if !ok {
		return
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid note id"})
		return
	}

	err = h.notesService.Delete(c.Request.Context(), userID, noteID)
	if h.respondNoteError(c, err, "failed to delete note") {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Note deleted successfully"})
}

type snapshotPayload struct {
	ID        string    `json:"id"`
	NoteID    string    `json:"noteId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *httpHandler) handleListSnapshots(c *gin.Context) {
	userID, ok := h.requestUserID(c)
	if !ok {
		return
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid note id"})
		return
	}

	snapshots, err := h.notesService.ListSnapshots(c.Request.Context(), userID, noteID)
	if h.respondNoteError(c, err, "failed to fetch snapshots") {
		return
	}

	payloads := make([]snapshotPayload, 0, len(snapshots))
	for _, snapshot := range snapshots {
		payloads = append(payloads, snapshotPayload{
			ID:        snapshot.SnapshotID,
			NoteID:    snapshot.NoteID,
			Title:     snapshot.Title,
			Content:   snapshot.Content,
			CreatedAt: snapshot.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": payloads})
}

// respondNoteError maps service errors to responses. Returns true when a
// response was written.
func (h *httpHandler) respondNoteError(c *gin.Context, err error, logMessage string) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, notes.ErrNoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Note not found"})
	case errors.Is(err, notes.ErrAccessDenied), errors.Is(err, notes.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
	default:
		h.logger.Error(logMessage, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
	}
	return true
}

func (h *httpHandler) requestUserID(c *gin.Context) (notes.UserID, bool) {
	raw := c.GetString(userIDContextKey)
	userID, err := notes.NewUserID(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return "", false
	}
	return userID, true
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}
