package notes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/collabnotes/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrNoteNotFound indicates the note does not exist.
	ErrNoteNotFound = errors.New("notes: note not found")
	// ErrAccessDenied indicates the caller is neither owner nor collaborator.
	ErrAccessDenied = errors.New("notes: access denied")
	// ErrNotOwner indicates an owner-only operation was attempted by a collaborator.
	ErrNotOwner = errors.New("notes: owner required")
)

// ServiceError wraps storage failures with a stable operation code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable operation code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "notes.service.new"
	opListNotes     = "notes.list_notes"
	opCreateNote    = "notes.create_note"
	opGetNote       = "notes.get_note"
	opUpdateNote    = "notes.update_note"
	opDeleteNote    = "notes.delete_note"
	opListSnapshots = "notes.list_snapshots"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for new notes and snapshots.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies required by the notes service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service implements note CRUD with owner/collaborator access control and
// snapshot history. Realtime edit relay never touches this service; durable
// state changes happen only through it.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the notes service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// ListForUser returns every note the user owns or collaborates on, newest
// updated first.
func (s *Service) ListForUser(ctx context.Context, userID UserID) ([]View, error) {
	var rows []Note
	err := s.db.WithContext(ctx).
		Where("owner_id = ? OR note_id IN (?)",
			userID.String(),
			s.db.Model(&Collaborator{}).Select("note_id").Where("user_id = ?", userID.String()),
		).
		Order("updated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, newServiceError(opListNotes, "query_failed", err)
	}

	views := make([]View, 0, len(rows))
	for _, row := range rows {
		view, err := s.buildView(ctx, row)
		if err != nil {
			return nil, newServiceError(opListNotes, "view_failed", err)
		}
		views = append(views, view)
	}
	return views, nil
}

// CreateRequest carries the fields for a new note.
type CreateRequest struct {
	Title              string
	Content            string
	CollaboratorEmails []string
}

// Create stores a new note owned by the user. Collaborator emails that do not
// resolve to registered accounts are skipped.
func (s *Service) Create(ctx context.Context, ownerID UserID, request CreateRequest) (View, error) {
	noteID, err := s.idProvider.NewID()
	if err != nil {
		return View{}, newServiceError(opCreateNote, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	note := Note{
		NoteID:    noteID,
		Title:     request.Title,
		Content:   request.Content,
		OwnerID:   ownerID.String(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	collaboratorIDs, err := s.resolveCollaboratorIDs(ctx, ownerID, request.CollaboratorEmails)
	if err != nil {
		return View{}, newServiceError(opCreateNote, "collaborator_lookup_failed", err)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&note).Error; err != nil {
			return err
		}
		for _, collaboratorID := range collaboratorIDs {
			link := Collaborator{NoteID: noteID, UserID: collaboratorID, CreatedAt: now}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return View{}, newServiceError(opCreateNote, "persist_failed", txErr)
	}

	return s.buildView(ctx, note)
}

// Get returns a single note when the user is its owner or a collaborator.
func (s *Service) Get(ctx context.Context, userID UserID, noteID NoteID) (View, error) {
	note, err := s.loadAccessible(ctx, userID, noteID, opGetNote)
	if err != nil {
		return View{}, err
	}
	return s.buildView(ctx, note)
}

// UpdateRequest carries the fields for a note update.
type UpdateRequest struct {
	Title              string
	Content            string
	CollaboratorEmails []string
}

// Update rewrites the note payload and appends a snapshot. Only the owner may
// replace the collaborator set; collaborators edit title and content alone.
func (s *Service) Update(ctx context.Context, userID UserID, noteID NoteID, request UpdateRequest) error {
	note, err := s.loadAccessible(ctx, userID, noteID, opUpdateNote)
	if err != nil {
		return err
	}

	isOwner := note.OwnerID == userID.String()

	var collaboratorIDs []string
	if isOwner {
		ownerID, err := NewUserID(note.OwnerID)
		if err != nil {
			return newServiceError(opUpdateNote, "invalid_owner", err)
		}
		collaboratorIDs, err = s.resolveCollaboratorIDs(ctx, ownerID, request.CollaboratorEmails)
		if err != nil {
			return newServiceError(opUpdateNote, "collaborator_lookup_failed", err)
		}
	}

	snapshotID, err := s.idProvider.NewID()
	if err != nil {
		return newServiceError(opUpdateNote, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"title":      request.Title,
			"content":    request.Content,
			"updated_at": now,
		}
		if err := tx.Model(&Note{}).Where("note_id = ?", noteID.String()).Updates(updates).Error; err != nil {
			return err
		}
		if isOwner {
			if err := tx.Where("note_id = ?", noteID.String()).Delete(&Collaborator{}).Error; err != nil {
				return err
			}
			for _, collaboratorID := range collaboratorIDs {
				link := Collaborator{NoteID: noteID.String(), UserID: collaboratorID, CreatedAt: now}
				if err := tx.Create(&link).Error; err != nil {
					return err
				}
			}
		}
		snapshot := Snapshot{
			SnapshotID: snapshotID,
			NoteID:     noteID.String(),
			Title:      request.Title,
			Content:    request.Content,
			CreatedAt:  now,
		}
		return tx.Create(&snapshot).Error
	})
	if txErr != nil {
		return newServiceError(opUpdateNote, "persist_failed", txErr)
	}
	return nil
}

// Delete removes a note with its collaborators and snapshots. Owner only.
func (s *Service) Delete(ctx context.Context, userID UserID, noteID NoteID) error {
	var note Note
	err := s.db.WithContext(ctx).Where("note_id = ?", noteID.String()).First(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNoteNotFound
	}
	if err != nil {
		return newServiceError(opDeleteNote, "query_failed", err)
	}
	if note.OwnerID != userID.String() {
		return ErrNotOwner
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("note_id = ?", noteID.String()).Delete(&Collaborator{}).Error; err != nil {
			return err
		}
		if err := tx.Where("note_id = ?", noteID.String()).Delete(&Snapshot{}).Error; err != nil {
			return err
		}
		return tx.Where("note_id = ?", noteID.String()).Delete(&Note{}).Error
	})
	if txErr != nil {
		return newServiceError(opDeleteNote, "persist_failed", txErr)
	}
	return nil
}

// ListSnapshots returns the note's snapshot history, newest first.
func (s *Service) ListSnapshots(ctx context.Context, userID UserID, noteID NoteID) ([]Snapshot, error) {
	if _, err := s.loadAccessible(ctx, userID, noteID, opListSnapshots); err != nil {
		return nil, err
	}
	var snapshots []Snapshot
	err := s.db.WithContext(ctx).
		Where("note_id = ?", noteID.String()).
		Order("created_at DESC").
		Find(&snapshots).Error
	if err != nil {
		return nil, newServiceError(opListSnapshots, "query_failed", err)
	}
	return snapshots, nil
}

func (s *Service) loadAccessible(ctx context.Context, userID UserID, noteID NoteID, operation string) (Note, error) {
	var note Note
	err := s.db.WithContext(ctx).Where("note_id = ?", noteID.String()).First(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, ErrNoteNotFound
	}
	if err != nil {
		return Note{}, newServiceError(operation, "query_failed", err)
	}
	if note.OwnerID == userID.String() {
		return note, nil
	}
	var count int64
	err = s.db.WithContext(ctx).Model(&Collaborator{}).
		Where("note_id = ? AND user_id = ?", noteID.String(), userID.String()).
		Count(&count).Error
	if err != nil {
		return Note{}, newServiceError(operation, "collaborator_check_failed", err)
	}
	if count == 0 {
		return Note{}, ErrAccessDenied
	}
	return note, nil
}

// resolveCollaboratorIDs maps emails to user ids, dropping unknown emails and
// the owner's own address.
func (s *Service) resolveCollaboratorIDs(ctx context.Context, ownerID UserID, emails []string) ([]string, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	var accounts []users.User
	err := s.db.WithContext(ctx).Where("email IN ?", emails).Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(accounts))
	for _, account := range accounts {
		if account.UserID == ownerID.String() {
			continue
		}
		ids = append(ids, account.UserID)
	}
	return ids, nil
}

func (s *Service) buildView(ctx context.Context, note Note) (View, error) {
	var owner users.User
	ownerEmail := ""
	err := s.db.WithContext(ctx).Where("user_id = ?", note.OwnerID).First(&owner).Error
	if err == nil {
		ownerEmail = owner.Email
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return View{}, err
	}

	var collaboratorEmails []string
	err = s.db.WithContext(ctx).Model(&users.User{}).
		Where("user_id IN (?)",
			s.db.Model(&Collaborator{}).Select("user_id").Where("note_id = ?", note.NoteID),
		).
		Order("email").
		Pluck("email", &collaboratorEmails).Error
	if err != nil {
		return View{}, err
	}

	return View{
		NoteID:             note.NoteID,
		Title:              note.Title,
		Content:            note.Content,
		OwnerID:            note.OwnerID,
		OwnerEmail:         ownerEmail,
		CollaboratorEmails: collaboratorEmails,
		CreatedAt:          note.CreatedAt,
		UpdatedAt:          note.UpdatedAt,
	}, nil
}
