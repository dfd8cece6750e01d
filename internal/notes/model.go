package notes

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("notes: invalid user id")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Note models the persisted note payload.
type Note struct {
	NoteID    string    `gorm:"column:note_id;primaryKey;size:190;not null"`
	Title     string    `gorm:"column:title;size:320;not null;default:''"`
	Content   string    `gorm:"column:content;type:text;not null;default:''"`
	OwnerID   string    `gorm:"column:owner_id;size:190;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// Collaborator links a note to a user granted shared access.
type Collaborator struct {
	NoteID    string    `gorm:"column:note_id;primaryKey;size:190;not null"`
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Collaborator) TableName() string {
	return "note_collaborators"
}

// Snapshot captures the note payload at the moment of an update.
type Snapshot struct {
	SnapshotID string    `gorm:"column:snapshot_id;primaryKey;size:190;not null"`
	NoteID     string    `gorm:"column:note_id;size:190;not null;index:idx_snapshots_note_created,priority:1"`
	Title      string    `gorm:"column:title;size:320;not null;default:''"`
	Content    string    `gorm:"column:content;type:text;not null;default:''"`
	CreatedAt  time.Time `gorm:"column:created_at;index:idx_snapshots_note_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Snapshot) TableName() string {
	return "note_snapshots"
}

// View is the read model returned to callers: the note row joined with the
// owner and collaborator emails.
type View struct {
	NoteID             string
	Title              string
	Content            string
	OwnerID            string
	OwnerEmail         string
	CollaboratorEmails []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
