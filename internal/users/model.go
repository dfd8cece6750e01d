package users

import (
	"strings"
	"time"
)

// User models a registered account.
type User struct {
	UserID       string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Name         string    `gorm:"column:name;size:320;not null"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;size:190;not null"`
	Mobile       string    `gorm:"column:mobile;size:32;not null;default:''"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
