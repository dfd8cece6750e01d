package database

import (
	"errors"
	"time"

	"github.com/collabnotes/backend/internal/notes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationDropOrphanedCollaborators = "2026-07-28_drop_orphaned_collaborators"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationDropOrphanedCollaborators, apply: dropOrphanedCollaborators},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// dropOrphanedCollaborators removes collaborator rows whose note was deleted
// before deletes cascaded over the collaborator table.
func dropOrphanedCollaborators(db *gorm.DB) error {
	return db.
		Where("note_id NOT IN (?)", db.Model(&notes.Note{}).Select("note_id")).
		Delete(&notes.Collaborator{}).Error
}
