package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/lantern/internal/stories"
)

const (
	migrationRecountApprovedNotes = "2026-10-01_recount_approved_notes"
	migrationScrubDeletedDigests  = "2026-10-02_scrub_deleted_story_digests"
)

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
		{name: migrationRecountApprovedNotes, apply: recountApprovedNotes},
		{name: migrationScrubDeletedDigests, apply: scrubDeletedDigests},
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
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// recountApprovedNotes rebuilds the pool counter from the approved notes.
func recountApprovedNotes(db *gorm.DB) error {
	approvedCount := db.Model(&stories.LanternNote{}).
		Select("COUNT(*)").
		Where("lantern_notes.story_id = stories.story_id AND lantern_notes.status = ?", stories.NoteStatusApproved)
	return db.Model(&stories.Story{}).
		Where("status <> ?", stories.StatusDeleted).
		Update("notes_count_approved", approvedCount).Error
}

// scrubDeletedDigests makes sure no tombstone still carries a code digest.
func scrubDeletedDigests(db *gorm.DB) error {
	return db.Model(&stories.Story{}).
		Where("status = ?", stories.StatusDeleted).
		Updates(map[string]any{
			"deletion_code_hash":   "",
			"inbox_code_hash":      nil,
			"notes_count_approved": 0,
		}).Error
}
