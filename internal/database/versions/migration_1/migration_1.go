package migration_1

import (
	"fmt"

	"gorm.io/gorm"
)

type Job struct {
	ResultContentType string `gorm:"size:100"`
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&Job{}, "ResultContentType"); err != nil {
		return fmt.Errorf("error adding ResultContentType column: %w", err)
	}

	if err := db.Model(&Job{}).
		Where("result_content_type IS NULL").
		Update("result_content_type", "").Error; err != nil {
		return fmt.Errorf("error setting default value for ResultContentType: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropColumn(&Job{}, "ResultContentType"); err != nil {
		return fmt.Errorf("error dropping ResultContentType column: %w", err)
	}

	return nil
}
