package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Job struct {
	Id string `gorm:"size:128;primaryKey"`

	OriginalName string
	MimeType     string `gorm:"size:100"`
	SizeBytes    int64
	UploadKey    string

	Status    string `gorm:"size:20;not null;index"`
	ResultKey string
	Error     string

	CreationTime   time.Time `gorm:"index"`
	CompletionTime sql.NullTime
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&Job{}); err != nil {
		return fmt.Errorf("error creating jobs table: %w", err)
	}
	return nil
}
