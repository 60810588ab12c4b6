package db

import (
	"gorm.io/gorm"

	"github.com/draftforge/draftforge-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Prospect{},
		&domain.Campaign{},
		&domain.ContentLink{},
		&domain.EmailTemplate{},
		&domain.EmailSendLog{},
	)
}
