package repo

import (
	"gorm.io/gorm"
)

type GormRepo struct {
	DB *gorm.DB
}

// userSummary limits preloaded users to the columns responses render.
func userSummary(db *gorm.DB) *gorm.DB {
	return db.Select("id", "name", "email")
}
