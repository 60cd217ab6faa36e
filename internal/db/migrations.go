package db

import (
	"gorm.io/gorm"
)

// LanguageNameIndex is the unique index on the folded language name, declared on Language.NameKey
const LanguageNameIndex = "language_name_case_insensitive_unique"

// RunMigrations runs all database migrations
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(
		&Genre{},
		&Language{},
		&Author{},
		&Book{},
		&BookInstance{},
	); err != nil {
		return err
	}

	if err := createIndexes(db.DB); err != nil {
		return err
	}

	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_book_instances_status_due_back ON book_instances (status, due_back)`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
