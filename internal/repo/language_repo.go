package repo

import (
	"context"
	"errors"

	"github.com/locallibrary/catalog/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateLanguage creates a new language unless the name is already taken ignoring case
func (r *CatalogRepository) CreateLanguage(ctx context.Context, language *db.Language) error {
	if err := r.checkLanguageName(ctx, language.Name, 0); err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Create(language).Error; err != nil {
		// The unique name_key index catches races the check above missed
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrLanguageExists
		}
		r.log.Error("Failed to create language", zap.String("name", language.Name), zap.Error(err))
		return err
	}

	r.log.Info("Language created", zap.Uint("id", language.ID), zap.String("name", language.Name))
	return nil
}

// GetLanguage retrieves a language by id
func (r *CatalogRepository) GetLanguage(ctx context.Context, id uint) (*db.Language, error) {
	var language db.Language
	err := r.db.WithContext(ctx).First(&language, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLanguageNotFound
		}
		r.log.Error("Failed to get language", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}

	return &language, nil
}

// ListLanguages returns all languages ordered by name
func (r *CatalogRepository) ListLanguages(ctx context.Context) ([]*db.Language, error) {
	var languages []*db.Language
	if err := r.db.WithContext(ctx).Order("name").Order("id").Find(&languages).Error; err != nil {
		r.log.Error("Failed to list languages", zap.Error(err))
		return nil, err
	}
	return languages, nil
}

// UpdateLanguage renames a language, keeping names unique ignoring case
func (r *CatalogRepository) UpdateLanguage(ctx context.Context, language *db.Language) error {
	if _, err := r.GetLanguage(ctx, language.ID); err != nil {
		return err
	}
	if err := r.checkLanguageName(ctx, language.Name, language.ID); err != nil {
		return err
	}

	language.NameKey = db.LanguageKey(language.Name)
	err := r.db.WithContext(ctx).Model(&db.Language{}).Where("id = ?", language.ID).
		Updates(map[string]interface{}{"name": language.Name, "name_key": language.NameKey}).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrLanguageExists
		}
		r.log.Error("Failed to update language", zap.Uint("id", language.ID), zap.Error(err))
		return err
	}

	r.log.Info("Language updated", zap.Uint("id", language.ID), zap.String("name", language.Name))
	return nil
}

// DeleteLanguage deletes a language; books written in it keep existing without one
func (r *CatalogRepository) DeleteLanguage(ctx context.Context, id uint) error {
	var detached int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&db.Book{}).Where("language_id = ?", id).UpdateColumn("language_id", nil)
		if result.Error != nil {
			return result.Error
		}
		detached = result.RowsAffected

		result = tx.Delete(&db.Language{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrLanguageNotFound
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrLanguageNotFound) {
			r.log.Error("Failed to delete language", zap.Uint("id", id), zap.Error(err))
		}
		return err
	}

	r.log.Info("Language deleted", zap.Uint("id", id), zap.Int64("books_detached", detached))
	return nil
}

// checkLanguageName fails with ErrLanguageExists when another row has the same name ignoring case
func (r *CatalogRepository) checkLanguageName(ctx context.Context, name string, exceptID uint) error {
	query := r.db.WithContext(ctx).Model(&db.Language{}).Where("name_key = ?", db.LanguageKey(name))
	if exceptID != 0 {
		query = query.Where("id <> ?", exceptID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		r.log.Error("Failed to check language name", zap.String("name", name), zap.Error(err))
		return err
	}
	if count > 0 {
		return ErrLanguageExists
	}
	return nil
}
