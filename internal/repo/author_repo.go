package repo

import (
	"context"
	"errors"

	"github.com/locallibrary/catalog/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateAuthor creates a new author
func (r *CatalogRepository) CreateAuthor(ctx context.Context, author *db.Author) error {
	if err := r.db.WithContext(ctx).Create(author).Error; err != nil {
		r.log.Error("Failed to create author", zap.String("author", author.String()), zap.Error(err))
		return err
	}

	r.log.Info("Author created", zap.Uint("id", author.ID), zap.String("author", author.String()))
	return nil
}

// GetAuthor retrieves an author by id
func (r *CatalogRepository) GetAuthor(ctx context.Context, id uint) (*db.Author, error) {
	var author db.Author
	err := r.db.WithContext(ctx).First(&author, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuthorNotFound
		}
		r.log.Error("Failed to get author", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}

	return &author, nil
}

// ListAuthors returns a page of authors ordered by last name
func (r *CatalogRepository) ListAuthors(ctx context.Context, page Page) ([]*db.Author, int64, error) {
	page = page.normalize()
	query := r.db.WithContext(ctx).Model(&db.Author{}).Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		r.log.Error("Failed to count authors", zap.Error(err))
		return nil, 0, err
	}

	var authors []*db.Author
	if err := query.Offset(page.offset()).Limit(page.Size).Order("last_name").Order("id").Find(&authors).Error; err != nil {
		r.log.Error("Failed to list authors", zap.Error(err))
		return nil, 0, err
	}

	return authors, total, nil
}

// UpdateAuthor replaces every field of an existing author
func (r *CatalogRepository) UpdateAuthor(ctx context.Context, author *db.Author) error {
	existing, err := r.GetAuthor(ctx, author.ID)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"first_name":    author.FirstName,
		"last_name":     author.LastName,
		"date_of_birth": author.DateOfBirth,
		"date_of_death": author.DateOfDeath,
	}
	if err := r.db.WithContext(ctx).Model(existing).Updates(updates).Error; err != nil {
		r.log.Error("Failed to update author", zap.Uint("id", author.ID), zap.Error(err))
		return err
	}

	r.log.Info("Author updated", zap.Uint("id", author.ID))
	return nil
}

// DeleteAuthor deletes an author; their books stay in the catalog without an author
func (r *CatalogRepository) DeleteAuthor(ctx context.Context, id uint) error {
	var detached int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&db.Book{}).Where("author_id = ?", id).UpdateColumn("author_id", nil)
		if result.Error != nil {
			return result.Error
		}
		detached = result.RowsAffected

		result = tx.Delete(&db.Author{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAuthorNotFound
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrAuthorNotFound) {
			r.log.Error("Failed to delete author", zap.Uint("id", id), zap.Error(err))
		}
		return err
	}

	r.log.Info("Author deleted", zap.Uint("id", id), zap.Int64("books_detached", detached))
	return nil
}
