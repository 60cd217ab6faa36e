package repo

import (
	"context"
	"errors"

	"github.com/locallibrary/catalog/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateGenre creates a new genre
func (r *CatalogRepository) CreateGenre(ctx context.Context, genre *db.Genre) error {
	if err := r.db.WithContext(ctx).Create(genre).Error; err != nil {
		r.log.Error("Failed to create genre", zap.String("name", genre.Name), zap.Error(err))
		return err
	}

	r.log.Info("Genre created", zap.Uint("id", genre.ID), zap.String("name", genre.Name))
	return nil
}

// GetGenre retrieves a genre by id
func (r *CatalogRepository) GetGenre(ctx context.Context, id uint) (*db.Genre, error) {
	var genre db.Genre
	err := r.db.WithContext(ctx).First(&genre, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGenreNotFound
		}
		r.log.Error("Failed to get genre", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}

	return &genre, nil
}

// ListGenres returns all genres ordered by name
func (r *CatalogRepository) ListGenres(ctx context.Context) ([]*db.Genre, error) {
	var genres []*db.Genre
	if err := r.db.WithContext(ctx).Order("name").Order("id").Find(&genres).Error; err != nil {
		r.log.Error("Failed to list genres", zap.Error(err))
		return nil, err
	}
	return genres, nil
}

// UpdateGenre renames a genre
func (r *CatalogRepository) UpdateGenre(ctx context.Context, genre *db.Genre) error {
	result := r.db.WithContext(ctx).Model(&db.Genre{}).Where("id = ?", genre.ID).Update("name", genre.Name)
	if result.Error != nil {
		r.log.Error("Failed to update genre", zap.Uint("id", genre.ID), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrGenreNotFound
	}

	r.log.Info("Genre updated", zap.Uint("id", genre.ID))
	return nil
}

// DeleteGenre deletes a genre and unlinks it from every book
func (r *CatalogRepository) DeleteGenre(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM book_genres WHERE genre_id = ?", id).Error; err != nil {
			return err
		}

		result := tx.Delete(&db.Genre{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrGenreNotFound
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrGenreNotFound) {
			r.log.Error("Failed to delete genre", zap.Uint("id", id), zap.Error(err))
		}
		return err
	}

	r.log.Info("Genre deleted", zap.Uint("id", id))
	return nil
}

// findGenres loads genres by id, failing if any is missing
func findGenres(tx *gorm.DB, ids []uint) ([]db.Genre, error) {
	if len(ids) == 0 {
		return []db.Genre{}, nil
	}

	unique := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}

	var genres []db.Genre
	if err := tx.Where("id IN ?", ids).Order("id").Find(&genres).Error; err != nil {
		return nil, err
	}
	if len(genres) != len(unique) {
		return nil, ErrGenreNotFound
	}
	return genres, nil
}
