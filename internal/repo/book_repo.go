package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/locallibrary/catalog/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// bookFields are compared when UpdateBook is called without an update mask
var bookFields = []string{"title", "summary", "isbn", "date_added", "author_id", "language_id"}

// BookFilter narrows ListBooks. Zero values disable a filter.
type BookFilter struct {
	Title      string
	AuthorID   uint
	LanguageID uint
	GenreID    uint
	Page       Page
}

// ListBooks returns a paginated list of books with optional filters
func (r *CatalogRepository) ListBooks(ctx context.Context, filter BookFilter) ([]*db.Book, int64, error) {
	page := filter.Page.normalize()
	query := r.db.WithContext(ctx).Model(&db.Book{})

	// Apply filters
	if filter.Title != "" {
		query = query.Where(`LOWER(title) LIKE LOWER(?) ESCAPE '\'`, "%"+escapeLike(filter.Title)+"%")
	}
	if filter.AuthorID != 0 {
		query = query.Where("author_id = ?", filter.AuthorID)
	}
	if filter.LanguageID != 0 {
		query = query.Where("language_id = ?", filter.LanguageID)
	}
	if filter.GenreID != 0 {
		query = query.Where("id IN (?)",
			r.db.WithContext(ctx).Table("book_genres").Select("book_id").Where("genre_id = ?", filter.GenreID))
	}

	query = query.Session(&gorm.Session{})

	// Count total
	var total int64
	if err := query.Count(&total).Error; err != nil {
		r.log.Error("Failed to count books", zap.Error(err))
		return nil, 0, err
	}

	var books []*db.Book
	if err := preloadBook(query).Offset(page.offset()).Limit(page.Size).Order("id").Find(&books).Error; err != nil {
		r.log.Error("Failed to list books", zap.Error(err))
		return nil, 0, err
	}

	return books, total, nil
}

// GetBook retrieves a book by id together with its author, language and genres
func (r *CatalogRepository) GetBook(ctx context.Context, id uint) (*db.Book, error) {
	var book db.Book
	err := preloadBook(r.db.WithContext(ctx)).First(&book, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		r.log.Error("Failed to get book", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}

	return &book, nil
}

// CreateBook creates a new book linked to the given genres.
// Validation against the author's birth date runs in the model's BeforeSave hook.
func (r *CatalogRepository) CreateBook(ctx context.Context, book *db.Book, genreIDs []uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := resolveBookRefs(tx, book); err != nil {
			return err
		}

		genres, err := findGenres(tx, genreIDs)
		if err != nil {
			return err
		}

		if err := tx.Omit(clause.Associations).Create(book).Error; err != nil {
			return err
		}

		if len(genres) > 0 {
			if err := tx.Model(book).Association("Genres").Replace(genres); err != nil {
				return err
			}
		}
		book.Genres = genres
		return nil
	})
	if err != nil {
		if !isClientError(err) {
			r.log.Error("Failed to create book", zap.String("title", book.Title), zap.Error(err))
		}
		return err
	}

	r.log.Info("Book created", zap.Uint("id", book.ID), zap.String("title", book.Title))
	return nil
}

// UpdateBook applies the fields named in updateMask (all scalar fields when empty)
// and returns the fields that actually changed. Including "genres" in the mask
// replaces the genre set with genreIDs.
func (r *CatalogRepository) UpdateBook(ctx context.Context, book *db.Book, updateMask []string, genreIDs []uint) ([]string, error) {
	var fieldsChanged []string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing db.Book
		if err := preloadBook(tx).First(&existing, book.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		fieldsChanged = getChangedFields(&existing, book, updateMask)

		var genres []db.Genre
		replaceGenres := containsField(updateMask, "genres")
		if replaceGenres {
			var err error
			if genres, err = findGenres(tx, genreIDs); err != nil {
				return err
			}
			if !sameGenres(existing.Genres, genres) {
				fieldsChanged = append(fieldsChanged, "genres")
			}
		}

		if len(fieldsChanged) == 0 {
			return nil
		}

		for _, field := range fieldsChanged {
			switch field {
			case "title":
				existing.Title = book.Title
			case "summary":
				existing.Summary = book.Summary
			case "isbn":
				existing.ISBN = book.ISBN
			case "date_added":
				existing.DateAdded = book.DateAdded
			case "author_id":
				existing.AuthorID = book.AuthorID
				existing.Author = nil
			case "language_id":
				existing.LanguageID = book.LanguageID
				existing.Language = nil
			}
		}

		if err := resolveBookRefs(tx, &existing); err != nil {
			return err
		}

		if err := tx.Omit(clause.Associations).Save(&existing).Error; err != nil {
			return err
		}

		if replaceGenres {
			if err := tx.Model(&existing).Association("Genres").Replace(genres); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if !isClientError(err) {
			r.log.Error("Failed to update book", zap.Uint("id", book.ID), zap.Error(err))
		}
		return nil, err
	}

	if len(fieldsChanged) == 0 {
		r.log.Info("No fields changed", zap.Uint("id", book.ID))
		return fieldsChanged, nil
	}

	r.log.Info("Book updated", zap.Uint("id", book.ID), zap.Strings("fields_changed", fieldsChanged))
	return fieldsChanged, nil
}

// DeleteBook deletes a book; its instances stay registered without a book
func (r *CatalogRepository) DeleteBook(ctx context.Context, id uint) error {
	var detached int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&db.BookInstance{}).Where("book_id = ?", id).UpdateColumn("book_id", nil)
		if result.Error != nil {
			return result.Error
		}
		detached = result.RowsAffected

		if err := tx.Model(&db.Book{ID: id}).Association("Genres").Clear(); err != nil {
			return err
		}

		result = tx.Delete(&db.Book{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrBookNotFound
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrBookNotFound) {
			r.log.Error("Failed to delete book", zap.Uint("id", id), zap.Error(err))
		}
		return err
	}

	r.log.Info("Book deleted", zap.Uint("id", id), zap.Int64("instances_detached", detached))
	return nil
}

func preloadBook(query *gorm.DB) *gorm.DB {
	return query.
		Preload("Author").
		Preload("Language").
		Preload("Genres", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("genres.id")
		})
}

// resolveBookRefs loads the referenced author and language so that missing
// rows surface as not-found errors and the validation hook sees the author.
func resolveBookRefs(tx *gorm.DB, book *db.Book) error {
	book.Author = nil
	if book.AuthorID != nil {
		var author db.Author
		if err := tx.First(&author, *book.AuthorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAuthorNotFound
			}
			return err
		}
		book.Author = &author
	}

	book.Language = nil
	if book.LanguageID != nil {
		var language db.Language
		if err := tx.First(&language, *book.LanguageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLanguageNotFound
			}
			return err
		}
		book.Language = &language
	}

	return nil
}

// getChangedFields compares old and new book and returns list of changed fields
func getChangedFields(old, new *db.Book, updateMask []string) []string {
	var changed []string

	// If update mask is provided, only check those fields
	checkFields := updateMask
	if len(checkFields) == 0 {
		checkFields = bookFields
	}

	for _, field := range checkFields {
		switch field {
		case "title":
			if old.Title != new.Title {
				changed = append(changed, "title")
			}
		case "summary":
			if old.Summary != new.Summary {
				changed = append(changed, "summary")
			}
		case "isbn":
			if old.ISBN != new.ISBN {
				changed = append(changed, "isbn")
			}
		case "date_added":
			if db.FormatDate(old.DateAdded) != db.FormatDate(new.DateAdded) {
				changed = append(changed, "date_added")
			}
		case "author_id":
			if !equalID(old.AuthorID, new.AuthorID) {
				changed = append(changed, "author_id")
			}
		case "language_id":
			if !equalID(old.LanguageID, new.LanguageID) {
				changed = append(changed, "language_id")
			}
		}
	}

	return changed
}

func sameGenres(old, new []db.Genre) bool {
	if len(old) != len(new) {
		return false
	}
	ids := make(map[uint]struct{}, len(old))
	for _, g := range old {
		ids[g.ID] = struct{}{}
	}
	for _, g := range new {
		if _, ok := ids[g.ID]; !ok {
			return false
		}
	}
	return true
}

func equalID(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes LIKE wildcards in s match literally
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

// isClientError reports errors caused by the caller's input rather than storage
func isClientError(err error) bool {
	var validationErr *db.ValidationError
	return errors.As(err, &validationErr) ||
		errors.Is(err, db.ErrInvalidLoanStatus) ||
		errors.Is(err, ErrGenreNotFound) ||
		errors.Is(err, ErrLanguageNotFound) ||
		errors.Is(err, ErrAuthorNotFound) ||
		errors.Is(err, ErrBookNotFound) ||
		errors.Is(err, ErrBookInstanceNotFound) ||
		errors.Is(err, ErrBookInstanceAlreadyExists)
}
