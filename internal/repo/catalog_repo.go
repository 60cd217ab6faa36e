package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/locallibrary/catalog/internal/db"
	"go.uber.org/zap"
)

var (
	// ErrGenreNotFound is returned when a genre is not found
	ErrGenreNotFound = errors.New("genre not found")

	// ErrLanguageNotFound is returned when a language is not found
	ErrLanguageNotFound = errors.New("language not found")

	// ErrAuthorNotFound is returned when an author is not found
	ErrAuthorNotFound = errors.New("author not found")

	// ErrBookNotFound is returned when a book is not found
	ErrBookNotFound = errors.New("book not found")

	// ErrBookInstanceNotFound is returned when a book instance is not found
	ErrBookInstanceNotFound = errors.New("book instance not found")

	// ErrLanguageExists is returned when a language name collides with an existing one ignoring case
	ErrLanguageExists = errors.New("Language already exists (case insensitive match)")

	// ErrBookInstanceAlreadyExists is returned when a supplied instance id is taken
	ErrBookInstanceAlreadyExists = errors.New("book instance already exists")
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Page selects a slice of a list result. Zero values mean first page, default size.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 || p.Size > maxPageSize {
		p.Size = defaultPageSize
	}
	return p
}

func (p Page) offset() int {
	return (p.Number - 1) * p.Size
}

// CatalogRepository handles library catalog operations
type CatalogRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(database *db.DB, logger *zap.Logger) *CatalogRepository {
	return &CatalogRepository{
		db:  database,
		log: logger,
	}
}

// CatalogStats holds row counts used for metrics
type CatalogStats struct {
	Genres            int64
	Languages         int64
	Authors           int64
	Books             int64
	BookInstances     int64
	InstancesByStatus map[db.LoanStatus]int64
}

// GetStats returns catalog statistics for metrics
func (r *CatalogRepository) GetStats(ctx context.Context) (*CatalogStats, error) {
	stats := &CatalogStats{InstancesByStatus: make(map[db.LoanStatus]int64)}

	counts := []struct {
		model interface{}
		dest  *int64
		name  string
	}{
		{&db.Genre{}, &stats.Genres, "genres"},
		{&db.Language{}, &stats.Languages, "languages"},
		{&db.Author{}, &stats.Authors, "authors"},
		{&db.Book{}, &stats.Books, "books"},
		{&db.BookInstance{}, &stats.BookInstances, "book instances"},
	}
	for _, c := range counts {
		if err := r.db.WithContext(ctx).Model(c.model).Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.name, err)
		}
	}

	var rows []struct {
		Status db.LoanStatus
		Total  int64
	}
	if err := r.db.WithContext(ctx).Model(&db.BookInstance{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count book instances by status: %w", err)
	}
	for _, status := range db.LoanStatuses() {
		stats.InstancesByStatus[status] = 0
	}
	for _, row := range rows {
		stats.InstancesByStatus[row.Status] = row.Total
	}

	return stats, nil
}
