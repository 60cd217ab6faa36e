package db

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayGenre(t *testing.T) {
	tests := []struct {
		name   string
		genres []string
		want   string
	}{
		{"none", nil, ""},
		{"one", []string{"Fantasy"}, "Fantasy"},
		{"three", []string{"A", "B", "C"}, "A, B, C"},
		{"more than three", []string{"A", "B", "C", "D"}, "A, B, C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := Book{Title: "Anthology"}
			for _, name := range tt.genres {
				book.Genres = append(book.Genres, Genre{Name: name})
			}
			assert.Equal(t, tt.want, book.DisplayGenre())
		})
	}
}

func TestBookClean(t *testing.T) {
	born := &Author{FirstName: "Ursula", LastName: "Le Guin", DateOfBirth: NewDate(1929, time.October, 21)}
	unknownBirth := &Author{FirstName: "Unknown", LastName: "Author"}

	tests := []struct {
		name    string
		added   string
		author  *Author
		wantErr error
	}{
		{"before birth", "1929-10-20", born, ErrAddedBeforeAuthorBirth},
		{"on birth day", "1929-10-21", born, nil},
		{"after birth", "1969-03-01", born, nil},
		{"no birth date", "1800-01-01", unknownBirth, nil},
		{"no author", "1800-01-01", nil, nil},
		{"no added date", "", born, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := &Book{Title: "The Left Hand of Darkness"}
			if tt.added != "" {
				added, err := ParseDate(tt.added)
				require.NoError(t, err)
				book.DateAdded = added
			}

			err := book.Clean(tt.author)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDisplayStrings(t *testing.T) {
	author := Author{ID: 7, FirstName: "Jane", LastName: "Austen"}
	assert.Equal(t, "Austen, Jane", author.String())
	assert.Equal(t, "/catalog/author/7", author.AbsoluteURL())

	book := Book{ID: 3, Title: "Emma"}
	assert.Equal(t, "Emma", book.String())
	assert.Equal(t, "/catalog/book/3", book.AbsoluteURL())

	assert.Equal(t, "Romance", Genre{Name: "Romance"}.String())
	assert.Equal(t, "English", Language{Name: "English"}.String())

	id := uuid.MustParse("6f1c2b1e-0c55-4b4e-9d7a-3d6c0f0a1b2c")
	instance := BookInstance{ID: id, Book: &book}
	assert.Equal(t, "6f1c2b1e-0c55-4b4e-9d7a-3d6c0f0a1b2c (Emma)", instance.String())

	instance.Book = nil
	assert.Equal(t, "6f1c2b1e-0c55-4b4e-9d7a-3d6c0f0a1b2c", instance.String())
}

func TestLanguageKey(t *testing.T) {
	assert.Equal(t, "english", LanguageKey("English"))
	assert.Equal(t, LanguageKey("ñandú"), LanguageKey("ÑANDÚ"))
	assert.Equal(t, LanguageKey("ελληνικά"), LanguageKey("ΕΛΛΗΝΙΚΆ"))

	l := &Language{Name: "Français"}
	require.NoError(t, l.BeforeSave(nil))
	assert.Equal(t, "français", l.NameKey)
}

func TestBookInstanceIsOverdue(t *testing.T) {
	now := time.Date(2026, time.October, 18, 15, 0, 0, 0, time.UTC)

	instance := BookInstance{}
	assert.False(t, instance.IsOverdue(now))

	instance.DueBack = NewDate(2026, time.October, 18)
	assert.False(t, instance.IsOverdue(now))

	instance.DueBack = NewDate(2026, time.October, 17)
	assert.True(t, instance.IsOverdue(now))
}

func TestBookInstanceBeforeCreate(t *testing.T) {
	instance := &BookInstance{Imprint: "Penguin"}
	require.NoError(t, instance.BeforeCreate(nil))
	assert.NotEqual(t, uuid.Nil, instance.ID)
	assert.Equal(t, StatusMaintenance, instance.Status)

	supplied := uuid.New()
	instance = &BookInstance{ID: supplied, Status: StatusOnLoan}
	require.NoError(t, instance.BeforeCreate(nil))
	assert.Equal(t, supplied, instance.ID)
	assert.Equal(t, StatusOnLoan, instance.Status)

	instance = &BookInstance{Status: "z"}
	assert.ErrorIs(t, instance.BeforeCreate(nil), ErrInvalidLoanStatus)
}

func TestDates(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", FormatDate(d))
	assert.Equal(t, "", FormatDate(nil))

	_, err = ParseDate("29/02/2024")
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, ":memory:?_foreign_keys=1&_busy_timeout=5000", SQLiteDSN(":memory:"))
	assert.Equal(t, "file:lib.db?mode=rwc&_foreign_keys=1&_busy_timeout=5000", SQLiteDSN("file:lib.db?mode=rwc"))
}
