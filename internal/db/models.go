package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Genre represents a book genre (e.g. Science Fiction, French Poetry)
type Genre struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(200);not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Genre model
func (Genre) TableName() string {
	return "genres"
}

func (g Genre) String() string {
	return g.Name
}

// Language represents a natural language a book is written in.
// Names are unique ignoring letter case through the folded NameKey column.
type Language struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(200);not null" json:"name"`
	NameKey   string    `gorm:"type:varchar(200);not null;uniqueIndex:language_name_case_insensitive_unique" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LanguageKey folds a language name for case-insensitive comparison.
// Unlike SQL LOWER it folds non-ASCII letters on every driver.
func LanguageKey(name string) string {
	return cases.Fold().String(name)
}

// BeforeSave hook keeps NameKey in step with Name
func (l *Language) BeforeSave(tx *gorm.DB) error {
	l.NameKey = LanguageKey(l.Name)
	return nil
}

// TableName specifies the table name for Language model
func (Language) TableName() string {
	return "languages"
}

func (l Language) String() string {
	return l.Name
}

// Author represents a person who wrote one or more books
type Author struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	FirstName   string          `gorm:"type:varchar(100);not null" json:"first_name"`
	LastName    string          `gorm:"type:varchar(100);not null;index:idx_authors_last_name" json:"last_name"`
	DateOfBirth *datatypes.Date `json:"date_of_birth,omitempty"`
	DateOfDeath *datatypes.Date `json:"date_of_death,omitempty"` // "Died"
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Author model
func (Author) TableName() string {
	return "authors"
}

func (a Author) String() string {
	return fmt.Sprintf("%s, %s", a.LastName, a.FirstName)
}

// AbsoluteURL returns the path of the author detail page
func (a Author) AbsoluteURL() string {
	return fmt.Sprintf("/catalog/author/%d", a.ID)
}

// Book represents a title in the catalog, not a specific copy of it
type Book struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Title      string          `gorm:"type:varchar(200);not null;index:idx_books_title" json:"title"`
	DateAdded  *datatypes.Date `gorm:"column:date_added" json:"date_added,omitempty"`
	Summary    string          `gorm:"type:varchar(1000)" json:"summary"`
	ISBN       string          `gorm:"column:isbn;type:varchar(13)" json:"isbn"`
	AuthorID   *uint           `gorm:"index:idx_books_author" json:"author_id,omitempty"`
	Author     *Author         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"author,omitempty"`
	LanguageID *uint           `gorm:"index:idx_books_language" json:"language_id,omitempty"`
	Language   *Language       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"language,omitempty"`
	Genres     []Genre         `gorm:"many2many:book_genres;constraint:OnDelete:CASCADE;" json:"genres,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Book model
func (Book) TableName() string {
	return "books"
}

func (b Book) String() string {
	return b.Title
}

// AbsoluteURL returns the path of the book detail page
func (b Book) AbsoluteURL() string {
	return fmt.Sprintf("/catalog/book/%d", b.ID)
}

// DisplayGenre joins the names of the first three genres for compact listings
func (b Book) DisplayGenre() string {
	names := make([]string, 0, 3)
	for i, g := range b.Genres {
		if i == 3 {
			break
		}
		names = append(names, g.Name)
	}
	return strings.Join(names, ", ")
}

// Clean checks the book against its author. A nil author, a missing added
// date or a missing birth date all pass.
func (b *Book) Clean(author *Author) error {
	if author == nil || b.DateAdded == nil || author.DateOfBirth == nil {
		return nil
	}
	if dateOnly(*b.DateAdded).Before(dateOnly(*author.DateOfBirth)) {
		return ErrAddedBeforeAuthorBirth
	}
	return nil
}

// BeforeSave hook validates the book before every insert or update
func (b *Book) BeforeSave(tx *gorm.DB) error {
	if b.AuthorID == nil {
		if b.Author == nil {
			return nil
		}
		return b.Clean(b.Author)
	}

	if b.Author != nil && b.Author.ID == *b.AuthorID {
		return b.Clean(b.Author)
	}

	var author Author
	err := tx.Session(&gorm.Session{NewDB: true}).First(&author, *b.AuthorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUnknownAuthor
	}
	if err != nil {
		return err
	}
	return b.Clean(&author)
}

// BookInstance represents one copy of a book that can be borrowed
type BookInstance struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BookID     *uint           `gorm:"index:idx_book_instances_book" json:"book_id,omitempty"`
	Book       *Book           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"book,omitempty"`
	Imprint    string          `gorm:"type:varchar(200);not null" json:"imprint"`
	DueBack    *datatypes.Date `gorm:"index:idx_book_instances_due_back" json:"due_back,omitempty"`
	BorrowerID *string         `gorm:"type:varchar(64);index:idx_book_instances_borrower" json:"borrower_id,omitempty"`
	Status     LoanStatus      `gorm:"type:varchar(1);not null;default:'m';index:idx_book_instances_status" json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TableName specifies the table name for BookInstance model
func (BookInstance) TableName() string {
	return "book_instances"
}

func (bi BookInstance) String() string {
	if bi.Book == nil {
		return bi.ID.String()
	}
	return fmt.Sprintf("%s (%s)", bi.ID, bi.Book.Title)
}

// IsOverdue reports whether the due-back date lies before today
func (bi BookInstance) IsOverdue(now time.Time) bool {
	if bi.DueBack == nil {
		return false
	}
	return dateOnly(*bi.DueBack).Before(dateOnly(datatypes.Date(now)))
}

// BeforeCreate hook assigns an identifier and the default status
func (bi *BookInstance) BeforeCreate(tx *gorm.DB) error {
	if bi.ID == uuid.Nil {
		bi.ID = uuid.New()
	}
	if bi.Status == "" {
		bi.Status = StatusMaintenance
	}
	if !bi.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidLoanStatus, string(bi.Status))
	}
	return nil
}

// BeforeUpdate hook rejects statuses outside the closed set
func (bi *BookInstance) BeforeUpdate(tx *gorm.DB) error {
	if !bi.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidLoanStatus, string(bi.Status))
	}
	return nil
}
