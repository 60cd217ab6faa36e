package httpapi

import (
	"time"

	"github.com/locallibrary/catalog/internal/db"
)

type genreResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func newGenreResponse(g *db.Genre) genreResponse {
	return genreResponse{ID: g.ID, Name: g.Name}
}

type languageResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func newLanguageResponse(l *db.Language) languageResponse {
	return languageResponse{ID: l.ID, Name: l.Name}
}

type authorResponse struct {
	ID          uint   `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	DateOfDeath string `json:"date_of_death,omitempty"`
	Name        string `json:"name"`
	URL         string `json:"url"`
}

func newAuthorResponse(a *db.Author) authorResponse {
	return authorResponse{
		ID:          a.ID,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		DateOfBirth: db.FormatDate(a.DateOfBirth),
		DateOfDeath: db.FormatDate(a.DateOfDeath),
		Name:        a.String(),
		URL:         a.AbsoluteURL(),
	}
}

type bookResponse struct {
	ID           uint              `json:"id"`
	Title        string            `json:"title"`
	Summary      string            `json:"summary"`
	ISBN         string            `json:"isbn"`
	DateAdded    string            `json:"date_added,omitempty"`
	Author       *authorResponse   `json:"author,omitempty"`
	Language     *languageResponse `json:"language,omitempty"`
	Genres       []genreResponse   `json:"genres"`
	DisplayGenre string            `json:"display_genre"`
	URL          string            `json:"url"`
}

func newBookResponse(b *db.Book) bookResponse {
	resp := bookResponse{
		ID:           b.ID,
		Title:        b.Title,
		Summary:      b.Summary,
		ISBN:         b.ISBN,
		DateAdded:    db.FormatDate(b.DateAdded),
		Genres:       make([]genreResponse, 0, len(b.Genres)),
		DisplayGenre: b.DisplayGenre(),
		URL:          b.AbsoluteURL(),
	}
	if b.Author != nil {
		author := newAuthorResponse(b.Author)
		resp.Author = &author
	}
	if b.Language != nil {
		language := newLanguageResponse(b.Language)
		resp.Language = &language
	}
	for i := range b.Genres {
		resp.Genres = append(resp.Genres, newGenreResponse(&b.Genres[i]))
	}
	return resp
}

type instanceResponse struct {
	ID          string        `json:"id"`
	BookID      *uint         `json:"book_id"`
	BookTitle   string        `json:"book_title,omitempty"`
	Imprint     string        `json:"imprint"`
	DueBack     string        `json:"due_back,omitempty"`
	BorrowerID  *string       `json:"borrower_id"`
	Status      db.LoanStatus `json:"status"`
	StatusLabel string        `json:"status_label"`
	IsOverdue   bool          `json:"is_overdue"`
	Display     string        `json:"display"`
}

func newInstanceResponse(bi *db.BookInstance, now time.Time) instanceResponse {
	resp := instanceResponse{
		ID:          bi.ID.String(),
		BookID:      bi.BookID,
		Imprint:     bi.Imprint,
		DueBack:     db.FormatDate(bi.DueBack),
		BorrowerID:  bi.BorrowerID,
		Status:      bi.Status,
		StatusLabel: bi.Status.Label(),
		IsOverdue:   bi.IsOverdue(now),
		Display:     bi.String(),
	}
	if bi.Book != nil {
		resp.BookTitle = bi.Book.Title
	}
	return resp
}
