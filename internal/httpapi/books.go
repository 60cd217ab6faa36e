package httpapi

import (
	"context"
	"net/http"

	"github.com/locallibrary/catalog/internal/db"
	"github.com/locallibrary/catalog/internal/events"
	"github.com/locallibrary/catalog/internal/repo"
	"github.com/locallibrary/catalog/internal/validator"
)

// bookInput is the body of POST and PATCH /v1/books. Omitted fields are left
// unchanged on PATCH; an id of 0 clears a reference.
type bookInput struct {
	Title      *string `json:"title"`
	Summary    *string `json:"summary"`
	ISBN       *string `json:"isbn"`
	DateAdded  *string `json:"date_added"`
	AuthorID   *uint   `json:"author_id"`
	LanguageID *uint   `json:"language_id"`
	GenreIDs   *[]uint `json:"genre_ids"`
}

func optionalID(id uint) *uint {
	if id == 0 {
		return nil
	}
	return &id
}

// apply copies the provided fields onto book and returns their names
func (in bookInput) apply(v *validator.Validator, book *db.Book) []string {
	var fields []string

	if in.Title != nil {
		book.Title = *in.Title
		fields = append(fields, "title")
	}
	if in.Summary != nil {
		book.Summary = *in.Summary
		fields = append(fields, "summary")
	}
	if in.ISBN != nil {
		book.ISBN = *in.ISBN
		fields = append(fields, "isbn")
	}
	if in.DateAdded != nil {
		book.DateAdded = parseDateField(v, "date_added", *in.DateAdded)
		fields = append(fields, "date_added")
	}
	if in.AuthorID != nil {
		book.AuthorID = optionalID(*in.AuthorID)
		fields = append(fields, "author_id")
	}
	if in.LanguageID != nil {
		book.LanguageID = optionalID(*in.LanguageID)
		fields = append(fields, "language_id")
	}
	if in.GenreIDs != nil {
		v.Check(validator.Unique(*in.GenreIDs), "genre_ids", "must not contain duplicate values")
		fields = append(fields, "genres")
	}

	v.Check(validator.NotBlank(book.Title), "title", "must be provided")
	v.Check(validator.MaxChars(book.Title, 200), "title", "must not be more than 200 characters long")
	v.Check(validator.MaxChars(book.Summary, 1000), "summary", "must not be more than 1000 characters long")
	v.Check(validator.MaxChars(book.ISBN, 13), "isbn", "must not be more than 13 characters long")
	return fields
}

func (in bookInput) genreIDs() []uint {
	if in.GenreIDs == nil {
		return nil
	}
	return *in.GenreIDs
}

func (s *Server) createBookHandler(w http.ResponseWriter, r *http.Request) {
	var input bookInput
	if err := readJSON(w, r, &input); err != nil {
		s.badRequestResponse(w, r, err)
		return
	}

	book := &db.Book{}
	v := validator.New()
	if input.apply(v, book); !v.Valid() {
		s.failedValidationResponse(w, r, v.Errors)
		return
	}

	if err := s.repo.CreateBook(r.Context(), book, input.genreIDs()); err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	s.publishAsync(r, events.EventTypeBookCreated, func(ctx context.Context) error {
		return s.publisher.PublishBookCreated(ctx, book)
	})

	headers := make(http.Header)
	headers.Set("Location", book.AbsoluteURL())
	if err := writeJSON(w, http.StatusCreated, envelope{"book": newBookResponse(book)}, headers); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) listBooksHandler(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	v := validator.New()
	filter := repo.BookFilter{Title: readString(qs, "title", "")}

	var err error
	if filter.AuthorID, err = readUint(qs, "author_id"); err != nil {
		v.AddError("author_id", err.Error())
	}
	if filter.GenreID, err = readUint(qs, "genre_id"); err != nil {
		v.AddError("genre_id", err.Error())
	}
	if filter.LanguageID, err = readUint(qs, "language_id"); err != nil {
		v.AddError("language_id", err.Error())
	}
	if filter.Page.Number, err = readInt(qs, "page", 1); err != nil {
		v.AddError("page", err.Error())
	}
	if filter.Page.Size, err = readInt(qs, "page_size", 10); err != nil {
		v.AddError("page_size", err.Error())
	}
	if !v.Valid() {
		s.failedValidationResponse(w, r, v.Errors)
		return
	}

	books, total, err := s.repo.ListBooks(r.Context(), filter)
	if err != nil {
		s.serverErrorResponse(w, r, err)
		return
	}

	resp := make([]bookResponse, 0, len(books))
	for _, b := range books {
		resp = append(resp, newBookResponse(b))
	}
	env := envelope{"books": resp, "metadata": newMetadata(filter.Page.Number, filter.Page.Size, total)}
	if err := writeJSON(w, http.StatusOK, env, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) showBookHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r)
	if err != nil {
		s.notFoundResponse(w, r)
		return
	}

	book, err := s.repo.GetBook(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, repo.ErrBookNotFound)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"book": newBookResponse(book)}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) updateBookHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r)
	if err != nil {
		s.notFoundResponse(w, r)
		return
	}

	var input bookInput
	if err := readJSON(w, r, &input); err != nil {
		s.badRequestResponse(w, r, err)
		return
	}

	book, err := s.repo.GetBook(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, repo.ErrBookNotFound)
		return
	}

	v := validator.New()
	updateMask := input.apply(v, book)
	if !v.Valid() {
		s.failedValidationResponse(w, r, v.Errors)
		return
	}

	var fieldsChanged []string
	if len(updateMask) > 0 {
		fieldsChanged, err = s.repo.UpdateBook(r.Context(), book, updateMask, input.genreIDs())
		if err != nil {
			s.writeError(w, r, err, repo.ErrBookNotFound)
			return
		}
	}

	if fieldsChanged == nil {
		fieldsChanged = []string{}
	}

	updated, err := s.repo.GetBook(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, repo.ErrBookNotFound)
		return
	}

	if len(fieldsChanged) > 0 {
		s.publishAsync(r, events.EventTypeBookUpdated, func(ctx context.Context) error {
			return s.publisher.PublishBookUpdated(ctx, updated, fieldsChanged)
		})
	}

	env := envelope{"book": newBookResponse(updated), "fields_changed": fieldsChanged}
	if err := writeJSON(w, http.StatusOK, env, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) deleteBookHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r)
	if err != nil {
		s.notFoundResponse(w, r)
		return
	}

	if err := s.repo.DeleteBook(r.Context(), id); err != nil {
		s.writeError(w, r, err, repo.ErrBookNotFound)
		return
	}

	s.publishAsync(r, events.EventTypeBookDeleted, func(ctx context.Context) error {
		return s.publisher.PublishBookDeleted(ctx, id)
	})

	if err := writeJSON(w, http.StatusOK, envelope{"message": "book successfully deleted"}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}
