package httpapi

import (
	"net/http"

	"github.com/locallibrary/catalog/internal/db"
	"github.com/locallibrary/catalog/internal/repo"
	"github.com/locallibrary/catalog/internal/validator"
	"gorm.io/datatypes"
)

type authorInput struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	DateOfBirth *string `json:"date_of_birth"`
	DateOfDeath *string `json:"date_of_death"`
}

// parseDateField parses a YYYY-MM-DD value. The empty string clears the date.
func parseDateField(v *validator.Validator, key, value string) *datatypes.Date {
	if value == "" {
		return nil
	}
	d, err := db.ParseDate(value)
	if err != nil {
		v.AddError(key, "must be a date in YYYY-MM-DD format")
		return nil
	}
	return d
}

// apply copies the provided fields onto author and validates the result
func (in authorInput) apply(v *validator.Validator, author *db.Author) {
	if in.FirstName != nil {
		author.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		author.LastName = *in.LastName
	}
	if in.DateOfBirth != nil {
		author.DateOfBirth = parseDateField(v, "date_of_birth", *in.DateOfBirth)
	}
	if in.DateOfDeath != nil {
		author.DateOfDeath = parseDateField(v, "date_of_death", *in.DateOfDeath)
	}

	v.Check(validator.NotBlank(author.FirstName), "first_name", "must be provided")
	v.Check(validator.MaxChars(author.FirstName, 100), "first_name", "must not be more than 100 characters long")
	v.Check(validator.NotBlank(author.LastName), "last_name", "must be provided")
	v.Check(validator.MaxChars(author.LastName, 100), "last_name", "must not be more than 100 characters long")
}

func (s *Server) createAuthorHandler(w http.ResponseWriter, r *http.Request) {
	var input authorInput
	if err := readJSON(w, r, &input); err != nil {
		s.badRequestResponse(w, r, err)
		return
	}

	author := &db.Author{}
	v := validator.New()
	if input.apply(v, author); !v.Valid() {
		s.failedValidationResponse(w, r, v.Errors)
		return
	}

	if err := s.repo.CreateAuthor(r.Context(), author); err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	headers := make(http.Header)
	headers.Set("Location", author.AbsoluteURL())
	if err := writeJSON(w, http.StatusCreated, envelope{"author": newAuthorResponse(author)}, headers); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) listAuthorsHandler(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	v := validator.New()

	page, err := readInt(qs, "page", 1)
	if err != nil {
		v.AddError("page", err.Error())
	}
	pageSize, err := readInt(qs, "page_size", 10)
	if err != nil {
		v.AddError("page_size", err.Error())
	}
	if !v.Valid() {
		s.failedValidationResponse(w, r, v.Errors)
		return
	}

	authors, total, err := s.repo.ListAuthors(r.Context(), repo.Page{Number: page, Size: pageSize})
	if err != nil {
		s.serverErrorResponse(w, r, err)
		return
	}

	resp := make([]authorResponse, 0, len(authors))
	for _, a := range authors {
		resp = append(resp, newAuthorResponse(a))
	}
	env := envelope{"authors": resp, "metadata": newMetadata(page, pageSize, total)}
	if err := writeJSON(w, http.StatusOK, env, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) showAuthorHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r)
	if err != nil {
		s.notFoundResponse(w, r)
		return
	}

	author, err := s.repo.GetAuthor(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, repo.ErrAuthorNotFound)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"author": newAuthorResponse(author)}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) updateAuthorHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r)
	if err != nil {
		s.notFoundResponse(w, r)
		return
	}

	var input authorInput
	if err := readJSON(w, r, &input); err != nil {
		s.badRequestResponse(w, r, err)
		return
	}

	author, err := s.repo.GetAuthor(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, repo.ErrAuthorNotFound)
		return
	}

	v := validator.New()
	if input.apply(v, author); !v.Valid() {
		s.failedValidationResponse(w, r, v.Errors)
		return
	}

	if err := s.repo.UpdateAuthor(r.Context(), author); err != nil {
		s.writeError(w, r, err, repo.ErrAuthorNotFound)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"author": newAuthorResponse(author)}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) deleteAuthorHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r)
	if err != nil {
		s.notFoundResponse(w, r)
		return
	}

	if err := s.repo.DeleteAuthor(r.Context(), id); err != nil {
		s.writeError(w, r, err, repo.ErrAuthorNotFound)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"message": "author successfully deleted"}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}
