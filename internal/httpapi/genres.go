package httpapi

import (
	"net/http"

	"github.com/locallibrary/catalog/internal/db"
	"github.com/locallibrary/catalog/internal/repo"
	"github.com/locallibrary/catalog/internal/validator"
)

// labelInput is the request body of genres and languages
type labelInput struct {
	Name *string `json:"name"`
}

func validateLabel(v *validator.Validator, name string) {
	v.Check(validator.NotBlank(name), "name", "must be provided")
	v.Check(validator.MaxChars(name, 200), "name", "must not be more than 200 characters long")
}

func (s *Server) createGenreHandler(w http.ResponseWriter, r *http.Request) {
	var input labelInput
	if err := readJSON(w, r, &input); err != nil {
		s.badRequestResponse(w, r, err)
		return
	}

	genre := &db.Genre{}
	if input.Name != nil {
		genre.Name = *input.Name
	}

	v := validator.New()
	if validateLabel(v, genre.Name); !v.Valid() {
		s.failedValidationResponse(w, r, v.Errors)
		return
	}

	if err := s.repo.CreateGenre(r.Context(), genre); err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	if err := writeJSON(w, http.StatusCreated, envelope{"genre": newGenreResponse(genre)}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) listGenresHandler(w http.ResponseWriter, r *http.Request) {
	genres, err := s.repo.ListGenres(r.Context())
	if err != nil {
		s.serverErrorResponse(w, r, err)
		return
	}

	resp := make([]genreResponse, 0, len(genres))
	for _, g := range genres {
		resp = append(resp, newGenreResponse(g))
	}
	if err := writeJSON(w, http.StatusOK, envelope{"genres": resp}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) showGenreHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r)
	if err != nil {
		s.notFoundResponse(w, r)
		return
	}

	genre, err := s.repo.GetGenre(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, repo.ErrGenreNotFound)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"genre": newGenreResponse(genre)}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) updateGenreHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r)
	if err != nil {
		s.notFoundResponse(w, r)
		return
	}

	var input labelInput
	if err := readJSON(w, r, &input); err != nil {
		s.badRequestResponse(w, r, err)
		return
	}

	genre, err := s.repo.GetGenre(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, repo.ErrGenreNotFound)
		return
	}
	if input.Name != nil {
		genre.Name = *input.Name
	}

	v := validator.New()
	if validateLabel(v, genre.Name); !v.Valid() {
		s.failedValidationResponse(w, r, v.Errors)
		return
	}

	if err := s.repo.UpdateGenre(r.Context(), genre); err != nil {
		s.writeError(w, r, err, repo.ErrGenreNotFound)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"genre": newGenreResponse(genre)}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) deleteGenreHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r)
	if err != nil {
		s.notFoundResponse(w, r)
		return
	}

	if err := s.repo.DeleteGenre(r.Context(), id); err != nil {
		s.writeError(w, r, err, repo.ErrGenreNotFound)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"message": "genre successfully deleted"}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}
