package httpapi

import (
	"net/http"

	"github.com/locallibrary/catalog/internal/db"
	"github.com/locallibrary/catalog/internal/repo"
	"github.com/locallibrary/catalog/internal/validator"
)

func (s *Server) createLanguageHandler(w http.ResponseWriter, r *http.Request) {
	var input labelInput
	if err := readJSON(w, r, &input); err != nil {
		s.badRequestResponse(w, r, err)
		return
	}

	language := &db.Language{}
	if input.Name != nil {
		language.Name = *input.Name
	}

	v := validator.New()
	if validateLabel(v, language.Name); !v.Valid() {
		s.failedValidationResponse(w, r, v.Errors)
		return
	}

	if err := s.repo.CreateLanguage(r.Context(), language); err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	if err := writeJSON(w, http.StatusCreated, envelope{"language": newLanguageResponse(language)}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) listLanguagesHandler(w http.ResponseWriter, r *http.Request) {
	languages, err := s.repo.ListLanguages(r.Context())
	if err != nil {
		s.serverErrorResponse(w, r, err)
		return
	}

	resp := make([]languageResponse, 0, len(languages))
	for _, l := range languages {
		resp = append(resp, newLanguageResponse(l))
	}
	if err := writeJSON(w, http.StatusOK, envelope{"languages": resp}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) showLanguageHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r)
	if err != nil {
		s.notFoundResponse(w, r)
		return
	}

	language, err := s.repo.GetLanguage(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, repo.ErrLanguageNotFound)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"language": newLanguageResponse(language)}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) updateLanguageHandler(w http.ResponseWriter, r *http.Request) {
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

	language, err := s.repo.GetLanguage(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, repo.ErrLanguageNotFound)
		return
	}
	if input.Name != nil {
		language.Name = *input.Name
	}

	v := validator.New()
	if validateLabel(v, language.Name); !v.Valid() {
		s.failedValidationResponse(w, r, v.Errors)
		return
	}

	if err := s.repo.UpdateLanguage(r.Context(), language); err != nil {
		s.writeError(w, r, err, repo.ErrLanguageNotFound)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"language": newLanguageResponse(language)}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) deleteLanguageHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r)
	if err != nil {
		s.notFoundResponse(w, r)
		return
	}

	if err := s.repo.DeleteLanguage(r.Context(), id); err != nil {
		s.writeError(w, r, err, repo.ErrLanguageNotFound)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"message": "language successfully deleted"}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}
