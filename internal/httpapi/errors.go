package httpapi

import (
	"errors"
	"net/http"

	"github.com/locallibrary/catalog/internal/db"
	"github.com/locallibrary/catalog/internal/events"
	"github.com/locallibrary/catalog/internal/repo"
	"go.uber.org/zap"
)

func (s *Server) logError(r *http.Request, err error) {
	s.log.Error(err.Error(),
		zap.String("request_method", r.Method),
		zap.String("request_url", r.URL.String()),
		zap.String("correlation_id", events.CorrelationID(r.Context())),
	)
}

func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, status int, message any) {
	if err := writeJSON(w, status, envelope{"error": message}, nil); err != nil {
		s.logError(r, err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// serverErrorResponse logs err and hides it from the client
func (s *Server) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	s.logError(r, err)
	s.errorResponse(w, r, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
}

func (s *Server) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	s.errorResponse(w, r, http.StatusNotFound, "the requested resource could not be found")
}

func (s *Server) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	s.errorResponse(w, r, http.StatusMethodNotAllowed, "the "+r.Method+" method is not supported for this resource")
}

func (s *Server) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	s.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (s *Server) failedValidationResponse(w http.ResponseWriter, r *http.Request, errs map[string]string) {
	s.errorResponse(w, r, http.StatusUnprocessableEntity, errs)
}

func (s *Server) conflictResponse(w http.ResponseWriter, r *http.Request, err error) {
	s.errorResponse(w, r, http.StatusConflict, err.Error())
}

func (s *Server) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request) {
	s.errorResponse(w, r, http.StatusTooManyRequests, "rate limit exceeded")
}

// referenceFields maps not-found errors of referenced rows to the request field naming them
var referenceFields = []struct {
	err   error
	field string
}{
	{repo.ErrAuthorNotFound, "author_id"},
	{repo.ErrLanguageNotFound, "language_id"},
	{repo.ErrGenreNotFound, "genre_ids"},
	{repo.ErrBookNotFound, "book_id"},
}

// writeError maps repository and model errors to a response. notFound is the
// error meaning the addressed resource itself is missing; other not-found
// errors concern referenced rows and are reported as validation failures.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err, notFound error) {
	var validationErr *db.ValidationError

	switch {
	case notFound != nil && errors.Is(err, notFound):
		s.notFoundResponse(w, r)
	case errors.As(err, &validationErr):
		s.failedValidationResponse(w, r, map[string]string{validationErr.Field: validationErr.Message})
	case errors.Is(err, db.ErrInvalidLoanStatus):
		s.failedValidationResponse(w, r, map[string]string{"status": err.Error()})
	case errors.Is(err, repo.ErrLanguageExists), errors.Is(err, repo.ErrBookInstanceAlreadyExists):
		s.conflictResponse(w, r, err)
	default:
		for _, ref := range referenceFields {
			if errors.Is(err, ref.err) {
				s.failedValidationResponse(w, r, map[string]string{ref.field: ref.err.Error()})
				return
			}
		}
		s.serverErrorResponse(w, r, err)
	}
}
