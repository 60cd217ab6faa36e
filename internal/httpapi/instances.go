package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/locallibrary/catalog/internal/db"
	"github.com/locallibrary/catalog/internal/events"
	"github.com/locallibrary/catalog/internal/repo"
	"github.com/locallibrary/catalog/internal/validator"
)

// instanceInput is the body of POST and PATCH /v1/bookinstances. The id is
// only accepted on create; a book_id of 0 or an empty borrower_id clears it.
// A blank status counts as omitted, so new instances start in maintenance.
type instanceInput struct {
	ID         *string `json:"id"`
	BookID     *uint   `json:"book_id"`
	Imprint    *string `json:"imprint"`
	DueBack    *string `json:"due_back"`
	BorrowerID *string `json:"borrower_id"`
	Status     *string `json:"status"`
}

func (in instanceInput) apply(v *validator.Validator, instance *db.BookInstance) []string {
	var fields []string

	if in.BookID != nil {
		instance.BookID = optionalID(*in.BookID)
		fields = append(fields, "book_id")
	}
	if in.Imprint != nil {
		instance.Imprint = *in.Imprint
		fields = append(fields, "imprint")
	}
	if in.DueBack != nil {
		instance.DueBack = parseDateField(v, "due_back", *in.DueBack)
		fields = append(fields, "due_back")
	}
	if in.BorrowerID != nil {
		instance.BorrowerID = nil
		if borrower := strings.TrimSpace(*in.BorrowerID); borrower != "" {
			instance.BorrowerID = &borrower
			v.Check(validator.MaxChars(borrower, 64), "borrower_id", "must not be more than 64 characters long")
		}
		fields = append(fields, "borrower_id")
	}
	if in.Status != nil && *in.Status != "" {
		status, err := db.ParseLoanStatus(*in.Status)
		if err != nil {
			v.AddError("status", "must be one of maintenance, on_loan, available, reserved")
		}
		instance.Status = status
		fields = append(fields, "status")
	}

	v.Check(validator.NotBlank(instance.Imprint), "imprint", "must be provided")
	v.Check(validator.MaxChars(instance.Imprint, 200), "imprint", "must not be more than 200 characters long")
	return fields
}

func (s *Server) createInstanceHandler(w http.ResponseWriter, r *http.Request) {
	var input instanceInput
	if err := readJSON(w, r, &input); err != nil {
		s.badRequestResponse(w, r, err)
		return
	}

	instance := &db.BookInstance{}
	v := validator.New()
	if input.ID != nil {
		id, err := uuid.Parse(*input.ID)
		if err != nil {
			v.AddError("id", "must be a UUID")
		}
		instance.ID = id
	}
	if input.apply(v, instance); !v.Valid() {
		s.failedValidationResponse(w, r, v.Errors)
		return
	}

	if err := s.repo.CreateBookInstance(r.Context(), instance); err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	s.publishAsync(r, events.EventTypeInstanceCreated, func(ctx context.Context) error {
		return s.publisher.PublishInstanceCreated(ctx, instance)
	})

	if err := writeJSON(w, http.StatusCreated, envelope{"book_instance": newInstanceResponse(instance, time.Now())}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) listInstancesHandler(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	v := validator.New()
	filter := repo.InstanceFilter{BorrowerID: readString(qs, "borrower_id", "")}

	var err error
	if status := qs.Get("status"); status != "" {
		if filter.Status, err = db.ParseLoanStatus(status); err != nil {
			v.AddError("status", "must be one of maintenance, on_loan, available, reserved")
		}
	}
	if filter.BookID, err = readUint(qs, "book_id"); err != nil {
		v.AddError("book_id", err.Error())
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

	instances, total, err := s.repo.ListBookInstances(r.Context(), filter)
	if err != nil {
		s.serverErrorResponse(w, r, err)
		return
	}

	now := time.Now()
	resp := make([]instanceResponse, 0, len(instances))
	for _, bi := range instances {
		resp = append(resp, newInstanceResponse(bi, now))
	}
	env := envelope{"book_instances": resp, "metadata": newMetadata(filter.Page.Number, filter.Page.Size, total)}
	if err := writeJSON(w, http.StatusOK, env, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) showInstanceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readUUIDParam(r)
	if err != nil {
		s.notFoundResponse(w, r)
		return
	}

	instance, err := s.repo.GetBookInstance(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, repo.ErrBookInstanceNotFound)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"book_instance": newInstanceResponse(instance, time.Now())}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) updateInstanceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readUUIDParam(r)
	if err != nil {
		s.notFoundResponse(w, r)
		return
	}

	var input instanceInput
	if err := readJSON(w, r, &input); err != nil {
		s.badRequestResponse(w, r, err)
		return
	}

	instance, err := s.repo.GetBookInstance(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, repo.ErrBookInstanceNotFound)
		return
	}

	v := validator.New()
	if input.ID != nil && *input.ID != id.String() {
		v.AddError("id", "cannot be changed")
	}
	updateMask := input.apply(v, instance)
	if !v.Valid() {
		s.failedValidationResponse(w, r, v.Errors)
		return
	}

	fieldsChanged := []string{}
	if len(updateMask) > 0 {
		changed, err := s.repo.UpdateBookInstance(r.Context(), instance, updateMask)
		if err != nil {
			s.writeError(w, r, err, repo.ErrBookInstanceNotFound)
			return
		}
		if changed != nil {
			fieldsChanged = changed
		}
	}

	updated, err := s.repo.GetBookInstance(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, repo.ErrBookInstanceNotFound)
		return
	}

	if len(fieldsChanged) > 0 {
		s.publishAsync(r, events.EventTypeInstanceUpdated, func(ctx context.Context) error {
			return s.publisher.PublishInstanceUpdated(ctx, updated, fieldsChanged)
		})
	}

	env := envelope{"book_instance": newInstanceResponse(updated, time.Now()), "fields_changed": fieldsChanged}
	if err := writeJSON(w, http.StatusOK, env, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) deleteInstanceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readUUIDParam(r)
	if err != nil {
		s.notFoundResponse(w, r)
		return
	}

	if err := s.repo.DeleteBookInstance(r.Context(), id); err != nil {
		s.writeError(w, r, err, repo.ErrBookInstanceNotFound)
		return
	}

	s.publishAsync(r, events.EventTypeInstanceDeleted, func(ctx context.Context) error {
		return s.publisher.PublishInstanceDeleted(ctx, id)
	})

	if err := writeJSON(w, http.StatusOK, envelope{"message": "book instance successfully deleted"}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}
