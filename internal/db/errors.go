package db

// ValidationError is returned by model hooks before anything is persisted
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var (
	// ErrAddedBeforeAuthorBirth is returned when a book's added date precedes its author's birth
	ErrAddedBeforeAuthorBirth = &ValidationError{
		Field:   "date_added",
		Message: "book added date cannot precede the author's date of birth",
	}

	// ErrUnknownAuthor is returned when a book references an author that does not exist
	ErrUnknownAuthor = &ValidationError{
		Field:   "author_id",
		Message: "author does not exist",
	}
)
