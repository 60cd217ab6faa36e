package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/locallibrary/catalog/internal/db"
)

const (
	ExchangeName = "library.events"
	ExchangeType = "topic"

	// Event types published by the catalog
	EventTypeBookCreated     = "catalog.book.created"
	EventTypeBookUpdated     = "catalog.book.updated"
	EventTypeBookDeleted     = "catalog.book.deleted"
	EventTypeInstanceCreated = "catalog.instance.created"
	EventTypeInstanceUpdated = "catalog.instance.updated"
	EventTypeInstanceDeleted = "catalog.instance.deleted"

	// Event types consumed from the identity service
	EventTypeUserDeleted = "user.deleted"

	eventVersion = "1.0.0"
)

// Event represents a domain event
type Event struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	EventVersion  string                 `json:"event_version"`
	Timestamp     string                 `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
}

type correlationIDKey struct{}

// WithCorrelationID stores a correlation id that will be copied into published events
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID returns the correlation id stored in ctx, if any
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

func newEvent(ctx context.Context, eventType string, payload map[string]interface{}) Event {
	return Event{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: CorrelationID(ctx),
		Payload:       payload,
	}
}

func bookPayload(book *db.Book) map[string]interface{} {
	genres := make([]uint, 0, len(book.Genres))
	for _, g := range book.Genres {
		genres = append(genres, g.ID)
	}

	payload := map[string]interface{}{
		"book_id":     book.ID,
		"title":       book.Title,
		"isbn":        book.ISBN,
		"author_id":   book.AuthorID,
		"language_id": book.LanguageID,
		"genre_ids":   genres,
	}
	if book.DateAdded != nil {
		payload["date_added"] = db.FormatDate(book.DateAdded)
	}
	return payload
}

func instancePayload(instance *db.BookInstance) map[string]interface{} {
	payload := map[string]interface{}{
		"instance_id": instance.ID.String(),
		"book_id":     instance.BookID,
		"imprint":     instance.Imprint,
		"status":      instance.Status.Name(),
		"borrower_id": instance.BorrowerID,
	}
	if instance.DueBack != nil {
		payload["due_back"] = db.FormatDate(instance.DueBack)
	}
	return payload
}

// CatalogPublisher is the set of catalog events the service emits.
// Publisher and NopPublisher implement it.
type CatalogPublisher interface {
	PublishBookCreated(ctx context.Context, book *db.Book) error
	PublishBookUpdated(ctx context.Context, book *db.Book, fieldsChanged []string) error
	PublishBookDeleted(ctx context.Context, bookID uint) error
	PublishInstanceCreated(ctx context.Context, instance *db.BookInstance) error
	PublishInstanceUpdated(ctx context.Context, instance *db.BookInstance, fieldsChanged []string) error
	PublishInstanceDeleted(ctx context.Context, instanceID uuid.UUID) error
	IsHealthy() bool
	Close() error
}
