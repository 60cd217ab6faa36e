package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/locallibrary/catalog/internal/db"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// Retry configuration
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
	confirmTimeout = 5 * time.Second
)

// Publisher handles event publishing to RabbitMQ
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *zap.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(url string, log *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareExchange(channel); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	// Enable publisher confirms for reliability
	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	log.Info("Connected to RabbitMQ", zap.String("exchange", ExchangeName))

	return &Publisher{
		conn:    conn,
		channel: channel,
		log:     log,
	}, nil
}

func declareExchange(channel *amqp.Channel) error {
	if err := channel.ExchangeDeclare(
		ExchangeName,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	return nil
}

// PublishBookCreated publishes a book created event
func (p *Publisher) PublishBookCreated(ctx context.Context, book *db.Book) error {
	return p.publishWithRetry(ctx, newEvent(ctx, EventTypeBookCreated, bookPayload(book)))
}

// PublishBookUpdated publishes the book's new state together with the changed fields
func (p *Publisher) PublishBookUpdated(ctx context.Context, book *db.Book, fieldsChanged []string) error {
	payload := bookPayload(book)
	payload["fields_changed"] = fieldsChanged
	return p.publishWithRetry(ctx, newEvent(ctx, EventTypeBookUpdated, payload))
}

// PublishBookDeleted publishes a book deleted event
func (p *Publisher) PublishBookDeleted(ctx context.Context, bookID uint) error {
	payload := map[string]interface{}{"book_id": bookID}
	return p.publishWithRetry(ctx, newEvent(ctx, EventTypeBookDeleted, payload))
}

// PublishInstanceCreated publishes a book instance created event
func (p *Publisher) PublishInstanceCreated(ctx context.Context, instance *db.BookInstance) error {
	return p.publishWithRetry(ctx, newEvent(ctx, EventTypeInstanceCreated, instancePayload(instance)))
}

// PublishInstanceUpdated publishes the instance's new state together with the changed fields
func (p *Publisher) PublishInstanceUpdated(ctx context.Context, instance *db.BookInstance, fieldsChanged []string) error {
	payload := instancePayload(instance)
	payload["fields_changed"] = fieldsChanged
	return p.publishWithRetry(ctx, newEvent(ctx, EventTypeInstanceUpdated, payload))
}

// PublishInstanceDeleted publishes a book instance deleted event
func (p *Publisher) PublishInstanceDeleted(ctx context.Context, instanceID uuid.UUID) error {
	payload := map[string]interface{}{"instance_id": instanceID.String()}
	return p.publishWithRetry(ctx, newEvent(ctx, EventTypeInstanceDeleted, payload))
}

// publishWithRetry publishes an event with exponential backoff retry.
// The event type doubles as the routing key.
func (p *Publisher) publishWithRetry(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		p.log.Error("Failed to marshal event", zap.Error(err))
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	backoff := initialBackoff
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
		}

		confirmation, err := p.channel.PublishWithDeferredConfirmWithContext(
			ctx,
			ExchangeName,
			event.EventType,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:   "application/json",
				DeliveryMode:  amqp.Persistent,
				Timestamp:     time.Now(),
				MessageId:     event.EventID,
				CorrelationId: event.CorrelationID,
				Body:          body,
				Headers: amqp.Table{
					"event_type":    event.EventType,
					"event_version": event.EventVersion,
				},
			},
		)
		if err != nil {
			lastErr = err
			p.log.Warn("Failed to publish event, retrying",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		confirmCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
		acked, err := confirmation.WaitContext(confirmCtx)
		cancel()

		switch {
		case err == nil && acked:
			p.log.Info("Event published successfully",
				zap.String("event_id", event.EventID),
				zap.String("event_type", event.EventType),
			)
			return nil
		case err == nil:
			lastErr = fmt.Errorf("event not acknowledged")
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			lastErr = fmt.Errorf("confirmation timeout: %w", err)
		}

		p.log.Warn("Event publish not confirmed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	p.log.Error("Failed to publish event after retries",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.Int("attempts", maxRetries),
		zap.Error(lastErr),
	)
	return fmt.Errorf("failed to publish event after %d attempts: %w", maxRetries, lastErr)
}

// IsHealthy checks if the publisher connection is healthy
func (p *Publisher) IsHealthy() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

// Close closes the publisher connection
func (p *Publisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.log.Error("Failed to close channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.log.Error("Failed to close connection", zap.Error(err))
			return err
		}
	}
	p.log.Info("Publisher closed")
	return nil
}

// NopPublisher drops every event. It is used when EVENTS_ENABLED is false.
type NopPublisher struct{}

func (NopPublisher) PublishBookCreated(context.Context, *db.Book) error {
	return nil
}

func (NopPublisher) PublishBookUpdated(context.Context, *db.Book, []string) error {
	return nil
}

func (NopPublisher) PublishBookDeleted(context.Context, uint) error {
	return nil
}

func (NopPublisher) PublishInstanceCreated(context.Context, *db.BookInstance) error {
	return nil
}

func (NopPublisher) PublishInstanceUpdated(context.Context, *db.BookInstance, []string) error {
	return nil
}

func (NopPublisher) PublishInstanceDeleted(context.Context, uuid.UUID) error {
	return nil
}

func (NopPublisher) IsHealthy() bool {
	return true
}

func (NopPublisher) Close() error {
	return nil
}
