package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const handlerTimeout = 10 * time.Second

// BorrowerReleaser clears borrower references of a deleted user
type BorrowerReleaser interface {
	ReleaseBorrower(ctx context.Context, borrowerID string) (int64, error)
}

// UserDeletedEvent is published by the identity service when an account is removed
type UserDeletedEvent struct {
	EventID      string `json:"event_id"`
	EventType    string `json:"event_type"`
	EventVersion string `json:"event_version"`
	Timestamp    string `json:"timestamp"`
	Payload      struct {
		UserID string `json:"user_id"`
	} `json:"payload"`
}

var errMalformedEvent = errors.New("malformed event")

// Consumer listens for identity events that affect the catalog
type Consumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	serviceName string
	releaser    BorrowerReleaser
	log         *zap.Logger
}

// NewConsumer connects to RabbitMQ and declares the shared exchange
func NewConsumer(url, serviceName string, releaser BorrowerReleaser, log *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	log.Info("Consumer connected to RabbitMQ", zap.String("exchange", ExchangeName))

	return &Consumer{
		conn:        conn,
		channel:     ch,
		serviceName: serviceName,
		releaser:    releaser,
		log:         log,
	}, nil
}

// newHandler builds a consumer without a broker connection, for message handling only
func newHandler(releaser BorrowerReleaser, log *zap.Logger) *Consumer {
	return &Consumer{releaser: releaser, log: log}
}

// Start declares the queue, binds it and processes deliveries until the
// channel closes or ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	queueName := fmt.Sprintf("%s.identity.queue", c.serviceName)

	queue, err := c.channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	routingKeys := []string{
		EventTypeUserDeleted,
	}
	for _, key := range routingKeys {
		if err := c.channel.QueueBind(queue.Name, key, ExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
		c.log.Info("Listening for events", zap.String("routing_key", key))
	}

	msgs, err := c.channel.Consume(
		queue.Name,
		c.serviceName, // consumer tag
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handleMessage(ctx, msg)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	c.log.Debug("Received event", zap.String("routing_key", msg.RoutingKey))

	var err error
	switch msg.RoutingKey {
	case EventTypeUserDeleted:
		err = c.handleUserDeleted(ctx, msg.Body)
	default:
		c.log.Warn("Unknown event type", zap.String("routing_key", msg.RoutingKey))
		msg.Nack(false, false) // Don't requeue unknown events
		return
	}

	switch {
	case err == nil:
		msg.Ack(false)
	case errors.Is(err, errMalformedEvent):
		c.log.Error("Dropping malformed event", zap.String("routing_key", msg.RoutingKey), zap.Error(err))
		msg.Nack(false, false)
	default:
		c.log.Error("Failed to handle event, requeueing", zap.String("routing_key", msg.RoutingKey), zap.Error(err))
		msg.Nack(false, true)
	}
}

func (c *Consumer) handleUserDeleted(ctx context.Context, body []byte) error {
	var event UserDeletedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}
	if event.Payload.UserID == "" {
		return fmt.Errorf("%w: missing user_id", errMalformedEvent)
	}

	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	released, err := c.releaser.ReleaseBorrower(ctx, event.Payload.UserID)
	if err != nil {
		return err
	}

	c.log.Info("Released instances of deleted user",
		zap.String("user_id", event.Payload.UserID),
		zap.Int64("instances", released),
	)
	return nil
}

// Close closes the consumer channel and connection
func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
