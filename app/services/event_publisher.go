package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/amirphl/gymdesk/config"
	"github.com/streadway/amqp"
)

// DeliveryEvent describes one delivery attempt outcome
type DeliveryEvent struct {
	ReminderID        uint      `json:"reminder_id"`
	GymID             uint      `json:"gym_id"`
	ClientID          uint      `json:"client_id"`
	Channel           string    `json:"channel"`
	Status            string    `json:"status"`
	Retries           int       `json:"retries"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	Error             string    `json:"error,omitempty"`
	Source            string    `json:"source"` // sweep, manual
	OccurredAt        time.Time `json:"occurred_at"`
}

// EventPublisher emits delivery events for downstream consumers
type EventPublisher interface {
	PublishDelivery(ctx context.Context, event DeliveryEvent) error
	Close() error
}

// AMQPEventPublisher publishes JSON events to a durable RabbitMQ queue
type AMQPEventPublisher struct {
	mu          sync.Mutex
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	contentType string
}

// NewEventPublisher connects to RabbitMQ when events are enabled, otherwise returns a no-op publisher
func NewEventPublisher(cfg *config.EventsConfig) (EventPublisher, error) {
	if !cfg.Enabled {
		return NoopEventPublisher{}, nil
	}

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	q, err := ch.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &AMQPEventPublisher{conn: conn, ch: ch, queue: q.Name, contentType: cfg.ContentType}, nil
}

func (p *AMQPEventPublisher) PublishDelivery(ctx context.Context, event DeliveryEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery event: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ch.Publish("", p.queue, false, false, amqp.Publishing{
		ContentType:  p.contentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
}

func (p *AMQPEventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		log.Printf("failed to close amqp channel: %v", err)
	}
	return p.conn.Close()
}

// NoopEventPublisher drops events
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishDelivery(ctx context.Context, event DeliveryEvent) error { return nil }
func (NoopEventPublisher) Close() error                                                  { return nil }

// RecordingEventPublisher keeps events in memory for tests
type RecordingEventPublisher struct {
	mu     sync.Mutex
	Events []DeliveryEvent
}

func (r *RecordingEventPublisher) PublishDelivery(ctx context.Context, event DeliveryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, event)
	return nil
}

func (r *RecordingEventPublisher) Close() error { return nil }

// Snapshot returns a copy of the recorded events
func (r *RecordingEventPublisher) Snapshot() []DeliveryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DeliveryEvent, len(r.Events))
	copy(out, r.Events)
	return out
}
