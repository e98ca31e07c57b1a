// Package events publishes booking lifecycle events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue receives every booking status change.
const DefaultQueue = "hotel.booking.events"

// ErrPublisherClosed is returned after Close.
var ErrPublisherClosed = errors.New("event publisher closed")

type channel interface {
	QueueDeclare(name string, durable bool, autoDelete bool, exclusive bool, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange string, key string, mandatory bool, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements reservation.EventPublisher over one AMQP channel.
type Publisher struct {
	mu         sync.Mutex
	connection *amqp.Connection
	channel    channel
	queue      string
	closed     bool
}

// Dial connects to the broker and declares a durable queue.
func Dial(url string, queue string) (*Publisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("amqp url is required")
	}
	connection, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	amqpChannel, err := connection.Channel()
	if err != nil {
		_ = connection.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	publisher, err := newPublisher(amqpChannel, queue)
	if err != nil {
		_ = amqpChannel.Close()
		_ = connection.Close()
		return nil, err
	}
	publisher.connection = connection
	return publisher, nil
}

func newPublisher(amqpChannel channel, queue string) (*Publisher, error) {
	if strings.TrimSpace(queue) == "" {
		queue = DefaultQueue
	}
	if _, err := amqpChannel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	return &Publisher{channel: amqpChannel, queue: queue}, nil
}

type bookingEventPayload struct {
	BookingID  string `json:"booking_id"`
	HotelID    int64  `json:"hotel_id"`
	RoomID     int64  `json:"room_id"`
	UserID     string `json:"user_id"`
	Status     string `json:"status"`
	RoomsCount int    `json:"rooms_count"`
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out"`
	Amount     string `json:"amount"`
	OccurredAt string `json:"occurred_at"`
}

// PublishBookingEvent sends the event as a persistent JSON message routed to the queue.
func (publisher *Publisher) PublishBookingEvent(ctx context.Context, event reservation.BookingEvent) error {
	body, err := json.Marshal(bookingEventPayload{
		BookingID:  event.BookingID.String(),
		HotelID:    int64(event.HotelID),
		RoomID:     int64(event.RoomID),
		UserID:     event.UserID.String(),
		Status:     event.Status.String(),
		RoomsCount: event.RoomsCount,
		CheckIn:    event.CheckIn.Format(time.DateOnly),
		CheckOut:   event.CheckOut.Format(time.DateOnly),
		Amount:     event.Amount.StringFixed(2),
		OccurredAt: event.OccurredAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal booking event: %w", err)
	}
	message := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.BookingID.String() + ":" + event.Status.String(),
		Type:         "booking." + event.Status.String(),
		Timestamp:    event.OccurredAt.UTC(),
		Body:         body,
	}

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if publisher.closed {
		return ErrPublisherClosed
	}
	if err := publisher.channel.PublishWithContext(ctx, "", publisher.queue, false, false, message); err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// Close closes the channel and, when Dial opened it, the connection.
func (publisher *Publisher) Close() error {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if publisher.closed {
		return nil
	}
	publisher.closed = true
	err := publisher.channel.Close()
	if publisher.connection != nil {
		err = errors.Join(err, publisher.connection.Close())
	}
	return err
}
