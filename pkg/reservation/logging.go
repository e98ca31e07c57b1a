package reservation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing reservation operation.
type OperationLog struct {
	Operation string
	BookingID BookingID
	UserID    UserID
	HotelID   HotelID
	RoomID    RoomID
	Units     int
	Status    string
	Error     error
}

// EventPublisher receives booking lifecycle events after they are committed.
type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, event BookingEvent) error
}

// BookingEvent is emitted whenever a booking changes status.
type BookingEvent struct {
	BookingID  BookingID
	HotelID    HotelID
	RoomID     RoomID
	UserID     UserID
	Status     BookingStatus
	RoomsCount int
	CheckIn    time.Time
	CheckOut   time.Time
	Amount     decimal.Decimal
	OccurredAt time.Time
}

func newBookingEvent(booking Booking, occurredAt time.Time) BookingEvent {
	return BookingEvent{
		BookingID:  booking.ID,
		HotelID:    booking.HotelID,
		RoomID:     booking.RoomID,
		UserID:     booking.UserID,
		Status:     booking.Status,
		RoomsCount: booking.RoomsCount,
		CheckIn:    booking.CheckIn,
		CheckOut:   booking.CheckOut,
		Amount:     booking.Amount,
		OccurredAt: occurredAt,
	}
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithEventPublisher wires a publisher for booking lifecycle events.
func WithEventPublisher(publisher EventPublisher) ServiceOption {
	return func(service *Service) {
		service.publisher = publisher
	}
}

// WithHoldWindow overrides DefaultHoldWindow.
func WithHoldWindow(holdWindow time.Duration) ServiceOption {
	return func(service *Service) {
		service.holdWindow = holdWindow
	}
}

// WithSweepBatchSize bounds how many stale bookings one sweep page loads.
func WithSweepBatchSize(batchSize int) ServiceOption {
	return func(service *Service) {
		service.sweepBatchSize = batchSize
	}
}
