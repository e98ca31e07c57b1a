package reservation

import (
	"fmt"
	"time"
)

// BookingStatus defines the booking lifecycle.
type BookingStatus string

const (
	BookingStatusReserved    BookingStatus = "reserved"
	BookingStatusGuestsAdded BookingStatus = "guests_added"
	BookingStatusConfirmed   BookingStatus = "confirmed"
	BookingStatusExpired     BookingStatus = "expired"
	BookingStatusCancelled   BookingStatus = "cancelled"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusReserved:    {BookingStatusGuestsAdded, BookingStatusExpired, BookingStatusCancelled},
	BookingStatusGuestsAdded: {BookingStatusConfirmed, BookingStatusExpired, BookingStatusCancelled},
}

// ParseBookingStatus validates a stored status value.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	status := BookingStatus(raw)
	switch status {
	case BookingStatusReserved, BookingStatusGuestsAdded, BookingStatusConfirmed, BookingStatusExpired, BookingStatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBookingStatus, raw)
}

// String returns the stored representation.
func (status BookingStatus) String() string {
	return string(status)
}

// IsPending reports whether the booking still holds reserved inventory.
func (status BookingStatus) IsPending() bool {
	return status == BookingStatusReserved || status == BookingStatusGuestsAdded
}

// IsTerminal reports whether no further transition is allowed.
func (status BookingStatus) IsTerminal() bool {
	_, hasTransitions := bookingTransitions[status]
	return !hasTransitions
}

// CanTransitionTo reports whether next directly follows status.
func (status BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, candidate := range bookingTransitions[status] {
		if candidate == next {
			return true
		}
	}
	return false
}

// PendingStatuses lists the statuses that hold inventory.
func PendingStatuses() []BookingStatus {
	return []BookingStatus{BookingStatusReserved, BookingStatusGuestsAdded}
}

// HasExpired reports whether a pending booking outlived its hold window.
func HasExpired(booking Booking, now time.Time, holdWindow time.Duration) bool {
	if !booking.Status.IsPending() {
		return false
	}
	return now.After(booking.CreatedAt.Add(holdWindow))
}

func checkTransition(booking Booking, next BookingStatus) error {
	if booking.Status.CanTransitionTo(next) {
		return nil
	}
	return WrapError(errorOperationService, errorSubjectBooking, "transition",
		fmt.Errorf("%w: %s -> %s", ErrInvalidState, booking.Status, next))
}
