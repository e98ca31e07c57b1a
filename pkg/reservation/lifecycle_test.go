package reservation

import (
	"errors"
	"testing"
	"time"
)

func TestBookingTransitions(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		from  BookingStatus
		to    BookingStatus
		allow bool
	}{
		{BookingStatusReserved, BookingStatusGuestsAdded, true},
		{BookingStatusReserved, BookingStatusExpired, true},
		{BookingStatusReserved, BookingStatusCancelled, true},
		{BookingStatusReserved, BookingStatusConfirmed, false},
		{BookingStatusGuestsAdded, BookingStatusConfirmed, true},
		{BookingStatusGuestsAdded, BookingStatusExpired, true},
		{BookingStatusGuestsAdded, BookingStatusReserved, false},
		{BookingStatusConfirmed, BookingStatusCancelled, false},
		{BookingStatusExpired, BookingStatusReserved, false},
		{BookingStatusCancelled, BookingStatusGuestsAdded, false},
	}
	for _, testCase := range testCases {
		if got := testCase.from.CanTransitionTo(testCase.to); got != testCase.allow {
			test.Fatalf("%s -> %s: expected %v, got %v", testCase.from, testCase.to, testCase.allow, got)
		}
	}
	for _, status := range []BookingStatus{BookingStatusConfirmed, BookingStatusExpired, BookingStatusCancelled} {
		if !status.IsTerminal() || status.IsPending() {
			test.Fatalf("expected %s terminal", status)
		}
	}
	for _, status := range PendingStatuses() {
		if status.IsTerminal() || !status.IsPending() {
			test.Fatalf("expected %s pending", status)
		}
	}
}

func TestParseBookingStatus(test *testing.T) {
	test.Parallel()
	status, err := ParseBookingStatus("guests_added")
	if err != nil || status != BookingStatusGuestsAdded {
		test.Fatalf("unexpected parse result %q %v", status, err)
	}
	if _, err := ParseBookingStatus("archived"); !errors.Is(err, ErrInvalidBookingStatus) {
		test.Fatalf("expected invalid status, got %v", err)
	}
}

func TestHasExpired(test *testing.T) {
	test.Parallel()
	createdAt := testToday.Add(12 * time.Hour)
	booking := Booking{Status: BookingStatusReserved, CreatedAt: createdAt}
	if HasExpired(booking, createdAt.Add(DefaultHoldWindow), DefaultHoldWindow) {
		test.Fatalf("expected booking alive at the boundary")
	}
	if !HasExpired(booking, createdAt.Add(DefaultHoldWindow+time.Nanosecond), DefaultHoldWindow) {
		test.Fatalf("expected booking expired after the window")
	}
	booking.Status = BookingStatusGuestsAdded
	if !HasExpired(booking, createdAt.Add(time.Hour), DefaultHoldWindow) {
		test.Fatalf("expected guests_added booking to expire")
	}
	booking.Status = BookingStatusConfirmed
	if HasExpired(booking, createdAt.Add(time.Hour), DefaultHoldWindow) {
		test.Fatalf("confirmed bookings never expire")
	}
}
