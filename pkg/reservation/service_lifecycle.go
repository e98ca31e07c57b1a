package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// GetBooking loads a booking. A pending booking past its hold window is reported
// as expired even before the sweeper persists that.
func (service *Service) GetBooking(ctx context.Context, bookingID BookingID) (Booking, error) {
	var booking Booking
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		loaded, err := transactionStore.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		booking = loaded
		return nil
	})
	if err != nil {
		return Booking{}, err
	}
	if HasExpired(booking, service.nowFn(), service.holdWindow) {
		booking.Status = BookingStatusExpired
	}
	return booking, nil
}

// AddGuests attaches guests to a reserved booking and advances it to guests_added.
// A terminal booking answers ErrInvalidState even when it is older than the hold
// window; only pending bookings are expired here.
func (service *Service) AddGuests(ctx context.Context, bookingID BookingID, guests []Guest) (Booking, error) {
	var updated Booking
	expired := false
	normalized, operationError := normalizeGuests(guests)
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			booking, err := transactionStore.GetBookingForUpdate(ctx, bookingID)
			if err != nil {
				return err
			}
			now := service.nowFn().UTC()
			if booking.Status.IsTerminal() {
				return checkTransition(booking, BookingStatusGuestsAdded)
			}
			if HasExpired(booking, now, service.holdWindow) {
				updated, err = service.releaseBooking(ctx, transactionStore, booking, BookingStatusExpired, now)
				expired = err == nil
				return err
			}
			if err := checkTransition(booking, BookingStatusGuestsAdded); err != nil {
				return err
			}
			if err := transactionStore.AttachGuests(ctx, booking.ID, normalized); err != nil {
				return err
			}
			if err := transactionStore.UpdateBookingStatus(ctx, booking.ID, booking.Status, BookingStatusGuestsAdded, now); err != nil {
				return err
			}
			booking.Guests = append(append([]Guest(nil), booking.Guests...), normalized...)
			booking.Status = BookingStatusGuestsAdded
			booking.UpdatedAt = now
			updated = booking
			return nil
		})
	}
	if expired {
		operationError = expiredError(bookingID)
	}
	service.finishLifecycle(ctx, operationAddGuests, bookingID, updated, operationError, expired)
	if operationError != nil {
		return Booking{}, operationError
	}
	return updated, nil
}

// ConfirmBooking converts the held units of a guests_added booking into booked units.
func (service *Service) ConfirmBooking(ctx context.Context, bookingID BookingID) (Booking, error) {
	var updated Booking
	expired := false
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		booking, err := transactionStore.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		now := service.nowFn().UTC()
		if booking.Status.IsTerminal() {
			return checkTransition(booking, BookingStatusConfirmed)
		}
		if HasExpired(booking, now, service.holdWindow) {
			updated, err = service.releaseBooking(ctx, transactionStore, booking, BookingStatusExpired, now)
			expired = err == nil
			return err
		}
		if err := checkTransition(booking, BookingStatusConfirmed); err != nil {
			return err
		}
		cells, err := transactionStore.LockInventory(ctx, booking.RoomID, booking.CheckIn, booking.CheckOut)
		if err != nil {
			return err
		}
		if len(cells) != DaysInclusive(booking.CheckIn, booking.CheckOut) {
			return WrapError(errorOperationService, errorSubjectInventory, "day_count", ErrInsufficientInventory)
		}
		if err := Commit(cells, booking.RoomsCount); err != nil {
			return err
		}
		if err := transactionStore.UpdateInventoryCounts(ctx, cells); err != nil {
			return err
		}
		if err := transactionStore.UpdateBookingStatus(ctx, booking.ID, booking.Status, BookingStatusConfirmed, now); err != nil {
			return err
		}
		booking.Status = BookingStatusConfirmed
		booking.UpdatedAt = now
		updated = booking
		return nil
	})
	if expired {
		operationError = expiredError(bookingID)
	}
	service.finishLifecycle(ctx, operationConfirmBooking, bookingID, updated, operationError, expired)
	if operationError != nil {
		return Booking{}, operationError
	}
	return updated, nil
}

// CancelBooking releases the held units of a pending booking owned by userID.
func (service *Service) CancelBooking(ctx context.Context, bookingID BookingID, userID UserID) (Booking, error) {
	var updated Booking
	expired := false
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		booking, err := transactionStore.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.UserID != userID {
			return WrapError(errorOperationService, errorSubjectBooking, "owner", ErrNotFound)
		}
		now := service.nowFn().UTC()
		if booking.Status.IsTerminal() {
			return checkTransition(booking, BookingStatusCancelled)
		}
		if HasExpired(booking, now, service.holdWindow) {
			updated, err = service.releaseBooking(ctx, transactionStore, booking, BookingStatusExpired, now)
			expired = err == nil
			return err
		}
		updated, err = service.releaseBooking(ctx, transactionStore, booking, BookingStatusCancelled, now)
		return err
	})
	if expired {
		operationError = expiredError(bookingID)
	}
	service.finishLifecycle(ctx, operationCancelBooking, bookingID, updated, operationError, expired)
	if operationError != nil {
		return Booking{}, operationError
	}
	return updated, nil
}

// ExpireStaleBookings expires every pending booking past its hold window and
// releases its units. Each booking is handled in its own transaction; failures are
// logged and skipped, and paging continues past them. It returns the number of
// bookings expired.
func (service *Service) ExpireStaleBookings(ctx context.Context) (int, error) {
	expiredCount := 0
	cutoff := service.nowFn().UTC().Add(-service.holdWindow)
	var cursor BookingCursor
	for {
		page, err := service.store.ListStaleBookings(ctx, cutoff, cursor, service.sweepBatchSize)
		if err != nil {
			return expiredCount, err
		}
		if len(page) == 0 {
			return expiredCount, nil
		}
		for _, entry := range page {
			if err := ctx.Err(); err != nil {
				return expiredCount, err
			}
			wasExpired, err := service.expireOne(ctx, entry.ID)
			if err == nil && wasExpired {
				expiredCount++
			}
		}
		cursor = page[len(page)-1]
		if len(page) < service.sweepBatchSize {
			return expiredCount, nil
		}
	}
}

func (service *Service) expireOne(ctx context.Context, bookingID BookingID) (bool, error) {
	var updated Booking
	expired := false
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		booking, err := transactionStore.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		now := service.nowFn().UTC()
		if !HasExpired(booking, now, service.holdWindow) {
			return nil
		}
		updated, err = service.releaseBooking(ctx, transactionStore, booking, BookingStatusExpired, now)
		expired = err == nil
		return err
	})
	if operationError != nil || expired {
		service.finishLifecycle(ctx, operationExpireBooking, bookingID, updated, operationError, expired)
	}
	return expired, operationError
}

// releaseBooking returns the booking's held units to the inventory and moves it to next.
// Cells already retired from the calendar are skipped.
func (service *Service) releaseBooking(ctx context.Context, transactionStore Store, booking Booking, next BookingStatus, at time.Time) (Booking, error) {
	if err := checkTransition(booking, next); err != nil {
		return Booking{}, err
	}
	cells, err := transactionStore.LockInventory(ctx, booking.RoomID, booking.CheckIn, booking.CheckOut)
	if err != nil {
		return Booking{}, err
	}
	if err := Release(cells, booking.RoomsCount); err != nil {
		return Booking{}, err
	}
	if err := transactionStore.UpdateInventoryCounts(ctx, cells); err != nil {
		return Booking{}, err
	}
	if err := transactionStore.UpdateBookingStatus(ctx, booking.ID, booking.Status, next, at); err != nil {
		return Booking{}, err
	}
	booking.Status = next
	booking.UpdatedAt = at
	return booking, nil
}

// finishLifecycle logs the operation and publishes the committed state. An expired
// booking was committed even though the operation reports ErrBookingExpired.
func (service *Service) finishLifecycle(ctx context.Context, operation string, bookingID BookingID, booking Booking, operationError error, committed bool) {
	service.logOperation(ctx, OperationLog{
		Operation: operation,
		BookingID: bookingID,
		UserID:    booking.UserID,
		HotelID:   booking.HotelID,
		RoomID:    booking.RoomID,
		Units:     booking.RoomsCount,
		Error:     operationError,
	})
	if operationError == nil || committed {
		service.publish(ctx, booking)
	}
}

func expiredError(bookingID BookingID) error {
	return WrapError(errorOperationService, errorSubjectBooking, "expired",
		fmt.Errorf("%w: %s", ErrBookingExpired, bookingID))
}

func normalizeGuests(guests []Guest) ([]Guest, error) {
	if len(guests) == 0 {
		return nil, fmt.Errorf("%w: at least one guest is required", ErrInvalidGuest)
	}
	normalized := make([]Guest, 0, len(guests))
	var validationErrors []error
	for _, guest := range guests {
		checked, err := NewGuest(guest.Name, string(guest.Gender), guest.Age)
		if err != nil {
			validationErrors = append(validationErrors, err)
			continue
		}
		normalized = append(normalized, checked)
	}
	if len(validationErrors) > 0 {
		return nil, errors.Join(validationErrors...)
	}
	return normalized, nil
}
