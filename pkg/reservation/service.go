package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service contains the reservation and booking lifecycle logic over a Store.
type Service struct {
	store          Store
	nowFn          func() time.Time
	logger         OperationLogger
	publisher      EventPublisher
	holdWindow     time.Duration
	sweepBatchSize int
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:          store,
		nowFn:          now,
		holdWindow:     DefaultHoldWindow,
		sweepBatchSize: defaultSweepBatchSize,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if service.holdWindow <= 0 {
		return nil, fmt.Errorf("%w: hold window must be positive", ErrInvalidServiceConfig)
	}
	if service.sweepBatchSize <= 0 {
		return nil, fmt.Errorf("%w: sweep batch size must be positive", ErrInvalidServiceConfig)
	}
	return service, nil
}

// HoldWindow reports how long a pending booking keeps its inventory.
func (service *Service) HoldWindow() time.Duration {
	return service.holdWindow
}

// InitializeBooking reserves inventory for every night of the request and records a
// booking in the reserved state. Lock, check, reserve and create happen in one transaction.
func (service *Service) InitializeBooking(ctx context.Context, request BookingRequest) (Booking, error) {
	var booking Booking
	operationError := request.Validate()
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			hotel, err := transactionStore.FindHotel(ctx, request.HotelID)
			if err != nil {
				return err
			}
			room, err := transactionStore.FindRoom(ctx, request.RoomID)
			if err != nil {
				return err
			}
			if room.HotelID != hotel.ID {
				return WrapError(errorOperationService, errorSubjectRoom, "hotel_mismatch",
					fmt.Errorf("%w: room %d does not belong to hotel %d", ErrNotFound, room.ID, hotel.ID))
			}
			if !hotel.Active {
				return WrapError(errorOperationService, errorSubjectHotel, "inactive",
					fmt.Errorf("%w: hotel %d is not active", ErrInsufficientInventory, hotel.ID))
			}
			checkIn := DateOf(request.CheckIn)
			checkOut := DateOf(request.CheckOut)
			ledger := NewLedger(transactionStore)
			cells, err := ledger.LockRange(ctx, room.ID, checkIn, checkOut, request.RoomsCount)
			if err != nil {
				return err
			}
			if len(cells) != DaysInclusive(checkIn, checkOut) {
				return WrapError(errorOperationService, errorSubjectInventory, "day_count", ErrInsufficientInventory)
			}
			if err := Reserve(cells, request.RoomsCount); err != nil {
				return err
			}
			if err := transactionStore.UpdateInventoryCounts(ctx, cells); err != nil {
				return err
			}
			bookingID, err := NewBookingID(uuid.NewString())
			if err != nil {
				return err
			}
			createdAt := service.nowFn().UTC()
			candidate := Booking{
				ID:         bookingID,
				HotelID:    hotel.ID,
				RoomID:     room.ID,
				UserID:     request.UserID,
				RoomsCount: request.RoomsCount,
				CheckIn:    checkIn,
				CheckOut:   checkOut,
				Status:     BookingStatusReserved,
				Amount:     bookingAmount(cells, request.RoomsCount),
				CreatedAt:  createdAt,
				UpdatedAt:  createdAt,
			}
			if err := transactionStore.CreateBooking(ctx, candidate); err != nil {
				return err
			}
			booking = candidate
			return nil
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationInitializeBooking,
		BookingID: booking.ID,
		UserID:    request.UserID,
		HotelID:   request.HotelID,
		RoomID:    request.RoomID,
		Units:     request.RoomsCount,
		Error:     operationError,
	})
	if operationError != nil {
		return Booking{}, operationError
	}
	service.publish(ctx, booking)
	return booking, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

// publish hands a committed booking state to the event publisher. Failures are
// logged and never undo the committed change.
func (service *Service) publish(ctx context.Context, booking Booking) {
	if service.publisher == nil {
		return
	}
	publishError := service.publisher.PublishBookingEvent(ctx, newBookingEvent(booking, service.nowFn().UTC()))
	if publishError == nil {
		return
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationPublishEvent,
		BookingID: booking.ID,
		UserID:    booking.UserID,
		HotelID:   booking.HotelID,
		RoomID:    booking.RoomID,
		Units:     booking.RoomsCount,
		Error:     publishError,
	})
}
