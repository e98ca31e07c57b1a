package reservation

import (
	"context"
	"fmt"
	"time"
)

// CreateHotel stores a new, inactive hotel. Inventory is provisioned on activation.
func (service *Service) CreateHotel(ctx context.Context, hotel Hotel) (Hotel, error) {
	candidate, operationError := NewHotel(hotel.Name, hotel.City)
	var created Hotel
	if operationError == nil {
		created, operationError = service.store.CreateHotel(ctx, candidate)
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationCreateHotel,
		HotelID:   created.ID,
		Error:     operationError,
	})
	if operationError != nil {
		return Hotel{}, operationError
	}
	return created, nil
}

// ActivateHotel marks the hotel active and provisions a year of inventory for each
// of its rooms. Cells that already exist are kept, so repeated activation is safe.
func (service *Service) ActivateHotel(ctx context.Context, hotelID HotelID) error {
	units := 0
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		hotel, err := transactionStore.FindHotel(ctx, hotelID)
		if err != nil {
			return err
		}
		rooms, err := transactionStore.RoomsOfHotel(ctx, hotel.ID)
		if err != nil {
			return err
		}
		ledger := NewLedger(transactionStore)
		today := DateOf(service.nowFn())
		for _, room := range rooms {
			if err := ledger.ProvisionYear(ctx, hotel, room, today); err != nil {
				return err
			}
			units += room.Capacity
		}
		return transactionStore.SetHotelActive(ctx, hotel.ID, true)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationActivateHotel,
		HotelID:   hotelID,
		Units:     units,
		Error:     operationError,
	})
	return operationError
}

// DeactivateHotel marks the hotel inactive and retires the future inventory of its
// rooms. Pending bookings holding units on the retired cells are cancelled first.
func (service *Service) DeactivateHotel(ctx context.Context, hotelID HotelID) error {
	var released []Booking
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		hotel, err := transactionStore.FindHotel(ctx, hotelID)
		if err != nil {
			return err
		}
		rooms, err := transactionStore.RoomsOfHotel(ctx, hotel.ID)
		if err != nil {
			return err
		}
		for _, room := range rooms {
			releasedOfRoom, err := service.retireRoomInventory(ctx, transactionStore, room.ID)
			if err != nil {
				return err
			}
			released = append(released, releasedOfRoom...)
		}
		return transactionStore.SetHotelActive(ctx, hotel.ID, false)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationDeactivateHotel,
		HotelID:   hotelID,
		Units:     len(released),
		Error:     operationError,
	})
	if operationError == nil {
		service.finishReleased(ctx, released)
	}
	return operationError
}

// AddRoom stores a room and, when its hotel is active, provisions its inventory.
func (service *Service) AddRoom(ctx context.Context, room Room) (Room, error) {
	var created Room
	candidate, operationError := NewRoom(room.HotelID, room.Type, room.BasePrice, room.Capacity)
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			hotel, err := transactionStore.FindHotel(ctx, candidate.HotelID)
			if err != nil {
				return err
			}
			stored, err := transactionStore.CreateRoom(ctx, candidate)
			if err != nil {
				return err
			}
			if hotel.Active {
				if err := NewLedger(transactionStore).ProvisionYear(ctx, hotel, stored, DateOf(service.nowFn())); err != nil {
					return err
				}
			}
			created = stored
			return nil
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationAddRoom,
		HotelID:   room.HotelID,
		RoomID:    created.ID,
		Units:     room.Capacity,
		Error:     operationError,
	})
	if operationError != nil {
		return Room{}, operationError
	}
	return created, nil
}

// RemoveRoom retires the room's future inventory and deletes the room. Past cells
// stay as history. Pending bookings holding units on the retired cells are
// cancelled first.
func (service *Service) RemoveRoom(ctx context.Context, roomID RoomID) error {
	var hotelID HotelID
	var released []Booking
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		room, err := transactionStore.FindRoom(ctx, roomID)
		if err != nil {
			return err
		}
		hotelID = room.HotelID
		released, err = service.retireRoomInventory(ctx, transactionStore, room.ID)
		if err != nil {
			return err
		}
		if err := transactionStore.DeleteRoom(ctx, room.ID); err != nil {
			return WrapError(errorOperationService, errorSubjectRoom, "delete", fmt.Errorf("room %d: %w", room.ID, err))
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRemoveRoom,
		HotelID:   hotelID,
		RoomID:    roomID,
		Units:     len(released),
		Error:     operationError,
	})
	if operationError == nil {
		service.finishReleased(ctx, released)
	}
	return operationError
}

// retireRoomInventory releases every pending booking of the room that still holds
// units on cells dated today or later, then deletes those cells. A booking past its
// hold window becomes expired, any other becomes cancelled.
func (service *Service) retireRoomInventory(ctx context.Context, transactionStore Store, roomID RoomID) ([]Booking, error) {
	now := service.nowFn().UTC()
	today := DateOf(now)
	bookingIDs, err := transactionStore.PendingBookingsOfRoom(ctx, roomID, today)
	if err != nil {
		return nil, err
	}
	released := make([]Booking, 0, len(bookingIDs))
	for _, bookingID := range bookingIDs {
		booking, err := transactionStore.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if !booking.Status.IsPending() {
			continue
		}
		next := BookingStatusCancelled
		if HasExpired(booking, now, service.holdWindow) {
			next = BookingStatusExpired
		}
		updated, err := service.releaseBooking(ctx, transactionStore, booking, next, now)
		if err != nil {
			return nil, err
		}
		released = append(released, updated)
	}
	if _, err := NewLedger(transactionStore).RetireFuture(ctx, roomID, today); err != nil {
		return nil, err
	}
	return released, nil
}

// finishReleased logs and publishes the bookings released by a committed retirement.
func (service *Service) finishReleased(ctx context.Context, released []Booking) {
	for _, booking := range released {
		operation := operationCancelBooking
		if booking.Status == BookingStatusExpired {
			operation = operationExpireBooking
		}
		service.finishLifecycle(ctx, operation, booking.ID, booking, nil, true)
	}
}

// SetRoomClosed closes or reopens a room for every day in [start, end]. Closed
// days reject new reservations; existing bookings keep their units.
func (service *Service) SetRoomClosed(ctx context.Context, roomID RoomID, start time.Time, end time.Time, closed bool) error {
	var hotelID HotelID
	startDate := DateOf(start)
	endDate := DateOf(end)
	operationError := error(nil)
	if endDate.Before(startDate) {
		operationError = fmt.Errorf("%w: end before start", ErrInvalidBookingRequest)
	}
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			room, err := transactionStore.FindRoom(ctx, roomID)
			if err != nil {
				return err
			}
			hotelID = room.HotelID
			return transactionStore.SetInventoryClosed(ctx, room.ID, startDate, endDate, closed)
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationCloseInventory,
		HotelID:   hotelID,
		RoomID:    roomID,
		Units:     DaysInclusive(startDate, endDate),
		Error:     operationError,
	})
	return operationError
}
