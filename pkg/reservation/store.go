package reservation

import (
	"context"
	"time"
)

// InventoryStore is the persistence contract used by Ledger.
type InventoryStore interface {
	// LockInventory returns the room's cells in [start, end] ordered by ascending
	// date, each locked until the enclosing transaction ends.
	LockInventory(ctx context.Context, roomID RoomID, start time.Time, end time.Time) ([]InventoryCell, error)
	UpdateInventoryCounts(ctx context.Context, cells []InventoryCell) error
	// InsertInventory skips cells whose (room, date) already exists.
	InsertInventory(ctx context.Context, cells []InventoryCell) error
	DeleteInventoryFrom(ctx context.Context, roomID RoomID, from time.Time) (int64, error)
	SetInventoryClosed(ctx context.Context, roomID RoomID, start time.Time, end time.Time, closed bool) error
}

// Store is the persistence contract used by Service.
type Store interface {
	InventoryStore
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	CreateHotel(ctx context.Context, hotel Hotel) (Hotel, error)
	FindHotel(ctx context.Context, hotelID HotelID) (Hotel, error)
	SetHotelActive(ctx context.Context, hotelID HotelID, active bool) error
	CreateRoom(ctx context.Context, room Room) (Room, error)
	FindRoom(ctx context.Context, roomID RoomID) (Room, error)
	RoomsOfHotel(ctx context.Context, hotelID HotelID) ([]Room, error)
	DeleteRoom(ctx context.Context, roomID RoomID) error

	CreateBooking(ctx context.Context, booking Booking) error
	// GetBookingForUpdate loads a booking with its guests and locks the row.
	GetBookingForUpdate(ctx context.Context, bookingID BookingID) (Booking, error)
	// UpdateBookingStatus fails with ErrInvalidState when the stored status is not from.
	UpdateBookingStatus(ctx context.Context, bookingID BookingID, from BookingStatus, to BookingStatus, at time.Time) error
	AttachGuests(ctx context.Context, bookingID BookingID, guests []Guest) error
	// ListStaleBookings returns up to limit pending bookings created before the
	// cutoff and positioned after the cursor, in (created_at, id) order.
	ListStaleBookings(ctx context.Context, createdBefore time.Time, after BookingCursor, limit int) ([]BookingCursor, error)
	// PendingBookingsOfRoom returns the pending bookings of the room whose stay ends
	// on or after checkOutFrom.
	PendingBookingsOfRoom(ctx context.Context, roomID RoomID, checkOutFrom time.Time) ([]BookingID, error)
}

// BookingCursor is a position in the (created_at, id) order of bookings. The zero
// cursor sorts before every booking.
type BookingCursor struct {
	CreatedAt time.Time
	ID        BookingID
}

// Precedes reports whether a booking created at createdAt with bookingID sorts
// after the cursor.
func (cursor BookingCursor) Precedes(createdAt time.Time, bookingID BookingID) bool {
	if !createdAt.Equal(cursor.CreatedAt) {
		return createdAt.After(cursor.CreatedAt)
	}
	return bookingID.String() > cursor.ID.String()
}
