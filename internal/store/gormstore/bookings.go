package gormstore

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
	"gorm.io/gorm/clause"
)

func (store *Store) CreateBooking(ctx context.Context, booking reservation.Booking) error {
	model := Booking{
		ID:         booking.ID.String(),
		HotelID:    int64(booking.HotelID),
		RoomID:     int64(booking.RoomID),
		UserID:     booking.UserID.String(),
		RoomsCount: booking.RoomsCount,
		CheckIn:    dateValue(booking.CheckIn),
		CheckOut:   dateValue(booking.CheckOut),
		Status:     booking.Status.String(),
		Amount:     booking.Amount,
		CreatedAt:  booking.CreatedAt.UTC(),
		UpdatedAt:  booking.UpdatedAt.UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeCreate, err)
	}
	return nil
}

// GetBookingForUpdate locks the booking row and loads its guests in position order.
func (store *Store) GetBookingForUpdate(ctx context.Context, bookingID reservation.BookingID) (reservation.Booking, error) {
	var model Booking
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", bookingID.String()).
		Take(&model).Error
	if err != nil {
		return reservation.Booking{}, wrapLookupError(errorSubjectBooking, err)
	}
	var guestRows []BookingGuest
	err = store.db.WithContext(ctx).
		Where("booking_id = ?", model.ID).
		Order("position ASC").
		Find(&guestRows).Error
	if err != nil {
		return reservation.Booking{}, wrapStoreError(errorSubjectGuest, errorCodeList, err)
	}
	return mapBooking(model, guestRows)
}

// UpdateBookingStatus moves the booking from one status to another. The stored
// status acts as a compare-and-set guard.
func (store *Store) UpdateBookingStatus(ctx context.Context, bookingID reservation.BookingID, from reservation.BookingStatus, to reservation.BookingStatus, at time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&Booking{}).
		Where("id = ? AND status = ?", bookingID.String(), from.String()).
		Updates(map[string]any{"status": to.String(), "updated_at": at.UTC()})
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdateStatus,
			fmt.Errorf("%w: booking %s is not %s", reservation.ErrInvalidState, bookingID, from))
	}
	return nil
}

// AttachGuests appends guests after any already stored for the booking.
func (store *Store) AttachGuests(ctx context.Context, bookingID reservation.BookingID, guests []reservation.Guest) error {
	if len(guests) == 0 {
		return nil
	}
	var existing int64
	err := store.db.WithContext(ctx).
		Model(&BookingGuest{}).
		Where("booking_id = ?", bookingID.String()).
		Count(&existing).Error
	if err != nil {
		return wrapStoreError(errorSubjectGuest, errorCodeList, err)
	}
	now := store.now()
	rows := make([]BookingGuest, 0, len(guests))
	for index, guest := range guests {
		rows = append(rows, BookingGuest{
			BookingID: bookingID.String(),
			Position:  int(existing) + index,
			Name:      guest.Name,
			Gender:    string(guest.Gender),
			Age:       guest.Age,
			CreatedAt: now,
		})
	}
	if err := store.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return wrapStoreError(errorSubjectGuest, errorCodeCreate, err)
	}
	return nil
}

// ListStaleBookings pages pending bookings created before the cutoff in
// (created_at, id) order, starting after the cursor.
func (store *Store) ListStaleBookings(ctx context.Context, createdBefore time.Time, after reservation.BookingCursor, limit int) ([]reservation.BookingCursor, error) {
	query := store.db.WithContext(ctx).
		Model(&Booking{}).
		Select("id", "created_at").
		Where("status IN ? AND created_at < ?", pendingStatusValues(), createdBefore.UTC())
	if !after.CreatedAt.IsZero() || !after.ID.IsZero() {
		createdAt := after.CreatedAt.UTC()
		query = query.Where("(created_at > ? OR (created_at = ? AND id > ?))", createdAt, createdAt, after.ID.String())
	}
	var rows []Booking
	err := query.
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	cursors := make([]reservation.BookingCursor, 0, len(rows))
	for _, row := range rows {
		bookingID, err := reservation.NewBookingID(row.ID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
		}
		cursors = append(cursors, reservation.BookingCursor{CreatedAt: row.CreatedAt.UTC(), ID: bookingID})
	}
	return cursors, nil
}

// PendingBookingsOfRoom lists the room's pending bookings whose stay ends on or after checkOutFrom.
func (store *Store) PendingBookingsOfRoom(ctx context.Context, roomID reservation.RoomID, checkOutFrom time.Time) ([]reservation.BookingID, error) {
	var rawIDs []string
	err := store.db.WithContext(ctx).
		Model(&Booking{}).
		Where("room_id = ? AND status IN ? AND check_out >= ?", int64(roomID), pendingStatusValues(), dateValue(checkOutFrom)).
		Order("id ASC").
		Pluck("id", &rawIDs).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	bookingIDs := make([]reservation.BookingID, 0, len(rawIDs))
	for _, rawID := range rawIDs {
		bookingID, err := reservation.NewBookingID(rawID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
		}
		bookingIDs = append(bookingIDs, bookingID)
	}
	return bookingIDs, nil
}

func pendingStatusValues() []string {
	pending := reservation.PendingStatuses()
	statuses := make([]string, 0, len(pending))
	for _, status := range pending {
		statuses = append(statuses, status.String())
	}
	return statuses
}

func mapBooking(model Booking, guestRows []BookingGuest) (reservation.Booking, error) {
	bookingID, err := reservation.NewBookingID(model.ID)
	if err != nil {
		return reservation.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	userID, err := reservation.NewUserID(model.UserID)
	if err != nil {
		return reservation.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	status, err := reservation.ParseBookingStatus(model.Status)
	if err != nil {
		return reservation.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	guests := make([]reservation.Guest, 0, len(guestRows))
	for _, row := range guestRows {
		guests = append(guests, reservation.Guest{
			Name:   row.Name,
			Gender: reservation.Gender(row.Gender),
			Age:    row.Age,
		})
	}
	return reservation.Booking{
		ID:         bookingID,
		HotelID:    reservation.HotelID(model.HotelID),
		RoomID:     reservation.RoomID(model.RoomID),
		UserID:     userID,
		RoomsCount: model.RoomsCount,
		CheckIn:    dateFromColumn(model.CheckIn),
		CheckOut:   dateFromColumn(model.CheckOut),
		Status:     status,
		Amount:     model.Amount,
		CreatedAt:  model.CreatedAt.UTC(),
		UpdatedAt:  model.UpdatedAt.UTC(),
		Guests:     guests,
	}, nil
}
