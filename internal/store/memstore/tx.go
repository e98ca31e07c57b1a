package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/repricing"
	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
)

// lockCells locks keys in the given order and returns the cells still present.
func (tx *Tx) lockCells(ctx context.Context, keys []cellKey) ([]reservation.InventoryCell, error) {
	for _, key := range keys {
		if err := tx.lockCell(ctx, key); err != nil {
			return nil, err
		}
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	cells := make([]reservation.InventoryCell, 0, len(keys))
	for _, key := range keys {
		if cell, ok := tx.store.cells[key]; ok {
			cells = append(cells, cell)
		}
	}
	return cells, nil
}

// roomKeys lists the existing cell keys of a room whose day passes keep, by day.
func (tx *Tx) roomKeys(roomID reservation.RoomID, keep func(day int64) bool) []cellKey {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	var keys []cellKey
	for key := range tx.store.cells {
		if key.roomID == roomID && keep(key.day) {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(left, right int) bool { return keys[left].day < keys[right].day })
	return keys
}

func (tx *Tx) LockInventory(ctx context.Context, roomID reservation.RoomID, start time.Time, end time.Time) ([]reservation.InventoryCell, error) {
	first, last := dayNumber(start), dayNumber(end)
	if last < first {
		return nil, nil
	}
	keys := make([]cellKey, 0, last-first+1)
	for day := first; day <= last; day++ {
		keys = append(keys, cellKey{roomID: roomID, day: day})
	}
	return tx.lockCells(ctx, keys)
}

func (tx *Tx) UpdateInventoryCounts(ctx context.Context, cells []reservation.InventoryCell) error {
	return tx.updateCells(ctx, cells, func(stored *reservation.InventoryCell, cell reservation.InventoryCell) {
		stored.BookedCount = cell.BookedCount
		stored.ReservedCount = cell.ReservedCount
	})
}

func (tx *Tx) UpdateInventoryPrices(ctx context.Context, cells []reservation.InventoryCell) error {
	return tx.updateCells(ctx, cells, func(stored *reservation.InventoryCell, cell reservation.InventoryCell) {
		stored.Price = cell.Price
	})
}

func (tx *Tx) updateCells(ctx context.Context, cells []reservation.InventoryCell, apply func(stored *reservation.InventoryCell, cell reservation.InventoryCell)) error {
	for _, cell := range cells {
		key := keyOf(cell.RoomID, cell.Date)
		if err := tx.lockCell(ctx, key); err != nil {
			return err
		}
		tx.store.mu.Lock()
		stored, ok := tx.store.cells[key]
		if !ok {
			tx.store.mu.Unlock()
			return notFound(errorSubjectInventory, fmt.Sprintf("room %d on %s", cell.RoomID, cell.Date.Format(time.DateOnly)))
		}
		previous := stored
		tx.record(func() { tx.store.cells[key] = previous })
		apply(&stored, cell)
		tx.store.cells[key] = stored
		tx.store.mu.Unlock()
	}
	return nil
}

// InsertInventory skips cells whose (room, date) already exists.
func (tx *Tx) InsertInventory(ctx context.Context, cells []reservation.InventoryCell) error {
	for _, cell := range cells {
		key := keyOf(cell.RoomID, cell.Date)
		if err := tx.lockCell(ctx, key); err != nil {
			return err
		}
		tx.store.mu.Lock()
		if _, exists := tx.store.cells[key]; !exists {
			cell.Date = reservation.DateOf(cell.Date)
			tx.store.cells[key] = cell
			tx.record(func() { delete(tx.store.cells, key) })
		}
		tx.store.mu.Unlock()
	}
	return nil
}

func (tx *Tx) DeleteInventoryFrom(ctx context.Context, roomID reservation.RoomID, from time.Time) (int64, error) {
	first := dayNumber(from)
	keys := tx.roomKeys(roomID, func(day int64) bool { return day >= first })
	cells, err := tx.lockCells(ctx, keys)
	if err != nil {
		return 0, err
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for _, cell := range cells {
		key := keyOf(cell.RoomID, cell.Date)
		removed := cell
		delete(tx.store.cells, key)
		tx.record(func() { tx.store.cells[key] = removed })
	}
	return int64(len(cells)), nil
}

func (tx *Tx) SetInventoryClosed(ctx context.Context, roomID reservation.RoomID, start time.Time, end time.Time, closed bool) error {
	cells, err := tx.LockInventory(ctx, roomID, start, end)
	if err != nil {
		return err
	}
	for index := range cells {
		cells[index].Closed = closed
	}
	return tx.updateCells(ctx, cells, func(stored *reservation.InventoryCell, cell reservation.InventoryCell) {
		stored.Closed = cell.Closed
	})
}

// LockHotelInventory locks the hotel's cells in [from, to] ordered by (room, date).
func (tx *Tx) LockHotelInventory(ctx context.Context, hotelID reservation.HotelID, from time.Time, to time.Time) ([]reservation.InventoryCell, error) {
	first, last := dayNumber(from), dayNumber(to)
	tx.store.mu.Lock()
	var keys []cellKey
	for key, cell := range tx.store.cells {
		if cell.HotelID == hotelID && key.day >= first && key.day <= last {
			keys = append(keys, key)
		}
	}
	tx.store.mu.Unlock()
	sort.Slice(keys, func(left, right int) bool {
		if keys[left].roomID != keys[right].roomID {
			return keys[left].roomID < keys[right].roomID
		}
		return keys[left].day < keys[right].day
	})
	return tx.lockCells(ctx, keys)
}

func (tx *Tx) UpsertHotelMinPrices(ctx context.Context, prices []repricing.HotelMinPrice) error {
	for _, price := range prices {
		if err := tx.lockRow(ctx, "min_price", fmt.Sprintf("min_price:%d", price.HotelID)); err != nil {
			return err
		}
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for _, price := range prices {
		key := minPriceKey{hotelID: price.HotelID, day: dayNumber(price.Date)}
		previous, existed := tx.store.minPrices[key]
		price.Date = reservation.DateOf(price.Date)
		tx.store.minPrices[key] = price
		tx.record(func() {
			if existed {
				tx.store.minPrices[key] = previous
				return
			}
			delete(tx.store.minPrices, key)
		})
	}
	return nil
}

func (tx *Tx) DeleteHotelMinPricesExcept(ctx context.Context, hotelID reservation.HotelID, from time.Time, to time.Time, keep []time.Time) (int64, error) {
	if err := tx.lockRow(ctx, "min_price", fmt.Sprintf("min_price:%d", hotelID)); err != nil {
		return 0, err
	}
	kept := make(map[int64]struct{}, len(keep))
	for _, day := range keep {
		kept[dayNumber(day)] = struct{}{}
	}
	first, last := dayNumber(from), dayNumber(to)
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	var deleted int64
	for key, price := range tx.store.minPrices {
		if key.hotelID != hotelID || key.day < first || key.day > last {
			continue
		}
		if _, ok := kept[key.day]; ok {
			continue
		}
		delete(tx.store.minPrices, key)
		removedKey, removed := key, price
		tx.record(func() { tx.store.minPrices[removedKey] = removed })
		deleted++
	}
	return deleted, nil
}

func (tx *Tx) CreateHotel(_ context.Context, hotel reservation.Hotel) (reservation.Hotel, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	hotel.ID = tx.store.nextHotelID
	tx.store.nextHotelID++
	tx.store.hotels[hotel.ID] = hotel
	hotelID := hotel.ID
	tx.record(func() { delete(tx.store.hotels, hotelID) })
	return hotel, nil
}

func (tx *Tx) FindHotel(_ context.Context, hotelID reservation.HotelID) (reservation.Hotel, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	hotel, ok := tx.store.hotels[hotelID]
	if !ok {
		return reservation.Hotel{}, notFound(errorSubjectHotel, fmt.Sprintf("hotel %d", hotelID))
	}
	return hotel, nil
}

func (tx *Tx) SetHotelActive(_ context.Context, hotelID reservation.HotelID, active bool) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	hotel, ok := tx.store.hotels[hotelID]
	if !ok {
		return notFound(errorSubjectHotel, fmt.Sprintf("hotel %d", hotelID))
	}
	previous := hotel
	hotel.Active = active
	tx.store.hotels[hotelID] = hotel
	tx.record(func() { tx.store.hotels[hotelID] = previous })
	return nil
}

func (tx *Tx) CreateRoom(_ context.Context, room reservation.Room) (reservation.Room, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	room.ID = tx.store.nextRoomID
	tx.store.nextRoomID++
	tx.store.rooms[room.ID] = room
	roomID := room.ID
	tx.record(func() { delete(tx.store.rooms, roomID) })
	return room, nil
}

func (tx *Tx) FindRoom(_ context.Context, roomID reservation.RoomID) (reservation.Room, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	room, ok := tx.store.rooms[roomID]
	if !ok {
		return reservation.Room{}, notFound(errorSubjectRoom, fmt.Sprintf("room %d", roomID))
	}
	return room, nil
}

func (tx *Tx) RoomsOfHotel(_ context.Context, hotelID reservation.HotelID) ([]reservation.Room, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	var rooms []reservation.Room
	for _, room := range tx.store.rooms {
		if room.HotelID == hotelID {
			rooms = append(rooms, room)
		}
	}
	sort.Slice(rooms, func(left, right int) bool { return rooms[left].ID < rooms[right].ID })
	return rooms, nil
}

func (tx *Tx) DeleteRoom(_ context.Context, roomID reservation.RoomID) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	room, ok := tx.store.rooms[roomID]
	if !ok {
		return notFound(errorSubjectRoom, fmt.Sprintf("room %d", roomID))
	}
	delete(tx.store.rooms, roomID)
	tx.record(func() { tx.store.rooms[roomID] = room })
	return nil
}

func (tx *Tx) CreateBooking(ctx context.Context, booking reservation.Booking) error {
	if err := tx.lockBooking(ctx, booking.ID); err != nil {
		return err
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	if _, exists := tx.store.bookings[booking.ID]; exists {
		return reservation.WrapError(errorOperationStore, errorSubjectBooking, errorCodeExists,
			fmt.Errorf("booking %s already stored", booking.ID))
	}
	booking.Guests = append([]reservation.Guest(nil), booking.Guests...)
	tx.store.bookings[booking.ID] = booking
	bookingID := booking.ID
	tx.record(func() { delete(tx.store.bookings, bookingID) })
	return nil
}

func (tx *Tx) GetBookingForUpdate(ctx context.Context, bookingID reservation.BookingID) (reservation.Booking, error) {
	if err := tx.lockBooking(ctx, bookingID); err != nil {
		return reservation.Booking{}, err
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	booking, ok := tx.store.bookings[bookingID]
	if !ok {
		return reservation.Booking{}, notFound(errorSubjectBooking, fmt.Sprintf("booking %s", bookingID))
	}
	booking.Guests = append([]reservation.Guest(nil), booking.Guests...)
	return booking, nil
}

func (tx *Tx) UpdateBookingStatus(ctx context.Context, bookingID reservation.BookingID, from reservation.BookingStatus, to reservation.BookingStatus, at time.Time) error {
	return tx.updateBooking(ctx, bookingID, func(booking *reservation.Booking) error {
		if booking.Status != from {
			return reservation.WrapError(errorOperationStore, errorSubjectBooking, errorCodeUpdateStatus,
				fmt.Errorf("%w: booking %s is not %s", reservation.ErrInvalidState, bookingID, from))
		}
		booking.Status = to
		booking.UpdatedAt = at.UTC()
		return nil
	})
}

func (tx *Tx) AttachGuests(ctx context.Context, bookingID reservation.BookingID, guests []reservation.Guest) error {
	return tx.updateBooking(ctx, bookingID, func(booking *reservation.Booking) error {
		booking.Guests = append(append([]reservation.Guest(nil), booking.Guests...), guests...)
		return nil
	})
}

func (tx *Tx) updateBooking(ctx context.Context, bookingID reservation.BookingID, change func(booking *reservation.Booking) error) error {
	if err := tx.lockBooking(ctx, bookingID); err != nil {
		return err
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	booking, ok := tx.store.bookings[bookingID]
	if !ok {
		return notFound(errorSubjectBooking, fmt.Sprintf("booking %s", bookingID))
	}
	previous := booking
	if err := change(&booking); err != nil {
		return err
	}
	tx.store.bookings[bookingID] = booking
	tx.record(func() { tx.store.bookings[bookingID] = previous })
	return nil
}

func (tx *Tx) ListStaleBookings(_ context.Context, createdBefore time.Time, after reservation.BookingCursor, limit int) ([]reservation.BookingCursor, error) {
	tx.store.mu.Lock()
	var stale []reservation.BookingCursor
	for _, booking := range tx.store.bookings {
		if booking.Status.IsPending() && booking.CreatedAt.Before(createdBefore) && after.Precedes(booking.CreatedAt, booking.ID) {
			stale = append(stale, reservation.BookingCursor{CreatedAt: booking.CreatedAt, ID: booking.ID})
		}
	}
	tx.store.mu.Unlock()
	sort.Slice(stale, func(left, right int) bool {
		return stale[left].Precedes(stale[right].CreatedAt, stale[right].ID)
	})
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (tx *Tx) PendingBookingsOfRoom(_ context.Context, roomID reservation.RoomID, checkOutFrom time.Time) ([]reservation.BookingID, error) {
	from := dayNumber(checkOutFrom)
	tx.store.mu.Lock()
	var bookingIDs []reservation.BookingID
	for _, booking := range tx.store.bookings {
		if booking.RoomID == roomID && booking.Status.IsPending() && dayNumber(booking.CheckOut) >= from {
			bookingIDs = append(bookingIDs, booking.ID)
		}
	}
	tx.store.mu.Unlock()
	sort.Slice(bookingIDs, func(left, right int) bool { return bookingIDs[left].String() < bookingIDs[right].String() })
	return bookingIDs, nil
}

// ListHotels pages hotels by ascending id.
func (store *Store) ListHotels(_ context.Context, afterID reservation.HotelID, limit int) ([]reservation.Hotel, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	hotels := make([]reservation.Hotel, 0, len(store.hotels))
	for _, hotel := range store.hotels {
		if hotel.ID > afterID {
			hotels = append(hotels, hotel)
		}
	}
	sort.Slice(hotels, func(left, right int) bool { return hotels[left].ID < hotels[right].ID })
	if limit > 0 && len(hotels) > limit {
		hotels = hotels[:limit]
	}
	return hotels, nil
}

// ListHotelMinPrices returns the stored minima of a hotel in [from, to] by date.
func (store *Store) ListHotelMinPrices(_ context.Context, hotelID reservation.HotelID, from time.Time, to time.Time) ([]repricing.HotelMinPrice, error) {
	first, last := dayNumber(from), dayNumber(to)
	store.mu.Lock()
	defer store.mu.Unlock()
	var prices []repricing.HotelMinPrice
	for key, price := range store.minPrices {
		if key.hotelID == hotelID && key.day >= first && key.day <= last {
			prices = append(prices, price)
		}
	}
	sort.Slice(prices, func(left, right int) bool { return prices[left].Date.Before(prices[right].Date) })
	return prices, nil
}
