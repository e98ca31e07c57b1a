package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var testToday = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

type cellKey struct {
	roomID RoomID
	date   time.Time
}

// stubStore keeps state in maps and restores a snapshot when a transaction fails.
type stubStore struct {
	hotels       map[HotelID]Hotel
	rooms        map[RoomID]Room
	cells        map[cellKey]InventoryCell
	bookings     map[BookingID]Booking
	nextHotelID  HotelID
	nextRoomID   RoomID
	failCreate   error
	failLock     error
	lockCalls    int
	transactions int
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		hotels:      make(map[HotelID]Hotel),
		rooms:       make(map[RoomID]Room),
		cells:       make(map[cellKey]InventoryCell),
		bookings:    make(map[BookingID]Booking),
		nextHotelID: 1,
		nextRoomID:  1,
	}
}

func (store *stubStore) snapshot() *stubStore {
	copied := *store
	copied.hotels = make(map[HotelID]Hotel, len(store.hotels))
	for key, value := range store.hotels {
		copied.hotels[key] = value
	}
	copied.rooms = make(map[RoomID]Room, len(store.rooms))
	for key, value := range store.rooms {
		copied.rooms[key] = value
	}
	copied.cells = make(map[cellKey]InventoryCell, len(store.cells))
	for key, value := range store.cells {
		copied.cells[key] = value
	}
	copied.bookings = make(map[BookingID]Booking, len(store.bookings))
	for key, value := range store.bookings {
		value.Guests = append([]Guest(nil), value.Guests...)
		copied.bookings[key] = value
	}
	return &copied
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.transactions++
	saved := store.snapshot()
	if err := fn(ctx, store); err != nil {
		store.hotels = saved.hotels
		store.rooms = saved.rooms
		store.cells = saved.cells
		store.bookings = saved.bookings
		return err
	}
	return nil
}

func (store *stubStore) LockInventory(_ context.Context, roomID RoomID, start time.Time, end time.Time) ([]InventoryCell, error) {
	store.lockCalls++
	if store.failLock != nil {
		return nil, store.failLock
	}
	var cells []InventoryCell
	for key, cell := range store.cells {
		if key.roomID != roomID || key.date.Before(start) || key.date.After(end) {
			continue
		}
		cells = append(cells, cell)
	}
	sort.Slice(cells, func(left, right int) bool { return cells[left].Date.Before(cells[right].Date) })
	return cells, nil
}

func (store *stubStore) UpdateInventoryCounts(_ context.Context, cells []InventoryCell) error {
	for _, cell := range cells {
		key := cellKey{roomID: cell.RoomID, date: cell.Date}
		stored, ok := store.cells[key]
		if !ok {
			return ErrNotFound
		}
		stored.BookedCount = cell.BookedCount
		stored.ReservedCount = cell.ReservedCount
		store.cells[key] = stored
	}
	return nil
}

func (store *stubStore) InsertInventory(_ context.Context, cells []InventoryCell) error {
	for _, cell := range cells {
		key := cellKey{roomID: cell.RoomID, date: cell.Date}
		if _, exists := store.cells[key]; exists {
			continue
		}
		store.cells[key] = cell
	}
	return nil
}

func (store *stubStore) DeleteInventoryFrom(_ context.Context, roomID RoomID, from time.Time) (int64, error) {
	var deleted int64
	for key := range store.cells {
		if key.roomID == roomID && !key.date.Before(from) {
			delete(store.cells, key)
			deleted++
		}
	}
	return deleted, nil
}

func (store *stubStore) SetInventoryClosed(_ context.Context, roomID RoomID, start time.Time, end time.Time, closed bool) error {
	for key, cell := range store.cells {
		if key.roomID == roomID && !key.date.Before(start) && !key.date.After(end) {
			cell.Closed = closed
			store.cells[key] = cell
		}
	}
	return nil
}

func (store *stubStore) CreateHotel(_ context.Context, hotel Hotel) (Hotel, error) {
	hotel.ID = store.nextHotelID
	store.nextHotelID++
	store.hotels[hotel.ID] = hotel
	return hotel, nil
}

func (store *stubStore) FindHotel(_ context.Context, hotelID HotelID) (Hotel, error) {
	hotel, ok := store.hotels[hotelID]
	if !ok {
		return Hotel{}, ErrNotFound
	}
	return hotel, nil
}

func (store *stubStore) SetHotelActive(_ context.Context, hotelID HotelID, active bool) error {
	hotel, ok := store.hotels[hotelID]
	if !ok {
		return ErrNotFound
	}
	hotel.Active = active
	store.hotels[hotelID] = hotel
	return nil
}

func (store *stubStore) CreateRoom(_ context.Context, room Room) (Room, error) {
	room.ID = store.nextRoomID
	store.nextRoomID++
	store.rooms[room.ID] = room
	return room, nil
}

func (store *stubStore) FindRoom(_ context.Context, roomID RoomID) (Room, error) {
	room, ok := store.rooms[roomID]
	if !ok {
		return Room{}, ErrNotFound
	}
	return room, nil
}

func (store *stubStore) RoomsOfHotel(_ context.Context, hotelID HotelID) ([]Room, error) {
	var rooms []Room
	for _, room := range store.rooms {
		if room.HotelID == hotelID {
			rooms = append(rooms, room)
		}
	}
	sort.Slice(rooms, func(left, right int) bool { return rooms[left].ID < rooms[right].ID })
	return rooms, nil
}

func (store *stubStore) DeleteRoom(_ context.Context, roomID RoomID) error {
	if _, ok := store.rooms[roomID]; !ok {
		return ErrNotFound
	}
	delete(store.rooms, roomID)
	return nil
}

func (store *stubStore) CreateBooking(_ context.Context, booking Booking) error {
	if store.failCreate != nil {
		return store.failCreate
	}
	store.bookings[booking.ID] = booking
	return nil
}

func (store *stubStore) GetBookingForUpdate(_ context.Context, bookingID BookingID) (Booking, error) {
	booking, ok := store.bookings[bookingID]
	if !ok {
		return Booking{}, ErrNotFound
	}
	booking.Guests = append([]Guest(nil), booking.Guests...)
	return booking, nil
}

func (store *stubStore) UpdateBookingStatus(_ context.Context, bookingID BookingID, from BookingStatus, to BookingStatus, at time.Time) error {
	booking, ok := store.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	if booking.Status != from {
		return fmt.Errorf("%w: stored %s", ErrInvalidState, booking.Status)
	}
	booking.Status = to
	booking.UpdatedAt = at
	store.bookings[bookingID] = booking
	return nil
}

func (store *stubStore) AttachGuests(_ context.Context, bookingID BookingID, guests []Guest) error {
	booking, ok := store.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	booking.Guests = append(booking.Guests, guests...)
	store.bookings[bookingID] = booking
	return nil
}

func (store *stubStore) ListStaleBookings(_ context.Context, createdBefore time.Time, after BookingCursor, limit int) ([]BookingCursor, error) {
	var stale []BookingCursor
	for _, booking := range store.bookings {
		if booking.Status.IsPending() && booking.CreatedAt.Before(createdBefore) && after.Precedes(booking.CreatedAt, booking.ID) {
			stale = append(stale, BookingCursor{CreatedAt: booking.CreatedAt, ID: booking.ID})
		}
	}
	sort.Slice(stale, func(left, right int) bool {
		return stale[left].Precedes(stale[right].CreatedAt, stale[right].ID)
	})
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (store *stubStore) PendingBookingsOfRoom(_ context.Context, roomID RoomID, checkOutFrom time.Time) ([]BookingID, error) {
	var bookingIDs []BookingID
	for _, booking := range store.bookings {
		if booking.RoomID == roomID && booking.Status.IsPending() && !booking.CheckOut.Before(checkOutFrom) {
			bookingIDs = append(bookingIDs, booking.ID)
		}
	}
	sort.Slice(bookingIDs, func(left, right int) bool { return bookingIDs[left].String() < bookingIDs[right].String() })
	return bookingIDs, nil
}

func (store *stubStore) mustCell(test *testing.T, roomID RoomID, date time.Time) InventoryCell {
	test.Helper()
	cell, ok := store.cells[cellKey{roomID: roomID, date: date}]
	if !ok {
		test.Fatalf("missing cell room=%d date=%s", roomID, date.Format(time.DateOnly))
	}
	return cell
}

func (store *stubStore) mustBooking(test *testing.T, bookingID BookingID) Booking {
	test.Helper()
	booking, ok := store.bookings[bookingID]
	if !ok {
		test.Fatalf("missing booking %s", bookingID)
	}
	return booking
}

// seedHotel stores an active hotel with one room and days cells starting at testToday.
func (store *stubStore) seedHotel(test *testing.T, capacity int, days int) (Hotel, Room) {
	test.Helper()
	hotel, err := store.CreateHotel(context.Background(), Hotel{Name: "Harbor", City: "Lisbon", Active: true})
	if err != nil {
		test.Fatalf("seed hotel: %v", err)
	}
	room, err := store.CreateRoom(context.Background(), Room{HotelID: hotel.ID, Type: "double", BasePrice: decimal.NewFromInt(100), Capacity: capacity})
	if err != nil {
		test.Fatalf("seed room: %v", err)
	}
	for offset := 0; offset < days; offset++ {
		date := testToday.AddDate(0, 0, offset)
		store.cells[cellKey{roomID: room.ID, date: date}] = InventoryCell{
			HotelID:     hotel.ID,
			RoomID:      room.ID,
			Date:        date,
			City:        hotel.City,
			TotalCount:  capacity,
			SurgeFactor: decimal.NewFromInt(1),
			Price:       decimal.NewFromInt(100),
		}
	}
	return hotel, room
}

type manualClock struct {
	now time.Time
}

func (clock *manualClock) Now() time.Time {
	return clock.now
}

func (clock *manualClock) Advance(duration time.Duration) {
	clock.now = clock.now.Add(duration)
}

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

type recorderPublisher struct {
	events []BookingEvent
	err    error
}

func (publisher *recorderPublisher) PublishBookingEvent(_ context.Context, event BookingEvent) error {
	publisher.events = append(publisher.events, event)
	return publisher.err
}

func mustNewService(test *testing.T, store Store, clock *manualClock, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, clock.Now, options...)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustBookingID(test *testing.T, raw string) BookingID {
	test.Helper()
	bookingID, err := NewBookingID(raw)
	if err != nil {
		test.Fatalf("booking id: %v", err)
	}
	return bookingID
}

func mustRequest(test *testing.T, hotel Hotel, room Room, checkIn time.Time, checkOut time.Time, roomsCount int, user string) BookingRequest {
	test.Helper()
	request, err := NewBookingRequest(hotel.ID, room.ID, checkIn, checkOut, roomsCount, mustUserID(test, user))
	if err != nil {
		test.Fatalf("booking request: %v", err)
	}
	return request
}

func mustGuests(test *testing.T, names ...string) []Guest {
	test.Helper()
	guests := make([]Guest, 0, len(names))
	for _, name := range names {
		guest, err := NewGuest(name, "other", 30)
		if err != nil {
			test.Fatalf("guest: %v", err)
		}
		guests = append(guests, guest)
	}
	return guests
}

func requireErrorIs(test *testing.T, err error, target error) {
	test.Helper()
	if !errors.Is(err, target) {
		test.Fatalf("expected %v, got %v", target, err)
	}
}
