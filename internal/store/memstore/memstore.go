// Package memstore keeps hotels, inventory and bookings in process memory. Rows
// touched by a transaction are locked until it ends and writes are undone on
// rollback, so concurrent bookings behave as they do against a database.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/repricing"
	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
)

const (
	defaultLockWait = 5 * time.Second

	errorOperationStore   = "memstore"
	errorSubjectBooking   = "booking"
	errorSubjectHotel     = "hotel"
	errorSubjectInventory = "inventory"
	errorSubjectRoom      = "room"
	errorCodeGet          = "get"
	errorCodeLockTimeout  = "lock_timeout"
	errorCodeUpdateStatus = "update_status"
	errorCodeExists       = "exists"
)

type cellKey struct {
	roomID reservation.RoomID
	day    int64
}

type minPriceKey struct {
	hotelID reservation.HotelID
	day     int64
}

// Option configures a Store.
type Option func(*Store)

// WithLockWait bounds how long a transaction waits for a row held by another one.
func WithLockWait(lockWait time.Duration) Option {
	return func(store *Store) {
		if lockWait > 0 {
			store.lockWait = lockWait
		}
	}
}

// Store implements reservation.Store and repricing.Store in memory.
type Store struct {
	mu          sync.Mutex
	hotels      map[reservation.HotelID]reservation.Hotel
	rooms       map[reservation.RoomID]reservation.Room
	cells       map[cellKey]reservation.InventoryCell
	bookings    map[reservation.BookingID]reservation.Booking
	minPrices   map[minPriceKey]repricing.HotelMinPrice
	rowLocks    map[string]chan struct{}
	nextHotelID reservation.HotelID
	nextRoomID  reservation.RoomID
	lockWait    time.Duration
}

// New returns an empty Store.
func New(options ...Option) *Store {
	store := &Store{
		hotels:      make(map[reservation.HotelID]reservation.Hotel),
		rooms:       make(map[reservation.RoomID]reservation.Room),
		cells:       make(map[cellKey]reservation.InventoryCell),
		bookings:    make(map[reservation.BookingID]reservation.Booking),
		minPrices:   make(map[minPriceKey]repricing.HotelMinPrice),
		rowLocks:    make(map[string]chan struct{}),
		nextHotelID: 1,
		nextRoomID:  1,
		lockWait:    defaultLockWait,
	}
	for _, option := range options {
		if option != nil {
			option(store)
		}
	}
	return store
}

// Tx is the transaction-scoped view of a Store. It satisfies both
// reservation.Store and repricing.HotelTx; nested WithTx calls join it.
type Tx struct {
	store *Store
	held  map[string]chan struct{}
	undo  []func()
}

func (store *Store) begin() *Tx {
	return &Tx{store: store, held: make(map[string]chan struct{})}
}

// run executes fn in a fresh transaction, committing when it returns nil.
func (store *Store) run(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := store.begin()
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	tx.commit()
	return nil
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore reservation.Store) error) error {
	return store.run(ctx, func(tx *Tx) error {
		return fn(ctx, tx)
	})
}

// WithHotelTx runs fn in a transaction used to reprice a single hotel.
func (store *Store) WithHotelTx(ctx context.Context, fn func(ctx context.Context, hotelTx repricing.HotelTx) error) error {
	return store.run(ctx, func(tx *Tx) error {
		return fn(ctx, tx)
	})
}

func (tx *Tx) WithTx(ctx context.Context, fn func(ctx context.Context, txStore reservation.Store) error) error {
	return fn(ctx, tx)
}

func (tx *Tx) commit() {
	tx.undo = nil
	tx.releaseLocks()
}

func (tx *Tx) rollback() {
	tx.store.mu.Lock()
	for index := len(tx.undo) - 1; index >= 0; index-- {
		tx.undo[index]()
	}
	tx.store.mu.Unlock()
	tx.undo = nil
	tx.releaseLocks()
}

func (tx *Tx) releaseLocks() {
	for key, semaphore := range tx.held {
		<-semaphore
		delete(tx.held, key)
	}
}

// lockRow blocks until the row is free, the lock wait passes or ctx ends. A
// lock wait that runs out is reported as insufficient inventory.
func (tx *Tx) lockRow(ctx context.Context, subject string, key string) error {
	if _, owned := tx.held[key]; owned {
		return nil
	}
	tx.store.mu.Lock()
	semaphore, ok := tx.store.rowLocks[key]
	if !ok {
		semaphore = make(chan struct{}, 1)
		tx.store.rowLocks[key] = semaphore
	}
	tx.store.mu.Unlock()

	select {
	case semaphore <- struct{}{}:
		tx.held[key] = semaphore
		return nil
	default:
	}
	timer := time.NewTimer(tx.store.lockWait)
	defer timer.Stop()
	select {
	case semaphore <- struct{}{}:
		tx.held[key] = semaphore
		return nil
	case <-timer.C:
		return reservation.WrapError(errorOperationStore, subject, errorCodeLockTimeout,
			fmt.Errorf("%w: row %s still locked after %s", reservation.ErrInsufficientInventory, key, tx.store.lockWait))
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tx *Tx) lockCell(ctx context.Context, key cellKey) error {
	return tx.lockRow(ctx, errorSubjectInventory, fmt.Sprintf("inventory:%d:%d", key.roomID, key.day))
}

func (tx *Tx) lockBooking(ctx context.Context, bookingID reservation.BookingID) error {
	return tx.lockRow(ctx, errorSubjectBooking, "booking:"+bookingID.String())
}

// record registers an undo step. Callers hold store.mu.
func (tx *Tx) record(step func()) {
	tx.undo = append(tx.undo, step)
}

func dayNumber(moment time.Time) int64 {
	return reservation.DateOf(moment).Unix() / int64(24*time.Hour/time.Second)
}

func keyOf(roomID reservation.RoomID, moment time.Time) cellKey {
	return cellKey{roomID: roomID, day: dayNumber(moment)}
}

func notFound(subject string, detail string) error {
	return reservation.WrapError(errorOperationStore, subject, errorCodeGet, fmt.Errorf("%w: %s", reservation.ErrNotFound, detail))
}

// The methods below let a Store be used outside an explicit transaction; each
// call runs in its own transaction.

func (store *Store) LockInventory(ctx context.Context, roomID reservation.RoomID, start time.Time, end time.Time) ([]reservation.InventoryCell, error) {
	var cells []reservation.InventoryCell
	err := store.run(ctx, func(tx *Tx) error {
		locked, err := tx.LockInventory(ctx, roomID, start, end)
		cells = locked
		return err
	})
	return cells, err
}

func (store *Store) UpdateInventoryCounts(ctx context.Context, cells []reservation.InventoryCell) error {
	return store.run(ctx, func(tx *Tx) error { return tx.UpdateInventoryCounts(ctx, cells) })
}

func (store *Store) InsertInventory(ctx context.Context, cells []reservation.InventoryCell) error {
	return store.run(ctx, func(tx *Tx) error { return tx.InsertInventory(ctx, cells) })
}

func (store *Store) DeleteInventoryFrom(ctx context.Context, roomID reservation.RoomID, from time.Time) (int64, error) {
	var deleted int64
	err := store.run(ctx, func(tx *Tx) error {
		count, err := tx.DeleteInventoryFrom(ctx, roomID, from)
		deleted = count
		return err
	})
	return deleted, err
}

func (store *Store) SetInventoryClosed(ctx context.Context, roomID reservation.RoomID, start time.Time, end time.Time, closed bool) error {
	return store.run(ctx, func(tx *Tx) error { return tx.SetInventoryClosed(ctx, roomID, start, end, closed) })
}

func (store *Store) CreateHotel(ctx context.Context, hotel reservation.Hotel) (reservation.Hotel, error) {
	var created reservation.Hotel
	err := store.run(ctx, func(tx *Tx) error {
		stored, err := tx.CreateHotel(ctx, hotel)
		created = stored
		return err
	})
	return created, err
}

func (store *Store) FindHotel(ctx context.Context, hotelID reservation.HotelID) (reservation.Hotel, error) {
	return store.begin().FindHotel(ctx, hotelID)
}

func (store *Store) SetHotelActive(ctx context.Context, hotelID reservation.HotelID, active bool) error {
	return store.run(ctx, func(tx *Tx) error { return tx.SetHotelActive(ctx, hotelID, active) })
}

func (store *Store) CreateRoom(ctx context.Context, room reservation.Room) (reservation.Room, error) {
	var created reservation.Room
	err := store.run(ctx, func(tx *Tx) error {
		stored, err := tx.CreateRoom(ctx, room)
		created = stored
		return err
	})
	return created, err
}

func (store *Store) FindRoom(ctx context.Context, roomID reservation.RoomID) (reservation.Room, error) {
	return store.begin().FindRoom(ctx, roomID)
}

func (store *Store) RoomsOfHotel(ctx context.Context, hotelID reservation.HotelID) ([]reservation.Room, error) {
	return store.begin().RoomsOfHotel(ctx, hotelID)
}

func (store *Store) DeleteRoom(ctx context.Context, roomID reservation.RoomID) error {
	return store.run(ctx, func(tx *Tx) error { return tx.DeleteRoom(ctx, roomID) })
}

func (store *Store) CreateBooking(ctx context.Context, booking reservation.Booking) error {
	return store.run(ctx, func(tx *Tx) error { return tx.CreateBooking(ctx, booking) })
}

func (store *Store) GetBookingForUpdate(ctx context.Context, bookingID reservation.BookingID) (reservation.Booking, error) {
	var booking reservation.Booking
	err := store.run(ctx, func(tx *Tx) error {
		loaded, err := tx.GetBookingForUpdate(ctx, bookingID)
		booking = loaded
		return err
	})
	return booking, err
}

func (store *Store) UpdateBookingStatus(ctx context.Context, bookingID reservation.BookingID, from reservation.BookingStatus, to reservation.BookingStatus, at time.Time) error {
	return store.run(ctx, func(tx *Tx) error { return tx.UpdateBookingStatus(ctx, bookingID, from, to, at) })
}

func (store *Store) AttachGuests(ctx context.Context, bookingID reservation.BookingID, guests []reservation.Guest) error {
	return store.run(ctx, func(tx *Tx) error { return tx.AttachGuests(ctx, bookingID, guests) })
}

func (store *Store) ListStaleBookings(ctx context.Context, createdBefore time.Time, after reservation.BookingCursor, limit int) ([]reservation.BookingCursor, error) {
	return store.begin().ListStaleBookings(ctx, createdBefore, after, limit)
}

func (store *Store) PendingBookingsOfRoom(ctx context.Context, roomID reservation.RoomID, checkOutFrom time.Time) ([]reservation.BookingID, error) {
	return store.begin().PendingBookingsOfRoom(ctx, roomID, checkOutFrom)
}
