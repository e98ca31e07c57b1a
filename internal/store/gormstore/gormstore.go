package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
	"gorm.io/gorm"
)

const (
	dialectPostgres = "postgres"
	dialectMySQL    = "mysql"

	defaultLockWait = 5 * time.Second
	insertBatchSize = 100
)

// Option configures a Store.
type Option func(*Store)

// WithLockWait bounds how long a transaction waits for a row lock.
func WithLockWait(lockWait time.Duration) Option {
	return func(store *Store) {
		if lockWait > 0 {
			store.lockWait = lockWait
		}
	}
}

// WithClock overrides the clock used for created_at and updated_at columns.
func WithClock(now func() time.Time) Option {
	return func(store *Store) {
		if now != nil {
			store.nowFn = now
		}
	}
}

// Store implements reservation.Store and repricing.Store using GORM.
type Store struct {
	db       *gorm.DB
	lockWait time.Duration
	nowFn    func() time.Time
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB, options ...Option) *Store {
	store := &Store{db: db, lockWait: defaultLockWait, nowFn: time.Now}
	for _, option := range options {
		if option != nil {
			option(store)
		}
	}
	return store
}

// WithTx executes fn within a transaction whose lock waits are bounded.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore reservation.Store) error) error {
	return store.transaction(ctx, func(txStore *Store) error {
		return fn(ctx, txStore)
	})
}

func (store *Store) transaction(ctx context.Context, fn func(txStore *Store) error) error {
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := store.applyLockWait(transaction); err != nil {
			return wrapStoreError(errorSubjectTransaction, errorCodeLockWait, err)
		}
		return fn(&Store{db: transaction, lockWait: store.lockWait, nowFn: store.nowFn})
	})
	if err != nil && isLockUnavailable(err) && !errors.Is(err, reservation.ErrInsufficientInventory) {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return err
}

// applyLockWait sets the per-transaction lock wait. SQLite serializes writers
// and relies on the busy_timeout pragma set when the database is opened.
func (store *Store) applyLockWait(transaction *gorm.DB) error {
	switch transaction.Dialector.Name() {
	case dialectPostgres:
		return transaction.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", store.lockWait.Milliseconds())).Error
	case dialectMySQL:
		seconds := int64(store.lockWait / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		return transaction.Exec("SET SESSION innodb_lock_wait_timeout = ?", seconds).Error
	}
	return nil
}

func (store *Store) now() time.Time {
	return store.nowFn().UTC()
}

func (store *Store) CreateHotel(ctx context.Context, hotel reservation.Hotel) (reservation.Hotel, error) {
	now := store.now()
	model := Hotel{Name: hotel.Name, City: hotel.City, Active: hotel.Active, CreatedAt: now, UpdatedAt: now}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return reservation.Hotel{}, wrapStoreError(errorSubjectHotel, errorCodeCreate, err)
	}
	return mapHotel(model), nil
}

func (store *Store) FindHotel(ctx context.Context, hotelID reservation.HotelID) (reservation.Hotel, error) {
	var model Hotel
	err := store.db.WithContext(ctx).Where("id = ?", int64(hotelID)).Take(&model).Error
	if err != nil {
		return reservation.Hotel{}, wrapLookupError(errorSubjectHotel, err)
	}
	return mapHotel(model), nil
}

func (store *Store) SetHotelActive(ctx context.Context, hotelID reservation.HotelID, active bool) error {
	err := store.db.WithContext(ctx).
		Model(&Hotel{}).
		Where("id = ?", int64(hotelID)).
		Updates(map[string]any{"active": active, "updated_at": store.now()}).Error
	if err != nil {
		return wrapStoreError(errorSubjectHotel, errorCodeUpdate, err)
	}
	return nil
}

// ListHotels pages hotels by ascending id.
func (store *Store) ListHotels(ctx context.Context, afterID reservation.HotelID, limit int) ([]reservation.Hotel, error) {
	var rows []Hotel
	err := store.db.WithContext(ctx).
		Where("id > ?", int64(afterID)).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectHotel, errorCodeList, err)
	}
	hotels := make([]reservation.Hotel, 0, len(rows))
	for _, row := range rows {
		hotels = append(hotels, mapHotel(row))
	}
	return hotels, nil
}

func (store *Store) CreateRoom(ctx context.Context, room reservation.Room) (reservation.Room, error) {
	now := store.now()
	model := Room{
		HotelID:   int64(room.HotelID),
		Type:      room.Type,
		BasePrice: room.BasePrice,
		Capacity:  room.Capacity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return reservation.Room{}, wrapStoreError(errorSubjectRoom, errorCodeCreate, err)
	}
	return mapRoom(model), nil
}

func (store *Store) FindRoom(ctx context.Context, roomID reservation.RoomID) (reservation.Room, error) {
	var model Room
	err := store.db.WithContext(ctx).Where("id = ?", int64(roomID)).Take(&model).Error
	if err != nil {
		return reservation.Room{}, wrapLookupError(errorSubjectRoom, err)
	}
	return mapRoom(model), nil
}

func (store *Store) RoomsOfHotel(ctx context.Context, hotelID reservation.HotelID) ([]reservation.Room, error) {
	var rows []Room
	err := store.db.WithContext(ctx).
		Where("hotel_id = ?", int64(hotelID)).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectRoom, errorCodeList, err)
	}
	rooms := make([]reservation.Room, 0, len(rows))
	for _, row := range rows {
		rooms = append(rooms, mapRoom(row))
	}
	return rooms, nil
}

func (store *Store) DeleteRoom(ctx context.Context, roomID reservation.RoomID) error {
	result := store.db.WithContext(ctx).Where("id = ?", int64(roomID)).Delete(&Room{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectRoom, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectRoom, errorCodeDelete, reservation.ErrNotFound)
	}
	return nil
}

func mapHotel(model Hotel) reservation.Hotel {
	return reservation.Hotel{
		ID:     reservation.HotelID(model.ID),
		Name:   model.Name,
		City:   model.City,
		Active: model.Active,
	}
}

func mapRoom(model Room) reservation.Room {
	return reservation.Room{
		ID:        reservation.RoomID(model.ID),
		HotelID:   reservation.HotelID(model.HotelID),
		Type:      model.Type,
		BasePrice: model.BasePrice,
		Capacity:  model.Capacity,
	}
}
