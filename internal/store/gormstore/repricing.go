package gormstore

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/repricing"
	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

// WithHotelTx runs fn in a transaction scoped to one hotel's repricing.
func (store *Store) WithHotelTx(ctx context.Context, fn func(ctx context.Context, hotelTx repricing.HotelTx) error) error {
	return store.transaction(ctx, func(txStore *Store) error {
		return fn(ctx, txStore)
	})
}

func (store *Store) LockHotelInventory(ctx context.Context, hotelID reservation.HotelID, from time.Time, to time.Time) ([]reservation.InventoryCell, error) {
	var rows []Inventory
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("hotel_id = ? AND date >= ? AND date <= ?", int64(hotelID), dateValue(from), dateValue(to)).
		Order("room_id ASC").
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectInventory, errorCodeLock, err)
	}
	return mapInventoryRows(rows), nil
}

func (store *Store) UpdateInventoryPrices(ctx context.Context, cells []reservation.InventoryCell) error {
	now := store.now()
	for _, cell := range cells {
		err := store.db.WithContext(ctx).
			Model(&Inventory{}).
			Where("room_id = ? AND date = ?", int64(cell.RoomID), dateValue(cell.Date)).
			Updates(map[string]any{"price": cell.Price, "updated_at": now}).Error
		if err != nil {
			return wrapStoreError(errorSubjectInventory, errorCodeUpdate, err)
		}
	}
	return nil
}

// UpsertHotelMinPrices writes one row per (hotel, date), overwriting the stored price.
func (store *Store) UpsertHotelMinPrices(ctx context.Context, prices []repricing.HotelMinPrice) error {
	if len(prices) == 0 {
		return nil
	}
	now := store.now()
	rows := make([]HotelMinPrice, 0, len(prices))
	for _, price := range prices {
		rows = append(rows, HotelMinPrice{
			HotelID:   int64(price.HotelID),
			Date:      dateValue(price.Date),
			Price:     price.Price,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hotel_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"price", "updated_at"}),
		}).
		CreateInBatches(&rows, insertBatchSize).Error
	if err != nil {
		return wrapStoreError(errorSubjectMinPrice, errorCodeUpsert, err)
	}
	return nil
}

// DeleteHotelMinPricesExcept removes the hotel's minima in [from, to] not dated in keep.
func (store *Store) DeleteHotelMinPricesExcept(ctx context.Context, hotelID reservation.HotelID, from time.Time, to time.Time, keep []time.Time) (int64, error) {
	query := store.db.WithContext(ctx).
		Where("hotel_id = ? AND date >= ? AND date <= ?", int64(hotelID), dateValue(from), dateValue(to))
	if len(keep) > 0 {
		kept := make([]datatypes.Date, 0, len(keep))
		for _, day := range keep {
			kept = append(kept, dateValue(day))
		}
		query = query.Where("date NOT IN ?", kept)
	}
	result := query.Delete(&HotelMinPrice{})
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectMinPrice, errorCodeDelete, result.Error)
	}
	return result.RowsAffected, nil
}

// ListHotelMinPrices returns the stored minima of a hotel in [from, to] by date.
func (store *Store) ListHotelMinPrices(ctx context.Context, hotelID reservation.HotelID, from time.Time, to time.Time) ([]repricing.HotelMinPrice, error) {
	var rows []HotelMinPrice
	err := store.db.WithContext(ctx).
		Where("hotel_id = ? AND date >= ? AND date <= ?", int64(hotelID), dateValue(from), dateValue(to)).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectMinPrice, errorCodeList, err)
	}
	prices := make([]repricing.HotelMinPrice, 0, len(rows))
	for _, row := range rows {
		prices = append(prices, repricing.HotelMinPrice{
			HotelID: reservation.HotelID(row.HotelID),
			Date:    dateFromColumn(row.Date),
			Price:   row.Price,
		})
	}
	return prices, nil
}
