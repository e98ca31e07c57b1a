package gormstore

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

// LockInventory selects the room's cells in [start, end] FOR UPDATE in ascending date order.
func (store *Store) LockInventory(ctx context.Context, roomID reservation.RoomID, start time.Time, end time.Time) ([]reservation.InventoryCell, error) {
	var rows []Inventory
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("room_id = ? AND date >= ? AND date <= ?", int64(roomID), dateValue(start), dateValue(end)).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectInventory, errorCodeLock, err)
	}
	return mapInventoryRows(rows), nil
}

func (store *Store) UpdateInventoryCounts(ctx context.Context, cells []reservation.InventoryCell) error {
	now := store.now()
	for _, cell := range cells {
		err := store.db.WithContext(ctx).
			Model(&Inventory{}).
			Where("room_id = ? AND date = ?", int64(cell.RoomID), dateValue(cell.Date)).
			Updates(map[string]any{
				"booked_count":   cell.BookedCount,
				"reserved_count": cell.ReservedCount,
				"updated_at":     now,
			}).Error
		if err != nil {
			return wrapStoreError(errorSubjectInventory, errorCodeUpdate, err)
		}
	}
	return nil
}

// InsertInventory creates cells in batches, leaving existing (room, date) rows untouched.
func (store *Store) InsertInventory(ctx context.Context, cells []reservation.InventoryCell) error {
	if len(cells) == 0 {
		return nil
	}
	now := store.now()
	rows := make([]Inventory, 0, len(cells))
	for _, cell := range cells {
		rows = append(rows, Inventory{
			HotelID:       int64(cell.HotelID),
			RoomID:        int64(cell.RoomID),
			Date:          dateValue(cell.Date),
			City:          cell.City,
			TotalCount:    cell.TotalCount,
			BookedCount:   cell.BookedCount,
			ReservedCount: cell.ReservedCount,
			SurgeFactor:   cell.SurgeFactor,
			Price:         cell.Price,
			Closed:        cell.Closed,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}, {Name: "date"}},
			DoNothing: true,
		}).
		CreateInBatches(&rows, insertBatchSize).Error
	if err != nil {
		return wrapStoreError(errorSubjectInventory, errorCodeInsert, err)
	}
	return nil
}

// DeleteInventoryFrom removes the room's cells dated on or after from.
func (store *Store) DeleteInventoryFrom(ctx context.Context, roomID reservation.RoomID, from time.Time) (int64, error) {
	result := store.db.WithContext(ctx).
		Where("room_id = ? AND date >= ?", int64(roomID), dateValue(from)).
		Delete(&Inventory{})
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectInventory, errorCodeDelete, result.Error)
	}
	return result.RowsAffected, nil
}

// SetInventoryClosed opens or closes a room for a date range.
func (store *Store) SetInventoryClosed(ctx context.Context, roomID reservation.RoomID, start time.Time, end time.Time, closed bool) error {
	err := store.db.WithContext(ctx).
		Model(&Inventory{}).
		Where("room_id = ? AND date >= ? AND date <= ?", int64(roomID), dateValue(start), dateValue(end)).
		Updates(map[string]any{"closed": closed, "updated_at": store.now()}).Error
	if err != nil {
		return wrapStoreError(errorSubjectInventory, errorCodeUpdate, err)
	}
	return nil
}

func dateValue(moment time.Time) datatypes.Date {
	return datatypes.Date(reservation.DateOf(moment))
}

func dateFromColumn(value datatypes.Date) time.Time {
	return reservation.DateOf(time.Time(value))
}

func mapInventoryRows(rows []Inventory) []reservation.InventoryCell {
	cells := make([]reservation.InventoryCell, 0, len(rows))
	for _, row := range rows {
		cells = append(cells, reservation.InventoryCell{
			HotelID:       reservation.HotelID(row.HotelID),
			RoomID:        reservation.RoomID(row.RoomID),
			Date:          dateFromColumn(row.Date),
			City:          row.City,
			TotalCount:    row.TotalCount,
			BookedCount:   row.BookedCount,
			ReservedCount: row.ReservedCount,
			SurgeFactor:   row.SurgeFactor,
			Price:         row.Price,
			Closed:        row.Closed,
		})
	}
	return cells
}
