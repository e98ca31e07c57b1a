package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger applies the inventory reservation protocol over an InventoryStore.
// It must be bound to a transactional store so that locks taken by LockRange
// stay held until the mutations are persisted.
type Ledger struct {
	store InventoryStore
}

// NewLedger binds a Ledger to a (usually transaction-scoped) store.
func NewLedger(store InventoryStore) Ledger {
	return Ledger{store: store}
}

// LockRange locks every cell of the room in [start, end] and verifies that each
// one can take requiredUnits more reservations.
func (ledger Ledger) LockRange(ctx context.Context, roomID RoomID, start time.Time, end time.Time, requiredUnits int) ([]InventoryCell, error) {
	if requiredUnits <= 0 {
		return nil, fmt.Errorf("%w: required units must be positive", ErrInvalidBookingRequest)
	}
	startDate := DateOf(start)
	endDate := DateOf(end)
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("%w: end before start", ErrInvalidBookingRequest)
	}
	cells, err := ledger.store.LockInventory(ctx, roomID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	if len(cells) < DaysInclusive(startDate, endDate) {
		return nil, WrapError(errorOperationLedger, errorSubjectInventory, "missing_dates", ErrInsufficientInventory)
	}
	for _, cell := range cells {
		if cell.Closed {
			return nil, WrapError(errorOperationLedger, errorSubjectInventory, "closed",
				fmt.Errorf("%w: %s", ErrInsufficientInventory, cell.describe()))
		}
		if cell.Available() < requiredUnits {
			return nil, WrapError(errorOperationLedger, errorSubjectInventory, "capacity",
				fmt.Errorf("%w: %s", ErrInsufficientInventory, cell.describe()))
		}
	}
	return cells, nil
}

// ProvisionYear creates ProvisionDays consecutive cells for the room starting today.
func (ledger Ledger) ProvisionYear(ctx context.Context, hotel Hotel, room Room, today time.Time) error {
	startDate := DateOf(today)
	cells := make([]InventoryCell, 0, ProvisionDays)
	for offset := 0; offset < ProvisionDays; offset++ {
		cells = append(cells, InventoryCell{
			HotelID:     hotel.ID,
			RoomID:      room.ID,
			Date:        startDate.AddDate(0, 0, offset),
			City:        hotel.City,
			TotalCount:  room.Capacity,
			SurgeFactor: decimal.NewFromInt(1),
			Price:       room.BasePrice,
		})
	}
	return ledger.store.InsertInventory(ctx, cells)
}

// RetireFuture deletes the room's cells dated today or later.
func (ledger Ledger) RetireFuture(ctx context.Context, roomID RoomID, today time.Time) (int64, error) {
	return ledger.store.DeleteInventoryFrom(ctx, roomID, DateOf(today))
}

// Reserve adds units to the reserved count of every cell. The caller must hold
// the locks returned by LockRange.
func Reserve(cells []InventoryCell, units int) error {
	return mutateCells(cells, "reserve", func(cell *InventoryCell) {
		cell.ReservedCount += units
	})
}

// Release removes units from the reserved count of every cell.
func Release(cells []InventoryCell, units int) error {
	return mutateCells(cells, "release", func(cell *InventoryCell) {
		cell.ReservedCount -= units
	})
}

// Commit converts reserved units into booked units on every cell.
func Commit(cells []InventoryCell, units int) error {
	return mutateCells(cells, "commit", func(cell *InventoryCell) {
		cell.ReservedCount -= units
		cell.BookedCount += units
	})
}

// mutateCells applies change to every cell only if all results stay consistent.
func mutateCells(cells []InventoryCell, code string, change func(cell *InventoryCell)) error {
	for _, cell := range cells {
		candidate := cell
		change(&candidate)
		if !candidate.Consistent() {
			return WrapError(errorOperationLedger, errorSubjectInventory, code,
				fmt.Errorf("%w: %s booked=%d reserved=%d total=%d", ErrConsistencyViolation,
					candidate.describe(), candidate.BookedCount, candidate.ReservedCount, candidate.TotalCount))
		}
	}
	for index := range cells {
		change(&cells[index])
	}
	return nil
}

func bookingAmount(cells []InventoryCell, roomsCount int) decimal.Decimal {
	total := decimal.Zero
	for _, cell := range cells {
		total = total.Add(cell.Price)
	}
	return total.Mul(decimal.NewFromInt(int64(roomsCount)))
}
