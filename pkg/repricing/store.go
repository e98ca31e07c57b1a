package repricing

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/pricing"
	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
	"github.com/shopspring/decimal"
)

// HotelMinPrice is the cheapest nightly rate of a hotel on one day.
type HotelMinPrice struct {
	HotelID reservation.HotelID
	Date    time.Time
	Price   decimal.Decimal
}

// Store pages hotels and opens one transaction per hotel.
type Store interface {
	// ListHotels returns up to limit hotels with id greater than afterID, ordered by id.
	ListHotels(ctx context.Context, afterID reservation.HotelID, limit int) ([]reservation.Hotel, error)
	WithHotelTx(ctx context.Context, fn func(ctx context.Context, hotelTx HotelTx) error) error
}

// HotelTx is the transaction-scoped view used to reprice a single hotel.
type HotelTx interface {
	RoomsOfHotel(ctx context.Context, hotelID reservation.HotelID) ([]reservation.Room, error)
	// LockHotelInventory returns the hotel's cells in [from, to] ordered by (room, date), locked.
	LockHotelInventory(ctx context.Context, hotelID reservation.HotelID, from time.Time, to time.Time) ([]reservation.InventoryCell, error)
	UpdateInventoryPrices(ctx context.Context, cells []reservation.InventoryCell) error
	// UpsertHotelMinPrices inserts or overwrites one row per (hotel, date).
	UpsertHotelMinPrices(ctx context.Context, prices []HotelMinPrice) error
	// DeleteHotelMinPricesExcept removes the hotel's stored minima dated in
	// [from, to] whose date is not in keep.
	DeleteHotelMinPricesExcept(ctx context.Context, hotelID reservation.HotelID, from time.Time, to time.Time, keep []time.Time) (int64, error)
}

// Pricer computes the price of one cell.
type Pricer interface {
	Price(subject pricing.Subject) decimal.Decimal
}

// RunLock guards a run across processes. When acquired is false another holder
// owns the lock and release is nil.
type RunLock interface {
	Acquire(ctx context.Context, ttl time.Duration) (release func(ctx context.Context) error, acquired bool, err error)
}
