// Package repricing recomputes inventory prices and per-hotel daily minimum
// prices in bounded batches, one transaction per hotel.
package repricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/pricing"
	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// DefaultBatchSize is the number of hotels loaded per page.
	DefaultBatchSize = 100
	// DefaultLeaseTTL bounds how long a run may hold the run lock.
	DefaultLeaseTTL = 30 * time.Minute
)

var (
	// ErrInvalidSchedulerConfig reports a missing or invalid dependency.
	ErrInvalidSchedulerConfig = errors.New("invalid scheduler config")
	// ErrUnknownRoom reports a cell whose room is not attached to the hotel.
	ErrUnknownRoom = errors.New("inventory cell references unknown room")
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(scheduler *Scheduler) {
		if logger != nil {
			scheduler.logger = logger
		}
	}
}

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(batchSize int) Option {
	return func(scheduler *Scheduler) {
		scheduler.batchSize = batchSize
	}
}

// WithMetrics wires prometheus collectors.
func WithMetrics(metrics *Metrics) Option {
	return func(scheduler *Scheduler) {
		scheduler.metrics = metrics
	}
}

// WithRunLock makes Run skip when another process holds the lock.
func WithRunLock(lock RunLock, ttl time.Duration) Option {
	return func(scheduler *Scheduler) {
		scheduler.lock = lock
		if ttl > 0 {
			scheduler.leaseTTL = ttl
		}
	}
}

// HotelFailure records a hotel that could not be repriced.
type HotelFailure struct {
	HotelID reservation.HotelID
	Err     error
}

// Report summarizes a run.
type Report struct {
	Skipped           bool
	HotelsProcessed   int
	HotelsFailed      int
	CellsRepriced     int
	MinPricesUpserted int
	MinPricesRemoved  int
	Failures          []HotelFailure
}

// Scheduler reprices every hotel's next year of inventory.
type Scheduler struct {
	store     Store
	pricer    Pricer
	nowFn     func() time.Time
	logger    *zap.Logger
	batchSize int
	metrics   *Metrics
	lock      RunLock
	leaseTTL  time.Duration
}

// NewScheduler wires a Scheduler.
func NewScheduler(store Store, pricer Pricer, now func() time.Time, options ...Option) (*Scheduler, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidSchedulerConfig)
	}
	if pricer == nil {
		return nil, fmt.Errorf("%w: pricer dependency is nil", ErrInvalidSchedulerConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidSchedulerConfig)
	}
	scheduler := &Scheduler{
		store:     store,
		pricer:    pricer,
		nowFn:     now,
		logger:    zap.NewNop(),
		batchSize: DefaultBatchSize,
		leaseTTL:  DefaultLeaseTTL,
	}
	for _, option := range options {
		if option != nil {
			option(scheduler)
		}
	}
	if scheduler.batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive", ErrInvalidSchedulerConfig)
	}
	return scheduler, nil
}

// Run reprices all hotels page by page. A failing hotel is logged and skipped;
// listing failures and context cancellation end the run early.
func (scheduler *Scheduler) Run(ctx context.Context) (Report, error) {
	startedAt := time.Now()
	report := Report{}
	if scheduler.lock != nil {
		release, acquired, err := scheduler.lock.Acquire(ctx, scheduler.leaseTTL)
		if err != nil {
			return report, fmt.Errorf("repricing: acquire run lock: %w", err)
		}
		if !acquired {
			scheduler.logger.Info("repricing run skipped, lease held elsewhere")
			if scheduler.metrics != nil {
				scheduler.metrics.RunsSkipped.Inc()
			}
			report.Skipped = true
			return report, nil
		}
		defer func() {
			if releaseErr := release(context.WithoutCancel(ctx)); releaseErr != nil {
				scheduler.logger.Warn("repricing lease release failed", zap.Error(releaseErr))
			}
		}()
	}

	today := reservation.DateOf(scheduler.nowFn())
	horizonEnd := today.AddDate(1, 0, 0)
	var afterID reservation.HotelID
	runErr := func() error {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			hotels, err := scheduler.store.ListHotels(ctx, afterID, scheduler.batchSize)
			if err != nil {
				return fmt.Errorf("repricing: list hotels after %d: %w", afterID, err)
			}
			if len(hotels) == 0 {
				return nil
			}
			for _, hotel := range hotels {
				if err := ctx.Err(); err != nil {
					return err
				}
				scheduler.runHotel(ctx, hotel, today, horizonEnd, &report)
			}
			afterID = hotels[len(hotels)-1].ID
			if len(hotels) < scheduler.batchSize {
				return nil
			}
		}
	}()

	elapsed := time.Since(startedAt)
	if scheduler.metrics != nil {
		scheduler.metrics.RunDuration.Observe(elapsed.Seconds())
	}
	fields := []zap.Field{
		zap.Int("hotels_processed", report.HotelsProcessed),
		zap.Int("hotels_failed", report.HotelsFailed),
		zap.Int("cells_repriced", report.CellsRepriced),
		zap.Int("min_prices_upserted", report.MinPricesUpserted),
		zap.Int("min_prices_removed", report.MinPricesRemoved),
		zap.Duration("elapsed", elapsed),
	}
	if runErr != nil {
		scheduler.logger.Error("repricing run aborted", append(fields, zap.Error(runErr))...)
		return report, runErr
	}
	scheduler.logger.Info("repricing run finished", fields...)
	return report, nil
}

func (scheduler *Scheduler) runHotel(ctx context.Context, hotel reservation.Hotel, from time.Time, to time.Time, report *Report) {
	outcome, err := scheduler.repriceHotel(ctx, hotel, from, to)
	if err != nil {
		report.HotelsFailed++
		report.Failures = append(report.Failures, HotelFailure{HotelID: hotel.ID, Err: err})
		scheduler.logger.Warn("repricing hotel failed", zap.Int64("hotel_id", int64(hotel.ID)), zap.Error(err))
		if scheduler.metrics != nil {
			scheduler.metrics.HotelsFailed.Inc()
		}
		return
	}
	report.HotelsProcessed++
	report.CellsRepriced += outcome.cellsRepriced
	report.MinPricesUpserted += outcome.minPricesUpserted
	report.MinPricesRemoved += outcome.minPricesRemoved
	if scheduler.metrics != nil {
		scheduler.metrics.HotelsProcessed.Inc()
		scheduler.metrics.CellsRepriced.Add(float64(outcome.cellsRepriced))
		scheduler.metrics.MinPricesUpserted.Add(float64(outcome.minPricesUpserted))
	}
}

type hotelOutcome struct {
	cellsRepriced     int
	minPricesUpserted int
	minPricesRemoved  int
}

// repriceHotel prices every locked cell of the hotel, persists changed prices
// and replaces the hotel's daily minimum prices in [from, to], all in one
// transaction. Days left without cells lose their stored minimum.
func (scheduler *Scheduler) repriceHotel(ctx context.Context, hotel reservation.Hotel, from time.Time, to time.Time) (hotelOutcome, error) {
	var outcome hotelOutcome
	err := scheduler.store.WithHotelTx(ctx, func(ctx context.Context, hotelTx HotelTx) error {
		rooms, err := hotelTx.RoomsOfHotel(ctx, hotel.ID)
		if err != nil {
			return err
		}
		roomsByID := make(map[reservation.RoomID]reservation.Room, len(rooms))
		for _, room := range rooms {
			roomsByID[room.ID] = room
		}
		cells, err := hotelTx.LockHotelInventory(ctx, hotel.ID, from, to)
		if err != nil {
			return err
		}
		changed := make([]reservation.InventoryCell, 0, len(cells))
		minimums := make(map[time.Time]decimal.Decimal)
		for _, cell := range cells {
			room, ok := roomsByID[cell.RoomID]
			if !ok {
				return fmt.Errorf("%w: hotel %d room %d", ErrUnknownRoom, hotel.ID, cell.RoomID)
			}
			price := scheduler.pricer.Price(pricing.Subject{
				Date:        cell.Date,
				Today:       from,
				BasePrice:   room.BasePrice,
				SurgeFactor: cell.SurgeFactor,
			})
			if !price.Equal(cell.Price) {
				cell.Price = price
				changed = append(changed, cell)
			}
			day := reservation.DateOf(cell.Date)
			if current, seen := minimums[day]; !seen || price.LessThan(current) {
				minimums[day] = price
			}
		}
		if len(changed) > 0 {
			if err := hotelTx.UpdateInventoryPrices(ctx, changed); err != nil {
				return err
			}
		}
		minPrices := make([]HotelMinPrice, 0, len(minimums))
		for day, price := range minimums {
			minPrices = append(minPrices, HotelMinPrice{HotelID: hotel.ID, Date: day, Price: price})
		}
		sort.Slice(minPrices, func(left, right int) bool { return minPrices[left].Date.Before(minPrices[right].Date) })
		keep := make([]time.Time, 0, len(minPrices))
		for _, minPrice := range minPrices {
			keep = append(keep, minPrice.Date)
		}
		removed, err := hotelTx.DeleteHotelMinPricesExcept(ctx, hotel.ID, from, to, keep)
		if err != nil {
			return err
		}
		if len(minPrices) > 0 {
			if err := hotelTx.UpsertHotelMinPrices(ctx, minPrices); err != nil {
				return err
			}
		}
		outcome = hotelOutcome{cellsRepriced: len(changed), minPricesUpserted: len(minPrices), minPricesRemoved: int(removed)}
		return nil
	})
	if err != nil {
		return hotelOutcome{}, err
	}
	return outcome, nil
}
