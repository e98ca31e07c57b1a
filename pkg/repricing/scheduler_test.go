package repricing

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/pricing"
	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var schedulerToday = time.Date(2025, time.June, 1, 3, 0, 0, 0, time.UTC)

type minPriceKey struct {
	hotelID reservation.HotelID
	date    time.Time
}

type stubStore struct {
	hotels     []reservation.Hotel
	rooms      map[reservation.HotelID][]reservation.Room
	cells      map[reservation.HotelID][]reservation.InventoryCell
	minPrices  map[minPriceKey]decimal.Decimal
	listAfter  []reservation.HotelID
	listErr    error
	upsertErr  map[reservation.HotelID]error
	lockedFrom time.Time
	lockedTo   time.Time
}

func newStubStore() *stubStore {
	return &stubStore{
		rooms:     make(map[reservation.HotelID][]reservation.Room),
		cells:     make(map[reservation.HotelID][]reservation.InventoryCell),
		minPrices: make(map[minPriceKey]decimal.Decimal),
		upsertErr: make(map[reservation.HotelID]error),
	}
}

func (store *stubStore) ListHotels(_ context.Context, afterID reservation.HotelID, limit int) ([]reservation.Hotel, error) {
	store.listAfter = append(store.listAfter, afterID)
	if store.listErr != nil {
		return nil, store.listErr
	}
	var page []reservation.Hotel
	for _, hotel := range store.hotels {
		if hotel.ID > afterID && len(page) < limit {
			page = append(page, hotel)
		}
	}
	return page, nil
}

func (store *stubStore) WithHotelTx(ctx context.Context, fn func(ctx context.Context, hotelTx HotelTx) error) error {
	hotelTx := &stubHotelTx{store: store, prices: make(map[minPriceKey]decimal.Decimal)}
	if err := fn(ctx, hotelTx); err != nil {
		return err
	}
	for hotelID, cells := range hotelTx.updatedCells {
		store.cells[hotelID] = cells
	}
	for _, key := range hotelTx.removed {
		delete(store.minPrices, key)
	}
	for key, price := range hotelTx.prices {
		store.minPrices[key] = price
	}
	return nil
}

type stubHotelTx struct {
	store        *stubStore
	updatedCells map[reservation.HotelID][]reservation.InventoryCell
	prices       map[minPriceKey]decimal.Decimal
	removed      []minPriceKey
}

func (hotelTx *stubHotelTx) RoomsOfHotel(_ context.Context, hotelID reservation.HotelID) ([]reservation.Room, error) {
	return hotelTx.store.rooms[hotelID], nil
}

func (hotelTx *stubHotelTx) LockHotelInventory(_ context.Context, hotelID reservation.HotelID, from time.Time, to time.Time) ([]reservation.InventoryCell, error) {
	hotelTx.store.lockedFrom = from
	hotelTx.store.lockedTo = to
	var cells []reservation.InventoryCell
	for _, cell := range hotelTx.store.cells[hotelID] {
		if !cell.Date.Before(from) && !cell.Date.After(to) {
			cells = append(cells, cell)
		}
	}
	sort.Slice(cells, func(left, right int) bool {
		if cells[left].RoomID != cells[right].RoomID {
			return cells[left].RoomID < cells[right].RoomID
		}
		return cells[left].Date.Before(cells[right].Date)
	})
	return cells, nil
}

func (hotelTx *stubHotelTx) UpdateInventoryPrices(_ context.Context, changed []reservation.InventoryCell) error {
	if hotelTx.updatedCells == nil {
		hotelTx.updatedCells = make(map[reservation.HotelID][]reservation.InventoryCell)
	}
	for _, update := range changed {
		current, ok := hotelTx.updatedCells[update.HotelID]
		if !ok {
			current = append([]reservation.InventoryCell(nil), hotelTx.store.cells[update.HotelID]...)
		}
		for index := range current {
			if current[index].RoomID == update.RoomID && current[index].Date.Equal(update.Date) {
				current[index].Price = update.Price
			}
		}
		hotelTx.updatedCells[update.HotelID] = current
	}
	return nil
}

func (hotelTx *stubHotelTx) UpsertHotelMinPrices(_ context.Context, prices []HotelMinPrice) error {
	for _, price := range prices {
		if err := hotelTx.store.upsertErr[price.HotelID]; err != nil {
			return err
		}
		hotelTx.prices[minPriceKey{hotelID: price.HotelID, date: price.Date}] = price.Price
	}
	return nil
}

func (hotelTx *stubHotelTx) DeleteHotelMinPricesExcept(_ context.Context, hotelID reservation.HotelID, from time.Time, to time.Time, keep []time.Time) (int64, error) {
	kept := make(map[time.Time]bool, len(keep))
	for _, day := range keep {
		kept[day] = true
	}
	var removed int64
	for key := range hotelTx.store.minPrices {
		if key.hotelID != hotelID || key.date.Before(from) || key.date.After(to) || kept[key.date] {
			continue
		}
		hotelTx.removed = append(hotelTx.removed, key)
		removed++
	}
	return removed, nil
}

func (store *stubStore) addHotel(hotelID reservation.HotelID, rooms ...reservation.Room) {
	store.hotels = append(store.hotels, reservation.Hotel{ID: hotelID, Name: "hotel", City: "Porto", Active: true})
	store.rooms[hotelID] = rooms
}

func (store *stubStore) addCell(hotelID reservation.HotelID, roomID reservation.RoomID, offset int, surge string) {
	store.cells[hotelID] = append(store.cells[hotelID], reservation.InventoryCell{
		HotelID:     hotelID,
		RoomID:      roomID,
		Date:        reservation.DateOf(schedulerToday).AddDate(0, 0, offset),
		TotalCount:  5,
		SurgeFactor: decimal.RequireFromString(surge),
		Price:       decimal.NewFromInt(1),
	})
}

func (store *stubStore) minPrice(test *testing.T, hotelID reservation.HotelID, offset int) decimal.Decimal {
	test.Helper()
	price, ok := store.minPrices[minPriceKey{hotelID: hotelID, date: reservation.DateOf(schedulerToday).AddDate(0, 0, offset)}]
	if !ok {
		test.Fatalf("missing min price hotel=%d offset=%d", hotelID, offset)
	}
	return price
}

func room(roomID reservation.RoomID, hotelID reservation.HotelID, basePrice int64) reservation.Room {
	return reservation.Room{ID: roomID, HotelID: hotelID, Type: "double", BasePrice: decimal.NewFromInt(basePrice), Capacity: 5}
}

func schedulerNow() time.Time {
	return schedulerToday
}

func mustScheduler(test *testing.T, store Store, options ...Option) *Scheduler {
	test.Helper()
	scheduler, err := NewScheduler(store, pricing.Default(schedulerNow, pricing.NoHolidays{}), schedulerNow, options...)
	if err != nil {
		test.Fatalf("new scheduler: %v", err)
	}
	return scheduler
}

func TestRunOverwritesHotelMinimumPrices(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.addHotel(1, room(10, 1, 120), room(11, 1, 95))
	store.addCell(1, 10, 30, "1")
	store.addCell(1, 11, 30, "2")
	store.addCell(1, 10, 31, "1")
	store.addCell(1, 11, 31, "1")
	store.minPrices[minPriceKey{hotelID: 1, date: reservation.DateOf(schedulerToday).AddDate(0, 0, 30)}] = decimal.NewFromInt(300)
	store.minPrices[minPriceKey{hotelID: 1, date: reservation.DateOf(schedulerToday).AddDate(0, 0, 31)}] = decimal.NewFromInt(10)

	report, err := mustScheduler(test, store).Run(context.Background())
	if err != nil {
		test.Fatalf("run: %v", err)
	}
	if got := store.minPrice(test, 1, 30); !got.Equal(decimal.NewFromInt(120)) {
		test.Fatalf("expected min 120 on first day, got %s", got)
	}
	if got := store.minPrice(test, 1, 31); !got.Equal(decimal.NewFromInt(95)) {
		test.Fatalf("expected min 95 on second day, got %s", got)
	}
	if report.HotelsProcessed != 1 || report.CellsRepriced != 4 || report.MinPricesUpserted != 2 {
		test.Fatalf("unexpected report %+v", report)
	}
	if !store.lockedFrom.Equal(reservation.DateOf(schedulerToday)) || !store.lockedTo.Equal(reservation.DateOf(schedulerToday).AddDate(1, 0, 0)) {
		test.Fatalf("unexpected horizon %s..%s", store.lockedFrom, store.lockedTo)
	}
}

func TestRunRemovesMinimumPricesOfRetiredDays(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.addHotel(1, room(10, 1, 120))
	store.addHotel(2)
	store.addCell(1, 10, 30, "1")
	today := reservation.DateOf(schedulerToday)
	for _, offset := range []int{-1, 30, 31, 40} {
		store.minPrices[minPriceKey{hotelID: 1, date: today.AddDate(0, 0, offset)}] = decimal.NewFromInt(50)
	}
	store.minPrices[minPriceKey{hotelID: 2, date: today.AddDate(0, 0, 5)}] = decimal.NewFromInt(70)

	report, err := mustScheduler(test, store).Run(context.Background())
	if err != nil {
		test.Fatalf("run: %v", err)
	}
	if report.MinPricesRemoved != 3 || report.MinPricesUpserted != 1 {
		test.Fatalf("unexpected report %+v", report)
	}
	if got := store.minPrice(test, 1, 30); !got.Equal(decimal.NewFromInt(120)) {
		test.Fatalf("expected recomputed minimum, got %s", got)
	}
	store.minPrice(test, 1, -1)
	for _, key := range []minPriceKey{
		{hotelID: 1, date: today.AddDate(0, 0, 31)},
		{hotelID: 1, date: today.AddDate(0, 0, 40)},
		{hotelID: 2, date: today.AddDate(0, 0, 5)},
	} {
		if _, ok := store.minPrices[key]; ok {
			test.Fatalf("expected minimum for hotel %d on %s removed", key.hotelID, key.date.Format(time.DateOnly))
		}
	}
}

func TestRunAppliesChainToCells(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.addHotel(1, room(10, 1, 100))
	store.addCell(1, 10, 3, "1.2")

	if _, err := mustScheduler(test, store).Run(context.Background()); err != nil {
		test.Fatalf("run: %v", err)
	}
	if price := store.cells[1][0].Price; !price.Equal(decimal.RequireFromString("138.00")) {
		test.Fatalf("expected 138.00, got %s", price)
	}
}

func TestRunIsIdempotent(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.addHotel(1, room(10, 1, 100), room(11, 1, 80))
	for offset := 0; offset < 10; offset++ {
		store.addCell(1, 10, offset, "1.1")
		store.addCell(1, 11, offset, "1")
	}
	scheduler := mustScheduler(test, store)
	if _, err := scheduler.Run(context.Background()); err != nil {
		test.Fatalf("first run: %v", err)
	}
	firstCells := append([]reservation.InventoryCell(nil), store.cells[1]...)
	firstMinimums := make(map[minPriceKey]decimal.Decimal, len(store.minPrices))
	for key, value := range store.minPrices {
		firstMinimums[key] = value
	}

	report, err := scheduler.Run(context.Background())
	if err != nil {
		test.Fatalf("second run: %v", err)
	}
	if report.CellsRepriced != 0 {
		test.Fatalf("expected no price changes on rerun, got %d", report.CellsRepriced)
	}
	for index, cell := range store.cells[1] {
		if !cell.Price.Equal(firstCells[index].Price) {
			test.Fatalf("cell %d changed from %s to %s", index, firstCells[index].Price, cell.Price)
		}
	}
	for key, value := range store.minPrices {
		if !value.Equal(firstMinimums[key]) {
			test.Fatalf("min price %v changed from %s to %s", key, firstMinimums[key], value)
		}
	}
}

func TestRunIsolatesHotelFailures(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.addHotel(1, room(10, 1, 100))
	store.addCell(1, 10, 40, "1")
	store.addHotel(2, room(20, 2, 100))
	store.addCell(2, 99, 40, "1")
	store.addHotel(3, room(30, 3, 70))
	store.addCell(3, 30, 40, "1")
	store.addHotel(4, room(40, 4, 100))
	store.addCell(4, 40, 40, "1")
	store.upsertErr[4] = errors.New("deadlock detected")

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	core, logs := observer.New(zapcore.WarnLevel)
	scheduler := mustScheduler(test, store, WithBatchSize(2), WithMetrics(metrics), WithLogger(zap.New(core)))

	report, err := scheduler.Run(context.Background())
	if err != nil {
		test.Fatalf("run: %v", err)
	}
	if report.HotelsProcessed != 2 || report.HotelsFailed != 2 {
		test.Fatalf("unexpected report %+v", report)
	}
	if !errors.Is(report.Failures[0].Err, ErrUnknownRoom) || report.Failures[0].HotelID != 2 || report.Failures[1].HotelID != 4 {
		test.Fatalf("unexpected failures %+v", report.Failures)
	}
	if got := store.minPrice(test, 3, 40); !got.Equal(decimal.NewFromInt(70)) {
		test.Fatalf("expected hotel after failure repriced, got %s", got)
	}
	if price := store.cells[4][0].Price; !price.Equal(decimal.NewFromInt(1)) {
		test.Fatalf("expected failed hotel rolled back, got %s", price)
	}
	if len(store.listAfter) != 3 || store.listAfter[1] != 2 || store.listAfter[2] != 4 {
		test.Fatalf("expected keyset paging, got %v", store.listAfter)
	}
	if value := testutil.ToFloat64(metrics.HotelsFailed); value != 2 {
		test.Fatalf("expected 2 failures counted, got %v", value)
	}
	if value := testutil.ToFloat64(metrics.HotelsProcessed); value != 2 {
		test.Fatalf("expected 2 hotels counted, got %v", value)
	}
	if count := logs.FilterMessage("repricing hotel failed").Len(); count != 2 {
		test.Fatalf("expected 2 failure logs, got %d", count)
	}
}

func TestRunAbortsOnListingFailure(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.listErr = errors.New("connection reset")
	_, err := mustScheduler(test, store).Run(context.Background())
	if err == nil || !errors.Is(err, store.listErr) {
		test.Fatalf("expected listing error, got %v", err)
	}
}

func TestRunStopsOnCancelledContext(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.addHotel(1, room(10, 1, 100))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := mustScheduler(test, store).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		test.Fatalf("expected cancellation, got %v", err)
	}
	if report.HotelsProcessed != 0 || len(store.listAfter) != 0 {
		test.Fatalf("expected no work after cancellation, got %+v", report)
	}
}

type stubLock struct {
	acquired bool
	released int
	ttl      time.Duration
}

func (lock *stubLock) Acquire(_ context.Context, ttl time.Duration) (func(ctx context.Context) error, bool, error) {
	lock.ttl = ttl
	if !lock.acquired {
		return nil, false, nil
	}
	return func(context.Context) error {
		lock.released++
		return nil
	}, true, nil
}

func TestRunSkipsWhenLeaseHeldElsewhere(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	store.addHotel(1, room(10, 1, 100))
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	lock := &stubLock{}
	report, err := mustScheduler(test, store, WithRunLock(lock, time.Minute), WithMetrics(metrics)).Run(context.Background())
	if err != nil {
		test.Fatalf("run: %v", err)
	}
	if !report.Skipped || len(store.listAfter) != 0 {
		test.Fatalf("expected skipped run, got %+v", report)
	}
	if value := testutil.ToFloat64(metrics.RunsSkipped); value != 1 {
		test.Fatalf("expected skipped run counted, got %v", value)
	}
	if lock.ttl != time.Minute {
		test.Fatalf("expected configured ttl, got %s", lock.ttl)
	}
}

func TestRunReleasesAcquiredLease(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	lock := &stubLock{acquired: true}
	if _, err := mustScheduler(test, store, WithRunLock(lock, 0)).Run(context.Background()); err != nil {
		test.Fatalf("run: %v", err)
	}
	if lock.released != 1 || lock.ttl != DefaultLeaseTTL {
		test.Fatalf("expected one release with default ttl, got %d %s", lock.released, lock.ttl)
	}
}

func TestNewSchedulerValidatesDependencies(test *testing.T) {
	test.Parallel()
	chain := pricing.Default(schedulerNow, pricing.NoHolidays{})
	if _, err := NewScheduler(nil, chain, schedulerNow); !errors.Is(err, ErrInvalidSchedulerConfig) {
		test.Fatalf("expected invalid config, got %v", err)
	}
	if _, err := NewScheduler(newStubStore(), nil, schedulerNow); !errors.Is(err, ErrInvalidSchedulerConfig) {
		test.Fatalf("expected invalid config, got %v", err)
	}
	if _, err := NewScheduler(newStubStore(), chain, schedulerNow, WithBatchSize(0)); !errors.Is(err, ErrInvalidSchedulerConfig) {
		test.Fatalf("expected invalid config, got %v", err)
	}
}
