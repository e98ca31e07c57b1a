package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/pricing"
	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/repricing"
	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func mustService(test *testing.T, store *Store) *reservation.Service {
	test.Helper()
	service, err := reservation.NewService(store, func() time.Time { return testNow })
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func mustActiveRoom(test *testing.T, service *reservation.Service, capacity int) (reservation.Hotel, reservation.Room) {
	test.Helper()
	ctx := context.Background()
	hotel, err := service.CreateHotel(ctx, reservation.Hotel{Name: "Harbor", City: "Lisbon"})
	if err != nil {
		test.Fatalf("create hotel: %v", err)
	}
	room, err := service.AddRoom(ctx, reservation.Room{HotelID: hotel.ID, Type: "double", BasePrice: decimal.NewFromInt(100), Capacity: capacity})
	if err != nil {
		test.Fatalf("add room: %v", err)
	}
	if err := service.ActivateHotel(ctx, hotel.ID); err != nil {
		test.Fatalf("activate: %v", err)
	}
	hotel.Active = true
	return hotel, room
}

func mustRequest(test *testing.T, hotel reservation.Hotel, room reservation.Room, checkIn time.Time, checkOut time.Time, units int) reservation.BookingRequest {
	test.Helper()
	userID, err := reservation.NewUserID("user-1")
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	request, err := reservation.NewBookingRequest(hotel.ID, room.ID, checkIn, checkOut, units, userID)
	if err != nil {
		test.Fatalf("request: %v", err)
	}
	return request
}

func TestConcurrentBookingsNeverOversell(test *testing.T) {
	test.Parallel()
	store := New()
	service := mustService(test, store)
	hotel, room := mustActiveRoom(test, service, 5)
	today := reservation.DateOf(testNow)
	request := mustRequest(test, hotel, room, today.AddDate(0, 0, 1), today.AddDate(0, 0, 3), 1)

	const attempts = 20
	var (
		waitGroup  sync.WaitGroup
		mutex      sync.Mutex
		succeeded  int
		rejected   int
		unexpected []error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			_, err := service.InitializeBooking(context.Background(), request)
			mutex.Lock()
			defer mutex.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, reservation.ErrInsufficientInventory):
				rejected++
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	waitGroup.Wait()

	if len(unexpected) != 0 {
		test.Fatalf("unexpected errors: %v", unexpected)
	}
	if succeeded != 5 || rejected != attempts-5 {
		test.Fatalf("expected 5 bookings and %d rejections, got %d and %d", attempts-5, succeeded, rejected)
	}
	cells, err := store.LockInventory(context.Background(), room.ID, today.AddDate(0, 0, 1), today.AddDate(0, 0, 3))
	if err != nil {
		test.Fatalf("lock inventory: %v", err)
	}
	for _, cell := range cells {
		if cell.ReservedCount != 5 || !cell.Consistent() {
			test.Fatalf("expected 5 reserved units, got %+v", cell)
		}
	}
}

func TestRollbackRestoresInventory(test *testing.T) {
	test.Parallel()
	store := New()
	service := mustService(test, store)
	_, room := mustActiveRoom(test, service, 2)
	today := reservation.DateOf(testNow)
	sentinel := errors.New("abort")

	err := store.WithTx(context.Background(), func(ctx context.Context, txStore reservation.Store) error {
		cells, err := txStore.LockInventory(ctx, room.ID, today, today.AddDate(0, 0, 1))
		if err != nil {
			return err
		}
		if err := reservation.Reserve(cells, 2); err != nil {
			return err
		}
		if err := txStore.UpdateInventoryCounts(ctx, cells); err != nil {
			return err
		}
		if _, err := txStore.DeleteInventoryFrom(ctx, room.ID, today.AddDate(0, 0, 10)); err != nil {
			return err
		}
		return txStore.WithTx(ctx, func(ctx context.Context, nested reservation.Store) error {
			if err := nested.SetHotelActive(ctx, room.HotelID, false); err != nil {
				return err
			}
			return sentinel
		})
	})
	if !errors.Is(err, sentinel) {
		test.Fatalf("expected sentinel, got %v", err)
	}

	cells, err := store.LockInventory(context.Background(), room.ID, today, today.AddDate(0, 0, reservation.ProvisionDays-1))
	if err != nil {
		test.Fatalf("lock inventory: %v", err)
	}
	if len(cells) != reservation.ProvisionDays {
		test.Fatalf("expected retired cells restored, got %d", len(cells))
	}
	if cells[0].ReservedCount != 0 || cells[1].ReservedCount != 0 {
		test.Fatalf("expected reservation undone, got %+v %+v", cells[0], cells[1])
	}
	hotel, err := store.FindHotel(context.Background(), room.HotelID)
	if err != nil {
		test.Fatalf("find hotel: %v", err)
	}
	if !hotel.Active {
		test.Fatalf("expected nested change undone")
	}
}

func TestLockWaitRunsOutAsInsufficientInventory(test *testing.T) {
	test.Parallel()
	store := New(WithLockWait(20 * time.Millisecond))
	service := mustService(test, store)
	hotel, room := mustActiveRoom(test, service, 3)
	today := reservation.DateOf(testNow)

	locked := make(chan struct{})
	finish := make(chan struct{})
	holderDone := make(chan error, 1)
	go func() {
		holderDone <- store.WithTx(context.Background(), func(ctx context.Context, txStore reservation.Store) error {
			if _, err := txStore.LockInventory(ctx, room.ID, today, today); err != nil {
				return err
			}
			close(locked)
			<-finish
			return nil
		})
	}()
	<-locked

	_, err := service.InitializeBooking(context.Background(), mustRequest(test, hotel, room, today, today.AddDate(0, 0, 1), 1))
	close(finish)
	if !errors.Is(err, reservation.ErrInsufficientInventory) {
		test.Fatalf("expected insufficient inventory on lock wait, got %v", err)
	}
	if err := <-holderDone; err != nil {
		test.Fatalf("holder: %v", err)
	}
	if _, err := service.InitializeBooking(context.Background(), mustRequest(test, hotel, room, today, today.AddDate(0, 0, 1), 1)); err != nil {
		test.Fatalf("expected booking after lock release, got %v", err)
	}
}

func TestStatusUpdateComparesStoredStatus(test *testing.T) {
	test.Parallel()
	store := New()
	bookingID, _ := reservation.NewBookingID("b-1")
	userID, _ := reservation.NewUserID("user-1")
	booking := reservation.Booking{ID: bookingID, UserID: userID, RoomsCount: 1, Status: reservation.BookingStatusReserved, CreatedAt: testNow}
	if err := store.CreateBooking(context.Background(), booking); err != nil {
		test.Fatalf("create: %v", err)
	}
	if err := store.CreateBooking(context.Background(), booking); err == nil {
		test.Fatalf("expected duplicate booking rejected")
	}
	err := store.UpdateBookingStatus(context.Background(), bookingID, reservation.BookingStatusGuestsAdded, reservation.BookingStatusConfirmed, testNow)
	if !errors.Is(err, reservation.ErrInvalidState) {
		test.Fatalf("expected invalid state, got %v", err)
	}
	stale, err := store.ListStaleBookings(context.Background(), testNow.Add(time.Second), reservation.BookingCursor{}, 10)
	if err != nil || len(stale) != 1 || stale[0].ID != bookingID {
		test.Fatalf("expected stale booking listed, got %v %v", stale, err)
	}
	after, err := store.ListStaleBookings(context.Background(), testNow.Add(time.Second), stale[0], 10)
	if err != nil || len(after) != 0 {
		test.Fatalf("expected nothing after the cursor, got %v %v", after, err)
	}
}

func TestRepricingRunOverMemoryStore(test *testing.T) {
	test.Parallel()
	store := New()
	service := mustService(test, store)
	hotel, room := mustActiveRoom(test, service, 2)
	today := reservation.DateOf(testNow)
	now := func() time.Time { return testNow }

	scheduler, err := repricing.NewScheduler(store, pricing.Default(now, pricing.NoHolidays{}), now)
	if err != nil {
		test.Fatalf("scheduler: %v", err)
	}
	report, err := scheduler.Run(context.Background())
	if err != nil {
		test.Fatalf("run: %v", err)
	}
	if report.HotelsProcessed != 1 || report.HotelsFailed != 0 {
		test.Fatalf("unexpected report %+v", report)
	}

	cells, err := store.LockInventory(context.Background(), room.ID, today, today.AddDate(0, 0, 8))
	if err != nil {
		test.Fatalf("lock inventory: %v", err)
	}
	urgent := decimal.RequireFromString("115.00")
	for index, cell := range cells {
		expected := decimal.NewFromInt(100)
		if index < pricing.UrgencyWindowDays {
			expected = urgent
		}
		if !cell.Price.Equal(expected) {
			test.Fatalf("day %d: expected %s, got %s", index, expected, cell.Price)
		}
	}
	prices, err := store.ListHotelMinPrices(context.Background(), hotel.ID, today, today.AddDate(0, 0, 1))
	if err != nil {
		test.Fatalf("min prices: %v", err)
	}
	if len(prices) != 2 || !prices[0].Price.Equal(urgent) {
		test.Fatalf("unexpected min prices %+v", prices)
	}
}

func TestReactivatedHotelDropsStrandedHolds(test *testing.T) {
	test.Parallel()
	store := New()
	service := mustService(test, store)
	hotel, room := mustActiveRoom(test, service, 2)
	ctx := context.Background()
	today := reservation.DateOf(testNow)
	now := func() time.Time { return testNow }

	booking, err := service.InitializeBooking(ctx, mustRequest(test, hotel, room, today.AddDate(0, 0, 1), today.AddDate(0, 0, 2), 1))
	if err != nil {
		test.Fatalf("initialize booking: %v", err)
	}
	scheduler, err := repricing.NewScheduler(store, pricing.Default(now, pricing.NoHolidays{}), now)
	if err != nil {
		test.Fatalf("scheduler: %v", err)
	}
	if _, err := scheduler.Run(ctx); err != nil {
		test.Fatalf("first run: %v", err)
	}
	if err := service.DeactivateHotel(ctx, hotel.ID); err != nil {
		test.Fatalf("deactivate: %v", err)
	}
	report, err := scheduler.Run(ctx)
	if err != nil {
		test.Fatalf("run after deactivation: %v", err)
	}
	if report.MinPricesRemoved == 0 {
		test.Fatalf("expected stale minima removed, got %+v", report)
	}
	prices, err := store.ListHotelMinPrices(ctx, hotel.ID, today, today.AddDate(0, 0, 30))
	if err != nil || len(prices) != 0 {
		test.Fatalf("expected no minima for a hotel without inventory, got %v %v", prices, err)
	}

	if err := service.ActivateHotel(ctx, hotel.ID); err != nil {
		test.Fatalf("reactivate: %v", err)
	}
	stored, err := service.GetBooking(ctx, booking.ID)
	if err != nil {
		test.Fatalf("get booking: %v", err)
	}
	if stored.Status != reservation.BookingStatusCancelled {
		test.Fatalf("expected booking cancelled by deactivation, got %s", stored.Status)
	}
	_, err = service.CancelBooking(ctx, booking.ID, booking.UserID)
	if !errors.Is(err, reservation.ErrInvalidState) {
		test.Fatalf("expected invalid state, got %v", err)
	}
	if _, err := service.InitializeBooking(ctx, mustRequest(test, hotel, room, today.AddDate(0, 0, 1), today.AddDate(0, 0, 2), 2)); err != nil {
		test.Fatalf("expected full capacity after reactivation: %v", err)
	}
}
