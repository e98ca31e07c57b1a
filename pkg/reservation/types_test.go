package reservation

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewUserID(test *testing.T) {
	test.Parallel()
	userID, err := NewUserID("  user-1 ")
	if err != nil || userID.String() != "user-1" {
		test.Fatalf("unexpected user id %q %v", userID, err)
	}
	if _, err := NewUserID("   "); !errors.Is(err, ErrInvalidBookingRequest) {
		test.Fatalf("expected invalid request, got %v", err)
	}
	if _, err := NewBookingID(""); !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected not found for empty booking id, got %v", err)
	}
}

func TestNewBookingRequestNormalizesDates(test *testing.T) {
	test.Parallel()
	lisbon := time.FixedZone("WEST", 3600)
	checkIn := time.Date(2025, time.March, 10, 0, 30, 0, 0, lisbon)
	checkOut := time.Date(2025, time.March, 12, 18, 0, 0, 0, time.UTC)
	request, err := NewBookingRequest(1, 2, checkIn, checkOut, 1, mustUserID(test, "user"))
	if err != nil {
		test.Fatalf("request: %v", err)
	}
	if !request.CheckIn.Equal(time.Date(2025, time.March, 9, 0, 0, 0, 0, time.UTC)) {
		test.Fatalf("unexpected check-in %s", request.CheckIn)
	}
	if DaysInclusive(request.CheckIn, request.CheckOut) != 4 {
		test.Fatalf("expected 4 inclusive days, got %d", DaysInclusive(request.CheckIn, request.CheckOut))
	}
}

func TestBookingRequestValidation(test *testing.T) {
	test.Parallel()
	user := mustUserID(test, "user")
	testCases := []struct {
		name       string
		checkIn    time.Time
		checkOut   time.Time
		roomsCount int
		userID     UserID
	}{
		{name: "zero rooms", checkIn: testToday, checkOut: testToday.AddDate(0, 0, 1), roomsCount: 0, userID: user},
		{name: "reversed dates", checkIn: testToday.AddDate(0, 0, 2), checkOut: testToday, roomsCount: 1, userID: user},
		{name: "same day", checkIn: testToday, checkOut: testToday.Add(5 * time.Hour), roomsCount: 1, userID: user},
		{name: "missing user", checkIn: testToday, checkOut: testToday.AddDate(0, 0, 1), roomsCount: 1},
	}
	for _, testCase := range testCases {
		if _, err := NewBookingRequest(1, 1, testCase.checkIn, testCase.checkOut, testCase.roomsCount, testCase.userID); !errors.Is(err, ErrInvalidBookingRequest) {
			test.Fatalf("%s: expected invalid request, got %v", testCase.name, err)
		}
	}
}

func TestNewRoomAndGuestValidation(test *testing.T) {
	test.Parallel()
	if _, err := NewRoom(1, "double", decimal.NewFromInt(-5), 2); !errors.Is(err, ErrInvalidRoom) {
		test.Fatalf("expected invalid room for negative price, got %v", err)
	}
	if _, err := NewRoom(1, "double", decimal.NewFromInt(5), -1); !errors.Is(err, ErrInvalidRoom) {
		test.Fatalf("expected invalid room for negative capacity, got %v", err)
	}
	if _, err := NewRoom(1, "double", decimal.NewFromInt(5), 0); err != nil {
		test.Fatalf("expected zero capacity allowed, got %v", err)
	}
	guest, err := NewGuest("Ana", "FEMALE", 31)
	if err != nil || guest.Gender != GenderFemale {
		test.Fatalf("unexpected guest %+v %v", guest, err)
	}
	if _, err := NewGuest("Ana", "robot", 31); !errors.Is(err, ErrInvalidGuest) {
		test.Fatalf("expected invalid gender, got %v", err)
	}
}

func TestInventoryCellAvailability(test *testing.T) {
	test.Parallel()
	cell := InventoryCell{TotalCount: 5, BookedCount: 2, ReservedCount: 1}
	if cell.Available() != 2 || !cell.Consistent() {
		test.Fatalf("unexpected availability for %+v", cell)
	}
	cell.ReservedCount = 4
	if cell.Consistent() {
		test.Fatalf("expected overbooked cell inconsistent")
	}
}
