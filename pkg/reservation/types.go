package reservation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HotelID identifies a hotel.
type HotelID int64

// RoomID identifies a room type within a hotel.
type RoomID int64

// UserID identifies the account requesting a booking.
type UserID struct {
	value string
}

// BookingID identifies a booking.
type BookingID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty user id", ErrInvalidBookingRequest)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id UserID) IsZero() bool {
	return id.value == ""
}

// NewBookingID validates and normalizes a booking id.
func NewBookingID(raw string) (BookingID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return BookingID{}, fmt.Errorf("%w: empty booking id", ErrNotFound)
	}
	return BookingID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id BookingID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id BookingID) IsZero() bool {
	return id.value == ""
}

// Hotel is the subset of hotel data the engine needs.
type Hotel struct {
	ID     HotelID
	Name   string
	City   string
	Active bool
}

// NewHotel validates a hotel definition. New hotels start inactive.
func NewHotel(name string, city string) (Hotel, error) {
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return Hotel{}, fmt.Errorf("%w: empty name", ErrInvalidHotel)
	}
	trimmedCity := strings.TrimSpace(city)
	if trimmedCity == "" {
		return Hotel{}, fmt.Errorf("%w: empty city", ErrInvalidHotel)
	}
	return Hotel{Name: trimmedName, City: trimmedCity}, nil
}

// Room is a bookable room type with a fixed number of identical units.
type Room struct {
	ID        RoomID
	HotelID   HotelID
	Type      string
	BasePrice decimal.Decimal
	Capacity  int
}

// NewRoom validates a room definition for the given hotel.
func NewRoom(hotelID HotelID, roomType string, basePrice decimal.Decimal, capacity int) (Room, error) {
	trimmedType := strings.TrimSpace(roomType)
	if trimmedType == "" {
		return Room{}, fmt.Errorf("%w: empty type", ErrInvalidRoom)
	}
	if !basePrice.IsPositive() {
		return Room{}, fmt.Errorf("%w: base price must be positive", ErrInvalidRoom)
	}
	if capacity < 0 {
		return Room{}, fmt.Errorf("%w: capacity must not be negative", ErrInvalidRoom)
	}
	return Room{HotelID: hotelID, Type: trimmedType, BasePrice: basePrice, Capacity: capacity}, nil
}

// InventoryCell tracks one room on one calendar day.
type InventoryCell struct {
	HotelID       HotelID
	RoomID        RoomID
	Date          time.Time
	City          string
	TotalCount    int
	BookedCount   int
	ReservedCount int
	// SurgeFactor is provisioned as 1. Zero means unset and prices like 1.
	SurgeFactor decimal.Decimal
	Price       decimal.Decimal
	Closed      bool
}

// Available returns the units that can still be reserved.
func (cell InventoryCell) Available() int {
	return cell.TotalCount - cell.BookedCount - cell.ReservedCount
}

// Consistent reports whether the counters respect capacity.
func (cell InventoryCell) Consistent() bool {
	return cell.BookedCount >= 0 && cell.ReservedCount >= 0 && cell.BookedCount+cell.ReservedCount <= cell.TotalCount
}

func (cell InventoryCell) describe() string {
	return fmt.Sprintf("room=%d date=%s", cell.RoomID, cell.Date.Format(time.DateOnly))
}

// Gender describes a guest.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// ParseGender validates a gender value.
func ParseGender(raw string) (Gender, error) {
	switch Gender(strings.ToLower(strings.TrimSpace(raw))) {
	case GenderMale:
		return GenderMale, nil
	case GenderFemale:
		return GenderFemale, nil
	case GenderOther, "":
		return GenderOther, nil
	}
	return "", fmt.Errorf("%w: unknown gender %q", ErrInvalidGuest, raw)
}

// Guest is a person attached to a booking.
type Guest struct {
	Name   string
	Gender Gender
	Age    int
}

// NewGuest validates a guest.
func NewGuest(name string, gender string, age int) (Guest, error) {
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return Guest{}, fmt.Errorf("%w: empty name", ErrInvalidGuest)
	}
	parsedGender, err := ParseGender(gender)
	if err != nil {
		return Guest{}, err
	}
	if age < 0 || age > 150 {
		return Guest{}, fmt.Errorf("%w: age out of range", ErrInvalidGuest)
	}
	return Guest{Name: trimmedName, Gender: parsedGender, Age: age}, nil
}

// Booking is the audit record of one reservation.
type Booking struct {
	ID         BookingID
	HotelID    HotelID
	RoomID     RoomID
	UserID     UserID
	RoomsCount int
	CheckIn    time.Time
	CheckOut   time.Time
	Status     BookingStatus
	Amount     decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Guests     []Guest
}

// BookingRequest carries the inputs of InitializeBooking.
type BookingRequest struct {
	HotelID    HotelID
	RoomID     RoomID
	CheckIn    time.Time
	CheckOut   time.Time
	RoomsCount int
	UserID     UserID
}

// NewBookingRequest validates and normalizes a booking request.
func NewBookingRequest(hotelID HotelID, roomID RoomID, checkIn time.Time, checkOut time.Time, roomsCount int, userID UserID) (BookingRequest, error) {
	request := BookingRequest{
		HotelID:    hotelID,
		RoomID:     roomID,
		CheckIn:    DateOf(checkIn),
		CheckOut:   DateOf(checkOut),
		RoomsCount: roomsCount,
		UserID:     userID,
	}
	if err := request.Validate(); err != nil {
		return BookingRequest{}, err
	}
	return request, nil
}

// Validate checks the request invariants.
func (request BookingRequest) Validate() error {
	if request.UserID.IsZero() {
		return fmt.Errorf("%w: missing user", ErrInvalidBookingRequest)
	}
	if request.RoomsCount <= 0 {
		return fmt.Errorf("%w: rooms count must be positive", ErrInvalidBookingRequest)
	}
	if !DateOf(request.CheckIn).Before(DateOf(request.CheckOut)) {
		return fmt.Errorf("%w: check-in must be before check-out", ErrInvalidBookingRequest)
	}
	return nil
}

// DateOf truncates a timestamp to its UTC calendar day.
func DateOf(moment time.Time) time.Time {
	year, month, day := moment.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysInclusive counts the calendar days in [start, end].
func DaysInclusive(start time.Time, end time.Time) int {
	span := DateOf(end).Sub(DateOf(start))
	return int(span/(24*time.Hour)) + 1
}
