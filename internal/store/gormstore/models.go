package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Hotel represents the hotels table.
type Hotel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"size:255;not null"`
	City      string    `gorm:"size:255;not null;index"`
	Active    bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Hotel) TableName() string { return "hotels" }

// Room represents the rooms table.
type Room struct {
	ID        int64           `gorm:"primaryKey;autoIncrement"`
	HotelID   int64           `gorm:"not null;index"`
	Type      string          `gorm:"size:64;not null"`
	BasePrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Capacity  int             `gorm:"not null"`
	CreatedAt time.Time       `gorm:"not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

func (Room) TableName() string { return "rooms" }

// Inventory mirrors the inventory table: one row per room per day.
type Inventory struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	HotelID       int64           `gorm:"not null;index:idx_inventory_hotel_date,priority:1"`
	RoomID        int64           `gorm:"not null;uniqueIndex:uniq_inventory_room_date,priority:1"`
	Date          datatypes.Date  `gorm:"not null;uniqueIndex:uniq_inventory_room_date,priority:2;index:idx_inventory_hotel_date,priority:2"`
	City          string          `gorm:"size:255;not null"`
	TotalCount    int             `gorm:"not null"`
	BookedCount   int             `gorm:"not null;default:0"`
	ReservedCount int             `gorm:"not null;default:0"`
	SurgeFactor   decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	Price         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Closed        bool            `gorm:"not null;default:false"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

func (Inventory) TableName() string { return "inventory" }

// Booking mirrors the bookings table. Rows are never deleted.
type Booking struct {
	ID         string          `gorm:"size:36;primaryKey"`
	HotelID    int64           `gorm:"not null;index"`
	RoomID     int64           `gorm:"not null;index"`
	UserID     string          `gorm:"size:255;not null;index"`
	RoomsCount int             `gorm:"not null"`
	CheckIn    datatypes.Date  `gorm:"not null"`
	CheckOut   datatypes.Date  `gorm:"not null"`
	Status     string          `gorm:"size:32;not null;index:idx_bookings_status_created,priority:1"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt  time.Time       `gorm:"not null;index:idx_bookings_status_created,priority:2"`
	UpdatedAt  time.Time       `gorm:"not null"`
}

func (Booking) TableName() string { return "bookings" }

// BookingGuest mirrors the booking_guests table.
type BookingGuest struct {
	ID        string    `gorm:"size:36;primaryKey"`
	BookingID string    `gorm:"size:36;not null;uniqueIndex:uniq_booking_guest_position,priority:1"`
	Position  int       `gorm:"not null;uniqueIndex:uniq_booking_guest_position,priority:2"`
	Name      string    `gorm:"size:255;not null"`
	Gender    string    `gorm:"size:16;not null"`
	Age       int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (BookingGuest) TableName() string { return "booking_guests" }

func (guest *BookingGuest) BeforeCreate(tx *gorm.DB) error {
	if guest.ID == "" {
		guest.ID = uuid.NewString()
	}
	return nil
}

// HotelMinPrice mirrors the hotel_min_prices table.
type HotelMinPrice struct {
	ID        int64           `gorm:"primaryKey;autoIncrement"`
	HotelID   int64           `gorm:"not null;uniqueIndex:uniq_hotel_min_price,priority:1"`
	Date      datatypes.Date  `gorm:"not null;uniqueIndex:uniq_hotel_min_price,priority:2"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt time.Time       `gorm:"not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

func (HotelMinPrice) TableName() string { return "hotel_min_prices" }

// Models lists every table owned by the store, in migration order.
func Models() []any {
	return []any{&Hotel{}, &Room{}, &Inventory{}, &Booking{}, &BookingGuest{}, &HotelMinPrice{}}
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
