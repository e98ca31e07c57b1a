package reservation

import "time"

const (
	operationInitializeBooking = "initialize_booking"
	operationAddGuests         = "add_guests"
	operationConfirmBooking    = "confirm_booking"
	operationCancelBooking     = "cancel_booking"
	operationExpireBooking     = "expire_booking"
	operationPublishEvent      = "publish_event"
	operationCreateHotel       = "create_hotel"
	operationActivateHotel     = "activate_hotel"
	operationDeactivateHotel   = "deactivate_hotel"
	operationAddRoom           = "add_room"
	operationRemoveRoom        = "remove_room"
	operationCloseInventory    = "close_inventory"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	errorOperationLedger  = "ledger"
	errorOperationService = "service"
	errorSubjectInventory = "inventory"
	errorSubjectBooking   = "booking"
	errorSubjectHotel     = "hotel"
	errorSubjectRoom      = "room"

	// DefaultHoldWindow bounds how long a pending booking keeps its inventory.
	DefaultHoldWindow = 10 * time.Minute
	// ProvisionDays is the number of daily cells created for an activated room.
	ProvisionDays = 365

	defaultSweepBatchSize = 100
)
