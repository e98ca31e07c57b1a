package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/repricing"
	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type httpHandler struct {
	logger         *zap.Logger
	bookings       BookingService
	minPrices      MinPriceReader
	repricer       Repricer
	nowFn          func() time.Time
	requestTimeout time.Duration
}

type initializeBookingRequest struct {
	HotelID    int64  `json:"hotel_id"`
	RoomID     int64  `json:"room_id"`
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out"`
	RoomsCount int    `json:"rooms_count"`
}

type guestPayload struct {
	Name   string `json:"name"`
	Gender string `json:"gender"`
	Age    int    `json:"age"`
}

type addGuestsRequest struct {
	Guests []guestPayload `json:"guests"`
}

type bookingPayload struct {
	ID         string         `json:"id"`
	HotelID    int64          `json:"hotel_id"`
	RoomID     int64          `json:"room_id"`
	UserID     string         `json:"user_id"`
	RoomsCount int            `json:"rooms_count"`
	CheckIn    string         `json:"check_in"`
	CheckOut   string         `json:"check_out"`
	Status     string         `json:"status"`
	Amount     string         `json:"amount"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  string         `json:"updated_at"`
	Guests     []guestPayload `json:"guests"`
}

type createHotelRequest struct {
	Name string `json:"name"`
	City string `json:"city"`
}

type hotelPayload struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	City   string `json:"city"`
	Active bool   `json:"active"`
}

type addRoomRequest struct {
	Type      string          `json:"type"`
	BasePrice decimal.Decimal `json:"base_price"`
	Capacity  int             `json:"capacity"`
}

type roomPayload struct {
	ID        int64  `json:"id"`
	HotelID   int64  `json:"hotel_id"`
	Type      string `json:"type"`
	BasePrice string `json:"base_price"`
	Capacity  int    `json:"capacity"`
}

type roomClosureRequest struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Closed *bool  `json:"closed"`
}

type minPricePayload struct {
	Date  string `json:"date"`
	Price string `json:"price"`
}

type repricingFailurePayload struct {
	HotelID int64  `json:"hotel_id"`
	Error   string `json:"error"`
}

type repricingReportPayload struct {
	Skipped           bool                      `json:"skipped"`
	HotelsProcessed   int                       `json:"hotels_processed"`
	HotelsFailed      int                       `json:"hotels_failed"`
	CellsRepriced     int                       `json:"cells_repriced"`
	MinPricesUpserted int                       `json:"min_prices_upserted"`
	MinPricesRemoved  int                       `json:"min_prices_removed"`
	Failures          []repricingFailurePayload `json:"failures"`
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.requestTimeout)
}

// sessionUser resolves the caller. It writes a 401 and returns false when the
// session carries no usable user id.
func sessionUser(ctx *gin.Context) (reservation.UserID, bool) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return reservation.UserID{}, false
	}
	userID, err := reservation.NewUserID(claims.GetUserID())
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return reservation.UserID{}, false
	}
	return userID, true
}

func (handler *httpHandler) handleInitializeBooking(ctx *gin.Context) {
	userID, ok := sessionUser(ctx)
	if !ok {
		return
	}
	var request initializeBookingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, "expected JSON body")
		return
	}
	checkIn, err := parseDate(request.CheckIn)
	if err != nil {
		invalidPayload(ctx, "check_in must be YYYY-MM-DD")
		return
	}
	checkOut, err := parseDate(request.CheckOut)
	if err != nil {
		invalidPayload(ctx, "check_out must be YYYY-MM-DD")
		return
	}
	bookingRequest, err := reservation.NewBookingRequest(
		reservation.HotelID(request.HotelID),
		reservation.RoomID(request.RoomID),
		checkIn,
		checkOut,
		request.RoomsCount,
		userID,
	)
	if err != nil {
		handler.respondError(ctx, "initialize_booking", err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	booking, err := handler.bookings.InitializeBooking(requestCtx, bookingRequest)
	if err != nil {
		handler.respondError(ctx, "initialize_booking", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"booking": newBookingPayload(booking)})
}

func (handler *httpHandler) handleGetBooking(ctx *gin.Context) {
	userID, ok := sessionUser(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	booking, ok := handler.ownedBooking(ctx, requestCtx, userID)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"booking": newBookingPayload(booking)})
}

func (handler *httpHandler) handleAddGuests(ctx *gin.Context) {
	userID, ok := sessionUser(ctx)
	if !ok {
		return
	}
	var request addGuestsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, "expected JSON body")
		return
	}
	guests := make([]reservation.Guest, 0, len(request.Guests))
	for _, payload := range request.Guests {
		guest, err := reservation.NewGuest(payload.Name, payload.Gender, payload.Age)
		if err != nil {
			handler.respondError(ctx, "add_guests", err)
			return
		}
		guests = append(guests, guest)
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	booking, ok := handler.ownedBooking(ctx, requestCtx, userID)
	if !ok {
		return
	}
	updated, err := handler.bookings.AddGuests(requestCtx, booking.ID, guests)
	if err != nil {
		handler.respondError(ctx, "add_guests", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"booking": newBookingPayload(updated)})
}

func (handler *httpHandler) handleConfirmBooking(ctx *gin.Context) {
	userID, ok := sessionUser(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	booking, ok := handler.ownedBooking(ctx, requestCtx, userID)
	if !ok {
		return
	}
	confirmed, err := handler.bookings.ConfirmBooking(requestCtx, booking.ID)
	if err != nil {
		handler.respondError(ctx, "confirm_booking", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"booking": newBookingPayload(confirmed)})
}

func (handler *httpHandler) handleCancelBooking(ctx *gin.Context) {
	userID, ok := sessionUser(ctx)
	if !ok {
		return
	}
	bookingID, err := reservation.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, "cancel_booking", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	cancelled, err := handler.bookings.CancelBooking(requestCtx, bookingID, userID)
	if err != nil {
		handler.respondError(ctx, "cancel_booking", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"booking": newBookingPayload(cancelled)})
}

// ownedBooking loads the path booking and hides bookings of other users behind a 404.
func (handler *httpHandler) ownedBooking(ctx *gin.Context, requestCtx context.Context, userID reservation.UserID) (reservation.Booking, bool) {
	bookingID, err := reservation.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, "get_booking", err)
		return reservation.Booking{}, false
	}
	booking, err := handler.bookings.GetBooking(requestCtx, bookingID)
	if err != nil {
		handler.respondError(ctx, "get_booking", err)
		return reservation.Booking{}, false
	}
	if booking.UserID != userID {
		handler.respondError(ctx, "get_booking", fmt.Errorf("%w: booking %s", reservation.ErrNotFound, bookingID))
		return reservation.Booking{}, false
	}
	return booking, true
}

func (handler *httpHandler) handleMinPrices(ctx *gin.Context) {
	if handler.minPrices == nil {
		ctx.JSON(http.StatusServiceUnavailable, errorResponse("unavailable", "min prices are not served"))
		return
	}
	hotelID, ok := pathID(ctx)
	if !ok {
		return
	}
	from := reservation.DateOf(handler.nowFn())
	if raw := ctx.Query("from"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			invalidPayload(ctx, "from must be YYYY-MM-DD")
			return
		}
		from = parsed
	}
	to := from.AddDate(0, 0, defaultMinPriceDays-1)
	if raw := ctx.Query("to"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			invalidPayload(ctx, "to must be YYYY-MM-DD")
			return
		}
		to = parsed
	}
	if to.Before(from) {
		invalidPayload(ctx, "to must not be before from")
		return
	}
	if reservation.DaysInclusive(from, to) > reservation.ProvisionDays {
		invalidPayload(ctx, fmt.Sprintf("range must not exceed %d days", reservation.ProvisionDays))
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	prices, err := handler.minPrices.ListHotelMinPrices(requestCtx, reservation.HotelID(hotelID), from, to)
	if err != nil {
		handler.respondError(ctx, "list_min_prices", err)
		return
	}
	payload := make([]minPricePayload, 0, len(prices))
	for _, price := range prices {
		payload = append(payload, minPricePayload{
			Date:  price.Date.Format(time.DateOnly),
			Price: price.Price.StringFixed(2),
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"hotel_id": hotelID, "prices": payload})
}

func (handler *httpHandler) handleCreateHotel(ctx *gin.Context) {
	var request createHotelRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, "expected JSON body")
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	hotel, err := handler.bookings.CreateHotel(requestCtx, reservation.Hotel{Name: request.Name, City: request.City})
	if err != nil {
		handler.respondError(ctx, "create_hotel", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"hotel": hotelPayload{
		ID:     int64(hotel.ID),
		Name:   hotel.Name,
		City:   hotel.City,
		Active: hotel.Active,
	}})
}

func (handler *httpHandler) handleActivateHotel(ctx *gin.Context) {
	handler.toggleHotel(ctx, "activate_hotel", true)
}

func (handler *httpHandler) handleDeactivateHotel(ctx *gin.Context) {
	handler.toggleHotel(ctx, "deactivate_hotel", false)
}

func (handler *httpHandler) toggleHotel(ctx *gin.Context, operation string, active bool) {
	hotelID, ok := pathID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	var err error
	if active {
		err = handler.bookings.ActivateHotel(requestCtx, reservation.HotelID(hotelID))
	} else {
		err = handler.bookings.DeactivateHotel(requestCtx, reservation.HotelID(hotelID))
	}
	if err != nil {
		handler.respondError(ctx, operation, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"hotel_id": hotelID, "active": active})
}

func (handler *httpHandler) handleAddRoom(ctx *gin.Context) {
	hotelID, ok := pathID(ctx)
	if !ok {
		return
	}
	var request addRoomRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, "expected JSON body")
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	room, err := handler.bookings.AddRoom(requestCtx, reservation.Room{
		HotelID:   reservation.HotelID(hotelID),
		Type:      request.Type,
		BasePrice: request.BasePrice,
		Capacity:  request.Capacity,
	})
	if err != nil {
		handler.respondError(ctx, "add_room", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"room": roomPayload{
		ID:        int64(room.ID),
		HotelID:   int64(room.HotelID),
		Type:      room.Type,
		BasePrice: room.BasePrice.StringFixed(2),
		Capacity:  room.Capacity,
	}})
}

func (handler *httpHandler) handleRemoveRoom(ctx *gin.Context) {
	roomID, ok := pathID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.bookings.RemoveRoom(requestCtx, reservation.RoomID(roomID)); err != nil {
		handler.respondError(ctx, "remove_room", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleRoomClosure(ctx *gin.Context) {
	roomID, ok := pathID(ctx)
	if !ok {
		return
	}
	var request roomClosureRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, "expected JSON body")
		return
	}
	start, err := parseDate(request.Start)
	if err != nil {
		invalidPayload(ctx, "start must be YYYY-MM-DD")
		return
	}
	end, err := parseDate(request.End)
	if err != nil {
		invalidPayload(ctx, "end must be YYYY-MM-DD")
		return
	}
	closed := true
	if request.Closed != nil {
		closed = *request.Closed
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.bookings.SetRoomClosed(requestCtx, reservation.RoomID(roomID), start, end, closed); err != nil {
		handler.respondError(ctx, "close_inventory", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"room_id": roomID,
		"start":   start.Format(time.DateOnly),
		"end":     end.Format(time.DateOnly),
		"closed":  closed,
	})
}

// handleReprice runs a pass with the request context only; a full run can outlast
// the per-request timeout.
func (handler *httpHandler) handleReprice(ctx *gin.Context) {
	if handler.repricer == nil {
		ctx.JSON(http.StatusServiceUnavailable, errorResponse("unavailable", "repricing is not configured"))
		return
	}
	report, err := handler.repricer.Run(ctx.Request.Context())
	if err != nil {
		handler.respondError(ctx, "reprice", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"report": newReportPayload(report)})
}

func (handler *httpHandler) handleSweep(ctx *gin.Context) {
	expired, err := handler.bookings.ExpireStaleBookings(ctx.Request.Context())
	if err != nil {
		handler.respondError(ctx, "expire_stale_bookings", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"expired": expired})
}

func pathID(ctx *gin.Context) (int64, bool) {
	value, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || value <= 0 {
		invalidPayload(ctx, "id must be a positive integer")
		return 0, false
	}
	return value, true
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse(time.DateOnly, raw)
}

func newBookingPayload(booking reservation.Booking) bookingPayload {
	guests := make([]guestPayload, 0, len(booking.Guests))
	for _, guest := range booking.Guests {
		guests = append(guests, guestPayload{Name: guest.Name, Gender: string(guest.Gender), Age: guest.Age})
	}
	return bookingPayload{
		ID:         booking.ID.String(),
		HotelID:    int64(booking.HotelID),
		RoomID:     int64(booking.RoomID),
		UserID:     booking.UserID.String(),
		RoomsCount: booking.RoomsCount,
		CheckIn:    booking.CheckIn.Format(time.DateOnly),
		CheckOut:   booking.CheckOut.Format(time.DateOnly),
		Status:     booking.Status.String(),
		Amount:     booking.Amount.StringFixed(2),
		CreatedAt:  booking.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  booking.UpdatedAt.UTC().Format(time.RFC3339),
		Guests:     guests,
	}
}

func newReportPayload(report repricing.Report) repricingReportPayload {
	failures := make([]repricingFailurePayload, 0, len(report.Failures))
	for _, failure := range report.Failures {
		failures = append(failures, repricingFailurePayload{HotelID: int64(failure.HotelID), Error: failure.Err.Error()})
	}
	return repricingReportPayload{
		Skipped:           report.Skipped,
		HotelsProcessed:   report.HotelsProcessed,
		HotelsFailed:      report.HotelsFailed,
		CellsRepriced:     report.CellsRepriced,
		MinPricesUpserted: report.MinPricesUpserted,
		MinPricesRemoved:  report.MinPricesRemoved,
		Failures:          failures,
	}
}
