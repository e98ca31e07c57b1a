// Package httpapi exposes the reservation engine over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/repricing"
	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey      = "auth_claims"
	defaultAdminRole      = "admin"
	defaultRequestTimeout = 10 * time.Second
	shutdownTimeout       = 5 * time.Second
	defaultMinPriceDays   = 30
	headerContentType     = "Content-Type"
	headerOrigin          = "Origin"
	headerAccept          = "Accept"
	metricsRoute          = "/metrics"
	healthRoute           = "/healthz"
)

// BookingService is the reservation surface served by the router.
type BookingService interface {
	InitializeBooking(ctx context.Context, request reservation.BookingRequest) (reservation.Booking, error)
	GetBooking(ctx context.Context, bookingID reservation.BookingID) (reservation.Booking, error)
	AddGuests(ctx context.Context, bookingID reservation.BookingID, guests []reservation.Guest) (reservation.Booking, error)
	ConfirmBooking(ctx context.Context, bookingID reservation.BookingID) (reservation.Booking, error)
	CancelBooking(ctx context.Context, bookingID reservation.BookingID, userID reservation.UserID) (reservation.Booking, error)
	ExpireStaleBookings(ctx context.Context) (int, error)
	CreateHotel(ctx context.Context, hotel reservation.Hotel) (reservation.Hotel, error)
	ActivateHotel(ctx context.Context, hotelID reservation.HotelID) error
	DeactivateHotel(ctx context.Context, hotelID reservation.HotelID) error
	AddRoom(ctx context.Context, room reservation.Room) (reservation.Room, error)
	RemoveRoom(ctx context.Context, roomID reservation.RoomID) error
	SetRoomClosed(ctx context.Context, roomID reservation.RoomID, start time.Time, end time.Time, closed bool) error
}

// MinPriceReader serves the precomputed hotel minimum prices.
type MinPriceReader interface {
	ListHotelMinPrices(ctx context.Context, hotelID reservation.HotelID, from time.Time, to time.Time) ([]repricing.HotelMinPrice, error)
}

// Repricer runs one repricing pass on demand.
type Repricer interface {
	Run(ctx context.Context) (repricing.Report, error)
}

// Config controls the router.
type Config struct {
	AllowedOrigins []string
	AdminRole      string
	RequestTimeout time.Duration
}

// Dependencies are the collaborators the handlers call.
type Dependencies struct {
	Logger     *zap.Logger
	Bookings   BookingService
	MinPrices  MinPriceReader
	Repricer   Repricer
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Now        func() time.Time
}

// NewRouter builds the gin engine. Every /api route requires a valid session;
// /api/admin additionally requires the admin role.
func NewRouter(cfg Config, deps Dependencies, validator *sessionvalidator.Validator) (*gin.Engine, error) {
	if deps.Bookings == nil {
		return nil, errors.New("httpapi: booking service is required")
	}
	if validator == nil {
		return nil, errors.New("httpapi: session validator is required")
	}
	if len(cfg.AllowedOrigins) == 0 {
		return nil, errors.New("httpapi: at least one allowed origin is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Registerer == nil {
		deps.Registerer = prometheus.NewRegistry()
	}
	if cfg.AdminRole == "" {
		cfg.AdminRole = defaultAdminRole
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	handler := &httpHandler{
		logger:         deps.Logger,
		bookings:       deps.Bookings,
		minPrices:      deps.MinPrices,
		repricer:       deps.Repricer,
		nowFn:          deps.Now,
		requestTimeout: cfg.RequestTimeout,
	}
	return setupRouter(cfg, handler, validator, newRequestMetrics(deps.Registerer), deps.Gatherer), nil
}

func setupRouter(cfg Config, handler *httpHandler, validator *sessionvalidator.Validator, metrics *requestMetrics, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.middleware)
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{headerContentType, headerOrigin, headerAccept},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET(healthRoute, func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		router.GET(metricsRoute, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(claimsContextKey))

	api.POST("/bookings", handler.handleInitializeBooking)
	api.GET("/bookings/:id", handler.handleGetBooking)
	api.POST("/bookings/:id/guests", handler.handleAddGuests)
	api.POST("/bookings/:id/confirm", handler.handleConfirmBooking)
	api.POST("/bookings/:id/cancel", handler.handleCancelBooking)
	api.GET("/hotels/:id/min-prices", handler.handleMinPrices)

	admin := api.Group("/admin")
	admin.Use(requireRole(cfg.AdminRole))
	admin.POST("/hotels", handler.handleCreateHotel)
	admin.POST("/hotels/:id/activate", handler.handleActivateHotel)
	admin.POST("/hotels/:id/deactivate", handler.handleDeactivateHotel)
	admin.POST("/hotels/:id/rooms", handler.handleAddRoom)
	admin.DELETE("/rooms/:id", handler.handleRemoveRoom)
	admin.POST("/rooms/:id/closures", handler.handleRoomClosure)
	admin.POST("/repricing", handler.handleReprice)
	admin.POST("/sweeps", handler.handleSweep)

	return router
}

// Serve runs handler on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("hoteld listening", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func requireRole(role string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims := getClaims(ctx)
		if claims == nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
			return
		}
		for _, granted := range claims.GetUserRoles() {
			if granted == role {
				ctx.Next()
				return
			}
		}
		ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", "admin role required"))
	}
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}
