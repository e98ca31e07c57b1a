// Package oplog writes reservation operation records to a zap logger.
package oplog

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
	"go.uber.org/zap"
)

const loggerName = "reservation"

// ZapLogger implements reservation.OperationLogger.
type ZapLogger struct {
	logger *zap.Logger
}

// New returns a ZapLogger writing to logger. A nil logger discards records.
func New(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named(loggerName)}
}

// LogOperation logs successes at Info, caller errors at Warn, consistency
// violations and infrastructure failures at Error.
func (zapLogger *ZapLogger) LogOperation(_ context.Context, entry reservation.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.BookingID.IsZero() {
		fields = append(fields, zap.String("booking_id", entry.BookingID.String()))
	}
	if !entry.UserID.IsZero() {
		fields = append(fields, zap.String("user_id", entry.UserID.String()))
	}
	if entry.HotelID != 0 {
		fields = append(fields, zap.Int64("hotel_id", int64(entry.HotelID)))
	}
	if entry.RoomID != 0 {
		fields = append(fields, zap.Int64("room_id", int64(entry.RoomID)))
	}
	if entry.Units != 0 {
		fields = append(fields, zap.Int("units", entry.Units))
	}
	if entry.Error == nil {
		zapLogger.logger.Info("operation completed", fields...)
		return
	}
	fields = append(fields, zap.Error(entry.Error))
	var operationError reservation.OperationError
	if errors.As(entry.Error, &operationError) {
		fields = append(fields, zap.String("error_code", operationError.Operation()+"."+operationError.Subject()+"."+operationError.Code()))
	}
	switch {
	case errors.Is(entry.Error, reservation.ErrConsistencyViolation):
		zapLogger.logger.Error("inventory consistency violation", fields...)
	case reservation.IsDomainError(entry.Error):
		zapLogger.logger.Warn("operation rejected", fields...)
	default:
		zapLogger.logger.Error("operation failed", fields...)
	}
}
