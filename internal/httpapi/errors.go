package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// classifyError maps engine errors to a status and a stable error code.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, reservation.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, reservation.ErrInsufficientInventory):
		return http.StatusConflict, "insufficient_inventory"
	case errors.Is(err, reservation.ErrBookingExpired):
		return http.StatusConflict, "booking_expired"
	case errors.Is(err, reservation.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, reservation.ErrInvalidBookingRequest),
		errors.Is(err, reservation.ErrInvalidGuest),
		errors.Is(err, reservation.ErrInvalidHotel),
		errors.Is(err, reservation.ErrInvalidRoom):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (handler *httpHandler) respondError(ctx *gin.Context, operation string, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("operation", operation), zap.Error(err))
		ctx.JSON(status, errorResponse(code, "request failed"))
		return
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func invalidPayload(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", message))
}
