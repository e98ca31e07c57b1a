package reservation

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the reservation engine.
var (
	ErrNotFound              = errors.New("not found")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrBookingExpired        = errors.New("booking expired")
	ErrInvalidState          = errors.New("invalid booking state")
	ErrConsistencyViolation  = errors.New("inventory consistency violation")
	ErrInvalidBookingRequest = errors.New("invalid booking request")
	ErrInvalidGuest          = errors.New("invalid guest")
	ErrInvalidHotel          = errors.New("invalid hotel")
	ErrInvalidRoom           = errors.New("invalid room")
	ErrInvalidBookingStatus  = errors.New("invalid booking status")
	ErrInvalidServiceConfig  = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// IsDomainError reports whether err is one of the caller-facing sentinels.
func IsDomainError(err error) bool {
	for _, sentinel := range []error{
		ErrNotFound,
		ErrInsufficientInventory,
		ErrBookingExpired,
		ErrInvalidState,
		ErrInvalidBookingRequest,
		ErrInvalidGuest,
		ErrInvalidHotel,
		ErrInvalidRoom,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
