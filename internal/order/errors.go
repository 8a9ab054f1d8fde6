package order

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable machine-readable rejection code.
type ErrorCode string

const (
	ErrOrderNotFound         ErrorCode = "ORDER_NOT_FOUND"
	ErrOrderAlreadyCompleted ErrorCode = "ORDER_ALREADY_COMPLETED"
	ErrOrderAlreadyVoided    ErrorCode = "ORDER_ALREADY_VOIDED"
	ErrItemNotFound          ErrorCode = "ITEM_NOT_FOUND"
	ErrPaymentNotFound       ErrorCode = "PAYMENT_NOT_FOUND"
	ErrInsufficientQuantity  ErrorCode = "INSUFFICIENT_QUANTITY"
	ErrInvalidAmount         ErrorCode = "INVALID_AMOUNT"
	ErrInvalidOperation      ErrorCode = "INVALID_OPERATION"
	ErrTableOccupied         ErrorCode = "TABLE_OCCUPIED"
	ErrInternal              ErrorCode = "INTERNAL_ERROR"
)

// CommandError is a synchronous rejection of a command.
// No event is produced when a command fails with a CommandError.
type CommandError struct {
	Code    ErrorCode
	Message string

	// Details carries optional structured context (instance id, amounts).
	Details map[string]string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf creates a CommandError with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *CommandError {
	return &CommandError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail returns e with an added detail entry.
func (e *CommandError) WithDetail(key, value string) *CommandError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// IsCode reports whether err is a CommandError with the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code ErrorCode) bool {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// ToErrorInfo converts any error to the wire error shape.
// Errors that are not CommandErrors are reported as INTERNAL_ERROR.
func ToErrorInfo(err error) *ErrorInfo {
	var ce *CommandError
	if errors.As(err, &ce) {
		return &ErrorInfo{Code: ce.Code, Message: ce.Message}
	}
	return &ErrorInfo{Code: ErrInternal, Message: err.Error()}
}
