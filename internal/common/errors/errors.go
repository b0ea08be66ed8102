// Package errors provides standardized error handling for the billing flows.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeSignatureMismatch ErrorCode = "SIGNATURE_MISMATCH"
	ErrCodeTradeQueryFailed  ErrorCode = "TRADE_QUERY_FAILED"
	ErrCodeRecordNotFound    ErrorCode = "RECORD_NOT_FOUND"
	ErrCodeArgumentMismatch  ErrorCode = "ARGUMENT_MISMATCH"

	ErrCodeSheetReadFailed   ErrorCode = "SHEET_READ_FAILED"
	ErrCodeSheetUpdateFailed ErrorCode = "SHEET_UPDATE_FAILED"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"

	ErrCodeDatabaseInsertFailed   ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeDuplicateCallback      ErrorCode = "DUPLICATE_CALLBACK"
	ErrCodeIdempotencyCheckFailed ErrorCode = "IDEMPOTENCY_CHECK_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewSignatureMismatchError marks a callback whose CheckMacValue did not
// verify. Verification failure is a normal outcome, never retried.
func NewSignatureMismatchError(orderID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSignatureMismatch,
		Message:   "CheckMacValue verification failed",
		Details:   fmt.Sprintf("orderId: %s", orderID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTradeQueryFailedError creates a retryable trade query error.
func NewTradeQueryFailedError(orderID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTradeQueryFailed,
		Message:   "Trade status query failed",
		Details:   fmt.Sprintf("orderId: %s, error: %s", orderID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRecordNotFoundError creates a non-retryable missing-row error.
func NewRecordNotFoundError(period, memberID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecordNotFound,
		Message:   "Payment record not found",
		Details:   fmt.Sprintf("period: %s, memberId: %s", period, memberID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewArgumentMismatchError creates a non-retryable bad-argument error.
// Argument checks happen before any I/O.
func NewArgumentMismatchError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeArgumentMismatch,
		Message:   "Invalid arguments",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSheetReadFailedError creates a retryable spreadsheet read error.
func NewSheetReadFailedError(sheet string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSheetReadFailed,
		Message:   "Spreadsheet read failed",
		Details:   fmt.Sprintf("sheet: %s, error: %s", sheet, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSheetUpdateFailedError creates a retryable spreadsheet write error.
func NewSheetUpdateFailedError(sheet string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSheetUpdateFailed,
		Message:   "Spreadsheet update failed",
		Details:   fmt.Sprintf("sheet: %s, error: %s", sheet, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification send error.
// In batch context the failure is captured per target and never aborts the run.
func NewNotificationSendFailedError(recipient string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("recipient: %s, error: %s", recipient, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseInsertFailedError creates a retryable database insert error.
func NewDatabaseInsertFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseInsertFailed,
		Message:   "Database insert operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewIdempotencyCheckFailedError creates a retryable error for an
// unreachable idempotency store. The callback is not acknowledged so the
// gateway retries it.
func NewIdempotencyCheckFailedError(tradeNo string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeIdempotencyCheckFailed,
		Message:   "Callback idempotency check failed",
		Details:   fmt.Sprintf("tradeNo: %s, error: %s", tradeNo, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateCallbackError marks a callback whose trade number was already
// confirmed. The caller acknowledges the gateway without re-applying state.
func NewDuplicateCallbackError(tradeNo string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateCallback,
		Message:   "Callback already processed",
		Details:   fmt.Sprintf("tradeNo: %s", tradeNo),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// IsCode reports whether err is a StandardError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// AsStandard extracts the StandardError from err, or wraps err into a
// generic non-retryable one so callers always have a structured shape.
func AsStandard(err error) *StandardError {
	var se *StandardError
	if errors.As(err, &se) {
		return se
	}
	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
