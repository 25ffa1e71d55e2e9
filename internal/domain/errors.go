package domain

import (
	"errors"
	"fmt"
)

// Error codes surfaced through the router's err_code derivation.
const (
	CodeBadPlatform      = "BAD_PLATFORM"
	CodeBadTransferType  = "BAD_TRANSFER_TYPE"
	CodeBadPaymentMethod = "BAD_PAYMENT_METHOD"
	CodeBadPhone         = "BAD_PHONE"
	CodeBadPhoneLength   = "BAD_PHONE_LENGTH"
	CodeBadPhonePrefix   = "BAD_PHONE_PREFIX"
	CodeBadPaymentDetail = "BAD_PAYMENT_DETAIL"
	CodeBadAmountSymbols = "BAD_AMOUNT_SYMBOLS"
	CodeBadAmountLength  = "BAD_AMOUNT_LENGTH"
	CodeBadAmountRange   = "BAD_AMOUNT_RANGE"
	CodeBadPriceFormat   = "BAD_PRICE_FORMAT"
	CodeBadPriceRange    = "BAD_PRICE_RANGE"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeNotRegistered    = "NOT_REGISTERED"
	CodeStorage          = "STORAGE"
)

// ValidationError is an input rejection. It carries the code the structured
// logs report and never wraps a storage failure.
type ValidationError struct {
	Field  string
	Reason string
	code   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Code returns the stable error code for logging.
func (e *ValidationError) Code() string { return e.code }

// NewValidationError builds a rejection for the given field.
func NewValidationError(field, reason, code string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, code: code}
}

// IsValidation reports whether err is an input rejection rather than an
// infrastructure failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError wraps a database failure so callers can tell it apart from
// a validation rejection.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Code returns the stable error code for logging.
func (e *StorageError) Code() string { return CodeStorage }

// WrapStorage wraps err as a storage failure; nil passes through.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// UnauthorizedError marks an attempt to use an admin-only surface.
type UnauthorizedError struct {
	UserID int64
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("user %d is not an administrator", e.UserID)
}

// Code returns the stable error code for logging.
func (e *UnauthorizedError) Code() string { return CodeUnauthorized }

// NotRegisteredError marks a seller action attempted before registration
// completed.
type NotRegisteredError struct {
	UserID int64
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("user %d has not completed registration", e.UserID)
}

// Code returns the stable error code for logging.
func (e *NotRegisteredError) Code() string { return CodeNotRegistered }
