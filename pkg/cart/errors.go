package cart

import (
	"errors"
	"fmt"
)

// Failure classes surfaced by the engine and the remote boundary.
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNetworkFailure   = errors.New("network failure")
	ErrServerError      = errors.New("server error")
	ErrItemNotFound     = errors.New("item not found")
	ErrRemoteValidation = errors.New("remote validation rejected")
	ErrViewClosed       = errors.New("cart view closed")
)

// Validation errors returned by value constructors.
var (
	ErrInvalidItemID        = errors.New("invalid item id")
	ErrInvalidProductID     = errors.New("invalid product id")
	ErrInvalidPriceCents    = errors.New("invalid price cents")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidQuantityDelta = errors.New("invalid quantity delta")
	ErrInvalidCartItem      = errors.New("invalid cart item")
	ErrInvalidSnapshot      = errors.New("invalid snapshot")
	ErrInvalidServiceConfig = errors.New("invalid service config")
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

// IsRetryable reports whether the failure is worth re-invoking by the user.
// Unauthorized failures require re-authentication instead; validation
// rejections need a different request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetworkFailure) || errors.Is(err, ErrServerError)
}
