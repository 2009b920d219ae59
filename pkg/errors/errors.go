package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeConflict      ErrorType = "conflict"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeObservation   ErrorType = "observation"
	ErrorTypeTransfer      ErrorType = "transfer"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeIO            ErrorType = "io"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeInternal      ErrorType = "internal"
	ErrorTypeCancelled     ErrorType = "cancelled"
)

// DomainError represents a structured error with type and context
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DomainError of the same type
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok {
		return e.Type == other.Type
	}
	return false
}

// WithContext adds context information to the error
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

func NewValidationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, cause)
}

func NewNotFoundError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNotFound, message, cause)
}

func NewConflictError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeConflict, message, cause)
}

// NewConfigurationError reports a strategy that cannot be turned into an action
func NewConfigurationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeConfiguration, message, cause)
}

// NewObservationError reports a failed budget observation of a unit
func NewObservationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeObservation, message, cause)
}

// NewTransferError reports a failed top-up transfer or mint
func NewTransferError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeTransfer, message, cause)
}

func NewTimeoutError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeTimeout, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeIO, message, cause)
}

func NewNetworkError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNetwork, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, cause)
}

func NewCancelledError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeCancelled, message, cause)
}

// isType matches any DomainError in the tree of err, including causes of
// wrapping domain errors and members of an ErrorCollection.
func isType(err error, errorType ErrorType) bool {
	return errors.Is(err, &DomainError{Type: errorType})
}

func IsValidationError(err error) bool    { return isType(err, ErrorTypeValidation) }
func IsNotFoundError(err error) bool      { return isType(err, ErrorTypeNotFound) }
func IsConflictError(err error) bool      { return isType(err, ErrorTypeConflict) }
func IsConfigurationError(err error) bool { return isType(err, ErrorTypeConfiguration) }
func IsObservationError(err error) bool   { return isType(err, ErrorTypeObservation) }
func IsTransferError(err error) bool      { return isType(err, ErrorTypeTransfer) }
func IsTimeoutError(err error) bool       { return isType(err, ErrorTypeTimeout) }
func IsIOError(err error) bool            { return isType(err, ErrorTypeIO) }
func IsNetworkError(err error) bool       { return isType(err, ErrorTypeNetwork) }
func IsInternalError(err error) bool      { return isType(err, ErrorTypeInternal) }
func IsCancelledError(err error) bool     { return isType(err, ErrorTypeCancelled) }

// ErrorCollection aggregates errors of bulk operations
type ErrorCollection struct {
	Errors []error
}

func (e *ErrorCollection) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As
func (e *ErrorCollection) Unwrap() []error {
	return e.Errors
}

func (e *ErrorCollection) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

func (e *ErrorCollection) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ErrorCollection) ToError() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// NewErrorCollection creates a new error collection
func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{
		Errors: make([]error, 0),
	}
}
