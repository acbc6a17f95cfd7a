// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrDataUnavailable   = errors.New("data unavailable")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrStaleRanking      = errors.New("momentum ranking is stale")
	ErrRankUnavailable   = errors.New("momentum ranking unavailable")
	ErrPositionNotFound  = errors.New("position not found")
	ErrPositionExists    = errors.New("position already open")
	ErrNotRecommended    = errors.New("recommendation not found")
	ErrSettlementPending = errors.New("position opened today cannot be closed before settlement")
	ErrSymbolNotFound    = errors.New("symbol not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrCircuitOpen       = errors.New("provider circuit open")
	ErrTimeout           = errors.New("operation timed out")
	ErrDatabaseError     = errors.New("database error")
	ErrCacheMiss         = errors.New("cache miss")
	ErrInputValidation   = errors.New("input validation failed")
)

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

// Unwrap falls back to ErrDataUnavailable so every DataError matches it.
func (e *DataError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrDataUnavailable
}

// Is lets errors.Is(err, ErrDataUnavailable) hold even when Err is set.
func (e *DataError) Is(target error) bool {
	return target == ErrDataUnavailable
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ConstraintError is returned when an operation is rejected by a trading rule.
type ConstraintError struct {
	Rule   string
	Symbol string
	Reason string
	Err    error
}

func (e *ConstraintError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("constraint [%s] %s: %s: %v", e.Rule, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("constraint [%s] %s: %s", e.Rule, e.Symbol, e.Reason)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// NewConstraintError creates a new ConstraintError.
func NewConstraintError(rule, symbol, reason string, err error) *ConstraintError {
	return &ConstraintError{
		Rule:   rule,
		Symbol: symbol,
		Reason: reason,
		Err:    err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
