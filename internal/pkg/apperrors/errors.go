package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("resource not found")

	ErrInvalidArgument = errors.New("invalid argument")

	ErrValidation = errors.New("validation failed")

	ErrAlreadyExists = errors.New("resource already exists")

	ErrDatabase = errors.New("database error")

	ErrInternalServer = errors.New("internal server error")

	ErrConflict = errors.New("resource conflict")

	// ErrInvalidState covers any operation attempted against an entity that
	// is not in the required status: non-ACTIVE accounts, a loan outside the
	// status a transition demands, a terminal ledger entry.
	ErrInvalidState = errors.New("entity is not in a valid state for this operation")

	ErrAccountNotActive = errors.New("account is not active")

	ErrInsufficientBalance = errors.New("insufficient account balance")

	ErrInsufficientCredit = errors.New("insufficient available credit")

	ErrLimitExceeded = errors.New("transaction limit exceeded")

	ErrAmountExceedsOutstanding = errors.New("amount exceeds outstanding loan balance")

	ErrNoPendingRepayments = errors.New("loan has no pending repayments")

	ErrExistingDefaultedLoans = errors.New("customer has defaulted loans")
)

type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

func NewValidationError(field, message string) error {
	return fmt.Errorf("%w: %w", ErrValidation, &ValidationError{Field: field, Message: message})
}

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func WrapDatabaseError(cause error, message string) error {
	return &AppError{
		Code:    "DB_ERROR",
		Message: message,
		Cause:   fmt.Errorf("%w: %w", ErrDatabase, cause),
	}
}
