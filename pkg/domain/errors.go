package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorKind classifies failures for adapters rendering results to users.
type ErrorKind string

// Error kinds surfaced by ledger operations.
const (
	KindValidation          ErrorKind = "validation"
	KindInsufficientStock   ErrorKind = "insufficient_stock"
	KindInvalidTransition   ErrorKind = "invalid_transition"
	KindTransactionConflict ErrorKind = "transaction_conflict"
	KindRuleViolation       ErrorKind = "rule_violation"
	KindInternal            ErrorKind = "internal"
)

// ValidationError reports a missing or malformed input detected before any mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// ErrNotFound is returned when reference validation fails within transactional helpers.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// UnitMismatchError reports a conversion between incompatible unit classes.
type UnitMismatchError struct {
	From Unit
	To   Unit
}

func (e UnitMismatchError) Error() string {
	return fmt.Sprintf("cannot convert %s to %s: incompatible units", e.From, e.To)
}

// InsufficientStockError reports a request exceeding available or remaining stock.
type InsufficientStockError struct {
	SupplyID   string
	SupplyName string
	Required   decimal.Decimal
	Available  decimal.Decimal
	Unit       Unit
}

func (e InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: required %s %s, available %s %s",
		e.SupplyName, e.Required.String(), e.Unit, e.Available.String(), e.Unit)
}

// InvalidTransitionError reports a state-machine precondition violation.
type InvalidTransitionError struct {
	ApplicationID string
	Status        ApplicationStatus
	Action        string
	Hint          string
}

func (e InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s application %s in status %s", e.Action, e.ApplicationID, e.Status)
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	return msg
}

// TransactionConflictError reports that an atomic transaction could not commit
// after bounded retries. Callers may resubmit the same intent.
type TransactionConflictError struct {
	Attempts int
	Err      error
}

func (e TransactionConflictError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transaction conflict after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("transaction conflict after %d attempts: %v", e.Attempts, e.Err)
}

func (e TransactionConflictError) Unwrap() error { return e.Err }

// Retryable reports that the same intent may be resubmitted.
func (TransactionConflictError) Retryable() bool { return true }

// KindOf classifies err, unwrapping as needed.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var (
		validation ValidationError
		notFound   ErrNotFound
		mismatch   UnitMismatchError
		stock      InsufficientStockError
		transition InvalidTransitionError
		conflict   TransactionConflictError
		rule       RuleViolationError
	)
	switch {
	case errors.As(err, &stock):
		return KindInsufficientStock
	case errors.As(err, &transition):
		return KindInvalidTransition
	case errors.As(err, &conflict):
		return KindTransactionConflict
	case errors.As(err, &validation), errors.As(err, &notFound), errors.As(err, &mismatch):
		return KindValidation
	case errors.As(err, &rule):
		return KindRuleViolation
	}
	return KindInternal
}
