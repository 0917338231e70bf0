package shared

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-ledger/internal/money"
)

// Category sentinels. Concrete errors below match one of these through errors.Is.
var (
	// ErrValidation indicates a malformed request rejected before any write.
	ErrValidation = errors.New("accounting: validation failed")
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrNotFound indicates an unknown identifier.
	ErrNotFound = errors.New("accounting: not found")
	// ErrAlreadyPosted indicates a post was attempted twice.
	ErrAlreadyPosted = errors.New("accounting: already posted")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrMissingMapping indicates an integration role cannot be resolved to an account.
	ErrMissingMapping = errors.New("accounting: account mapping missing")
	// ErrStorage indicates the storage layer failed; the unit of work was rolled back.
	ErrStorage = errors.New("accounting: storage failure")
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = errors.New("accounting: source already linked")
	// ErrDuplicateRun indicates a recurring template already produced a voucher for the scheduled date.
	ErrDuplicateRun = errors.New("accounting: recurring run already materialized")
)

// Validation failures.
var (
	ErrTooFewLines        = &ValidationError{Field: "lines", Message: "journal requires at least two lines"}
	ErrNonPositiveAmount  = &ValidationError{Field: "amount", Message: "line amount must be positive"}
	ErrInvalidSide        = &ValidationError{Field: "side", Message: "side must be DEBIT or CREDIT"}
	ErrMissingAccount     = &ValidationError{Field: "account_id", Message: "line account required"}
	ErrMissingDate        = &ValidationError{Field: "date", Message: "date required"}
	ErrNoLines            = &ValidationError{Field: "lines", Message: "voucher has no lines"}
	ErrUnknownVoucherType = &ValidationError{Field: "type", Message: "unknown voucher type"}
	ErrUnknownFrequency   = &ValidationError{Field: "frequency", Message: "unknown frequency"}
	ErrUnknownEventType   = &ValidationError{Field: "event_type", Message: "unknown event type"}
	ErrInactiveAccount    = &ValidationError{Field: "account_id", Message: "account is inactive"}
	ErrAmountOutOfRange   = &ValidationError{Field: "amount", Message: "amount exceeds 9999999999999999.99"}
	ErrTotalOutOfRange    = &ValidationError{Field: "lines", Message: "line total exceeds 9999999999999999.99"}
	ErrBalanceOutOfRange  = &ValidationError{Field: "balance", Message: "account balance would exceed 9999999999999999.99"}
)

// Not-found variants.
var (
	ErrAccountNotFound  = notFound("account")
	ErrJournalNotFound  = notFound("journal entry")
	ErrVoucherNotFound  = notFound("voucher")
	ErrTemplateNotFound = notFound("recurring template")
	ErrEventNotFound    = notFound("external event")
	ErrMappingNotFound  = notFound("account mapping")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field   string
	Message string
}

// Invalid builds an ad hoc validation error.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("accounting: invalid %s: %s", e.Field, e.Message)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// UnbalancedEntryError carries the totals of a rejected line set.
type UnbalancedEntryError struct {
	TotalDebit  money.Amount
	TotalCredit money.Amount
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("accounting: journal lines must balance: debit %s, credit %s", e.TotalDebit, e.TotalCredit)
}

// Is matches ErrUnbalanced.
func (e *UnbalancedEntryError) Is(target error) bool {
	return target == ErrUnbalanced
}

// MissingAccountMappingError names the integration role that could not be resolved.
type MissingAccountMappingError struct {
	Role string
}

func (e *MissingAccountMappingError) Error() string {
	return fmt.Sprintf("accounting: no account mapped for role %q", e.Role)
}

// Is matches ErrMissingMapping.
func (e *MissingAccountMappingError) Is(target error) bool {
	return target == ErrMissingMapping
}

type notFoundError struct {
	entity string
}

func notFound(entity string) error {
	return &notFoundError{entity: entity}
}

func (e *notFoundError) Error() string {
	return "accounting: " + e.entity + " not found"
}

func (e *notFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// StorageError wraps a storage-layer failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("accounting: storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is matches ErrStorage.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// WrapStorage classifies err as a storage failure unless it already belongs to the
// accounting taxonomy. nil stays nil.
func WrapStorage(op string, err error) error {
	if err == nil || IsDomain(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsDomain reports whether err is one of the accounting errors above.
func IsDomain(err error) bool {
	for _, target := range []error{
		ErrValidation, ErrUnbalanced, ErrNotFound, ErrAlreadyPosted, ErrInvalidStatus,
		ErrMissingMapping, ErrStorage, ErrSourceAlreadyLinked, ErrDuplicateRun,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
