package escrow

import (
	"errors"
	"fmt"

	"github.com/xraph/escrow/account"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrInvalidPrincipal = errors.New("escrow: invalid principal")
	ErrNotFound         = errors.New("escrow: not found")

	// Collateral errors
	ErrInsufficientDeposit = errors.New("escrow: deposit below minimum storage balance")
	ErrInsufficientBalance = errors.New("escrow: amount exceeds storage balance")
	ErrStorageNotEmpty     = errors.New("escrow: principal still has committed storage")
	ErrBalanceOverflow     = errors.New("escrow: storage balance overflow")

	// Reconciliation errors. These are the account package sentinels so
	// errors.Is works whichever layer reports them.
	ErrStorageNotCovered  = account.ErrStorageNotCovered
	ErrInternalAccounting = account.ErrInternalAccounting

	// Scope errors
	ErrScopeActive = errors.New("escrow: a measurement scope is already open for principal")
	ErrScopeClosed = errors.New("escrow: measurement scope already closed")
	ErrNoState     = errors.New("escrow: no metered state store configured")

	// Transfer errors
	ErrTransferFailed = errors.New("escrow: transfer failed")

	// Store errors
	ErrStoreClosed = errors.New("escrow: store is closed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("escrow: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "escrow: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("escrow: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// ErrorOrNil returns e when it holds errors and nil otherwise.
func (e MultiError) ErrorOrNil() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRejection returns true for ordinary rejections the caller can recover
// from, for example by depositing more.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidPrincipal) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientDeposit) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrStorageNotCovered) ||
		errors.Is(err, ErrStorageNotEmpty) ||
		errors.Is(err, ErrScopeActive)
}

// IsFatal returns true if the error reports a broken accounting invariant.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInternalAccounting)
}
