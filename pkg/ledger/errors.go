package ledger

import (
	"errors"
	"fmt"
)

// Domain errors returned by the transfer engine and Store implementations.
// Validation errors are always detected before any mutation; ErrTransferAborted
// is the only error that may surface after mutation attempts began, and it
// guarantees no partial mutation is visible.
var (
	// ErrInvalidAmount is returned when a transfer amount is not strictly
	// positive or cannot be represented at two decimal places.
	ErrInvalidAmount = errors.New("ledger: invalid amount")

	// ErrAccountNotFound is returned when an account number does not resolve.
	ErrAccountNotFound = errors.New("ledger: account not found")

	// ErrCustomerNotFound is returned when a customer lookup fails.
	ErrCustomerNotFound = errors.New("ledger: customer not found")

	// ErrSameAccountTransfer is returned when source and destination are the
	// same account and self-transfers are not permitted.
	ErrSameAccountTransfer = errors.New("ledger: transfer to same account")

	// ErrInsufficientFunds is returned when the source balance cannot cover
	// the transfer amount.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrConcurrentModification indicates the store detected a conflicting
	// concurrent update. The engine retries these within a fixed budget;
	// callers never see this error directly.
	ErrConcurrentModification = errors.New("ledger: concurrent modification")

	// ErrTransferAborted is returned when a transfer could not be committed
	// after exhausting retries or due to a storage failure. Balances and the
	// ledger are left in their pre-transfer state.
	ErrTransferAborted = errors.New("ledger: transfer aborted")

	// ErrInvalidCustomerName is returned when a customer name is empty or
	// contains characters other than letters and spaces.
	ErrInvalidCustomerName = errors.New("ledger: invalid customer name")

	// ErrBelowMinimumDeposit is returned when an opening balance is below the
	// configured minimum.
	ErrBelowMinimumDeposit = errors.New("ledger: opening balance below minimum deposit")

	// ErrDuplicateAccountNumber is returned by stores when an account number
	// collides with an existing one.
	ErrDuplicateAccountNumber = errors.New("ledger: duplicate account number")

	// ErrStoreUnavailable is returned for read operations when the backing
	// store is temporarily unreachable.
	ErrStoreUnavailable = errors.New("ledger: store unavailable")
)

// IsNotFound checks whether the error indicates a missing account or customer.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrCustomerNotFound)
}

// IsValidation checks whether the error is a request validation failure,
// i.e. one that was rejected before any mutation.
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrSameAccountTransfer),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidCustomerName),
		errors.Is(err, ErrBelowMinimumDeposit):
		return true
	}
	return false
}

// IsAborted checks whether the error indicates an aborted transfer.
func IsAborted(err error) bool {
	return errors.Is(err, ErrTransferAborted)
}

// ClassifyError returns a stable label for the error, used for metrics and
// structured log fields.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrCustomerNotFound):
		return "customer_not_found"
	case errors.Is(err, ErrSameAccountTransfer):
		return "same_account"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, ErrTransferAborted):
		return "aborted"
	case errors.Is(err, ErrInvalidCustomerName):
		return "invalid_customer_name"
	case errors.Is(err, ErrBelowMinimumDeposit):
		return "below_minimum_deposit"
	case errors.Is(err, ErrDuplicateAccountNumber):
		return "duplicate_account_number"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}

// notFoundAccount wraps ErrAccountNotFound with the IBAN that failed to
// resolve, so callers can tell which side of a transfer was missing.
func notFoundAccount(number string) error {
	return fmt.Errorf("%w: %s", ErrAccountNotFound, number)
}
