// Package ledger implements the funds-transfer engine: domain types, the
// Store contract implemented by the storage backends, and the Service that
// validates and executes transfers as atomic units of work.
package ledger

import (
	"context"
	"time"

	"bankledger/pkg/money"
)

// Status is the terminal state of a ledger transaction. Transfers are
// synchronous and atomic, so there is no pending state.
type Status string

const (
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

// Customer is an account owner. Customers are immutable once created.
type Customer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Account holds a balance for a customer. The account number is an IBAN-like
// string, globally unique and immutable. Balance never goes below zero.
type Account struct {
	ID         int64        `json:"id"`
	Number     string       `json:"account_number"`
	CustomerID int64        `json:"customer_id"`
	Balance    money.Amount `json:"balance"`
}

// Transaction is an append-only ledger entry recording one completed
// transfer. It is never updated or deleted.
type Transaction struct {
	ID            string       `json:"id"`
	FromAccountID int64        `json:"from_account_id"`
	ToAccountID   int64        `json:"to_account_id"`
	Amount        money.Amount `json:"amount"`
	Status        Status       `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Store is the persistence contract for the ledger. Implementations must
// guarantee that Transfer executes its debit, credit and ledger insert as a
// single atomic unit of work, with per-account mutations serialized.
//
// Stores are passed in explicitly; there is no package-level instance.
type Store interface {
	// CreateCustomer inserts a new customer and returns it with its ID set.
	CreateCustomer(ctx context.Context, name string) (Customer, error)

	// CustomerByID looks up a customer. Returns ErrCustomerNotFound if absent.
	CustomerByID(ctx context.Context, id int64) (Customer, error)

	// CustomerByName returns the first customer with the given display name.
	// Returns ErrCustomerNotFound if absent.
	CustomerByName(ctx context.Context, name string) (Customer, error)

	// CreateAccount inserts a new account with the given opening balance.
	// Returns ErrDuplicateAccountNumber if the number is already taken and
	// ErrCustomerNotFound if the owner does not exist.
	CreateAccount(ctx context.Context, customerID int64, number string, opening money.Amount) (Account, error)

	// AccountByNumber performs an exact-match lookup by account number.
	// Returns ErrAccountNotFound if absent.
	AccountByNumber(ctx context.Context, number string) (Account, error)

	// AccountByID looks up an account by its ID.
	// Returns ErrAccountNotFound if absent.
	AccountByID(ctx context.Context, id int64) (Account, error)

	// AccountNumbers lists all account numbers, used to warm lookup filters.
	AccountNumbers(ctx context.Context) ([]string, error)

	// Transfer atomically debits from, credits to, and appends one Completed
	// transaction. The source balance is re-validated under the store's
	// concurrency control; ErrInsufficientFunds is returned without any
	// mutation if it no longer covers the amount. from == to is a recorded
	// no-op. May return ErrConcurrentModification, which the engine retries.
	Transfer(ctx context.Context, fromID, toID int64, amount money.Amount) (Transaction, error)

	// TransactionsByAccount returns all transactions where the account is
	// source or destination, ordered by creation time ascending with ties
	// broken by transaction ID. Reads committed state only.
	TransactionsByAccount(ctx context.Context, accountID int64) ([]Transaction, error)

	// Close releases resources held by the store.
	Close() error
}

// TransferResult describes a completed transfer.
type TransferResult struct {
	TransactionID    string       `json:"transaction_id"`
	FromIBAN         string       `json:"from_iban"`
	FromCustomerName string       `json:"from_customer_name"`
	ToIBAN           string       `json:"to_iban"`
	ToCustomerName   string       `json:"to_customer_name"`
	Amount           money.Amount `json:"amount"`
	Status           Status       `json:"status"`
}

// HistoryEntry is one transaction in an account's history, enriched with
// both parties' account numbers and display names.
type HistoryEntry struct {
	TransactionID    string       `json:"transaction_id"`
	FromIBAN         string       `json:"from_iban"`
	FromCustomerName string       `json:"from_customer_name"`
	ToIBAN           string       `json:"to_iban"`
	ToCustomerName   string       `json:"to_customer_name"`
	Amount           money.Amount `json:"amount"`
	Status           Status       `json:"status"`
	Timestamp        time.Time    `json:"timestamp"`
}

// AccountDetails is the read model for a single account lookup.
type AccountDetails struct {
	CustomerID    int64        `json:"customer_id"`
	AccountID     int64        `json:"account_id"`
	CustomerName  string       `json:"customer_name"`
	AccountNumber string       `json:"account_number"`
	Balance       money.Amount `json:"balance"`
}
