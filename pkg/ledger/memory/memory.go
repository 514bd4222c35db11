// Package memory provides an in-memory ledger.Store, used in tests and when
// the service runs without a database.
//
// Concurrency model: every account carries its own mutex, and a transfer
// locks both accounts in ascending account-ID order regardless of which side
// is the source. This serializes balance mutations per account and makes the
// classic A->B / B->A lock cycle impossible.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"bankledger/pkg/ledger"
	"bankledger/pkg/money"

	"github.com/google/uuid"
)

// Store is an in-memory implementation of ledger.Store.
type Store struct {
	// mu protects the maps and ID counters, not account balances.
	mu             sync.RWMutex
	nextCustomerID int64
	nextAccountID  int64
	customers      map[int64]ledger.Customer
	accounts       map[int64]*account
	byNumber       map[string]int64

	// ledgerMu protects the transaction log. It is only ever taken while
	// already holding the involved account locks (or alone, for reads), so
	// readers observe committed transfers only.
	ledgerMu     sync.Mutex
	transactions []ledger.Transaction
}

// account pairs the balance with the mutex that serializes its mutations.
type account struct {
	mu   sync.Mutex
	data ledger.Account
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		customers: make(map[int64]ledger.Customer),
		accounts:  make(map[int64]*account),
		byNumber:  make(map[string]int64),
	}
}

func (s *Store) CreateCustomer(ctx context.Context, name string) (ledger.Customer, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Customer{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCustomerID++
	customer := ledger.Customer{ID: s.nextCustomerID, Name: name}
	s.customers[customer.ID] = customer
	return customer, nil
}

func (s *Store) CustomerByID(ctx context.Context, id int64) (ledger.Customer, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Customer{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	customer, ok := s.customers[id]
	if !ok {
		return ledger.Customer{}, ledger.ErrCustomerNotFound
	}
	return customer, nil
}

func (s *Store) CustomerByName(ctx context.Context, name string) (ledger.Customer, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Customer{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Lowest ID wins when display names collide, matching the SQL stores.
	var found ledger.Customer
	var ok bool
	for _, customer := range s.customers {
		if customer.Name == name && (!ok || customer.ID < found.ID) {
			found, ok = customer, true
		}
	}
	if !ok {
		return ledger.Customer{}, ledger.ErrCustomerNotFound
	}
	return found, nil
}

func (s *Store) CreateAccount(ctx context.Context, customerID int64, number string, opening money.Amount) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}
	if opening.Cents() < 0 {
		return ledger.Account{}, ledger.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[customerID]; !ok {
		return ledger.Account{}, ledger.ErrCustomerNotFound
	}
	if _, ok := s.byNumber[number]; ok {
		return ledger.Account{}, ledger.ErrDuplicateAccountNumber
	}
	s.nextAccountID++
	acct := &account{data: ledger.Account{
		ID:         s.nextAccountID,
		Number:     number,
		CustomerID: customerID,
		Balance:    opening,
	}}
	s.accounts[acct.data.ID] = acct
	s.byNumber[number] = acct.data.ID
	return acct.data, nil
}

func (s *Store) AccountByNumber(ctx context.Context, number string) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}
	s.mu.RLock()
	id, ok := s.byNumber[number]
	s.mu.RUnlock()
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return s.AccountByID(ctx, id)
}

func (s *Store) AccountByID(ctx context.Context, id int64) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}
	s.mu.RLock()
	acct, ok := s.accounts[id]
	s.mu.RUnlock()
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.data, nil
}

func (s *Store) AccountNumbers(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	numbers := make([]string, 0, len(s.byNumber))
	for number := range s.byNumber {
		numbers = append(numbers, number)
	}
	sort.Strings(numbers)
	return numbers, nil
}

// Transfer debits from, credits to, and appends one Completed transaction,
// all inside the ordered account locks. The source balance is re-validated
// under its lock; a failure leaves both balances and the ledger untouched.
func (s *Store) Transfer(ctx context.Context, fromID, toID int64, amount money.Amount) (ledger.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Transaction{}, err
	}
	if !amount.IsPositive() {
		return ledger.Transaction{}, ledger.ErrInvalidAmount
	}

	s.mu.RLock()
	from, okFrom := s.accounts[fromID]
	to, okTo := s.accounts[toID]
	s.mu.RUnlock()
	if !okFrom || !okTo {
		return ledger.Transaction{}, ledger.ErrAccountNotFound
	}

	unlock := s.lockPair(from, to)
	defer unlock()

	if from.data.Balance < amount {
		return ledger.Transaction{}, ledger.ErrInsufficientFunds
	}

	// Self-transfer: balances untouched, the ledger entry is still written.
	if fromID != toID {
		from.data.Balance = from.data.Balance.Sub(amount)
		to.data.Balance = to.data.Balance.Add(amount)
	}

	tx := ledger.Transaction{
		ID:            uuid.NewString(),
		FromAccountID: fromID,
		ToAccountID:   toID,
		Amount:        amount,
		Status:        ledger.StatusCompleted,
		CreatedAt:     time.Now().UTC(),
	}

	s.ledgerMu.Lock()
	s.transactions = append(s.transactions, tx)
	s.ledgerMu.Unlock()

	return tx, nil
}

// lockPair acquires both account locks in ascending account-ID order and
// returns the matching unlock function. A self-transfer locks once.
func (s *Store) lockPair(a, b *account) func() {
	if a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}
	first, second := a, b
	if second.data.ID < first.data.ID {
		first, second = second, first
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

func (s *Store) TransactionsByAccount(ctx context.Context, accountID int64) ([]ledger.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.ledgerMu.Lock()
	var out []ledger.Transaction
	for _, tx := range s.transactions {
		if tx.FromAccountID == accountID || tx.ToAccountID == accountID {
			out = append(out, tx)
		}
	}
	s.ledgerMu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Close() error {
	return nil
}
