package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"bankledger/pkg/logging"
	"bankledger/pkg/metrics"
	"bankledger/pkg/money"

	"go.uber.org/zap"
)

// AccountResolver resolves an account number to its current committed state.
// The Store satisfies this directly; accountcache.Lookup wraps it with a
// cache and a bloom filter.
type AccountResolver interface {
	AccountByNumber(ctx context.Context, number string) (Account, error)
}

// Config holds the tunable behavior of the Service.
type Config struct {
	// RetryBudget is how many times a transfer is retried after a detected
	// conflict before it is aborted.
	RetryBudget int

	// AllowSelfTransfer permits transfers where source and destination are
	// the same account. Such a transfer is a no-op that still records a
	// Completed transaction. Disabled by default: the same-account request
	// is rejected with ErrSameAccountTransfer.
	AllowSelfTransfer bool

	// MinimumOpeningBalance is the smallest allowed opening deposit.
	MinimumOpeningBalance money.Amount

	// Resolver serves account-by-number reads. Defaults to the Store.
	Resolver AccountResolver

	Logger  *logging.Logger
	Metrics metrics.Collector
}

// DefaultConfig returns the default service configuration: three retries,
// self-transfers rejected, 50.00 minimum opening deposit.
func DefaultConfig() Config {
	return Config{
		RetryBudget:           3,
		AllowSelfTransfer:     false,
		MinimumOpeningBalance: money.FromCents(5000),
	}
}

// Service is the transfer engine and read surface of the ledger.
type Service struct {
	store    Store
	resolver AccountResolver
	logger   *logging.Logger
	metrics  metrics.Collector
	config   Config
}

// NewService creates a Service over the given store.
func NewService(store Store, config Config) *Service {
	if config.RetryBudget <= 0 {
		config.RetryBudget = 3
	}
	resolver := config.Resolver
	if resolver == nil {
		resolver = store
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.Global().Named("ledger")
	}
	collector := config.Metrics
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	return &Service{
		store:    store,
		resolver: resolver,
		logger:   logger,
		metrics:  collector,
		config:   config,
	}
}

// Transfer validates and executes a funds transfer between two accounts as
// one atomic unit of work. Validation failures are reported before any
// mutation; ErrTransferAborted guarantees no partial mutation is visible.
func (s *Service) Transfer(ctx context.Context, fromIBAN, toIBAN string, amount money.Amount) (TransferResult, error) {
	start := time.Now()
	result, err := s.transfer(ctx, fromIBAN, toIBAN, amount)
	s.metrics.RecordTransfer(ClassifyError(err), time.Since(start))

	if err != nil {
		s.logger.Warn("transfer rejected",
			zap.String("from", fromIBAN),
			zap.String("to", toIBAN),
			zap.String("amount", amount.String()),
			zap.String("reason", ClassifyError(err)),
			zap.Error(err),
		)
		return TransferResult{}, err
	}

	s.logger.Info("transfer completed",
		zap.String("transaction_id", result.TransactionID),
		zap.String("from", fromIBAN),
		zap.String("to", toIBAN),
		zap.String("amount", amount.String()),
	)
	return result, nil
}

func (s *Service) transfer(ctx context.Context, fromIBAN, toIBAN string, amount money.Amount) (TransferResult, error) {
	if !amount.IsPositive() {
		return TransferResult{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	from, err := s.resolveAccount(ctx, fromIBAN)
	if err != nil {
		return TransferResult{}, err
	}
	to, err := s.resolveAccount(ctx, toIBAN)
	if err != nil {
		return TransferResult{}, err
	}

	if from.ID == to.ID && !s.config.AllowSelfTransfer {
		return TransferResult{}, fmt.Errorf("%w: %s", ErrSameAccountTransfer, fromIBAN)
	}

	if from.Balance < amount {
		return TransferResult{}, fmt.Errorf("%w: account %s holds %s, requested %s",
			ErrInsufficientFunds, fromIBAN, from.Balance, amount)
	}

	tx, err := s.execute(ctx, from.ID, to.ID, amount)
	if err != nil {
		return TransferResult{}, err
	}

	s.invalidate(ctx, fromIBAN, toIBAN)

	return TransferResult{
		TransactionID:    tx.ID,
		FromIBAN:         fromIBAN,
		FromCustomerName: s.customerName(ctx, from.CustomerID),
		ToIBAN:           toIBAN,
		ToCustomerName:   s.customerName(ctx, to.CustomerID),
		Amount:           tx.Amount,
		Status:           tx.Status,
	}, nil
}

// execute runs the atomic debit+credit+insert, retrying detected conflicts
// within the configured budget. Anything still failing after that is
// surfaced as ErrTransferAborted.
func (s *Service) execute(ctx context.Context, fromID, toID int64, amount money.Amount) (Transaction, error) {
	var lastErr error
	for attempt := 0; attempt <= s.config.RetryBudget; attempt++ {
		tx, err := s.store.Transfer(ctx, fromID, toID, amount)
		if err == nil {
			return tx, nil
		}
		if errors.Is(err, ErrConcurrentModification) {
			lastErr = err
			s.metrics.RecordTransferRetry()
			s.logger.Debug("transfer conflict, retrying",
				zap.Int64("from_id", fromID),
				zap.Int64("to_id", toID),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		if IsValidation(err) || IsNotFound(err) || IsAborted(err) {
			return Transaction{}, err
		}
		return Transaction{}, fmt.Errorf("%w: %v", ErrTransferAborted, err)
	}
	return Transaction{}, fmt.Errorf("%w: retry budget exhausted: %v", ErrTransferAborted, lastErr)
}

// History returns the transaction history for an account, both incoming and
// outgoing, ordered by creation time ascending with ties broken by
// transaction ID. Reads committed state only and never mutates it.
func (s *Service) History(ctx context.Context, iban string) ([]HistoryEntry, error) {
	start := time.Now()
	defer func() { s.metrics.RecordHistoryRead(time.Since(start)) }()

	account, err := s.resolveAccount(ctx, iban)
	if err != nil {
		return nil, err
	}

	txs, err := s.store.TransactionsByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	// Memoize party lookups; a busy account trades with few counterparties.
	accounts := map[int64]Account{account.ID: account}
	names := map[int64]string{}

	entries := make([]HistoryEntry, 0, len(txs))
	for _, tx := range txs {
		fromAcct, err := s.accountByID(ctx, accounts, tx.FromAccountID)
		if err != nil {
			return nil, err
		}
		toAcct, err := s.accountByID(ctx, accounts, tx.ToAccountID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, HistoryEntry{
			TransactionID:    tx.ID,
			FromIBAN:         fromAcct.Number,
			FromCustomerName: s.memoizedCustomerName(ctx, names, fromAcct.CustomerID),
			ToIBAN:           toAcct.Number,
			ToCustomerName:   s.memoizedCustomerName(ctx, names, toAcct.CustomerID),
			Amount:           tx.Amount,
			Status:           tx.Status,
			Timestamp:        tx.CreatedAt,
		})
	}
	return entries, nil
}

// AccountDetails returns the read model for a single account.
func (s *Service) AccountDetails(ctx context.Context, iban string) (AccountDetails, error) {
	account, err := s.resolveAccount(ctx, iban)
	if err != nil {
		return AccountDetails{}, err
	}
	customer, err := s.store.CustomerByID(ctx, account.CustomerID)
	if err != nil {
		return AccountDetails{}, err
	}
	return AccountDetails{
		CustomerID:    customer.ID,
		AccountID:     account.ID,
		CustomerName:  customer.Name,
		AccountNumber: account.Number,
		Balance:       account.Balance,
	}, nil
}

// OpenAccountParams describes an account-opening request.
type OpenAccountParams struct {
	CustomerName string
	// ExistingCustomer links the account to the customer with this display
	// name instead of creating a new customer.
	ExistingCustomer bool
	OpeningBalance   money.Amount
}

var customerNamePattern = regexp.MustCompile(`^[A-Za-z\s]+$`)

// OpenAccount creates an account, and the owning customer when needed.
// The generated account number is IBAN-like: "DE" followed by 20 digits.
func (s *Service) OpenAccount(ctx context.Context, params OpenAccountParams) (AccountDetails, error) {
	name := strings.TrimSpace(params.CustomerName)
	if name == "" || !customerNamePattern.MatchString(name) {
		return AccountDetails{}, fmt.Errorf("%w: %q", ErrInvalidCustomerName, params.CustomerName)
	}
	if params.OpeningBalance < s.config.MinimumOpeningBalance {
		return AccountDetails{}, fmt.Errorf("%w: minimum is %s",
			ErrBelowMinimumDeposit, s.config.MinimumOpeningBalance)
	}

	var customer Customer
	var err error
	if params.ExistingCustomer {
		customer, err = s.store.CustomerByName(ctx, name)
	} else {
		customer, err = s.store.CreateCustomer(ctx, name)
	}
	if err != nil {
		return AccountDetails{}, err
	}

	account, err := s.createAccountWithFreshNumber(ctx, customer.ID, params.OpeningBalance)
	if err != nil {
		return AccountDetails{}, err
	}

	s.observe(account.Number)
	s.logger.Info("account opened",
		zap.String("account_number", account.Number),
		zap.Int64("customer_id", customer.ID),
		zap.String("opening_balance", account.Balance.String()),
	)

	return AccountDetails{
		CustomerID:    customer.ID,
		AccountID:     account.ID,
		CustomerName:  customer.Name,
		AccountNumber: account.Number,
		Balance:       account.Balance,
	}, nil
}

// createAccountWithFreshNumber retries number generation on the rare
// collision with an existing account number.
func (s *Service) createAccountWithFreshNumber(ctx context.Context, customerID int64, opening money.Amount) (Account, error) {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		account, err := s.store.CreateAccount(ctx, customerID, NewAccountNumber(), opening)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, ErrDuplicateAccountNumber) {
			return Account{}, err
		}
		lastErr = err
	}
	return Account{}, lastErr
}

// NewAccountNumber generates an IBAN-like account number: "DE" + 20 digits.
// Uniqueness is enforced by the store, not by the generator.
func NewAccountNumber() string {
	return fmt.Sprintf("DE%010d%010d", rand.Int63n(10_000_000_000), rand.Int63n(10_000_000_000))
}

func (s *Service) resolveAccount(ctx context.Context, iban string) (Account, error) {
	account, err := s.resolver.AccountByNumber(ctx, iban)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, notFoundAccount(iban)
		}
		return Account{}, err
	}
	return account, nil
}

func (s *Service) accountByID(ctx context.Context, memo map[int64]Account, id int64) (Account, error) {
	if account, ok := memo[id]; ok {
		return account, nil
	}
	account, err := s.store.AccountByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	memo[id] = account
	return account, nil
}

func (s *Service) customerName(ctx context.Context, customerID int64) string {
	customer, err := s.store.CustomerByID(ctx, customerID)
	if err != nil {
		return "Unknown"
	}
	return customer.Name
}

func (s *Service) memoizedCustomerName(ctx context.Context, memo map[int64]string, customerID int64) string {
	if name, ok := memo[customerID]; ok {
		return name
	}
	name := s.customerName(ctx, customerID)
	memo[customerID] = name
	return name
}

// invalidate drops cached snapshots for both sides of a transfer, when the
// resolver supports invalidation.
func (s *Service) invalidate(ctx context.Context, numbers ...string) {
	if inv, ok := s.resolver.(interface {
		Invalidate(ctx context.Context, numbers ...string)
	}); ok {
		inv.Invalidate(ctx, numbers...)
	}
}

// observe registers a freshly created account number with the resolver's
// membership filter, when the resolver maintains one.
func (s *Service) observe(number string) {
	if obs, ok := s.resolver.(interface{ Observe(number string) }); ok {
		obs.Observe(number)
	}
}
