// Package resilience wraps a ledger.Store with circuit breaker and timeout
// protection. Domain outcomes such as insufficient funds or a missing
// account are normal responses and never trip the breaker; only
// infrastructure failures count.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bankledger/pkg/ledger"
	"bankledger/pkg/logging"
	"bankledger/pkg/metrics"
	"bankledger/pkg/money"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config holds resilience configuration for a wrapped store.
type Config struct {
	// Name identifies the breaker in logs and metrics.
	Name string

	// Timeout bounds each store operation. Zero disables the bound.
	Timeout time.Duration

	// MaxRequests is the number of probe requests allowed while half-open.
	MaxRequests uint32

	// Interval is the cyclic period for clearing failure counts while closed.
	Interval time.Duration

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration

	// ConsecutiveFailures trips the breaker once reached.
	ConsecutiveFailures uint32

	Logger  *logging.Logger
	Metrics metrics.Collector
}

// DefaultConfig returns sensible defaults for a database-backed store.
func DefaultConfig() Config {
	return Config{
		Name:                "store",
		Timeout:             5 * time.Second,
		MaxRequests:         3,
		Interval:            60 * time.Second,
		OpenTimeout:         30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Store wraps a ledger.Store with a circuit breaker.
type Store struct {
	inner   ledger.Store
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *logging.Logger
}

// NewStore wraps the given store.
func NewStore(inner ledger.Store, config Config) *Store {
	if config.Name == "" {
		config.Name = "store"
	}
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = 5
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.Global().Named("resilience").Named(config.Name)
	}
	collector := config.Metrics
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ConsecutiveFailures
		},
		// Domain errors are valid responses from a healthy store.
		IsSuccessful: func(err error) bool {
			return err == nil || isDomainError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			collector.RecordCircuitState(name, toCircuitState(to))
		},
	}

	return &Store{
		inner:   inner,
		cb:      gobreaker.NewCircuitBreaker(settings),
		timeout: config.Timeout,
		logger:  logger,
	}
}

func isDomainError(err error) bool {
	return ledger.IsValidation(err) ||
		ledger.IsNotFound(err) ||
		errors.Is(err, ledger.ErrConcurrentModification) ||
		errors.Is(err, ledger.ErrDuplicateAccountNumber)
}

func toCircuitState(state gobreaker.State) metrics.CircuitState {
	switch state {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

// do runs op through the breaker with the configured timeout.
func (s *Store) do(ctx context.Context, op func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.cb.Execute(func() (interface{}, error) {
		return op(ctx)
	})
}

func isBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// readErr maps breaker rejections on the read path to ErrStoreUnavailable.
func readErr(err error) error {
	if isBreakerOpen(err) {
		return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	return err
}

func (s *Store) CreateCustomer(ctx context.Context, name string) (ledger.Customer, error) {
	v, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.inner.CreateCustomer(ctx, name)
	})
	if err != nil {
		return ledger.Customer{}, readErr(err)
	}
	return v.(ledger.Customer), nil
}

func (s *Store) CustomerByID(ctx context.Context, id int64) (ledger.Customer, error) {
	v, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.inner.CustomerByID(ctx, id)
	})
	if err != nil {
		return ledger.Customer{}, readErr(err)
	}
	return v.(ledger.Customer), nil
}

func (s *Store) CustomerByName(ctx context.Context, name string) (ledger.Customer, error) {
	v, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.inner.CustomerByName(ctx, name)
	})
	if err != nil {
		return ledger.Customer{}, readErr(err)
	}
	return v.(ledger.Customer), nil
}

func (s *Store) CreateAccount(ctx context.Context, customerID int64, number string, opening money.Amount) (ledger.Account, error) {
	v, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.inner.CreateAccount(ctx, customerID, number, opening)
	})
	if err != nil {
		return ledger.Account{}, readErr(err)
	}
	return v.(ledger.Account), nil
}

func (s *Store) AccountByNumber(ctx context.Context, number string) (ledger.Account, error) {
	v, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.inner.AccountByNumber(ctx, number)
	})
	if err != nil {
		return ledger.Account{}, readErr(err)
	}
	return v.(ledger.Account), nil
}

func (s *Store) AccountByID(ctx context.Context, id int64) (ledger.Account, error) {
	v, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.inner.AccountByID(ctx, id)
	})
	if err != nil {
		return ledger.Account{}, readErr(err)
	}
	return v.(ledger.Account), nil
}

func (s *Store) AccountNumbers(ctx context.Context) ([]string, error) {
	v, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.inner.AccountNumbers(ctx)
	})
	if err != nil {
		return nil, readErr(err)
	}
	return v.([]string), nil
}

// Transfer maps breaker rejections and timeouts to ErrTransferAborted: the
// transfer either committed before the fault or not at all, and the inner
// store's atomicity guarantees no partial mutation either way.
func (s *Store) Transfer(ctx context.Context, fromID, toID int64, amount money.Amount) (ledger.Transaction, error) {
	v, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.inner.Transfer(ctx, fromID, toID, amount)
	})
	if err != nil {
		if isBreakerOpen(err) {
			s.logger.Warn("transfer rejected by open circuit",
				zap.Int64("from_id", fromID),
				zap.Int64("to_id", toID),
			)
			return ledger.Transaction{}, fmt.Errorf("%w: %v", ledger.ErrTransferAborted, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ledger.Transaction{}, fmt.Errorf("%w: storage timeout: %v", ledger.ErrTransferAborted, err)
		}
		return ledger.Transaction{}, err
	}
	return v.(ledger.Transaction), nil
}

func (s *Store) TransactionsByAccount(ctx context.Context, accountID int64) ([]ledger.Transaction, error) {
	v, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.inner.TransactionsByAccount(ctx, accountID)
	})
	if err != nil {
		return nil, readErr(err)
	}
	return v.([]ledger.Transaction), nil
}

func (s *Store) Close() error {
	return s.inner.Close()
}
