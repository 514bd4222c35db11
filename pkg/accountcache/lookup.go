package accountcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"bankledger/pkg/ledger"
	"bankledger/pkg/logging"
	"bankledger/pkg/metrics"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Source is the authoritative backend behind a Lookup.
type Source interface {
	AccountByNumber(ctx context.Context, number string) (ledger.Account, error)
	AccountNumbers(ctx context.Context) ([]string, error)
}

// LookupConfig holds configuration for a Lookup.
type LookupConfig struct {
	// TTL bounds how long a snapshot may be served without a transfer
	// invalidating it first.
	TTL time.Duration

	// ExpectedAccounts sizes the bloom filter.
	ExpectedAccounts uint

	// FalsePositiveRate is the bloom filter's target false-positive rate.
	FalsePositiveRate float64

	Logger  *logging.Logger
	Metrics metrics.Collector
}

// DefaultLookupConfig returns the default lookup configuration.
func DefaultLookupConfig() LookupConfig {
	return LookupConfig{
		TTL:               30 * time.Second,
		ExpectedAccounts:  100000,
		FalsePositiveRate: 0.01,
	}
}

// Lookup resolves account numbers through a bloom filter, a snapshot cache
// and a single-flight group, falling back to the source store.
//
// The bloom filter holds every account number this service has seen: it is
// warmed from the store at construction and extended on account creation.
// A number the filter has never seen is rejected without touching the cache
// or the store, which assumes this service is the only writer of accounts.
type Lookup struct {
	source Source
	cache  Cache
	config LookupConfig

	filterMu sync.RWMutex
	filter   *bloom.BloomFilter

	sf      singleflight.Group
	logger  *logging.Logger
	metrics metrics.Collector
}

// NewLookup builds a Lookup and warms the bloom filter from the source.
func NewLookup(ctx context.Context, source Source, cache Cache, config LookupConfig) (*Lookup, error) {
	if config.TTL <= 0 {
		config.TTL = 30 * time.Second
	}
	if config.ExpectedAccounts == 0 {
		config.ExpectedAccounts = 100000
	}
	if config.FalsePositiveRate <= 0 || config.FalsePositiveRate >= 1 {
		config.FalsePositiveRate = 0.01
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.Global().Named("accountcache")
	}
	collector := config.Metrics
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}

	l := &Lookup{
		source:  source,
		cache:   cache,
		config:  config,
		filter:  bloom.NewWithEstimates(config.ExpectedAccounts, config.FalsePositiveRate),
		logger:  logger,
		metrics: collector,
	}

	numbers, err := source.AccountNumbers(ctx)
	if err != nil {
		return nil, err
	}
	for _, number := range numbers {
		l.filter.Add([]byte(number))
	}
	logger.Info("lookup filter warmed", zap.Int("accounts", len(numbers)))

	return l, nil
}

// AccountByNumber resolves an account number to its current snapshot.
// Returns ledger.ErrAccountNotFound for numbers that cannot exist.
func (l *Lookup) AccountByNumber(ctx context.Context, number string) (ledger.Account, error) {
	start := time.Now()

	l.filterMu.RLock()
	mayExist := l.filter.Test([]byte(number))
	l.filterMu.RUnlock()
	if !mayExist {
		l.metrics.RecordLookup(false, time.Since(start))
		return ledger.Account{}, ledger.ErrAccountNotFound
	}

	account, err := l.cache.Get(ctx, number)
	if err == nil {
		l.metrics.RecordLookup(true, time.Since(start))
		return account, nil
	}
	if !errors.Is(err, ErrNotCached) {
		// Degraded cache is not fatal; fall through to the store.
		l.logger.Warn("cache read failed", zap.String("cache", l.cache.Name()), zap.Error(err))
	}

	result, err, _ := l.sf.Do(number, func() (interface{}, error) {
		account, err := l.source.AccountByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		if err := l.cache.Set(ctx, number, account, l.config.TTL); err != nil {
			l.logger.Warn("cache write failed", zap.String("cache", l.cache.Name()), zap.Error(err))
		}
		return account, nil
	})
	l.metrics.RecordLookup(false, time.Since(start))
	if err != nil {
		return ledger.Account{}, err
	}
	return result.(ledger.Account), nil
}

// Observe registers a freshly created account number with the filter.
func (l *Lookup) Observe(number string) {
	l.filterMu.Lock()
	l.filter.Add([]byte(number))
	l.filterMu.Unlock()
}

// Invalidate drops cached snapshots for the given numbers. Called after
// every committed transfer for both involved accounts.
func (l *Lookup) Invalidate(ctx context.Context, numbers ...string) {
	for _, number := range numbers {
		if err := l.cache.Delete(ctx, number); err != nil {
			l.logger.Warn("cache invalidation failed",
				zap.String("cache", l.cache.Name()),
				zap.String("account_number", number),
				zap.Error(err),
			)
		}
	}
}

// Close releases the underlying cache.
func (l *Lookup) Close() error {
	return l.cache.Close()
}
