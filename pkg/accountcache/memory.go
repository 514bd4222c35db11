package accountcache

import (
	"context"
	"sync"
	"time"

	"bankledger/pkg/ledger"
)

// Memory is an in-process snapshot cache with TTL expiration and periodic
// cleanup of expired entries.
type Memory struct {
	mu   sync.RWMutex
	data map[string]memoryEntry

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	wg            sync.WaitGroup
}

type memoryEntry struct {
	account   ledger.Account
	expiresAt time.Time
}

// MemoryConfig holds configuration for the in-process cache.
type MemoryConfig struct {
	// CleanupInterval is how often expired entries are swept out.
	CleanupInterval time.Duration
}

// NewMemory creates an in-process cache and starts its cleanup goroutine.
func NewMemory(config MemoryConfig) *Memory {
	if config.CleanupInterval == 0 {
		config.CleanupInterval = time.Minute
	}
	m := &Memory{
		data:          make(map[string]memoryEntry),
		cleanupTicker: time.NewTicker(config.CleanupInterval),
		stopCleanup:   make(chan struct{}),
	}
	m.wg.Add(1)
	go m.cleanup()
	return m
}

func (m *Memory) Get(ctx context.Context, number string) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}
	m.mu.RLock()
	entry, ok := m.data[number]
	m.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return ledger.Account{}, ErrNotCached
	}
	return entry.account, nil
}

func (m *Memory) Set(ctx context.Context, number string, account ledger.Account, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.data[number] = memoryEntry{account: account, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, number string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.data, number)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Name() string {
	return "memory"
}

func (m *Memory) Close() error {
	close(m.stopCleanup)
	m.cleanupTicker.Stop()
	m.wg.Wait()
	return nil
}

func (m *Memory) cleanup() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCleanup:
			return
		case <-m.cleanupTicker.C:
			now := time.Now()
			m.mu.Lock()
			for number, entry := range m.data {
				if now.After(entry.expiresAt) {
					delete(m.data, number)
				}
			}
			m.mu.Unlock()
		}
	}
}
