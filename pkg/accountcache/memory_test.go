package accountcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"bankledger/pkg/ledger"
	"bankledger/pkg/money"
)

func testAccount() ledger.Account {
	return ledger.Account{
		ID:         1,
		Number:     "DE1000000000000001",
		CustomerID: 7,
		Balance:    money.FromCents(50000),
	}
}

func TestMemorySetGet(t *testing.T) {
	m := NewMemory(MemoryConfig{})
	defer m.Close()
	ctx := context.Background()

	account := testAccount()
	if err := m.Set(ctx, account.Number, account, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := m.Get(ctx, account.Number)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != account {
		t.Errorf("Get = %+v, want %+v", got, account)
	}
}

func TestMemoryGetMissing(t *testing.T) {
	m := NewMemory(MemoryConfig{})
	defer m.Close()

	if _, err := m.Get(context.Background(), "DE9999999999999999"); !errors.Is(err, ErrNotCached) {
		t.Errorf("Expected ErrNotCached, got %v", err)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	m := NewMemory(MemoryConfig{CleanupInterval: time.Hour})
	defer m.Close()
	ctx := context.Background()

	account := testAccount()
	if err := m.Set(ctx, account.Number, account, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := m.Get(ctx, account.Number); !errors.Is(err, ErrNotCached) {
		t.Errorf("Expected ErrNotCached after TTL, got %v", err)
	}
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory(MemoryConfig{})
	defer m.Close()
	ctx := context.Background()

	account := testAccount()
	if err := m.Set(ctx, account.Number, account, time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, account.Number); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Get(ctx, account.Number); !errors.Is(err, ErrNotCached) {
		t.Errorf("Expected ErrNotCached after delete, got %v", err)
	}

	// Deleting an absent entry is not an error.
	if err := m.Delete(ctx, "DE9999999999999999"); err != nil {
		t.Errorf("Delete of absent entry failed: %v", err)
	}
}
