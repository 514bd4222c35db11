package ledger_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"bankledger/pkg/ledger"
	"bankledger/pkg/ledger/memory"
	metricsmem "bankledger/pkg/metrics/memory"
	"bankledger/pkg/money"
)

func mustAmount(t *testing.T, s string) money.Amount {
	t.Helper()
	a, err := money.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", s, err)
	}
	return a
}

// fixture creates a service over a memory store with two seeded accounts.
type fixture struct {
	store   *memory.Store
	service *ledger.Service
	metrics *metricsmem.Collector
	from    ledger.AccountDetails
	to      ledger.AccountDetails
}

func setup(t *testing.T, config ledger.Config) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	collector := metricsmem.NewCollector()
	config.Metrics = collector
	service := ledger.NewService(store, config)

	from, err := service.OpenAccount(ctx, ledger.OpenAccountParams{
		CustomerName:   "Arisha Barron",
		OpeningBalance: mustAmount(t, "1000.00"),
	})
	if err != nil {
		t.Fatal(err)
	}
	to, err := service.OpenAccount(ctx, ledger.OpenAccountParams{
		CustomerName:   "Branden Gibson",
		OpeningBalance: mustAmount(t, "50.00"),
	})
	if err != nil {
		t.Fatal(err)
	}

	return &fixture{store: store, service: service, metrics: collector, from: from, to: to}
}

func (f *fixture) balance(t *testing.T, iban string) money.Amount {
	t.Helper()
	details, err := f.service.AccountDetails(context.Background(), iban)
	if err != nil {
		t.Fatalf("AccountDetails(%s) failed: %v", iban, err)
	}
	return details.Balance
}

func TestTransferScenario(t *testing.T) {
	f := setup(t, ledger.DefaultConfig())
	ctx := context.Background()

	result, err := f.service.Transfer(ctx, f.from.AccountNumber, f.to.AccountNumber, mustAmount(t, "500.00"))
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	if result.Status != ledger.StatusCompleted {
		t.Errorf("Status = %s, want Completed", result.Status)
	}
	if result.TransactionID == "" {
		t.Error("Missing transaction ID")
	}
	if result.FromCustomerName != "Arisha Barron" || result.ToCustomerName != "Branden Gibson" {
		t.Errorf("Customer names not resolved: %+v", result)
	}
	if result.Amount.String() != "500.00" {
		t.Errorf("Amount = %s, want 500.00", result.Amount)
	}

	if got := f.balance(t, f.from.AccountNumber).String(); got != "500.00" {
		t.Errorf("Source balance = %s, want 500.00", got)
	}
	if got := f.balance(t, f.to.AccountNumber).String(); got != "550.00" {
		t.Errorf("Destination balance = %s, want 550.00", got)
	}

	history, err := f.service.History(ctx, f.from.AccountNumber)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Status != ledger.StatusCompleted {
		t.Errorf("Expected one completed transaction, got %+v", history)
	}
}

func TestTransferValidation(t *testing.T) {
	f := setup(t, ledger.DefaultConfig())
	ctx := context.Background()
	unknown := "DE9999999999999999"

	tests := []struct {
		name    string
		from    string
		to      string
		amount  string
		wantErr error
	}{
		{name: "zero amount", from: f.from.AccountNumber, to: f.to.AccountNumber, amount: "0", wantErr: ledger.ErrInvalidAmount},
		{name: "negative amount", from: f.from.AccountNumber, to: f.to.AccountNumber, amount: "-5.00", wantErr: ledger.ErrInvalidAmount},
		{name: "unknown source", from: unknown, to: f.to.AccountNumber, amount: "10.00", wantErr: ledger.ErrAccountNotFound},
		{name: "unknown destination", from: f.from.AccountNumber, to: unknown, amount: "10.00", wantErr: ledger.ErrAccountNotFound},
		{name: "same account", from: f.from.AccountNumber, to: f.from.AccountNumber, amount: "10.00", wantErr: ledger.ErrSameAccountTransfer},
		{name: "insufficient funds", from: f.to.AccountNumber, to: f.from.AccountNumber, amount: "500.00", wantErr: ledger.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Transfer(ctx, tt.from, tt.to, mustAmount(t, tt.amount))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Transfer() err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// No validation failure may leave a trace in balances or the ledger.
	if got := f.balance(t, f.from.AccountNumber).String(); got != "1000.00" {
		t.Errorf("Source balance changed by rejected transfers: %s", got)
	}
	if got := f.balance(t, f.to.AccountNumber).String(); got != "50.00" {
		t.Errorf("Destination balance changed by rejected transfers: %s", got)
	}
	history, err := f.service.History(ctx, f.from.AccountNumber)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Errorf("Rejected transfers recorded transactions: %+v", history)
	}
}

func TestTransferReportsMissingIBAN(t *testing.T) {
	f := setup(t, ledger.DefaultConfig())
	unknown := "DE9999999999999999"

	_, err := f.service.Transfer(context.Background(), f.from.AccountNumber, unknown, mustAmount(t, "10.00"))
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("Expected ErrAccountNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), unknown) {
		t.Errorf("Error does not name the missing IBAN: %v", err)
	}
}

func TestSelfTransferAllowedIsRecordedNoOp(t *testing.T) {
	config := ledger.DefaultConfig()
	config.AllowSelfTransfer = true
	f := setup(t, config)
	ctx := context.Background()

	result, err := f.service.Transfer(ctx, f.from.AccountNumber, f.from.AccountNumber, mustAmount(t, "10.00"))
	if err != nil {
		t.Fatalf("Self-transfer failed: %v", err)
	}
	if got := f.balance(t, f.from.AccountNumber).String(); got != "1000.00" {
		t.Errorf("Self-transfer changed balance: %s", got)
	}

	history, err := f.service.History(ctx, f.from.AccountNumber)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].TransactionID != result.TransactionID {
		t.Errorf("Self-transfer not recorded: %+v", history)
	}
}

// conflictStore injects a number of conflicts before delegating.
type conflictStore struct {
	ledger.Store
	remaining int32
}

func (c *conflictStore) Transfer(ctx context.Context, fromID, toID int64, amount money.Amount) (ledger.Transaction, error) {
	if atomic.AddInt32(&c.remaining, -1) >= 0 {
		return ledger.Transaction{}, ledger.ErrConcurrentModification
	}
	return c.Store.Transfer(ctx, fromID, toID, amount)
}

func TestTransferRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	store := &conflictStore{Store: inner, remaining: 2}
	collector := metricsmem.NewCollector()

	config := ledger.DefaultConfig()
	config.Metrics = collector
	service := ledger.NewService(store, config)

	from, err := service.OpenAccount(ctx, ledger.OpenAccountParams{CustomerName: "Retry Source", OpeningBalance: mustAmount(t, "100.00")})
	if err != nil {
		t.Fatal(err)
	}
	to, err := service.OpenAccount(ctx, ledger.OpenAccountParams{CustomerName: "Retry Sink", OpeningBalance: mustAmount(t, "50.00")})
	if err != nil {
		t.Fatal(err)
	}

	result, err := service.Transfer(ctx, from.AccountNumber, to.AccountNumber, mustAmount(t, "25.00"))
	if err != nil {
		t.Fatalf("Transfer should succeed after retries, got %v", err)
	}
	if result.Status != ledger.StatusCompleted {
		t.Errorf("Status = %s, want Completed", result.Status)
	}
	if got := collector.Retries(); got != 2 {
		t.Errorf("Retries = %d, want 2", got)
	}
}

func TestTransferAbortedAfterRetryBudget(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	store := &conflictStore{Store: inner, remaining: 1 << 30}

	config := ledger.DefaultConfig()
	config.RetryBudget = 2
	service := ledger.NewService(store, config)

	from, err := service.OpenAccount(ctx, ledger.OpenAccountParams{CustomerName: "Budget Source", OpeningBalance: mustAmount(t, "100.00")})
	if err != nil {
		t.Fatal(err)
	}
	to, err := service.OpenAccount(ctx, ledger.OpenAccountParams{CustomerName: "Budget Sink", OpeningBalance: mustAmount(t, "50.00")})
	if err != nil {
		t.Fatal(err)
	}

	_, err = service.Transfer(ctx, from.AccountNumber, to.AccountNumber, mustAmount(t, "25.00"))
	if !errors.Is(err, ledger.ErrTransferAborted) {
		t.Fatalf("Expected ErrTransferAborted after retry budget, got %v", err)
	}
}

// brokenStore fails every transfer with an infrastructure error.
type brokenStore struct {
	ledger.Store
}

func (b *brokenStore) Transfer(ctx context.Context, fromID, toID int64, amount money.Amount) (ledger.Transaction, error) {
	return ledger.Transaction{}, errors.New("write: broken pipe")
}

func TestTransferAbortedOnStorageFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()

	config := ledger.DefaultConfig()
	service := ledger.NewService(&brokenStore{Store: inner}, config)

	from, err := service.OpenAccount(ctx, ledger.OpenAccountParams{CustomerName: "Fault Source", OpeningBalance: mustAmount(t, "100.00")})
	if err != nil {
		t.Fatal(err)
	}
	to, err := service.OpenAccount(ctx, ledger.OpenAccountParams{CustomerName: "Fault Sink", OpeningBalance: mustAmount(t, "50.00")})
	if err != nil {
		t.Fatal(err)
	}

	_, err = service.Transfer(ctx, from.AccountNumber, to.AccountNumber, mustAmount(t, "25.00"))
	if !errors.Is(err, ledger.ErrTransferAborted) {
		t.Fatalf("Expected ErrTransferAborted, got %v", err)
	}

	// Post-failure state: both balances unchanged, no transaction row.
	fromDetails, err := service.AccountDetails(ctx, from.AccountNumber)
	if err != nil {
		t.Fatal(err)
	}
	if fromDetails.Balance.String() != "100.00" {
		t.Errorf("Source balance = %s, want 100.00", fromDetails.Balance)
	}
	history, err := service.History(ctx, from.AccountNumber)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Errorf("Aborted transfer recorded a transaction: %+v", history)
	}
}

func TestConcurrentDrainExactSplit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := ledger.NewService(store, ledger.DefaultConfig())

	source, err := service.OpenAccount(ctx, ledger.OpenAccountParams{CustomerName: "Drain Source", OpeningBalance: mustAmount(t, "500.00")})
	if err != nil {
		t.Fatal(err)
	}

	const workers = 100
	sinks := make([]ledger.AccountDetails, workers)
	for i := range sinks {
		sink, err := service.OpenAccount(ctx, ledger.OpenAccountParams{CustomerName: "Drain Sink", OpeningBalance: mustAmount(t, "50.00")})
		if err != nil {
			t.Fatal(err)
		}
		sinks[i] = sink
	}

	amount := mustAmount(t, "10.00")
	var wg sync.WaitGroup
	var completed, insufficient int64
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(sink ledger.AccountDetails) {
			defer wg.Done()
			_, err := service.Transfer(ctx, source.AccountNumber, sink.AccountNumber, amount)
			switch {
			case err == nil:
				atomic.AddInt64(&completed, 1)
			case errors.Is(err, ledger.ErrInsufficientFunds):
				atomic.AddInt64(&insufficient, 1)
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}(sinks[i])
	}
	wg.Wait()

	// 500.00 / 10.00: exactly 50 transfers complete, never an overdraft,
	// never a lost decrement.
	if completed != 50 || insufficient != 50 {
		t.Errorf("completed=%d insufficient=%d, want 50/50", completed, insufficient)
	}
	details, err := service.AccountDetails(ctx, source.AccountNumber)
	if err != nil {
		t.Fatal(err)
	}
	if details.Balance.String() != "0.00" {
		t.Errorf("Source balance = %s, want 0.00", details.Balance)
	}
}

func TestConservationUnderOpposingTransfers(t *testing.T) {
	f := setup(t, ledger.DefaultConfig())
	ctx := context.Background()

	const n = 100
	amount := mustAmount(t, "0.01")
	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := f.service.Transfer(ctx, f.from.AccountNumber, f.to.AccountNumber, amount); err != nil {
				t.Errorf("forward: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := f.service.Transfer(ctx, f.to.AccountNumber, f.from.AccountNumber, amount); err != nil {
				t.Errorf("backward: %v", err)
			}
		}()
	}
	wg.Wait()

	total := f.balance(t, f.from.AccountNumber).Add(f.balance(t, f.to.AccountNumber))
	if total.String() != "1050.00" {
		t.Errorf("Conservation violated: total = %s, want 1050.00", total)
	}
}

func TestHistoryOrderingAndIdempotence(t *testing.T) {
	f := setup(t, ledger.DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := f.service.Transfer(ctx, f.from.AccountNumber, f.to.AccountNumber, mustAmount(t, "1.00")); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.service.Transfer(ctx, f.to.AccountNumber, f.from.AccountNumber, mustAmount(t, "2.00")); err != nil {
		t.Fatal(err)
	}

	first, err := f.service.History(ctx, f.from.AccountNumber)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 6 {
		t.Fatalf("History length = %d, want 6", len(first))
	}
	for i := 1; i < len(first); i++ {
		if first[i].Timestamp.Before(first[i-1].Timestamp) {
			t.Errorf("History out of order at %d", i)
		}
	}

	// The incoming transfer appears with the roles swapped.
	last := first[len(first)-1]
	if last.FromIBAN != f.to.AccountNumber || last.ToIBAN != f.from.AccountNumber {
		t.Errorf("Incoming transfer roles wrong: %+v", last)
	}
	if last.FromCustomerName != "Branden Gibson" || last.ToCustomerName != "Arisha Barron" {
		t.Errorf("History names not resolved: %+v", last)
	}

	second, err := f.service.History(ctx, f.from.AccountNumber)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != len(first) {
		t.Fatalf("Repeated read changed length")
	}
	for i := range first {
		if first[i].TransactionID != second[i].TransactionID {
			t.Errorf("Repeated read changed order at %d", i)
		}
	}
}

func TestHistoryUnknownIBAN(t *testing.T) {
	f := setup(t, ledger.DefaultConfig())
	if _, err := f.service.History(context.Background(), "DE9999999999999999"); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound, got %v", err)
	}
}

func TestOpenAccount(t *testing.T) {
	f := setup(t, ledger.DefaultConfig())
	ctx := context.Background()

	t.Run("new customer", func(t *testing.T) {
		details, err := f.service.OpenAccount(ctx, ledger.OpenAccountParams{
			CustomerName:   "Rhonda Church",
			OpeningBalance: mustAmount(t, "75.00"),
		})
		if err != nil {
			t.Fatalf("OpenAccount failed: %v", err)
		}
		if !strings.HasPrefix(details.AccountNumber, "DE") || len(details.AccountNumber) != 22 {
			t.Errorf("Unexpected account number format: %q", details.AccountNumber)
		}
		if details.Balance.String() != "75.00" {
			t.Errorf("Balance = %s, want 75.00", details.Balance)
		}
	})

	t.Run("existing customer gets second account", func(t *testing.T) {
		details, err := f.service.OpenAccount(ctx, ledger.OpenAccountParams{
			CustomerName:     "Arisha Barron",
			ExistingCustomer: true,
			OpeningBalance:   mustAmount(t, "60.00"),
		})
		if err != nil {
			t.Fatalf("OpenAccount failed: %v", err)
		}
		if details.CustomerID != f.from.CustomerID {
			t.Errorf("New account not linked to existing customer: %+v", details)
		}
		if details.AccountNumber == f.from.AccountNumber {
			t.Error("Account number reused")
		}
	})

	t.Run("unknown existing customer", func(t *testing.T) {
		_, err := f.service.OpenAccount(ctx, ledger.OpenAccountParams{
			CustomerName:     "Nobody Here",
			ExistingCustomer: true,
			OpeningBalance:   mustAmount(t, "60.00"),
		})
		if !errors.Is(err, ledger.ErrCustomerNotFound) {
			t.Errorf("Expected ErrCustomerNotFound, got %v", err)
		}
	})

	t.Run("invalid names", func(t *testing.T) {
		for _, name := range []string{"", "   ", "Jane42", "O'Brien"} {
			_, err := f.service.OpenAccount(ctx, ledger.OpenAccountParams{
				CustomerName:   name,
				OpeningBalance: mustAmount(t, "60.00"),
			})
			if !errors.Is(err, ledger.ErrInvalidCustomerName) {
				t.Errorf("Name %q: expected ErrInvalidCustomerName, got %v", name, err)
			}
		}
	})

	t.Run("below minimum deposit", func(t *testing.T) {
		_, err := f.service.OpenAccount(ctx, ledger.OpenAccountParams{
			CustomerName:   "Georgina Hazel",
			OpeningBalance: mustAmount(t, "49.99"),
		})
		if !errors.Is(err, ledger.ErrBelowMinimumDeposit) {
			t.Errorf("Expected ErrBelowMinimumDeposit, got %v", err)
		}
	})
}

func TestSeedDemo(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	if err := ledger.SeedDemo(ctx, store); err != nil {
		t.Fatalf("SeedDemo failed: %v", err)
	}
	// Idempotent on a second run.
	if err := ledger.SeedDemo(ctx, store); err != nil {
		t.Fatalf("Second SeedDemo failed: %v", err)
	}

	service := ledger.NewService(store, ledger.DefaultConfig())
	details, err := service.AccountDetails(ctx, "DE1000000000000001")
	if err != nil {
		t.Fatal(err)
	}
	if details.CustomerName != "Arisha Barron" || details.Balance.String() != "5000.00" {
		t.Errorf("Unexpected seeded account: %+v", details)
	}

	// One customer holds two seeded accounts.
	second, err := service.AccountDetails(ctx, "DE4000000000000004")
	if err != nil {
		t.Fatal(err)
	}
	if second.CustomerID != details.CustomerID {
		t.Errorf("Seeded accounts not linked to one customer: %+v vs %+v", details, second)
	}

	numbers, err := store.AccountNumbers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(numbers) != 5 {
		t.Errorf("Seeded %d accounts, want 5", len(numbers))
	}
}
