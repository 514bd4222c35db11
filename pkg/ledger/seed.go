package ledger

import (
	"context"
	"errors"
	"fmt"

	"bankledger/pkg/money"
)

// demoAccount pairs a fixed account number with its owner and opening balance.
type demoAccount struct {
	number   string
	customer string
	opening  money.Amount
}

var demoCustomers = []string{
	"Arisha Barron",
	"Branden Gibson",
	"Rhonda Church",
	"Georgina Hazel",
}

var demoAccounts = []demoAccount{
	{number: "DE1000000000000001", customer: "Arisha Barron", opening: money.FromCents(500000)},
	{number: "DE2000000000000002", customer: "Branden Gibson", opening: money.FromCents(300000)},
	{number: "DE3000000000000003", customer: "Rhonda Church", opening: money.FromCents(400000)},
	{number: "DE4000000000000004", customer: "Arisha Barron", opening: money.FromCents(250000)},
	{number: "DE5000000000000005", customer: "Georgina Hazel", opening: money.FromCents(600000)},
}

// SeedDemo populates the store with a fixed set of demo customers and
// accounts, including one customer holding two accounts. It is a no-op when
// the data is already present.
func SeedDemo(ctx context.Context, store Store) error {
	if _, err := store.AccountByNumber(ctx, demoAccounts[0].number); err == nil {
		return nil
	} else if !errors.Is(err, ErrAccountNotFound) {
		return err
	}

	customers := make(map[string]Customer, len(demoCustomers))
	for _, name := range demoCustomers {
		customer, err := store.CreateCustomer(ctx, name)
		if err != nil {
			return fmt.Errorf("seed customer %s: %w", name, err)
		}
		customers[name] = customer
	}

	for _, acct := range demoAccounts {
		owner, ok := customers[acct.customer]
		if !ok {
			return fmt.Errorf("seed account %s: unknown customer %s", acct.number, acct.customer)
		}
		if _, err := store.CreateAccount(ctx, owner.ID, acct.number, acct.opening); err != nil {
			return fmt.Errorf("seed account %s: %w", acct.number, err)
		}
	}
	return nil
}
