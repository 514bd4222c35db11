// Package postgres provides the PostgreSQL-backed ledger.Store.
//
// A transfer runs inside one SQL transaction: both account rows are locked
// with SELECT ... FOR UPDATE in ascending account-ID order, the source
// balance is re-checked under the lock, then two balance updates and one
// ledger insert commit together. Serialization failures and detected
// deadlocks surface as ledger.ErrConcurrentModification so the engine can
// retry them.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bankledger/pkg/ledger"
	"bankledger/pkg/money"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store is a PostgreSQL implementation of ledger.Store.
type Store struct {
	db *sql.DB
}

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DefaultConfig returns default PostgreSQL configuration.
func DefaultConfig() Config {
	return Config{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "bankledger",
		SSLMode:  "disable",
	}
}

// DSN renders the configuration as a lib/pq connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// NewStore opens a connection pool from the configuration, verifies the
// connection and creates the schema if needed.
func NewStore(cfg Config) (*Store, error) {
	return NewStoreFromDSN(cfg.DSN())
}

// NewStoreFromDSN opens a connection pool from a lib/pq DSN or URL.
func NewStoreFromDSN(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGSERIAL PRIMARY KEY,
			account_number TEXT NOT NULL UNIQUE,
			customer_id BIGINT NOT NULL REFERENCES customers(id),
			balance_cents BIGINT NOT NULL CHECK (balance_cents >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY,
			from_account_id BIGINT NOT NULL REFERENCES accounts(id),
			to_account_id BIGINT NOT NULL REFERENCES accounts(id),
			amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_from ON transactions(from_account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_to ON transactions(to_account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at)`,
	}
	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateCustomer(ctx context.Context, name string) (ledger.Customer, error) {
	var customer ledger.Customer
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO customers (name) VALUES ($1) RETURNING id, name`, name,
	).Scan(&customer.ID, &customer.Name)
	if err != nil {
		return ledger.Customer{}, mapError(err)
	}
	return customer, nil
}

func (s *Store) CustomerByID(ctx context.Context, id int64) (ledger.Customer, error) {
	var customer ledger.Customer
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM customers WHERE id = $1`, id,
	).Scan(&customer.ID, &customer.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Customer{}, ledger.ErrCustomerNotFound
	}
	if err != nil {
		return ledger.Customer{}, mapError(err)
	}
	return customer, nil
}

func (s *Store) CustomerByName(ctx context.Context, name string) (ledger.Customer, error) {
	var customer ledger.Customer
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM customers WHERE name = $1 ORDER BY id LIMIT 1`, name,
	).Scan(&customer.ID, &customer.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Customer{}, ledger.ErrCustomerNotFound
	}
	if err != nil {
		return ledger.Customer{}, mapError(err)
	}
	return customer, nil
}

func (s *Store) CreateAccount(ctx context.Context, customerID int64, number string, opening money.Amount) (ledger.Account, error) {
	if opening.Cents() < 0 {
		return ledger.Account{}, ledger.ErrInvalidAmount
	}
	var account ledger.Account
	var cents int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO accounts (account_number, customer_id, balance_cents)
		 VALUES ($1, $2, $3)
		 RETURNING id, account_number, customer_id, balance_cents`,
		number, customerID, opening.Cents(),
	).Scan(&account.ID, &account.Number, &account.CustomerID, &cents)
	if err != nil {
		return ledger.Account{}, mapError(err)
	}
	account.Balance = money.FromCents(cents)
	return account, nil
}

func (s *Store) AccountByNumber(ctx context.Context, number string) (ledger.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx,
		`SELECT id, account_number, customer_id, balance_cents
		 FROM accounts WHERE account_number = $1`, number,
	))
}

func (s *Store) AccountByID(ctx context.Context, id int64) (ledger.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx,
		`SELECT id, account_number, customer_id, balance_cents
		 FROM accounts WHERE id = $1`, id,
	))
}

func (s *Store) scanAccount(row *sql.Row) (ledger.Account, error) {
	var account ledger.Account
	var cents int64
	err := row.Scan(&account.ID, &account.Number, &account.CustomerID, &cents)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.Account{}, mapError(err)
	}
	account.Balance = money.FromCents(cents)
	return account, nil
}

func (s *Store) AccountNumbers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_number FROM accounts ORDER BY account_number`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return nil, mapError(err)
		}
		numbers = append(numbers, number)
	}
	return numbers, rows.Err()
}

func (s *Store) Transfer(ctx context.Context, fromID, toID int64, amount money.Amount) (ledger.Transaction, error) {
	if !amount.IsPositive() {
		return ledger.Transaction{}, ledger.ErrInvalidAmount
	}

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Transaction{}, mapError(err)
	}
	defer dbtx.Rollback() // no-op after commit

	// Lock both rows in ascending ID order so two transfers that touch the
	// same accounts in opposite roles cannot deadlock.
	ids := []int64{fromID, toID}
	if fromID == toID {
		ids = ids[:1]
	}
	rows, err := dbtx.QueryContext(ctx,
		`SELECT id, balance_cents FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		pq.Array(ids),
	)
	if err != nil {
		return ledger.Transaction{}, mapError(err)
	}
	balances := make(map[int64]int64, 2)
	for rows.Next() {
		var id, cents int64
		if err := rows.Scan(&id, &cents); err != nil {
			rows.Close()
			return ledger.Transaction{}, mapError(err)
		}
		balances[id] = cents
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ledger.Transaction{}, mapError(err)
	}
	if len(balances) != len(ids) {
		return ledger.Transaction{}, ledger.ErrAccountNotFound
	}

	if balances[fromID] < amount.Cents() {
		return ledger.Transaction{}, ledger.ErrInsufficientFunds
	}

	if fromID != toID {
		if _, err := dbtx.ExecContext(ctx,
			`UPDATE accounts SET balance_cents = balance_cents - $1 WHERE id = $2`,
			amount.Cents(), fromID,
		); err != nil {
			return ledger.Transaction{}, mapError(err)
		}
		if _, err := dbtx.ExecContext(ctx,
			`UPDATE accounts SET balance_cents = balance_cents + $1 WHERE id = $2`,
			amount.Cents(), toID,
		); err != nil {
			return ledger.Transaction{}, mapError(err)
		}
	}

	tx := ledger.Transaction{
		ID:            uuid.NewString(),
		FromAccountID: fromID,
		ToAccountID:   toID,
		Amount:        amount,
		Status:        ledger.StatusCompleted,
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := dbtx.ExecContext(ctx,
		`INSERT INTO transactions (id, from_account_id, to_account_id, amount_cents, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		tx.ID, tx.FromAccountID, tx.ToAccountID, tx.Amount.Cents(), string(tx.Status), tx.CreatedAt,
	); err != nil {
		return ledger.Transaction{}, mapError(err)
	}

	if err := dbtx.Commit(); err != nil {
		return ledger.Transaction{}, mapError(err)
	}
	return tx, nil
}

func (s *Store) TransactionsByAccount(ctx context.Context, accountID int64) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, from_account_id, to_account_id, amount_cents, status, created_at
		 FROM transactions
		 WHERE from_account_id = $1 OR to_account_id = $1
		 ORDER BY created_at ASC, id ASC`,
		accountID,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		var tx ledger.Transaction
		var cents int64
		var status string
		if err := rows.Scan(&tx.ID, &tx.FromAccountID, &tx.ToAccountID, &cents, &status, &tx.CreatedAt); err != nil {
			return nil, mapError(err)
		}
		tx.Amount = money.FromCents(cents)
		tx.Status = ledger.Status(status)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// mapError translates PostgreSQL error classes into ledger errors.
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", ledger.ErrConcurrentModification, err)
		case "23505": // unique_violation
			return fmt.Errorf("%w: %v", ledger.ErrDuplicateAccountNumber, err)
		case "23514": // check_violation (balance_cents >= 0)
			return fmt.Errorf("%w: %v", ledger.ErrInsufficientFunds, err)
		case "23503": // foreign_key_violation
			if strings.Contains(pqErr.Constraint, "customer") {
				return fmt.Errorf("%w: %v", ledger.ErrCustomerNotFound, err)
			}
			return fmt.Errorf("%w: %v", ledger.ErrAccountNotFound, err)
		}
	}
	return err
}
