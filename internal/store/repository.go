/**
 * @description
 * This file defines the repository interfaces required by the ledger-service. The
 * transfer engine, the rate store and the ingestion job depend on these contracts
 * rather than on PostgreSQL, so the same business logic runs against the in-memory
 * implementation in tests.
 *
 * @dependencies
 * - github.com/google/uuid, github.com/shopspring/decimal
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/ledger-service/internal/domain"
)

var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountTypeNotFound   = errors.New("account type not found")
	ErrCurrencyNotFound      = errors.New("currency not found")
	ErrRateNotFound          = errors.New("exchange rate not found")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrAccountNotLocked      = errors.New("account was not locked in this transfer")
	ErrIncompleteTransaction = errors.New("transaction record is incomplete")
)

// AccountRepository resolves bank accounts and their types. Every lookup is
// explicit and reports ErrAccountNotFound / ErrAccountTypeNotFound when absent.
type AccountRepository interface {
	FindAccountByNumber(ctx context.Context, number string) (domain.Account, error)
	FindAccountByID(ctx context.Context, id int64) (domain.Account, error)
	FindAccountTypeByID(ctx context.Context, id int64) (domain.AccountType, error)
	// ListAccountsByOwner returns the owner's accounts ordered by id.
	ListAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error)
}

// CurrencyRepository reads the supported currencies.
type CurrencyRepository interface {
	FindCurrencyByCode(ctx context.Context, code string) (domain.Currency, error)
	ListCurrencies(ctx context.Context) ([]domain.Currency, error)
}

// RateRepository reads and appends daily exchange rates.
type RateRepository interface {
	// FindRateAtOrBefore returns the most recent rate for code dated on or before date.
	FindRateAtOrBefore(ctx context.Context, code string, date time.Time) (domain.ExchangeRate, error)
	// FindLatestRates returns every rate of the most recent rate date.
	FindLatestRates(ctx context.Context) ([]domain.ExchangeRate, error)
	FindRatesAtDate(ctx context.Context, date time.Time) ([]domain.ExchangeRate, error)
	FindRatesInRange(ctx context.Context, start, end time.Time) ([]domain.ExchangeRate, error)
	// InsertRates stores rates, skipping (currency, date) pairs that already exist.
	InsertRates(ctx context.Context, rates []domain.ExchangeRate) (int, error)
}

// TransactionRepository reads the immutable transaction log.
type TransactionRepository interface {
	FindTransactionByID(ctx context.Context, id uuid.UUID) (domain.Transaction, error)
	ListTransactionsByAccount(ctx context.Context, accountID int64, limit, offset int) ([]domain.Transaction, error)
	// ListTransactions pages through the whole log, newest first.
	ListTransactions(ctx context.Context, limit, offset int) ([]domain.Transaction, error)
}

// TransferTx is the unit of work of a single transfer. Accounts must be locked
// before their balance can be changed.
type TransferTx interface {
	// LockAccounts locks the given accounts in ascending id order and returns
	// fresh snapshots keyed by id. Duplicate ids are locked once.
	LockAccounts(ctx context.Context, ids ...int64) (map[int64]*domain.Account, error)
	SetBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error
	InsertTransaction(ctx context.Context, txn *domain.Transaction) error
}

// Transactor runs fn inside one atomic unit of work. When fn returns an error
// nothing it did through tx is persisted.
type Transactor interface {
	WithinTransfer(ctx context.Context, fn func(ctx context.Context, tx TransferTx) error) error
}

// Repository defines the full set of methods for interacting with the database.
type Repository interface {
	AccountRepository
	CurrencyRepository
	RateRepository
	TransactionRepository
	Transactor
}
