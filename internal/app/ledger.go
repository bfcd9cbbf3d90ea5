/**
 * @description
 * The account ledger owns balance mutation. Debit and credit only operate on
 * accounts locked by the enclosing transfer unit of work, which keeps the pair
 * all-or-nothing and serializes concurrent transfers touching the same account.
 * The ledger also serves the read-only account and history queries.
 */

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/internal/store"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// Ledger exposes debit/credit primitives and account queries.
type Ledger struct {
	accounts     store.AccountRepository
	transactions store.TransactionRepository
}

func NewLedger(accounts store.AccountRepository, transactions store.TransactionRepository) *Ledger {
	return &Ledger{accounts: accounts, transactions: transactions}
}

// Debit decreases the locked account's balance by amount. It fails with
// domain.ErrNotEnoughBalance and writes nothing when the balance is lower.
func (l *Ledger) Debit(ctx context.Context, tx store.TransferTx, account *domain.Account, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if account.Balance.LessThan(amount) {
		return domain.ErrNotEnoughBalance
	}
	balance := account.Balance.Sub(amount)
	if err := tx.SetBalance(ctx, account.ID, balance); err != nil {
		return fmt.Errorf("debit account %d: %w", account.ID, err)
	}
	account.Balance = balance
	return nil
}

// Credit increases the locked account's balance by amount.
func (l *Ledger) Credit(ctx context.Context, tx store.TransferTx, account *domain.Account, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	balance := account.Balance.Add(amount)
	if err := tx.SetBalance(ctx, account.ID, balance); err != nil {
		return fmt.Errorf("credit account %d: %w", account.ID, err)
	}
	account.Balance = balance
	return nil
}

// FindAccountByNumber resolves an account by number.
func (l *Ledger) FindAccountByNumber(ctx context.Context, number string) (domain.Account, error) {
	account, err := l.accounts.FindAccountByNumber(ctx, number)
	return account, accountLookupError(err)
}

// FindAccountByID resolves an account by id.
func (l *Ledger) FindAccountByID(ctx context.Context, id int64) (domain.Account, error) {
	account, err := l.accounts.FindAccountByID(ctx, id)
	return account, accountLookupError(err)
}

// FindTransaction returns a single transaction record.
func (l *Ledger) FindTransaction(ctx context.Context, id uuid.UUID) (domain.Transaction, error) {
	txn, err := l.transactions.FindTransactionByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			return domain.Transaction{}, domain.ErrTransactionNotFound
		}
		return domain.Transaction{}, err
	}
	return txn, nil
}

// AccountsOfOwner lists the accounts owned by ownerID.
func (l *Ledger) AccountsOfOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error) {
	return l.accounts.ListAccountsByOwner(ctx, ownerID)
}

// AccountHistory lists the transactions touching an account, newest first.
func (l *Ledger) AccountHistory(ctx context.Context, accountID int64, limit, offset int) ([]domain.Transaction, error) {
	limit, offset = page(limit, offset)
	return l.transactions.ListTransactionsByAccount(ctx, accountID, limit, offset)
}

// Transactions pages through every transaction, newest first.
func (l *Ledger) Transactions(ctx context.Context, limit, offset int) ([]domain.Transaction, error) {
	limit, offset = page(limit, offset)
	return l.transactions.ListTransactions(ctx, limit, offset)
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func accountLookupError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrAccountNotFound) {
		return domain.ErrAccountNotFound
	}
	return err
}
