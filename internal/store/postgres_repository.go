/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface for
 * bank accounts, account types and the transaction log, plus the transfer unit of work.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: numeric columns are scanned into decimal.Decimal.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/transfa/ledger-service/internal/domain"
)

const accountColumns = `
	a.id, a.number, a.owner_id, c.code, a.balance, a.is_closed, a.account_type_id, a.created_at
`

const transactionColumns = `
	t.id, t.source_account_id, s.number, sc.code, t.destination_account_id, d.number, dc.code,
	t.amount, t.received_amount, t.commission, t.created_at
`

const transactionJoins = `
	FROM transactions t
	JOIN bank_accounts s ON s.id = t.source_account_id
	JOIN currencies sc ON sc.id = s.currency_id
	JOIN bank_accounts d ON d.id = t.destination_account_id
	JOIN currencies dc ON dc.id = d.currency_id
`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID,
		&account.Number,
		&account.OwnerID,
		&account.CurrencyCode,
		&account.Balance,
		&account.IsClosed,
		&account.AccountTypeID,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrAccountNotFound
		}
		return domain.Account{}, err
	}
	return account, nil
}

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var txn domain.Transaction
	err := row.Scan(
		&txn.ID,
		&txn.SourceAccountID,
		&txn.SourceAccountNumber,
		&txn.SourceCurrency,
		&txn.DestinationAccountID,
		&txn.DestinationAccountNumber,
		&txn.DestinationCurrency,
		&txn.Amount,
		&txn.ReceivedAmount,
		&txn.Commission,
		&txn.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Transaction{}, ErrTransactionNotFound
		}
		return domain.Transaction{}, err
	}
	return txn, nil
}

// FindAccountByNumber retrieves an account by its 20 character account number.
func (r *PostgresRepository) FindAccountByNumber(ctx context.Context, number string) (domain.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM bank_accounts a
		JOIN currencies c ON c.id = a.currency_id
		WHERE a.number = $1`
	return scanAccount(r.db.QueryRow(ctx, query, number))
}

// FindAccountByID retrieves an account by its primary key.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, id int64) (domain.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM bank_accounts a
		JOIN currencies c ON c.id = a.currency_id
		WHERE a.id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, id))
}

// ListAccountsByOwner retrieves every account of an owner.
func (r *PostgresRepository) ListAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM bank_accounts a
		JOIN currencies c ON c.id = a.currency_id
		WHERE a.owner_id = $1
		ORDER BY a.id`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// FindAccountTypeByID retrieves the commission settings of an account type.
func (r *PostgresRepository) FindAccountTypeByID(ctx context.Context, id int64) (domain.AccountType, error) {
	var accountType domain.AccountType
	err := r.db.QueryRow(ctx, `
		SELECT id, name, transaction_commission, currency_exchange_commission
		FROM account_types
		WHERE id = $1
	`, id).Scan(
		&accountType.ID,
		&accountType.Name,
		&accountType.TransactionCommission,
		&accountType.CurrencyExchangeCommission,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AccountType{}, ErrAccountTypeNotFound
		}
		return domain.AccountType{}, err
	}
	return accountType, nil
}

// FindTransactionByID retrieves a single transaction record.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, id uuid.UUID) (domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + transactionJoins + ` WHERE t.id = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, id))
}

// ListTransactionsByAccount returns transactions where the account is either side, newest first.
func (r *PostgresRepository) ListTransactionsByAccount(ctx context.Context, accountID int64, limit, offset int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + transactionJoins + `
		WHERE t.source_account_id = $1 OR t.destination_account_id = $1
		ORDER BY t.created_at DESC, t.id
		LIMIT $2 OFFSET $3`
	return r.queryTransactions(ctx, query, accountID, limit, offset)
}

// ListTransactions returns a page of the whole transaction log, newest first.
func (r *PostgresRepository) ListTransactions(ctx context.Context, limit, offset int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + transactionJoins + `
		ORDER BY t.created_at DESC, t.id
		LIMIT $1 OFFSET $2`
	return r.queryTransactions(ctx, query, limit, offset)
}

func (r *PostgresRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

// WithinTransfer runs fn inside a database transaction. The transaction is
// committed only when fn returns nil.
func (r *PostgresRepository) WithinTransfer(ctx context.Context, fn func(ctx context.Context, tx TransferTx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &postgresTransferTx{tx: tx, locked: make(map[int64]struct{})}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type postgresTransferTx struct {
	tx     pgx.Tx
	locked map[int64]struct{}
}

// LockAccounts uses FOR UPDATE on each row, lowest id first, so two transfers
// moving money in opposite directions cannot deadlock.
func (t *postgresTransferTx) LockAccounts(ctx context.Context, ids ...int64) (map[int64]*domain.Account, error) {
	ordered := uniqueSortedIDs(ids)
	accounts := make(map[int64]*domain.Account, len(ordered))
	for _, id := range ordered {
		account, err := scanAccount(t.tx.QueryRow(ctx, `SELECT `+accountColumns+`
			FROM bank_accounts a
			JOIN currencies c ON c.id = a.currency_id
			WHERE a.id = $1
			FOR UPDATE OF a`, id))
		if err != nil {
			return nil, fmt.Errorf("lock account %d: %w", id, err)
		}
		t.locked[id] = struct{}{}
		accounts[id] = &account
	}
	return accounts, nil
}

func (t *postgresTransferTx) SetBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	if _, ok := t.locked[accountID]; !ok {
		return ErrAccountNotLocked
	}
	tag, err := t.tx.Exec(ctx, "UPDATE bank_accounts SET balance = $1 WHERE id = $2", balance, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (t *postgresTransferTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, source_account_id, destination_account_id, amount, received_amount, commission, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := t.tx.Exec(ctx, query,
		txn.ID,
		txn.SourceAccountID,
		txn.DestinationAccountID,
		txn.Amount,
		txn.ReceivedAmount,
		txn.Commission,
		txn.CreatedAt,
	)
	return err
}

func uniqueSortedIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
