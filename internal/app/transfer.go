/**
 * @description
 * This file contains the transfer engine. It validates, prices and atomically
 * applies a transfer between two bank accounts:
 * - resolves both accounts by number,
 * - quotes the commission from the source account type,
 * - converts the requested amount when the currencies differ,
 * - debits, credits and records the transaction inside one unit of work.
 *
 * The engine performs no identity or permission checks. Callers authorize the
 * actor against the source account before calling Transfer.
 *
 * @dependencies
 * - github.com/shopspring/decimal: exact money arithmetic.
 * - internal/rates: currency conversion.
 * - internal/store: account lookups and the transfer unit of work.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/internal/rates"
	"github.com/transfa/ledger-service/internal/store"
)

// EventPublisher is the subset of the RabbitMQ producer used by the service.
type EventPublisher interface {
	PublishTransferCompleted(ctx context.Context, event domain.TransferCompletedEvent) error
	PublishExchangeRatesUpdated(ctx context.Context, event domain.ExchangeRatesUpdatedEvent) error
}

// TransferService is the single operation exposed to the request layer.
type TransferService interface {
	Transfer(ctx context.Context, req domain.TransferRequest) (domain.Transaction, error)
}

// TransferRepository is what the engine needs from the persistence layer.
type TransferRepository interface {
	store.AccountRepository
	store.CurrencyRepository
	store.Transactor
}

// TransferEngine orchestrates a transfer between two accounts.
type TransferEngine struct {
	repo      TransferRepository
	ledger    *Ledger
	policy    CommissionPolicy
	rates     rates.Store
	publisher EventPublisher
	now       func() time.Time
}

// NewTransferEngine creates a new transfer engine. publisher may be nil.
func NewTransferEngine(repo TransferRepository, ledger *Ledger, rateStore rates.Store, publisher EventPublisher) *TransferEngine {
	return &TransferEngine{
		repo:      repo,
		ledger:    ledger,
		rates:     rateStore,
		publisher: publisher,
		now:       time.Now,
	}
}

// quote is the priced transfer computed before any mutation.
type quote struct {
	source         domain.Account
	destination    domain.Account
	commission     decimal.Decimal
	totalDebit     decimal.Decimal
	receivedAmount decimal.Decimal
}

// Transfer moves req.Amount from the source to the destination account. On any
// error both balances and the transaction log are left untouched.
func (e *TransferEngine) Transfer(ctx context.Context, req domain.TransferRequest) (domain.Transaction, error) {
	if !req.Amount.IsPositive() {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}

	now := e.now().UTC()
	q, err := e.price(ctx, req, now)
	if err != nil {
		return domain.Transaction{}, err
	}

	txn := domain.Transaction{
		ID:                       uuid.New(),
		SourceAccountID:          q.source.ID,
		SourceAccountNumber:      q.source.Number,
		DestinationAccountID:     q.destination.ID,
		DestinationAccountNumber: q.destination.Number,
		SourceCurrency:           q.source.CurrencyCode,
		DestinationCurrency:      q.destination.CurrencyCode,
		Amount:                   req.Amount,
		ReceivedAmount:           q.receivedAmount,
		Commission:               q.commission,
		CreatedAt:                now,
	}

	err = e.repo.WithinTransfer(ctx, func(ctx context.Context, tx store.TransferTx) error {
		locked, err := tx.LockAccounts(ctx, q.source.ID, q.destination.ID)
		if err != nil {
			if errors.Is(err, store.ErrAccountNotFound) {
				return domain.ErrAccountNotFound
			}
			return err
		}
		// Self-transfers share one snapshot so the debit and credit compose.
		source, destination := locked[q.source.ID], locked[q.destination.ID]
		if source.IsClosed || destination.IsClosed {
			return domain.ErrAccountClosed
		}

		if err := e.ledger.Debit(ctx, tx, source, q.totalDebit); err != nil {
			return err
		}
		if err := e.ledger.Credit(ctx, tx, destination, q.receivedAmount); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, &txn)
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	e.publishCompleted(ctx, txn)
	return txn, nil
}

func (e *TransferEngine) price(ctx context.Context, req domain.TransferRequest, now time.Time) (quote, error) {
	source, err := e.repo.FindAccountByNumber(ctx, req.SourceAccountNumber)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return quote{}, domain.ErrSourceAccountNotFound
		}
		return quote{}, fmt.Errorf("find source account: %w", err)
	}
	destination, err := e.repo.FindAccountByNumber(ctx, req.DestinationAccountNumber)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return quote{}, domain.ErrDestinationAccountNotFound
		}
		return quote{}, fmt.Errorf("find destination account: %w", err)
	}
	if source.IsClosed || destination.IsClosed {
		return quote{}, domain.ErrAccountClosed
	}

	sourceCurrency, err := e.currency(ctx, source.CurrencyCode)
	if err != nil {
		return quote{}, err
	}
	if _, err := e.currency(ctx, destination.CurrencyCode); err != nil {
		return quote{}, err
	}

	if !domain.HasAtMostScale(req.Amount, sourceCurrency.MinorUnits) {
		return quote{}, fmt.Errorf("%w: %s allows %d fractional digits", domain.ErrInvalidAmount, sourceCurrency.Code, sourceCurrency.MinorUnits)
	}

	accountType, err := e.repo.FindAccountTypeByID(ctx, source.AccountTypeID)
	if err != nil {
		return quote{}, fmt.Errorf("find account type %d: %w", source.AccountTypeID, err)
	}

	sameCurrency := source.CurrencyCode == destination.CurrencyCode
	commissionRate := e.policy.Quote(accountType, sameCurrency)
	commission := e.policy.Charge(req.Amount, commissionRate, sourceCurrency.MinorUnits)
	totalDebit := req.Amount.Add(commission)

	if source.Balance.LessThan(totalDebit) {
		return quote{}, domain.ErrNotEnoughBalance
	}

	received := req.Amount
	if !sameCurrency {
		received, err = e.rates.Convert(ctx, req.Amount, source.CurrencyCode, destination.CurrencyCode, now)
		if err != nil {
			return quote{}, err
		}
		if !received.IsPositive() {
			return quote{}, fmt.Errorf("%w: converted amount rounds to zero", domain.ErrInvalidAmount)
		}
	}

	return quote{
		source:         source,
		destination:    destination,
		commission:     commission,
		totalDebit:     totalDebit,
		receivedAmount: received,
	}, nil
}

func (e *TransferEngine) currency(ctx context.Context, code string) (domain.Currency, error) {
	currency, err := e.repo.FindCurrencyByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrCurrencyNotFound) {
			return domain.Currency{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, code)
		}
		return domain.Currency{}, fmt.Errorf("find currency %s: %w", code, err)
	}
	if !currency.FitsLedgerScale() {
		return domain.Currency{}, fmt.Errorf("%w: %s has %d minor units", domain.ErrUnsupportedCurrency, code, currency.MinorUnits)
	}
	return currency, nil
}

// publishCompleted is best effort; the transfer is already committed.
func (e *TransferEngine) publishCompleted(ctx context.Context, txn domain.Transaction) {
	if e.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	event := domain.TransferCompletedEvent{
		EventID:                  uuid.NewString(),
		TransactionID:            txn.ID.String(),
		SourceAccountNumber:      txn.SourceAccountNumber,
		DestinationAccountNumber: txn.DestinationAccountNumber,
		SourceCurrency:           txn.SourceCurrency,
		DestinationCurrency:      txn.DestinationCurrency,
		Amount:                   txn.Amount,
		ReceivedAmount:           txn.ReceivedAmount,
		Commission:               txn.Commission,
		OccurredAt:               txn.CreatedAt,
	}
	if err := e.publisher.PublishTransferCompleted(pubCtx, event); err != nil {
		log.Printf("level=warn component=transfer_engine msg=\"transfer completed event publish failed\" transaction_id=%s err=%v", txn.ID, err)
	}
}
