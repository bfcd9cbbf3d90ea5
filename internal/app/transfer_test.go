package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/internal/rates"
	"github.com/transfa/ledger-service/internal/store"
)

var transferDay = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type publisherStub struct {
	mu        sync.Mutex
	completed []domain.TransferCompletedEvent
	updated   []domain.ExchangeRatesUpdatedEvent
	err       error
}

func (p *publisherStub) PublishTransferCompleted(ctx context.Context, event domain.TransferCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, event)
	return p.err
}

func (p *publisherStub) PublishExchangeRatesUpdated(ctx context.Context, event domain.ExchangeRatesUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = append(p.updated, event)
	return p.err
}

type transferFixture struct {
	repo      *store.MemoryRepository
	engine    *TransferEngine
	rates     *rates.CurrencyStore
	publisher *publisherStub
	rubA      domain.Account
	rubB      domain.Account
	usd       domain.Account
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTransferFixture(t *testing.T) *transferFixture {
	t.Helper()
	repo := store.NewMemoryRepository()
	repo.AddCurrency(domain.Currency{Code: "RUB", Symbol: "₽", MinorUnits: 2})
	repo.AddCurrency(domain.Currency{Code: "USD", Symbol: "$", MinorUnits: 2})
	_, err := repo.InsertRates(context.Background(), []domain.ExchangeRate{
		{CurrencyCode: "USD", Date: domain.DateOf(transferDay), Rate: dec("90.00")},
	})
	require.NoError(t, err)

	standard := repo.AddAccountType(domain.AccountType{
		Name:                       "standard",
		TransactionCommission:      dec("0.01"),
		CurrencyExchangeCommission: dec("0.02"),
	})

	f := &transferFixture{repo: repo, publisher: &publisherStub{}}
	f.rubA = repo.AddAccount(domain.Account{Number: "40817810000000000001", CurrencyCode: "RUB", Balance: dec("15000.00"), AccountTypeID: standard.ID})
	f.rubB = repo.AddAccount(domain.Account{Number: "40817810000000000002", CurrencyCode: "RUB", Balance: dec("20000.00"), AccountTypeID: standard.ID})
	f.usd = repo.AddAccount(domain.Account{Number: "40817840000000000003", CurrencyCode: "USD", Balance: dec("0.00"), AccountTypeID: standard.ID})

	f.rates = rates.NewCurrencyStore(repo, "RUB")
	f.engine = NewTransferEngine(repo, NewLedger(repo, repo), f.rates, f.publisher)
	f.engine.now = func() time.Time { return transferDay }
	return f
}

func (f *transferFixture) balance(t *testing.T, id int64) decimal.Decimal {
	t.Helper()
	account, err := f.repo.FindAccountByID(context.Background(), id)
	require.NoError(t, err)
	return account.Balance
}

func request(from, to domain.Account, amount string) domain.TransferRequest {
	return domain.TransferRequest{
		Amount:                   dec(amount),
		SourceAccountNumber:      from.Number,
		DestinationAccountNumber: to.Number,
	}
}

func TestTransfer_SameCurrencyChargesCommissionOnTop(t *testing.T) {
	f := newTransferFixture(t)

	txn, err := f.engine.Transfer(context.Background(), request(f.rubA, f.rubB, "10000.00"))

	require.NoError(t, err)
	assert.Equal(t, "100.00", txn.Commission.StringFixed(2))
	assert.Equal(t, "10100.00", txn.TotalDebit().StringFixed(2))
	assert.True(t, txn.ReceivedAmount.Equal(dec("10000.00")))
	assert.True(t, f.balance(t, f.rubA.ID).Equal(dec("4900.00")))
	assert.True(t, f.balance(t, f.rubB.ID).Equal(dec("30000.00")))
	assert.True(t, f.balance(t, f.rubA.ID).LessThan(f.balance(t, f.rubB.ID)))
	assert.Equal(t, 1, f.repo.TransactionCount())

	stored, err := f.repo.FindTransactionByID(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, txn.SourceAccountNumber, stored.SourceAccountNumber)
}

func TestTransfer_CrossCurrencyConvertsRequestedAmount(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	txn, err := f.engine.Transfer(ctx, request(f.rubA, f.usd, "9000.00"))
	require.NoError(t, err)

	expected, err := f.rates.Convert(ctx, dec("9000.00"), "RUB", "USD", transferDay)
	require.NoError(t, err)
	assert.True(t, txn.ReceivedAmount.Equal(expected))
	assert.Equal(t, "100.00", txn.ReceivedAmount.StringFixed(2))
	// 3% of the source-currency amount, not of the converted amount.
	assert.Equal(t, "270.00", txn.Commission.StringFixed(2))
	assert.True(t, f.balance(t, f.rubA.ID).Equal(dec("5730.00")))
	assert.True(t, f.balance(t, f.usd.ID).Equal(dec("100.00")))
}

func TestTransfer_CommissionRoundsHalfUpToMinorUnit(t *testing.T) {
	f := newTransferFixture(t)

	// 0.50 * 0.01 = 0.005 -> 0.01
	txn, err := f.engine.Transfer(context.Background(), request(f.rubA, f.rubB, "0.50"))

	require.NoError(t, err)
	assert.Equal(t, "0.01", txn.Commission.StringFixed(2))
	assert.True(t, f.balance(t, f.rubA.ID).Equal(dec("14999.49")))
}

func TestTransfer_NotEnoughBalanceLeavesEverythingUntouched(t *testing.T) {
	f := newTransferFixture(t)

	// 14900 + 149 commission exceeds 15000
	_, err := f.engine.Transfer(context.Background(), request(f.rubA, f.rubB, "14900.00"))

	assert.ErrorIs(t, err, domain.ErrNotEnoughBalance)
	assert.True(t, f.balance(t, f.rubA.ID).Equal(dec("15000.00")))
	assert.True(t, f.balance(t, f.rubB.ID).Equal(dec("20000.00")))
	assert.Equal(t, 0, f.repo.TransactionCount())
	assert.Empty(t, f.publisher.completed)
}

func TestTransfer_UnknownAccounts(t *testing.T) {
	f := newTransferFixture(t)
	missing := domain.Account{Number: "00000000000000000000"}

	_, err := f.engine.Transfer(context.Background(), request(missing, f.rubB, "10.00"))
	assert.ErrorIs(t, err, domain.ErrSourceAccountNotFound)

	_, err = f.engine.Transfer(context.Background(), request(f.rubA, missing, "10.00"))
	assert.ErrorIs(t, err, domain.ErrDestinationAccountNotFound)

	assert.True(t, f.balance(t, f.rubA.ID).Equal(dec("15000.00")))
	assert.True(t, f.balance(t, f.rubB.ID).Equal(dec("20000.00")))
	assert.Equal(t, 0, f.repo.TransactionCount())
}

func TestTransfer_MissingRateLeavesBalancesUnchanged(t *testing.T) {
	f := newTransferFixture(t)
	f.engine.now = func() time.Time { return transferDay.AddDate(0, 0, -1) }

	_, err := f.engine.Transfer(context.Background(), request(f.rubA, f.usd, "900.00"))

	assert.ErrorIs(t, err, domain.ErrRateNotFound)
	assert.True(t, f.balance(t, f.rubA.ID).Equal(dec("15000.00")))
	assert.True(t, f.balance(t, f.usd.ID).Equal(dec("0.00")))
	assert.Equal(t, 0, f.repo.TransactionCount())
}

func TestTransfer_UnsupportedCurrency(t *testing.T) {
	f := newTransferFixture(t)
	odd := f.repo.AddAccount(domain.Account{Number: "40817999000000000009", CurrencyCode: "XTS", AccountTypeID: f.rubA.AccountTypeID})

	_, err := f.engine.Transfer(context.Background(), request(f.rubA, odd, "10.00"))

	assert.ErrorIs(t, err, domain.ErrUnsupportedCurrency)
	assert.Equal(t, 0, f.repo.TransactionCount())
}

func TestTransfer_CurrencyWiderThanLedgerScaleIsUnsupported(t *testing.T) {
	f := newTransferFixture(t)
	f.repo.AddCurrency(domain.Currency{Code: "KWD", Symbol: "KD", MinorUnits: 3})
	_, err := f.repo.InsertRates(context.Background(), []domain.ExchangeRate{
		{CurrencyCode: "KWD", Date: domain.DateOf(transferDay), Rate: dec("295.5")},
	})
	require.NoError(t, err)
	kwd := f.repo.AddAccount(domain.Account{Number: "40817414000000000011", CurrencyCode: "KWD", AccountTypeID: f.rubA.AccountTypeID})

	_, err = f.engine.Transfer(context.Background(), request(f.rubA, kwd, "10.00"))

	assert.ErrorIs(t, err, domain.ErrUnsupportedCurrency)
	assert.True(t, f.balance(t, f.rubA.ID).Equal(dec("15000.00")))
	assert.Equal(t, 0, f.repo.TransactionCount())
}

func TestTransfer_ZeroDecimalCurrency(t *testing.T) {
	f := newTransferFixture(t)
	f.repo.AddCurrency(domain.Currency{Code: "JPY", Symbol: "¥", MinorUnits: 0})
	_, err := f.repo.InsertRates(context.Background(), []domain.ExchangeRate{
		{CurrencyCode: "JPY", Date: domain.DateOf(transferDay), Rate: dec("0.6")},
	})
	require.NoError(t, err)
	jpyA := f.repo.AddAccount(domain.Account{Number: "40817392000000000012", CurrencyCode: "JPY", Balance: dec("5000"), AccountTypeID: f.rubA.AccountTypeID})
	jpyB := f.repo.AddAccount(domain.Account{Number: "40817392000000000013", CurrencyCode: "JPY", Balance: dec("0"), AccountTypeID: f.rubA.AccountTypeID})

	_, err = f.engine.Transfer(context.Background(), request(jpyA, jpyB, "10.5"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, 0, f.repo.TransactionCount())

	txn, err := f.engine.Transfer(context.Background(), request(jpyA, jpyB, "1000"))
	require.NoError(t, err)
	assert.Equal(t, "10", txn.Commission.String())
	assert.True(t, f.balance(t, jpyA.ID).Equal(dec("3990")))

	// 100 RUB / 0.6 = 166.67 rounds to 167 whole yen.
	txn, err = f.engine.Transfer(context.Background(), request(f.rubA, jpyB, "100.00"))
	require.NoError(t, err)
	assert.Equal(t, "167", txn.ReceivedAmount.String())
	assert.Equal(t, "3.00", txn.Commission.StringFixed(2))
}

func TestTransfer_ClosedAccountIsRejected(t *testing.T) {
	f := newTransferFixture(t)
	closed := f.repo.AddAccount(domain.Account{Number: "40817810000000000010", CurrencyCode: "RUB", IsClosed: true, AccountTypeID: f.rubA.AccountTypeID})

	_, err := f.engine.Transfer(context.Background(), request(f.rubA, closed, "10.00"))

	assert.ErrorIs(t, err, domain.ErrAccountClosed)
}

func TestTransfer_NonPositiveAmountIsRejected(t *testing.T) {
	f := newTransferFixture(t)

	_, err := f.engine.Transfer(context.Background(), request(f.rubA, f.rubB, "0"))

	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestTransfer_SelfTransferCostsOnlyCommission(t *testing.T) {
	f := newTransferFixture(t)

	txn, err := f.engine.Transfer(context.Background(), request(f.rubA, f.rubA, "1000.00"))

	require.NoError(t, err)
	assert.Equal(t, "10.00", txn.Commission.StringFixed(2))
	assert.True(t, f.balance(t, f.rubA.ID).Equal(dec("14990.00")))
}

func TestTransfer_PublishesCompletedEventAndIgnoresPublishFailure(t *testing.T) {
	f := newTransferFixture(t)
	f.publisher.err = errors.New("broker down")

	txn, err := f.engine.Transfer(context.Background(), request(f.rubA, f.rubB, "10.00"))

	require.NoError(t, err)
	require.Len(t, f.publisher.completed, 1)
	assert.Equal(t, txn.ID.String(), f.publisher.completed[0].TransactionID)
	assert.Equal(t, 1, f.repo.TransactionCount())
}

func TestTransfer_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	repo := store.NewMemoryRepository()
	repo.AddCurrency(domain.Currency{Code: "RUB", Symbol: "₽", MinorUnits: 2})
	free := repo.AddAccountType(domain.AccountType{Name: "free"})
	source := repo.AddAccount(domain.Account{Number: "40817810000000000101", CurrencyCode: "RUB", Balance: dec("1000.00"), AccountTypeID: free.ID})
	dest := repo.AddAccount(domain.Account{Number: "40817810000000000102", CurrencyCode: "RUB", Balance: dec("0.00"), AccountTypeID: free.ID})
	engine := NewTransferEngine(repo, NewLedger(repo, repo), rates.NewCurrencyStore(repo, "RUB"), nil)

	const workers = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Transfer(context.Background(), request(source, dest, "30.00"))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrNotEnoughBalance)
		}()
	}
	wg.Wait()

	after, _ := repo.FindAccountByID(context.Background(), source.ID)
	credited, _ := repo.FindAccountByID(context.Background(), dest.ID)
	assert.Equal(t, 33, succeeded)
	assert.True(t, after.Balance.Equal(dec("10.00")), "source balance %s", after.Balance)
	assert.True(t, credited.Balance.Equal(dec("990.00")), "destination balance %s", credited.Balance)
	assert.Equal(t, 33, repo.TransactionCount())
}
