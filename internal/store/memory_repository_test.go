package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/ledger-service/internal/domain"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func seedAccounts(t *testing.T) (*MemoryRepository, domain.Account, domain.Account) {
	t.Helper()
	repo := NewMemoryRepository()
	repo.AddCurrency(domain.Currency{Code: "RUB", Symbol: "₽", MinorUnits: 2})
	accountType := repo.AddAccountType(domain.AccountType{Name: "standard"})
	a := repo.AddAccount(domain.Account{
		Number:        "40817810000000000001",
		CurrencyCode:  "RUB",
		Balance:       decimal.RequireFromString("100.00"),
		AccountTypeID: accountType.ID,
	})
	b := repo.AddAccount(domain.Account{
		Number:        "40817810000000000002",
		CurrencyCode:  "RUB",
		Balance:       decimal.RequireFromString("50.00"),
		AccountTypeID: accountType.ID,
	})
	return repo, a, b
}

func TestUniqueSortedIDs(t *testing.T) {
	tests := []struct {
		name string
		in   []int64
		want []int64
	}{
		{name: "already ordered", in: []int64{1, 2}, want: []int64{1, 2}},
		{name: "reversed", in: []int64{9, 3}, want: []int64{3, 9}},
		{name: "duplicate", in: []int64{4, 4}, want: []int64{4}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := uniqueSortedIDs(tc.in)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("expected %v, got %v", tc.want, got)
				}
			}
		})
	}
}

func TestWithinTransfer_DiscardsStagedWritesOnError(t *testing.T) {
	repo, a, b := seedAccounts(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.WithinTransfer(ctx, func(ctx context.Context, tx TransferTx) error {
		if _, err := tx.LockAccounts(ctx, b.ID, a.ID); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, a.ID, decimal.Zero); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, &domain.Transaction{ID: uuid.New(), SourceAccountNumber: a.Number}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	after, _ := repo.FindAccountByID(ctx, a.ID)
	if !after.Balance.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("expected balance untouched, got %s", after.Balance)
	}
	if repo.TransactionCount() != 0 {
		t.Fatalf("expected no transactions, got %d", repo.TransactionCount())
	}
}

func TestWithinTransfer_RejectsWritesToUnlockedAccounts(t *testing.T) {
	repo, a, _ := seedAccounts(t)
	ctx := context.Background()

	err := repo.WithinTransfer(ctx, func(ctx context.Context, tx TransferTx) error {
		return tx.SetBalance(ctx, a.ID, decimal.Zero)
	})
	if !errors.Is(err, ErrAccountNotLocked) {
		t.Fatalf("expected ErrAccountNotLocked, got %v", err)
	}
}

func TestWithinTransfer_OppositeDirectionsDoNotDeadlock(t *testing.T) {
	repo, a, b := seedAccounts(t)
	ctx := context.Background()

	move := func(from, to int64) error {
		return repo.WithinTransfer(ctx, func(ctx context.Context, tx TransferTx) error {
			locked, err := tx.LockAccounts(ctx, from, to)
			if err != nil {
				return err
			}
			if err := tx.SetBalance(ctx, from, locked[from].Balance.Sub(decimal.NewFromInt(1))); err != nil {
				return err
			}
			return tx.SetBalance(ctx, to, locked[to].Balance.Add(decimal.NewFromInt(1)))
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _ = move(a.ID, b.ID) }()
		go func() { defer wg.Done(); _ = move(b.ID, a.ID) }()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("transfers in opposite directions deadlocked")
	}

	afterA, _ := repo.FindAccountByID(ctx, a.ID)
	afterB, _ := repo.FindAccountByID(ctx, b.ID)
	if !afterA.Balance.Add(afterB.Balance).Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("expected total 150.00 preserved, got %s + %s", afterA.Balance, afterB.Balance)
	}
}

func TestFindRateAtOrBefore_ReturnsNewestNotAfterDate(t *testing.T) {
	repo := NewMemoryRepository()
	repo.AddCurrency(domain.Currency{Code: "USD", Symbol: "$", MinorUnits: 2})
	ctx := context.Background()

	_, _ = repo.InsertRates(ctx, []domain.ExchangeRate{
		{CurrencyCode: "USD", Date: day(2024, 1, 10), Rate: decimal.RequireFromString("89.5")},
		{CurrencyCode: "USD", Date: day(2024, 1, 12), Rate: decimal.RequireFromString("90.1")},
	})

	rate, err := repo.FindRateAtOrBefore(ctx, "USD", day(2024, 1, 11))
	if err != nil {
		t.Fatalf("FindRateAtOrBefore returned error: %v", err)
	}
	if !rate.Rate.Equal(decimal.RequireFromString("89.5")) {
		t.Fatalf("expected 89.5, got %s", rate.Rate)
	}

	if _, err := repo.FindRateAtOrBefore(ctx, "USD", day(2024, 1, 9)); !errors.Is(err, ErrRateNotFound) {
		t.Fatalf("expected ErrRateNotFound before first rate, got %v", err)
	}
}

func TestInsertRates_SkipsExistingAndUnknownCurrencies(t *testing.T) {
	repo := NewMemoryRepository()
	repo.AddCurrency(domain.Currency{Code: "USD", Symbol: "$", MinorUnits: 2})
	ctx := context.Background()

	first, _ := repo.InsertRates(ctx, []domain.ExchangeRate{
		{CurrencyCode: "USD", Date: day(2024, 1, 10), Rate: decimal.RequireFromString("89.5")},
		{CurrencyCode: "XYZ", Date: day(2024, 1, 10), Rate: decimal.RequireFromString("1")},
	})
	second, _ := repo.InsertRates(ctx, []domain.ExchangeRate{
		{CurrencyCode: "usd", Date: day(2024, 1, 10), Rate: decimal.RequireFromString("99")},
	})

	if first != 1 || second != 0 {
		t.Fatalf("expected 1 then 0 inserted, got %d then %d", first, second)
	}
	rates, _ := repo.FindLatestRates(ctx)
	if len(rates) != 1 || !rates[0].Rate.Equal(decimal.RequireFromString("89.5")) {
		t.Fatalf("expected original rate kept, got %+v", rates)
	}
}

func TestAddCurrency_KeepsZeroMinorUnits(t *testing.T) {
	repo := NewMemoryRepository()
	repo.AddCurrency(domain.Currency{Code: "jpy", Symbol: "¥", MinorUnits: 0})

	jpy, err := repo.FindCurrencyByCode(context.Background(), "JPY")
	if err != nil {
		t.Fatalf("expected JPY to be registered, got %v", err)
	}
	if jpy.MinorUnits != 0 {
		t.Fatalf("expected 0 minor units, got %d", jpy.MinorUnits)
	}
}
