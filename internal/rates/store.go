/**
 * @description
 * The currency and rate store answers conversion questions and serves the read-only
 * exchange-rate queries. Every rate is quoted against a single base currency, so a
 * conversion between two foreign currencies goes through the base.
 *
 * @dependencies
 * - github.com/shopspring/decimal: exact rate arithmetic.
 * - internal/store: currency and rate repositories.
 */

package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/internal/store"
)

// Store is the read contract used by the transfer engine and the HTTP layer.
type Store interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string, date time.Time) (decimal.Decimal, error)
	FindLatest(ctx context.Context) ([]domain.ExchangeRate, error)
	FindAllAtDate(ctx context.Context, date time.Time) ([]domain.ExchangeRate, error)
	FindAllInRange(ctx context.Context, start, end time.Time) ([]domain.ExchangeRate, error)
}

// Repository is the subset of store.Repository the rate store reads from.
type Repository interface {
	store.CurrencyRepository
	FindRateAtOrBefore(ctx context.Context, code string, date time.Time) (domain.ExchangeRate, error)
	FindLatestRates(ctx context.Context) ([]domain.ExchangeRate, error)
	FindRatesAtDate(ctx context.Context, date time.Time) ([]domain.ExchangeRate, error)
	FindRatesInRange(ctx context.Context, start, end time.Time) ([]domain.ExchangeRate, error)
}

// CurrencyStore implements Store on top of a Repository.
type CurrencyStore struct {
	repo         Repository
	baseCurrency string
}

func NewCurrencyStore(repo Repository, baseCurrency string) *CurrencyStore {
	return &CurrencyStore{repo: repo, baseCurrency: domain.NormalizeCurrencyCode(baseCurrency)}
}

// Convert returns amount of currency from expressed in currency to on date,
// rounded half away from zero to the minor unit of to. Equal currencies are
// returned unchanged without any lookup.
func (s *CurrencyStore) Convert(ctx context.Context, amount decimal.Decimal, from, to string, date time.Time) (decimal.Decimal, error) {
	from = domain.NormalizeCurrencyCode(from)
	to = domain.NormalizeCurrencyCode(to)
	if from == to {
		return amount, nil
	}

	if _, err := s.currency(ctx, from); err != nil {
		return decimal.Decimal{}, err
	}
	target, err := s.currency(ctx, to)
	if err != nil {
		return decimal.Decimal{}, err
	}

	rateFrom, err := s.rateAgainstBase(ctx, from, date)
	if err != nil {
		return decimal.Decimal{}, err
	}
	rateTo, err := s.rateAgainstBase(ctx, to, date)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if rateTo.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("%w: zero rate for %s", domain.ErrRateNotFound, to)
	}

	return amount.Mul(rateFrom).DivRound(rateTo, target.MinorUnits), nil
}

func (s *CurrencyStore) currency(ctx context.Context, code string) (domain.Currency, error) {
	currency, err := s.repo.FindCurrencyByCode(ctx, code)
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

func (s *CurrencyStore) rateAgainstBase(ctx context.Context, code string, date time.Time) (decimal.Decimal, error) {
	if code == s.baseCurrency {
		return decimal.NewFromInt(1), nil
	}
	rate, err := s.repo.FindRateAtOrBefore(ctx, code, date)
	if err != nil {
		if errors.Is(err, store.ErrRateNotFound) {
			return decimal.Decimal{}, fmt.Errorf("%w: %s on %s", domain.ErrRateNotFound, code, domain.DateOf(date).Format(time.DateOnly))
		}
		return decimal.Decimal{}, fmt.Errorf("find rate %s: %w", code, err)
	}
	return rate.Rate, nil
}

// FindLatest returns the rates of the most recent rate date.
func (s *CurrencyStore) FindLatest(ctx context.Context) ([]domain.ExchangeRate, error) {
	return nonEmpty(s.repo.FindLatestRates(ctx))
}

func (s *CurrencyStore) FindAllAtDate(ctx context.Context, date time.Time) ([]domain.ExchangeRate, error) {
	return nonEmpty(s.repo.FindRatesAtDate(ctx, date))
}

func (s *CurrencyStore) FindAllInRange(ctx context.Context, start, end time.Time) ([]domain.ExchangeRate, error) {
	return nonEmpty(s.repo.FindRatesInRange(ctx, start, end))
}

// An empty result means the ingestion job has not produced data yet.
func nonEmpty(rates []domain.ExchangeRate, err error) ([]domain.ExchangeRate, error) {
	if err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, domain.ErrExchangeRatesNotFound
	}
	return rates, nil
}
