package rates

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/transfa/ledger-service/internal/domain"
)

// CachedRepository decorates a Repository with an in-process TTL cache of
// currency and rate lookups. Errors are never cached, and neither is a rate
// dated before the requested day. Flush must be called after new rates are written.
type CachedRepository struct {
	next  Repository
	cache *cache.Cache
}

func NewCachedRepository(next Repository, ttl time.Duration) *CachedRepository {
	return &CachedRepository{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedRepository) FindCurrencyByCode(ctx context.Context, code string) (domain.Currency, error) {
	key := "currency:" + code
	if cached, ok := c.cache.Get(key); ok {
		return cached.(domain.Currency), nil
	}
	currency, err := c.next.FindCurrencyByCode(ctx, code)
	if err != nil {
		return domain.Currency{}, err
	}
	c.cache.SetDefault(key, currency)
	return currency, nil
}

func (c *CachedRepository) ListCurrencies(ctx context.Context) ([]domain.Currency, error) {
	return c.next.ListCurrencies(ctx)
}

func (c *CachedRepository) FindRateAtOrBefore(ctx context.Context, code string, date time.Time) (domain.ExchangeRate, error) {
	key := fmt.Sprintf("rate:%s:%s", code, domain.DateOf(date).Format(time.DateOnly))
	if cached, ok := c.cache.Get(key); ok {
		return cached.(domain.ExchangeRate), nil
	}
	rate, err := c.next.FindRateAtOrBefore(ctx, code, date)
	if err != nil {
		return domain.ExchangeRate{}, err
	}
	// A fallback to an earlier day may be superseded by another replica's ingestion.
	if domain.DateOf(rate.Date).Equal(domain.DateOf(date)) {
		c.cache.SetDefault(key, rate)
	}
	return rate, nil
}

func (c *CachedRepository) FindLatestRates(ctx context.Context) ([]domain.ExchangeRate, error) {
	const key = "latest"
	if cached, ok := c.cache.Get(key); ok {
		return cached.([]domain.ExchangeRate), nil
	}
	rates, err := c.next.FindLatestRates(ctx)
	if err != nil {
		return nil, err
	}
	if len(rates) > 0 {
		c.cache.SetDefault(key, rates)
	}
	return rates, nil
}

func (c *CachedRepository) FindRatesAtDate(ctx context.Context, date time.Time) ([]domain.ExchangeRate, error) {
	return c.next.FindRatesAtDate(ctx, date)
}

func (c *CachedRepository) FindRatesInRange(ctx context.Context, start, end time.Time) ([]domain.ExchangeRate, error) {
	return c.next.FindRatesInRange(ctx, start, end)
}

// Flush drops every cached entry.
func (c *CachedRepository) Flush() {
	c.cache.Flush()
}
