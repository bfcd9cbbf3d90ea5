/**
 * @description
 * Scheduled exchange-rate ingestion. The job downloads the central bank daily feed,
 * converts each quote to a per-unit rate against the base currency and appends it
 * to the rate table. Rates already stored for a (currency, date) are kept. A
 * backfill walks the preceding days through the per-date feed so a fresh
 * database or a missed run does not leave gaps in the rate history.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/pkg/cbrclient"
)

const rateScale = 10

// ErrEmptyRateFeed is returned when the feed carries no usable rate.
var ErrEmptyRateFeed = errors.New("rate feed contains no rates")

// RateFeed downloads the daily rates.
type RateFeed interface {
	FetchDaily(ctx context.Context) (cbrclient.DailyRates, error)
	FetchForDate(ctx context.Context, date time.Time) (cbrclient.DailyRates, error)
}

// RateWriter defines the database operations needed by the ingestion job.
type RateWriter interface {
	ListCurrencies(ctx context.Context) ([]domain.Currency, error)
	InsertRates(ctx context.Context, rates []domain.ExchangeRate) (int, error)
}

// CacheFlusher drops cached rate lookups.
type CacheFlusher interface {
	Flush()
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	feed         RateFeed
	repo         RateWriter
	cache        CacheFlusher
	publisher    EventPublisher
	logger       *slog.Logger
	baseCurrency string
	timeout      time.Duration
	now          func() time.Time
}

// NewJobs creates a new Jobs runner. cache and publisher may be nil.
func NewJobs(feed RateFeed, repo RateWriter, cache CacheFlusher, publisher EventPublisher, logger *slog.Logger, baseCurrency string) *Jobs {
	return &Jobs{
		feed:         feed,
		repo:         repo,
		cache:        cache,
		publisher:    publisher,
		logger:       logger,
		baseCurrency: domain.NormalizeCurrencyCode(baseCurrency),
		timeout:      2 * time.Minute,
		now:          time.Now,
	}
}

// IngestExchangeRates is the cron entry point.
func (j *Jobs) IngestExchangeRates() {
	j.logger.Info("starting exchange rate ingestion job")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	inserted, err := j.Ingest(ctx)
	if err != nil {
		j.logger.Error("exchange rate ingestion failed", "error", err)
		return
	}

	j.logger.Info("exchange rate ingestion job finished", "inserted", inserted)
}

// BackfillExchangeRates ingests the days preceding today. It runs once at startup.
func (j *Jobs) BackfillExchangeRates(days int) {
	j.logger.Info("starting exchange rate backfill", "days", days)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(days)*j.timeout)
	defer cancel()

	inserted, err := j.Backfill(ctx, days)
	if err != nil {
		j.logger.Error("exchange rate backfill failed", "inserted", inserted, "error", err)
		return
	}

	j.logger.Info("exchange rate backfill finished", "inserted", inserted)
}

// Ingest fetches and stores one daily feed and returns the number of new rates.
func (j *Jobs) Ingest(ctx context.Context) (int, error) {
	daily, err := j.feed.FetchDaily(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch daily rates: %w", err)
	}
	return j.store(ctx, daily)
}

// Backfill fetches the feed for each of the days days before today, oldest
// first, and returns the number of new rates. Days already stored are skipped
// by the append-only insert.
func (j *Jobs) Backfill(ctx context.Context, days int) (int, error) {
	today := domain.DateOf(j.now())
	total := 0
	for i := days; i >= 1; i-- {
		date := today.AddDate(0, 0, -i)
		daily, err := j.feed.FetchForDate(ctx, date)
		if err != nil {
			return total, fmt.Errorf("fetch rates for %s: %w", date.Format(time.DateOnly), err)
		}
		inserted, err := j.store(ctx, daily)
		if errors.Is(err, ErrEmptyRateFeed) {
			j.logger.Warn("no usable rates for date", "date", date.Format(time.DateOnly))
			continue
		}
		if err != nil {
			return total, err
		}
		total += inserted
	}
	return total, nil
}

func (j *Jobs) store(ctx context.Context, daily cbrclient.DailyRates) (int, error) {
	currencies, err := j.repo.ListCurrencies(ctx)
	if err != nil {
		return 0, fmt.Errorf("list currencies: %w", err)
	}
	known := make(map[string]struct{}, len(currencies))
	for _, currency := range currencies {
		known[currency.Code] = struct{}{}
	}

	date := domain.DateOf(daily.Date)
	rates := make([]domain.ExchangeRate, 0, len(daily.Rates))
	for _, line := range daily.Rates {
		code := domain.NormalizeCurrencyCode(line.CharCode)
		if code == j.baseCurrency {
			continue
		}
		if _, ok := known[code]; !ok {
			continue
		}
		if line.Nominal <= 0 || !line.Value.IsPositive() {
			j.logger.Warn("skipping malformed rate", "currency", code, "nominal", line.Nominal, "value", line.Value.String())
			continue
		}
		rates = append(rates, domain.ExchangeRate{
			CurrencyCode: code,
			Date:         date,
			Rate:         line.Value.DivRound(decimal.NewFromInt(line.Nominal), rateScale),
		})
	}
	if len(rates) == 0 {
		return 0, ErrEmptyRateFeed
	}

	inserted, err := j.repo.InsertRates(ctx, rates)
	if err != nil {
		return 0, fmt.Errorf("insert rates: %w", err)
	}
	if inserted == 0 {
		return 0, nil
	}

	if j.cache != nil {
		j.cache.Flush()
	}
	j.publishUpdated(ctx, date, inserted, rates)
	return inserted, nil
}

func (j *Jobs) publishUpdated(ctx context.Context, date time.Time, inserted int, rates []domain.ExchangeRate) {
	if j.publisher == nil {
		return
	}
	codes := make([]string, 0, len(rates))
	for _, rate := range rates {
		codes = append(codes, rate.CurrencyCode)
	}
	sort.Strings(codes)

	event := domain.ExchangeRatesUpdatedEvent{
		EventID:    uuid.NewString(),
		Date:       date,
		Inserted:   inserted,
		Currencies: codes,
		OccurredAt: time.Now().UTC(),
	}
	if err := j.publisher.PublishExchangeRatesUpdated(ctx, event); err != nil {
		j.logger.Warn("exchange rates updated event publish failed", "error", err)
	}
}
