package rates

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/shopspring/decimal"
	"github.com/transfa/ledger-service/internal/domain"
)

// loggingStore decorates a Store with logging
type loggingStore struct {
	next   Store
	logger log.Logger
}

// NewLoggingStore returns a Store that logs every call to next.
func NewLoggingStore(logger log.Logger, s Store) Store {
	return &loggingStore{
		next:   s,
		logger: logger,
	}
}

func (s *loggingStore) Convert(ctx context.Context, amount decimal.Decimal, from, to string, date time.Time) (converted decimal.Decimal, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "convert",
			"amount", amount,
			"from", from,
			"to", to,
			"date", date.Format(time.DateOnly),
			"converted", converted,
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.Convert(ctx, amount, from, to, date)
}

func (s *loggingStore) FindLatest(ctx context.Context) (rates []domain.ExchangeRate, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "find_latest",
			"count", len(rates),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.FindLatest(ctx)
}

func (s *loggingStore) FindAllAtDate(ctx context.Context, date time.Time) (rates []domain.ExchangeRate, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "find_all_at_date",
			"date", date.Format(time.DateOnly),
			"count", len(rates),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.FindAllAtDate(ctx, date)
}

func (s *loggingStore) FindAllInRange(ctx context.Context, start, end time.Time) (rates []domain.ExchangeRate, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "find_all_in_range",
			"start", start.Format(time.DateOnly),
			"end", end.Format(time.DateOnly),
			"count", len(rates),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.FindAllInRange(ctx, start, end)
}
