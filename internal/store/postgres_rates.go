package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/transfa/ledger-service/internal/domain"
)

// FindCurrencyByCode retrieves a supported currency by its ISO code.
func (r *PostgresRepository) FindCurrencyByCode(ctx context.Context, code string) (domain.Currency, error) {
	var currency domain.Currency
	err := r.db.QueryRow(ctx, "SELECT id, code, symbol, minor_units FROM currencies WHERE code = $1", code).
		Scan(&currency.ID, &currency.Code, &currency.Symbol, &currency.MinorUnits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Currency{}, ErrCurrencyNotFound
		}
		return domain.Currency{}, err
	}
	return currency, nil
}

// ListCurrencies returns every supported currency ordered by code.
func (r *PostgresRepository) ListCurrencies(ctx context.Context) ([]domain.Currency, error) {
	rows, err := r.db.Query(ctx, "SELECT id, code, symbol, minor_units FROM currencies ORDER BY code")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	currencies := make([]domain.Currency, 0)
	for rows.Next() {
		var currency domain.Currency
		if err := rows.Scan(&currency.ID, &currency.Code, &currency.Symbol, &currency.MinorUnits); err != nil {
			return nil, err
		}
		currencies = append(currencies, currency)
	}
	return currencies, rows.Err()
}

// FindRateAtOrBefore returns the newest rate for code whose date is not after date.
func (r *PostgresRepository) FindRateAtOrBefore(ctx context.Context, code string, date time.Time) (domain.ExchangeRate, error) {
	var rate domain.ExchangeRate
	err := r.db.QueryRow(ctx, `
		SELECT c.code, er.date, er.rate
		FROM exchange_rates er
		JOIN currencies c ON c.id = er.currency_id
		WHERE c.code = $1 AND er.date <= $2
		ORDER BY er.date DESC
		LIMIT 1
	`, code, domain.DateOf(date)).Scan(&rate.CurrencyCode, &rate.Date, &rate.Rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExchangeRate{}, ErrRateNotFound
		}
		return domain.ExchangeRate{}, err
	}
	return rate, nil
}

func (r *PostgresRepository) FindLatestRates(ctx context.Context) ([]domain.ExchangeRate, error) {
	return r.queryRates(ctx, `
		SELECT c.code, er.date, er.rate
		FROM exchange_rates er
		JOIN currencies c ON c.id = er.currency_id
		WHERE er.date = (SELECT MAX(date) FROM exchange_rates)
		ORDER BY c.code
	`)
}

func (r *PostgresRepository) FindRatesAtDate(ctx context.Context, date time.Time) ([]domain.ExchangeRate, error) {
	return r.queryRates(ctx, `
		SELECT c.code, er.date, er.rate
		FROM exchange_rates er
		JOIN currencies c ON c.id = er.currency_id
		WHERE er.date = $1
		ORDER BY c.code
	`, domain.DateOf(date))
}

func (r *PostgresRepository) FindRatesInRange(ctx context.Context, start, end time.Time) ([]domain.ExchangeRate, error) {
	return r.queryRates(ctx, `
		SELECT c.code, er.date, er.rate
		FROM exchange_rates er
		JOIN currencies c ON c.id = er.currency_id
		WHERE er.date BETWEEN $1 AND $2
		ORDER BY er.date, c.code
	`, domain.DateOf(start), domain.DateOf(end))
}

// InsertRates appends rates in one transaction. Existing (currency, date) rows are kept.
func (r *PostgresRepository) InsertRates(ctx context.Context, rates []domain.ExchangeRate) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, rate := range rates {
		tag, err := tx.Exec(ctx, `
			INSERT INTO exchange_rates (currency_id, date, rate)
			SELECT id, $2, $3 FROM currencies WHERE code = $1
			ON CONFLICT (currency_id, date) DO NOTHING
		`, rate.CurrencyCode, domain.DateOf(rate.Date), rate.Rate)
		if err != nil {
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *PostgresRepository) queryRates(ctx context.Context, query string, args ...interface{}) ([]domain.ExchangeRate, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rates := make([]domain.ExchangeRate, 0)
	for rows.Next() {
		var rate domain.ExchangeRate
		if err := rows.Scan(&rate.CurrencyCode, &rate.Date, &rate.Rate); err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}
