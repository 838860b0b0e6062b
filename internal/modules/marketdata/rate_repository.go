package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/database"
	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/currency"
	"github.com/rs/zerolog"
)

// RateRepository stores dated exchange rates
type RateRepository struct {
	db  database.Querier
	log zerolog.Logger
}

// NewRateRepository creates a new exchange rate repository
func NewRateRepository(db database.Querier, log zerolog.Logger) *RateRepository {
	return &RateRepository{
		db:  db,
		log: log.With().Str("repo", "exchange_rates").Logger(),
	}
}

// Upsert stores rates, replacing the value of an existing (pair, date)
func (r *RateRepository) Upsert(ctx context.Context, rates []domain.ExchangeRate) (int, error) {
	stored := 0
	for _, rate := range rates {
		if rate.Rate <= 0 {
			continue
		}
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO exchange_rates (base, quote, date, rate, source) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(base, quote, date) DO UPDATE SET rate = excluded.rate, source = excluded.source
		`, string(rate.Base), string(rate.Quote), database.ToUnixDay(rate.Date), rate.Rate, rate.Source); err != nil {
			return stored, fmt.Errorf("failed to store %s/%s rate: %w", rate.Base, rate.Quote, err)
		}
		stored++
	}
	return stored, nil
}

// List returns stored rates whose pair involves one of the currencies (all when none given)
func (r *RateRepository) List(ctx context.Context, currencies ...domain.Currency) ([]domain.ExchangeRate, error) {
	query := "SELECT base, quote, date, rate, source FROM exchange_rates"
	var args []interface{}
	if len(currencies) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(currencies)), ",")
		query += fmt.Sprintf(" WHERE base IN (%s) OR quote IN (%s)", placeholders, placeholders)
		for i := 0; i < 2; i++ {
			for _, c := range currencies {
				args = append(args, string(c))
			}
		}
	}
	query += " ORDER BY base, quote, date"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange rates: %w", err)
	}
	defer rows.Close()

	var rates []domain.ExchangeRate
	for rows.Next() {
		var (
			rate        domain.ExchangeRate
			base, quote string
			date        int64
		)
		if err := rows.Scan(&base, &quote, &date, &rate.Rate, &rate.Source); err != nil {
			return nil, fmt.Errorf("failed to scan exchange rate: %w", err)
		}
		rate.Base = domain.Currency(base)
		rate.Quote = domain.Currency(quote)
		rate.Date = database.FromUnix(date)
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

// LoadTable builds the request-scoped rate table for the given currencies
func (r *RateRepository) LoadTable(ctx context.Context, currencies ...domain.Currency) (*currency.RateTable, error) {
	rates, err := r.List(ctx, currencies...)
	if err != nil {
		return nil, err
	}
	return currency.NewRateTableFrom(rates), nil
}

// LastDate returns the newest stored date of a pair, or nil
func (r *RateRepository) LastDate(ctx context.Context, base, quote domain.Currency) (*time.Time, error) {
	var last *int64
	err := r.db.QueryRowContext(ctx,
		"SELECT MAX(date) FROM exchange_rates WHERE base = ? AND quote = ?", string(base), string(quote)).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to get last %s/%s rate date: %w", base, quote, err)
	}
	if last == nil {
		return nil, nil
	}
	t := database.FromUnix(*last)
	return &t, nil
}
