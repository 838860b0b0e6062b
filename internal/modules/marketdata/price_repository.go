package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/database"
	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/rs/zerolog"
)

// PriceRepository stores daily stock prices. Existing (stock, date) rows are never
// overwritten; inserts only fill gaps.
type PriceRepository struct {
	db  database.Querier
	log zerolog.Logger
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(db database.Querier, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  db,
		log: log.With().Str("repo", "stock_prices").Logger(),
	}
}

// InsertBars stores bars for a stock and returns how many were new
func (r *PriceRepository) InsertBars(ctx context.Context, stockID int64, currency domain.Currency, bars []domain.PricePoint) (int, error) {
	inserted := 0
	for _, bar := range bars {
		if bar.Close <= 0 {
			continue
		}
		res, err := r.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO stock_prices (stock_id, date, open, high, low, close, volume, currency)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, stockID, database.ToUnixDay(bar.Date), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, string(currency))
		if err != nil {
			return inserted, fmt.Errorf("failed to insert price of stock %d on %s: %w",
				stockID, bar.Date.Format(domain.DateFormat), err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// ListByStock returns the prices of a stock in date order. Zero from/to are unbounded.
func (r *PriceRepository) ListByStock(ctx context.Context, stockID int64, from, to time.Time) ([]domain.PricePoint, error) {
	query := "SELECT date, open, high, low, close, volume FROM stock_prices WHERE stock_id = ?"
	args := []interface{}{stockID}
	if !from.IsZero() {
		query += " AND date >= ?"
		args = append(args, database.ToUnixDay(from))
	}
	if !to.IsZero() {
		query += " AND date <= ?"
		args = append(args, database.ToUnixDay(to))
	}
	query += " ORDER BY date"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices of stock %d: %w", stockID, err)
	}
	defer rows.Close()
	return scanBars(rows)
}

// ListAll returns every stock price grouped by stock id
func (r *PriceRepository) ListAll(ctx context.Context) (map[int64][]domain.PricePoint, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT stock_id, date, open, high, low, close, volume FROM stock_prices ORDER BY stock_id, date")
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	grouped := make(map[int64][]domain.PricePoint)
	for rows.Next() {
		var (
			stockID int64
			date    int64
			p       domain.PricePoint
		)
		if err := rows.Scan(&stockID, &date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		p.Date = database.FromUnix(date)
		grouped[stockID] = append(grouped[stockID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}
	return grouped, nil
}

// LastDate returns the newest stored price date of a stock, or nil
func (r *PriceRepository) LastDate(ctx context.Context, stockID int64) (*time.Time, error) {
	var last sql.NullInt64
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(date) FROM stock_prices WHERE stock_id = ?", stockID).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to get last price date of stock %d: %w", stockID, err)
	}
	if !last.Valid {
		return nil, nil
	}
	t := database.FromUnix(last.Int64)
	return &t, nil
}

// Status summarizes stored prices
type Status struct {
	StocksWithPrices int        `json:"stocks_with_prices"`
	PriceRows        int        `json:"price_rows"`
	LastUpdate       *time.Time `json:"last_update"`
}

// Status returns how much price data is stored
func (r *PriceRepository) Status(ctx context.Context) (*Status, error) {
	var (
		s    Status
		last sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT stock_id), COUNT(*), MAX(date) FROM stock_prices").Scan(&s.StocksWithPrices, &s.PriceRows, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to query price status: %w", err)
	}
	if last.Valid {
		t := database.FromUnix(last.Int64)
		s.LastUpdate = &t
	}
	return &s, nil
}

func scanBars(rows *sql.Rows) ([]domain.PricePoint, error) {
	var prices []domain.PricePoint
	for rows.Next() {
		var (
			p    domain.PricePoint
			date int64
		)
		if err := rows.Scan(&date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		p.Date = database.FromUnix(date)
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}
	return prices, nil
}
