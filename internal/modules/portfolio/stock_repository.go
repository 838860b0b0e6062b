package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/database"
	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/rs/zerolog"
)

// StockRepository handles stock database operations
type StockRepository struct {
	db  database.Querier
	log zerolog.Logger
}

// NewStockRepository creates a new stock repository
func NewStockRepository(db database.Querier, log zerolog.Logger) *StockRepository {
	return &StockRepository{
		db:  db,
		log: log.With().Str("repo", "stock").Logger(),
	}
}

const stockColumns = `id, isin, name, symbol, currency, exchange, ticker, created_at`

// Upsert inserts a stock or refreshes name, symbol and exchange of an existing ISIN.
// The ticker and currency of an existing stock are kept.
func (r *StockRepository) Upsert(ctx context.Context, s domain.Stock) (int64, error) {
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stocks (isin, name, symbol, currency, exchange, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(isin) DO UPDATE SET
			name = excluded.name,
			symbol = CASE WHEN excluded.symbol != '' THEN excluded.symbol ELSE stocks.symbol END,
			exchange = CASE WHEN excluded.exchange != '' THEN excluded.exchange ELSE stocks.exchange END
	`, s.ISIN, s.Name, s.Symbol, string(s.Currency), s.Exchange, createdAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to upsert stock %s: %w", s.ISIN, err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, "SELECT id FROM stocks WHERE isin = ?", s.ISIN).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read id of stock %s: %w", s.ISIN, err)
	}
	return id, nil
}

// GetByID returns a stock or *domain.NotFoundError
func (r *StockRepository) GetByID(ctx context.Context, id int64) (*domain.Stock, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+stockColumns+" FROM stocks WHERE id = ?", id)
	s, err := scanStock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "stock", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock %d: %w", id, err)
	}
	return s, nil
}

// GetByISIN returns a stock or *domain.NotFoundError
func (r *StockRepository) GetByISIN(ctx context.Context, isin string) (*domain.Stock, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+stockColumns+" FROM stocks WHERE isin = ?", isin)
	s, err := scanStock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "stock", ID: isin}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock %s: %w", isin, err)
	}
	return s, nil
}

// List returns every stock ordered by name
func (r *StockRepository) List(ctx context.Context) ([]domain.Stock, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+stockColumns+" FROM stocks ORDER BY name COLLATE NOCASE, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks: %w", err)
	}
	defer rows.Close()

	var stocks []domain.Stock
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		stocks = append(stocks, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stocks: %w", err)
	}
	return stocks, nil
}

// SetTicker stores the resolved market data ticker of a stock
func (r *StockRepository) SetTicker(ctx context.Context, id int64, ticker string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE stocks SET ticker = ? WHERE id = ?", ticker, id)
	if err != nil {
		return fmt.Errorf("failed to set ticker of stock %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.NotFoundError{Entity: "stock", ID: id}
	}
	return nil
}

// Count returns the number of stocks
func (r *StockRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stocks").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count stocks: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStock(row rowScanner) (*domain.Stock, error) {
	var (
		s         domain.Stock
		currency  string
		ticker    sql.NullString
		createdAt int64
	)
	if err := row.Scan(&s.ID, &s.ISIN, &s.Name, &s.Symbol, &currency, &s.Exchange, &ticker, &createdAt); err != nil {
		return nil, err
	}
	s.Currency = domain.Currency(currency)
	if ticker.Valid {
		s.Ticker = ticker.String
	}
	s.CreatedAt = database.FromUnix(createdAt)
	return &s, nil
}
