package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/database"
	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/rs/zerolog"
)

// IndexRepository stores reference indices and their closes
type IndexRepository struct {
	db  database.Querier
	log zerolog.Logger
}

// NewIndexRepository creates a new index repository
func NewIndexRepository(db database.Querier, log zerolog.Logger) *IndexRepository {
	return &IndexRepository{
		db:  db,
		log: log.With().Str("repo", "indices").Logger(),
	}
}

// Ensure creates the index if needed and returns it
func (r *IndexRepository) Ensure(ctx context.Context, symbol, name string) (*domain.Index, error) {
	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO indices (symbol, name) VALUES (?, ?) ON CONFLICT(symbol) DO UPDATE SET name = excluded.name",
		symbol, name); err != nil {
		return nil, fmt.Errorf("failed to ensure index %s: %w", symbol, err)
	}

	idx := domain.Index{Symbol: symbol, Name: name}
	if err := r.db.QueryRowContext(ctx, "SELECT id FROM indices WHERE symbol = ?", symbol).Scan(&idx.ID); err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", symbol, err)
	}
	return &idx, nil
}

// List returns every index
func (r *IndexRepository) List(ctx context.Context) ([]domain.Index, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, symbol, name FROM indices ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query indices: %w", err)
	}
	defer rows.Close()

	var indices []domain.Index
	for rows.Next() {
		var idx domain.Index
		if err := rows.Scan(&idx.ID, &idx.Symbol, &idx.Name); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		indices = append(indices, idx)
	}
	return indices, rows.Err()
}

// InsertCloses stores index closes, skipping dates already present
func (r *IndexRepository) InsertCloses(ctx context.Context, indexID int64, bars []domain.PricePoint) (int, error) {
	inserted := 0
	for _, bar := range bars {
		if bar.Close <= 0 {
			continue
		}
		res, err := r.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO index_prices (index_id, date, close) VALUES (?, ?, ?)",
			indexID, database.ToUnixDay(bar.Date), bar.Close)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert close of index %d: %w", indexID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// ListCloses returns the closes of an index from a date on (zero from is unbounded)
func (r *IndexRepository) ListCloses(ctx context.Context, indexID int64, from time.Time) ([]domain.PricePoint, error) {
	query := "SELECT date, close FROM index_prices WHERE index_id = ?"
	args := []interface{}{indexID}
	if !from.IsZero() {
		query += " AND date >= ?"
		args = append(args, database.ToUnixDay(from))
	}
	rows, err := r.db.QueryContext(ctx, query+" ORDER BY date", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query closes of index %d: %w", indexID, err)
	}
	defer rows.Close()

	var closes []domain.PricePoint
	for rows.Next() {
		var date int64
		var close float64
		if err := rows.Scan(&date, &close); err != nil {
			return nil, fmt.Errorf("failed to scan index close: %w", err)
		}
		d := database.FromUnix(date)
		closes = append(closes, domain.PricePoint{Date: d, Open: close, High: close, Low: close, Close: close})
	}
	return closes, rows.Err()
}

// LastDate returns the newest stored close of an index, or nil
func (r *IndexRepository) LastDate(ctx context.Context, indexID int64) (*time.Time, error) {
	var last *int64
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(date) FROM index_prices WHERE index_id = ?", indexID).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to get last close of index %d: %w", indexID, err)
	}
	if last == nil {
		return nil, nil
	}
	t := database.FromUnix(*last)
	return &t, nil
}
