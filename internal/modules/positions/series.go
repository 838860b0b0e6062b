// Package positions turns the transactions and prices of one stock into a daily
// series of held quantity, cost basis and market value.
package positions

import (
	"sort"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/tranches"
)

// Snapshot is the position of a stock at the close of a price date.
// ValuePct is nil when nothing is invested.
type Snapshot struct {
	Date        time.Time `json:"date"`
	Quantity    float64   `json:"quantity"`
	CostBasis   float64   `json:"cost_basis"`
	Close       float64   `json:"close"`
	MarketValue float64   `json:"market_value"`
	ValuePct    *float64  `json:"value_pct"`
}

// Series is the snapshot sequence of one stock in its native currency.
// Soft holds non-fatal conditions such as *domain.EmptySeriesError.
type Series struct {
	StockID   int64              `json:"stock_id"`
	Currency  domain.Currency    `json:"currency"`
	Snapshots []Snapshot         `json:"snapshots"`
	Tranches  []tranches.Tranche `json:"-"`
	Soft      []error            `json:"-"`
}

// Input is the read-only data one series is built from
type Input struct {
	StockID      int64
	Currency     domain.Currency
	Transactions []domain.Transaction
	Prices       []domain.PricePoint
}

// Build walks transaction and price dates in order. Transactions executed on a price
// date are applied before that date's snapshot. No snapshot is emitted before the first
// transaction; after a full close zero-value snapshots keep the series gap free.
// An oversell anywhere in the history aborts with *domain.InsufficientHoldingsError.
func Build(in Input) (*Series, error) {
	txs := tranches.SortTransactions(in.Transactions)
	prices := dedupePrices(in.Prices)

	book := tranches.NewBook(in.StockID)
	series := &Series{
		StockID:   in.StockID,
		Currency:  in.Currency,
		Snapshots: make([]Snapshot, 0, len(prices)),
	}

	next := 0
	for _, p := range prices {
		for next < len(txs) && !domain.Day(txs[next].ExecutedAt).After(p.Date) {
			if err := book.Apply(txs[next]); err != nil {
				return nil, err
			}
			next++
		}
		if next == 0 {
			continue
		}
		series.Snapshots = append(series.Snapshots, snapshot(p, book))
	}

	// Transactions after the last price still have to be valid
	for ; next < len(txs); next++ {
		if err := book.Apply(txs[next]); err != nil {
			return nil, err
		}
	}

	series.Tranches = book.Tranches()
	if len(txs) > 0 && len(series.Snapshots) == 0 {
		series.Soft = append(series.Soft, &domain.EmptySeriesError{StockID: in.StockID})
	}

	return series, nil
}

func snapshot(p domain.PricePoint, book *tranches.Book) Snapshot {
	qty := book.Held()
	cost := book.CostBasis()
	s := Snapshot{
		Date:        p.Date,
		Quantity:    qty,
		CostBasis:   cost,
		Close:       p.Close,
		MarketValue: qty * p.Close,
	}
	if cost > 0 {
		pct := s.MarketValue / cost * 100
		s.ValuePct = &pct
	}
	return s
}

// dedupePrices sorts by day and keeps the last bar of each day
func dedupePrices(prices []domain.PricePoint) []domain.PricePoint {
	sorted := make([]domain.PricePoint, len(prices))
	for i, p := range prices {
		p.Date = domain.Day(p.Date)
		sorted[i] = p
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	out := sorted[:0]
	for _, p := range sorted {
		if n := len(out); n > 0 && out[n-1].Date.Equal(p.Date) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

// IsEmpty reports whether the series has no snapshot
func (s *Series) IsEmpty() bool {
	return len(s.Snapshots) == 0
}

// FirstDate returns the date of the first snapshot
func (s *Series) FirstDate() (time.Time, bool) {
	if s.IsEmpty() {
		return time.Time{}, false
	}
	return s.Snapshots[0].Date, true
}

// LastDate returns the date of the last snapshot
func (s *Series) LastDate() (time.Time, bool) {
	if s.IsEmpty() {
		return time.Time{}, false
	}
	return s.Snapshots[len(s.Snapshots)-1].Date, true
}

// Last returns the most recent snapshot
func (s *Series) Last() (Snapshot, bool) {
	if s.IsEmpty() {
		return Snapshot{}, false
	}
	return s.Snapshots[len(s.Snapshots)-1], true
}

// SnapshotAt returns the most recent snapshot on or before date, carrying the last
// close forward over non-trading days.
func (s *Series) SnapshotAt(date time.Time) (Snapshot, bool) {
	d := domain.Day(date)
	i := sort.Search(len(s.Snapshots), func(i int) bool { return s.Snapshots[i].Date.After(d) })
	if i == 0 {
		return Snapshot{}, false
	}
	return s.Snapshots[i-1], true
}
