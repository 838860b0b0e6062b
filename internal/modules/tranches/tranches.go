// Package tranches splits the transaction history of a stock into FIFO purchase lots
// and values each lot against the price series.
package tranches

import (
	"sort"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/shopspring/decimal"
)

// Closing is the part of a sell that consumed a tranche
type Closing struct {
	TransactionID int64     `json:"transaction_id"`
	Date          time.Time `json:"date"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"`
	CostBasis     float64   `json:"cost_basis"`
	Proceeds      float64   `json:"proceeds"` // net of the proportional sell fee
	RealizedGain  float64   `json:"realized_gain"`
}

// Tranche is a lot opened by one buy transaction
type Tranche struct {
	ID                   int             `json:"id"`
	StockID              int64           `json:"stock_id"`
	OpeningTransactionID int64           `json:"opening_transaction_id"`
	OpenedAt             time.Time       `json:"opened_at"`
	Currency             domain.Currency `json:"currency"`
	Quantity             float64         `json:"quantity"`
	UnitCost             float64         `json:"unit_cost"`  // price plus fee per share
	CostBasis            float64         `json:"cost_basis"` // original cost of the whole lot
	Closings             []Closing       `json:"closings"`
	ClosedQuantity       float64         `json:"closed_quantity"`
	RemainingQuantity    float64         `json:"remaining_quantity"`
	ClosedAt             *time.Time      `json:"closed_at"`
}

// IsOpen reports whether shares of the tranche are still held
func (t Tranche) IsOpen() bool {
	return t.ClosedAt == nil
}

// OpenCostBasis is the original cost of the shares still held
func (t Tranche) OpenCostBasis() float64 {
	return t.costAt(nil).InexactFloat64()
}

// RealizedGain sums the gains of every closing
func (t Tranche) RealizedGain() float64 {
	sum := decimal.Zero
	for _, c := range t.Closings {
		sum = sum.Add(decimal.NewFromFloat(c.RealizedGain))
	}
	return sum.InexactFloat64()
}

// RemainingAt returns the quantity still held at the end of day
func (t Tranche) RemainingAt(day time.Time) float64 {
	cutoff := domain.Day(day)
	remaining := decimal.NewFromFloat(t.Quantity)
	for _, c := range t.Closings {
		if !domain.Day(c.Date).After(cutoff) {
			remaining = remaining.Sub(decimal.NewFromFloat(c.Quantity))
		}
	}
	return remaining.InexactFloat64()
}

// costAt returns the original cost of shares held at the end of day, or now when day is nil
func (t Tranche) costAt(day *time.Time) decimal.Decimal {
	cost := decimal.NewFromFloat(t.CostBasis)
	for _, c := range t.Closings {
		if day == nil || !domain.Day(c.Date).After(domain.Day(*day)) {
			cost = cost.Sub(decimal.NewFromFloat(c.CostBasis))
		}
	}
	return cost
}

// Calculate returns the FIFO tranches of one stock. Transactions are ordered by
// execution time; ties keep their input order. On oversell no tranches are returned.
func Calculate(stockID int64, txs []domain.Transaction) ([]Tranche, error) {
	book := NewBook(stockID)
	for _, tx := range SortTransactions(txs) {
		if err := book.Apply(tx); err != nil {
			return nil, err
		}
	}
	return book.Tranches(), nil
}

// SortTransactions returns a copy of txs ordered by execution time (stable)
func SortTransactions(txs []domain.Transaction) []domain.Transaction {
	sorted := append([]domain.Transaction(nil), txs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExecutedAt.Before(sorted[j].ExecutedAt)
	})
	return sorted
}

// ValuePoint is the value of a tranche's held shares on a price date
type ValuePoint struct {
	Date      time.Time `json:"date"`
	Quantity  float64   `json:"quantity"`
	Value     float64   `json:"value"`
	CostBasis float64   `json:"cost_basis"`
	ValuePct  float64   `json:"value_pct"`
}

// ValueSeries values the shares of t still held on every price date from its opening
// day until it is fully closed. value_pct = held × close / cost of held shares × 100.
func ValueSeries(t Tranche, prices []domain.PricePoint) []ValuePoint {
	opened := domain.Day(t.OpenedAt)
	sorted := append([]domain.PricePoint(nil), prices...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var points []ValuePoint
	var last time.Time
	for _, p := range sorted {
		d := domain.Day(p.Date)
		if d.Before(opened) || (len(points) > 0 && !d.After(last)) {
			continue
		}
		qty := t.RemainingAt(d)
		if qty <= 0 {
			break
		}
		cost := t.costAt(&d).InexactFloat64()
		value := qty * p.Close
		point := ValuePoint{Date: d, Quantity: qty, Value: value, CostBasis: cost}
		if cost > 0 {
			point.ValuePct = value / cost * 100
		}
		points = append(points, point)
		last = d
	}
	return points
}
