package tranches

import (
	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/shopspring/decimal"
)

// lot is the mutable FIFO state behind one tranche
type lot struct {
	tranche       *Tranche
	remaining     decimal.Decimal
	remainingCost decimal.Decimal
}

// Book applies transactions of one stock in order and keeps FIFO lots.
// Quantities and costs are tracked as decimals so partial closings add up exactly.
type Book struct {
	stockID int64
	lots    []*lot
	nextID  int
	applied int
}

// NewBook creates an empty lot book for a stock
func NewBook(stockID int64) *Book {
	return &Book{stockID: stockID, nextID: 1}
}

// Apply adds a buy as a new lot or consumes open lots for a sell.
// A sell larger than the held quantity returns *domain.InsufficientHoldingsError
// and leaves the book untouched.
func (b *Book) Apply(tx domain.Transaction) error {
	qty := decimal.NewFromFloat(tx.Quantity)
	switch {
	case qty.IsPositive():
		b.buy(tx, qty)
	case qty.IsNegative():
		if err := b.sell(tx, qty.Neg()); err != nil {
			return err
		}
	}
	b.applied++
	return nil
}

// Applied returns how many transactions were applied
func (b *Book) Applied() int {
	return b.applied
}

func (b *Book) buy(tx domain.Transaction, qty decimal.Decimal) {
	cost := qty.Mul(decimal.NewFromFloat(tx.Price)).Add(decimal.NewFromFloat(tx.Fee))
	t := &Tranche{
		ID:                   b.nextID,
		StockID:              b.stockID,
		OpeningTransactionID: tx.ID,
		OpenedAt:             tx.ExecutedAt,
		Currency:             tx.Currency,
		Quantity:             qty.InexactFloat64(),
		UnitCost:             cost.Div(qty).InexactFloat64(),
		CostBasis:            cost.InexactFloat64(),
		RemainingQuantity:    qty.InexactFloat64(),
	}
	b.nextID++
	b.lots = append(b.lots, &lot{tranche: t, remaining: qty, remainingCost: cost})
}

func (b *Book) sell(tx domain.Transaction, qty decimal.Decimal) error {
	held := b.held()
	if qty.GreaterThan(held) {
		return &domain.InsufficientHoldingsError{
			StockID:       b.stockID,
			TransactionID: tx.ID,
			Date:          tx.ExecutedAt,
			Requested:     qty.InexactFloat64(),
			Held:          held.InexactFloat64(),
		}
	}

	price := decimal.NewFromFloat(tx.Price)
	fee := decimal.NewFromFloat(tx.Fee)
	total := qty
	toSell := qty

	for _, l := range b.lots {
		if toSell.IsZero() {
			break
		}
		if !l.remaining.IsPositive() {
			continue
		}

		portion := decimal.Min(l.remaining, toSell)
		var cost decimal.Decimal
		if portion.Equal(l.remaining) {
			cost = l.remainingCost
		} else {
			cost = l.remainingCost.Mul(portion).Div(l.remaining)
		}
		feeShare := fee.Mul(portion).Div(total)
		proceeds := portion.Mul(price).Sub(feeShare)

		l.remaining = l.remaining.Sub(portion)
		l.remainingCost = l.remainingCost.Sub(cost)
		toSell = toSell.Sub(portion)

		t := l.tranche
		t.Closings = append(t.Closings, Closing{
			TransactionID: tx.ID,
			Date:          tx.ExecutedAt,
			Quantity:      portion.InexactFloat64(),
			Price:         tx.Price,
			CostBasis:     cost.InexactFloat64(),
			Proceeds:      proceeds.InexactFloat64(),
			RealizedGain:  proceeds.Sub(cost).InexactFloat64(),
		})
		closed := decimal.NewFromFloat(t.Quantity).Sub(l.remaining)
		t.ClosedQuantity = closed.InexactFloat64()
		t.RemainingQuantity = l.remaining.InexactFloat64()
		if l.remaining.IsZero() {
			closedAt := tx.ExecutedAt
			t.ClosedAt = &closedAt
		}
	}

	return nil
}

func (b *Book) held() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range b.lots {
		sum = sum.Add(l.remaining)
	}
	return sum
}

// Held returns the quantity currently held
func (b *Book) Held() float64 {
	return b.held().InexactFloat64()
}

// CostBasis returns the FIFO cost of the quantity currently held
func (b *Book) CostBasis() float64 {
	sum := decimal.Zero
	for _, l := range b.lots {
		sum = sum.Add(l.remainingCost)
	}
	return sum.InexactFloat64()
}

// Tranches returns copies of every tranche opened so far, oldest first
func (b *Book) Tranches() []Tranche {
	out := make([]Tranche, 0, len(b.lots))
	for _, l := range b.lots {
		t := *l.tranche
		t.Closings = append([]Closing(nil), l.tranche.Closings...)
		out = append(out, t)
	}
	return out
}
