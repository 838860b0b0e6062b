package marketdata

import (
	"context"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
)

// PriceProvider fetches daily bars and live quotes for a ticker
type PriceProvider interface {
	Name() string
	FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]domain.PricePoint, error)
	FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error)
}

// ISINLookup maps an ISIN to a ticker through a search API
type ISINLookup interface {
	LookupISIN(ctx context.Context, isin string) (string, error)
}

// HistoricalRateSource returns daily EUR→quote reference rates
type HistoricalRateSource interface {
	DailyRates(ctx context.Context, quote domain.Currency, from, to time.Time) ([]domain.ExchangeRate, error)
}

// LatestRateSource returns how many units of each currency one unit of base buys
type LatestRateSource interface {
	LatestRates(ctx context.Context, base domain.Currency) (map[domain.Currency]float64, error)
}

// StockStore is the part of the stock repository market data needs
type StockStore interface {
	List(ctx context.Context) ([]domain.Stock, error)
	SetTicker(ctx context.Context, id int64, ticker string) error
}

// TransactionStore is the part of the transaction repository market data needs
type TransactionStore interface {
	ListAll(ctx context.Context) (map[int64][]domain.Transaction, error)
}
