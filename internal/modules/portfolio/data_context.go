package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/database"
	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/currency"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/marketdata"
	"github.com/degiro-portfolio/degiro-portfolio/internal/utils"
	"github.com/rs/zerolog"
)

// IndexSeries is a reference index with its closes
type IndexSeries struct {
	Index  domain.Index        `json:"index"`
	Closes []domain.PricePoint `json:"closes"`
}

// DataContext is the read-only input of every derived computation. It is
// loaded once per request from a single read transaction so that all series
// see the same state of the database.
type DataContext struct {
	Today        time.Time
	Stocks       []domain.Stock
	Transactions map[int64][]domain.Transaction
	Prices       map[int64][]domain.PricePoint
	Indices      []IndexSeries
	Rates        *currency.RateTable
}

// Stock returns the stock with the given id
func (d *DataContext) Stock(id int64) (domain.Stock, bool) {
	for _, s := range d.Stocks {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Stock{}, false
}

// Normalizer returns a currency normalizer over the loaded rates
func (d *DataContext) Normalizer() *currency.Normalizer {
	return currency.NewNormalizer(d.Rates)
}

// Index returns the closes of an index by symbol
func (d *DataContext) Index(symbol string) (IndexSeries, bool) {
	for _, idx := range d.Indices {
		if idx.Index.Symbol == symbol {
			return idx, true
		}
	}
	return IndexSeries{}, false
}

// Loader builds DataContext values from the database
type Loader struct {
	db  *database.DB
	log zerolog.Logger
	now func() time.Time
}

// NewLoader creates a new data context loader
func NewLoader(db *database.DB, log zerolog.Logger) *Loader {
	return &Loader{
		db:  db,
		log: log.With().Str("service", "data_context").Logger(),
		now: time.Now,
	}
}

// Load reads stocks, transactions, prices, indices and the exchange rates of
// every held currency inside one transaction, which is rolled back afterwards.
func (l *Loader) Load(ctx context.Context) (*DataContext, error) {
	defer utils.OperationTimer("load_data_context", l.log)()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stocks, err := NewStockRepository(tx, l.log).List(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := NewTransactionRepository(tx, l.log).ListAll(ctx)
	if err != nil {
		return nil, err
	}
	prices, err := marketdata.NewPriceRepository(tx, l.log).ListAll(ctx)
	if err != nil {
		return nil, err
	}

	indexRepo := marketdata.NewIndexRepository(tx, l.log)
	indices, err := indexRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	indexSeries := make([]IndexSeries, 0, len(indices))
	for _, idx := range indices {
		closes, err := indexRepo.ListCloses(ctx, idx.ID, time.Time{})
		if err != nil {
			return nil, err
		}
		indexSeries = append(indexSeries, IndexSeries{Index: idx, Closes: closes})
	}

	currencies := heldCurrencies(stocks)
	rates := currency.NewRateTable()
	if len(currencies) > 0 {
		if rates, err = marketdata.NewRateRepository(tx, l.log).LoadTable(ctx, currencies...); err != nil {
			return nil, err
		}
	}

	l.log.Debug().
		Int("stocks", len(stocks)).
		Int("rates", rates.Len()).
		Msg("Data context loaded")

	return &DataContext{
		Today:        domain.Day(l.now()),
		Stocks:       stocks,
		Transactions: txs,
		Prices:       prices,
		Indices:      indexSeries,
		Rates:        rates,
	}, nil
}

func heldCurrencies(stocks []domain.Stock) []domain.Currency {
	seen := make(map[domain.Currency]bool)
	var out []domain.Currency
	for _, s := range stocks {
		if s.Currency == "" || s.Currency == domain.BaseCurrency || seen[s.Currency] {
			continue
		}
		seen[s.Currency] = true
		out = append(out, s.Currency)
	}
	return out
}
