// Package portfolio provides stock and transaction storage and the read models
// built from them: holdings, tranches, performance and the EUR valuation history.
package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/database"
	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/degiro-portfolio/degiro-portfolio/internal/events"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/marketdata"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/positions"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/tranches"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/valuation"
	"github.com/degiro-portfolio/degiro-portfolio/pkg/formulas"
	"github.com/rs/zerolog"
)

// BenchmarkIndex is the index stock returns are correlated with
const BenchmarkIndex = "^GSPC"

// shareEpsilon absorbs float noise when deciding whether a position is closed
const shareEpsilon = 1e-9

// Service builds portfolio read models
type Service struct {
	db     *database.DB
	loader *Loader
	stocks *StockRepository
	txs    *TransactionRepository
	prices *marketdata.PriceRepository
	events *events.Manager
	log    zerolog.Logger
}

// NewService creates a portfolio service. eventManager may be nil.
func NewService(db *database.DB, loader *Loader, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		loader: loader,
		stocks: NewStockRepository(db.Conn(), log),
		txs:    NewTransactionRepository(db.Conn(), log),
		prices: marketdata.NewPriceRepository(db.Conn(), log),
		events: eventManager,
		log:    log.With().Str("service", "portfolio").Logger(),
	}
}

// Stocks exposes the stock repository
func (s *Service) Stocks() *StockRepository {
	return s.stocks
}

// Transactions exposes the transaction repository
func (s *Service) Transactions() *TransactionRepository {
	return s.txs
}

// Holding is one row of the holdings table
type Holding struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Symbol            string          `json:"symbol"`
	ISIN              string          `json:"isin"`
	Currency          domain.Currency `json:"currency"`
	Ticker            string          `json:"ticker"`
	Exchange          string          `json:"exchange"`
	Shares            float64         `json:"shares"`
	TransactionsCount int             `json:"transactions_count"`
	Closed            bool            `json:"closed"`
}

// Holdings lists every imported stock with its current share count
func (s *Service) Holdings(ctx context.Context) ([]Holding, error) {
	stocks, err := s.stocks.List(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := s.txs.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	holdings := make([]Holding, 0, len(stocks))
	for _, stock := range stocks {
		shares := 0.0
		for _, tx := range txs[stock.ID] {
			shares += tx.Quantity
		}
		shares = roundShares(shares)
		holdings = append(holdings, Holding{
			ID:                stock.ID,
			Name:              stock.Name,
			Symbol:            stock.Symbol,
			ISIN:              stock.ISIN,
			Currency:          stock.Currency,
			Ticker:            stock.Ticker,
			Exchange:          stock.Exchange,
			Shares:            shares,
			TransactionsCount: len(txs[stock.ID]),
			Closed:            math.Abs(shares) < shareEpsilon,
		})
	}
	return holdings, nil
}

// GetStock returns a stock or *domain.NotFoundError
func (s *Service) GetStock(ctx context.Context, id int64) (*domain.Stock, error) {
	return s.stocks.GetByID(ctx, id)
}

// StockTransactions returns the transactions of one stock in execution order
func (s *Service) StockTransactions(ctx context.Context, id int64) ([]domain.Transaction, error) {
	if _, err := s.stocks.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.txs.ListByStock(ctx, id)
}

// StockPrices returns the stored daily prices of one stock
func (s *Service) StockPrices(ctx context.Context, id int64) ([]domain.PricePoint, error) {
	if _, err := s.stocks.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.prices.ListByStock(ctx, id, time.Time{}, time.Time{})
}

// TrancheView is a tranche with its daily value series
type TrancheView struct {
	tranches.Tranche
	RealizedGain float64               `json:"realized_gain"`
	CurrentValue float64               `json:"current_value"`
	ValuePct     *float64              `json:"value_pct"`
	Series       []tranches.ValuePoint `json:"series"`
}

// StockTranches returns the FIFO tranches of one stock valued against its prices
func (s *Service) StockTranches(ctx context.Context, id int64) ([]TrancheView, error) {
	dc, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := dc.Stock(id); !ok {
		return nil, &domain.NotFoundError{Entity: "stock", ID: id}
	}
	return TrancheViews(id, dc.Transactions[id], dc.Prices[id])
}

// TrancheViews computes tranche views from raw transactions and prices
func TrancheViews(stockID int64, txs []domain.Transaction, prices []domain.PricePoint) ([]TrancheView, error) {
	list, err := tranches.Calculate(stockID, txs)
	if err != nil {
		return nil, err
	}

	views := make([]TrancheView, 0, len(list))
	for _, t := range list {
		view := TrancheView{
			Tranche:      t,
			RealizedGain: t.RealizedGain(),
			Series:       tranches.ValueSeries(t, prices),
		}
		if n := len(view.Series); n > 0 && t.IsOpen() {
			last := view.Series[n-1]
			view.CurrentValue = last.Value
			pct := last.ValuePct
			view.ValuePct = &pct
		}
		views = append(views, view)
	}
	return views, nil
}

// StockError reports a stock excluded from an aggregate because of a data error
type StockError struct {
	StockID int64  `json:"stock_id"`
	Name    string `json:"name"`
	Error   string `json:"error"`
}

// BuildSeries builds the position series of every stock with transactions.
// Stocks whose history is invalid are left out and reported.
func BuildSeries(dc *DataContext) ([]*positions.Series, []StockError) {
	var (
		series []*positions.Series
		failed []StockError
	)
	for _, stock := range dc.Stocks {
		txs := dc.Transactions[stock.ID]
		if len(txs) == 0 {
			continue
		}
		ps, err := positions.Build(positions.Input{
			StockID:      stock.ID,
			Currency:     stock.Currency,
			Transactions: txs,
			Prices:       dc.Prices[stock.ID],
		})
		if err != nil {
			failed = append(failed, StockError{StockID: stock.ID, Name: stock.Name, Error: err.Error()})
			continue
		}
		series = append(series, ps)
	}
	return series, failed
}

// ValuationHistory is the EUR portfolio timeline in column form
type ValuationHistory struct {
	Dates          []string     `json:"dates"`
	Values         []float64    `json:"values"`
	Invested       []float64    `json:"invested"`
	IsExtrapolated []bool       `json:"is_extrapolated"`
	LastPricedDate *string      `json:"last_priced_date"`
	Warnings       []string     `json:"warnings"`
	Errors         []StockError `json:"errors,omitempty"`
}

// ValuationHistory aggregates every position into the EUR timeline
func (s *Service) ValuationHistory(ctx context.Context) (*ValuationHistory, error) {
	dc, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return BuildValuationHistory(dc), nil
}

// BuildValuationHistory computes the timeline of a loaded data context
func BuildValuationHistory(dc *DataContext) *ValuationHistory {
	series, failed := BuildSeries(dc)
	timeline := valuation.Aggregate(series, dc.Normalizer(), dc.Today)

	history := &ValuationHistory{
		Dates:          make([]string, 0, len(timeline.Points)),
		Values:         make([]float64, 0, len(timeline.Points)),
		Invested:       make([]float64, 0, len(timeline.Points)),
		IsExtrapolated: make([]bool, 0, len(timeline.Points)),
		Warnings:       []string{},
		Errors:         failed,
	}
	for _, p := range timeline.Points {
		history.Dates = append(history.Dates, p.Date.Format(domain.DateFormat))
		history.Values = append(history.Values, round2(p.TotalValueEUR))
		history.Invested = append(history.Invested, round2(p.InvestedEUR))
		history.IsExtrapolated = append(history.IsExtrapolated, p.IsExtrapolated)
	}
	if timeline.LastPricedDate != nil {
		d := timeline.LastPricedDate.Format(domain.DateFormat)
		history.LastPricedDate = &d
	}
	for _, w := range timeline.Warnings {
		history.Warnings = append(history.Warnings, w.Error())
	}
	return history
}

// StockPerformance summarizes one stock for the performance table
type StockPerformance struct {
	ID                     int64           `json:"id"`
	Name                   string          `json:"name"`
	Ticker                 string          `json:"ticker"`
	Currency               domain.Currency `json:"currency"`
	Shares                 float64         `json:"shares"`
	LastPrice              *float64        `json:"last_price"`
	LastPriceDate          *string         `json:"last_price_date"`
	CurrentValue           float64         `json:"current_value"`
	CostBasis              float64         `json:"cost_basis"`
	CurrentValueEUR        *float64        `json:"current_value_eur"`
	CostBasisEUR           *float64        `json:"cost_basis_eur"`
	ValuePct               *float64        `json:"value_pct"`
	RealizedGain           float64         `json:"realized_gain"`
	AnnualizedVolatility   *float64        `json:"annualized_volatility"`
	MaxDrawdown            *float64        `json:"max_drawdown"`
	PriceCAGR              *float64        `json:"price_cagr"`
	CorrelationToBenchmark *float64        `json:"correlation_sp500"`
	Error                  string          `json:"error,omitempty"`
}

// Performance returns per stock value, cost, gains and risk statistics
func (s *Service) Performance(ctx context.Context) ([]StockPerformance, error) {
	dc, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return BuildPerformance(dc), nil
}

// BuildPerformance computes the performance rows of a loaded data context
func BuildPerformance(dc *DataContext) []StockPerformance {
	norm := dc.Normalizer()
	benchmark, _ := dc.Index(BenchmarkIndex)
	today := dc.Today

	var rows []StockPerformance
	for _, stock := range dc.Stocks {
		txs := dc.Transactions[stock.ID]
		if len(txs) == 0 {
			continue
		}
		row := StockPerformance{ID: stock.ID, Name: stock.Name, Ticker: stock.Ticker, Currency: stock.Currency}

		list, err := tranches.Calculate(stock.ID, txs)
		if err != nil {
			row.Error = err.Error()
			rows = append(rows, row)
			continue
		}

		for _, t := range list {
			row.Shares += t.RemainingQuantity
			row.CostBasis += t.OpenCostBasis()
			row.RealizedGain += t.RealizedGain()
		}
		row.Shares = roundShares(row.Shares)
		row.CostBasis = round2(row.CostBasis)
		row.RealizedGain = round2(row.RealizedGain)

		prices := dc.Prices[stock.ID]
		if n := len(prices); n > 0 {
			last := prices[n-1]
			price := last.Close
			date := last.Date.Format(domain.DateFormat)
			row.LastPrice = &price
			row.LastPriceDate = &date
			row.CurrentValue = round2(row.Shares * price)
			if row.CostBasis > 0 {
				pct := round2(row.CurrentValue / row.CostBasis * 100)
				row.ValuePct = &pct
			}
		}

		if row.LastPrice != nil {
			if value := norm.ToBase(row.CurrentValue, stock.Currency, &today); value.Converted {
				v := round2(value.Amount)
				row.CurrentValueEUR = &v
			}
		}
		if cost := norm.ToBase(row.CostBasis, stock.Currency, &today); cost.Converted {
			c := round2(cost.Amount)
			row.CostBasisEUR = &c
		}

		row.PriceCAGR = priceCAGR(prices, txs)

		closes := closesOf(prices)
		if len(closes) > formulas.TradingDaysPerYear+1 {
			closes = closes[len(closes)-formulas.TradingDaysPerYear-1:]
		}
		if returns := formulas.CalculateReturns(closes); len(returns) >= 2 {
			vol := formulas.AnnualizedVolatility(returns)
			row.AnnualizedVolatility = &vol
			dd := formulas.MaxDrawdown(closes)
			row.MaxDrawdown = &dd
		}
		if corr, ok := benchmarkCorrelation(prices, benchmark.Closes); ok {
			row.CorrelationToBenchmark = &corr
		}

		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}

// priceCAGR annualizes the price change from the first close on or after the
// first transaction to the last close
func priceCAGR(prices []domain.PricePoint, txs []domain.Transaction) *float64 {
	if len(prices) < 2 || len(txs) == 0 {
		return nil
	}
	first := domain.Day(txs[0].ExecutedAt)
	for _, tx := range txs[1:] {
		if d := domain.Day(tx.ExecutedAt); d.Before(first) {
			first = d
		}
	}
	i := sort.Search(len(prices), func(i int) bool { return !prices[i].Date.Before(first) })
	last := prices[len(prices)-1]
	if i >= len(prices)-1 {
		return nil
	}
	days := int(last.Date.Sub(prices[i].Date).Hours() / 24)
	return formulas.CalculateCAGR(prices[i].Close, last.Close, days)
}

// benchmarkCorrelation correlates daily returns on the dates both series traded
func benchmarkCorrelation(prices, index []domain.PricePoint) (float64, bool) {
	if len(prices) < 3 || len(index) < 3 {
		return 0, false
	}
	byDate := make(map[time.Time]float64, len(index))
	for _, p := range index {
		byDate[domain.Day(p.Date)] = p.Close
	}

	var stockCloses, indexCloses []float64
	for _, p := range prices {
		if c, ok := byDate[domain.Day(p.Date)]; ok {
			stockCloses = append(stockCloses, p.Close)
			indexCloses = append(indexCloses, c)
		}
	}
	if len(stockCloses) < 3 {
		return 0, false
	}
	return formulas.Correlation(formulas.CalculateReturns(stockCloses), formulas.CalculateReturns(indexCloses)), true
}

// PurgeResult holds the number of rows deleted per table
type PurgeResult struct {
	Stocks        int64 `json:"stocks"`
	Transactions  int64 `json:"transactions"`
	StockPrices   int64 `json:"stock_prices"`
	Indices       int64 `json:"indices"`
	IndexPrices   int64 `json:"index_prices"`
	ImportBatches int64 `json:"import_batches"`
}

// Purge deletes all portfolio and market data in one transaction.
// Exchange rates are kept since they do not depend on the imported data.
func (s *Service) Purge(ctx context.Context) (*PurgeResult, error) {
	result := &PurgeResult{}
	steps := []struct {
		table string
		count *int64
	}{
		{"transactions", &result.Transactions},
		{"stock_prices", &result.StockPrices},
		{"index_prices", &result.IndexPrices},
		{"indices", &result.Indices},
		{"stocks", &result.Stocks},
		{"import_batches", &result.ImportBatches},
		{"quote_cache", nil},
	}

	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		for _, step := range steps {
			res, err := tx.ExecContext(ctx, "DELETE FROM "+step.table)
			if err != nil {
				return fmt.Errorf("failed to purge %s: %w", step.table, err)
			}
			if step.count != nil {
				if *step.count, err = res.RowsAffected(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Warn().
		Int64("stocks", result.Stocks).
		Int64("transactions", result.Transactions).
		Int64("stock_prices", result.StockPrices).
		Msg("Database purged")

	s.events.Emit("portfolio", &events.DatabasePurgedData{Deleted: map[string]int64{
		"stocks":       result.Stocks,
		"transactions": result.Transactions,
		"stock_prices": result.StockPrices,
		"indices":      result.Indices,
		"index_prices": result.IndexPrices,
	}})
	return result, nil
}

// IsNotFound reports whether err is a *domain.NotFoundError
func IsNotFound(err error) bool {
	var nf *domain.NotFoundError
	return errors.As(err, &nf)
}

func closesOf(prices []domain.PricePoint) []float64 {
	out := make([]float64, len(prices))
	for i, p := range prices {
		out[i] = p.Close
	}
	return out
}

func roundShares(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
