package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/clientdata"
	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/degiro-portfolio/degiro-portfolio/internal/events"
	"github.com/rs/zerolog"
)

// ReferenceIndex is a market index tracked next to the stock charts
type ReferenceIndex struct {
	Symbol string
	Name   string
}

// ReferenceIndices are fetched on every market data update
var ReferenceIndices = []ReferenceIndex{
	{Symbol: "^GSPC", Name: "S&P 500"},
	{Symbol: "^STOXX50E", Name: "Euro Stoxx 50"},
}

// ErrUpdateInProgress is returned when UpdateAll is called while another update runs
var ErrUpdateInProgress = errors.New("market data update already in progress")

// Service keeps prices, index closes and exchange rates up to date
type Service struct {
	stocks   StockStore
	txs      TransactionStore
	prices   *PriceRepository
	indices  *IndexRepository
	rates    *RateRepository
	provider PriceProvider
	resolver *TickerResolver
	ecb      HistoricalRateSource
	latest   LatestRateSource
	cache    *clientdata.Repository
	events   *events.Manager

	historyStart time.Time
	now          func() time.Time
	log          zerolog.Logger

	updating sync.Mutex
}

// Deps bundles the collaborators of Service. Rate sources, cache and events are optional.
type Deps struct {
	Stocks       StockStore
	Transactions TransactionStore
	Prices       *PriceRepository
	Indices      *IndexRepository
	Rates        *RateRepository
	Provider     PriceProvider
	Resolver     *TickerResolver
	ECB          HistoricalRateSource
	Latest       LatestRateSource
	Cache        *clientdata.Repository
	Events       *events.Manager
	HistoryStart time.Time
}

// NewService creates a market data service
func NewService(deps Deps, log zerolog.Logger) *Service {
	return &Service{
		stocks:       deps.Stocks,
		txs:          deps.Transactions,
		prices:       deps.Prices,
		indices:      deps.Indices,
		rates:        deps.Rates,
		provider:     deps.Provider,
		resolver:     deps.Resolver,
		ecb:          deps.ECB,
		latest:       deps.Latest,
		cache:        deps.Cache,
		events:       deps.Events,
		historyStart: deps.HistoryStart,
		now:          time.Now,
		log:          log.With().Str("service", "marketdata").Logger(),
	}
}

// ProviderName returns the configured price provider
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// ResolveTickers resolves tickers for stocks that have none and returns how many were set
func (s *Service) ResolveTickers(ctx context.Context) (int, error) {
	stocks, err := s.stocks.List(ctx)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, stock := range stocks {
		if stock.Ticker != "" {
			continue
		}
		ticker := s.resolver.Resolve(ctx, stock)
		if ticker == "" {
			continue
		}
		if err := s.stocks.SetTicker(ctx, stock.ID, ticker); err != nil {
			return resolved, err
		}
		resolved++
		s.log.Info().Str("isin", stock.ISIN).Str("ticker", ticker).Msg("Ticker resolved")
	}
	return resolved, nil
}

// SyncStockPrices fetches missing daily prices for one stock, from the day
// after the last stored price (or the first transaction) until today.
// Returns the number of new rows; provider failures yield 0 and are logged.
func (s *Service) SyncStockPrices(ctx context.Context, stock domain.Stock, firstTransaction time.Time) int {
	if stock.Ticker == "" {
		s.log.Debug().Str("isin", stock.ISIN).Msg("No ticker, skipping price sync")
		return 0
	}

	today := domain.Day(s.now())
	from := domain.Day(firstTransaction)
	last, err := s.prices.LastDate(ctx, stock.ID)
	if err != nil {
		s.log.Error().Err(err).Int64("stock_id", stock.ID).Msg("Failed to read last price date")
		return 0
	}
	if last != nil && !last.Before(from) {
		from = last.AddDate(0, 0, 1)
	}
	if from.After(today) {
		return 0
	}

	bars, err := s.provider.FetchHistory(ctx, stock.Ticker, from, today)
	if err != nil {
		s.log.Warn().Err(err).
			Str("ticker", stock.Ticker).
			Str("provider", s.provider.Name()).
			Msg("Failed to fetch prices")
		return 0
	}
	if len(bars) == 0 {
		return 0
	}

	inserted, err := s.prices.InsertBars(ctx, stock.ID, stock.Currency, bars)
	if err != nil {
		s.log.Error().Err(err).Str("ticker", stock.Ticker).Msg("Failed to store prices")
		return inserted
	}

	s.log.Info().Str("ticker", stock.Ticker).Int("inserted", inserted).Msg("Prices synced")
	return inserted
}

// SyncAllPrices syncs prices of every stock that has transactions
func (s *Service) SyncAllPrices(ctx context.Context) (int, error) {
	stocks, err := s.stocks.List(ctx)
	if err != nil {
		return 0, err
	}
	txs, err := s.txs.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, stock := range stocks {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		first, ok := firstTransactionDate(txs[stock.ID])
		if !ok {
			continue
		}
		total += s.SyncStockPrices(ctx, stock, first)
	}
	return total, nil
}

// SyncIndices fetches missing closes of the reference indices
func (s *Service) SyncIndices(ctx context.Context) (int, error) {
	today := domain.Day(s.now())
	total := 0

	for _, ref := range ReferenceIndices {
		idx, err := s.indices.Ensure(ctx, ref.Symbol, ref.Name)
		if err != nil {
			return total, err
		}

		from := domain.Day(s.historyStart)
		last, err := s.indices.LastDate(ctx, idx.ID)
		if err != nil {
			return total, err
		}
		if last != nil {
			from = last.AddDate(0, 0, 1)
		}
		if from.After(today) {
			continue
		}

		bars, err := s.provider.FetchHistory(ctx, ref.Symbol, from, today)
		if err != nil {
			s.log.Warn().Err(err).Str("index", ref.Symbol).Msg("Failed to fetch index prices")
			continue
		}

		inserted, err := s.indices.InsertCloses(ctx, idx.ID, bars)
		if err != nil {
			return total, err
		}
		total += inserted
		s.log.Info().Str("index", ref.Symbol).Int("inserted", inserted).Msg("Index prices synced")
	}
	return total, nil
}

// SyncRates stores ECB reference rates for every non-EUR currency held and,
// when the ECB has not published today's fix, the latest market rate.
func (s *Service) SyncRates(ctx context.Context) (int, error) {
	currencies, err := s.heldCurrencies(ctx)
	if err != nil {
		return 0, err
	}
	if len(currencies) == 0 {
		return 0, nil
	}

	today := domain.Day(s.now())
	stored := 0

	if s.ecb != nil {
		for _, cur := range currencies {
			from := domain.Day(s.historyStart)
			last, err := s.rates.LastDate(ctx, domain.CurrencyEUR, cur)
			if err != nil {
				return stored, err
			}
			if last != nil {
				from = last.AddDate(0, 0, 1)
			}
			if from.After(today) {
				continue
			}

			daily, err := s.ecb.DailyRates(ctx, cur, from, today)
			if err != nil {
				s.log.Warn().Err(err).Str("currency", string(cur)).Msg("Failed to fetch ECB rates")
				continue
			}
			n, err := s.rates.Upsert(ctx, daily)
			if err != nil {
				return stored, err
			}
			stored += n
		}
	}

	if s.latest != nil {
		latest, err := s.latest.LatestRates(ctx, domain.CurrencyEUR)
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to fetch latest exchange rates")
			return stored, nil
		}
		var todays []domain.ExchangeRate
		for _, cur := range currencies {
			rate, ok := latest[cur]
			if !ok {
				continue
			}
			last, err := s.rates.LastDate(ctx, domain.CurrencyEUR, cur)
			if err != nil {
				return stored, err
			}
			if last != nil && !last.Before(today) {
				continue
			}
			todays = append(todays, domain.ExchangeRate{
				Base: domain.CurrencyEUR, Quote: cur, Date: today, Rate: rate, Source: "exchangerate-api",
			})
		}
		n, err := s.rates.Upsert(ctx, todays)
		if err != nil {
			return stored, err
		}
		stored += n
	}

	return stored, nil
}

// LiveQuote is the current price of a held stock
type LiveQuote struct {
	StockID   int64           `json:"stock_id" msgpack:"stock_id"`
	Ticker    string          `json:"ticker" msgpack:"ticker"`
	Price     float64         `json:"price" msgpack:"price"`
	Currency  domain.Currency `json:"currency" msgpack:"currency"`
	FetchedAt time.Time       `json:"fetched_at" msgpack:"fetched_at"`
	Cached    bool            `json:"cached" msgpack:"-"`
}

// RefreshLiveQuotes fetches the current price of every held stock with a
// ticker. Quotes younger than the live quote TTL are served from cache.
func (s *Service) RefreshLiveQuotes(ctx context.Context) ([]LiveQuote, error) {
	stocks, err := s.stocks.List(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := s.txs.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var quotes []LiveQuote
	for _, stock := range stocks {
		if stock.Ticker == "" || heldShares(txs[stock.ID]) <= 0 {
			continue
		}

		var cached LiveQuote
		if s.cache != nil {
			if ok, err := s.cache.GetIfFresh(clientdata.TableQuotes, stock.Ticker, &cached); err == nil && ok {
				cached.StockID = stock.ID
				cached.Cached = true
				quotes = append(quotes, cached)
				continue
			}
		}

		quote, err := s.provider.FetchQuote(ctx, stock.Ticker)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", stock.Ticker).Msg("Failed to fetch live quote")
			continue
		}

		live := LiveQuote{
			StockID:   stock.ID,
			Ticker:    stock.Ticker,
			Price:     quote.Price,
			Currency:  stock.Currency,
			FetchedAt: quote.FetchedAt,
		}
		if s.cache != nil {
			if err := s.cache.Store(clientdata.TableQuotes, stock.Ticker, live, clientdata.TTLLiveQuote); err != nil {
				s.log.Warn().Err(err).Str("ticker", stock.Ticker).Msg("Failed to cache live quote")
			}
		}
		quotes = append(quotes, live)
	}

	s.events.Emit("marketdata", &events.LiveQuotesRefreshedData{Quotes: len(quotes)})
	return quotes, nil
}

// UpdateResult summarizes a full market data update
type UpdateResult struct {
	TickersResolved int      `json:"tickers_resolved"`
	PricesInserted  int      `json:"prices_inserted"`
	IndexPrices     int      `json:"index_prices"`
	RatesStored     int      `json:"rates_stored"`
	Errors          []string `json:"errors,omitempty"`
}

// UpdateAll resolves tickers, then syncs prices, indices and rates. A failing
// step is recorded, published as an error event, and does not stop the following ones.
func (s *Service) UpdateAll(ctx context.Context) (*UpdateResult, error) {
	if !s.updating.TryLock() {
		return nil, ErrUpdateInProgress
	}
	defer s.updating.Unlock()

	start := time.Now()
	result := &UpdateResult{}

	fail := func(step string, err error) {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", step, err))
		s.events.EmitError("marketdata", err, map[string]interface{}{"step": step})
	}

	var err error
	if result.TickersResolved, err = s.ResolveTickers(ctx); err != nil {
		fail("resolve tickers", err)
	}
	if result.PricesInserted, err = s.SyncAllPrices(ctx); err != nil {
		fail("prices", err)
	}
	if result.IndexPrices, err = s.SyncIndices(ctx); err != nil {
		fail("indices", err)
	}
	if result.RatesStored, err = s.SyncRates(ctx); err != nil {
		fail("rates", err)
	}

	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	s.log.Info().
		Int("tickers", result.TickersResolved).
		Int("prices", result.PricesInserted).
		Int("index_prices", result.IndexPrices).
		Int("rates", result.RatesStored).
		Int("errors", len(result.Errors)).
		Dur("duration", time.Since(start)).
		Msg("Market data update finished")

	s.events.Emit("marketdata", &events.MarketDataUpdatedData{
		TickersResolved: result.TickersResolved,
		PricesInserted:  result.PricesInserted,
		IndexPrices:     result.IndexPrices,
		RatesStored:     result.RatesStored,
	})
	return result, nil
}

// DataStatus reports whether price data exists and how fresh it is
type DataStatus struct {
	HasData          bool       `json:"has_data"`
	LastUpdate       *time.Time `json:"last_update"`
	StocksWithPrices int        `json:"stocks_with_prices"`
	TotalStocks      int        `json:"total_stocks"`
	Provider         string     `json:"provider"`
}

// Status returns the market data status shown on the dashboard
func (s *Service) Status(ctx context.Context) (*DataStatus, error) {
	priceStatus, err := s.prices.Status(ctx)
	if err != nil {
		return nil, err
	}
	stocks, err := s.stocks.List(ctx)
	if err != nil {
		return nil, err
	}
	return &DataStatus{
		HasData:          priceStatus.PriceRows > 0,
		LastUpdate:       priceStatus.LastUpdate,
		StocksWithPrices: priceStatus.StocksWithPrices,
		TotalStocks:      len(stocks),
		Provider:         s.provider.Name(),
	}, nil
}

func (s *Service) heldCurrencies(ctx context.Context) ([]domain.Currency, error) {
	stocks, err := s.stocks.List(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[domain.Currency]bool)
	for _, stock := range stocks {
		if stock.Currency != "" && stock.Currency != domain.CurrencyEUR {
			set[stock.Currency] = true
		}
	}
	out := make([]domain.Currency, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func firstTransactionDate(txs []domain.Transaction) (time.Time, bool) {
	if len(txs) == 0 {
		return time.Time{}, false
	}
	first := txs[0].ExecutedAt
	for _, tx := range txs[1:] {
		if tx.ExecutedAt.Before(first) {
			first = tx.ExecutedAt
		}
	}
	return first, true
}

func heldShares(txs []domain.Transaction) float64 {
	total := 0.0
	for _, tx := range txs {
		total += tx.Quantity
	}
	return total
}
