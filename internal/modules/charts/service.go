// Package charts builds the chart payloads of the dashboard from stored prices.
package charts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/portfolio"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/positions"
	"github.com/degiro-portfolio/degiro-portfolio/pkg/formulas"
	"github.com/rs/zerolog"
)

// Overlay windows drawn on the stock chart
const (
	ShortMovingAverage = 50
	LongMovingAverage  = 200
	FastEMA            = 20
	BollingerLength    = 20
	BollingerWidth     = 2.0
)

// ChartDataPoint represents a single point on a chart
type ChartDataPoint struct {
	Time  string  `json:"time"`  // YYYY-MM-DD format
	Value float64 `json:"value"` // Close price
}

// IndexLine is a reference index rebased to 100 at the stock's first shown price date
type IndexLine struct {
	Symbol string           `json:"symbol"`
	Name   string           `json:"name"`
	Points []ChartDataPoint `json:"points"`
}

// BollingerPoint is the band triple of one price date
type BollingerPoint struct {
	Time string `json:"time"`
	formulas.BollingerBands
}

// Indicators holds the latest overlay values over the full history
type Indicators struct {
	SMA50     *float64                 `json:"sma_50"`
	SMA200    *float64                 `json:"sma_200"`
	EMA20     *float64                 `json:"ema_20"`
	Bollinger *formulas.BollingerBands `json:"bollinger"`
}

// StockChart is everything the stock detail view draws
type StockChart struct {
	Stock              domain.Stock            `json:"stock"`
	Prices             []domain.PricePoint     `json:"prices"`
	Transactions       []domain.Transaction    `json:"transactions"`
	Tranches           []portfolio.TrancheView `json:"tranches"`
	PositionPercentage []ChartDataPoint        `json:"position_percentage"`
	StockNormalized    []ChartDataPoint        `json:"stock_normalized"`
	Indices            []IndexLine             `json:"indices"`
	SMA50              []ChartDataPoint        `json:"sma_50"`
	SMA200             []ChartDataPoint        `json:"sma_200"`
	EMA20              []ChartDataPoint        `json:"ema_20"`
	Bollinger          []BollingerPoint        `json:"bollinger"`
	Indicators         Indicators              `json:"indicators"`
	Error              string                  `json:"error,omitempty"`
}

// Service provides chart data operations
type Service struct {
	loader *portfolio.Loader
	log    zerolog.Logger
}

// NewService creates a new charts service
func NewService(loader *portfolio.Loader, log zerolog.Logger) *Service {
	return &Service{
		loader: loader,
		log:    log.With().Str("service", "charts").Logger(),
	}
}

// StockChart returns the chart payload of one stock limited to dateRange
// (1M, 3M, 6M, 1Y, 5Y, 10Y or all). Unknown ids give *domain.NotFoundError.
func (s *Service) StockChart(ctx context.Context, stockID int64, dateRange string) (*StockChart, error) {
	dc, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	chart, err := BuildStockChart(dc, stockID, dateRange)
	if err != nil {
		return nil, err
	}
	if chart.Error != "" {
		s.log.Warn().Int64("stock_id", stockID).Str("error", chart.Error).Msg("Stock history is inconsistent")
	}
	return chart, nil
}

// BuildStockChart computes the chart payload from a loaded data context.
// Moving averages use the full history so that the first shown points already carry values.
func BuildStockChart(dc *portfolio.DataContext, stockID int64, dateRange string) (*StockChart, error) {
	stock, ok := dc.Stock(stockID)
	if !ok {
		return nil, &domain.NotFoundError{Entity: "stock", ID: stockID}
	}

	prices := dc.Prices[stockID]
	txs := dc.Transactions[stockID]
	start := parseDateRange(dateRange, dc.Today)

	chart := &StockChart{
		Stock:              stock,
		Prices:             []domain.PricePoint{},
		Transactions:       txs,
		Tranches:           []portfolio.TrancheView{},
		PositionPercentage: []ChartDataPoint{},
		StockNormalized:    []ChartDataPoint{},
		Indices:            []IndexLine{},
	}
	if chart.Transactions == nil {
		chart.Transactions = []domain.Transaction{}
	}

	closes := make([]float64, len(prices))
	for i, p := range prices {
		closes[i] = p.Close
	}
	chart.SMA50 = seriesPoints(prices, formulas.SMASeries(closes, ShortMovingAverage), start)
	chart.SMA200 = seriesPoints(prices, formulas.SMASeries(closes, LongMovingAverage), start)
	chart.EMA20 = seriesPoints(prices, formulas.EMASeries(closes, FastEMA), start)
	chart.Bollinger = bandPoints(prices, formulas.BollingerSeries(closes, BollingerLength, BollingerWidth), start)
	chart.Indicators = Indicators{
		SMA50:     formulas.CalculateSMA(closes, ShortMovingAverage),
		SMA200:    formulas.CalculateSMA(closes, LongMovingAverage),
		EMA20:     formulas.CalculateEMA(closes, FastEMA),
		Bollinger: formulas.CalculateBollingerBands(closes, BollingerLength, BollingerWidth),
	}

	shown := since(prices, start)
	chart.Prices = append(chart.Prices, shown...)

	shownCloses := make([]float64, len(shown))
	for i, p := range shown {
		shownCloses[i] = p.Close
	}
	chart.StockNormalized = seriesPoints(shown, formulas.Normalize(shownCloses, 100), time.Time{})

	if len(shown) > 0 {
		first := domain.Day(shown[0].Date)
		for _, idx := range dc.Indices {
			chart.Indices = append(chart.Indices, rebaseIndex(idx, first))
		}
	}

	views, err := portfolio.TrancheViews(stockID, txs, prices)
	if err != nil {
		chart.Error = err.Error()
		return chart, nil
	}
	chart.Tranches = views

	series, err := positions.Build(positions.Input{
		StockID:      stockID,
		Currency:     stock.Currency,
		Transactions: txs,
		Prices:       prices,
	})
	if err != nil {
		chart.Error = err.Error()
		return chart, nil
	}
	for _, snap := range series.Snapshots {
		if snap.ValuePct == nil || snap.Date.Before(start) {
			continue
		}
		chart.PositionPercentage = append(chart.PositionPercentage, ChartDataPoint{
			Time:  snap.Date.Format(domain.DateFormat),
			Value: *snap.ValuePct,
		})
	}

	return chart, nil
}

// rebaseIndex keeps closes from first on, rebased so the first kept close is 100
func rebaseIndex(idx portfolio.IndexSeries, first time.Time) IndexLine {
	line := IndexLine{Symbol: idx.Index.Symbol, Name: idx.Index.Name, Points: []ChartDataPoint{}}
	kept := since(idx.Closes, first)
	closes := make([]float64, len(kept))
	for i, p := range kept {
		closes[i] = p.Close
	}
	line.Points = seriesPoints(kept, formulas.Normalize(closes, 100), time.Time{})
	return line
}

// seriesPoints pairs values with the dates of prices, dropping nil values and dates before start
func seriesPoints(prices []domain.PricePoint, values []*float64, start time.Time) []ChartDataPoint {
	points := []ChartDataPoint{}
	for i, v := range values {
		if v == nil || prices[i].Date.Before(start) {
			continue
		}
		points = append(points, ChartDataPoint{Time: prices[i].Date.Format(domain.DateFormat), Value: *v})
	}
	return points
}

func bandPoints(prices []domain.PricePoint, bands []*formulas.BollingerBands, start time.Time) []BollingerPoint {
	points := []BollingerPoint{}
	for i, b := range bands {
		if b == nil || prices[i].Date.Before(start) {
			continue
		}
		points = append(points, BollingerPoint{Time: prices[i].Date.Format(domain.DateFormat), BollingerBands: *b})
	}
	return points
}

func since(prices []domain.PricePoint, start time.Time) []domain.PricePoint {
	i := sort.Search(len(prices), func(i int) bool { return !prices[i].Date.Before(start) })
	return prices[i:]
}

// Sparklines returns averaged closes of every open holding: weekly for 1Y, monthly for 5Y
func (s *Service) Sparklines(ctx context.Context, period string) (map[string][]ChartDataPoint, error) {
	var groupBy string
	switch period {
	case "1Y":
		groupBy = "week"
	case "5Y":
		groupBy = "month"
	default:
		return nil, fmt.Errorf("invalid period: %s (must be 1Y or 5Y)", period)
	}

	dc, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	start := parseDateRange(period, dc.Today)

	result := make(map[string][]ChartDataPoint)
	for _, stock := range dc.Stocks {
		shares := 0.0
		for _, tx := range dc.Transactions[stock.ID] {
			shares += tx.Quantity
		}
		if shares <= 1e-9 {
			continue
		}

		key := stock.Ticker
		if key == "" {
			key = stock.ISIN
		}
		if points := aggregatePrices(since(dc.Prices[stock.ID], start), groupBy); len(points) > 0 {
			result[key] = points
		}
	}
	return result, nil
}

// aggregatePrices averages closes per ISO week (YYYY-W##) or month (YYYY-MM)
func aggregatePrices(prices []domain.PricePoint, groupBy string) []ChartDataPoint {
	aggregated := make(map[string][]float64)
	for _, p := range prices {
		var period string
		if groupBy == "week" {
			year, week := p.Date.ISOWeek()
			period = fmt.Sprintf("%d-W%02d", year, week)
		} else {
			period = p.Date.Format("2006-01")
		}
		aggregated[period] = append(aggregated[period], p.Close)
	}

	periods := make([]string, 0, len(aggregated))
	for period := range aggregated {
		periods = append(periods, period)
	}
	sort.Strings(periods)

	points := make([]ChartDataPoint, 0, len(periods))
	for _, period := range periods {
		points = append(points, ChartDataPoint{Time: period, Value: formulas.Mean(aggregated[period])})
	}
	return points
}

// parseDateRange converts a range string to a start date; zero means everything
func parseDateRange(rangeStr string, today time.Time) time.Time {
	switch rangeStr {
	case "1M":
		return today.AddDate(0, -1, 0)
	case "3M":
		return today.AddDate(0, -3, 0)
	case "6M":
		return today.AddDate(0, -6, 0)
	case "1Y":
		return today.AddDate(-1, 0, 0)
	case "5Y":
		return today.AddDate(-5, 0, 0)
	case "10Y":
		return today.AddDate(-10, 0, 0)
	}
	return time.Time{}
}
