// Package yahoo provides a Yahoo Finance price provider backed by go-yfinance.
package yahoo

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/lookup"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"
)

// ProviderName identifies this provider in logs and status payloads
const ProviderName = "yahoo"

// ISIN validation pattern (12 characters: 2 letters, 9 alphanumeric, 1 digit)
var isinPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

// IsISIN checks if identifier is a valid ISIN
func IsISIN(identifier string) bool {
	identifier = strings.TrimSpace(strings.ToUpper(identifier))
	if len(identifier) != 12 {
		return false
	}
	return isinPattern.MatchString(identifier)
}

// Client fetches daily bars and quotes from Yahoo Finance
type Client struct {
	log zerolog.Logger
	now func() time.Time
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		log: log.With().Str("client", "yahoo").Logger(),
		now: time.Now,
	}
}

// Name returns the provider name
func (c *Client) Name() string {
	return ProviderName
}

// FetchHistory returns daily bars for symbol between from and to (inclusive).
// Yahoo only accepts named periods, so the smallest period covering from is
// requested and the result trimmed to the range.
func (c *Client) FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]domain.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	params := models.HistoryParams{
		Period:     periodFor(from, c.now()),
		Interval:   "1d",
		AutoAdjust: true,
	}

	bars, err := t.History(params)
	if err != nil {
		return nil, fmt.Errorf("failed to get historical prices for %s: %w", symbol, err)
	}

	points := make([]domain.PricePoint, 0, len(bars))
	for _, bar := range bars {
		points = append(points, domain.PricePoint{
			Date:   domain.Day(bar.Date),
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: int64(bar.Volume),
		})
	}

	filtered := filterRange(points, from, to)
	c.log.Debug().
		Str("symbol", symbol).
		Str("period", params.Period).
		Int("bars", len(filtered)).
		Msg("Fetched price history")
	return filtered, nil
}

// FetchQuote gets the current price for a symbol, falling back from the
// regular market price to pre/post market and finally the previous close.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	price := 0.0
	if quote, err := t.Quote(); err == nil && quote != nil {
		switch {
		case quote.RegularMarketPrice > 0:
			price = quote.RegularMarketPrice
		case quote.PreMarketPrice > 0:
			price = quote.PreMarketPrice
		case quote.PostMarketPrice > 0:
			price = quote.PostMarketPrice
		}
	}

	if price <= 0 {
		info, err := t.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
		}
		if info.CurrentPrice > 0 {
			price = info.CurrentPrice
		} else {
			price = info.RegularMarketPreviousClose
		}
	}

	if price <= 0 {
		return nil, fmt.Errorf("no valid price for %s", symbol)
	}

	return &domain.Quote{Ticker: symbol, Price: price, FetchedAt: c.now().UTC()}, nil
}

// LookupISIN searches Yahoo Finance for the equity ticker listed under an ISIN
func (c *Client) LookupISIN(ctx context.Context, isin string) (string, error) {
	if !IsISIN(isin) {
		return "", fmt.Errorf("invalid ISIN %q", isin)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	lookupClient, err := lookup.New(isin)
	if err != nil {
		return "", fmt.Errorf("failed to create lookup client: %w", err)
	}
	defer lookupClient.Close()

	results, err := lookupClient.Stock(1)
	if err != nil {
		return "", fmt.Errorf("failed to lookup ISIN: %w", err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("no ticker found for ISIN: %s", isin)
	}

	return results[0].Symbol, nil
}

// periodFor picks the shortest Yahoo period reaching back to from
func periodFor(from, now time.Time) string {
	if from.IsZero() {
		return "max"
	}
	age := now.Sub(from)
	day := 24 * time.Hour
	switch {
	case age <= 5*day:
		return "5d"
	case age <= 28*day:
		return "1mo"
	case age <= 89*day:
		return "3mo"
	case age <= 180*day:
		return "6mo"
	case age <= 364*day:
		return "1y"
	case age <= 2*364*day:
		return "2y"
	case age <= 5*364*day:
		return "5y"
	case age <= 10*364*day:
		return "10y"
	default:
		return "max"
	}
}

func filterRange(points []domain.PricePoint, from, to time.Time) []domain.PricePoint {
	from = domain.Day(from)
	to = domain.Day(to)
	out := points[:0]
	for _, p := range points {
		if p.Close <= 0 {
			continue
		}
		if !from.IsZero() && p.Date.Before(from) {
			continue
		}
		if !to.IsZero() && p.Date.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out
}
