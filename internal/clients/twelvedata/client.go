// Package twelvedata provides a Twelve Data REST price provider.
package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ProviderName identifies this provider in logs and status payloads
const ProviderName = "twelvedata"

const defaultBaseURL = "https://api.twelvedata.com"

// APIError is returned when Twelve Data answers with status "error"
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twelvedata error %d: %s", e.Code, e.Message)
}

type envelope struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type timeSeriesResponse struct {
	envelope
	Meta struct {
		Symbol   string `json:"symbol"`
		Currency string `json:"currency"`
	} `json:"meta"`
	Values []struct {
		Datetime string `json:"datetime"`
		Open     string `json:"open"`
		High     string `json:"high"`
		Low      string `json:"low"`
		Close    string `json:"close"`
		Volume   string `json:"volume"`
	} `json:"values"`
}

type quoteResponse struct {
	envelope
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
	Close    string `json:"close"`
}

// Client is a rate-limited Twelve Data client. The free plan allows
// 8 requests per minute.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient creates a Twelve Data client allowing perMinute requests
func NewClient(baseURL, apiKey string, perMinute int, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if perMinute <= 0 {
		perMinute = 8
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		log:     log.With().Str("client", "twelvedata").Logger(),
	}
}

// Name returns the provider name
func (c *Client) Name() string {
	return ProviderName
}

// FetchHistory returns daily bars for symbol between from and to (inclusive), oldest first
func (c *Client) FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]domain.PricePoint, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "1day")
	params.Set("order", "ASC")
	params.Set("outputsize", "5000")
	if !from.IsZero() {
		params.Set("start_date", from.Format(domain.DateFormat))
	}
	if !to.IsZero() {
		params.Set("end_date", to.Format(domain.DateFormat))
	}

	var resp timeSeriesResponse
	if err := c.get(ctx, "/time_series", params, &resp); err != nil {
		return nil, err
	}

	points := make([]domain.PricePoint, 0, len(resp.Values))
	for _, v := range resp.Values {
		// Intraday datetimes carry a time part; daily ones do not
		date, err := time.Parse(domain.DateFormat, v.Datetime[:min(len(v.Datetime), 10)])
		if err != nil {
			return nil, fmt.Errorf("invalid datetime %q: %w", v.Datetime, err)
		}
		closePrice := parseFloat(v.Close)
		if closePrice <= 0 {
			continue
		}
		points = append(points, domain.PricePoint{
			Date:   date,
			Open:   parseFloat(v.Open),
			High:   parseFloat(v.High),
			Low:    parseFloat(v.Low),
			Close:  closePrice,
			Volume: int64(parseFloat(v.Volume)),
		})
	}

	c.log.Debug().Str("symbol", symbol).Int("bars", len(points)).Msg("Fetched price history")
	return points, nil
}

// FetchQuote returns the latest price for symbol
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp quoteResponse
	if err := c.get(ctx, "/quote", params, &resp); err != nil {
		return nil, err
	}

	price := parseFloat(resp.Close)
	if price <= 0 {
		return nil, fmt.Errorf("no valid price for %s", symbol)
	}

	return &domain.Quote{
		Ticker:    symbol,
		Price:     price,
		Currency:  domain.NormalizeCurrency(resp.Currency),
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	params.Set("apikey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("twelvedata request failed: %w", err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("failed to parse twelvedata response (HTTP %d): %w", resp.StatusCode, err)
	}

	// Errors arrive as HTTP 200 with status "error" as often as with a 4xx code
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to parse twelvedata response: %w", err)
	}
	if env.Status == "error" {
		return &APIError{Code: env.Code, Message: env.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	return json.Unmarshal(raw, out)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
