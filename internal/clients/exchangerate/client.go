// Package exchangerate fetches latest currency exchange rates from exchangerate-api.com.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/clientdata"
	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/rs/zerolog"
)

// Client for exchangerate-api.com
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new exchangerate-api.com client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(baseURL string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.exchangerate-api.com/v4/latest"
	}
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("client", "exchangerate-api").Logger(),
		cacheRepo: cacheRepo,
	}
}

type cachedRates struct {
	Rates     map[string]float64 `msgpack:"rates"`
	FetchedAt int64              `msgpack:"fetched_at"`
}

// LatestRates returns how many units of each currency one unit of base buys.
// If the API fails, stale cached rates are returned when available.
func (c *Client) LatestRates(ctx context.Context, base domain.Currency) (map[domain.Currency]float64, error) {
	cacheKey := string(base)

	if c.cacheRepo != nil {
		var cached cachedRates
		if found, err := c.cacheRepo.GetIfFresh(clientdata.TableExchangeRate, cacheKey, &cached); err == nil && found {
			c.log.Debug().Str("base", string(base)).Msg("Cache hit")
			return toCurrencyMap(cached.Rates), nil
		}
	}

	rates, err := c.fetch(ctx, base)
	if err != nil {
		if stale, ok := c.getStaleFromCache(cacheKey); ok {
			c.log.Warn().Err(err).Str("base", string(base)).Msg("API failed, using stale cached rates")
			return stale, nil
		}
		return nil, err
	}

	if c.cacheRepo != nil {
		cached := cachedRates{Rates: rates, FetchedAt: time.Now().Unix()}
		if err := c.cacheRepo.Store(clientdata.TableExchangeRate, cacheKey, cached, clientdata.TTLExchangeRate); err != nil {
			c.log.Warn().Err(err).Str("base", string(base)).Msg("Failed to cache exchange rates")
		}
	}

	c.log.Info().Str("base", string(base)).Int("currencies", len(rates)).Msg("Fetched latest rates")
	return toCurrencyMap(rates), nil
}

// GetRate returns a single latest rate
func (c *Client) GetRate(ctx context.Context, from, to domain.Currency) (float64, error) {
	if from == to {
		return 1.0, nil
	}
	rates, err := c.LatestRates(ctx, from)
	if err != nil {
		return 0, err
	}
	rate, ok := rates[to]
	if !ok {
		return 0, fmt.Errorf("rate not found for %s->%s", from, to)
	}
	return rate, nil
}

func (c *Client) fetch(ctx context.Context, base domain.Currency) (map[string]float64, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, base)
	c.log.Debug().Str("url", url).Msg("Fetching rates")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result.Rates) == 0 {
		return nil, fmt.Errorf("response contained no rates for %s", base)
	}
	return result.Rates, nil
}

// getStaleFromCache retrieves cached rates even if expired.
func (c *Client) getStaleFromCache(cacheKey string) (map[domain.Currency]float64, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}
	var cached cachedRates
	found, err := c.cacheRepo.Get(clientdata.TableExchangeRate, cacheKey, &cached)
	if err != nil || !found {
		return nil, false
	}
	return toCurrencyMap(cached.Rates), true
}

func toCurrencyMap(rates map[string]float64) map[domain.Currency]float64 {
	out := make(map[domain.Currency]float64, len(rates))
	for code, rate := range rates {
		out[domain.NormalizeCurrency(code)] = rate
	}
	return out
}
