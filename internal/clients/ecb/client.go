// Package ecb fetches historical euro reference rates from the ECB Data Portal.
package ecb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// Source tags rates stored from this client
const Source = "ecb"

// response is the subset of the SDMX-JSON payload we read
type response struct {
	DataSets []struct {
		Series map[string]struct {
			Observations map[string][]*float64 `json:"observations"`
		} `json:"series"`
	} `json:"dataSets"`
	Structure struct {
		Dimensions struct {
			Observation []struct {
				ID     string `json:"id"`
				Values []struct {
					ID string `json:"id"`
				} `json:"values"`
			} `json:"observation"`
		} `json:"dimensions"`
	} `json:"structure"`
}

// Client for the ECB exchange rate (EXR) dataflow
type Client struct {
	baseURL string
	client  *http.Client
	cache   *cache.Cache
	log     zerolog.Logger
}

// NewClient creates a new ECB client. Responses are memoized in-process for 12 hours.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://data-api.ecb.europa.eu/service/data/EXR"
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		cache:   cache.New(12*time.Hour, 24*time.Hour),
		log:     log.With().Str("client", "ecb").Logger(),
	}
}

// DailyRates returns EUR→quote reference rates between from and to (inclusive).
// Days without a fix (weekends, TARGET holidays) are simply absent.
func (c *Client) DailyRates(ctx context.Context, quote domain.Currency, from, to time.Time) ([]domain.ExchangeRate, error) {
	if quote == domain.CurrencyEUR {
		return nil, nil
	}

	start := from.Format(domain.DateFormat)
	end := to.Format(domain.DateFormat)
	cacheKey := fmt.Sprintf("%s:%s:%s", quote, start, end)
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.([]domain.ExchangeRate), nil
	}

	url := fmt.Sprintf("%s/D.%s.EUR.SP00.A?startPeriod=%s&endPeriod=%s&format=jsondata", c.baseURL, quote, start, end)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ECB request failed: %w", err)
	}
	defer resp.Body.Close()

	// 404 means no observations in the requested window
	if resp.StatusCode == http.StatusNotFound {
		c.cache.Set(cacheKey, []domain.ExchangeRate{}, cache.DefaultExpiration)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ECB returned status %d for %s", resp.StatusCode, quote)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse ECB response: %w", err)
	}

	rates, err := parse(payload, quote)
	if err != nil {
		return nil, err
	}

	c.cache.Set(cacheKey, rates, cache.DefaultExpiration)
	c.log.Debug().Str("currency", string(quote)).Int("rates", len(rates)).Msg("Fetched ECB rates")
	return rates, nil
}

func parse(payload response, quote domain.Currency) ([]domain.ExchangeRate, error) {
	if len(payload.DataSets) == 0 || len(payload.Structure.Dimensions.Observation) == 0 {
		return nil, nil
	}

	var periods []string
	for _, dim := range payload.Structure.Dimensions.Observation {
		if dim.ID == "TIME_PERIOD" {
			for _, v := range dim.Values {
				periods = append(periods, v.ID)
			}
		}
	}

	var rates []domain.ExchangeRate
	for _, series := range payload.DataSets[0].Series {
		for idx, values := range series.Observations {
			i, err := strconv.Atoi(idx)
			if err != nil || i < 0 || i >= len(periods) {
				return nil, fmt.Errorf("invalid observation index %q", idx)
			}
			if len(values) == 0 || values[0] == nil || *values[0] <= 0 {
				continue
			}
			date, err := time.Parse(domain.DateFormat, periods[i])
			if err != nil {
				return nil, fmt.Errorf("invalid observation date %q: %w", periods[i], err)
			}
			rates = append(rates, domain.ExchangeRate{
				Base:   domain.CurrencyEUR,
				Quote:  quote,
				Date:   date,
				Rate:   *values[0],
				Source: Source,
			})
		}
	}

	sort.Slice(rates, func(i, j int) bool { return rates[i].Date.Before(rates[j].Date) })
	return rates, nil
}
