// Package domain provides core domain models and types.
package domain

import (
	"strings"
	"time"
)

// Currency represents an ISO 4217 currency code
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencySEK Currency = "SEK"
	CurrencyCHF Currency = "CHF"
	CurrencyDKK Currency = "DKK"
	CurrencyNOK Currency = "NOK"
)

// BaseCurrency is the currency every portfolio total is reported in
const BaseCurrency = CurrencyEUR

// NormalizeCurrency upper-cases and trims a currency code
func NormalizeCurrency(code string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(code)))
}

// Stock is a product held at some point, identified by its ISIN
type Stock struct {
	ID        int64     `json:"id"`
	ISIN      string    `json:"isin"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`   // Broker product symbol
	Currency  Currency  `json:"currency"` // Trading currency
	Exchange  string    `json:"exchange"`
	Ticker    string    `json:"ticker,omitempty"` // Market data ticker, empty until resolved
	CreatedAt time.Time `json:"created_at"`
}

// Transaction is an imported trade. Positive quantity buys, negative sells.
// Price and fee are expressed in Currency.
type Transaction struct {
	ID           int64     `json:"id"`
	StockID      int64     `json:"stock_id"`
	ExecutedAt   time.Time `json:"date"`
	Quantity     float64   `json:"quantity"`
	Price        float64   `json:"price"`
	Fee          float64   `json:"fee"`
	Currency     Currency  `json:"currency"`
	ValueEUR     *float64  `json:"value_eur,omitempty"`
	ExchangeRate *float64  `json:"exchange_rate,omitempty"`
	OrderID      string    `json:"order_id,omitempty"`
	FillSeq      int       `json:"fill_seq"` // numbers identical fills within one export
	BatchID      string    `json:"batch_id,omitempty"`
}

// IsBuy reports whether the transaction adds shares
func (t Transaction) IsBuy() bool {
	return t.Quantity > 0
}

// IsSell reports whether the transaction removes shares
func (t Transaction) IsSell() bool {
	return t.Quantity < 0
}

// PricePoint is one daily OHLCV bar of a stock or index
type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Index is a reference market index shown next to stock charts
type Index struct {
	ID     int64  `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// ExchangeRate states that 1 Base is worth Rate units of Quote on Date
type ExchangeRate struct {
	Base   Currency  `json:"base"`
	Quote  Currency  `json:"quote"`
	Date   time.Time `json:"date"`
	Rate   float64   `json:"rate"`
	Source string    `json:"source"`
}

// Quote is a live price for a ticker
type Quote struct {
	Ticker    string    `json:"ticker"`
	Price     float64   `json:"price"`
	Currency  Currency  `json:"currency,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Day truncates t to midnight UTC of its calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateFormat is the layout used for daily dates in the API and the CLI
const DateFormat = "2006-01-02"
