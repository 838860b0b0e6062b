package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Rhymond/go-money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/portfolio"
)

func ptr(v float64) *float64 { return &v }

func TestRenderSummary(t *testing.T) {
	rows := []portfolio.StockPerformance{
		{
			Name: "Small Co", Ticker: "SML", Currency: domain.Currency("USD"), Shares: 10,
			LastPrice: ptr(11), CurrentValue: 110,
			CurrentValueEUR: ptr(100), CostBasisEUR: ptr(80),
		},
		{
			Name: "Big Co", Ticker: "BIG", Currency: domain.CurrencyEUR, Shares: 5,
			LastPrice: ptr(300), CurrentValue: 1500,
			CurrentValueEUR: ptr(1500), CostBasisEUR: ptr(1000),
		},
		{
			Name: "Sold Co", Currency: domain.CurrencyEUR, Shares: 0,
			CurrentValueEUR: ptr(0), CostBasisEUR: ptr(0),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, renderSummary(&buf, rows, false))
	out := buf.String()

	assert.NotContains(t, out, "Sold Co")
	assert.Less(t, strings.Index(out, "Big Co"), strings.Index(out, "Small Co"))
	assert.Contains(t, out, money.NewFromFloat(1500, "EUR").Display())
	assert.Contains(t, out, money.NewFromFloat(110, "USD").Display())
	assert.Contains(t, out, "+50.00%")
	assert.Contains(t, out, "+25.00%")

	// Totals: 1600 value, 1080 cost
	lines := strings.Split(strings.TrimSpace(out), "\n")
	total := lines[len(lines)-1]
	assert.True(t, strings.HasPrefix(total, "TOTAL"))
	assert.Contains(t, total, money.NewFromFloat(1600, "EUR").Display())
	assert.Contains(t, total, money.NewFromFloat(520, "EUR").Display())
}

func TestRenderSummary_IncludeClosedAndWarnings(t *testing.T) {
	rows := []portfolio.StockPerformance{
		{Name: "Sold Co", Currency: domain.CurrencyEUR, Shares: 0},
		{Name: "No Price", Currency: domain.Currency("XYZ"), Shares: 3, Error: "no price data"},
	}

	var buf bytes.Buffer
	require.NoError(t, renderSummary(&buf, rows, true))
	out := buf.String()

	assert.Contains(t, out, "Sold Co")
	assert.Contains(t, out, "0.00 XYZ")
	assert.Contains(t, out, "warning: No Price: no price data")
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "-", formatPercent(10, 0))
	assert.Equal(t, "-10.00%", formatPercent(-10, 100))
}
