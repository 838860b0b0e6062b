package marketdata

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// manualTickers maps ISIN → trading currency → ticker for listings the
// lookup API gets wrong or does not know.
var manualTickers = map[string]map[domain.Currency]string{
	"US5949181045": {domain.CurrencyUSD: "MSFT"},
	"US67066G1040": {domain.CurrencyUSD: "NVDA"},
	"US02079K3059": {domain.CurrencyUSD: "GOOGL"},
	"US0378331005": {domain.CurrencyUSD: "AAPL"},
	"US0231351067": {domain.CurrencyUSD: "AMZN"},
	"US30303M1027": {domain.CurrencyUSD: "META"},
	"US88160R1014": {domain.CurrencyUSD: "TSLA"},
	"NL0010273215": {domain.CurrencyEUR: "ASML.AS", domain.CurrencyUSD: "ASML"},
	"DE0007164600": {domain.CurrencyEUR: "SAP.DE", domain.CurrencyUSD: "SAP"},
	"SE0000108656": {domain.CurrencySEK: "ERIC-B.ST", domain.CurrencyUSD: "ERIC"},
	"NL0000235190": {domain.CurrencyEUR: "AIR.PA"},
	"FR0000121014": {domain.CurrencyEUR: "MC.PA"},
	"DK0062498333": {domain.CurrencyDKK: "NOVO-B.CO"},
	"CH0038863350": {domain.CurrencyCHF: "NESN.SW"},
	"GB0009895292": {domain.CurrencyGBP: "AZN.L"},
}

// exchangeSuffixes lists Yahoo exchange suffixes by ISIN country, most liquid first
var exchangeSuffixes = map[string][]string{
	"DE": {".DE", ".F"},
	"NL": {".AS"},
	"FR": {".PA"},
	"BE": {".BR"},
	"IT": {".MI"},
	"ES": {".MC"},
	"PT": {".LS"},
	"IE": {".IR", ".L"},
	"FI": {".HE"},
	"SE": {".ST"},
	"DK": {".CO"},
	"NO": {".OL"},
	"CH": {".SW"},
	"GB": {".L"},
	"AT": {".VI"},
}

// currencySuffixes is used when the ISIN country gives no hint
var currencySuffixes = map[domain.Currency][]string{
	domain.CurrencyEUR: {".DE", ".AS", ".PA"},
	domain.CurrencySEK: {".ST"},
	domain.CurrencyDKK: {".CO"},
	domain.CurrencyNOK: {".OL"},
	domain.CurrencyCHF: {".SW"},
	domain.CurrencyGBP: {".L"},
}

var (
	nonAlnum      = regexp.MustCompile(`[^A-Z0-9]+`)
	corporateWord = map[string]bool{
		"INC": true, "CORP": true, "CORPORATION": true, "CO": true, "LTD": true, "PLC": true,
		"SE": true, "NV": true, "AG": true, "SA": true, "AB": true, "ASA": true, "HOLDING": true,
		"HOLDINGS": true, "GROUP": true, "THE": true, "CLASS": true, "A": true, "B": true, "C": true,
	}
)

// TickerResolver finds the market data ticker of a stock. Resolution order is
// the manual mapping, the ISIN lookup API, then candidates derived from the
// product name and exchange suffixes verified against the price provider.
type TickerResolver struct {
	lookup   ISINLookup
	verifier PriceProvider
	cache    *cache.Cache
	log      zerolog.Logger
}

// NewTickerResolver creates a resolver. lookup and verifier may be nil.
func NewTickerResolver(lookup ISINLookup, verifier PriceProvider, log zerolog.Logger) *TickerResolver {
	return &TickerResolver{
		lookup:   lookup,
		verifier: verifier,
		cache:    cache.New(24*time.Hour, 48*time.Hour),
		log:      log.With().Str("service", "ticker_resolver").Logger(),
	}
}

// ManualTicker returns the hard-coded ticker for an ISIN listed in currency
func ManualTicker(isin string, currency domain.Currency) (string, bool) {
	byCurrency, ok := manualTickers[strings.ToUpper(isin)]
	if !ok {
		return "", false
	}
	ticker, ok := byCurrency[currency]
	return ticker, ok
}

// Resolve returns the ticker for a stock, or "" when none could be found
func (r *TickerResolver) Resolve(ctx context.Context, stock domain.Stock) string {
	if ticker, ok := ManualTicker(stock.ISIN, stock.Currency); ok {
		return ticker
	}

	cacheKey := stock.ISIN + ":" + string(stock.Currency)
	if cached, ok := r.cache.Get(cacheKey); ok {
		return cached.(string)
	}

	ticker := r.resolveRemote(ctx, stock)
	r.cache.Set(cacheKey, ticker, cache.DefaultExpiration)
	return ticker
}

func (r *TickerResolver) resolveRemote(ctx context.Context, stock domain.Stock) string {
	if r.lookup != nil && stock.ISIN != "" {
		ticker, err := r.lookup.LookupISIN(ctx, stock.ISIN)
		if err == nil && ticker != "" {
			r.log.Debug().Str("isin", stock.ISIN).Str("ticker", ticker).Msg("Resolved ticker via ISIN lookup")
			return ticker
		}
		if err != nil {
			r.log.Debug().Err(err).Str("isin", stock.ISIN).Msg("ISIN lookup failed")
		}
	}

	if r.verifier == nil {
		return ""
	}

	for _, candidate := range Candidates(stock) {
		if ctx.Err() != nil {
			return ""
		}
		if r.verify(ctx, candidate) {
			r.log.Info().Str("isin", stock.ISIN).Str("ticker", candidate).Msg("Resolved ticker from name")
			return candidate
		}
	}

	r.log.Warn().Str("isin", stock.ISIN).Str("name", stock.Name).Msg("Could not resolve ticker")
	return ""
}

func (r *TickerResolver) verify(ctx context.Context, ticker string) bool {
	quote, err := r.verifier.FetchQuote(ctx, ticker)
	return err == nil && quote != nil && quote.Price > 0
}

// Candidates generates ticker guesses from the broker symbol and product name
func Candidates(stock domain.Stock) []string {
	var roots []string
	if s := strings.ToUpper(strings.TrimSpace(stock.Symbol)); s != "" {
		roots = append(roots, s)
	}
	roots = append(roots, nameRoots(stock.Name)...)
	if len(roots) == 0 {
		return nil
	}

	country := ""
	if len(stock.ISIN) >= 2 {
		country = strings.ToUpper(stock.ISIN[:2])
	}

	var suffixes []string
	switch {
	case stock.Currency == domain.CurrencyUSD:
		suffixes = []string{""}
	case exchangeSuffixes[country] != nil:
		suffixes = exchangeSuffixes[country]
	default:
		suffixes = currencySuffixes[stock.Currency]
	}
	if len(suffixes) == 0 {
		suffixes = []string{""}
	}

	seen := make(map[string]bool)
	var out []string
	for _, root := range roots {
		for _, suffix := range suffixes {
			c := root + suffix
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// nameRoots derives ticker roots from a product name: the first significant
// word, and the initials of the significant words when there are several.
func nameRoots(name string) []string {
	words := strings.Fields(nonAlnum.ReplaceAllString(strings.ToUpper(name), " "))

	var significant []string
	for _, w := range words {
		if !corporateWord[w] {
			significant = append(significant, w)
		}
	}
	if len(significant) == 0 {
		return nil
	}

	var roots []string
	first := significant[0]
	if len(first) > 5 {
		first = first[:5]
	}
	roots = append(roots, first)

	if len(significant) > 1 {
		var initials strings.Builder
		for _, w := range significant {
			initials.WriteByte(w[0])
		}
		roots = append(roots, initials.String())
	}
	return roots
}
