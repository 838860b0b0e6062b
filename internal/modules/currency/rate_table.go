package currency

import (
	"sort"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
)

type pair struct {
	base  domain.Currency
	quote domain.Currency
}

// RatePoint is a single observation of a currency pair
type RatePoint struct {
	Date time.Time
	Rate float64
}

// RateTable is an in-memory, read-only after loading, set of exchange rates.
// It is built once per request from the exchange_rates table and acts as the
// request-scoped rate cache.
type RateTable struct {
	series map[pair][]RatePoint
	sorted bool
}

// NewRateTable creates an empty rate table
func NewRateTable() *RateTable {
	return &RateTable{
		series: make(map[pair][]RatePoint),
	}
}

// NewRateTableFrom builds a table from stored rates
func NewRateTableFrom(rates []domain.ExchangeRate) *RateTable {
	t := NewRateTable()
	for _, r := range rates {
		t.Add(r.Base, r.Quote, r.Date, r.Rate)
	}
	return t
}

// Add records that 1 base is worth rate quote on date. Non-positive rates are ignored.
func (t *RateTable) Add(base, quote domain.Currency, date time.Time, rate float64) {
	if rate <= 0 {
		return
	}
	p := pair{base: base, quote: quote}
	t.series[p] = append(t.series[p], RatePoint{Date: domain.Day(date), Rate: rate})
	t.sorted = false
}

// Len returns the number of dated rate points
func (t *RateTable) Len() int {
	n := 0
	for _, s := range t.series {
		n += len(s)
	}
	return n
}

func (t *RateTable) ensureSorted() {
	if t.sorted {
		return
	}
	for p, s := range t.series {
		sort.SliceStable(s, func(i, j int) bool { return s[i].Date.Before(s[j].Date) })
		// Later additions for the same day win
		deduped := s[:0]
		for _, point := range s {
			if n := len(deduped); n > 0 && deduped[n-1].Date.Equal(point.Date) {
				deduped[n-1] = point
				continue
			}
			deduped = append(deduped, point)
		}
		t.series[p] = deduped
	}
	t.sorted = true
}

// lookup resolves a direct pair: the rate on asOf, else the nearest earlier
// rate, else the latest known rate.
func (t *RateTable) lookup(base, quote domain.Currency, asOf *time.Time) (RatePoint, bool) {
	p := pair{base: base, quote: quote}
	s := t.series[p]

	if asOf != nil && len(s) > 0 {
		day := domain.Day(*asOf)
		i := sort.Search(len(s), func(i int) bool { return s[i].Date.After(day) })
		if i > 0 {
			return s[i-1], true
		}
	}

	if len(s) > 0 {
		return s[len(s)-1], true
	}
	return RatePoint{}, false
}

// resolve tries the direct pair then the inverse pair
func (t *RateTable) resolve(from, to domain.Currency, asOf *time.Time) (RatePoint, bool) {
	if point, ok := t.lookup(from, to, asOf); ok {
		return point, true
	}
	if point, ok := t.lookup(to, from, asOf); ok {
		return RatePoint{Date: point.Date, Rate: 1 / point.Rate}, true
	}
	return RatePoint{}, false
}
