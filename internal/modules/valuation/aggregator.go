// Package valuation merges per-stock position series into one EUR portfolio timeline.
package valuation

import (
	"sort"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/currency"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/positions"
)

// Point is the portfolio value at the close of a date
type Point struct {
	Date           time.Time `json:"date"`
	TotalValueEUR  float64   `json:"total_value_eur"`
	InvestedEUR    float64   `json:"invested_eur"`
	IsExtrapolated bool      `json:"is_extrapolated"`
}

// Timeline is the EUR valuation of the whole portfolio.
// LastPricedDate is the newest real price date; later points are carried forward.
type Timeline struct {
	Points         []Point    `json:"points"`
	LastPricedDate *time.Time `json:"last_priced_date"`
	Warnings       []error    `json:"-"`
}

// Aggregate sums the series on the union of their dates. A stock without a snapshot
// on a date contributes its previous snapshot, or zero before its first one. Dates after
// today are ignored and a carried-forward point is appended so the timeline ends today.
func Aggregate(series []*positions.Series, norm *currency.Normalizer, today time.Time) *Timeline {
	today = domain.Day(today)
	timeline := &Timeline{}

	dates, lastDates := collectDates(series, today)
	for _, s := range series {
		if s == nil {
			continue
		}
		timeline.Warnings = append(timeline.Warnings, s.Soft...)
	}
	if len(dates) == 0 {
		return timeline
	}

	lastPriced := dates[len(dates)-1]
	timeline.LastPricedDate = &lastPriced

	cursors := make([]int, len(series))
	for i := range cursors {
		cursors[i] = -1
	}
	// one warning per currency, dated at its first gap
	missing := make(map[domain.Currency]bool)

	timeline.Points = make([]Point, 0, len(dates)+1)
	for _, d := range dates {
		point := Point{Date: d}
		asOf := d

		for i, s := range series {
			if s == nil {
				continue
			}
			for cursors[i]+1 < len(s.Snapshots) && !s.Snapshots[cursors[i]+1].Date.After(d) {
				cursors[i]++
			}
			if cursors[i] < 0 {
				continue
			}
			snap := s.Snapshots[cursors[i]]
			if snap.Quantity > 0 && d.After(lastDates[i]) {
				point.IsExtrapolated = true
			}
			if snap.MarketValue == 0 && snap.CostBasis == 0 {
				continue
			}

			value := norm.ToBase(snap.MarketValue, s.Currency, &asOf)
			invested := norm.ToBase(snap.CostBasis, s.Currency, &asOf)
			if !value.Converted {
				if !missing[s.Currency] {
					missing[s.Currency] = true
					timeline.Warnings = append(timeline.Warnings, value.Err)
				}
				continue
			}
			point.TotalValueEUR += value.Amount
			point.InvestedEUR += invested.Amount
		}

		timeline.Points = append(timeline.Points, point)
	}

	if last := timeline.Points[len(timeline.Points)-1]; last.Date.Before(today) {
		last.Date = today
		last.IsExtrapolated = true
		timeline.Points = append(timeline.Points, last)
	}

	return timeline
}

// collectDates returns the sorted union of snapshot dates up to today and the
// last such date of every series.
func collectDates(series []*positions.Series, today time.Time) ([]time.Time, []time.Time) {
	seen := make(map[time.Time]struct{})
	lastDates := make([]time.Time, len(series))

	for i, s := range series {
		if s == nil {
			continue
		}
		for _, snap := range s.Snapshots {
			if snap.Date.After(today) {
				break
			}
			seen[snap.Date] = struct{}{}
			lastDates[i] = snap.Date
		}
	}

	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, lastDates
}
