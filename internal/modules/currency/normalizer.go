// Package currency converts amounts between currencies from a preloaded rate table.
// It performs no I/O: callers load the rates they need into a RateTable first.
package currency

import (
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
)

// Conversion is the result of converting an amount.
// When Converted is false, Amount and Currency are the inputs and Err holds a *domain.MissingRateError.
type Conversion struct {
	Amount    float64         `json:"amount"`
	Currency  domain.Currency `json:"currency"`
	Converted bool            `json:"converted"`
	Rate      float64         `json:"rate,omitempty"`
	RateDate  *time.Time      `json:"rate_date,omitempty"`
	Err       error           `json:"-"`
}

// Normalizer is the single entry point for currency conversion
type Normalizer struct {
	rates *RateTable
}

// NewNormalizer creates a normalizer over a loaded rate table
func NewNormalizer(rates *RateTable) *Normalizer {
	if rates == nil {
		rates = NewRateTable()
	}
	rates.ensureSorted()
	return &Normalizer{rates: rates}
}

// Convert converts amount from one currency to another.
// Identical currencies return the amount unchanged without any lookup.
// With asOf set, the rate of that day is used, else the nearest earlier rate,
// else the latest known rate. A missing rate is never replaced by 1:1.
func (n *Normalizer) Convert(amount float64, from, to domain.Currency, asOf *time.Time) Conversion {
	from = domain.NormalizeCurrency(string(from))
	to = domain.NormalizeCurrency(string(to))

	if from == to {
		return Conversion{Amount: amount, Currency: to, Converted: true, Rate: 1}
	}

	point, ok := n.rates.resolve(from, to, asOf)
	if !ok && from != domain.BaseCurrency && to != domain.BaseCurrency {
		point, ok = n.crossViaBase(from, to, asOf)
	}
	if !ok {
		return Conversion{
			Amount:   amount,
			Currency: from,
			Err:      &domain.MissingRateError{From: from, To: to, AsOf: asOf},
		}
	}

	rateDate := point.Date
	return Conversion{
		Amount:    amount * point.Rate,
		Currency:  to,
		Converted: true,
		Rate:      point.Rate,
		RateDate:  &rateDate,
	}
}

// ToBase converts amount into EUR
func (n *Normalizer) ToBase(amount float64, from domain.Currency, asOf *time.Time) Conversion {
	return n.Convert(amount, from, domain.BaseCurrency, asOf)
}

func (n *Normalizer) crossViaBase(from, to domain.Currency, asOf *time.Time) (RatePoint, bool) {
	leg1, ok := n.rates.resolve(from, domain.BaseCurrency, asOf)
	if !ok {
		return RatePoint{}, false
	}
	leg2, ok := n.rates.resolve(domain.BaseCurrency, to, asOf)
	if !ok {
		return RatePoint{}, false
	}

	date := leg1.Date
	if leg2.Date.Before(date) {
		date = leg2.Date
	}
	return RatePoint{Date: date, Rate: leg1.Rate * leg2.Rate}, true
}
