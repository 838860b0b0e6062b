package yahoo

import (
	"testing"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestIsISIN(t *testing.T) {
	assert.True(t, IsISIN("US5949181045"))
	assert.True(t, IsISIN(" nl0010273215 "))
	assert.False(t, IsISIN("MSFT"))
	assert.False(t, IsISIN("US594918104X"))
	assert.False(t, IsISIN(""))
}

func TestPeriodFor(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		from time.Time
		want string
	}{
		{time.Time{}, "max"},
		{now.AddDate(0, 0, -3), "5d"},
		{now.AddDate(0, 0, -20), "1mo"},
		{now.AddDate(0, -2, 0), "3mo"},
		{now.AddDate(0, -5, 0), "6mo"},
		{now.AddDate(0, -11, 0), "1y"},
		{now.AddDate(-1, -6, 0), "2y"},
		{now.AddDate(-4, 0, 0), "5y"},
		{now.AddDate(-8, 0, 0), "10y"},
		{now.AddDate(-20, 0, 0), "max"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, periodFor(tc.from, now), tc.from.Format(domain.DateFormat))
	}
}

func TestFilterRange(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	points := []domain.PricePoint{
		{Date: day(1), Close: 10},
		{Date: day(2), Close: 0},
		{Date: day(3), Close: 11},
		{Date: day(4), Close: 12},
		{Date: day(5), Close: 13},
	}

	got := filterRange(points, day(2).Add(15*time.Hour), day(4))
	assert.Len(t, got, 2)
	assert.Equal(t, day(3), got[0].Date)
	assert.Equal(t, day(4), got[1].Date)
}

func TestName(t *testing.T) {
	assert.Equal(t, "yahoo", NewClient(zerolog.Nop()).Name())
}
