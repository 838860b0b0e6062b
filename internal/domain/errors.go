package domain

import (
	"fmt"
	"time"
)

// InsufficientHoldingsError is returned when a sell exceeds the quantity held at that moment.
// It is a data error: the transaction log is incomplete or a split was not recorded.
type InsufficientHoldingsError struct {
	StockID       int64
	TransactionID int64
	Date          time.Time
	Requested     float64
	Held          float64
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("stock %d: transaction %d on %s sells %g shares but only %g are held",
		e.StockID, e.TransactionID, e.Date.Format(DateFormat), e.Requested, e.Held)
}

// MissingRateError reports an amount that could not be converted. It is soft:
// the amount is passed on unconverted and flagged.
type MissingRateError struct {
	From Currency
	To   Currency
	AsOf *time.Time
}

func (e *MissingRateError) Error() string {
	if e.AsOf != nil {
		return fmt.Sprintf("no exchange rate for %s/%s as of %s", e.From, e.To, e.AsOf.Format(DateFormat))
	}
	return fmt.Sprintf("no exchange rate for %s/%s", e.From, e.To)
}

// EmptySeriesError reports a stock with transactions but no usable price data.
// It is soft: the stock contributes zero until prices arrive.
type EmptySeriesError struct {
	StockID int64
}

func (e *EmptySeriesError) Error() string {
	return fmt.Sprintf("stock %d has transactions but no price data", e.StockID)
}

// NotFoundError is returned by repositories when a row does not exist
type NotFoundError struct {
	Entity string
	ID     interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}
