package events

import "encoding/json"

// EventData is implemented by every typed event payload
type EventData interface {
	EventType() EventType
}

// TransactionsImportedData describes a finished transaction import
type TransactionsImportedData struct {
	BatchID  string `json:"batch_id"`
	Filename string `json:"filename"`
	Rows     int    `json:"rows"`
	Inserted int    `json:"inserted"`
}

// EventType returns the event type for TransactionsImportedData
func (d *TransactionsImportedData) EventType() EventType {
	return TransactionsImported
}

// MarketDataUpdatedData describes a finished market data refresh
type MarketDataUpdatedData struct {
	TickersResolved int `json:"tickers_resolved"`
	PricesInserted  int `json:"prices_inserted"`
	IndexPrices     int `json:"index_prices"`
	RatesStored     int `json:"rates_stored"`
}

// EventType returns the event type for MarketDataUpdatedData
func (d *MarketDataUpdatedData) EventType() EventType {
	return MarketDataUpdated
}

// LiveQuotesRefreshedData describes a live quote refresh
type LiveQuotesRefreshedData struct {
	Quotes int `json:"quotes"`
}

// EventType returns the event type for LiveQuotesRefreshedData
func (d *LiveQuotesRefreshedData) EventType() EventType {
	return LiveQuotesRefreshed
}

// DatabasePurgedData carries the number of rows removed per table
type DatabasePurgedData struct {
	Deleted map[string]int64 `json:"deleted"`
}

// EventType returns the event type for DatabasePurgedData
func (d *DatabasePurgedData) EventType() EventType {
	return DatabasePurged
}

// BackupCompletedData describes an uploaded backup
type BackupCompletedData struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
	Removed   int    `json:"removed"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// JobCompletedData is emitted by the scheduler after each job run
type JobCompletedData struct {
	Job        string `json:"job"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// EventType returns the event type for JobCompletedData
func (d *JobCompletedData) EventType() EventType {
	return JobCompleted
}

// ErrorEventData carries an error and its context
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// toMap converts typed data to the generic payload carried by Event
func toMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	var result map[string]interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil
	}
	return result
}
