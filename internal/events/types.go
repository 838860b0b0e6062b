// Package events provides in-process event publishing for live dashboard updates.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	TransactionsImported EventType = "TRANSACTIONS_IMPORTED"
	MarketDataUpdated    EventType = "MARKET_DATA_UPDATED"
	LiveQuotesRefreshed  EventType = "LIVE_QUOTES_REFRESHED"
	DatabasePurged       EventType = "DATABASE_PURGED"
	BackupCompleted      EventType = "BACKUP_COMPLETED"
	JobCompleted         EventType = "JOB_COMPLETED"
	ErrorOccurred        EventType = "ERROR_OCCURRED"
)

// AllTypes lists every event type a subscriber can receive
var AllTypes = []EventType{
	TransactionsImported,
	MarketDataUpdated,
	LiveQuotesRefreshed,
	DatabasePurged,
	BackupCompleted,
	JobCompleted,
	ErrorOccurred,
}

// Event is a published event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
