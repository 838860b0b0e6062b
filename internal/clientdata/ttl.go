package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	TTLExchangeRate = time.Hour        // Latest exchange rates
	TTLLiveQuote    = 15 * time.Minute // Live quotes shown on the dashboard
)
