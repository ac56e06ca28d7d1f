package model

import "time"

// Observation status values. Transitions are forward-only:
// observing -> completed.
const (
	StatusObserving = "observing"
	StatusCompleted = "completed"
)

// Result direction values.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Retention periods at the store layer.
const (
	EventTTL    = 7 * 24 * time.Hour
	SnapshotTTL = 7 * 24 * time.Hour
	ResultTTL   = 30 * 24 * time.Hour

	// ObservationTTLBuffer is added on top of the window duration so a
	// completed observation outlives its window long enough to be read.
	ObservationTTLBuffer = time.Hour
)

// Event is an immutable record of one detected large-value transfer.
type Event struct {
	ID            string    // Transaction hash, primary key
	Timestamp     time.Time // When the transfer was detected
	Currency      string    // Lower-case asset symbol (e.g. "btc")
	Amount        float64   // Transferred amount in the asset
	AmountUSD     float64   // USD-equivalent value
	FromAddress   string
	ToAddress     string
	Blockchain    string
	TxType        string  // Transfer type as reported by the feed
	BaselinePrice float64 // Market price at detection time
}

// Observation is the mutable lifecycle record for one event's
// price-tracking window.
type Observation struct {
	EventID       string
	BaselinePrice float64
	BaselineTime  time.Time
	WindowHours   int
	Status        string // StatusObserving or StatusCompleted
	ExpiresAt     time.Time
}

// Expired reports whether the observation window has elapsed at now.
func (o Observation) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// PriceSnapshot is one timestamped price sample taken during an
// observing window.
type PriceSnapshot struct {
	Time      time.Time `json:"time"`
	Price     float64   `json:"price"`
	ChangePct float64   `json:"change_pct"`
}

// Result is the terminal record for a completed observation.
type Result struct {
	EventID        string
	FinalPrice     float64
	FinalChangePct float64
	Direction      string // DirectionUp or DirectionDown
	MaxChangePct   float64
	MinChangePct   float64
	CompletedAt    time.Time
}

// Stats is a derived, recomputable summary. It is never authoritative;
// it can always be rebuilt by scanning events and results.
type Stats struct {
	TotalEvents    int
	ObservingCount int
	CompletedCount int
	UpCount        int
	DownCount      int
	UpdatedAt      time.Time
}

// Direction classifies a final percent change. Zero is "down": the
// window closed without a gain.
func Direction(finalChangePct float64) string {
	if finalChangePct > 0 {
		return DirectionUp
	}
	return DirectionDown
}

// ChangePct computes the percent change of price against baseline.
func ChangePct(price, baseline float64) float64 {
	return (price - baseline) / baseline * 100
}
