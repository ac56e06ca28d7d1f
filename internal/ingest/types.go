package ingest

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Config configures the feed client.
type Config struct {
	WSURL       string   // Feed endpoint (api_key is appended as a query param)
	APIKey      string   // Required credential
	MinValueUSD float64  // Minimum transfer value filter (required by the feed)
	Symbols     []string // Optional asset filter; empty = all assets
	Blockchains []string // Optional chain filter; empty = all chains

	WindowHours int // Observation window opened per event

	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	SubscribeTimeout   time.Duration

	PingTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WindowHours:        24,
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  60 * time.Second,
		SubscribeTimeout:   10 * time.Second,
		PingTimeout:        60 * time.Second,
		WriteTimeout:       5 * time.Second,
		BufferSize:         1000,
	}
}

// SubscribeRequest is the subscription command sent after connecting.
// Omitted symbols/blockchains mean the feed includes everything.
type SubscribeRequest struct {
	Type        string   `json:"type"` // Always "subscribe_alerts"
	MinValueUSD float64  `json:"min_value_usd"`
	Symbols     []string `json:"symbols,omitempty"`
	Blockchains []string `json:"blockchains,omitempty"`
}

// AlertAmount is one asset entry in an alert's amounts array.
type AlertAmount struct {
	Symbol   string  `json:"symbol"`
	Amount   float64 `json:"amount"`
	ValueUSD float64 `json:"value_usd"`
}

// AlertTransaction carries the transaction hash used as the event id.
type AlertTransaction struct {
	Hash string `json:"hash"`
}

// AlertMessage is an inbound alert from the feed.
type AlertMessage struct {
	Type            string           `json:"type"`
	ChannelID       string           `json:"channel_id"`
	Timestamp       int64            `json:"timestamp"` // Unix seconds
	Blockchain      string           `json:"blockchain"`
	TransactionType string           `json:"transaction_type"`
	From            string           `json:"from"`
	To              string           `json:"to"`
	Amounts         []AlertAmount    `json:"amounts"`
	Transaction     AlertTransaction `json:"transaction"`
}

// feedEnvelope is the first-pass parse used to classify inbound messages.
type feedEnvelope struct {
	Type  string          `json:"type"`
	Error string          `json:"error"`
	ID    json.RawMessage `json:"id"`
}
