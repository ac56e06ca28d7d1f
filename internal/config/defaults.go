package config

import (
	"time"

	"github.com/google/uuid"
)

// Default values for optional configuration fields.
const (
	DefaultWSURL              = "wss://leviathan.whale-alert.io/ws"
	DefaultMinValueUSD        = 500000
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultSubscribeTimeout   = 10 * time.Second
	DefaultBinanceBaseURL     = "https://api.binance.com/api/v3"
	DefaultBinanceTimeout     = 10 * time.Second
	DefaultBinanceMaxRetries  = 3
	DefaultRedisURL           = "redis://localhost:6379/0"
	DefaultWindowHours        = 24
	DefaultSampleInterval     = 300 * time.Second
	DefaultArchiveBatchSize   = 100
	DefaultArchiveFlush       = 30 * time.Second
	DefaultHealthPort         = 8080
)

func (c *ObserverConfig) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = "observer-" + uuid.NewString()[:8]
	}

	// Feed defaults
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = DefaultWSURL
	}
	if c.Feed.MinValueUSD == 0 {
		c.Feed.MinValueUSD = DefaultMinValueUSD
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.SubscribeTimeout == 0 {
		c.Feed.SubscribeTimeout = DefaultSubscribeTimeout
	}

	// Binance defaults
	if c.Binance.BaseURL == "" {
		c.Binance.BaseURL = DefaultBinanceBaseURL
	}
	if c.Binance.Timeout == 0 {
		c.Binance.Timeout = DefaultBinanceTimeout
	}
	if c.Binance.MaxRetries == 0 {
		c.Binance.MaxRetries = DefaultBinanceMaxRetries
	}

	// Redis defaults
	if c.Redis.URL == "" {
		c.Redis.URL = DefaultRedisURL
	}

	// Observer defaults
	if c.Observer.WindowHours == 0 {
		c.Observer.WindowHours = DefaultWindowHours
	}
	if c.Observer.SampleInterval == 0 {
		c.Observer.SampleInterval = DefaultSampleInterval
	}

	// Archive defaults (only meaningful when DSN is set)
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultArchiveBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultArchiveFlush
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}
