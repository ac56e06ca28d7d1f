package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
// A missing feed API key is fatal here so the process never reaches the
// connect loop without credentials.
func (c *ObserverConfig) Validate() error {
	if c.Feed.APIKey == "" {
		return errors.New("feed.api_key is required")
	}
	if c.Feed.MinValueUSD <= 0 {
		return errors.New("feed.min_value_usd must be > 0")
	}
	if c.Feed.ReconnectBaseDelay > c.Feed.ReconnectMaxDelay {
		return fmt.Errorf("feed.reconnect_base_delay (%v) cannot exceed reconnect_max_delay (%v)",
			c.Feed.ReconnectBaseDelay, c.Feed.ReconnectMaxDelay)
	}

	if c.Binance.MaxRetries < 0 {
		return errors.New("binance.max_retries must be >= 0")
	}

	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}

	if c.Observer.WindowHours < 1 {
		return errors.New("observer.window_hours must be >= 1")
	}
	if c.Observer.SampleInterval <= 0 {
		return errors.New("observer.sample_interval must be > 0")
	}

	if c.Archive.DSN != "" {
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}
