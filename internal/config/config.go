package config

import "time"

// ObserverConfig is the top-level configuration for the observer service.
type ObserverConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	Binance  BinanceConfig  `yaml:"binance"`
	Redis    RedisConfig    `yaml:"redis"`
	Observer WindowConfig   `yaml:"observer"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"` // Generated if empty
}

// FeedConfig configures the whale-alert websocket subscription.
type FeedConfig struct {
	WSURL       string   `yaml:"ws_url"`
	APIKey      string   `yaml:"api_key"`
	MinValueUSD float64  `yaml:"min_value_usd"`
	Symbols     []string `yaml:"symbols"`     // Empty = all assets
	Blockchains []string `yaml:"blockchains"` // Empty = all chains

	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	SubscribeTimeout   time.Duration `yaml:"subscribe_timeout"`
}

// BinanceConfig configures the market price gateway.
type BinanceConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// RedisConfig configures the store backend.
type RedisConfig struct {
	URL string `yaml:"url"` // redis://[:password@]host[:port][/db]
}

// WindowConfig configures observation windows and sampling.
type WindowConfig struct {
	WindowHours    int           `yaml:"window_hours"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}

// ArchiveConfig configures the optional postgres result exporter.
// The exporter is disabled when DSN is empty.
type ArchiveConfig struct {
	DSN           string        `yaml:"dsn"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// HealthConfig configures the health endpoint.
type HealthConfig struct {
	Port int `yaml:"port"`
}
