package config

import "time"

// Config holds portal client configuration values.
type Config struct {
	// APIBaseURL is the base URL of the portal REST API (history, submit, upload).
	APIBaseURL string `mapstructure:"api_base_url" yaml:"api_base_url"`
	// EventURL is the base URL of the real-time event channel.
	EventURL string `mapstructure:"event_url" yaml:"event_url"`
	// Token is the session token issued by the portal's auth service.
	Token string `mapstructure:"token" yaml:"token"`

	// Transports is the ordered transport preference for the event channel.
	// Polling goes first to avoid upgrade failures on restrictive networks.
	Transports []string `mapstructure:"transports" yaml:"transports"`
	// Upgrade allows trying the websocket transport ahead of the configured list.
	Upgrade bool `mapstructure:"upgrade" yaml:"upgrade"`

	ReconnectAttempts int           `mapstructure:"reconnect_attempts" yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	RetryAttempts     int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`

	PendingExpiry   time.Duration `mapstructure:"pending_expiry" yaml:"pending_expiry"`
	DuplicateWindow time.Duration `mapstructure:"duplicate_window" yaml:"duplicate_window"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration matching the portal's production behaviour.
func Default() Config {
	return Config{
		APIBaseURL:        "http://localhost:5000",
		EventURL:          "http://localhost:5000",
		Transports:        []string{"polling"},
		Upgrade:           false,
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
		RetryAttempts:     3,
		RetryBackoff:      time.Second,
		HandshakeTimeout:  10 * time.Second,
		PendingExpiry:     5 * time.Second,
		DuplicateWindow:   time.Second,
		LogLevel:          "info",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Upgrade can only be switched on this way: false is indistinguishable from
// unset, so disabling it requires a full config.
func (c *Config) UpdateFrom(other Config) {
	if other.Upgrade {
		c.Upgrade = true
	}
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
	if other.EventURL != "" {
		c.EventURL = other.EventURL
	}
	if other.Token != "" {
		c.Token = other.Token
	}
	if len(other.Transports) != 0 {
		c.Transports = other.Transports
	}
	if other.ReconnectAttempts != 0 {
		c.ReconnectAttempts = other.ReconnectAttempts
	}
	if other.ReconnectDelay != 0 {
		c.ReconnectDelay = other.ReconnectDelay
	}
	if other.RetryAttempts != 0 {
		c.RetryAttempts = other.RetryAttempts
	}
	if other.RetryBackoff != 0 {
		c.RetryBackoff = other.RetryBackoff
	}
	if other.HandshakeTimeout != 0 {
		c.HandshakeTimeout = other.HandshakeTimeout
	}
	if other.PendingExpiry != 0 {
		c.PendingExpiry = other.PendingExpiry
	}
	if other.DuplicateWindow != 0 {
		c.DuplicateWindow = other.DuplicateWindow
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}
