package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent yui configuration stored as config.toml
// in the .yui/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Proxy       ProxyConfig       `toml:"proxy"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	Reasoning   ReasoningConfig   `toml:"reasoning"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// StorageConfig holds shared storage settings used by both proxy and API.
// When PostgresDSN is set it wins over SQLitePath.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// ProxyConfig holds proxy-specific settings.
type ProxyConfig struct {
	Provider    string `toml:"provider,omitempty"`
	Upstream    string `toml:"upstream,omitempty"`
	APIKey      string `toml:"api_key,omitempty"`
	Listen      string `toml:"listen,omitempty"`
	CORSOrigins string `toml:"cors_origins,omitempty"`
	Mode        string `toml:"mode,omitempty"`
	StaticDir   string `toml:"static_dir,omitempty"`

	// Timeout is the upstream request timeout in seconds.
	Timeout uint `toml:"timeout,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to the running
// proxy and API servers (e.g. yui chat). Values are full URLs
// (scheme + host + port).
type ClientConfig struct {
	ProxyTarget string `toml:"proxy_target,omitempty"`
	APITarget   string `toml:"api_target,omitempty"`
	Model       string `toml:"model,omitempty"`
}

// ReasoningConfig controls inline <think> tag handling.
type ReasoningConfig struct {
	// ModelPatterns is a comma separated list of case-insensitive model
	// name substrings that identify reasoning models.
	ModelPatterns string `toml:"model_patterns,omitempty"`

	// ForceTags enables tag scanning for every model.
	ForceTags bool `toml:"force_tags,omitempty"`
}

// EventStreamConfig selects where finalized message events are published.
type EventStreamConfig struct {
	Provider     string `toml:"provider,omitempty"`
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"proxy.provider": {
		get: func(c *Config) string { return c.Proxy.Provider },
		set: func(c *Config, v string) error { c.Proxy.Provider = v; return nil },
	},
	"proxy.upstream": {
		get: func(c *Config) string { return c.Proxy.Upstream },
		set: func(c *Config, v string) error { c.Proxy.Upstream = v; return nil },
	},
	"proxy.api_key": {
		get: func(c *Config) string { return c.Proxy.APIKey },
		set: func(c *Config, v string) error { c.Proxy.APIKey = v; return nil },
	},
	"proxy.listen": {
		get: func(c *Config) string { return c.Proxy.Listen },
		set: func(c *Config, v string) error { c.Proxy.Listen = v; return nil },
	},
	"proxy.cors_origins": {
		get: func(c *Config) string { return c.Proxy.CORSOrigins },
		set: func(c *Config, v string) error { c.Proxy.CORSOrigins = v; return nil },
	},
	"proxy.mode": {
		get: func(c *Config) string { return c.Proxy.Mode },
		set: func(c *Config, v string) error {
			if v != ModeProduction && v != ModeDevelopment {
				return fmt.Errorf("invalid value for proxy.mode: %q (expected %s or %s)", v, ModeProduction, ModeDevelopment)
			}
			c.Proxy.Mode = v
			return nil
		},
	},
	"proxy.static_dir": {
		get: func(c *Config) string { return c.Proxy.StaticDir },
		set: func(c *Config, v string) error { c.Proxy.StaticDir = v; return nil },
	},
	"proxy.timeout": {
		get: func(c *Config) string {
			if c.Proxy.Timeout == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Proxy.Timeout), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for proxy.timeout: %w", err)
			}
			c.Proxy.Timeout = uint(n)
			return nil
		},
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"client.proxy_target": {
		get: func(c *Config) string { return c.Client.ProxyTarget },
		set: func(c *Config, v string) error { c.Client.ProxyTarget = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"client.model": {
		get: func(c *Config) string { return c.Client.Model },
		set: func(c *Config, v string) error { c.Client.Model = v; return nil },
	},
	"reasoning.model_patterns": {
		get: func(c *Config) string { return c.Reasoning.ModelPatterns },
		set: func(c *Config, v string) error { c.Reasoning.ModelPatterns = v; return nil },
	},
	"reasoning.force_tags": {
		get: func(c *Config) string { return strconv.FormatBool(c.Reasoning.ForceTags) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for reasoning.force_tags: %w", err)
			}
			c.Reasoning.ForceTags = b
			return nil
		},
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			if v != EventStreamNop && v != EventStreamKafka {
				return fmt.Errorf("invalid value for eventstream.provider: %q (expected %s or %s)", v, EventStreamNop, EventStreamKafka)
			}
			c.EventStream.Provider = v
			return nil
		},
	},
	"eventstream.kafka_brokers": {
		get: func(c *Config) string { return c.EventStream.KafkaBrokers },
		set: func(c *Config, v string) error { c.EventStream.KafkaBrokers = v; return nil },
	},
	"eventstream.kafka_topic": {
		get: func(c *Config) string { return c.EventStream.KafkaTopic },
		set: func(c *Config, v string) error { c.EventStream.KafkaTopic = v; return nil },
	},
}
