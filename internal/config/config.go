// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

// Package config loads and validates Vigia configuration from layered
// sources (built-in defaults, optional YAML file, environment variables)
// using Koanf v2.
package config

import "time"

// Config is the root configuration for the telemetry engine.
type Config struct {
	Telemetry TelemetryConfig `koanf:"telemetry"`
	GeoIP     GeoIPConfig     `koanf:"geoip"`
	Store     StoreConfig     `koanf:"store"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// TelemetryConfig holds the cadence and staleness tuning for the presence
// engine. These are tuning decisions, not correctness requirements, with
// one exception: HeartbeatInterval must be strictly shorter than
// StalenessWindow or live clients get reaped between heartbeats.
type TelemetryConfig struct {
	// HeartbeatInterval is how often each recorder refreshes its
	// presence record.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`

	// StalenessWindow is the maximum age a presence record may have
	// while still being counted as online. Shared by the aggregator's
	// query filter and the reaper's demotion predicate so the two agree
	// on what "online" means.
	StalenessWindow time.Duration `koanf:"staleness_window"`

	// AggregateInterval is the cadence of snapshot recomputation.
	AggregateInterval time.Duration `koanf:"aggregate_interval"`

	// MinRefreshSpacing is the hard floor between two aggregation
	// cycles, regardless of trigger source.
	MinRefreshSpacing time.Duration `koanf:"min_refresh_spacing"`

	// TopRegions is the length of the ranked per-region view.
	TopRegions int `koanf:"top_regions"`

	// SessionTTL is the explicit expiry applied to session records.
	SessionTTL time.Duration `koanf:"session_ttl"`

	// SelfIdentity, when set, makes the server heartbeat for itself so
	// it shows up in its own telemetry. Empty disables the recorder.
	SelfIdentity string `koanf:"self_identity"`
}

// GeoIPConfig configures the location resolution provider chain.
type GeoIPConfig struct {
	// ProviderTimeout bounds each provider HTTP call. Total resolution
	// latency is bounded by the sum across the chain.
	ProviderTimeout time.Duration `koanf:"provider_timeout"`

	// IPAPIBaseURL overrides the primary provider endpoint (tests).
	IPAPIBaseURL string `koanf:"ipapi_base_url"`

	// CountryBaseURL overrides the country-only fallback endpoint (tests).
	CountryBaseURL string `koanf:"country_base_url"`
}

// StoreConfig selects and configures the presence store backend.
type StoreConfig struct {
	// Backend is "duckdb" or "redis".
	Backend string `koanf:"backend"`

	// Path is the DuckDB database file path.
	Path string `koanf:"path"`

	// MaxMemory is the DuckDB memory limit.
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count; 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`

	// RedisAddr is the Redis address for the redis backend.
	RedisAddr string `koanf:"redis_addr"`

	// RedisDB is the Redis logical database number.
	RedisDB int `koanf:"redis_db"`

	// RedisPassword authenticates against Redis when set.
	RedisPassword string `koanf:"redis_password"`
}

// ServerConfig configures the embedded HTTP surface.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Telemetry: TelemetryConfig{
			HeartbeatInterval: 60 * time.Second,
			StalenessWindow:   300 * time.Second,
			AggregateInterval: 45 * time.Second,
			MinRefreshSpacing: 5 * time.Second,
			TopRegions:        15,
			SessionTTL:        30 * time.Minute,
		},
		GeoIP: GeoIPConfig{
			ProviderTimeout: 5 * time.Second,
			IPAPIBaseURL:    "http://ip-api.com/json",
			CountryBaseURL:  "https://api.country.is",
		},
		Store: StoreConfig{
			Backend:   "duckdb",
			Path:      "/data/vigia.duckdb",
			MaxMemory: "512MB",
			Threads:   0, // 0 = use runtime.NumCPU()
			RedisAddr: "127.0.0.1:6379",
			RedisDB:   0,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8637,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
