// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

package config

import (
	"fmt"
	"net/url"
)

// Validate checks that the configuration is complete and internally
// consistent. Violations here are programmer/deployment errors and are
// fatal at startup; they are never tolerated at runtime because they
// silently break counting correctness.
func (c *Config) Validate() error {
	if err := c.validateTelemetry(); err != nil {
		return err
	}
	if err := c.validateGeoIP(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	return c.validateServer()
}

// validateTelemetry enforces the cadence invariants.
func (c *Config) validateTelemetry() error {
	t := c.Telemetry

	if t.HeartbeatInterval <= 0 {
		return fmt.Errorf("telemetry.heartbeat_interval must be positive, got %s", t.HeartbeatInterval)
	}
	if t.StalenessWindow <= 0 {
		return fmt.Errorf("telemetry.staleness_window must be positive, got %s", t.StalenessWindow)
	}

	// A heartbeat interval at or above the staleness window means a live
	// client can be reaped between two heartbeats under scheduling jitter.
	if t.HeartbeatInterval >= t.StalenessWindow {
		return fmt.Errorf("telemetry.heartbeat_interval (%s) must be strictly shorter than telemetry.staleness_window (%s)",
			t.HeartbeatInterval, t.StalenessWindow)
	}

	if t.AggregateInterval <= 0 {
		return fmt.Errorf("telemetry.aggregate_interval must be positive, got %s", t.AggregateInterval)
	}
	if t.MinRefreshSpacing <= 0 {
		return fmt.Errorf("telemetry.min_refresh_spacing must be positive, got %s", t.MinRefreshSpacing)
	}
	if t.MinRefreshSpacing > t.AggregateInterval {
		return fmt.Errorf("telemetry.min_refresh_spacing (%s) must not exceed telemetry.aggregate_interval (%s)",
			t.MinRefreshSpacing, t.AggregateInterval)
	}
	if t.TopRegions < 1 {
		return fmt.Errorf("telemetry.top_regions must be at least 1, got %d", t.TopRegions)
	}
	if t.SessionTTL <= 0 {
		return fmt.Errorf("telemetry.session_ttl must be positive, got %s", t.SessionTTL)
	}

	return nil
}

func (c *Config) validateGeoIP() error {
	if c.GeoIP.ProviderTimeout <= 0 {
		return fmt.Errorf("geoip.provider_timeout must be positive, got %s", c.GeoIP.ProviderTimeout)
	}
	if err := validateHTTPURL(c.GeoIP.IPAPIBaseURL, "geoip.ipapi_base_url"); err != nil {
		return err
	}
	return validateHTTPURL(c.GeoIP.CountryBaseURL, "geoip.country_base_url")
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case "duckdb":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the duckdb backend")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend must be duckdb or redis, got %q", c.Store.Backend)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	return nil
}

// validateHTTPURL checks that a value parses as an absolute http(s) URL.
func validateHTTPURL(raw, field string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme, got %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", field)
	}
	return nil
}
