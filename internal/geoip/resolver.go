// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

package geoip

import (
	"context"

	"github.com/plenavideo/vigia/internal/config"
	"github.com/plenavideo/vigia/internal/logging"
	"github.com/plenavideo/vigia/internal/metrics"
	"github.com/plenavideo/vigia/internal/models"
)

// Resolver walks an ordered provider chain and guarantees a usable
// location for every call: when every provider fails it returns the
// hard-coded default rather than an error, so aggregation never drops
// a user for lack of location.
type Resolver struct {
	providers []Provider
}

// NewResolver creates a resolver over the given providers, tried in
// order until one succeeds.
func NewResolver(providers ...Provider) *Resolver {
	return &Resolver{providers: providers}
}

// NewDefaultResolver builds the production chain from configuration:
// ip-api.com (full lookup) then country.is (country-only), each behind
// a circuit breaker.
func NewDefaultResolver(cfg *config.GeoIPConfig) *Resolver {
	return NewResolver(
		WithBreaker(NewIPAPIProvider(cfg.IPAPIBaseURL, cfg.ProviderTimeout)),
		WithBreaker(NewCountryProvider(cfg.CountryBaseURL, cfg.ProviderTimeout)),
	)
}

// Resolve returns a best-effort location for the IP address. It never
// returns an error; its latency is bounded by the sum of the provider
// timeouts since the chain is walked once with no retry loop. Purely
// functional: no store side effects.
func (r *Resolver) Resolve(ctx context.Context, ipAddress string) models.LocationInfo {
	ipAddress = NormalizeIP(ipAddress)

	if IsPrivateIP(ipAddress) {
		logging.Debug().Str("ip", ipAddress).Msg("IP is private/LAN, using default location")
		return models.DefaultLocation()
	}

	for _, provider := range r.providers {
		if !provider.IsAvailable() {
			continue
		}

		loc, err := provider.Lookup(ctx, ipAddress)
		if err != nil {
			logging.Debug().Err(err).Str("provider", provider.Name()).Str("ip", ipAddress).Msg("Location provider failed")
			metrics.GeoLookups.WithLabelValues(provider.Name(), "failure").Inc()
			continue
		}

		metrics.GeoLookups.WithLabelValues(provider.Name(), "success").Inc()
		return *loc
	}

	logging.Debug().Str("ip", ipAddress).Msg("All location providers failed, using default location")
	metrics.GeoFallbacks.Inc()
	return models.DefaultLocation()
}
