// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

package geoip

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/plenavideo/vigia/internal/logging"
	"github.com/plenavideo/vigia/internal/metrics"
	"github.com/plenavideo/vigia/internal/models"
)

// BreakerProvider wraps a Provider with a circuit breaker so that a
// provider that is down or slow stops being called for a recovery
// window instead of adding its full timeout to every resolution.
type BreakerProvider struct {
	provider Provider
	cb       *gobreaker.CircuitBreaker[*models.LocationInfo]
}

// WithBreaker wraps the provider with a circuit breaker. The breaker
// opens after a 60% failure rate over at least 5 requests within the
// measurement window, and probes again after 2 minutes.
func WithBreaker(provider Provider) *BreakerProvider {
	name := provider.Name()
	metrics.BreakerState.WithLabelValues(name).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[*models.LocationInfo](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("provider", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Location provider circuit breaker state change")
			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerProvider{provider: provider, cb: cb}
}

// Lookup executes the wrapped lookup through the circuit breaker.
func (b *BreakerProvider) Lookup(ctx context.Context, ipAddress string) (*models.LocationInfo, error) {
	return b.cb.Execute(func() (*models.LocationInfo, error) {
		return b.provider.Lookup(ctx, ipAddress)
	})
}

// Name returns the wrapped provider's name.
func (b *BreakerProvider) Name() string {
	return b.provider.Name()
}

// IsAvailable defers to the wrapped provider; an open circuit is
// reported through Lookup errors rather than availability, so the
// resolver still records the rejection.
func (b *BreakerProvider) IsAvailable() bool {
	return b.provider.IsAvailable()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
