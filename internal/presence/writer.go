// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

// Package presence implements the heartbeat write path: the single-beat
// Writer that refreshes one identity's presence and session rows, and
// the Recorder that drives periodic beats for a local identity.
package presence

import (
	"context"
	"time"

	"github.com/plenavideo/vigia/internal/cache"
	"github.com/plenavideo/vigia/internal/device"
	"github.com/plenavideo/vigia/internal/logging"
	"github.com/plenavideo/vigia/internal/metrics"
	"github.com/plenavideo/vigia/internal/models"
	"github.com/plenavideo/vigia/internal/store"
)

// LocationResolver resolves an IP address to a best-effort location.
// Satisfied by geoip.Resolver.
type LocationResolver interface {
	Resolve(ctx context.Context, ipAddress string) models.LocationInfo
}

// Beat carries the client-supplied inputs of one heartbeat.
type Beat struct {
	Identity  string
	IPAddress string
	UserAgent string
}

// Writer performs a single heartbeat: it classifies the device, resolves
// the location at most once per identity per cache window, and upserts
// the presence and session rows with last_seen_at set to now.
//
// A heartbeat is telemetry, not a transaction: store failures are logged
// and counted but never propagated, so a flaky store cannot break the
// caller's main loop.
type Writer struct {
	store      store.Store
	resolver   LocationResolver
	locations  *cache.LocationCache
	sessionTTL time.Duration

	// now is overridable for tests.
	now func() time.Time
}

// NewWriter creates a Writer over the given store and resolver. The
// location cache holds resolved locations so repeat beats for the same
// identity skip the provider chain.
func NewWriter(s store.Store, resolver LocationResolver, sessionTTL time.Duration) *Writer {
	return &Writer{
		store:      s,
		resolver:   resolver,
		locations:  cache.NewLocationCache(10000, sessionTTL),
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// Record executes one heartbeat for the given beat inputs.
func (w *Writer) Record(ctx context.Context, beat Beat) {
	start := w.now()
	now := start.UTC()

	deviceType := device.Classify(beat.UserAgent)
	location := w.locationFor(ctx, beat.Identity, beat.IPAddress)

	presenceRec := &models.PresenceRecord{
		Identity:   beat.Identity,
		IsOnline:   true,
		LastSeenAt: now,
		Location:   location,
		DeviceType: deviceType,
		IPAddress:  beat.IPAddress,
		UserAgent:  beat.UserAgent,
	}

	sessionRec := &models.SessionRecord{
		Identity:       beat.Identity,
		IsActive:       true,
		StartedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(w.sessionTTL),
		DeviceType:     deviceType,
	}

	ok := true
	if err := w.store.UpsertPresence(ctx, presenceRec); err != nil {
		logging.Error().Err(err).Str("identity", beat.Identity).Msg("Failed to upsert presence")
		metrics.StoreQueryErrors.WithLabelValues("upsert_presence").Inc()
		ok = false
	}
	if err := w.store.UpsertSession(ctx, sessionRec); err != nil {
		logging.Error().Err(err).Str("identity", beat.Identity).Msg("Failed to upsert session")
		metrics.StoreQueryErrors.WithLabelValues("upsert_session").Inc()
		ok = false
	}

	metrics.HeartbeatDuration.Observe(time.Since(start).Seconds())
	if ok {
		metrics.HeartbeatsTotal.WithLabelValues("success").Inc()
	} else {
		metrics.HeartbeatsTotal.WithLabelValues("failure").Inc()
	}
}

// locationFor returns the cached location for the identity, resolving
// and caching it on first sight.
func (w *Writer) locationFor(ctx context.Context, identity, ipAddress string) models.LocationInfo {
	if loc, ok := w.locations.Get(identity); ok {
		return loc
	}

	loc := w.resolver.Resolve(ctx, ipAddress)
	w.locations.Add(identity, loc)
	return loc
}
