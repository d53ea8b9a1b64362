// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

// Package reaper demotes stale presence rows to offline and expires
// inactive sessions on a fixed cadence, so clients that vanish without
// a clean disconnect eventually drop out of the aggregation.
package reaper

import (
	"context"
	"sync"
	"time"

	"github.com/plenavideo/vigia/internal/config"
	"github.com/plenavideo/vigia/internal/logging"
	"github.com/plenavideo/vigia/internal/metrics"
	"github.com/plenavideo/vigia/internal/store"
)

// Reaper runs at the staleness-window cadence. It shares the window
// constant with the aggregator's query filter, so a record the reaper
// has not yet demoted is still excluded from counts once it ages past
// the window.
type Reaper struct {
	store           store.Store
	stalenessWindow time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// State protected by mu.
	mu       sync.Mutex
	running  bool
	stopping bool
	stopDone chan struct{}

	// now is overridable for tests.
	now func() time.Time
}

// New creates a Reaper over the given store.
func New(s store.Store, cfg *config.TelemetryConfig) *Reaper {
	return &Reaper{
		store:           s,
		stalenessWindow: cfg.StalenessWindow,
		now:             time.Now,
	}
}

// Start launches the reap loop. It runs until Stop is called or the
// context is canceled. Calling Start on a running reaper is a no-op.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()

	for r.stopping {
		stopDone := r.stopDone
		r.mu.Unlock()
		<-stopDone
		r.mu.Lock()
	}

	if r.running {
		r.mu.Unlock()
		return nil
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.running = true
	r.stopDone = make(chan struct{})

	loopCtx := r.ctx
	done := r.stopDone

	r.mu.Unlock()

	go r.runWithContext(loopCtx, done)

	logging.Info().
		Dur("staleness_window", r.stalenessWindow).
		Msg("Stale reaper started")
	return nil
}

// Stop gracefully stops the reap loop.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running || r.stopping {
		r.mu.Unlock()
		return
	}

	r.cancel()
	r.running = false
	r.stopping = true
	stopDone := r.stopDone
	r.mu.Unlock()

	<-stopDone

	r.mu.Lock()
	r.stopping = false
	r.mu.Unlock()

	logging.Info().Msg("Stale reaper stopped")
}

// IsRunning reports whether the reap loop is active.
func (r *Reaper) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reaper) runWithContext(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.stalenessWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReapOnce(ctx)
		}
	}
}

// ReapOnce runs one reap cycle: flip stale presences offline, then
// expire stale or explicitly expired sessions. Failures are logged and
// swallowed; the next tick retries.
func (r *Reaper) ReapOnce(ctx context.Context) {
	now := r.now().UTC()
	cutoff := now.Add(-r.stalenessWindow)
	ok := true

	reaped, err := r.store.MarkPresencesOffline(ctx, cutoff)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to mark stale presences offline")
		metrics.StoreQueryErrors.WithLabelValues("mark_offline").Inc()
		ok = false
	} else if reaped > 0 {
		logging.Info().Int64("count", reaped).Msg("Marked stale presences offline")
		metrics.ReapedPresences.Add(float64(reaped))
	}

	expired, err := r.store.ExpireSessions(ctx, cutoff, now)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to expire sessions")
		metrics.StoreQueryErrors.WithLabelValues("expire_sessions").Inc()
		ok = false
	} else if expired > 0 {
		logging.Info().Int64("count", expired).Msg("Expired stale sessions")
		metrics.ReapedSessions.Add(float64(expired))
	}

	if ok {
		metrics.ReapCycles.WithLabelValues("success").Inc()
	} else {
		metrics.ReapCycles.WithLabelValues("failure").Inc()
	}
}
