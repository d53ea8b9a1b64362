// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

// Package aggregate recomputes the per-region online snapshot on a fixed
// cadence and publishes it atomically for lock-free reads.
package aggregate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/plenavideo/vigia/internal/config"
	"github.com/plenavideo/vigia/internal/gate"
	"github.com/plenavideo/vigia/internal/logging"
	"github.com/plenavideo/vigia/internal/metrics"
	"github.com/plenavideo/vigia/internal/models"
	"github.com/plenavideo/vigia/internal/store"
)

// Aggregator maintains the published AggregateSnapshot. Every cycle
// rebuilds the snapshot from scratch and swaps it in atomically, so a
// reader always sees either the previous complete snapshot or the new
// complete snapshot. Timer ticks and manual Refresh calls share one
// gate: at most one cycle in flight, with a hard spacing floor between
// starts.
type Aggregator struct {
	store           store.Store
	interval        time.Duration
	stalenessWindow time.Duration
	topN            int
	gate            *gate.Gate

	snapshot atomic.Pointer[models.AggregateSnapshot]

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

// New creates an Aggregator over the given store, seeded with an empty
// but valid snapshot so reads before the first cycle never fail.
func New(s store.Store, cfg *config.TelemetryConfig) *Aggregator {
	a := &Aggregator{
		store:           s,
		interval:        cfg.AggregateInterval,
		stalenessWindow: cfg.StalenessWindow,
		topN:            cfg.TopRegions,
		gate:            gate.New(cfg.MinRefreshSpacing),
		now:             time.Now,
	}
	a.snapshot.Store(models.EmptySnapshot(a.now().UTC()))
	return a
}

// Snapshot returns the current published snapshot. Lock-free; never nil.
func (a *Aggregator) Snapshot() *models.AggregateSnapshot {
	return a.snapshot.Load()
}

// Refresh runs one aggregation cycle on demand. It returns false when
// the gate rejects the start, either because a cycle is already in
// flight or because the previous cycle started too recently.
func (a *Aggregator) Refresh(ctx context.Context) bool {
	if !a.gate.TryAcquire() {
		metrics.AggregationSkipped.WithLabelValues("manual").Inc()
		return false
	}
	defer a.gate.Release()

	a.runCycle(ctx)
	return true
}

// Start launches the aggregation loop. The first cycle runs immediately
// so a fresh snapshot is available without waiting a full interval.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()

	for a.stopping {
		stopDone := a.stopDone
		a.mu.Unlock()
		<-stopDone
		a.mu.Lock()
	}

	if a.running {
		a.mu.Unlock()
		return nil
	}

	a.ctx, a.cancel = context.WithCancel(ctx)
	a.running = true
	a.stopDone = make(chan struct{})

	loopCtx := a.ctx
	done := a.stopDone

	a.mu.Unlock()

	go a.runWithContext(loopCtx, done)

	logging.Info().
		Dur("interval", a.interval).
		Dur("staleness_window", a.stalenessWindow).
		Int("top_regions", a.topN).
		Msg("Online aggregator started")
	return nil
}

// Stop gracefully stops the aggregation loop.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if !a.running || a.stopping {
		a.mu.Unlock()
		return
	}

	a.cancel()
	a.running = false
	a.stopping = true
	stopDone := a.stopDone
	a.mu.Unlock()

	<-stopDone

	a.mu.Lock()
	a.stopping = false
	a.mu.Unlock()

	logging.Info().Msg("Online aggregator stopped")
}

// IsRunning reports whether the aggregation loop is active.
func (a *Aggregator) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *Aggregator) runWithContext(ctx context.Context, done chan struct{}) {
	defer close(done)

	a.tryCycle(ctx, "initial")

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tryCycle(ctx, "timer")
		}
	}
}

func (a *Aggregator) tryCycle(ctx context.Context, trigger string) {
	if !a.gate.TryAcquire() {
		logging.Debug().Str("trigger", trigger).Msg("Aggregation cycle gated, skipping")
		metrics.AggregationSkipped.WithLabelValues(trigger).Inc()
		return
	}
	defer a.gate.Release()

	a.runCycle(ctx)
}

// runCycle queries, rebuilds, and publishes. On query failure the
// previous snapshot stays published untouched.
func (a *Aggregator) runCycle(ctx context.Context) {
	start := a.now()
	now := start.UTC()
	cutoff := now.Add(-a.stalenessWindow)

	records, err := a.store.OnlinePresences(ctx, cutoff)
	if err != nil {
		logging.Error().Err(err).Msg("Aggregation query failed, keeping previous snapshot")
		metrics.StoreQueryErrors.WithLabelValues("online_presences").Inc()
		metrics.AggregationCycles.WithLabelValues("failure").Inc()
		return
	}

	snapshot := models.BuildSnapshot(records, now, a.topN)
	a.snapshot.Store(snapshot)

	metrics.AggregationCycles.WithLabelValues("success").Inc()
	metrics.AggregationDuration.Observe(time.Since(start).Seconds())
	metrics.OnlineTotal.Set(float64(snapshot.Total))
	metrics.OnlineRegions.Set(float64(len(snapshot.CountsByRegion)))

	logging.Debug().
		Int("total", snapshot.Total).
		Int("regions", len(snapshot.CountsByRegion)).
		Msg("Aggregation cycle complete")
}
