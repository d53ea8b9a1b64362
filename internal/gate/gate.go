// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

// Package gate provides the shared single-flight discipline applied to
// every schedulable telemetry operation: at most one execution in flight
// per operation kind, plus a hard floor on start frequency regardless of
// whether the trigger was a timer tick or a manual request.
package gate

import (
	"sync"
	"time"
)

// Gate guards one operation kind. A caller must successfully TryAcquire
// before starting work and Release in a deferred finalizer once done.
type Gate struct {
	mu         sync.Mutex
	inFlight   bool
	lastStart  time.Time
	minSpacing time.Duration

	// now is overridable for tests.
	now func() time.Time
}

// New returns a Gate enforcing the given minimum spacing between starts.
// A zero or negative spacing disables the frequency floor but keeps the
// overlap guard.
func New(minSpacing time.Duration) *Gate {
	return &Gate{
		minSpacing: minSpacing,
		now:        time.Now,
	}
}

// TryAcquire atomically checks-and-sets the in-flight flag. It returns
// false when an execution is already in flight, or when the previous
// start was within the minimum spacing.
func (g *Gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight {
		return false
	}

	now := g.now()
	if g.minSpacing > 0 && !g.lastStart.IsZero() && now.Sub(g.lastStart) < g.minSpacing {
		return false
	}

	g.inFlight = true
	g.lastStart = now
	return true
}

// Release clears the in-flight flag. Always call from a defer so the
// gate is released on every exit path, including panics recovered by
// the supervisor.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight = false
}

// InFlight reports whether an execution currently holds the gate.
func (g *Gate) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}
