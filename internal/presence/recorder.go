// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

package presence

import (
	"context"
	"sync"
	"time"

	"github.com/plenavideo/vigia/internal/gate"
	"github.com/plenavideo/vigia/internal/logging"
	"github.com/plenavideo/vigia/internal/metrics"
)

// Recorder keeps one identity's presence fresh by beating on a fixed
// interval. The first beat completes synchronously inside Start before
// the ticker is armed, so the identity is visible to aggregation as soon
// as Start returns. Ticks that fire while a beat is still in flight are
// skipped, never queued.
type Recorder struct {
	writer   *Writer
	beat     Beat
	interval time.Duration
	gate     *gate.Gate

	ctx    context.Context
	cancel context.CancelFunc

	// State protected by mu.
	mu       sync.Mutex
	running  bool
	stopping bool
	stopDone chan struct{}
}

// NewRecorder creates a Recorder beating for the given identity at the
// given interval.
func NewRecorder(writer *Writer, beat Beat, interval time.Duration) *Recorder {
	return &Recorder{
		writer:   writer,
		beat:     beat,
		interval: interval,
		gate:     gate.New(0),
	}
}

// Start performs the initial beat synchronously, then launches the
// heartbeat loop. It runs until Stop is called or the context is
// canceled. Calling Start on a running recorder is a no-op.
func (r *Recorder) Start(ctx context.Context) error {
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

	// Initial beat completes before the ticker exists.
	r.tryBeat(loopCtx)

	go r.runWithContext(loopCtx, done)

	logging.Info().
		Str("identity", r.beat.Identity).
		Dur("interval", r.interval).
		Msg("Presence recorder started")
	return nil
}

// Stop gracefully stops the heartbeat loop and waits for the goroutine
// to exit. The ticker is stopped on every exit path.
func (r *Recorder) Stop() {
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

	logging.Info().Str("identity", r.beat.Identity).Msg("Presence recorder stopped")
}

// IsRunning reports whether the heartbeat loop is active.
func (r *Recorder) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Recorder) runWithContext(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tryBeat(ctx)
		}
	}
}

// tryBeat runs one beat unless a previous beat is still in flight.
func (r *Recorder) tryBeat(ctx context.Context) {
	if !r.gate.TryAcquire() {
		logging.Debug().Str("identity", r.beat.Identity).Msg("Heartbeat still in flight, skipping tick")
		metrics.HeartbeatsSkipped.Inc()
		return
	}
	defer r.gate.Release()

	r.writer.Record(ctx, r.beat)
}
