// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

package services

import (
	"context"
	"fmt"
)

// Loop matches the Start/Stop lifecycle shared by the recorder, the
// aggregator, and the reaper.
type Loop interface {
	Start(ctx context.Context) error
	Stop()
}

// LoopService bridges a Start/Stop loop to suture's Serve pattern: Serve
// starts the loop, blocks until the context is canceled, then stops it
// and waits for the goroutine to exit.
type LoopService struct {
	loop Loop
	name string
}

// NewLoopService wraps a loop as a supervised service under the given
// name.
func NewLoopService(loop Loop, name string) *LoopService {
	return &LoopService{loop: loop, name: name}
}

// Serve implements suture.Service.
func (s *LoopService) Serve(ctx context.Context) error {
	if err := s.loop.Start(ctx); err != nil {
		return fmt.Errorf("%s failed to start: %w", s.name, err)
	}

	<-ctx.Done()
	s.loop.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor log messages.
func (s *LoopService) String() string {
	return s.name
}
