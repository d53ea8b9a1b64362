// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

package store

import (
	"fmt"

	"github.com/plenavideo/vigia/internal/config"
	"github.com/plenavideo/vigia/internal/logging"
)

// New builds the store backend selected by configuration.
func New(cfg *config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "duckdb":
		logging.Info().Str("backend", cfg.Backend).Str("path", cfg.Path).Msg("Opening presence store")
		return NewDuckDB(cfg)
	case "redis":
		logging.Info().Str("backend", cfg.Backend).Str("addr", cfg.RedisAddr).Msg("Opening presence store")
		return NewRedis(cfg)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
