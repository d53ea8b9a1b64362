// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

// Command server runs the Vigia telemetry engine: the heartbeat ingest
// API, the online aggregation loop, and the stale reaper, all under one
// supervision tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/plenavideo/vigia/internal/aggregate"
	"github.com/plenavideo/vigia/internal/api"
	"github.com/plenavideo/vigia/internal/config"
	"github.com/plenavideo/vigia/internal/geoip"
	"github.com/plenavideo/vigia/internal/logging"
	"github.com/plenavideo/vigia/internal/presence"
	"github.com/plenavideo/vigia/internal/reaper"
	"github.com/plenavideo/vigia/internal/store"
	"github.com/plenavideo/vigia/internal/supervisor"
	"github.com/plenavideo/vigia/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Dur("heartbeat_interval", cfg.Telemetry.HeartbeatInterval).
		Dur("staleness_window", cfg.Telemetry.StalenessWindow).
		Dur("aggregate_interval", cfg.Telemetry.AggregateInterval).
		Str("store_backend", cfg.Store.Backend).
		Msg("Starting Vigia")

	st, err := store.New(&cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open presence store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing presence store")
		}
	}()

	resolver := geoip.NewDefaultResolver(&cfg.GeoIP)
	writer := presence.NewWriter(st, resolver, cfg.Telemetry.SessionTTL)
	aggregator := aggregate.New(st, &cfg.Telemetry)
	staleReaper := reaper.New(st, &cfg.Telemetry)

	handler := api.NewHandler(writer, aggregator, st)
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler, &cfg.Server),
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		ReadHeaderTimeout: cfg.Server.Timeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddTelemetryService(services.NewLoopService(aggregator, "aggregator"))
	tree.AddTelemetryService(services.NewLoopService(staleReaper, "reaper"))
	if cfg.Telemetry.SelfIdentity != "" {
		recorder := presence.NewRecorder(writer, presence.Beat{
			Identity:  cfg.Telemetry.SelfIdentity,
			IPAddress: "127.0.0.1",
			UserAgent: "vigia/server",
		}, cfg.Telemetry.HeartbeatInterval)
		tree.AddTelemetryService(services.NewLoopService(recorder, "recorder"))
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Vigia stopped gracefully")
}
