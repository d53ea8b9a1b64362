// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plenavideo/vigia/internal/config"
)

// NewRouter wires the full route tree with its middleware stack.
func NewRouter(handler *Handler, cfg *config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", identityHeader},
		MaxAge:         300,
	}))

	r.Route("/api/v1/health", func(r chi.Router) {
		// Permissive limit so monitoring can probe frequently.
		r.Use(httprate.LimitByIP(1000, cfg.RateLimitWindow))
		r.Get("/", handler.Health)
		r.Get("/live", handler.HealthLive)
		r.Get("/ready", handler.HealthReady)
	})

	r.Route("/api/v1/presence", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
		r.Post("/heartbeat", handler.Heartbeat)
		r.Get("/online", handler.Online)
		r.Post("/refresh", handler.Refresh)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
