// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

// Package api provides the HTTP surface of the telemetry engine: the
// heartbeat ingest endpoint, the snapshot read endpoint, the manual
// refresh trigger, and health/metrics.
package api

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/plenavideo/vigia/internal/aggregate"
	"github.com/plenavideo/vigia/internal/logging"
	"github.com/plenavideo/vigia/internal/presence"
	"github.com/plenavideo/vigia/internal/store"
)

// identityHeader lets clients carry their identity out of band instead
// of repeating it in every heartbeat body.
const identityHeader = "X-Vigia-Identity"

// Handler holds the dependencies of all HTTP handlers.
type Handler struct {
	writer     *presence.Writer
	aggregator *aggregate.Aggregator
	store      store.Store
	validate   *validator.Validate
}

// NewHandler creates a Handler over the write path, the aggregator, and
// the store (for readiness checks).
func NewHandler(writer *presence.Writer, aggregator *aggregate.Aggregator, s store.Store) *Handler {
	return &Handler{
		writer:     writer,
		aggregator: aggregator,
		store:      s,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// heartbeatRequest is the ingest body. Everything is optional: identity
// falls back to the header or a minted UUID, the user agent falls back
// to the request header.
type heartbeatRequest struct {
	Identity  string `json:"identity" validate:"omitempty,max=128"`
	UserAgent string `json:"user_agent" validate:"omitempty,max=512"`
}

type heartbeatResponse struct {
	Identity   string `json:"identity"`
	AcceptedAt string `json:"accepted_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Heartbeat ingests one presence beat. The beat is accepted (202) even
// when the store write later fails; heartbeats are telemetry, not
// transactions.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}

	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed: " + err.Error()})
		return
	}

	identity := req.Identity
	if identity == "" {
		identity = r.Header.Get(identityHeader)
	}
	if identity == "" {
		identity = uuid.New().String()
	}

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = r.UserAgent()
	}

	h.writer.Record(r.Context(), presence.Beat{
		Identity:  identity,
		IPAddress: r.RemoteAddr,
		UserAgent: userAgent,
	})

	writeJSON(w, http.StatusAccepted, heartbeatResponse{
		Identity:   identity,
		AcceptedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// Online returns the current published snapshot.
func (h *Handler) Online(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.aggregator.Snapshot())
}

// Refresh triggers an aggregation cycle on demand. Returns 429 when the
// gate rejects the start.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.aggregator.Refresh(r.Context()) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error: "aggregation already in flight or triggered too recently",
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshed"})
}

// Health reports overall service health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

// HealthLive is the liveness probe: the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady is the readiness probe: the store is reachable.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
