// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

// Package models defines the core data types for presence telemetry:
// per-client presence and session records, resolved locations, and the
// aggregated per-region snapshot published by the aggregator.
package models

import "time"

// DeviceType classifies the client device from its user-agent string.
type DeviceType string

const (
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceDesktop DeviceType = "desktop"
)

// LocationInfo is a best-effort approximate location for a client,
// immutable once resolved for a given identity.
type LocationInfo struct {
	Region  string `json:"region"`
	City    string `json:"city"`
	Country string `json:"country"`
}

// DefaultLocation returns the fallback location used when every resolution
// attempt fails. Aggregation must never drop a user for lack of location,
// so the fallback is a real region rather than an empty value.
func DefaultLocation() LocationInfo {
	return LocationInfo{
		Region:  "São Paulo",
		City:    "São Paulo",
		Country: "BR",
	}
}

// IsZero reports whether the location carries no resolved data.
func (l LocationInfo) IsZero() bool {
	return l.Region == "" && l.City == "" && l.Country == ""
}

// PresenceRecord is the persistent online-state row for one identity.
// At most one record exists per identity; the write path is always
// upsert-by-identity.
type PresenceRecord struct {
	Identity   string       `json:"identity"`
	IsOnline   bool         `json:"is_online"`
	LastSeenAt time.Time    `json:"last_seen_at"`
	Location   LocationInfo `json:"location"`
	DeviceType DeviceType   `json:"device_type"`
	IPAddress  string       `json:"ip,omitempty"`
	UserAgent  string       `json:"user_agent"`
}

// SessionRecord tracks the coarser "active session" concept for one
// identity. Expiry is explicit via ExpiresAt in addition to the
// activity-driven staleness used for presence.
type SessionRecord struct {
	Identity       string    `json:"identity"`
	IsActive       bool      `json:"is_active"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	DeviceType     DeviceType `json:"device_type"`
}
