// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

package store

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plenavideo/vigia/internal/models"
)

func TestRedisKeyLayout(t *testing.T) {
	assert.Equal(t, "vigia:presence:user-1", presenceKey("user-1"))
	assert.Equal(t, "vigia:session:user-1", sessionKey("user-1"))

	// Index sets must never collide with a record key for any identity.
	assert.NotEqual(t, presenceSeenZSet, presenceKey("last_seen"))
}

func TestPresenceRecordRoundTripsThroughJSON(t *testing.T) {
	rec := models.PresenceRecord{
		Identity:   "user-1",
		IsOnline:   true,
		LastSeenAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Location:   models.LocationInfo{Region: "Bahia", City: "Salvador", Country: "BR"},
		DeviceType: models.DeviceMobile,
		IPAddress:  "200.150.10.1",
		UserAgent:  "test-agent",
	}

	payload, err := json.Marshal(&rec)
	require.NoError(t, err)

	var got models.PresenceRecord
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, rec, got)
}
