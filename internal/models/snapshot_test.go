// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordInRegion(identity, region string) PresenceRecord {
	return PresenceRecord{
		Identity:   identity,
		IsOnline:   true,
		LastSeenAt: time.Now(),
		Location:   LocationInfo{Region: region, City: region, Country: "BR"},
		DeviceType: DeviceDesktop,
	}
}

func TestBuildSnapshotGroupsAndRanks(t *testing.T) {
	now := time.Now()
	records := []PresenceRecord{
		recordInRegion("a", "Bahia"),
		recordInRegion("b", "Bahia"),
		recordInRegion("c", "Ceará"),
	}

	snap := BuildSnapshot(records, now, 15)

	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, map[string]int{"Bahia": 2, "Ceará": 1}, snap.CountsByRegion)
	require.Len(t, snap.Ranked, 2)
	assert.Equal(t, RegionCount{Region: "Bahia", Count: 2, Percentage: 66.7}, snap.Ranked[0])
	assert.Equal(t, RegionCount{Region: "Ceará", Count: 1, Percentage: 33.3}, snap.Ranked[1])
	assert.Equal(t, now, snap.GeneratedAt)
}

func TestBuildSnapshotEmptyInput(t *testing.T) {
	snap := BuildSnapshot(nil, time.Now(), 15)

	assert.Equal(t, 0, snap.Total)
	assert.Empty(t, snap.CountsByRegion)
	assert.Empty(t, snap.Ranked)
}

func TestBuildSnapshotNoDivideByZero(t *testing.T) {
	// A zero total must yield zero percentages, never NaN or Inf.
	assert.Equal(t, 0.0, percentage(0, 0))
	assert.Equal(t, 0.0, percentage(5, 0))
}

func TestBuildSnapshotPercentagesSumToRoughly100(t *testing.T) {
	records := []PresenceRecord{
		recordInRegion("a", "Bahia"),
		recordInRegion("b", "Bahia"),
		recordInRegion("c", "Ceará"),
		recordInRegion("d", "Pernambuco"),
		recordInRegion("e", "Pernambuco"),
		recordInRegion("f", "Pernambuco"),
		recordInRegion("g", "Amazonas"),
	}

	snap := BuildSnapshot(records, time.Now(), 15)

	sum := 0.0
	for _, rc := range snap.Ranked {
		sum += rc.Percentage
	}
	assert.InDelta(t, 100.0, sum, 0.5)
}

func TestBuildSnapshotDeterministicTieBreak(t *testing.T) {
	records := []PresenceRecord{
		recordInRegion("a", "Ceará"),
		recordInRegion("b", "Bahia"),
		recordInRegion("c", "Amazonas"),
	}

	first := BuildSnapshot(records, time.Now(), 15)
	second := BuildSnapshot(records, time.Now(), 15)

	// Equal counts are ordered by region name ascending, on every run.
	require.Len(t, first.Ranked, 3)
	assert.Equal(t, "Amazonas", first.Ranked[0].Region)
	assert.Equal(t, "Bahia", first.Ranked[1].Region)
	assert.Equal(t, "Ceará", first.Ranked[2].Region)
	for i := range first.Ranked {
		assert.Equal(t, first.Ranked[i], second.Ranked[i])
	}
}

func TestBuildSnapshotTruncatesToTopN(t *testing.T) {
	var records []PresenceRecord
	for i := 0; i < 20; i++ {
		region := fmt.Sprintf("Region-%02d", i)
		// Distinct counts so ranking is unambiguous.
		for j := 0; j <= i; j++ {
			records = append(records, recordInRegion(fmt.Sprintf("id-%d-%d", i, j), region))
		}
	}

	snap := BuildSnapshot(records, time.Now(), 15)

	require.Len(t, snap.Ranked, 15)
	// Counts map is not truncated; only the ranked view is.
	assert.Len(t, snap.CountsByRegion, 20)
	assert.Equal(t, "Region-19", snap.Ranked[0].Region)
	assert.Equal(t, 20, snap.Ranked[0].Count)
}

func TestBuildSnapshotEmptyRegionFallsBackToDefault(t *testing.T) {
	records := []PresenceRecord{
		{Identity: "x", IsOnline: true},
	}

	snap := BuildSnapshot(records, time.Now(), 15)

	assert.Equal(t, 1, snap.CountsByRegion[DefaultLocation().Region])
}

func TestDefaultLocation(t *testing.T) {
	loc := DefaultLocation()
	assert.Equal(t, "São Paulo", loc.Region)
	assert.Equal(t, "São Paulo", loc.City)
	assert.Equal(t, "BR", loc.Country)
	assert.False(t, loc.IsZero())
	assert.True(t, LocationInfo{}.IsZero())
}
