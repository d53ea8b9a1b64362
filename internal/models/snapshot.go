// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

package models

import (
	"math"
	"sort"
	"time"
)

// RegionCount is one row of the ranked per-region view.
type RegionCount struct {
	Region     string  `json:"region"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// AggregateSnapshot is an immutable, fully-recomputed aggregation result.
// A new snapshot replaces the previous one atomically on every cycle;
// readers never see a partially built snapshot.
type AggregateSnapshot struct {
	CountsByRegion map[string]int `json:"counts_by_region"`
	Total          int            `json:"total"`
	GeneratedAt    time.Time      `json:"generated_at"`
	Ranked         []RegionCount  `json:"ranked"`
}

// EmptySnapshot returns a valid zero-value snapshot for use before the
// first aggregation cycle completes.
func EmptySnapshot(now time.Time) *AggregateSnapshot {
	return &AggregateSnapshot{
		CountsByRegion: map[string]int{},
		Total:          0,
		GeneratedAt:    now,
		Ranked:         []RegionCount{},
	}
}

// BuildSnapshot groups online presence records by region and produces the
// ranked snapshot. Output is deterministic: sorted by count descending with
// ties broken by region name ascending, truncated to topN rows.
//
// Percentages are rounded to one decimal place. When total is zero every
// percentage is zero; there is never a division by zero.
func BuildSnapshot(records []PresenceRecord, now time.Time, topN int) *AggregateSnapshot {
	counts := make(map[string]int, len(records))
	total := 0
	for i := range records {
		region := records[i].Location.Region
		if region == "" {
			region = DefaultLocation().Region
		}
		counts[region]++
		total++
	}

	ranked := make([]RegionCount, 0, len(counts))
	for region, count := range counts {
		ranked = append(ranked, RegionCount{
			Region:     region,
			Count:      count,
			Percentage: percentage(count, total),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Region < ranked[j].Region
	})

	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}

	return &AggregateSnapshot{
		CountsByRegion: counts,
		Total:          total,
		GeneratedAt:    now,
		Ranked:         ranked,
	}
}

// percentage computes 100*count/total rounded to one decimal place,
// defined as 0 when total is 0.
func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(100*float64(count)/float64(total)*10) / 10
}
