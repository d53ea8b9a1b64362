// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

// Package store provides the persistent presence store behind an
// upsert-by-identity and range-query interface, with DuckDB and Redis
// backends selected by configuration.
package store

import (
	"context"
	"time"

	"github.com/plenavideo/vigia/internal/models"
)

// Store is the presence store contract. Upserts are atomic by identity:
// at most one presence row and one session row exist per identity, and
// concurrent upserts for the same identity never produce duplicates or
// torn rows. Reads are point-in-time consistent.
type Store interface {
	// UpsertPresence inserts or refreshes the presence row for the
	// record's identity.
	UpsertPresence(ctx context.Context, rec *models.PresenceRecord) error

	// UpsertSession inserts or refreshes the session row for the
	// record's identity. StartedAt is preserved on update.
	UpsertSession(ctx context.Context, rec *models.SessionRecord) error

	// OnlinePresences returns all records that are flagged online and
	// were last seen at or after the given cutoff.
	OnlinePresences(ctx context.Context, since time.Time) ([]models.PresenceRecord, error)

	// MarkPresencesOffline bulk-flips records last seen before the
	// cutoff to offline, returning the number of rows changed.
	MarkPresencesOffline(ctx context.Context, olderThan time.Time) (int64, error)

	// ExpireSessions bulk-flips sessions to inactive when their last
	// activity predates lastActivityBefore or their explicit expiry
	// predates now, returning the number of rows changed.
	ExpireSessions(ctx context.Context, lastActivityBefore, now time.Time) (int64, error)

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
