// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plenavideo/vigia/internal/config"
	"github.com/plenavideo/vigia/internal/models"
)

func newTestDuckDB(t *testing.T) *DuckDB {
	t.Helper()

	db, err := NewDuckDB(&config.StoreConfig{
		Backend:   "duckdb",
		Path:      filepath.Join(t.TempDir(), "vigia-test.db"),
		MaxMemory: "256MB",
		Threads:   2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func testPresence(identity string, seenAt time.Time) *models.PresenceRecord {
	return &models.PresenceRecord{
		Identity:   identity,
		IsOnline:   true,
		LastSeenAt: seenAt,
		Location:   models.LocationInfo{Region: "Bahia", City: "Salvador", Country: "BR"},
		DeviceType: models.DeviceMobile,
		IPAddress:  "200.150.10.1",
		UserAgent:  "test-agent",
	}
}

func TestDuckDBUpsertPresenceInsertThenUpdate(t *testing.T) {
	db := newTestDuckDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, db.UpsertPresence(ctx, testPresence("user-1", now)))

	// Second beat for the same identity must update, not duplicate.
	updated := testPresence("user-1", now.Add(time.Minute))
	updated.Location = models.LocationInfo{Region: "Ceará", City: "Fortaleza", Country: "BR"}
	updated.DeviceType = models.DeviceDesktop
	require.NoError(t, db.UpsertPresence(ctx, updated))

	records, err := db.OnlinePresences(ctx, now)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "user-1", records[0].Identity)
	assert.Equal(t, "Ceará", records[0].Location.Region)
	assert.Equal(t, models.DeviceDesktop, records[0].DeviceType)
	assert.True(t, records[0].LastSeenAt.After(now))
}

func TestDuckDBOnlinePresencesHonorsCutoff(t *testing.T) {
	db := newTestDuckDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, db.UpsertPresence(ctx, testPresence("fresh", now)))
	require.NoError(t, db.UpsertPresence(ctx, testPresence("stale", now.Add(-10*time.Minute))))

	records, err := db.OnlinePresences(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fresh", records[0].Identity)
}

func TestDuckDBMarkPresencesOffline(t *testing.T) {
	db := newTestDuckDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, db.UpsertPresence(ctx, testPresence("fresh", now)))
	require.NoError(t, db.UpsertPresence(ctx, testPresence("stale-1", now.Add(-10*time.Minute))))
	require.NoError(t, db.UpsertPresence(ctx, testPresence("stale-2", now.Add(-20*time.Minute))))

	flipped, err := db.MarkPresencesOffline(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), flipped)

	// A second pass finds nothing left to flip.
	flipped, err = db.MarkPresencesOffline(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), flipped)

	records, err := db.OnlinePresences(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fresh", records[0].Identity)
}

func TestDuckDBUpsertSessionPreservesStartedAt(t *testing.T) {
	db := newTestDuckDB(t)
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)

	first := &models.SessionRecord{
		Identity:       "user-1",
		IsActive:       true,
		StartedAt:      started,
		LastActivityAt: started,
		ExpiresAt:      started.Add(30 * time.Minute),
		DeviceType:     models.DeviceMobile,
	}
	require.NoError(t, db.UpsertSession(ctx, first))

	second := &models.SessionRecord{
		Identity:       "user-1",
		IsActive:       true,
		StartedAt:      time.Now().UTC(),
		LastActivityAt: time.Now().UTC(),
		ExpiresAt:      time.Now().UTC().Add(30 * time.Minute),
		DeviceType:     models.DeviceMobile,
	}
	require.NoError(t, db.UpsertSession(ctx, second))

	var gotStarted time.Time
	err := db.conn.QueryRowContext(ctx,
		`SELECT started_at FROM sessions WHERE identity = ?`, "user-1").Scan(&gotStarted)
	require.NoError(t, err)
	assert.True(t, gotStarted.Equal(started), "started_at must survive the update")
}

func TestDuckDBExpireSessions(t *testing.T) {
	db := newTestDuckDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	sessions := []*models.SessionRecord{
		{Identity: "active", IsActive: true, StartedAt: now, LastActivityAt: now, ExpiresAt: now.Add(time.Hour), DeviceType: models.DeviceMobile},
		{Identity: "idle", IsActive: true, StartedAt: now.Add(-2 * time.Hour), LastActivityAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour), DeviceType: models.DeviceDesktop},
		{Identity: "expired", IsActive: true, StartedAt: now.Add(-2 * time.Hour), LastActivityAt: now, ExpiresAt: now.Add(-time.Minute), DeviceType: models.DeviceTablet},
	}
	for _, s := range sessions {
		require.NoError(t, db.UpsertSession(ctx, s))
	}

	flipped, err := db.ExpireSessions(ctx, now.Add(-30*time.Minute), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), flipped)

	var active int
	err = db.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM sessions WHERE is_active = true`).Scan(&active)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}

func TestDuckDBConcurrentUpsertsSameIdentity(t *testing.T) {
	db := newTestDuckDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			rec := testPresence("user-1", now.Add(time.Duration(offset)*time.Second))
			assert.NoError(t, db.UpsertPresence(ctx, rec))
		}(i)
	}
	wg.Wait()

	records, err := db.OnlinePresences(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDuckDBPing(t *testing.T) {
	db := newTestDuckDB(t)
	assert.NoError(t, db.Ping(context.Background()))
}

func TestFactoryRejectsUnknownBackend(t *testing.T) {
	_, err := New(&config.StoreConfig{Backend: "etcd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")
}

func TestFactoryBuildsDuckDB(t *testing.T) {
	s, err := New(&config.StoreConfig{
		Backend:   "duckdb",
		Path:      filepath.Join(t.TempDir(), "factory.db"),
		MaxMemory: "256MB",
		Threads:   1,
	})
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.Ping(context.Background()))
}
