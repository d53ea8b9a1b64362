// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/plenavideo/vigia/internal/config"
	"github.com/plenavideo/vigia/internal/models"
)

// DuckDB implements Store on an embedded DuckDB database file.
type DuckDB struct {
	conn *sql.DB

	// Per-identity write locks. DuckDB upserts on the same key from
	// concurrent connections can conflict; serializing per identity
	// keeps writes for different identities concurrent.
	identityLocks sync.Map
}

const duckdbSchema = `
CREATE TABLE IF NOT EXISTS presences (
	identity      VARCHAR PRIMARY KEY,
	is_online     BOOLEAN NOT NULL,
	last_seen_at  TIMESTAMP NOT NULL,
	region        VARCHAR NOT NULL,
	city          VARCHAR NOT NULL,
	country       VARCHAR NOT NULL,
	device_type   VARCHAR NOT NULL,
	ip            VARCHAR,
	user_agent    VARCHAR NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	identity         VARCHAR PRIMARY KEY,
	is_active        BOOLEAN NOT NULL,
	started_at       TIMESTAMP NOT NULL,
	last_activity_at TIMESTAMP NOT NULL,
	expires_at       TIMESTAMP NOT NULL,
	device_type      VARCHAR NOT NULL
);
`

// NewDuckDB opens (creating if necessary) the DuckDB database at
// cfg.Path and bootstraps the schema.
func NewDuckDB(cfg *config.StoreConfig) (*DuckDB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure the parent directory exists for the database file.
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
		}
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
		cfg.Path, numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb store: %w", err)
	}

	db := &DuckDB{conn: conn}
	if err := db.initSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DuckDB) initSchema() error {
	if _, err := db.conn.Exec(duckdbSchema); err != nil {
		return fmt.Errorf("failed to initialize store schema: %w", err)
	}
	return nil
}

// acquireIdentityLock serializes writes for a single identity.
func (db *DuckDB) acquireIdentityLock(identity string) *sync.Mutex {
	v, _ := db.identityLocks.LoadOrStore(identity, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu
}

// UpsertPresence inserts or refreshes the presence row for the identity.
func (db *DuckDB) UpsertPresence(ctx context.Context, rec *models.PresenceRecord) error {
	mu := db.acquireIdentityLock(rec.Identity)
	defer mu.Unlock()

	query := `INSERT INTO presences (
		identity, is_online, last_seen_at, region, city, country,
		device_type, ip, user_agent
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (identity) DO UPDATE SET
		is_online = EXCLUDED.is_online,
		last_seen_at = EXCLUDED.last_seen_at,
		region = EXCLUDED.region,
		city = EXCLUDED.city,
		country = EXCLUDED.country,
		device_type = EXCLUDED.device_type,
		ip = EXCLUDED.ip,
		user_agent = EXCLUDED.user_agent`

	_, err := db.conn.ExecContext(ctx, query,
		rec.Identity, rec.IsOnline, rec.LastSeenAt,
		rec.Location.Region, rec.Location.City, rec.Location.Country,
		string(rec.DeviceType), rec.IPAddress, rec.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert presence for %s: %w", rec.Identity, err)
	}
	return nil
}

// UpsertSession inserts or refreshes the session row for the identity.
// The original started_at survives updates.
func (db *DuckDB) UpsertSession(ctx context.Context, rec *models.SessionRecord) error {
	mu := db.acquireIdentityLock(rec.Identity)
	defer mu.Unlock()

	query := `INSERT INTO sessions (
		identity, is_active, started_at, last_activity_at, expires_at, device_type
	) VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (identity) DO UPDATE SET
		is_active = EXCLUDED.is_active,
		last_activity_at = EXCLUDED.last_activity_at,
		expires_at = EXCLUDED.expires_at,
		device_type = EXCLUDED.device_type`

	_, err := db.conn.ExecContext(ctx, query,
		rec.Identity, rec.IsActive, rec.StartedAt,
		rec.LastActivityAt, rec.ExpiresAt, string(rec.DeviceType),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session for %s: %w", rec.Identity, err)
	}
	return nil
}

// OnlinePresences returns all online records last seen at or after since.
func (db *DuckDB) OnlinePresences(ctx context.Context, since time.Time) ([]models.PresenceRecord, error) {
	query := `
	SELECT identity, is_online, last_seen_at, region, city, country,
	       device_type, ip, user_agent
	FROM presences
	WHERE is_online = true AND last_seen_at >= ?`

	rows, err := db.conn.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query online presences: %w", err)
	}
	defer rows.Close()

	var records []models.PresenceRecord
	for rows.Next() {
		var rec models.PresenceRecord
		var deviceType string
		var ip sql.NullString
		err := rows.Scan(
			&rec.Identity, &rec.IsOnline, &rec.LastSeenAt,
			&rec.Location.Region, &rec.Location.City, &rec.Location.Country,
			&deviceType, &ip, &rec.UserAgent,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan presence row: %w", err)
		}
		rec.DeviceType = models.DeviceType(deviceType)
		rec.IPAddress = ip.String
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating presences: %w", err)
	}

	return records, nil
}

// MarkPresencesOffline bulk-flips stale presence rows to offline.
func (db *DuckDB) MarkPresencesOffline(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE presences SET is_online = false WHERE is_online = true AND last_seen_at < ?`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark presences offline: %w", err)
	}
	return res.RowsAffected()
}

// ExpireSessions bulk-flips inactive or explicitly expired sessions.
func (db *DuckDB) ExpireSessions(ctx context.Context, lastActivityBefore, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE sessions SET is_active = false
		 WHERE is_active = true AND (last_activity_at < ? OR expires_at < ?)`,
		lastActivityBefore, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}
	return res.RowsAffected()
}

// Ping verifies the database connection.
func (db *DuckDB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection.
func (db *DuckDB) Close() error {
	return db.conn.Close()
}
