// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/plenavideo/vigia/internal/config"
	"github.com/plenavideo/vigia/internal/models"
)

// Key layout:
//
//	vigia:presence:<identity>   JSON presence record
//	vigia:presence:last_seen    ZSET identity -> last_seen unix seconds
//	vigia:session:<identity>    JSON session record
//	vigia:session:activity      ZSET identity -> last_activity unix seconds
const (
	presenceKeyPrefix  = "vigia:presence:"
	presenceSeenZSet   = "vigia:presence:last_seen"
	sessionKeyPrefix   = "vigia:session:"
	sessionActivitySet = "vigia:session:activity"
)

// Redis implements Store on a Redis server. Presences and sessions are
// JSON values keyed by identity, indexed by sorted sets on their
// timestamps so staleness queries are a single ZRangeByScore.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to the configured Redis server and verifies the
// connection before returning.
func NewRedis(cfg *config.StoreConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis store at %s: %w", cfg.RedisAddr, err)
	}

	return &Redis{client: client}, nil
}

func presenceKey(identity string) string {
	return presenceKeyPrefix + identity
}

func sessionKey(identity string) string {
	return sessionKeyPrefix + identity
}

// UpsertPresence writes the record and its last-seen index entry in a
// single pipeline so the value and index cannot diverge.
func (r *Redis) UpsertPresence(ctx context.Context, rec *models.PresenceRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode presence for %s: %w", rec.Identity, err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, presenceKey(rec.Identity), payload, 0)
	pipe.ZAdd(ctx, presenceSeenZSet, redis.Z{
		Score:  float64(rec.LastSeenAt.Unix()),
		Member: rec.Identity,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert presence for %s: %w", rec.Identity, err)
	}
	return nil
}

// UpsertSession writes the session record, preserving the original
// started_at when a session already exists for the identity.
func (r *Redis) UpsertSession(ctx context.Context, rec *models.SessionRecord) error {
	existing, err := r.client.Get(ctx, sessionKey(rec.Identity)).Bytes()
	if err == nil {
		var prev models.SessionRecord
		if jsonErr := json.Unmarshal(existing, &prev); jsonErr == nil && !prev.StartedAt.IsZero() {
			rec.StartedAt = prev.StartedAt
		}
	} else if err != redis.Nil {
		return fmt.Errorf("failed to read session for %s: %w", rec.Identity, err)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session for %s: %w", rec.Identity, err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(rec.Identity), payload, 0)
	pipe.ZAdd(ctx, sessionActivitySet, redis.Z{
		Score:  float64(rec.LastActivityAt.Unix()),
		Member: rec.Identity,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert session for %s: %w", rec.Identity, err)
	}
	return nil
}

// OnlinePresences returns records seen at or after since, dropping any
// whose stored flag is offline.
func (r *Redis) OnlinePresences(ctx context.Context, since time.Time) ([]models.PresenceRecord, error) {
	identities, err := r.client.ZRangeByScore(ctx, presenceSeenZSet, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query recent presences: %w", err)
	}
	if len(identities) == 0 {
		return nil, nil
	}

	keys := make([]string, len(identities))
	for i, identity := range identities {
		keys[i] = presenceKey(identity)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load presence records: %w", err)
	}

	records := make([]models.PresenceRecord, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec models.PresenceRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode presence record: %w", err)
		}
		if !rec.IsOnline {
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// MarkPresencesOffline flips records last seen before the cutoff.
func (r *Redis) MarkPresencesOffline(ctx context.Context, olderThan time.Time) (int64, error) {
	identities, err := r.client.ZRangeByScore(ctx, presenceSeenZSet, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(olderThan.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to query stale presences: %w", err)
	}

	var flipped int64
	for _, identity := range identities {
		raw, err := r.client.Get(ctx, presenceKey(identity)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return flipped, fmt.Errorf("failed to load stale presence %s: %w", identity, err)
		}

		var rec models.PresenceRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return flipped, fmt.Errorf("failed to decode stale presence %s: %w", identity, err)
		}
		if !rec.IsOnline {
			continue
		}

		rec.IsOnline = false
		payload, err := json.Marshal(&rec)
		if err != nil {
			return flipped, fmt.Errorf("failed to encode stale presence %s: %w", identity, err)
		}
		if err := r.client.Set(ctx, presenceKey(identity), payload, 0).Err(); err != nil {
			return flipped, fmt.Errorf("failed to flip stale presence %s: %w", identity, err)
		}
		flipped++
	}

	return flipped, nil
}

// ExpireSessions flips sessions whose last activity predates the cutoff
// or whose explicit expiry has passed.
func (r *Redis) ExpireSessions(ctx context.Context, lastActivityBefore, now time.Time) (int64, error) {
	identities, err := r.client.ZRangeByScore(ctx, sessionActivitySet, &redis.ZRangeBy{
		Min: "-inf",
		Max: "+inf",
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to query sessions: %w", err)
	}

	var flipped int64
	for _, identity := range identities {
		raw, err := r.client.Get(ctx, sessionKey(identity)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return flipped, fmt.Errorf("failed to load session %s: %w", identity, err)
		}

		var rec models.SessionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return flipped, fmt.Errorf("failed to decode session %s: %w", identity, err)
		}
		if !rec.IsActive {
			continue
		}
		if !rec.LastActivityAt.Before(lastActivityBefore) && !rec.ExpiresAt.Before(now) {
			continue
		}

		rec.IsActive = false
		payload, err := json.Marshal(&rec)
		if err != nil {
			return flipped, fmt.Errorf("failed to encode session %s: %w", identity, err)
		}
		if err := r.client.Set(ctx, sessionKey(identity), payload, 0).Err(); err != nil {
			return flipped, fmt.Errorf("failed to flip session %s: %w", identity, err)
		}
		flipped++
	}

	return flipped, nil
}

// Ping verifies the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
