package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/small-frappuccino/gatewaycache/pkg/archive"
)

// ResumeTTL bounds how long frozen session data stays valid. Discord
// rejects resumes on sessions that sat idle much longer than this, so a
// record older than the TTL is worthless anyway.
const ResumeTTL = 240 * time.Second

// Freeze stores the per-shard session state so the next process can
// resume the gateway sessions instead of re-identifying. The record
// expires after ResumeTTL.
func (c *Cache) Freeze(ctx context.Context, sessions map[uint64]archive.ResumeSession) error {
	if len(sessions) == 0 {
		return nil
	}
	buf := archive.MarshalSessions(sessions)
	if err := c.rdb.Set(ctx, keyResumeData, buf, ResumeTTL).Err(); err != nil {
		return fmt.Errorf("freeze sessions: %w", err)
	}
	c.log.Info("froze gateway sessions", "shards", len(sessions))
	return nil
}

// Defrost loads frozen session state. A missing, expired or corrupt
// record means the cached entity state belongs to sessions that can no
// longer be resumed, so the whole namespace is flushed before reporting
// that no sessions exist. The statistics counter resets with it.
func (c *Cache) Defrost(ctx context.Context) (map[uint64]archive.ResumeSession, bool, error) {
	b, err := c.rdb.Get(ctx, keyResumeData).Bytes()
	if errors.Is(err, redis.Nil) {
		if err := c.flushAll(ctx); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("defrost sessions: %w", err)
	}

	view, err := archive.ViewSessions(b)
	if err != nil {
		c.log.Warn("frozen session data is corrupt, flushing", "error", err)
		if err := c.flushAll(ctx); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	if err := c.rdb.Del(ctx, keyResumeData).Err(); err != nil {
		return nil, false, fmt.Errorf("consume frozen sessions: %w", err)
	}

	sessions := view.Materialize()
	c.log.Info("defrosted gateway sessions", "shards", len(sessions))
	return sessions, true, nil
}

// StoreGuildShards records which shard owns which guild, with the same
// expiry as the frozen sessions it accompanies.
func (c *Cache) StoreGuildShards(ctx context.Context, guilds map[uint64]uint32) error {
	if len(guilds) == 0 {
		return nil
	}
	buf := archive.MarshalGuildShards(guilds)
	if err := c.rdb.Set(ctx, keyGuildShards, buf, ResumeTTL).Err(); err != nil {
		return fmt.Errorf("store guild shards: %w", err)
	}
	return nil
}

// GuildShards loads the guild-to-shard assignment left by the previous
// process. Absence is not an error and triggers no flush; the assignment
// is a hint, not state the cache depends on.
func (c *Cache) GuildShards(ctx context.Context) (map[uint64]uint32, bool, error) {
	b, err := c.rdb.Get(ctx, keyGuildShards).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load guild shards: %w", err)
	}
	view, err := archive.ViewGuildShards(b)
	if err != nil {
		return nil, false, corrupt(keyGuildShards, err)
	}
	return view.Materialize(), true, nil
}

func (c *Cache) flushAll(ctx context.Context) error {
	if err := c.rdb.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	c.stats.reset()
	c.log.Info("flushed cache, no resumable sessions")
	return nil
}
