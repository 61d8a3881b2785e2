package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Change is the signed delta a single cache mutation produced. Deltas from
// compound operations accumulate before they reach the counter, so the
// counter takes one lock per operation rather than one per entity.
type Change struct {
	Channels          int64
	Guilds            int64
	UnavailableGuilds int64
	Roles             int64
	Users             int64
}

func (c *Change) add(o Change) {
	c.Channels += o.Channels
	c.Guilds += o.Guilds
	c.UnavailableGuilds += o.UnavailableGuilds
	c.Roles += o.Roles
	c.Users += o.Users
}

// IsZero reports whether the change carries no delta at all.
func (c Change) IsZero() bool {
	return c == Change{}
}

// CacheStats is a point-in-time snapshot of the aggregate totals.
type CacheStats struct {
	Channels          int64
	Guilds            int64
	UnavailableGuilds int64
	Roles             int64
	Users             int64
}

// Stats keeps the aggregate totals in memory so reads never touch the
// store. It is seeded from set cardinalities once and maintained by
// deltas afterwards.
type Stats struct {
	mu  sync.Mutex
	cur CacheStats
}

func newStats(ctx context.Context, rdb *redis.Client) (*Stats, error) {
	pipe := rdb.Pipeline()
	channels := pipe.SCard(ctx, keyChannelIDs)
	guilds := pipe.SCard(ctx, keyGuildIDs)
	unavailable := pipe.SCard(ctx, keyUnavailableGuildIDs)
	roles := pipe.SCard(ctx, keyRoleIDs)
	users := pipe.SCard(ctx, keyUserIDs)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("read set cardinalities: %w", err)
	}

	return &Stats{cur: CacheStats{
		Channels:          channels.Val(),
		Guilds:            guilds.Val(),
		UnavailableGuilds: unavailable.Val(),
		Roles:             roles.Val(),
		Users:             users.Val(),
	}}, nil
}

func (s *Stats) apply(change Change) {
	if change.IsZero() {
		return
	}
	s.mu.Lock()
	s.cur.Channels += change.Channels
	s.cur.Guilds += change.Guilds
	s.cur.UnavailableGuilds += change.UnavailableGuilds
	s.cur.Roles += change.Roles
	s.cur.Users += change.Users
	s.mu.Unlock()
}

func (s *Stats) reset() {
	s.mu.Lock()
	s.cur = CacheStats{}
	s.mu.Unlock()
}

// Get returns a consistent snapshot of the totals.
func (s *Stats) Get() CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}
