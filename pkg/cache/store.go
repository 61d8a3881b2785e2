package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/gatewaycache/pkg/archive"
	"github.com/small-frappuccino/gatewaycache/pkg/util"
)

func idArgs(ids []uint64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// CacheGuild stores a full guild payload: its channels, threads, members
// and roles first, then the guild record itself, then the guild's
// membership in the global index. A guild arriving this way is available,
// so it also leaves the unavailable set.
func (c *Cache) CacheGuild(ctx context.Context, g *discordgo.Guild) (Change, error) {
	guild, err := archive.GuildFromDiscord(g)
	if err != nil {
		return Change{}, fmt.Errorf("resolve guild: %w", err)
	}

	var change Change

	sub, err := c.cacheChannels(ctx, guild.ID, g.Channels)
	if err != nil {
		return change, err
	}
	change.add(sub)

	sub, err = c.cacheChannels(ctx, guild.ID, g.Threads)
	if err != nil {
		return change, err
	}
	change.add(sub)

	sub, err = c.cacheMembers(ctx, guild.ID, g.Members)
	if err != nil {
		return change, err
	}
	change.add(sub)

	sub, err = c.cacheRoles(ctx, guild.ID, g.Roles)
	if err != nil {
		return change, err
	}
	change.add(sub)

	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, guildKey(guild.ID), archive.MarshalGuild(guild), 0)
	added := pipe.SAdd(ctx, keyGuildIDs, guild.ID)
	removed := pipe.SRem(ctx, keyUnavailableGuildIDs, guild.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return change, fmt.Errorf("store guild %d: %w", guild.ID, err)
	}
	change.Guilds += added.Val()
	change.UnavailableGuilds -= removed.Val()
	return change, nil
}

// cacheChannels writes a batch of channel records and their index
// membership in one round trip. Guild payloads omit guild_id on their
// channels, so the parent id fills the gap.
func (c *Cache) cacheChannels(ctx context.Context, guildID uint64, channels []*discordgo.Channel) (Change, error) {
	if len(channels) == 0 {
		return Change{}, nil
	}

	pairs := make([]any, 0, len(channels)*2)
	ids := make([]uint64, 0, len(channels))
	for _, dch := range channels {
		ch, err := archive.ChannelFromDiscord(dch)
		if err != nil {
			return Change{}, fmt.Errorf("resolve channel: %w", err)
		}
		if ch.GuildID == 0 {
			ch.GuildID = guildID
		}
		pairs = append(pairs, channelKey(ch.GuildID, ch.ID), archive.MarshalChannel(ch))
		ids = append(ids, ch.ID)
	}

	pipe := c.rdb.Pipeline()
	pipe.MSet(ctx, pairs...)
	pipe.SAdd(ctx, guildChannelsKey(guildID), idArgs(ids)...)
	added := pipe.SAdd(ctx, keyChannelIDs, idArgs(ids)...)
	if _, err := pipe.Exec(ctx); err != nil {
		return Change{}, fmt.Errorf("store channels of guild %d: %w", guildID, err)
	}
	return Change{Channels: added.Val()}, nil
}

// CacheChannel stores a single channel record and its index membership.
func (c *Cache) CacheChannel(ctx context.Context, dch *discordgo.Channel) (Change, error) {
	ch, err := archive.ChannelFromDiscord(dch)
	if err != nil {
		return Change{}, fmt.Errorf("resolve channel: %w", err)
	}

	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, channelKey(ch.GuildID, ch.ID), archive.MarshalChannel(ch), 0)
	if ch.GuildID != 0 {
		pipe.SAdd(ctx, guildChannelsKey(ch.GuildID), ch.ID)
	}
	added := pipe.SAdd(ctx, keyChannelIDs, ch.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return Change{}, fmt.Errorf("store channel %d: %w", ch.ID, err)
	}
	return Change{Channels: added.Val()}, nil
}

// cacheMembers writes a batch of member records together with the user
// records embedded in them.
func (c *Cache) cacheMembers(ctx context.Context, guildID uint64, members []*discordgo.Member) (Change, error) {
	if len(members) == 0 {
		return Change{}, nil
	}

	pairs := make([]any, 0, len(members)*4)
	ids := make([]uint64, 0, len(members))
	for _, dm := range members {
		m, err := archive.MemberFromDiscord(dm)
		if err != nil {
			return Change{}, fmt.Errorf("resolve member: %w", err)
		}
		u, err := archive.UserFromDiscord(dm.User)
		if err != nil {
			return Change{}, fmt.Errorf("resolve user: %w", err)
		}
		pairs = append(pairs,
			memberKey(guildID, m.UserID), archive.MarshalMember(m),
			userKey(u.ID), archive.MarshalUser(u),
		)
		ids = append(ids, m.UserID)
	}

	pipe := c.rdb.Pipeline()
	pipe.MSet(ctx, pairs...)
	pipe.SAdd(ctx, guildMembersKey(guildID), idArgs(ids)...)
	added := pipe.SAdd(ctx, keyUserIDs, idArgs(ids)...)
	if _, err := pipe.Exec(ctx); err != nil {
		return Change{}, fmt.Errorf("store members of guild %d: %w", guildID, err)
	}
	return Change{Users: added.Val()}, nil
}

// CacheMember stores a single member and its user record.
func (c *Cache) CacheMember(ctx context.Context, guildID uint64, dm *discordgo.Member) (Change, error) {
	m, err := archive.MemberFromDiscord(dm)
	if err != nil {
		return Change{}, fmt.Errorf("resolve member: %w", err)
	}
	u, err := archive.UserFromDiscord(dm.User)
	if err != nil {
		return Change{}, fmt.Errorf("resolve user: %w", err)
	}
	return c.cacheMemberUser(ctx, guildID, m, u)
}

func (c *Cache) cacheMemberUser(ctx context.Context, guildID uint64, m *archive.Member, u *archive.User) (Change, error) {
	pipe := c.rdb.Pipeline()
	pipe.MSet(ctx,
		memberKey(guildID, m.UserID), archive.MarshalMember(m),
		userKey(u.ID), archive.MarshalUser(u),
	)
	pipe.SAdd(ctx, guildMembersKey(guildID), m.UserID)
	added := pipe.SAdd(ctx, keyUserIDs, u.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return Change{}, fmt.Errorf("store member %d of guild %d: %w", m.UserID, guildID, err)
	}
	return Change{Users: added.Val()}, nil
}

// CacheUser stores a user record and its index membership.
func (c *Cache) CacheUser(ctx context.Context, du *discordgo.User) (Change, error) {
	u, err := archive.UserFromDiscord(du)
	if err != nil {
		return Change{}, fmt.Errorf("resolve user: %w", err)
	}

	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, userKey(u.ID), archive.MarshalUser(u), 0)
	added := pipe.SAdd(ctx, keyUserIDs, u.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return Change{}, fmt.Errorf("store user %d: %w", u.ID, err)
	}
	return Change{Users: added.Val()}, nil
}

// CacheCurrentUser stores the current user. The current user lives under a
// static key and is not a member of any index set.
func (c *Cache) CacheCurrentUser(ctx context.Context, du *discordgo.User) error {
	u, err := archive.CurrentUserFromDiscord(du)
	if err != nil {
		return fmt.Errorf("resolve current user: %w", err)
	}
	if err := c.rdb.Set(ctx, keyCurrentUser, archive.MarshalCurrentUser(u), 0).Err(); err != nil {
		return fmt.Errorf("store current user: %w", err)
	}
	return nil
}

// cacheRoles writes a batch of role records and their index membership in
// one round trip.
func (c *Cache) cacheRoles(ctx context.Context, guildID uint64, roles []*discordgo.Role) (Change, error) {
	if len(roles) == 0 {
		return Change{}, nil
	}

	pairs := make([]any, 0, len(roles)*2)
	ids := make([]uint64, 0, len(roles))
	for _, dr := range roles {
		r, err := archive.RoleFromDiscord(dr)
		if err != nil {
			return Change{}, fmt.Errorf("resolve role: %w", err)
		}
		pairs = append(pairs, roleKey(guildID, r.ID), archive.MarshalRole(r))
		ids = append(ids, r.ID)
	}

	pipe := c.rdb.Pipeline()
	pipe.MSet(ctx, pairs...)
	pipe.SAdd(ctx, guildRolesKey(guildID), idArgs(ids)...)
	added := pipe.SAdd(ctx, keyRoleIDs, idArgs(ids)...)
	if _, err := pipe.Exec(ctx); err != nil {
		return Change{}, fmt.Errorf("store roles of guild %d: %w", guildID, err)
	}
	return Change{Roles: added.Val()}, nil
}

// CacheRole stores a single role record and its index membership.
func (c *Cache) CacheRole(ctx context.Context, guildID uint64, dr *discordgo.Role) (Change, error) {
	r, err := archive.RoleFromDiscord(dr)
	if err != nil {
		return Change{}, fmt.Errorf("resolve role: %w", err)
	}

	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, roleKey(guildID, r.ID), archive.MarshalRole(r), 0)
	pipe.SAdd(ctx, guildRolesKey(guildID), r.ID)
	added := pipe.SAdd(ctx, keyRoleIDs, r.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return Change{}, fmt.Errorf("store role %d: %w", r.ID, err)
	}
	return Change{Roles: added.Val()}, nil
}

// CacheUnavailableGuild marks a guild unavailable. If the guild was
// available its record and per-guild entities are dropped, since their
// contents will arrive fresh when the guild comes back.
func (c *Cache) CacheUnavailableGuild(ctx context.Context, guildID uint64) (Change, error) {
	moved, err := c.rdb.SMove(ctx, keyGuildIDs, keyUnavailableGuildIDs, guildID).Result()
	if err != nil {
		return Change{}, fmt.Errorf("mark guild %d unavailable: %w", guildID, err)
	}

	if !moved {
		added, err := c.rdb.SAdd(ctx, keyUnavailableGuildIDs, guildID).Result()
		if err != nil {
			return Change{}, fmt.Errorf("mark guild %d unavailable: %w", guildID, err)
		}
		return Change{UnavailableGuilds: added}, nil
	}

	if err := c.rdb.Del(ctx, guildKey(guildID)).Err(); err != nil {
		return Change{Guilds: -1, UnavailableGuilds: 1}, fmt.Errorf("drop guild record %d: %w", guildID, err)
	}
	change, err := c.deleteGuildItems(ctx, guildID)
	change.Guilds--
	change.UnavailableGuilds++
	return change, err
}

// SetRaw stores pre-serialized bytes under an arbitrary key, with an
// optional expiry. The key does not join any index set.
func (c *Cache) SetRaw(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// GetRaw fetches raw bytes stored under an arbitrary key.
func (c *Cache) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	return c.getBytes(ctx, key)
}

func parseEventID(s string) (uint64, error) {
	id, err := util.ParseSnowflake(s)
	if err != nil {
		return 0, fmt.Errorf("event id: %w", err)
	}
	return id, nil
}
