package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/small-frappuccino/gatewaycache/pkg/archive"
	"github.com/small-frappuccino/gatewaycache/pkg/util"
)

// ErrCorruptRecord marks stored bytes that failed record validation.
// Callers distinguish it from transport errors; a corrupt record means the
// key holds garbage, not that the store is unreachable.
var ErrCorruptRecord = errors.New("corrupt cache record")

func (c *Cache) getBytes(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return b, true, nil
}

func corrupt(key string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCorruptRecord, key, err)
}

// CurrentUser returns the cached current user, if any.
func (c *Cache) CurrentUser(ctx context.Context) (archive.ArchivedCurrentUser, bool, error) {
	b, ok, err := c.getBytes(ctx, keyCurrentUser)
	if err != nil || !ok {
		return archive.ArchivedCurrentUser{}, false, err
	}
	v, err := archive.ViewCurrentUser(b)
	if err != nil {
		return archive.ArchivedCurrentUser{}, false, corrupt(keyCurrentUser, err)
	}
	return v, true, nil
}

// Guild returns the cached guild record, if any.
func (c *Cache) Guild(ctx context.Context, id uint64) (archive.ArchivedGuild, bool, error) {
	key := guildKey(id)
	b, ok, err := c.getBytes(ctx, key)
	if err != nil || !ok {
		return archive.ArchivedGuild{}, false, err
	}
	v, err := archive.ViewGuild(b)
	if err != nil {
		return archive.ArchivedGuild{}, false, corrupt(key, err)
	}
	return v, true, nil
}

// User returns the cached user record, if any.
func (c *Cache) User(ctx context.Context, id uint64) (archive.ArchivedUser, bool, error) {
	key := userKey(id)
	b, ok, err := c.getBytes(ctx, key)
	if err != nil || !ok {
		return archive.ArchivedUser{}, false, err
	}
	v, err := archive.ViewUser(b)
	if err != nil {
		return archive.ArchivedUser{}, false, corrupt(key, err)
	}
	return v, true, nil
}

// Member returns the cached member record, if any.
func (c *Cache) Member(ctx context.Context, guildID, userID uint64) (archive.ArchivedMember, bool, error) {
	key := memberKey(guildID, userID)
	b, ok, err := c.getBytes(ctx, key)
	if err != nil || !ok {
		return archive.ArchivedMember{}, false, err
	}
	v, err := archive.ViewMember(b)
	if err != nil {
		return archive.ArchivedMember{}, false, corrupt(key, err)
	}
	return v, true, nil
}

// Role returns the cached role record, if any.
func (c *Cache) Role(ctx context.Context, guildID, roleID uint64) (archive.ArchivedRole, bool, error) {
	key := roleKey(guildID, roleID)
	b, ok, err := c.getBytes(ctx, key)
	if err != nil || !ok {
		return archive.ArchivedRole{}, false, err
	}
	v, err := archive.ViewRole(b)
	if err != nil {
		return archive.ArchivedRole{}, false, corrupt(key, err)
	}
	return v, true, nil
}

// Channel returns the cached channel record, if any. When guildID is known
// the guild-scoped key is tried first, then the bare form private channels
// are stored under.
func (c *Cache) Channel(ctx context.Context, guildID, channelID uint64) (archive.ArchivedChannel, bool, error) {
	key := channelKey(guildID, channelID)
	b, ok, err := c.getBytes(ctx, key)
	if err != nil {
		return archive.ArchivedChannel{}, false, err
	}
	if !ok && guildID != 0 {
		key = channelKey(0, channelID)
		b, ok, err = c.getBytes(ctx, key)
		if err != nil {
			return archive.ArchivedChannel{}, false, err
		}
	}
	if !ok {
		return archive.ArchivedChannel{}, false, nil
	}
	v, err := archive.ViewChannel(b)
	if err != nil {
		return archive.ArchivedChannel{}, false, corrupt(key, err)
	}
	return v, true, nil
}

func (c *Cache) setMembers(ctx context.Context, key string) ([]uint64, error) {
	vals, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("members of %s: %w", key, err)
	}
	ids := make([]uint64, 0, len(vals))
	for _, v := range vals {
		id, err := util.ParseSnowflake(v)
		if err != nil {
			return nil, fmt.Errorf("member of %s: %w", key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GuildIDs returns the ids of all cached available guilds.
func (c *Cache) GuildIDs(ctx context.Context) ([]uint64, error) {
	return c.setMembers(ctx, keyGuildIDs)
}

// UnavailableGuildIDs returns the ids of all guilds known to be unavailable.
func (c *Cache) UnavailableGuildIDs(ctx context.Context) ([]uint64, error) {
	return c.setMembers(ctx, keyUnavailableGuildIDs)
}

// ChannelIDs returns the ids of all cached channels.
func (c *Cache) ChannelIDs(ctx context.Context) ([]uint64, error) {
	return c.setMembers(ctx, keyChannelIDs)
}

// RoleIDs returns the ids of all cached roles.
func (c *Cache) RoleIDs(ctx context.Context) ([]uint64, error) {
	return c.setMembers(ctx, keyRoleIDs)
}

// UserIDs returns the ids of all cached users.
func (c *Cache) UserIDs(ctx context.Context) ([]uint64, error) {
	return c.setMembers(ctx, keyUserIDs)
}

// GuildChannelIDs returns the ids of the cached channels of one guild.
func (c *Cache) GuildChannelIDs(ctx context.Context, guildID uint64) ([]uint64, error) {
	return c.setMembers(ctx, guildChannelsKey(guildID))
}

// GuildMemberIDs returns the user ids of the cached members of one guild.
func (c *Cache) GuildMemberIDs(ctx context.Context, guildID uint64) ([]uint64, error) {
	return c.setMembers(ctx, guildMembersKey(guildID))
}

// GuildRoleIDs returns the ids of the cached roles of one guild.
func (c *Cache) GuildRoleIDs(ctx context.Context, guildID uint64) ([]uint64, error) {
	return c.setMembers(ctx, guildRolesKey(guildID))
}
