package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DeleteGuild removes a guild record, its index membership and all of its
// per-guild entities. Users stay cached, they may be shared with other
// guilds.
func (c *Cache) DeleteGuild(ctx context.Context, guildID uint64) (Change, error) {
	pipe := c.rdb.Pipeline()
	pipe.Del(ctx, guildKey(guildID))
	removedAvail := pipe.SRem(ctx, keyGuildIDs, guildID)
	removedUnavail := pipe.SRem(ctx, keyUnavailableGuildIDs, guildID)
	if _, err := pipe.Exec(ctx); err != nil {
		return Change{}, fmt.Errorf("delete guild %d: %w", guildID, err)
	}

	change, err := c.deleteGuildItems(ctx, guildID)
	change.Guilds -= removedAvail.Val()
	change.UnavailableGuilds -= removedUnavail.Val()
	return change, err
}

// deleteGuildItems drops the channel, role and member records of one guild
// along with the per-guild index sets. Global channel and role sets lose
// the dropped ids; the global user set is left alone.
func (c *Cache) deleteGuildItems(ctx context.Context, guildID uint64) (Change, error) {
	channels, err := c.setMembers(ctx, guildChannelsKey(guildID))
	if err != nil {
		return Change{}, err
	}
	roles, err := c.setMembers(ctx, guildRolesKey(guildID))
	if err != nil {
		return Change{}, err
	}
	members, err := c.setMembers(ctx, guildMembersKey(guildID))
	if err != nil {
		return Change{}, err
	}

	pipe := c.rdb.Pipeline()
	var removedChannels, removedRoles *redis.IntCmd
	if len(channels) > 0 {
		keys := make([]string, len(channels))
		for i, id := range channels {
			keys[i] = channelKey(guildID, id)
		}
		pipe.Del(ctx, keys...)
		removedChannels = pipe.SRem(ctx, keyChannelIDs, idArgs(channels)...)
	}
	if len(roles) > 0 {
		keys := make([]string, len(roles))
		for i, id := range roles {
			keys[i] = roleKey(guildID, id)
		}
		pipe.Del(ctx, keys...)
		removedRoles = pipe.SRem(ctx, keyRoleIDs, idArgs(roles)...)
	}
	if len(members) > 0 {
		keys := make([]string, len(members))
		for i, id := range members {
			keys[i] = memberKey(guildID, id)
		}
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, guildChannelsKey(guildID), guildRolesKey(guildID), guildMembersKey(guildID))
	if _, err := pipe.Exec(ctx); err != nil {
		return Change{}, fmt.Errorf("delete items of guild %d: %w", guildID, err)
	}

	var change Change
	if removedChannels != nil {
		change.Channels -= removedChannels.Val()
	}
	if removedRoles != nil {
		change.Roles -= removedRoles.Val()
	}
	return change, nil
}

// DeleteChannel removes a channel record under both of its possible key
// forms plus its index membership.
func (c *Cache) DeleteChannel(ctx context.Context, guildID, channelID uint64) (Change, error) {
	pipe := c.rdb.Pipeline()
	if guildID != 0 {
		pipe.Del(ctx, channelKey(guildID, channelID), channelKey(0, channelID))
		pipe.SRem(ctx, guildChannelsKey(guildID), channelID)
	} else {
		pipe.Del(ctx, channelKey(0, channelID))
	}
	removed := pipe.SRem(ctx, keyChannelIDs, channelID)
	if _, err := pipe.Exec(ctx); err != nil {
		return Change{}, fmt.Errorf("delete channel %d: %w", channelID, err)
	}
	return Change{Channels: -removed.Val()}, nil
}

// DeleteRole removes a role record and its index membership.
func (c *Cache) DeleteRole(ctx context.Context, guildID, roleID uint64) (Change, error) {
	pipe := c.rdb.Pipeline()
	pipe.Del(ctx, roleKey(guildID, roleID))
	pipe.SRem(ctx, guildRolesKey(guildID), roleID)
	removed := pipe.SRem(ctx, keyRoleIDs, roleID)
	if _, err := pipe.Exec(ctx); err != nil {
		return Change{}, fmt.Errorf("delete role %d: %w", roleID, err)
	}
	return Change{Roles: -removed.Val()}, nil
}

// DeleteMember removes a member record and its per-guild index membership.
// The user record and the global user index are untouched.
func (c *Cache) DeleteMember(ctx context.Context, guildID, userID uint64) (Change, error) {
	pipe := c.rdb.Pipeline()
	pipe.Del(ctx, memberKey(guildID, userID))
	pipe.SRem(ctx, guildMembersKey(guildID), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return Change{}, fmt.Errorf("delete member %d of guild %d: %w", userID, guildID, err)
	}
	return Change{}, nil
}
