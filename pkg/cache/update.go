package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/gatewaycache/pkg/archive"
)

// UpdateResult says what a partial update did to the stored record.
type UpdateResult int

const (
	// UpdateUnchanged means the stored record already matched the incoming
	// data and nothing was written.
	UpdateUnchanged UpdateResult = iota
	// UpdateChanged means the stored record was rewritten, in place where
	// the variable-width fields allowed it.
	UpdateChanged
	// UpdateMissing means no record existed, so the incoming data was
	// stored whole.
	UpdateMissing
)

// Update applies a gateway event to the cache and folds the resulting
// delta into the statistics counter. Events the cache does not track
// return nil. Errors are logged, not returned; one bad payload must not
// take the event loop down.
func (c *Cache) Update(ctx context.Context, event any) *Change {
	change, handled, err := c.applyEvent(ctx, event)
	if err != nil {
		c.log.Error("cache update failed",
			"event", fmt.Sprintf("%T", event),
			"error", err)
		if !handled {
			return nil
		}
	}
	if !handled {
		return nil
	}
	c.stats.apply(change)
	return &change
}

func (c *Cache) applyEvent(ctx context.Context, event any) (Change, bool, error) {
	switch e := event.(type) {
	case *discordgo.Ready:
		change, err := c.handleReady(ctx, e)
		return change, true, err

	case *discordgo.GuildCreate:
		gid, err := parseEventID(e.ID)
		if err != nil {
			return Change{}, true, err
		}
		if e.Unavailable {
			change, err := c.CacheUnavailableGuild(ctx, gid)
			return change, true, err
		}
		change, err := c.CacheGuild(ctx, e.Guild)
		return change, true, err

	case *discordgo.GuildUpdate:
		_, change, err := c.UpdateGuild(ctx, e.Guild)
		return change, true, err

	case *discordgo.GuildDelete:
		gid, err := parseEventID(e.ID)
		if err != nil {
			return Change{}, true, err
		}
		if e.Unavailable {
			change, err := c.CacheUnavailableGuild(ctx, gid)
			return change, true, err
		}
		change, err := c.DeleteGuild(ctx, gid)
		return change, true, err

	case *discordgo.ChannelCreate:
		change, err := c.CacheChannel(ctx, e.Channel)
		return change, true, err

	case *discordgo.ChannelUpdate:
		_, change, err := c.UpdateChannel(ctx, e.Channel)
		return change, true, err

	case *discordgo.ChannelDelete:
		return c.deleteChannelEvent(ctx, e.Channel)

	case *discordgo.ThreadCreate:
		change, err := c.CacheChannel(ctx, e.Channel)
		return change, true, err

	case *discordgo.ThreadUpdate:
		_, change, err := c.UpdateChannel(ctx, e.Channel)
		return change, true, err

	case *discordgo.ThreadDelete:
		return c.deleteChannelEvent(ctx, e.Channel)

	case *discordgo.ThreadListSync:
		gid, err := parseEventID(e.GuildID)
		if err != nil {
			return Change{}, true, err
		}
		change, err := c.cacheChannels(ctx, gid, e.Threads)
		return change, true, err

	case *discordgo.GuildMemberAdd:
		gid, err := parseEventID(e.GuildID)
		if err != nil {
			return Change{}, true, err
		}
		change, err := c.CacheMember(ctx, gid, e.Member)
		return change, true, err

	case *discordgo.GuildMemberUpdate:
		gid, err := parseEventID(e.GuildID)
		if err != nil {
			return Change{}, true, err
		}
		_, change, err := c.UpdateMember(ctx, gid, e.Member)
		return change, true, err

	case *discordgo.GuildMemberRemove:
		gid, err := parseEventID(e.GuildID)
		if err != nil {
			return Change{}, true, err
		}
		if e.User == nil {
			return Change{}, true, fmt.Errorf("member remove without user")
		}
		uid, err := parseEventID(e.User.ID)
		if err != nil {
			return Change{}, true, err
		}
		change, err := c.DeleteMember(ctx, gid, uid)
		return change, true, err

	case *discordgo.GuildMembersChunk:
		gid, err := parseEventID(e.GuildID)
		if err != nil {
			return Change{}, true, err
		}
		change, err := c.cacheMembers(ctx, gid, e.Members)
		return change, true, err

	case *discordgo.GuildRoleCreate:
		gid, err := parseEventID(e.GuildID)
		if err != nil {
			return Change{}, true, err
		}
		change, err := c.CacheRole(ctx, gid, e.Role)
		return change, true, err

	case *discordgo.GuildRoleUpdate:
		gid, err := parseEventID(e.GuildID)
		if err != nil {
			return Change{}, true, err
		}
		_, change, err := c.UpdateRole(ctx, gid, e.Role)
		return change, true, err

	case *discordgo.GuildRoleDelete:
		gid, err := parseEventID(e.GuildID)
		if err != nil {
			return Change{}, true, err
		}
		rid, err := parseEventID(e.RoleID)
		if err != nil {
			return Change{}, true, err
		}
		change, err := c.DeleteRole(ctx, gid, rid)
		return change, true, err

	case *discordgo.UserUpdate:
		return Change{}, true, c.CacheCurrentUser(ctx, e.User)

	case *discordgo.MessageCreate:
		return c.handleMessage(ctx, e.Message)

	default:
		return Change{}, false, nil
	}
}

func (c *Cache) handleReady(ctx context.Context, e *discordgo.Ready) (Change, error) {
	var change Change
	if e.User != nil {
		if err := c.CacheCurrentUser(ctx, e.User); err != nil {
			return change, err
		}
	}
	for _, g := range e.Guilds {
		gid, err := parseEventID(g.ID)
		if err != nil {
			return change, err
		}
		if !g.Unavailable {
			continue
		}
		sub, err := c.CacheUnavailableGuild(ctx, gid)
		change.add(sub)
		if err != nil {
			return change, err
		}
	}
	return change, nil
}

func (c *Cache) deleteChannelEvent(ctx context.Context, ch *discordgo.Channel) (Change, bool, error) {
	cid, err := parseEventID(ch.ID)
	if err != nil {
		return Change{}, true, err
	}
	var gid uint64
	if ch.GuildID != "" {
		if gid, err = parseEventID(ch.GuildID); err != nil {
			return Change{}, true, err
		}
	}
	change, err := c.DeleteChannel(ctx, gid, cid)
	return change, true, err
}

// handleMessage caches the author and member a message carries. Messages
// are the densest source of fresh user data between full guild payloads.
func (c *Cache) handleMessage(ctx context.Context, msg *discordgo.Message) (Change, bool, error) {
	if msg.Author == nil || msg.Author.ID == "" {
		return Change{}, false, nil
	}

	if msg.GuildID != "" && msg.Member != nil {
		gid, err := parseEventID(msg.GuildID)
		if err != nil {
			return Change{}, true, err
		}
		m, err := archive.MemberFromDiscordWithUser(msg.Member, msg.Author)
		if err != nil {
			return Change{}, true, err
		}
		u, err := archive.UserFromDiscord(msg.Author)
		if err != nil {
			return Change{}, true, err
		}
		change, err := c.cacheMemberUser(ctx, gid, m, u)
		return change, true, err
	}

	_, change, err := c.UpdateUser(ctx, msg.Author)
	return change, true, err
}

// existsFor maps a fetch result into the update protocol's view of
// presence. A corrupt record counts as missing so the incoming data
// overwrites the garbage.
func existsFor(ok bool, err error) (bool, error) {
	if err == nil {
		return ok, nil
	}
	if errors.Is(err, ErrCorruptRecord) {
		return false, nil
	}
	return false, err
}

// UpdateGuild applies a guild update. A matching record is left alone; a
// record differing only in fixed-width fields or the icon is patched in
// place; a name change forces a full re-serialization.
func (c *Cache) UpdateGuild(ctx context.Context, g *discordgo.Guild) (UpdateResult, Change, error) {
	guild, err := archive.GuildFromDiscord(g)
	if err != nil {
		return UpdateUnchanged, Change{}, fmt.Errorf("resolve guild: %w", err)
	}

	var change Change
	if len(g.Roles) > 0 {
		if change, err = c.cacheRoles(ctx, guild.ID, g.Roles); err != nil {
			return UpdateUnchanged, change, err
		}
	}

	existing, ok, err := c.Guild(ctx, guild.ID)
	if ok, err = existsFor(ok, err); err != nil {
		return UpdateUnchanged, change, err
	}

	if !ok {
		pipe := c.rdb.Pipeline()
		pipe.Set(ctx, guildKey(guild.ID), archive.MarshalGuild(guild), 0)
		added := pipe.SAdd(ctx, keyGuildIDs, guild.ID)
		removed := pipe.SRem(ctx, keyUnavailableGuildIDs, guild.ID)
		if _, err := pipe.Exec(ctx); err != nil {
			return UpdateMissing, change, fmt.Errorf("store guild %d: %w", guild.ID, err)
		}
		change.Guilds += added.Val()
		change.UnavailableGuilds -= removed.Val()
		return UpdateMissing, change, nil
	}

	if existing.EqualGuild(guild) {
		return UpdateUnchanged, change, nil
	}

	var out []byte
	if existing.Name() == guild.Name {
		out = existing.Mutate(func(m *archive.GuildMut) {
			m.SetOwnerID(guild.OwnerID)
			m.SetPermissions(guild.Permissions)
			m.SetIcon(guild.Icon)
		})
	} else {
		out = archive.MarshalGuild(guild)
	}
	if err := c.rdb.Set(ctx, guildKey(guild.ID), out, 0).Err(); err != nil {
		return UpdateChanged, change, fmt.Errorf("store guild %d: %w", guild.ID, err)
	}
	return UpdateChanged, change, nil
}

// UpdateUser applies a user update with the same skip / patch / rewrite
// ladder as UpdateGuild. The display name is the only variable-width
// field, so anything else changing patches in place.
func (c *Cache) UpdateUser(ctx context.Context, du *discordgo.User) (UpdateResult, Change, error) {
	u, err := archive.UserFromDiscord(du)
	if err != nil {
		return UpdateUnchanged, Change{}, fmt.Errorf("resolve user: %w", err)
	}

	existing, ok, err := c.User(ctx, u.ID)
	if ok, err = existsFor(ok, err); err != nil {
		return UpdateUnchanged, Change{}, err
	}

	if !ok {
		pipe := c.rdb.Pipeline()
		pipe.Set(ctx, userKey(u.ID), archive.MarshalUser(u), 0)
		added := pipe.SAdd(ctx, keyUserIDs, u.ID)
		if _, err := pipe.Exec(ctx); err != nil {
			return UpdateMissing, Change{}, fmt.Errorf("store user %d: %w", u.ID, err)
		}
		return UpdateMissing, Change{Users: added.Val()}, nil
	}

	if existing.EqualUser(u) {
		return UpdateUnchanged, Change{}, nil
	}

	var out []byte
	if existing.Name() == u.Name {
		out = existing.Mutate(func(m *archive.UserMut) {
			m.SetAvatar(u.Avatar)
			m.SetBot(u.Bot)
		})
	} else {
		out = archive.MarshalUser(u)
	}
	if err := c.rdb.Set(ctx, userKey(u.ID), out, 0).Err(); err != nil {
		return UpdateChanged, Change{}, fmt.Errorf("store user %d: %w", u.ID, err)
	}
	return UpdateChanged, Change{}, nil
}

// UpdateMember applies a member update. The member's user record is
// updated through the same protocol first, then the member record itself:
// skipped when equal, patched in place when the nickname survives and the
// role count matches, rewritten otherwise.
func (c *Cache) UpdateMember(ctx context.Context, guildID uint64, dm *discordgo.Member) (UpdateResult, Change, error) {
	m, err := archive.MemberFromDiscord(dm)
	if err != nil {
		return UpdateUnchanged, Change{}, fmt.Errorf("resolve member: %w", err)
	}

	_, change, err := c.UpdateUser(ctx, dm.User)
	if err != nil {
		return UpdateUnchanged, change, err
	}

	existing, ok, err := c.Member(ctx, guildID, m.UserID)
	if ok, err = existsFor(ok, err); err != nil {
		return UpdateUnchanged, change, err
	}

	if !ok {
		pipe := c.rdb.Pipeline()
		pipe.Set(ctx, memberKey(guildID, m.UserID), archive.MarshalMember(m), 0)
		pipe.SAdd(ctx, guildMembersKey(guildID), m.UserID)
		added := pipe.SAdd(ctx, keyUserIDs, m.UserID)
		if _, err := pipe.Exec(ctx); err != nil {
			return UpdateMissing, change, fmt.Errorf("store member %d of guild %d: %w", m.UserID, guildID, err)
		}
		change.Users += added.Val()
		return UpdateMissing, change, nil
	}

	if existing.EqualMember(m) {
		return UpdateUnchanged, change, nil
	}

	nick, hasNick := existing.Nick()
	sameNick := hasNick == (m.Nick != nil) && (!hasNick || nick == *m.Nick)

	var out []byte
	if sameNick && existing.NumRoles() == len(m.Roles) {
		out = existing.Mutate(func(mm *archive.MemberMut) {
			mm.SetAvatar(m.Avatar)
			mm.SetRoles(m.Roles)
		})
	} else {
		out = archive.MarshalMember(m)
	}
	if err := c.rdb.Set(ctx, memberKey(guildID, m.UserID), out, 0).Err(); err != nil {
		return UpdateChanged, change, fmt.Errorf("store member %d of guild %d: %w", m.UserID, guildID, err)
	}
	return UpdateChanged, change, nil
}

// UpdateRole applies a role update. Permissions, position and color patch
// in place; a renamed role is rewritten.
func (c *Cache) UpdateRole(ctx context.Context, guildID uint64, dr *discordgo.Role) (UpdateResult, Change, error) {
	r, err := archive.RoleFromDiscord(dr)
	if err != nil {
		return UpdateUnchanged, Change{}, fmt.Errorf("resolve role: %w", err)
	}

	existing, ok, err := c.Role(ctx, guildID, r.ID)
	if ok, err = existsFor(ok, err); err != nil {
		return UpdateUnchanged, Change{}, err
	}

	if !ok {
		change, err := c.CacheRole(ctx, guildID, dr)
		return UpdateMissing, change, err
	}

	if existing.EqualRole(r) {
		return UpdateUnchanged, Change{}, nil
	}

	var out []byte
	if existing.Name() == r.Name {
		out = existing.Mutate(func(m *archive.RoleMut) {
			m.SetPermissions(r.Permissions)
			m.SetPosition(r.Position)
			m.SetColor(r.Color)
		})
	} else {
		out = archive.MarshalRole(r)
	}
	if err := c.rdb.Set(ctx, roleKey(guildID, r.ID), out, 0).Err(); err != nil {
		return UpdateChanged, Change{}, fmt.Errorf("store role %d: %w", r.ID, err)
	}
	return UpdateChanged, Change{}, nil
}

// UpdateChannel applies a channel update. Channel records carry no
// in-place mutator, the overwrite list dominates and rarely keeps its
// shape, so any change is a full rewrite.
func (c *Cache) UpdateChannel(ctx context.Context, dch *discordgo.Channel) (UpdateResult, Change, error) {
	ch, err := archive.ChannelFromDiscord(dch)
	if err != nil {
		return UpdateUnchanged, Change{}, fmt.Errorf("resolve channel: %w", err)
	}

	existing, ok, err := c.Channel(ctx, ch.GuildID, ch.ID)
	if ok, err = existsFor(ok, err); err != nil {
		return UpdateUnchanged, Change{}, err
	}

	if ok && existing.EqualChannel(ch) {
		return UpdateUnchanged, Change{}, nil
	}

	change, err := c.CacheChannel(ctx, dch)
	if !ok {
		return UpdateMissing, change, err
	}
	return UpdateChanged, change, err
}
