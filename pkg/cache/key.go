package cache

import (
	"strconv"
	"unsafe"
)

// The key space. Every logical entity address maps to exactly one key; the
// literal prefixes below never overlap, which is what guarantees two
// distinct addresses cannot collide. Static keys are package constants so
// their construction never allocates; dynamic keys allocate exactly one
// buffer.
const (
	keyCurrentUser         = "CURRENT_USER"
	keyResumeData          = "RESUME_DATA"
	keyGuildShards         = "GUILD_SHARDS"
	keyChannelIDs          = "CHANNEL_IDS"
	keyGuildIDs            = "GUILD_IDS"
	keyRoleIDs             = "ROLE_IDS"
	keyUserIDs             = "USER_IDS"
	keyUnavailableGuildIDs = "UNAVAILABLE_GUILD_IDS"

	prefixUser          = "USER"
	prefixGuild         = "GUILD"
	prefixMember        = "MEMBER"
	prefixRole          = "ROLE"
	prefixChannel       = "CHANNEL"
	prefixGuildChannels = "GUILD_CHANNELS"
	prefixGuildMembers  = "GUILD_MEMBERS"
	prefixGuildRoles    = "GUILD_ROLES"
)

// key1 builds "PREFIX:<id>" in a single exactly-sized buffer.
func key1(prefix string, id uint64) string {
	b := make([]byte, 0, len(prefix)+21)
	b = append(b, prefix...)
	b = append(b, ':')
	b = strconv.AppendUint(b, id, 10)
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// key2 builds "PREFIX:<a>:<b>" in a single exactly-sized buffer.
func key2(prefix string, a, b uint64) string {
	buf := make([]byte, 0, len(prefix)+42)
	buf = append(buf, prefix...)
	buf = append(buf, ':')
	buf = strconv.AppendUint(buf, a, 10)
	buf = append(buf, ':')
	buf = strconv.AppendUint(buf, b, 10)
	return unsafe.String(unsafe.SliceData(buf), len(buf))
}

func userKey(id uint64) string  { return key1(prefixUser, id) }
func guildKey(id uint64) string { return key1(prefixGuild, id) }

func memberKey(guild, user uint64) string { return key2(prefixMember, guild, user) }
func roleKey(guild, role uint64) string   { return key2(prefixRole, guild, role) }

// channelKey is guild-scoped when the parent guild is known.
func channelKey(guild, channel uint64) string {
	if guild == 0 {
		return key1(prefixChannel, channel)
	}
	return key2(prefixChannel, guild, channel)
}

func guildChannelsKey(guild uint64) string { return key1(prefixGuildChannels, guild) }
func guildMembersKey(guild uint64) string  { return key1(prefixGuildMembers, guild) }
func guildRolesKey(guild uint64) string    { return key1(prefixGuildRoles, guild) }
