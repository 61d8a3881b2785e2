package archive

import (
	"slices"
	"strings"
)

// Sessions record layout: an entry table directly after the header, one
// 24-byte entry per shard, followed by the token string tail. The whole
// record is the unit persisted by cold resume.
const (
	sessionsOffCount   = headerSize
	sessionsOffEntries = 8
	sessionEntrySize   = 24
)

// ResumeSession is one shard's gateway continuation state.
type ResumeSession struct {
	SessionID string
	Sequence  uint64
}

// MarshalSessions serializes the shard map into a new sessions record.
// Entries are ordered by shard id so equal maps produce identical bytes.
func MarshalSessions(sessions map[uint64]ResumeSession) []byte {
	shards := make([]uint64, 0, len(sessions))
	for shard := range sessions {
		shards = append(shards, shard)
	}
	slices.Sort(shards)

	fixed := sessionsOffEntries + len(shards)*sessionEntrySize
	w := acquire(KindSessions, 0, fixed)
	w.putU32(sessionsOffCount, uint32(len(shards)))
	for i, shard := range shards {
		s := sessions[shard]
		off := sessionsOffEntries + i*sessionEntrySize
		w.putU64(off, shard)
		w.putU64(off+8, s.Sequence)
		w.putString(off+16, s.SessionID)
	}
	return w.finish()
}

// ArchivedSessions is a validated, read-only view over sessions record bytes.
type ArchivedSessions struct {
	buf []byte
}

// ViewSessions validates buf once and returns the zero-copy view.
func ViewSessions(buf []byte) (ArchivedSessions, error) {
	if err := checkHeader(buf, KindSessions, sessionsOffEntries); err != nil {
		return ArchivedSessions{}, err
	}
	count := int(u32(buf, sessionsOffCount))
	fixed := sessionsOffEntries + count*sessionEntrySize
	if count < 0 || len(buf) < fixed {
		return ArchivedSessions{}, ErrTruncated
	}
	for i := 0; i < count; i++ {
		if err := checkStringRef(buf, sessionsOffEntries+i*sessionEntrySize+16, fixed); err != nil {
			return ArchivedSessions{}, err
		}
	}
	return ArchivedSessions{buf: buf}, nil
}

func (a ArchivedSessions) Bytes() []byte { return a.buf }

func (a ArchivedSessions) Len() int { return int(u32(a.buf, sessionsOffCount)) }

func (a ArchivedSessions) Shard(i int) uint64 {
	return u64(a.buf, sessionsOffEntries+i*sessionEntrySize)
}

func (a ArchivedSessions) Sequence(i int) uint64 {
	return u64(a.buf, sessionsOffEntries+i*sessionEntrySize+8)
}

func (a ArchivedSessions) SessionID(i int) string {
	s, _ := viewString(a.buf, sessionsOffEntries+i*sessionEntrySize+16)
	return s
}

// Materialize converts the packed representation into an owned shard map.
func (a ArchivedSessions) Materialize() map[uint64]ResumeSession {
	out := make(map[uint64]ResumeSession, a.Len())
	for i := 0; i < a.Len(); i++ {
		out[a.Shard(i)] = ResumeSession{
			SessionID: strings.Clone(a.SessionID(i)),
			Sequence:  a.Sequence(i),
		}
	}
	return out
}

// GuildShards record layout: a count followed by 16-byte (guild id, shard)
// entries. This is the transient startup index written alongside cold-resume
// data.
const (
	guildShardsOffCount   = headerSize
	guildShardsOffEntries = 8
	guildShardEntrySize   = 16
)

// MarshalGuildShards serializes the guild-to-shard assignment map, ordered
// by guild id for deterministic bytes.
func MarshalGuildShards(shards map[uint64]uint32) []byte {
	guilds := make([]uint64, 0, len(shards))
	for guild := range shards {
		guilds = append(guilds, guild)
	}
	slices.Sort(guilds)

	fixed := guildShardsOffEntries + len(guilds)*guildShardEntrySize
	w := acquire(KindGuildShards, 0, fixed)
	w.putU32(guildShardsOffCount, uint32(len(guilds)))
	for i, guild := range guilds {
		off := guildShardsOffEntries + i*guildShardEntrySize
		w.putU64(off, guild)
		w.putU32(off+8, shards[guild])
	}
	return w.finish()
}

// ArchivedGuildShards is a validated, read-only view over guild-shards bytes.
type ArchivedGuildShards struct {
	buf []byte
}

// ViewGuildShards validates buf once and returns the zero-copy view.
func ViewGuildShards(buf []byte) (ArchivedGuildShards, error) {
	if err := checkHeader(buf, KindGuildShards, guildShardsOffEntries); err != nil {
		return ArchivedGuildShards{}, err
	}
	count := int(u32(buf, guildShardsOffCount))
	if count < 0 || len(buf) < guildShardsOffEntries+count*guildShardEntrySize {
		return ArchivedGuildShards{}, ErrTruncated
	}
	return ArchivedGuildShards{buf: buf}, nil
}

func (a ArchivedGuildShards) Bytes() []byte { return a.buf }

func (a ArchivedGuildShards) Len() int { return int(u32(a.buf, guildShardsOffCount)) }

func (a ArchivedGuildShards) Guild(i int) uint64 {
	return u64(a.buf, guildShardsOffEntries+i*guildShardEntrySize)
}

func (a ArchivedGuildShards) ShardID(i int) uint32 {
	return u32(a.buf, guildShardsOffEntries+i*guildShardEntrySize+8)
}

// Materialize converts the packed representation into an owned map.
func (a ArchivedGuildShards) Materialize() map[uint64]uint32 {
	out := make(map[uint64]uint32, a.Len())
	for i := 0; i < a.Len(); i++ {
		out[a.Guild(i)] = a.ShardID(i)
	}
	return out
}
