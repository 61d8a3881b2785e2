package archive

import (
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/gatewaycache/pkg/util"
)

// Channel record layout. A guild id of zero is the niche encoding for a
// channel without a parent guild; snowflakes are never zero.
const (
	channelOffID         = headerSize
	channelOffGuild      = channelOffID + 8
	channelOffType       = channelOffGuild + 8
	channelOffName       = channelOffType + 4
	channelOffOverwrites = channelOffName + 8
	channelFixedSize     = channelOffOverwrites + 8

	overwriteSize = 32
)

// PermissionOverwrite is one entry of a channel's ordered overwrite list.
type PermissionOverwrite struct {
	ID    uint64
	Type  uint32
	Allow uint64
	Deny  uint64
}

// Channel is the owned, materialized form of a cached channel record.
type Channel struct {
	ID         uint64
	GuildID    uint64 // 0 when the channel has no guild
	Type       uint32
	Name       string
	Overwrites []PermissionOverwrite
}

// ChannelFromDiscord resolves a gateway channel into the cached field subset.
func ChannelFromDiscord(ch *discordgo.Channel) (*Channel, error) {
	id, err := util.ParseSnowflake(ch.ID)
	if err != nil {
		return nil, err
	}
	out := &Channel{ID: id, Type: uint32(ch.Type), Name: ch.Name}
	if ch.GuildID != "" {
		if out.GuildID, err = util.ParseSnowflake(ch.GuildID); err != nil {
			return nil, err
		}
	}
	if len(ch.PermissionOverwrites) > 0 {
		out.Overwrites = make([]PermissionOverwrite, len(ch.PermissionOverwrites))
		for i, po := range ch.PermissionOverwrites {
			target, err := util.ParseSnowflake(po.ID)
			if err != nil {
				return nil, err
			}
			out.Overwrites[i] = PermissionOverwrite{
				ID:    target,
				Type:  uint32(po.Type),
				Allow: uint64(po.Allow),
				Deny:  uint64(po.Deny),
			}
		}
	}
	return out, nil
}

// MarshalChannel serializes ch into a new channel record.
func MarshalChannel(ch *Channel) []byte {
	w := acquire(KindChannel, 0, channelFixedSize)
	w.putU64(channelOffID, ch.ID)
	w.putU64(channelOffGuild, ch.GuildID)
	w.putU32(channelOffType, ch.Type)
	w.putString(channelOffName, ch.Name)
	if len(ch.Overwrites) > 0 {
		w.beginArray(channelOffOverwrites, len(ch.Overwrites))
		for _, po := range ch.Overwrites {
			w.appendU64(po.ID)
			w.appendU64(po.Allow)
			w.appendU64(po.Deny)
			w.appendU32(po.Type)
			w.appendU32(0)
		}
	}
	return w.finish()
}

// ArchivedChannel is a validated, read-only view over channel record bytes.
type ArchivedChannel struct {
	buf []byte
}

// ViewChannel validates buf once and returns the zero-copy view.
func ViewChannel(buf []byte) (ArchivedChannel, error) {
	if err := checkHeader(buf, KindChannel, channelFixedSize); err != nil {
		return ArchivedChannel{}, err
	}
	if err := checkStringRef(buf, channelOffName, channelFixedSize); err != nil {
		return ArchivedChannel{}, err
	}
	if err := checkArrayRef(buf, channelOffOverwrites, channelFixedSize, overwriteSize); err != nil {
		return ArchivedChannel{}, err
	}
	return ArchivedChannel{buf: buf}, nil
}

func (a ArchivedChannel) Bytes() []byte { return a.buf }

func (a ArchivedChannel) ID() uint64 { return u64(a.buf, channelOffID) }

// GuildID returns the parent guild id, or false for a guildless channel.
func (a ArchivedChannel) GuildID() (uint64, bool) {
	id := u64(a.buf, channelOffGuild)
	return id, id != 0
}

func (a ArchivedChannel) Type() uint32 { return u32(a.buf, channelOffType) }

func (a ArchivedChannel) Name() string {
	s, _ := viewString(a.buf, channelOffName)
	return s
}

func (a ArchivedChannel) NumOverwrites() int {
	return int(u32(a.buf, channelOffOverwrites+4))
}

// Overwrite returns the i-th overwrite entry without materializing the list.
func (a ArchivedChannel) Overwrite(i int) PermissionOverwrite {
	off := int(u32(a.buf, channelOffOverwrites)) + i*overwriteSize
	return PermissionOverwrite{
		ID:    u64(a.buf, off),
		Allow: u64(a.buf, off+8),
		Deny:  u64(a.buf, off+16),
		Type:  u32(a.buf, off+24),
	}
}

// Materialize converts the packed representation into an owned Channel.
func (a ArchivedChannel) Materialize() *Channel {
	ch := &Channel{
		ID:   a.ID(),
		Type: a.Type(),
		Name: strings.Clone(a.Name()),
	}
	ch.GuildID, _ = a.GuildID()
	if n := a.NumOverwrites(); n > 0 {
		ch.Overwrites = make([]PermissionOverwrite, n)
		for i := range ch.Overwrites {
			ch.Overwrites[i] = a.Overwrite(i)
		}
	}
	return ch
}

// EqualChannel reports whether the archived record already matches ch.
func (a ArchivedChannel) EqualChannel(ch *Channel) bool {
	gid, _ := a.GuildID()
	if a.ID() != ch.ID || gid != ch.GuildID || a.Type() != ch.Type || a.Name() != ch.Name {
		return false
	}
	if a.NumOverwrites() != len(ch.Overwrites) {
		return false
	}
	for i, po := range ch.Overwrites {
		if a.Overwrite(i) != po {
			return false
		}
	}
	return true
}
