package archive

import (
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/gatewaycache/pkg/util"
)

// Guild record layout.
const (
	guildOffID     = headerSize
	guildOffOwner  = guildOffID + 8
	guildOffPerms  = guildOffOwner + 8
	guildOffIcon   = guildOffPerms + 8
	guildOffName   = guildOffIcon + 16
	guildFixedSize = guildOffName + 8
)

const (
	guildFlagIcon uint16 = 1 << iota
	guildFlagIconAnimated
	guildFlagPermissions
)

// Guild is the owned, materialized form of a cached guild record.
type Guild struct {
	ID          uint64
	Name        string
	Icon        *ImageHash
	OwnerID     uint64
	Permissions *uint64
}

// GuildFromDiscord resolves a gateway guild into the cached field subset.
// The permission bitmask is only populated on payloads that carry one.
func GuildFromDiscord(g *discordgo.Guild) (*Guild, error) {
	id, err := util.ParseSnowflake(g.ID)
	if err != nil {
		return nil, err
	}
	out := &Guild{ID: id, Name: g.Name}
	if g.OwnerID != "" {
		if out.OwnerID, err = util.ParseSnowflake(g.OwnerID); err != nil {
			return nil, err
		}
	}
	if out.Icon, err = ParseImageHash(g.Icon); err != nil {
		return nil, err
	}
	if g.Permissions != 0 {
		p := uint64(g.Permissions)
		out.Permissions = &p
	}
	return out, nil
}

// MarshalGuild serializes g into a new guild record.
func MarshalGuild(g *Guild) []byte {
	var flags uint16
	if g.Icon != nil {
		flags |= guildFlagIcon
		if g.Icon.Animated {
			flags |= guildFlagIconAnimated
		}
	}
	if g.Permissions != nil {
		flags |= guildFlagPermissions
	}

	w := acquire(KindGuild, flags, guildFixedSize)
	w.putU64(guildOffID, g.ID)
	w.putU64(guildOffOwner, g.OwnerID)
	if g.Permissions != nil {
		w.putU64(guildOffPerms, *g.Permissions)
	}
	if g.Icon != nil {
		copy(w.buf[guildOffIcon:], g.Icon.Bytes[:])
	}
	w.putString(guildOffName, g.Name)
	return w.finish()
}

// ArchivedGuild is a validated, read-only view over guild record bytes.
type ArchivedGuild struct {
	buf []byte
}

// ViewGuild validates buf once and returns the zero-copy view.
func ViewGuild(buf []byte) (ArchivedGuild, error) {
	if err := checkHeader(buf, KindGuild, guildFixedSize); err != nil {
		return ArchivedGuild{}, err
	}
	if err := checkStringRef(buf, guildOffName, guildFixedSize); err != nil {
		return ArchivedGuild{}, err
	}
	return ArchivedGuild{buf: buf}, nil
}

func (a ArchivedGuild) Bytes() []byte { return a.buf }

func (a ArchivedGuild) ID() uint64 { return u64(a.buf, guildOffID) }

func (a ArchivedGuild) Name() string {
	s, _ := viewString(a.buf, guildOffName)
	return s
}

func (a ArchivedGuild) OwnerID() uint64 { return u64(a.buf, guildOffOwner) }

func (a ArchivedGuild) Permissions() (uint64, bool) {
	if !hasFlag(a.buf, guildFlagPermissions) {
		return 0, false
	}
	return u64(a.buf, guildOffPerms), true
}

func (a ArchivedGuild) Icon() (ImageHash, bool) {
	return viewHash(a.buf, guildOffIcon, guildFlagIcon, guildFlagIconAnimated)
}

// Materialize converts the packed representation into an owned Guild.
func (a ArchivedGuild) Materialize() *Guild {
	g := &Guild{
		ID:      a.ID(),
		Name:    strings.Clone(a.Name()),
		OwnerID: a.OwnerID(),
	}
	if p, ok := a.Permissions(); ok {
		g.Permissions = &p
	}
	if h, ok := a.Icon(); ok {
		g.Icon = &h
	}
	return g
}

// EqualGuild reports whether the archived record already matches g. It is
// the skip comparator used to avoid redundant writes.
func (a ArchivedGuild) EqualGuild(g *Guild) bool {
	if a.ID() != g.ID || a.OwnerID() != g.OwnerID || a.Name() != g.Name {
		return false
	}
	p, ok := a.Permissions()
	if ok != (g.Permissions != nil) || (ok && p != *g.Permissions) {
		return false
	}
	h, ok := a.Icon()
	if ok != (g.Icon != nil) || (ok && h != *g.Icon) {
		return false
	}
	return true
}

// GuildMut is a sealed mutable view restricted to fixed-width fields.
type GuildMut struct {
	buf []byte
}

// Mutate applies fixed-width field changes directly inside the record buffer
// and returns the updated bytes for write-back.
func (a ArchivedGuild) Mutate(fn func(*GuildMut)) []byte {
	m := GuildMut{buf: a.buf}
	fn(&m)
	return a.buf
}

func (m *GuildMut) SetOwnerID(id uint64) {
	binaryPutU64(m.buf, guildOffOwner, id)
}

func (m *GuildMut) SetPermissions(p *uint64) {
	if p == nil {
		setFlag(m.buf, guildFlagPermissions, false)
		binaryPutU64(m.buf, guildOffPerms, 0)
		return
	}
	setFlag(m.buf, guildFlagPermissions, true)
	binaryPutU64(m.buf, guildOffPerms, *p)
}

func (m *GuildMut) SetIcon(h *ImageHash) {
	putHash(m.buf, guildOffIcon, guildFlagIcon, guildFlagIconAnimated, h)
}
