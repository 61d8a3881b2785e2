package archive

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/gatewaycache/pkg/util"
)

// Member record layout. The record stores only a user id reference plus
// guild-specific overrides, never a copy of the user's own fields.
const (
	memberOffUser   = headerSize
	memberOffAvatar = memberOffUser + 8
	memberOffNick   = memberOffAvatar + 16
	memberOffRoles  = memberOffNick + 8
	memberFixedSize = memberOffRoles + 8
)

const (
	memberFlagAvatar uint16 = 1 << iota
	memberFlagAvatarAnimated
)

// Member is the owned, materialized form of a cached member record.
type Member struct {
	UserID uint64
	Nick   *string
	Avatar *ImageHash
	Roles  []uint64
}

// MemberFromDiscord resolves a gateway member into the cached field subset.
// An empty nickname on the wire is the absent nickname.
func MemberFromDiscord(m *discordgo.Member) (*Member, error) {
	if m.User == nil {
		return nil, fmt.Errorf("member without user")
	}
	return MemberFromDiscordWithUser(m, m.User)
}

// MemberFromDiscordWithUser resolves a member whose inner user object was
// omitted on the wire, pairing it with the separately delivered user.
func MemberFromDiscordWithUser(m *discordgo.Member, u *discordgo.User) (*Member, error) {
	uid, err := util.ParseSnowflake(u.ID)
	if err != nil {
		return nil, err
	}
	out := &Member{UserID: uid}
	if m.Nick != "" {
		nick := m.Nick
		out.Nick = &nick
	}
	if out.Avatar, err = ParseImageHash(m.Avatar); err != nil {
		return nil, err
	}
	if len(m.Roles) > 0 {
		out.Roles = make([]uint64, len(m.Roles))
		for i, r := range m.Roles {
			if out.Roles[i], err = util.ParseSnowflake(r); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// MarshalMember serializes m into a new member record.
func MarshalMember(m *Member) []byte {
	var flags uint16
	if m.Avatar != nil {
		flags |= memberFlagAvatar
		if m.Avatar.Animated {
			flags |= memberFlagAvatarAnimated
		}
	}

	w := acquire(KindMember, flags, memberFixedSize)
	w.putU64(memberOffUser, m.UserID)
	if m.Avatar != nil {
		copy(w.buf[memberOffAvatar:], m.Avatar.Bytes[:])
	}
	if m.Nick != nil {
		w.putString(memberOffNick, *m.Nick)
	} else {
		w.putNoString(memberOffNick)
	}
	if len(m.Roles) > 0 {
		w.beginArray(memberOffRoles, len(m.Roles))
		for _, r := range m.Roles {
			w.appendU64(r)
		}
	}
	return w.finish()
}

// ArchivedMember is a validated, read-only view over member record bytes.
type ArchivedMember struct {
	buf []byte
}

// ViewMember validates buf once and returns the zero-copy view.
func ViewMember(buf []byte) (ArchivedMember, error) {
	if err := checkHeader(buf, KindMember, memberFixedSize); err != nil {
		return ArchivedMember{}, err
	}
	if err := checkStringRef(buf, memberOffNick, memberFixedSize); err != nil {
		return ArchivedMember{}, err
	}
	if err := checkArrayRef(buf, memberOffRoles, memberFixedSize, 8); err != nil {
		return ArchivedMember{}, err
	}
	return ArchivedMember{buf: buf}, nil
}

func (a ArchivedMember) Bytes() []byte { return a.buf }

func (a ArchivedMember) UserID() uint64 { return u64(a.buf, memberOffUser) }

func (a ArchivedMember) Nick() (string, bool) {
	return viewString(a.buf, memberOffNick)
}

func (a ArchivedMember) Avatar() (ImageHash, bool) {
	return viewHash(a.buf, memberOffAvatar, memberFlagAvatar, memberFlagAvatarAnimated)
}

func (a ArchivedMember) NumRoles() int {
	return int(u32(a.buf, memberOffRoles+4))
}

// Role returns the i-th role id without materializing the list.
func (a ArchivedMember) Role(i int) uint64 {
	off := int(u32(a.buf, memberOffRoles))
	return u64(a.buf, off+i*8)
}

// Roles materializes the role id list.
func (a ArchivedMember) Roles() []uint64 {
	n := a.NumRoles()
	if n == 0 {
		return nil
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = a.Role(i)
	}
	return out
}

// Materialize converts the packed representation into an owned Member.
func (a ArchivedMember) Materialize() *Member {
	m := &Member{
		UserID: a.UserID(),
		Roles:  a.Roles(),
	}
	if nick, ok := a.Nick(); ok {
		nick = strings.Clone(nick)
		m.Nick = &nick
	}
	if h, ok := a.Avatar(); ok {
		m.Avatar = &h
	}
	return m
}

// EqualMember reports whether the archived record already matches m.
func (a ArchivedMember) EqualMember(m *Member) bool {
	if a.UserID() != m.UserID {
		return false
	}
	nick, ok := a.Nick()
	if ok != (m.Nick != nil) || (ok && nick != *m.Nick) {
		return false
	}
	h, ok := a.Avatar()
	if ok != (m.Avatar != nil) || (ok && h != *m.Avatar) {
		return false
	}
	if a.NumRoles() != len(m.Roles) {
		return false
	}
	for i, r := range m.Roles {
		if a.Role(i) != r {
			return false
		}
	}
	return true
}

// MemberMut is a sealed mutable view restricted to fixed-width fields and
// same-cardinality role rewrites.
type MemberMut struct {
	buf []byte
}

// Mutate applies in-place field changes and returns the updated bytes for
// write-back.
func (a ArchivedMember) Mutate(fn func(*MemberMut)) []byte {
	m := MemberMut{buf: a.buf}
	fn(&m)
	return a.buf
}

func (m *MemberMut) SetAvatar(h *ImageHash) {
	putHash(m.buf, memberOffAvatar, memberFlagAvatar, memberFlagAvatarAnimated, h)
}

// SetRoles rewrites the role id list in place. It reports false when the
// cardinality differs, in which case the record must be re-serialized.
func (m *MemberMut) SetRoles(roles []uint64) bool {
	if int(u32(m.buf, memberOffRoles+4)) != len(roles) {
		return false
	}
	off := int(u32(m.buf, memberOffRoles))
	for i, r := range roles {
		binaryPutU64(m.buf, off+i*8, r)
	}
	return true
}
