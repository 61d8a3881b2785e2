package archive

import (
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/gatewaycache/pkg/util"
)

// User and CurrentUser share one layout; they differ in kind tag and in the
// bot flag, which only User carries.
const (
	userOffID     = headerSize
	userOffAvatar = userOffID + 8
	userOffName   = userOffAvatar + 16
	userFixedSize = userOffName + 8
)

const (
	userFlagAvatar uint16 = 1 << iota
	userFlagAvatarAnimated
	userFlagBot
)

// User is the owned, materialized form of a cached user record.
type User struct {
	ID     uint64
	Name   string
	Avatar *ImageHash
	Bot    bool
}

// UserFromDiscord resolves a gateway user into the cached field subset.
func UserFromDiscord(u *discordgo.User) (*User, error) {
	id, err := util.ParseSnowflake(u.ID)
	if err != nil {
		return nil, err
	}
	avatar, err := ParseImageHash(u.Avatar)
	if err != nil {
		return nil, err
	}
	return &User{ID: id, Name: u.Username, Avatar: avatar, Bot: u.Bot}, nil
}

func marshalUserLayout(kind byte, id uint64, name string, avatar *ImageHash, bot bool) []byte {
	var flags uint16
	if avatar != nil {
		flags |= userFlagAvatar
		if avatar.Animated {
			flags |= userFlagAvatarAnimated
		}
	}
	if bot {
		flags |= userFlagBot
	}

	w := acquire(kind, flags, userFixedSize)
	w.putU64(userOffID, id)
	if avatar != nil {
		copy(w.buf[userOffAvatar:], avatar.Bytes[:])
	}
	w.putString(userOffName, name)
	return w.finish()
}

// MarshalUser serializes u into a new user record.
func MarshalUser(u *User) []byte {
	return marshalUserLayout(KindUser, u.ID, u.Name, u.Avatar, u.Bot)
}

// ArchivedUser is a validated, read-only view over user record bytes.
type ArchivedUser struct {
	buf []byte
}

// ViewUser validates buf once and returns the zero-copy view.
func ViewUser(buf []byte) (ArchivedUser, error) {
	if err := checkHeader(buf, KindUser, userFixedSize); err != nil {
		return ArchivedUser{}, err
	}
	if err := checkStringRef(buf, userOffName, userFixedSize); err != nil {
		return ArchivedUser{}, err
	}
	return ArchivedUser{buf: buf}, nil
}

func (a ArchivedUser) Bytes() []byte { return a.buf }

func (a ArchivedUser) ID() uint64 { return u64(a.buf, userOffID) }

func (a ArchivedUser) Name() string {
	s, _ := viewString(a.buf, userOffName)
	return s
}

func (a ArchivedUser) Bot() bool { return hasFlag(a.buf, userFlagBot) }

func (a ArchivedUser) Avatar() (ImageHash, bool) {
	return viewHash(a.buf, userOffAvatar, userFlagAvatar, userFlagAvatarAnimated)
}

// Materialize converts the packed representation into an owned User.
func (a ArchivedUser) Materialize() *User {
	u := &User{
		ID:   a.ID(),
		Name: strings.Clone(a.Name()),
		Bot:  a.Bot(),
	}
	if h, ok := a.Avatar(); ok {
		u.Avatar = &h
	}
	return u
}

// EqualUser reports whether the archived record already matches u.
func (a ArchivedUser) EqualUser(u *User) bool {
	if a.ID() != u.ID || a.Name() != u.Name || a.Bot() != u.Bot {
		return false
	}
	h, ok := a.Avatar()
	return ok == (u.Avatar != nil) && (!ok || h == *u.Avatar)
}

// UserMut is a sealed mutable view restricted to fixed-width fields.
type UserMut struct {
	buf []byte
}

// Mutate applies fixed-width field changes directly inside the record buffer
// and returns the updated bytes for write-back.
func (a ArchivedUser) Mutate(fn func(*UserMut)) []byte {
	m := UserMut{buf: a.buf}
	fn(&m)
	return a.buf
}

func (m *UserMut) SetAvatar(h *ImageHash) {
	putHash(m.buf, userOffAvatar, userFlagAvatar, userFlagAvatarAnimated, h)
}

func (m *UserMut) SetBot(bot bool) {
	setFlag(m.buf, userFlagBot, bot)
}

// CurrentUser is the owned form of the single process-owned account record.
type CurrentUser struct {
	ID     uint64
	Name   string
	Avatar *ImageHash
}

// CurrentUserFromDiscord resolves the gateway's own user into the cached
// field subset.
func CurrentUserFromDiscord(u *discordgo.User) (*CurrentUser, error) {
	id, err := util.ParseSnowflake(u.ID)
	if err != nil {
		return nil, err
	}
	avatar, err := ParseImageHash(u.Avatar)
	if err != nil {
		return nil, err
	}
	return &CurrentUser{ID: id, Name: u.Username, Avatar: avatar}, nil
}

// MarshalCurrentUser serializes u into a new current-user record.
func MarshalCurrentUser(u *CurrentUser) []byte {
	return marshalUserLayout(KindCurrentUser, u.ID, u.Name, u.Avatar, false)
}

// ArchivedCurrentUser is a validated, read-only view over current-user bytes.
type ArchivedCurrentUser struct {
	buf []byte
}

// ViewCurrentUser validates buf once and returns the zero-copy view.
func ViewCurrentUser(buf []byte) (ArchivedCurrentUser, error) {
	if err := checkHeader(buf, KindCurrentUser, userFixedSize); err != nil {
		return ArchivedCurrentUser{}, err
	}
	if err := checkStringRef(buf, userOffName, userFixedSize); err != nil {
		return ArchivedCurrentUser{}, err
	}
	return ArchivedCurrentUser{buf: buf}, nil
}

func (a ArchivedCurrentUser) Bytes() []byte { return a.buf }

func (a ArchivedCurrentUser) ID() uint64 { return u64(a.buf, userOffID) }

func (a ArchivedCurrentUser) Name() string {
	s, _ := viewString(a.buf, userOffName)
	return s
}

func (a ArchivedCurrentUser) Avatar() (ImageHash, bool) {
	return viewHash(a.buf, userOffAvatar, userFlagAvatar, userFlagAvatarAnimated)
}

// Materialize converts the packed representation into an owned CurrentUser.
func (a ArchivedCurrentUser) Materialize() *CurrentUser {
	u := &CurrentUser{
		ID:   a.ID(),
		Name: strings.Clone(a.Name()),
	}
	if h, ok := a.Avatar(); ok {
		u.Avatar = &h
	}
	return u
}

// EqualCurrentUser reports whether the archived record already matches u.
func (a ArchivedCurrentUser) EqualCurrentUser(u *CurrentUser) bool {
	if a.ID() != u.ID || a.Name() != u.Name {
		return false
	}
	h, ok := a.Avatar()
	return ok == (u.Avatar != nil) && (!ok || h == *u.Avatar)
}
