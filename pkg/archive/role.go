package archive

import (
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/gatewaycache/pkg/util"
)

// Role record layout.
const (
	roleOffID       = headerSize
	roleOffPerms    = roleOffID + 8
	roleOffPosition = roleOffPerms + 8
	roleOffColor    = roleOffPosition + 4
	roleOffName     = roleOffColor + 4
	roleFixedSize   = roleOffName + 8
)

// Role is the owned, materialized form of a cached role record.
type Role struct {
	ID          uint64
	Name        string
	Permissions uint64
	Position    int32
	Color       uint32
}

// RoleFromDiscord resolves a gateway role into the cached field subset.
func RoleFromDiscord(r *discordgo.Role) (*Role, error) {
	id, err := util.ParseSnowflake(r.ID)
	if err != nil {
		return nil, err
	}
	return &Role{
		ID:          id,
		Name:        r.Name,
		Permissions: uint64(r.Permissions),
		Position:    int32(r.Position),
		Color:       uint32(r.Color),
	}, nil
}

// MarshalRole serializes r into a new role record.
func MarshalRole(r *Role) []byte {
	w := acquire(KindRole, 0, roleFixedSize)
	w.putU64(roleOffID, r.ID)
	w.putU64(roleOffPerms, r.Permissions)
	w.putU32(roleOffPosition, uint32(r.Position))
	w.putU32(roleOffColor, r.Color)
	w.putString(roleOffName, r.Name)
	return w.finish()
}

// ArchivedRole is a validated, read-only view over role record bytes.
type ArchivedRole struct {
	buf []byte
}

// ViewRole validates buf once and returns the zero-copy view.
func ViewRole(buf []byte) (ArchivedRole, error) {
	if err := checkHeader(buf, KindRole, roleFixedSize); err != nil {
		return ArchivedRole{}, err
	}
	if err := checkStringRef(buf, roleOffName, roleFixedSize); err != nil {
		return ArchivedRole{}, err
	}
	return ArchivedRole{buf: buf}, nil
}

func (a ArchivedRole) Bytes() []byte { return a.buf }

func (a ArchivedRole) ID() uint64 { return u64(a.buf, roleOffID) }

func (a ArchivedRole) Permissions() uint64 { return u64(a.buf, roleOffPerms) }

func (a ArchivedRole) Position() int32 { return int32(u32(a.buf, roleOffPosition)) }

func (a ArchivedRole) Color() uint32 { return u32(a.buf, roleOffColor) }

func (a ArchivedRole) Name() string {
	s, _ := viewString(a.buf, roleOffName)
	return s
}

// Materialize converts the packed representation into an owned Role.
func (a ArchivedRole) Materialize() *Role {
	return &Role{
		ID:          a.ID(),
		Name:        strings.Clone(a.Name()),
		Permissions: a.Permissions(),
		Position:    a.Position(),
		Color:       a.Color(),
	}
}

// EqualRole reports whether the archived record already matches r.
func (a ArchivedRole) EqualRole(r *Role) bool {
	return a.ID() == r.ID &&
		a.Permissions() == r.Permissions &&
		a.Position() == r.Position &&
		a.Color() == r.Color &&
		a.Name() == r.Name
}

// RoleMut is a sealed mutable view restricted to fixed-width fields.
type RoleMut struct {
	buf []byte
}

// Mutate applies fixed-width field changes directly inside the record buffer
// and returns the updated bytes for write-back.
func (a ArchivedRole) Mutate(fn func(*RoleMut)) []byte {
	m := RoleMut{buf: a.buf}
	fn(&m)
	return a.buf
}

func (m *RoleMut) SetPermissions(p uint64) {
	binaryPutU64(m.buf, roleOffPerms, p)
}

func (m *RoleMut) SetPosition(p int32) {
	binaryPutU32(m.buf, roleOffPosition, uint32(p))
}

func (m *RoleMut) SetColor(c uint32) {
	binaryPutU32(m.buf, roleOffColor, c)
}
