package archive

import (
	"bytes"
	"reflect"
	"testing"
)

func mustHash(t *testing.T, s string) *ImageHash {
	t.Helper()
	h, err := ParseImageHash(s)
	if err != nil {
		t.Fatalf("ParseImageHash(%q): %v", s, err)
	}
	return h
}

func u64ptr(v uint64) *uint64 { return &v }

func strptr(s string) *string { return &s }

func TestGuildRoundTrip(t *testing.T) {
	cases := []*Guild{
		{
			ID:          414326541969227788,
			Name:        "test guild",
			Icon:        mustHash(t, "a_1234567890abcdef1234567890abcdef"),
			OwnerID:     297461183775948800,
			Permissions: u64ptr(0x3F7CC3),
		},
		{ID: 1, Name: ""},
		{ID: 2, Name: "no optionals", OwnerID: 3},
	}
	for _, g := range cases {
		buf := MarshalGuild(g)
		v, err := ViewGuild(buf)
		if err != nil {
			t.Fatalf("ViewGuild: %v", err)
		}
		if got := v.Materialize(); !reflect.DeepEqual(got, g) {
			t.Errorf("round trip of %+v = %+v", g, got)
		}
		if !v.EqualGuild(g) {
			t.Errorf("EqualGuild should match its own source %+v", g)
		}
	}
}

func TestGuildViewAccessors(t *testing.T) {
	g := &Guild{
		ID:          100,
		Name:        "accessors",
		Icon:        mustHash(t, "1234567890abcdef1234567890abcdef"),
		OwnerID:     200,
		Permissions: u64ptr(8),
	}
	v, err := ViewGuild(MarshalGuild(g))
	if err != nil {
		t.Fatalf("ViewGuild: %v", err)
	}
	if v.ID() != g.ID || v.Name() != g.Name || v.OwnerID() != g.OwnerID {
		t.Errorf("accessor mismatch: %d %q %d", v.ID(), v.Name(), v.OwnerID())
	}
	p, ok := v.Permissions()
	if !ok || p != 8 {
		t.Errorf("Permissions() = %d, %v", p, ok)
	}
	h, ok := v.Icon()
	if !ok || h != *g.Icon {
		t.Errorf("Icon() = %v, %v", h, ok)
	}
}

func TestGuildMutateMatchesRemarshal(t *testing.T) {
	g := &Guild{
		ID:          100,
		Name:        "stable name",
		Icon:        mustHash(t, "1234567890abcdef1234567890abcdef"),
		OwnerID:     200,
		Permissions: u64ptr(8),
	}
	buf := MarshalGuild(g)
	v, err := ViewGuild(buf)
	if err != nil {
		t.Fatalf("ViewGuild: %v", err)
	}

	newIcon := mustHash(t, "a_ffffffffffffffffffffffffffffffff")
	mutated := v.Mutate(func(m *GuildMut) {
		m.SetOwnerID(999)
		m.SetPermissions(nil)
		m.SetIcon(newIcon)
	})

	want := MarshalGuild(&Guild{
		ID:      100,
		Name:    "stable name",
		Icon:    newIcon,
		OwnerID: 999,
	})
	if !bytes.Equal(mutated, want) {
		t.Errorf("mutated bytes differ from full re-serialization\n got %x\nwant %x", mutated, want)
	}
}

func TestGuildEqualDetectsChanges(t *testing.T) {
	base := &Guild{ID: 1, Name: "n", OwnerID: 2, Permissions: u64ptr(4)}
	v, err := ViewGuild(MarshalGuild(base))
	if err != nil {
		t.Fatalf("ViewGuild: %v", err)
	}
	for _, g := range []*Guild{
		{ID: 1, Name: "other", OwnerID: 2, Permissions: u64ptr(4)},
		{ID: 1, Name: "n", OwnerID: 3, Permissions: u64ptr(4)},
		{ID: 1, Name: "n", OwnerID: 2, Permissions: u64ptr(5)},
		{ID: 1, Name: "n", OwnerID: 2},
		{ID: 1, Name: "n", OwnerID: 2, Permissions: u64ptr(4), Icon: mustHash(t, "1234567890abcdef1234567890abcdef")},
	} {
		if v.EqualGuild(g) {
			t.Errorf("EqualGuild should reject %+v", g)
		}
	}
}

func TestUserRoundTrip(t *testing.T) {
	cases := []*User{
		{ID: 1, Name: "someone", Avatar: mustHash(t, "1234567890abcdef1234567890abcdef"), Bot: true},
		{ID: 2, Name: "plain"},
	}
	for _, u := range cases {
		v, err := ViewUser(MarshalUser(u))
		if err != nil {
			t.Fatalf("ViewUser: %v", err)
		}
		if got := v.Materialize(); !reflect.DeepEqual(got, u) {
			t.Errorf("round trip of %+v = %+v", u, got)
		}
		if !v.EqualUser(u) {
			t.Errorf("EqualUser should match its own source %+v", u)
		}
	}
}

func TestUserMutateMatchesRemarshal(t *testing.T) {
	u := &User{ID: 7, Name: "keep", Avatar: mustHash(t, "1234567890abcdef1234567890abcdef")}
	v, err := ViewUser(MarshalUser(u))
	if err != nil {
		t.Fatalf("ViewUser: %v", err)
	}
	mutated := v.Mutate(func(m *UserMut) {
		m.SetAvatar(nil)
		m.SetBot(true)
	})
	want := MarshalUser(&User{ID: 7, Name: "keep", Bot: true})
	if !bytes.Equal(mutated, want) {
		t.Errorf("mutated bytes differ from full re-serialization")
	}
}

func TestCurrentUserRoundTrip(t *testing.T) {
	u := &CurrentUser{ID: 9, Name: "me", Avatar: mustHash(t, "a_1234567890abcdef1234567890abcdef")}
	v, err := ViewCurrentUser(MarshalCurrentUser(u))
	if err != nil {
		t.Fatalf("ViewCurrentUser: %v", err)
	}
	if got := v.Materialize(); !reflect.DeepEqual(got, u) {
		t.Errorf("round trip of %+v = %+v", u, got)
	}
	if !v.EqualCurrentUser(u) {
		t.Error("EqualCurrentUser should match its own source")
	}
}

func TestUserAndCurrentUserKindsDiffer(t *testing.T) {
	buf := MarshalUser(&User{ID: 1, Name: "x"})
	if _, err := ViewCurrentUser(buf); err != ErrKindMismatch {
		t.Errorf("ViewCurrentUser over user bytes = %v, want kind mismatch", err)
	}
}

func TestMemberRoundTrip(t *testing.T) {
	cases := []*Member{
		{
			UserID: 11,
			Nick:   strptr("nickname"),
			Avatar: mustHash(t, "1234567890abcdef1234567890abcdef"),
			Roles:  []uint64{3, 1, 2},
		},
		{UserID: 12},
		{UserID: 13, Roles: []uint64{5}},
	}
	for _, m := range cases {
		v, err := ViewMember(MarshalMember(m))
		if err != nil {
			t.Fatalf("ViewMember: %v", err)
		}
		if got := v.Materialize(); !reflect.DeepEqual(got, m) {
			t.Errorf("round trip of %+v = %+v", m, got)
		}
		if !v.EqualMember(m) {
			t.Errorf("EqualMember should match its own source %+v", m)
		}
		if v.NumRoles() != len(m.Roles) {
			t.Errorf("NumRoles() = %d, want %d", v.NumRoles(), len(m.Roles))
		}
	}
}

func TestMemberMutateRolesSameCardinality(t *testing.T) {
	m := &Member{UserID: 11, Nick: strptr("n"), Roles: []uint64{1, 2, 3}}
	v, err := ViewMember(MarshalMember(m))
	if err != nil {
		t.Fatalf("ViewMember: %v", err)
	}

	newAvatar := mustHash(t, "1234567890abcdef1234567890abcdef")
	mutated := v.Mutate(func(mm *MemberMut) {
		mm.SetAvatar(newAvatar)
		if !mm.SetRoles([]uint64{4, 5, 6}) {
			t.Error("SetRoles with equal cardinality should succeed")
		}
	})

	want := MarshalMember(&Member{UserID: 11, Nick: strptr("n"), Avatar: newAvatar, Roles: []uint64{4, 5, 6}})
	if !bytes.Equal(mutated, want) {
		t.Errorf("mutated bytes differ from full re-serialization")
	}
}

func TestMemberMutateRolesCardinalityMismatch(t *testing.T) {
	m := &Member{UserID: 11, Roles: []uint64{1, 2}}
	v, err := ViewMember(MarshalMember(m))
	if err != nil {
		t.Fatalf("ViewMember: %v", err)
	}
	v.Mutate(func(mm *MemberMut) {
		if mm.SetRoles([]uint64{1, 2, 3}) {
			t.Error("SetRoles with different cardinality should refuse")
		}
	})
}

func TestChannelRoundTrip(t *testing.T) {
	cases := []*Channel{
		{
			ID:      21,
			GuildID: 22,
			Type:    0,
			Name:    "general",
			Overwrites: []PermissionOverwrite{
				{ID: 1, Type: 0, Allow: 1024, Deny: 2048},
				{ID: 2, Type: 1, Allow: 0, Deny: 8},
			},
		},
		{ID: 23, Type: 1, Name: "dm"},
	}
	for _, ch := range cases {
		v, err := ViewChannel(MarshalChannel(ch))
		if err != nil {
			t.Fatalf("ViewChannel: %v", err)
		}
		if got := v.Materialize(); !reflect.DeepEqual(got, ch) {
			t.Errorf("round trip of %+v = %+v", ch, got)
		}
		if !v.EqualChannel(ch) {
			t.Errorf("EqualChannel should match its own source %+v", ch)
		}
	}
}

func TestChannelGuildIDNiche(t *testing.T) {
	v, err := ViewChannel(MarshalChannel(&Channel{ID: 1, Name: "dm"}))
	if err != nil {
		t.Fatalf("ViewChannel: %v", err)
	}
	if _, ok := v.GuildID(); ok {
		t.Error("guildless channel should report no guild id")
	}

	v, err = ViewChannel(MarshalChannel(&Channel{ID: 1, GuildID: 9, Name: "g"}))
	if err != nil {
		t.Fatalf("ViewChannel: %v", err)
	}
	if gid, ok := v.GuildID(); !ok || gid != 9 {
		t.Errorf("GuildID() = %d, %v", gid, ok)
	}
}

func TestRoleRoundTrip(t *testing.T) {
	r := &Role{ID: 31, Name: "admin", Permissions: 8, Position: -1, Color: 0xFF00FF}
	v, err := ViewRole(MarshalRole(r))
	if err != nil {
		t.Fatalf("ViewRole: %v", err)
	}
	if got := v.Materialize(); !reflect.DeepEqual(got, r) {
		t.Errorf("round trip of %+v = %+v", r, got)
	}
	if !v.EqualRole(r) {
		t.Error("EqualRole should match its own source")
	}
	if v.Position() != -1 {
		t.Errorf("Position() = %d, negative positions must survive", v.Position())
	}
}

func TestRoleMutateMatchesRemarshal(t *testing.T) {
	r := &Role{ID: 31, Name: "admin", Permissions: 8, Position: 1, Color: 7}
	v, err := ViewRole(MarshalRole(r))
	if err != nil {
		t.Fatalf("ViewRole: %v", err)
	}
	mutated := v.Mutate(func(m *RoleMut) {
		m.SetPermissions(1024)
		m.SetPosition(2)
		m.SetColor(0xABCDEF)
	})
	want := MarshalRole(&Role{ID: 31, Name: "admin", Permissions: 1024, Position: 2, Color: 0xABCDEF})
	if !bytes.Equal(mutated, want) {
		t.Errorf("mutated bytes differ from full re-serialization")
	}
}

func TestSessionsRoundTrip(t *testing.T) {
	sessions := map[uint64]ResumeSession{
		0: {SessionID: "abc123", Sequence: 42},
		3: {SessionID: "def456", Sequence: 7},
		1: {SessionID: "ghi789", Sequence: 100000},
	}
	v, err := ViewSessions(MarshalSessions(sessions))
	if err != nil {
		t.Fatalf("ViewSessions: %v", err)
	}
	if v.Len() != len(sessions) {
		t.Fatalf("Len() = %d, want %d", v.Len(), len(sessions))
	}
	if got := v.Materialize(); !reflect.DeepEqual(got, sessions) {
		t.Errorf("round trip = %+v, want %+v", got, sessions)
	}
}

func TestSessionsDeterministicBytes(t *testing.T) {
	a := map[uint64]ResumeSession{5: {SessionID: "s5", Sequence: 1}, 2: {SessionID: "s2", Sequence: 9}}
	b := map[uint64]ResumeSession{2: {SessionID: "s2", Sequence: 9}, 5: {SessionID: "s5", Sequence: 1}}
	if !bytes.Equal(MarshalSessions(a), MarshalSessions(b)) {
		t.Error("equal session maps should serialize to identical bytes")
	}
}

func TestGuildShardsRoundTrip(t *testing.T) {
	guilds := map[uint64]uint32{101: 0, 202: 1, 303: 0}
	v, err := ViewGuildShards(MarshalGuildShards(guilds))
	if err != nil {
		t.Fatalf("ViewGuildShards: %v", err)
	}
	if got := v.Materialize(); !reflect.DeepEqual(got, guilds) {
		t.Errorf("round trip = %+v, want %+v", got, guilds)
	}
}

func TestViewRejectsBadBuffers(t *testing.T) {
	good := MarshalGuild(&Guild{ID: 1, Name: "valid"})

	if _, err := ViewGuild(good[:3]); err != ErrTruncated {
		t.Errorf("truncated header = %v, want ErrTruncated", err)
	}
	if _, err := ViewGuild(good[:guildFixedSize-1]); err != ErrTruncated {
		t.Errorf("truncated fixed region = %v, want ErrTruncated", err)
	}

	wrongKind := bytes.Clone(good)
	wrongKind[0] = KindRole
	if _, err := ViewGuild(wrongKind); err != ErrKindMismatch {
		t.Errorf("wrong kind = %v, want ErrKindMismatch", err)
	}

	wrongVersion := bytes.Clone(good)
	wrongVersion[1] = 99
	if _, err := ViewGuild(wrongVersion); err != ErrVersion {
		t.Errorf("wrong version = %v, want ErrVersion", err)
	}

	badName := bytes.Clone(good)
	binaryPutU32(badName, guildOffName, uint32(len(badName)))
	if _, err := ViewGuild(badName); err != ErrBounds {
		t.Errorf("out-of-bounds string = %v, want ErrBounds", err)
	}
}

func TestViewRejectsBadArrays(t *testing.T) {
	good := MarshalMember(&Member{UserID: 1, Roles: []uint64{1, 2}})

	misaligned := bytes.Clone(good)
	binaryPutU32(misaligned, memberOffRoles, u32(misaligned, memberOffRoles)+1)
	if _, err := ViewMember(misaligned); err != ErrAlignment {
		t.Errorf("misaligned array = %v, want ErrAlignment", err)
	}

	overflow := bytes.Clone(good)
	binaryPutU32(overflow, memberOffRoles+4, 1<<20)
	if _, err := ViewMember(overflow); err != ErrBounds {
		t.Errorf("overflowing array = %v, want ErrBounds", err)
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	g := &Guild{ID: 5, Name: "same", OwnerID: 6, Icon: mustHash(t, "1234567890abcdef1234567890abcdef")}
	if !bytes.Equal(MarshalGuild(g), MarshalGuild(g)) {
		t.Error("repeated serialization of identical input should produce identical bytes")
	}
}
