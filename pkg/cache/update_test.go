package cache

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func rawRecord(t *testing.T, mr interface{ Get(string) (string, error) }, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	return v
}

func TestUpdateGuildSkipsEqualRecord(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	g := &discordgo.Guild{ID: "100", Name: "g", OwnerID: "200"}
	if _, _, err := c.UpdateGuild(ctx, g); err != nil {
		t.Fatalf("UpdateGuild: %v", err)
	}
	before := rawRecord(t, mr, "GUILD:100")

	res, change, err := c.UpdateGuild(ctx, g)
	if err != nil {
		t.Fatalf("UpdateGuild: %v", err)
	}
	if res != UpdateUnchanged {
		t.Errorf("result = %v, want UpdateUnchanged", res)
	}
	if !change.IsZero() {
		t.Errorf("change = %+v, want zero", change)
	}
	if after := rawRecord(t, mr, "GUILD:100"); after != before {
		t.Error("an unchanged update must not rewrite the record")
	}
}

func TestUpdateGuildMissingStoresWhole(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	res, change, err := c.UpdateGuild(ctx, &discordgo.Guild{ID: "100", Name: "g", OwnerID: "200"})
	if err != nil {
		t.Fatalf("UpdateGuild: %v", err)
	}
	if res != UpdateMissing {
		t.Errorf("result = %v, want UpdateMissing", res)
	}
	if change.Guilds != 1 {
		t.Errorf("change = %+v", change)
	}
	if _, ok, _ := c.Guild(ctx, 100); !ok {
		t.Error("guild record should exist after a missing update")
	}
}

func TestUpdateGuildPatchesFixedFields(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if _, _, err := c.UpdateGuild(ctx, &discordgo.Guild{ID: "100", Name: "keep", OwnerID: "200"}); err != nil {
		t.Fatalf("UpdateGuild: %v", err)
	}
	res, _, err := c.UpdateGuild(ctx, &discordgo.Guild{ID: "100", Name: "keep", OwnerID: "999"})
	if err != nil {
		t.Fatalf("UpdateGuild: %v", err)
	}
	if res != UpdateChanged {
		t.Errorf("result = %v, want UpdateChanged", res)
	}

	g, ok, err := c.Guild(ctx, 100)
	if err != nil || !ok {
		t.Fatalf("Guild: ok=%v err=%v", ok, err)
	}
	if g.OwnerID() != 999 || g.Name() != "keep" {
		t.Errorf("record after patch: owner=%d name=%q", g.OwnerID(), g.Name())
	}
}

func TestUpdateGuildRewritesOnRename(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if _, _, err := c.UpdateGuild(ctx, &discordgo.Guild{ID: "100", Name: "old", OwnerID: "200"}); err != nil {
		t.Fatalf("UpdateGuild: %v", err)
	}
	res, _, err := c.UpdateGuild(ctx, &discordgo.Guild{ID: "100", Name: "renamed", OwnerID: "200"})
	if err != nil {
		t.Fatalf("UpdateGuild: %v", err)
	}
	if res != UpdateChanged {
		t.Errorf("result = %v, want UpdateChanged", res)
	}

	g, ok, err := c.Guild(ctx, 100)
	if err != nil || !ok {
		t.Fatalf("Guild: ok=%v err=%v", ok, err)
	}
	if g.Name() != "renamed" {
		t.Errorf("name = %q", g.Name())
	}
}

func TestUpdateMemberLadder(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	dm := &discordgo.Member{
		User:  &discordgo.User{ID: "400", Username: "someone"},
		Nick:  "nick",
		Roles: []string{"1", "2"},
	}

	res, _, err := c.UpdateMember(ctx, 100, dm)
	if err != nil {
		t.Fatalf("UpdateMember: %v", err)
	}
	if res != UpdateMissing {
		t.Errorf("first update = %v, want UpdateMissing", res)
	}

	before := rawRecord(t, mr, "MEMBER:100:400")
	res, _, err = c.UpdateMember(ctx, 100, dm)
	if err != nil {
		t.Fatalf("UpdateMember: %v", err)
	}
	if res != UpdateUnchanged {
		t.Errorf("equal update = %v, want UpdateUnchanged", res)
	}
	if rawRecord(t, mr, "MEMBER:100:400") != before {
		t.Error("unchanged member update must not rewrite the record")
	}

	// Same nickname and role count patches in place.
	dm.Roles = []string{"3", "4"}
	res, _, err = c.UpdateMember(ctx, 100, dm)
	if err != nil {
		t.Fatalf("UpdateMember: %v", err)
	}
	if res != UpdateChanged {
		t.Errorf("role swap = %v, want UpdateChanged", res)
	}
	m, ok, err := c.Member(ctx, 100, 400)
	if err != nil || !ok {
		t.Fatalf("Member: ok=%v err=%v", ok, err)
	}
	if roles := m.Roles(); len(roles) != 2 || roles[0] != 3 || roles[1] != 4 {
		t.Errorf("roles after patch = %v", roles)
	}

	// A nickname change forces a rewrite.
	dm.Nick = ""
	res, _, err = c.UpdateMember(ctx, 100, dm)
	if err != nil {
		t.Fatalf("UpdateMember: %v", err)
	}
	if res != UpdateChanged {
		t.Errorf("nick change = %v, want UpdateChanged", res)
	}
	m, _, _ = c.Member(ctx, 100, 400)
	if _, ok := m.Nick(); ok {
		t.Error("nickname should be gone after the rewrite")
	}
}

func TestUpdateUserLadder(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	du := &discordgo.User{ID: "400", Username: "someone"}
	if res, _, err := c.UpdateUser(ctx, du); err != nil || res != UpdateMissing {
		t.Fatalf("first update = %v, %v", res, err)
	}

	before := rawRecord(t, mr, "USER:400")
	if res, _, err := c.UpdateUser(ctx, du); err != nil || res != UpdateUnchanged {
		t.Fatalf("equal update = %v, %v", res, err)
	}
	if rawRecord(t, mr, "USER:400") != before {
		t.Error("unchanged user update must not rewrite the record")
	}

	du.Avatar = "1234567890abcdef1234567890abcdef"
	if res, _, err := c.UpdateUser(ctx, du); err != nil || res != UpdateChanged {
		t.Fatalf("avatar update = %v, %v", res, err)
	}
	u, ok, err := c.User(ctx, 400)
	if err != nil || !ok {
		t.Fatalf("User: ok=%v err=%v", ok, err)
	}
	if _, hasAvatar := u.Avatar(); !hasAvatar {
		t.Error("avatar should be set after the patch")
	}
	if u.Name() != "someone" {
		t.Errorf("name = %q", u.Name())
	}
}

func TestUpdateCorruptRecordIsOverwritten(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	mr.Set("USER:400", "garbage")
	res, _, err := c.UpdateUser(ctx, &discordgo.User{ID: "400", Username: "someone"})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if res != UpdateMissing {
		t.Errorf("result = %v, want UpdateMissing", res)
	}
	if _, ok, _ := c.User(ctx, 400); !ok {
		t.Error("corrupt record should have been replaced")
	}
}

func TestUpdateDispatch(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if change := c.Update(ctx, &discordgo.GuildCreate{Guild: testGuild()}); change == nil {
		t.Fatal("GuildCreate should be handled")
	}
	if _, ok, _ := c.Guild(ctx, 100); !ok {
		t.Error("guild should be cached after GuildCreate")
	}

	if change := c.Update(ctx, &discordgo.ChannelCreate{Channel: &discordgo.Channel{ID: "700", GuildID: "100", Name: "new"}}); change == nil {
		t.Fatal("ChannelCreate should be handled")
	}
	if _, ok, _ := c.Channel(ctx, 100, 700); !ok {
		t.Error("channel should be cached after ChannelCreate")
	}

	if change := c.Update(ctx, &discordgo.GuildRoleCreate{GuildRole: &discordgo.GuildRole{GuildID: "100", Role: &discordgo.Role{ID: "800", Name: "mod"}}}); change == nil {
		t.Fatal("GuildRoleCreate should be handled")
	}
	if _, ok, _ := c.Role(ctx, 100, 800); !ok {
		t.Error("role should be cached after GuildRoleCreate")
	}

	if change := c.Update(ctx, &discordgo.GuildRoleDelete{GuildID: "100", RoleID: "800"}); change == nil {
		t.Fatal("GuildRoleDelete should be handled")
	}
	if _, ok, _ := c.Role(ctx, 100, 800); ok {
		t.Error("role should be gone after GuildRoleDelete")
	}

	if change := c.Update(ctx, &discordgo.GuildMemberRemove{Member: &discordgo.Member{GuildID: "100", User: &discordgo.User{ID: "400"}}}); change == nil {
		t.Fatal("GuildMemberRemove should be handled")
	}
	if _, ok, _ := c.Member(ctx, 100, 400); ok {
		t.Error("member should be gone after GuildMemberRemove")
	}

	// Events the cache does not track return nil.
	if change := c.Update(ctx, &discordgo.TypingStart{}); change != nil {
		t.Errorf("TypingStart should be ignored, got %+v", change)
	}
}

func TestUpdateReadyCachesCurrentUserAndUnavailableGuilds(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	ready := &discordgo.Ready{
		User: &discordgo.User{ID: "1", Username: "self"},
		Guilds: []*discordgo.Guild{
			{ID: "100", Unavailable: true},
			{ID: "101", Unavailable: true},
		},
	}
	if change := c.Update(ctx, ready); change == nil {
		t.Fatal("Ready should be handled")
	}

	if _, ok, _ := c.CurrentUser(ctx); !ok {
		t.Error("current user should be cached after Ready")
	}
	ids1, err1 := c.UnavailableGuildIDs(ctx)
	ids := sortedIDs(t, ids1, err1)
	if len(ids) != 2 {
		t.Errorf("UnavailableGuildIDs = %v", ids)
	}
	if stats := c.Stats(); stats.UnavailableGuilds != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestUpdateMessageCachesAuthor(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	msg := &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:      "900",
		GuildID: "100",
		Author:  &discordgo.User{ID: "400", Username: "someone"},
		Member:  &discordgo.Member{Nick: "nick", Roles: []string{"1"}},
	}}
	if change := c.Update(ctx, msg); change == nil {
		t.Fatal("MessageCreate with member should be handled")
	}

	if _, ok, _ := c.User(ctx, 400); !ok {
		t.Error("author should be cached")
	}
	m, ok, err := c.Member(ctx, 100, 400)
	if err != nil || !ok {
		t.Fatalf("Member: ok=%v err=%v", ok, err)
	}
	if nick, ok := m.Nick(); !ok || nick != "nick" {
		t.Errorf("Nick() = %q, %v", nick, ok)
	}
}
