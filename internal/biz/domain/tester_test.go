package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTester_SameFields(t *testing.T) {
	a := &Tester{ID: "rec1", DiscordID: "1", Username: "tess", Email: "t@example.com", UpdatedAt: time.Now()}
	b := &Tester{ID: "rec2", DiscordID: "1", Username: "tess", Email: "t@example.com"}
	assert.True(t, a.SameFields(b), "record ID and timestamps are ignored")

	b.LeaveMessageIDs = []string{"m1"}
	assert.False(t, a.SameFields(b))
}

func TestTester_Names(t *testing.T) {
	tester := &Tester{GivenName: "Tess", FamilyName: "Ter"}
	assert.Equal(t, "Tess Ter", tester.FullName())
	assert.False(t, tester.HasEmail())

	tester.Email = "  "
	assert.False(t, tester.HasEmail())
}

func TestMember_MissingRoles(t *testing.T) {
	m := &Member{UserID: "1", RoleIDs: []string{"a", "b"}}
	assert.Equal(t, []string{"c"}, m.MissingRoles([]string{"a", "c"}))
	assert.True(t, m.HasAllRoles([]string{"b", "a"}))
	assert.Equal(t, "<@1>", m.Mention())
}

func TestEventKeys(t *testing.T) {
	ev := &ReactionEvent{GuildID: "g", ChannelID: "c", MessageID: "m", UserID: "u", Emoji: "👍"}
	assert.Equal(t, "reaction:g:c:m:u:👍", ev.Key())

	leave := &MemberLeaveEvent{GuildID: "g", UserID: "u"}
	assert.Equal(t, "leave:g:u", leave.Key())
}
