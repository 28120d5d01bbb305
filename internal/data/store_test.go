package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "botto.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedApp(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertApp(ctx, &domain.App{ID: "app1", Name: "Botto", BetaGroupID: "group1", BetaOpen: true, DistributionKeyID: "key1"}))
	require.NoError(t, s.UpsertApp(ctx, &domain.App{ID: "app2", Name: "Botto Pro", BetaGroupID: "group2", DistributionKeyID: "key1"}))
	_, err := s.UpsertReactionRole(ctx, &domain.ReactionRole{
		GuildID: "g1", MessageID: "roles", Emoji: "🤖", RoleID: "role1", AppIDs: []string{"app1"},
	})
	require.NoError(t, err)
}

func TestStore_UpsertTesterIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	clock := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time { return clock }

	created, err := s.UpsertTester(ctx, &domain.Tester{DiscordID: "u1", Username: "tess"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	clock = clock.Add(time.Hour)
	again, err := s.UpsertTester(ctx, &domain.Tester{DiscordID: "u1", Username: "tess"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.True(t, again.UpdatedAt.Equal(created.UpdatedAt), "unchanged upsert must not write")

	again.Email = "tess@example.com"
	updated, err := s.UpsertTester(ctx, again)
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.Equal(clock))

	found, err := s.FindTester(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "tess@example.com", found.Email)

	missing, err := s.FindTester(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_FindTesterByLeaveMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertTester(ctx, &domain.Tester{DiscordID: "u1", LeaveMessageIDs: []string{"leave1", "leave2"}})
	require.NoError(t, err)

	found, err := s.FindTesterByLeaveMessage(ctx, "leave2")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "u1", found.DiscordID)

	found, err = s.FindTesterByLeaveMessage(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestStore_Requests(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedApp(t, s)
	clock := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	tester, err := s.UpsertTester(ctx, &domain.Tester{DiscordID: "u1"})
	require.NoError(t, err)

	first, err := s.AddRequest(ctx, &domain.TestingRequest{TesterID: tester.ID, TesterDiscordID: "u1", AppID: "app1", ServerID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusPending, first.Status)
	assert.Equal(t, "Botto", first.AppName)
	assert.Equal(t, []string{"role1"}, first.AppRoleIDs)

	second, err := s.AddRequest(ctx, &domain.TestingRequest{TesterID: tester.ID, TesterDiscordID: "u1", AppID: "app2", Status: domain.RequestStatusApproved})
	require.NoError(t, err)
	_, err = s.AddRequest(ctx, &domain.TestingRequest{TesterID: "t2", TesterDiscordID: "u2", AppID: "app1"})
	require.NoError(t, err)

	got, err := s.ListRequests(ctx, domain.RequestFilter{TesterDiscordID: "u1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID, "oldest first")

	got, err = s.ListRequests(ctx, domain.RequestFilter{AppIDs: []string{"app1"}})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListRequests(ctx, domain.RequestFilter{TesterDiscordID: "u1", Approval: domain.ApprovalFilterApproved})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, second.ID, got[0].ID)

	second.Removed = true
	first.RecordNotification("n1")
	first.RecordNotification("n2")
	first.ApprovalChannelID = "approvals"
	require.NoError(t, s.UpdateRequests(ctx, []*domain.TestingRequest{first, second}))

	got, err = s.ListRequests(ctx, domain.RequestFilter{TesterDiscordID: "u1", ExcludeRemoved: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)

	byCopy, err := s.FetchRequestByMessage(ctx, "n2")
	require.NoError(t, err)
	require.NotNil(t, byCopy)
	assert.Equal(t, first.ID, byCopy.ID)
	assert.Equal(t, []string{"n2"}, byCopy.FurtherNotificationMessageIDs)

	byPrimary, err := s.FetchRequestByMessage(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byPrimary.ID)

	none, err := s.FetchRequestByMessage(ctx, "n3")
	require.NoError(t, err)
	assert.Nil(t, none)

	channels, err := s.ListApprovalChannelIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"approvals"}, channels)
}

func TestStore_AppsAndRoles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedApp(t, s)

	app, err := s.FetchApp(ctx, "app1")
	require.NoError(t, err)
	assert.True(t, app.BetaOpen)
	assert.Equal(t, []string{"role1"}, app.RoleIDs)

	apps, err := s.FindAppsByBetaGroup(ctx, "group1", "group2", "group9")
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "app1", apps[0].ID)
	assert.False(t, apps[1].BetaOpen)

	rr, err := s.GetReactionRole(ctx, "g1", "roles", "🤖")
	require.NoError(t, err)
	require.NotNil(t, rr)
	assert.Equal(t, []string{"app1"}, rr.AppIDs)

	// Re-seeding replaces the app list in place
	_, err = s.UpsertReactionRole(ctx, &domain.ReactionRole{
		GuildID: "g1", MessageID: "roles", Emoji: "🤖", RoleID: "role1", AppIDs: []string{"app2", "app1"},
	})
	require.NoError(t, err)
	again, err := s.GetReactionRole(ctx, "g1", "roles", "🤖")
	require.NoError(t, err)
	assert.Equal(t, rr.ID, again.ID)
	assert.Equal(t, []string{"app2", "app1"}, again.AppIDs)

	missing, err := s.GetReactionRole(ctx, "g1", "roles", "🎉")
	require.NoError(t, err)
	assert.Nil(t, missing)

	watched, err := s.ListWatchedMessageIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"roles"}, watched)
}

func TestStore_GuildConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.GetGuildConfig(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, &domain.GuildConfig{GuildID: "g1"}, empty)

	require.NoError(t, s.SetGuildConfigValue(ctx, "g1", domain.ConfigKeyApprovalEmojis, []string{"👍", "✅"}))
	require.NoError(t, s.SetGuildConfigValue(ctx, "g1", domain.ConfigKeyDefaultApprovalsChannel, "approvals"))
	require.NoError(t, s.SetGuildConfigValue(ctx, "g1", domain.ConfigKeyRuleAgreementMessage,
		domain.AgreementMessage{ChannelID: "rules", MessageID: "m1"}))
	require.NoError(t, s.SetGuildConfigValue(ctx, "g1", domain.ConfigKeyDefaultApprovalsChannel, "approvals2"))

	cfg, err := s.GetGuildConfig(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, cfg.IsApprovalEmoji("✅"))
	assert.Equal(t, "approvals2", cfg.DefaultApprovalsChannelID)
	assert.Equal(t, &domain.AgreementMessage{ChannelID: "rules", MessageID: "m1"}, cfg.RuleAgreementMessage)

	channels, err := s.ListApprovalChannelIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"approvals2"}, channels)
}

func TestStore_DistributionKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDistributionKey(ctx, &domain.DistributionKey{ID: "key1", IssuerID: "iss", KeyID: "kid", PrivateKey: "pem"}))

	k, err := s.GetDistributionKey(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, "kid", k.KeyID)

	missing, err := s.GetDistributionKey(ctx, "key2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
