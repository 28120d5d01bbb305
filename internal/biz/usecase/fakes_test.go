package usecase

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
)

// fakeStore is an in-memory record store. It hands out copies so callers
// see the same isolation a real store gives.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int
	testers  map[string]*domain.Tester
	requests []*domain.TestingRequest
	apps     map[string]*domain.App
	roles    []*domain.ReactionRole
	guilds   map[string]*domain.GuildConfig

	testerWrites int
	updateErr    error
	listCalls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		testers: make(map[string]*domain.Tester),
		apps:    make(map[string]*domain.App),
		guilds:  make(map[string]*domain.GuildConfig),
	}
}

func (s *fakeStore) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s%d", prefix, s.nextID)
}

func cloneTester(t *domain.Tester) *domain.Tester {
	c := *t
	c.LeaveMessageIDs = slices.Clone(t.LeaveMessageIDs)
	return &c
}

func cloneRequest(r *domain.TestingRequest) *domain.TestingRequest {
	c := *r
	c.AppRoleIDs = slices.Clone(r.AppRoleIDs)
	c.FurtherNotificationMessageIDs = slices.Clone(r.FurtherNotificationMessageIDs)
	return &c
}

func (s *fakeStore) FindTester(ctx context.Context, discordID string) (*domain.Tester, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.testers[discordID]; ok {
		return cloneTester(t), nil
	}
	return nil, nil
}

func (s *fakeStore) FetchTester(ctx context.Context, id string) (*domain.Tester, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.testers {
		if t.ID == id {
			return cloneTester(t), nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindTesterByLeaveMessage(ctx context.Context, messageID string) (*domain.Tester, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.testers {
		if t.HasLeaveMessage(messageID) {
			return cloneTester(t), nil
		}
	}
	return nil, nil
}

func (s *fakeStore) UpsertTester(ctx context.Context, tester *domain.Tester) (*domain.Tester, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.testers[tester.DiscordID]; ok {
		if existing.SameFields(tester) {
			return cloneTester(existing), nil
		}
		c := cloneTester(tester)
		c.ID = existing.ID
		s.testers[tester.DiscordID] = c
		s.testerWrites++
		return cloneTester(c), nil
	}
	c := cloneTester(tester)
	c.ID = s.id("tester")
	s.testers[tester.DiscordID] = c
	s.testerWrites++
	return cloneTester(c), nil
}

func (s *fakeStore) withApp(r *domain.TestingRequest) *domain.TestingRequest {
	c := cloneRequest(r)
	if app, ok := s.apps[c.AppID]; ok {
		c.AppName = app.Name
		c.AppRoleIDs = slices.Clone(app.RoleIDs)
	}
	return c
}

func (s *fakeStore) ListRequests(ctx context.Context, f domain.RequestFilter) ([]*domain.TestingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var out []*domain.TestingRequest
	for _, r := range s.requests {
		if f.TesterDiscordID != "" && r.TesterDiscordID != f.TesterDiscordID {
			continue
		}
		if len(f.AppIDs) > 0 && !slices.Contains(f.AppIDs, r.AppID) {
			continue
		}
		if f.Approval != domain.ApprovalFilterAll && string(r.Status) != string(f.Approval) {
			continue
		}
		if f.ExcludeRemoved && r.Removed {
			continue
		}
		out = append(out, s.withApp(r))
	}
	return out, nil
}

func (s *fakeStore) AddRequest(ctx context.Context, request *domain.TestingRequest) (*domain.TestingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneRequest(request)
	c.ID = s.id("req")
	c.Created = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.requests = append(s.requests, c)
	return s.withApp(c), nil
}

func (s *fakeStore) FetchRequest(ctx context.Context, id string) (*domain.TestingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.ID == id {
			return s.withApp(r), nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FetchRequestByMessage(ctx context.Context, messageID string) (*domain.TestingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.NotificationMessageID == messageID || slices.Contains(r.FurtherNotificationMessageIDs, messageID) {
			return s.withApp(r), nil
		}
	}
	return nil, nil
}

func (s *fakeStore) UpdateRequest(ctx context.Context, request *domain.TestingRequest) error {
	return s.UpdateRequests(ctx, []*domain.TestingRequest{request})
}

func (s *fakeStore) UpdateRequests(ctx context.Context, requests []*domain.TestingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return domain.NewStoreError("update requests", s.updateErr)
	}
	for _, req := range requests {
		for i, r := range s.requests {
			if r.ID == req.ID {
				s.requests[i] = cloneRequest(req)
			}
		}
	}
	return nil
}

func (s *fakeStore) FetchApp(ctx context.Context, id string) (*domain.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if app, ok := s.apps[id]; ok {
		c := *app
		return &c, nil
	}
	return nil, nil
}

func (s *fakeStore) FindAppsByBetaGroup(ctx context.Context, groupIDs ...string) ([]*domain.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.App
	for _, id := range slices.Sorted(maps.Keys(s.apps)) {
		app := s.apps[id]
		if slices.Contains(groupIDs, app.BetaGroupID) {
			c := *app
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *fakeStore) GetReactionRole(ctx context.Context, guildID, messageID, emoji string) (*domain.ReactionRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.GuildID == guildID && r.MessageID == messageID && r.Emoji == emoji {
			c := *r
			return &c, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListWatchedMessageIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, r := range s.roles {
		ids = append(ids, r.MessageID)
	}
	return ids, nil
}

func (s *fakeStore) ListApprovalChannelIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, r := range s.requests {
		if r.ApprovalChannelID != "" {
			ids = append(ids, r.ApprovalChannelID)
		}
	}
	return ids, nil
}

func (s *fakeStore) GetGuildConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg, ok := s.guilds[guildID]; ok {
		c := *cfg
		return &c, nil
	}
	return &domain.GuildConfig{GuildID: guildID}, nil
}

func (s *fakeStore) request(id string) *domain.TestingRequest {
	r, _ := s.FetchRequest(context.Background(), id)
	return r
}

type sentMessage struct {
	ChannelID string // Empty for direct messages
	UserID    string // Recipient of a direct message
	ID        string
	Msg       domain.OutgoingMessage
}

type roleGrant struct {
	UserID  string
	RoleIDs []string
}

// fakeChat records everything sent and keeps messages with their
// reactions in memory
type fakeChat struct {
	mu       sync.Mutex
	nextID   int
	now      func() time.Time
	messages map[string]*domain.Message
	cached   map[string]bool
	members  map[string]*domain.Member
	sent     []sentMessage
	grants   []roleGrant

	fetches     int
	reactionErr error
	dmErr       error
}

func newFakeChat(now func() time.Time) *fakeChat {
	return &fakeChat{
		now:      now,
		messages: make(map[string]*domain.Message),
		cached:   make(map[string]bool),
		members:  make(map[string]*domain.Member),
	}
}

func (c *fakeChat) BotUserID() string { return "bot" }

func (c *fakeChat) copyMessage(m *domain.Message) *domain.Message {
	cp := *m
	cp.Reactions = slices.Clone(m.Reactions)
	return &cp
}

func (c *fakeChat) CachedMessage(channelID, messageID string) (*domain.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.messages[messageID]
	if !ok || !c.cached[messageID] {
		return nil, false
	}
	return c.copyMessage(m), true
}

func (c *fakeChat) FetchMessage(ctx context.Context, channelID, messageID string) (*domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches++
	m, ok := c.messages[messageID]
	if !ok {
		return nil, errors.New("unknown message")
	}
	return c.copyMessage(m), nil
}

func (c *fakeChat) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reactionErr != nil {
		return c.reactionErr
	}
	m, ok := c.messages[messageID]
	if !ok {
		return errors.New("unknown message")
	}
	for i := range m.Reactions {
		if m.Reactions[i].Emoji == emoji {
			if !m.Reactions[i].Me {
				m.Reactions[i].Me = true
				m.Reactions[i].Count++
			}
			return nil
		}
	}
	m.Reactions = append(m.Reactions, domain.Reaction{Emoji: emoji, Count: 1, Me: true})
	return nil
}

func (c *fakeChat) RemoveOwnReaction(ctx context.Context, channelID, messageID, emoji string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.messages[messageID]
	if !ok {
		return errors.New("unknown message")
	}
	m.Reactions = slices.DeleteFunc(m.Reactions, func(r domain.Reaction) bool {
		return r.Emoji == emoji && r.Me && r.Count == 1
	})
	return nil
}

func (c *fakeChat) store(channelID, userID string, msg domain.OutgoingMessage) *domain.Message {
	c.nextID++
	m := &domain.Message{
		ID:        fmt.Sprintf("msg%d", c.nextID),
		ChannelID: channelID,
		AuthorID:  "bot",
		Content:   msg.Content,
		CreatedAt: c.now(),
	}
	c.messages[m.ID] = m
	c.sent = append(c.sent, sentMessage{ChannelID: channelID, UserID: userID, ID: m.ID, Msg: msg})
	return c.copyMessage(m)
}

func (c *fakeChat) SendMessage(ctx context.Context, channelID string, msg domain.OutgoingMessage) (*domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store(channelID, "", msg), nil
}

func (c *fakeChat) SendDirectMessage(ctx context.Context, userID string, msg domain.OutgoingMessage) (*domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dmErr != nil {
		return nil, c.dmErr
	}
	return c.store("", userID, msg), nil
}

func (c *fakeChat) DirectMessage(ctx context.Context, userID, messageID string) (*domain.Message, error) {
	return c.FetchMessage(ctx, "", messageID)
}

func (c *fakeChat) GetMember(ctx context.Context, guildID, userID string) (*domain.Member, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.members[userID]; ok {
		cp := *m
		cp.RoleIDs = slices.Clone(m.RoleIDs)
		return &cp, nil
	}
	return nil, nil
}

func (c *fakeChat) AddRoles(ctx context.Context, guildID, userID string, roleIDs []string, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grants = append(c.grants, roleGrant{UserID: userID, RoleIDs: slices.Clone(roleIDs)})
	if m, ok := c.members[userID]; ok {
		m.RoleIDs = append(m.RoleIDs, roleIDs...)
	}
	return nil
}

func (c *fakeChat) MessageURL(ref domain.MessageRef) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", ref.GuildID, ref.ChannelID, ref.MessageID)
}

func (c *fakeChat) channelMessages(channelID string) []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentMessage
	for _, s := range c.sent {
		if s.ChannelID == channelID && s.UserID == "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *fakeChat) directMessages(userID string) []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentMessage
	for _, s := range c.sent {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

func (c *fakeChat) reactions(messageID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	if m, ok := c.messages[messageID]; ok {
		for _, r := range m.Reactions {
			if r.Me {
				out = append(out, r.Emoji)
			}
		}
	}
	return out
}

// fakeDistribution keeps beta testers in memory
type fakeDistribution struct {
	mu      sync.Mutex
	nextID  int
	testers []domain.BetaTester
	created []string
	deleted []string
	removed []string

	findErr   error
	createErr error
}

func (d *fakeDistribution) FindBetaTesters(ctx context.Context, email string, app *domain.App) ([]domain.BetaTester, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.findErr != nil {
		return nil, d.findErr
	}
	var out []domain.BetaTester
	for _, bt := range d.testers {
		if bt.Email != email {
			continue
		}
		if app != nil && !slices.Contains(bt.BetaGroupIDs, app.BetaGroupID) {
			continue
		}
		bt.BetaGroupIDs = slices.Clone(bt.BetaGroupIDs)
		out = append(out, bt)
	}
	return out, nil
}

func (d *fakeDistribution) CreateBetaTester(ctx context.Context, app *domain.App, email, givenName, familyName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.createErr != nil {
		return d.createErr
	}
	d.created = append(d.created, app.ID+":"+email)
	for i, bt := range d.testers {
		if bt.Email == email {
			d.testers[i].BetaGroupIDs = append(d.testers[i].BetaGroupIDs, app.BetaGroupID)
			return nil
		}
	}
	d.nextID++
	d.testers = append(d.testers, domain.BetaTester{
		ID:           fmt.Sprintf("bt%d", d.nextID),
		Email:        email,
		BetaGroupIDs: []string{app.BetaGroupID},
	})
	return nil
}

func (d *fakeDistribution) RemoveFromBetaGroup(ctx context.Context, app *domain.App, testerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removed = append(d.removed, app.BetaGroupID+":"+testerID)
	return nil
}

func (d *fakeDistribution) DeleteBetaTester(ctx context.Context, app *domain.App, testerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted = append(d.deleted, app.DistributionKeyID+":"+testerID)
	return nil
}

// Fixture identifiers
const (
	guildID          = "guild1"
	approvalsChannel = "approvals"
	exitChannel      = "exits"
	rolesMessage     = "roles-msg"
	testerUserID     = "user1"
	reviewerUserID   = "reviewer"
	appRole          = "role-app1"
)

type testEnv struct {
	uc    *ReactionRoleUsecase
	store *fakeStore
	chat  *fakeChat
	dist  *fakeDistribution
	now   time.Time
}

func (e *testEnv) advance(d time.Duration) { e.now = e.now.Add(d) }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store: newFakeStore(),
		dist:  &fakeDistribution{},
		now:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }
	env.chat = newFakeChat(clock)

	env.store.apps["app1"] = &domain.App{
		ID: "app1", Name: "Botto", BetaGroupID: "group1", BetaOpen: true,
		DistributionKeyID: "key1", RoleIDs: []string{appRole},
	}
	env.store.roles = append(env.store.roles, &domain.ReactionRole{
		ID: "rr1", GuildID: guildID, MessageID: rolesMessage, Emoji: "🤖",
		RoleID: appRole, AppIDs: []string{"app1"},
	})
	env.store.guilds[guildID] = &domain.GuildConfig{
		GuildID:                         guildID,
		ApprovalEmojis:                  []string{"👍"},
		RejectionEmojis:                 []string{"👎"},
		RemovalEmojis:                   []string{"🗑️"},
		DefaultApprovalsChannelID:       approvalsChannel,
		TesterExitNotificationChannelID: exitChannel,
	}
	env.chat.members[testerUserID] = &domain.Member{UserID: testerUserID, Name: "tess"}

	cache := NewConfigCache(env.store, time.Minute, nil)
	cache.now = clock
	env.uc = NewReactionRoleUsecase(env.store, env.store, env.chat, env.dist, cache, DefaultReactionRoleConfig(), nil)
	env.uc.now = clock
	return env
}

// registerTester stores the tester with an email on file
func (e *testEnv) registerTester(t *testing.T) *domain.Tester {
	t.Helper()
	tester, err := e.store.UpsertTester(context.Background(), &domain.Tester{
		DiscordID: testerUserID, Username: "tess", Email: "tess@example.com",
		GivenName: "Tess", FamilyName: "Ter",
	})
	if err != nil {
		t.Fatalf("UpsertTester failed: %v", err)
	}
	return tester
}

func (e *testEnv) roleReaction() *domain.ReactionEvent {
	return &domain.ReactionEvent{
		UserID: testerUserID, MessageID: rolesMessage, ChannelID: "roles", GuildID: guildID, Emoji: "🤖",
		Member: &domain.Member{UserID: testerUserID, Name: "tess"},
	}
}

func (e *testEnv) reviewReaction(messageID, emoji string) *domain.ReactionEvent {
	return &domain.ReactionEvent{
		UserID: reviewerUserID, MessageID: messageID, ChannelID: approvalsChannel, GuildID: guildID, Emoji: emoji,
		Member: &domain.Member{UserID: reviewerUserID, Name: "rev"},
	}
}

func (e *testEnv) reactionRole(t *testing.T) *domain.ReactionRole {
	t.Helper()
	role, err := e.uc.ReactionRole(context.Background(), e.roleReaction())
	if err != nil || role == nil {
		t.Fatalf("ReactionRole = %v, %v", role, err)
	}
	return role
}
