package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
	"github.com/mottobotto/testflight-bot/internal/biz/repo"
)

// ReactionRoleConfig tunes the request workflow
type ReactionRoleConfig struct {
	// RegistrationCooldown is the minimum gap between registration prompts
	RegistrationCooldown time.Duration
}

// DefaultReactionRoleConfig returns the default workflow settings
func DefaultReactionRoleConfig() ReactionRoleConfig {
	return ReactionRoleConfig{RegistrationCooldown: 30 * time.Minute}
}

// ReactionRoleUsecase runs the tester request and approval workflow
type ReactionRoleUsecase struct {
	store  repo.TestFlightRepo
	config repo.ConfigRepo
	chat   repo.ChatRepo
	dist   repo.DistributionRepo
	cache  *ConfigCache
	sync   *NotificationSynchronizer
	locks  *KeyedMutex
	cfg    ReactionRoleConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewReactionRoleUsecase creates the workflow usecase
func NewReactionRoleUsecase(
	store repo.TestFlightRepo,
	config repo.ConfigRepo,
	chat repo.ChatRepo,
	dist repo.DistributionRepo,
	cache *ConfigCache,
	cfg ReactionRoleConfig,
	logger *slog.Logger,
) *ReactionRoleUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RegistrationCooldown <= 0 {
		cfg.RegistrationCooldown = DefaultReactionRoleConfig().RegistrationCooldown
	}
	return &ReactionRoleUsecase{
		store:  store,
		config: config,
		chat:   chat,
		dist:   dist,
		cache:  cache,
		sync:   NewNotificationSynchronizer(chat, logger),
		locks:  NewKeyedMutex(),
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With("component", "reaction_roles"),
	}
}

// Cache returns the identifier cache the usecase classifies by
func (uc *ReactionRoleUsecase) Cache() *ConfigCache {
	return uc.cache
}

// GuildConfig gets the workflow configuration of a guild
func (uc *ReactionRoleUsecase) GuildConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	return uc.config.GetGuildConfig(ctx, guildID)
}

// ReactionRole gets the role mapping for a reaction, nil when the
// message is not watched or the emoji is not mapped
func (uc *ReactionRoleUsecase) ReactionRole(ctx context.Context, ev *domain.ReactionEvent) (*domain.ReactionRole, error) {
	watched, err := uc.cache.IsWatchedMessage(ctx, ev.MessageID)
	if err != nil || !watched {
		return nil, err
	}
	return uc.store.GetReactionRole(ctx, ev.GuildID, ev.MessageID, ev.Emoji)
}

// IsApprovalChannel checks if a channel receives request notifications
func (uc *ReactionRoleUsecase) IsApprovalChannel(ctx context.Context, guildID, channelID string) (bool, error) {
	ok, err := uc.cache.IsApprovalChannel(ctx, channelID)
	if err != nil || ok {
		return ok, err
	}
	cfg, err := uc.config.GetGuildConfig(ctx, guildID)
	if err != nil {
		return false, err
	}
	return cfg.DefaultApprovalsChannelID != "" && cfg.DefaultApprovalsChannelID == channelID, nil
}

// HandleRoleReaction handles a reaction on a watched role message. The
// role is granted directly or a testing request is raised for its apps.
func (uc *ReactionRoleUsecase) HandleRoleReaction(ctx context.Context, ev *domain.ReactionEvent, role *domain.ReactionRole) error {
	member := ev.Member
	if member == nil {
		uc.logger.Warn("role reaction without member", "message_id", ev.MessageID, "user_id", ev.UserID)
		return nil
	}

	// Apps load while the rules check runs
	var apps []*domain.App
	appsLoaded := make(chan error, 1)
	go func() {
		var err error
		apps, err = uc.fetchApps(ctx, role.AppIDs)
		appsLoaded <- err
	}()

	guildCfg, err := uc.config.GetGuildConfig(ctx, ev.GuildID)
	if err != nil {
		<-appsLoaded
		return err
	}

	if role.RequiresRulesApproval && guildCfg.RuleAgreementRoleID != "" && !member.HasRole(guildCfg.RuleAgreementRoleID) {
		<-appsLoaded
		uc.logger.Warn("role reaction from user who has not agreed to the rules", "user_id", member.UserID)
		_, err := uc.chat.SendDirectMessage(ctx, member.UserID, domain.OutgoingMessage{
			Content: rulesReminderText(uc.rulesLink(ev.GuildID, guildCfg)),
		})
		return err
	}

	if err := <-appsLoaded; err != nil {
		return err
	}

	var requested, closed []string
	for _, app := range apps {
		requested = append(requested, app.Name)
		if !app.BetaOpen {
			closed = append(closed, app.Name)
		}
	}
	if len(closed) > 0 {
		uc.logger.Info("reaction for closed betas", "user_id", member.UserID, "closed", closed)
		_, err := uc.chat.SendDirectMessage(ctx, member.UserID, domain.OutgoingMessage{
			Content: closedBetasText(requested, closed, uc.chat.MessageURL(ev.Ref())),
		})
		return err
	}

	if role.IsDirectGrant() {
		uc.logger.Info("reaction role not associated with an app, granting", "role_id", role.RoleID, "user_id", member.UserID)
		if member.HasRole(role.RoleID) {
			return nil
		}
		return uc.chat.AddRoles(ctx, ev.GuildID, member.UserID, []string{role.RoleID},
			fmt.Sprintf("Reaction role for %s on message %s", ev.Emoji, ev.MessageID))
	}

	return uc.requestAccess(ctx, ev, role)
}

func (uc *ReactionRoleUsecase) rulesLink(guildID string, cfg *domain.GuildConfig) string {
	if cfg.RuleAgreementMessage == nil || cfg.RuleAgreementMessage.MessageID == "" {
		return ""
	}
	return uc.chat.MessageURL(domain.MessageRef{
		GuildID:   guildID,
		ChannelID: cfg.RuleAgreementMessage.ChannelID,
		MessageID: cfg.RuleAgreementMessage.MessageID,
	})
}

// fetchApps loads the apps concurrently. Unknown IDs are skipped.
func (uc *ReactionRoleUsecase) fetchApps(ctx context.Context, appIDs []string) ([]*domain.App, error) {
	results := make([]*domain.App, len(appIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range appIDs {
		if id == "" {
			continue
		}
		g.Go(func() error {
			app, err := uc.store.FetchApp(gctx, id)
			results[i] = app
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	apps := make([]*domain.App, 0, len(results))
	for i, app := range results {
		if app == nil {
			if appIDs[i] != "" {
				uc.logger.Warn("reaction role references unknown app", "app_id", appIDs[i])
			}
			continue
		}
		apps = append(apps, app)
	}
	return apps, nil
}
