package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
	"github.com/mottobotto/testflight-bot/internal/biz/repo"
	"github.com/mottobotto/testflight-bot/internal/infra/discord"
	"github.com/mottobotto/testflight-bot/internal/service"
)

// EventHandler processes converted gateway events
type EventHandler interface {
	HandleReaction(ctx context.Context, ev *domain.ReactionEvent) (service.Outcome, error)
	HandleMemberLeave(ctx context.Context, ev *domain.MemberLeaveEvent) error
}

// DiscordServer feeds gateway events to the reaction workflow
type DiscordServer struct {
	client    *discord.Client
	handler   EventHandler
	dedupe    repo.DedupeRepo
	refresher *service.CacheRefresher
	logger    *slog.Logger

	// In-flight events, drained on Stop
	wg sync.WaitGroup
}

// NewDiscordServer creates a new Discord server. refresher may be nil.
func NewDiscordServer(
	client *discord.Client,
	handler EventHandler,
	dedupe repo.DedupeRepo,
	refresher *service.CacheRefresher,
	logger *slog.Logger,
) *DiscordServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordServer{
		client:    client,
		handler:   handler,
		dedupe:    dedupe,
		refresher: refresher,
		logger:    logger.With("component", "server"),
	}
}

// Start registers the handlers and opens the gateway
func (s *DiscordServer) Start(ctx context.Context) error {
	s.client.OnReaction(func(ev *discordgo.MessageReactionAdd) {
		s.HandleReaction(discord.ToReactionEvent(ev))
	})
	s.client.OnMemberRemove(func(ev *discordgo.GuildMemberRemove) {
		s.HandleMemberLeave(discord.ToMemberLeaveEvent(ev))
	})
	s.client.OnReactionRemove(func(ev *discordgo.MessageReactionRemove) {
		s.HandleReactionRemove(discord.ToReactionRemoveEvent(ev))
	})
	s.client.OnMemberAdd(func(ev *discordgo.GuildMemberAdd) {
		s.HandleMemberJoin(discord.ToMemberJoinEvent(ev))
	})

	if err := s.client.Start(); err != nil {
		return err
	}
	if s.refresher != nil {
		s.refresher.Start(ctx)
	}
	s.logger.Info("connected", "bot_user_id", s.client.BotUserID())
	return nil
}

// Stop closes the gateway and waits for in-flight events
func (s *DiscordServer) Stop() {
	if s.refresher != nil {
		s.refresher.Stop()
	}
	if err := s.client.Stop(); err != nil {
		s.logger.Warn("failed to close gateway", "error", err)
	}
	s.Wait()
}

// Wait blocks until in-flight events finish
func (s *DiscordServer) Wait() {
	s.wg.Wait()
}

// seen reports redelivered events. A dedupe failure lets the event through.
func (s *DiscordServer) seen(ctx context.Context, key string) bool {
	if s.dedupe == nil {
		return false
	}
	dup, err := s.dedupe.Seen(ctx, key)
	if err != nil {
		s.logger.Warn("dedupe check failed", "key", key, "error", err)
		return false
	}
	return dup
}

// forget lets the next delivery of key through
func (s *DiscordServer) forget(ctx context.Context, key string) {
	if s.dedupe == nil {
		return
	}
	if err := s.dedupe.Forget(ctx, key); err != nil {
		s.logger.Warn("dedupe forget failed", "key", key, "error", err)
	}
}

// HandleReaction processes one reaction-add event. Events outlive the
// gateway callback, so they run on a background context.
func (s *DiscordServer) HandleReaction(ev *domain.ReactionEvent) {
	if ev == nil {
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()

	ctx := context.Background()
	if s.seen(ctx, ev.Key()) {
		s.logger.Debug("duplicate reaction ignored", "message_id", ev.MessageID, "user_id", ev.UserID)
		return
	}

	start := time.Now()
	outcome, err := s.handler.HandleReaction(ctx, ev)
	log := s.logger.With(
		"guild_id", ev.GuildID,
		"channel_id", ev.ChannelID,
		"message_id", ev.MessageID,
		"user_id", ev.UserID,
		"emoji", ev.Emoji,
		"outcome", outcome.String(),
		"duration", time.Since(start),
	)
	if err != nil || outcome == service.Escalated {
		// A moderator retries by reacting again
		s.forget(ctx, ev.Key())
	}
	if err != nil {
		log.Error("reaction failed", "error", err)
		return
	}
	switch outcome {
	case service.Handled:
		log.Info("reaction handled")
	case service.Escalated:
		log.Warn("reaction escalated")
	default:
		log.Debug("reaction not handled")
	}
}

// HandleMemberLeave processes one member-leave event
func (s *DiscordServer) HandleMemberLeave(ev *domain.MemberLeaveEvent) {
	if ev == nil {
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()

	ctx := context.Background()
	if s.seen(ctx, ev.Key()) {
		s.logger.Debug("duplicate member leave ignored", "user_id", ev.UserID)
		return
	}
	if err := s.handler.HandleMemberLeave(ctx, ev); err != nil {
		s.forget(ctx, ev.Key())
		s.logger.Error("member leave failed", "guild_id", ev.GuildID, "user_id", ev.UserID, "error", err)
	}
}

// HandleReactionRemove clears the dedupe entry of the removed reaction so
// re-adding it is processed
func (s *DiscordServer) HandleReactionRemove(ev *domain.ReactionEvent) {
	if ev == nil {
		return
	}
	s.forget(context.Background(), ev.Key())
}

// HandleMemberJoin clears the dedupe entry of the member's previous leave
func (s *DiscordServer) HandleMemberJoin(ev *domain.MemberJoinEvent) {
	if ev == nil {
		return
	}
	s.forget(context.Background(), ev.LeaveKey())
}
