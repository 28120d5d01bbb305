package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
	"github.com/mottobotto/testflight-bot/internal/biz/repo"
	"github.com/mottobotto/testflight-bot/internal/biz/usecase"
)

// Outcome tells the caller whether a reaction was consumed
type Outcome int

const (
	NotHandled Outcome = iota
	Handled
	// Escalated means the attempt failed and the failure was reported
	Escalated
)

func (o Outcome) String() string {
	switch o {
	case Handled:
		return "handled"
	case Escalated:
		return "escalated"
	}
	return "not handled"
}

// ReactionWorkflow is the request workflow the service routes to
type ReactionWorkflow interface {
	GuildConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error)
	ReactionRole(ctx context.Context, ev *domain.ReactionEvent) (*domain.ReactionRole, error)
	IsApprovalChannel(ctx context.Context, guildID, channelID string) (bool, error)
	HandleRoleReaction(ctx context.Context, ev *domain.ReactionEvent, role *domain.ReactionRole) error
	HandleApproval(ctx context.Context, ev *domain.ReactionEvent) error
	HandleRejection(ctx context.Context, ev *domain.ReactionEvent) error
	HandleRemoval(ctx context.Context, ev *domain.ReactionEvent) error
	HandleMemberLeave(ctx context.Context, ev *domain.MemberLeaveEvent) error
}

var _ ReactionWorkflow = (*usecase.ReactionRoleUsecase)(nil)

// reaction carries what the routes learn about one event
type reaction struct {
	ev    *domain.ReactionEvent
	guild *domain.GuildConfig
	role  *domain.ReactionRole

	reviewChecked bool
	reviewable    bool
	processing    bool // MarkerProcessing was placed
}

// Route is one entry of the classifier. Routes are tried in order and
// the first match handles the event.
type Route struct {
	Name   string
	Match  func(ctx context.Context, r *reaction) (bool, error)
	Handle func(ctx context.Context, r *reaction) error
}

// ReactionRoleService classifies gateway events and runs the matching
// workflow step, reporting failures back to the guild
type ReactionRoleService struct {
	workflow ReactionWorkflow
	chat     repo.ChatRepo
	routes   []Route
	logger   *slog.Logger
}

// NewReactionRoleService creates the service with the default routes
func NewReactionRoleService(workflow ReactionWorkflow, chat repo.ChatRepo, logger *slog.Logger) *ReactionRoleService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ReactionRoleService{
		workflow: workflow,
		chat:     chat,
		logger:   logger.With("component", "reactions"),
	}
	s.routes = s.defaultRoutes()
	return s
}

// Routes returns the classifier routes in precedence order
func (s *ReactionRoleService) Routes() []Route {
	return s.routes
}

func (s *ReactionRoleService) defaultRoutes() []Route {
	return []Route{
		{
			Name: "role",
			Match: func(ctx context.Context, r *reaction) (bool, error) {
				role, err := s.workflow.ReactionRole(ctx, r.ev)
				r.role = role
				return role != nil, err
			},
			Handle: func(ctx context.Context, r *reaction) error {
				return s.workflow.HandleRoleReaction(ctx, r.ev, r.role)
			},
		},
		{
			Name:  "approval",
			Match: s.matchReview((*domain.GuildConfig).IsApprovalEmoji),
			Handle: func(ctx context.Context, r *reaction) error {
				return s.workflow.HandleApproval(ctx, r.ev)
			},
		},
		{
			Name:  "rejection",
			Match: s.matchReview((*domain.GuildConfig).IsRejectionEmoji),
			Handle: func(ctx context.Context, r *reaction) error {
				return s.workflow.HandleRejection(ctx, r.ev)
			},
		},
		{
			Name:   "removal",
			Match:  s.matchReview((*domain.GuildConfig).IsRemovalEmoji),
			Handle: s.handleRemoval,
		},
	}
}

// matchReview matches the emoji set on one of the bot's own messages in
// a review channel
func (s *ReactionRoleService) matchReview(emojiSet func(*domain.GuildConfig, string) bool) func(context.Context, *reaction) (bool, error) {
	return func(ctx context.Context, r *reaction) (bool, error) {
		if !emojiSet(r.guild, r.ev.Emoji) {
			return false, nil
		}
		return s.isReviewable(ctx, r)
	}
}

// isReviewable is evaluated once per event. Leave notices in the exit
// channel are reviewable too.
func (s *ReactionRoleService) isReviewable(ctx context.Context, r *reaction) (bool, error) {
	if r.reviewChecked {
		return r.reviewable, nil
	}

	ok, err := s.workflow.IsApprovalChannel(ctx, r.ev.GuildID, r.ev.ChannelID)
	if err != nil {
		return false, err
	}
	if !ok && r.guild.TesterExitNotificationChannelID != "" {
		ok = r.guild.TesterExitNotificationChannelID == r.ev.ChannelID
	}
	if ok {
		msg, err := repo.GetOrFetchMessage(ctx, s.chat, r.ev.ChannelID, r.ev.MessageID)
		if err != nil {
			return false, fmt.Errorf("failed to fetch reacted message: %w", err)
		}
		ok = msg.IsFromBot(s.chat.BotUserID())
	}

	r.reviewChecked = true
	r.reviewable = ok
	return ok, nil
}

func (s *ReactionRoleService) handleRemoval(ctx context.Context, r *reaction) error {
	if err := s.chat.AddReaction(ctx, r.ev.ChannelID, r.ev.MessageID, usecase.MarkerProcessing); err != nil {
		s.logger.Warn("failed to add processing marker", "message_id", r.ev.MessageID, "error", err)
	} else {
		r.processing = true
	}
	return s.workflow.HandleRemoval(ctx, r.ev)
}

// HandleReaction classifies a reaction-add event and runs its route.
// Reportable failures are posted to the guild and do not return an error.
func (s *ReactionRoleService) HandleReaction(ctx context.Context, ev *domain.ReactionEvent) (Outcome, error) {
	if ev.GuildID == "" {
		s.logger.Debug("reaction on non-guild message, ignoring", "message_id", ev.MessageID)
		return NotHandled, nil
	}
	if ev.UserID == s.chat.BotUserID() {
		return NotHandled, nil
	}

	r := &reaction{ev: ev}
	defer s.clearProcessing(r)

	outcome, err := s.route(ctx, r)
	if err != nil {
		return s.escalate(ctx, r, err)
	}
	return outcome, nil
}

func (s *ReactionRoleService) route(ctx context.Context, r *reaction) (Outcome, error) {
	guild, err := s.workflow.GuildConfig(ctx, r.ev.GuildID)
	if err != nil {
		return NotHandled, err
	}
	r.guild = guild

	for _, rt := range s.routes {
		ok, err := rt.Match(ctx, r)
		if err != nil {
			return NotHandled, err
		}
		if !ok {
			continue
		}
		s.logger.Debug("reaction matched", "route", rt.Name, "message_id", r.ev.MessageID, "emoji", r.ev.Emoji, "user_id", r.ev.UserID)
		return Handled, rt.Handle(ctx, r)
	}
	return NotHandled, nil
}

// escalate reports a failed attempt. Workflow failures go to their own
// reference, store failures to the review channel.
func (s *ReactionRoleService) escalate(ctx context.Context, r *reaction, err error) (Outcome, error) {
	var we *domain.WorkflowError
	if errors.As(err, &we) {
		s.logger.Error(we.Message, "error", err, "message_id", r.ev.MessageID)
		ref := we.Reference
		if ref.ChannelID == "" {
			ref = r.ev.Ref()
		}
		if _, sendErr := s.chat.SendMessage(ctx, ref.ChannelID, domain.OutgoingMessage{Content: we.Report(), ReplyTo: &ref}); sendErr != nil {
			return Escalated, fmt.Errorf("failed to report %q: %w", we.Message, sendErr)
		}
		return Escalated, nil
	}

	var se *domain.StoreError
	if errors.As(err, &se) {
		s.logger.Error("failed to handle reaction", "error", err, "message_id", r.ev.MessageID)
		channelID := s.reportChannel(ctx, r)
		if channelID == "" {
			return NotHandled, err
		}
		ref := r.ev.Ref()
		if _, sendErr := s.chat.SendMessage(ctx, channelID, domain.OutgoingMessage{
			Content: fmt.Sprintf("%s Failed to handle reaction: %v", r.ev.MentionActor(), err),
			ReplyTo: &ref,
		}); sendErr != nil {
			return NotHandled, errors.Join(err, sendErr)
		}
		return Escalated, nil
	}

	return NotHandled, err
}

// reportChannel is the reacted channel when it is an approval channel,
// else the guild default. Empty when neither resolves.
func (s *ReactionRoleService) reportChannel(ctx context.Context, r *reaction) string {
	if ok, err := s.workflow.IsApprovalChannel(ctx, r.ev.GuildID, r.ev.ChannelID); err == nil && ok {
		return r.ev.ChannelID
	}
	guild := r.guild
	if guild == nil {
		var err error
		if guild, err = s.workflow.GuildConfig(ctx, r.ev.GuildID); err != nil {
			s.logger.Warn("no channel to report to", "guild_id", r.ev.GuildID, "error", err)
			return ""
		}
	}
	return guild.DefaultApprovalsChannelID
}

func (s *ReactionRoleService) clearProcessing(r *reaction) {
	if !r.processing {
		return
	}
	if err := s.chat.RemoveOwnReaction(context.Background(), r.ev.ChannelID, r.ev.MessageID, usecase.MarkerProcessing); err != nil {
		s.logger.Warn("failed to clear processing marker", "message_id", r.ev.MessageID, "error", err)
	}
}

// HandleMemberLeave posts a leave notice for members who were testing
func (s *ReactionRoleService) HandleMemberLeave(ctx context.Context, ev *domain.MemberLeaveEvent) error {
	if ev.GuildID == "" {
		return nil
	}
	if err := s.workflow.HandleMemberLeave(ctx, ev); err != nil {
		return fmt.Errorf("failed to handle member leave for %s: %w", ev.UserID, err)
	}
	return nil
}
