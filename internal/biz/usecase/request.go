package usecase

import (
	"context"
	"fmt"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
)

type requestPlan struct {
	tester  *domain.Tester
	request *domain.TestingRequest
}

// requestAccess records or reuses the member's request for the role's
// apps and posts it for review
func (uc *ReactionRoleUsecase) requestAccess(ctx context.Context, ev *domain.ReactionEvent, role *domain.ReactionRole) error {
	plan, err := uc.prepareRequest(ctx, ev, role)
	if err != nil || plan == nil {
		return err
	}
	return uc.notifyRequest(ctx, ev.Member, plan.tester, plan.request)
}

// prepareRequest runs the tester and request bookkeeping under the
// member's lock. A nil plan means nothing should be posted.
func (uc *ReactionRoleUsecase) prepareRequest(ctx context.Context, ev *domain.ReactionEvent, role *domain.ReactionRole) (*requestPlan, error) {
	member := ev.Member

	unlock := uc.locks.Lock(member.UserID)
	defer unlock()

	tester, err := uc.store.FindTester(ctx, member.UserID)
	if err != nil {
		return nil, err
	}
	if tester == nil {
		tester = &domain.Tester{DiscordID: member.UserID}
	}
	tester.Username = member.Name
	tester, err = uc.store.UpsertTester(ctx, tester)
	if err != nil {
		return nil, err
	}
	uc.logger.Debug("tester upserted", "tester", tester.String())

	existing, err := uc.store.ListRequests(ctx, domain.RequestFilter{
		TesterDiscordID: tester.DiscordID,
		AppIDs:          role.AppIDs,
		ExcludeRemoved:  true,
	})
	if err != nil {
		return nil, err
	}

	var request *domain.TestingRequest
	switch {
	case len(existing) == 0:
		request, err = uc.store.AddRequest(ctx, &domain.TestingRequest{
			TesterID:        tester.ID,
			TesterDiscordID: tester.DiscordID,
			AppID:           role.AppIDs[0],
			ServerID:        ev.GuildID,
			Status:          domain.RequestStatusPending,
		})
		if err != nil {
			return nil, err
		}
		uc.logger.Info("testing request created", "request", request.String())
	case anyRejected(existing):
		uc.logger.Info("previous request was rejected, ignoring", "tester", tester.String(), "app_ids", role.AppIDs)
		return nil, nil
	default:
		request = existing[0]
	}

	if !tester.HasEmail() {
		return nil, uc.promptRegistration(ctx, tester)
	}
	return &requestPlan{tester: tester, request: request}, nil
}

func anyRejected(requests []*domain.TestingRequest) bool {
	for _, r := range requests {
		if r.IsRejected() {
			return true
		}
	}
	return false
}

// promptRegistration asks the tester to register an email, at most once
// per cooldown window
func (uc *ReactionRoleUsecase) promptRegistration(ctx context.Context, tester *domain.Tester) error {
	if id := tester.RegistrationMessageID; id != "" {
		prev, err := uc.chat.DirectMessage(ctx, tester.DiscordID, id)
		switch {
		case err != nil:
			uc.logger.Warn("failed to load previous registration prompt", "message_id", id, "error", err)
		case prev != nil && prev.IsAfter(uc.now().Add(-uc.cfg.RegistrationCooldown)):
			uc.logger.Debug("skipping registration prompt", "previous", prev.CreatedAt)
			return nil
		}
	}

	uc.logger.Debug("sending registration prompt", "user_id", tester.DiscordID)
	msg, err := uc.chat.SendDirectMessage(ctx, tester.DiscordID, domain.OutgoingMessage{Content: registrationPromptText})
	if err != nil {
		return fmt.Errorf("failed to send registration prompt: %w", err)
	}

	tester.RegistrationMessageID = msg.ID
	_, err = uc.store.UpsertTester(ctx, tester)
	return err
}

// notifyRequest posts the request to its approvals channel. Repeat
// requests link back to the first notification.
func (uc *ReactionRoleUsecase) notifyRequest(ctx context.Context, member *domain.Member, tester *domain.Tester, request *domain.TestingRequest) error {
	channelID := request.ApprovalChannelID
	if channelID == "" {
		cfg, err := uc.config.GetGuildConfig(ctx, request.ServerID)
		if err != nil {
			return err
		}
		channelID = cfg.DefaultApprovalsChannelID
	}
	if channelID == "" {
		uc.logger.Warn("no approvals channel for server", "server_id", request.ServerID)
		return nil
	}

	var text string
	if request.HasNotification() {
		link := ""
		if _, err := uc.chat.FetchMessage(ctx, channelID, request.NotificationMessageID); err == nil {
			link = uc.chat.MessageURL(domain.MessageRef{
				GuildID:   request.ServerID,
				ChannelID: channelID,
				MessageID: request.NotificationMessageID,
			})
		}
		text = repeatNoticeText(request, link)
	}
	text += requestNotificationText(member.Mention(), request, tester)

	msg, err := uc.chat.SendMessage(ctx, channelID, domain.OutgoingMessage{Content: text, SuppressEmbeds: true})
	if err != nil {
		return fmt.Errorf("failed to post request notification: %w", err)
	}
	uc.logger.Debug("request notification sent", "message_id", msg.ID, "request", request.String())

	// Re-read under the lock so a concurrent notification is not lost
	unlock := uc.locks.Lock(request.TesterDiscordID)
	defer unlock()

	current, err := uc.store.FetchRequest(ctx, request.ID)
	if err != nil {
		return err
	}
	if current == nil {
		current = request
	}
	current.RecordNotification(msg.ID)
	if current.ApprovalChannelID == "" {
		current.ApprovalChannelID = channelID
	}
	return uc.store.UpdateRequest(ctx, current)
}
