package usecase

import (
	"context"
	"fmt"
	"slices"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
)

// HandleMemberLeave posts a notice when a member with approved requests
// leaves the guild. The notice is linked to the tester so a removal
// reaction on it can find them.
func (uc *ReactionRoleUsecase) HandleMemberLeave(ctx context.Context, ev *domain.MemberLeaveEvent) error {
	cfg, err := uc.config.GetGuildConfig(ctx, ev.GuildID)
	if err != nil {
		return err
	}
	channelID := cfg.TesterExitNotificationChannelID
	if channelID == "" {
		uc.logger.Debug("no tester exit channel configured", "guild_id", ev.GuildID)
		return nil
	}

	requests, err := uc.store.ListRequests(ctx, domain.RequestFilter{
		TesterDiscordID: ev.UserID,
		Approval:        domain.ApprovalFilterApproved,
		ExcludeRemoved:  true,
	})
	if err != nil {
		return err
	}
	var names []string
	for _, r := range requests {
		if r.AppName != "" && !slices.Contains(names, r.AppName) {
			names = append(names, r.AppName)
		}
	}
	if len(names) == 0 {
		return nil
	}

	notice, err := uc.chat.SendMessage(ctx, channelID, domain.OutgoingMessage{Content: testerLeftText(ev.UserID, names)})
	if err != nil {
		return fmt.Errorf("failed to post leave notice: %w", err)
	}

	unlock := uc.locks.Lock(ev.UserID)
	defer unlock()

	tester, err := uc.store.FindTester(ctx, ev.UserID)
	if err != nil {
		return err
	}
	if tester == nil {
		_, err := uc.chat.SendMessage(ctx, channelID, domain.OutgoingMessage{
			Content: fmt.Sprintf("Failed to find Tester record for %s. This should never happen!", domain.MentionUser(ev.UserID)),
		})
		return err
	}

	tester.LeaveMessageIDs = append(tester.LeaveMessageIDs, notice.ID)
	if _, err := uc.store.UpsertTester(ctx, tester); err != nil {
		uc.logger.Error("failed to record leave notice", "tester", tester.String(), "error", err)
		_, sendErr := uc.chat.SendMessage(ctx, channelID, domain.OutgoingMessage{
			Content: fmt.Sprintf("Failed to update tester %s with leave message ID: %v", tester, err),
		})
		return sendErr
	}
	return nil
}
