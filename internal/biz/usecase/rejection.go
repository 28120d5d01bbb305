package usecase

import (
	"context"
	"fmt"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
)

// HandleRejection rejects the request behind a notification message and
// marks every notification copy. Approved requests cannot be rejected.
func (uc *ReactionRoleUsecase) HandleRejection(ctx context.Context, ev *domain.ReactionEvent) error {
	ref := ev.Ref()
	request, err := uc.store.FetchRequestByMessage(ctx, ev.MessageID)
	if err != nil {
		return err
	}
	if request == nil {
		return uc.reply(ctx, ev, noRequestText(ev.MentionActor(), "rejection", ev.Emoji))
	}
	if request.IsApproved() {
		return uc.reply(ctx, ev, fmt.Sprintf("Request %s was previously approved. Cannot now reject.", request))
	}

	request.Status = domain.RequestStatusRejected
	if err := uc.store.UpdateRequest(ctx, request); err != nil {
		return &domain.WorkflowError{
			Message:       "Failed to mark request as rejected in the store",
			Reference:     ref,
			MentionUserID: ev.UserID,
			Err:           err,
		}
	}

	if err := uc.chat.AddReaction(ctx, ev.ChannelID, ev.MessageID, MarkerRejected); err != nil {
		return &domain.WorkflowError{
			Message:       fmt.Sprintf("Received rejection reaction '%s' but failed to mark message with %s", ev.Emoji, MarkerRejected),
			Reference:     ref,
			MentionUserID: ev.UserID,
			Err:           err,
		}
	}

	if err := uc.sync.MarkOthers(ctx, ev.ChannelID, ev.MessageID, request, RejectedMarkers); err != nil {
		return &domain.WorkflowError{
			Message:       fmt.Sprintf("Received rejection reaction '%s' but failed to mark other messages with %s", ev.Emoji, MarkerRejectedCopy),
			Reference:     ref,
			MentionUserID: ev.UserID,
			Err:           err,
		}
	}
	uc.logger.Info("request rejected", "request", request.String())
	return nil
}
