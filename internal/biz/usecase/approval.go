package usecase

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
)

// HandleApproval approves the request behind a notification message:
// the tester joins the beta group, gets the app roles and a DM, then
// every notification copy is marked.
func (uc *ReactionRoleUsecase) HandleApproval(ctx context.Context, ev *domain.ReactionEvent) error {
	ref := ev.Ref()
	request, err := uc.store.FetchRequestByMessage(ctx, ev.MessageID)
	if err != nil {
		return err
	}
	if request == nil {
		return uc.reply(ctx, ev, noRequestText(ev.MentionActor(), "approval", ev.Emoji))
	}
	if request.IsRejected() {
		return uc.reply(ctx, ev, fmt.Sprintf("Request %s was previously rejected. Cannot now approve.", request))
	}
	wasApproved := request.IsApproved()

	var tester *domain.Tester
	var app *domain.App
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tester, err = uc.store.FetchTester(gctx, request.TesterID)
		return err
	})
	g.Go(func() (err error) {
		app, err = uc.store.FetchApp(gctx, request.AppID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if tester == nil {
		return &domain.WorkflowError{
			Message:       fmt.Sprintf("Received approval reaction '%s' but could not find tester!", ev.Emoji),
			Reference:     ref,
			MentionUserID: ev.UserID,
		}
	}
	if app == nil {
		return &domain.WorkflowError{
			Message:       fmt.Sprintf("Failed to fetch app %s (%s)", request.AppID, request.AppName),
			Reference:     ref,
			MentionUserID: ev.UserID,
		}
	}

	request.Status = domain.RequestStatusApproved

	if err := uc.addToBetaGroup(ctx, tester, app); err != nil {
		if de, ok := domain.AsDistributionError(err); ok && de.IsConfiguration() {
			uc.logger.Error("adding tester failed, skipping roles and notification", "app", app.Name, "error", err)
			return uc.reply(ctx, ev, distributionErrorText(ev.MentionActor(), de, app.Name))
		}
		return &domain.WorkflowError{
			Message:       fmt.Sprintf("Failed to add tester to the beta group for %s", app.Name),
			Reference:     ref,
			MentionUserID: ev.UserID,
			Err:           err,
		}
	}

	member, err := uc.grantAppRoles(ctx, ev.GuildID, tester, request, app)
	if err != nil {
		return &domain.WorkflowError{
			Message:       fmt.Sprintf("Received approval reaction '%s' but failed to add roles to member", ev.Emoji),
			Reference:     ref,
			MentionUserID: ev.UserID,
			Err:           err,
		}
	}

	if !wasApproved {
		uc.logger.Debug("notifying tester of approval", "user_id", tester.DiscordID)
		if _, err := uc.chat.SendDirectMessage(ctx, tester.DiscordID, domain.OutgoingMessage{
			Content: approvedText(request, tester),
		}); err != nil {
			who := tester.Username
			if member != nil {
				who = member.Mention()
			}
			return &domain.WorkflowError{
				Message:       fmt.Sprintf("Added roles to %s for %s but failed to send notification", who, app.Name),
				Reference:     ref,
				MentionUserID: ev.UserID,
				Err:           err,
			}
		}
	}

	if err := uc.store.UpdateRequest(ctx, request); err != nil {
		return &domain.WorkflowError{
			Message:       "Failed to mark request as approved in the store",
			Reference:     ref,
			MentionUserID: ev.UserID,
			Err:           err,
		}
	}

	if err := uc.chat.AddReaction(ctx, ev.ChannelID, ev.MessageID, MarkerApproved); err != nil {
		return &domain.WorkflowError{
			Message:       fmt.Sprintf("Received approval reaction '%s' and added roles to member but failed to mark message with %s", ev.Emoji, MarkerApproved),
			Reference:     ref,
			MentionUserID: ev.UserID,
			Err:           err,
		}
	}

	if err := uc.sync.MarkOthers(ctx, ev.ChannelID, ev.MessageID, request, ApprovedMarkers); err != nil {
		return &domain.WorkflowError{
			Message:       fmt.Sprintf("Received approval reaction '%s' and added roles to member but failed to mark other messages with %s", ev.Emoji, MarkerApprovedCopy),
			Reference:     ref,
			MentionUserID: ev.UserID,
			Err:           err,
		}
	}
	uc.logger.Info("request approved", "request", request.String())
	return nil
}

// addToBetaGroup adds the tester to the app's beta group unless they are
// already in it
func (uc *ReactionRoleUsecase) addToBetaGroup(ctx context.Context, tester *domain.Tester, app *domain.App) error {
	if app.BetaGroupID == "" {
		return &domain.DistributionError{Kind: domain.DistributionErrorGroupNotConfigured, AppName: app.Name}
	}
	found, err := uc.dist.FindBetaTesters(ctx, tester.Email, app)
	if err != nil {
		return err
	}
	for _, bt := range found {
		if slices.Contains(bt.BetaGroupIDs, app.BetaGroupID) {
			uc.logger.Info("tester already in beta group", "email", tester.Email, "group", app.BetaGroupID)
			return nil
		}
	}
	if err := uc.dist.CreateBetaTester(ctx, app, tester.Email, tester.GivenName, tester.FamilyName); err != nil {
		return err
	}
	uc.logger.Info("added tester to beta group", "tester", tester.String(), "app", app.Name)
	return nil
}

// grantAppRoles grants the roles mapped to the request's app. The member
// is nil when the tester is not in the guild.
func (uc *ReactionRoleUsecase) grantAppRoles(ctx context.Context, guildID string, tester *domain.Tester, request *domain.TestingRequest, app *domain.App) (*domain.Member, error) {
	roles := request.AppRoleIDs
	if len(roles) == 0 {
		roles = app.RoleIDs
	}

	member, err := uc.chat.GetMember(ctx, guildID, tester.DiscordID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, fmt.Errorf("tester %s is not a member of the server", tester)
	}

	missing := member.MissingRoles(roles)
	if len(missing) == 0 {
		return member, nil
	}
	uc.logger.Debug("adding roles", "roles", missing, "user_id", member.UserID)
	if err := uc.chat.AddRoles(ctx, guildID, member.UserID, missing,
		fmt.Sprintf("TestFlight request for %s approved", app.Name)); err != nil {
		return member, err
	}
	return member, nil
}

// reply posts text in the reacted message's channel as a reply to it
func (uc *ReactionRoleUsecase) reply(ctx context.Context, ev *domain.ReactionEvent, text string) error {
	ref := ev.Ref()
	_, err := uc.chat.SendMessage(ctx, ev.ChannelID, domain.OutgoingMessage{Content: text, ReplyTo: &ref})
	return err
}
