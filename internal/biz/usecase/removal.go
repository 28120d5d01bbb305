package usecase

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
)

// HandleRemoval removes the tester a leave notice was posted for from
// every beta, then marks the notice with MarkerRemoved
func (uc *ReactionRoleUsecase) HandleRemoval(ctx context.Context, ev *domain.ReactionEvent) error {
	tester, err := uc.store.FindTesterByLeaveMessage(ctx, ev.MessageID)
	if err != nil {
		return err
	}
	if tester == nil {
		uc.logger.Warn("no tester found for leave message", "message_id", ev.MessageID)
		_, err := uc.chat.SendMessage(ctx, ev.ChannelID, domain.OutgoingMessage{
			Content: fmt.Sprintf("Failed to find tester for leave message %s", ev.MessageID),
		})
		return err
	}

	removed, err := uc.RemoveTester(ctx, ev, tester, nil)
	if err != nil || !removed {
		return err
	}

	if err := uc.chat.AddReaction(ctx, ev.ChannelID, ev.MessageID, MarkerRemoved); err != nil {
		return &domain.WorkflowError{
			Message:       fmt.Sprintf("Removed tester %s but failed to mark message with %s", tester, MarkerRemoved),
			Reference:     ev.Ref(),
			MentionUserID: ev.UserID,
			Err:           err,
		}
	}
	return nil
}

// RemoveTester removes the tester from the given apps' betas, or from
// every app when apps is empty, and flags the matching approved requests
// as removed. It reports false when nothing could be removed.
func (uc *ReactionRoleUsecase) RemoveTester(ctx context.Context, ev *domain.ReactionEvent, tester *domain.Tester, apps []*domain.App) (bool, error) {
	uc.logger.Info("removing tester", "tester", tester.String(), "apps", len(apps))

	found, err := uc.findBetaTesters(ctx, tester.Email, apps)
	if err != nil {
		return false, uc.distributionFailure(ctx, ev, err, "")
	}
	if len(found) == 0 {
		uc.logger.Info("found no testers with email", "email", tester.Email)
		return true, uc.reply(ctx, ev, fmt.Sprintf("%s Found no testers with email '%s'", ev.MentionActor(), tester.Email))
	}

	selected := make(map[string]bool, len(apps))
	for _, app := range apps {
		selected[app.BetaGroupID] = true
	}

	removedAppIDs := make(map[string]bool)
	for _, bt := range found {
		groupApps, err := uc.store.FindAppsByBetaGroup(ctx, bt.BetaGroupIDs...)
		if err != nil {
			return false, err
		}

		g, gctx := errgroup.WithContext(ctx)
		if len(apps) == 0 || allSelected(bt.BetaGroupIDs, selected) {
			// Deleting a tester removes them from every app of the provider
			byKey := make(map[string]*domain.App)
			for _, app := range groupApps {
				if _, ok := byKey[app.DistributionKeyID]; !ok {
					byKey[app.DistributionKeyID] = app
				}
				removedAppIDs[app.ID] = true
			}
			for _, app := range byKey {
				g.Go(func() error { return uc.dist.DeleteBetaTester(gctx, app, bt.ID) })
			}
		} else {
			for _, app := range groupApps {
				if !selected[app.BetaGroupID] {
					continue
				}
				removedAppIDs[app.ID] = true
				g.Go(func() error { return uc.dist.RemoveFromBetaGroup(gctx, app, bt.ID) })
			}
		}
		if err := g.Wait(); err != nil {
			return false, uc.distributionFailure(ctx, ev, err, appNames(groupApps))
		}
		uc.logger.Info("removed tester from beta testers", "tester", tester.String(), "beta_tester_id", bt.ID)
	}

	if len(removedAppIDs) == 0 {
		return true, nil
	}
	ids := make([]string, 0, len(removedAppIDs))
	for id := range removedAppIDs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	requests, err := uc.store.ListRequests(ctx, domain.RequestFilter{
		TesterDiscordID: tester.DiscordID,
		AppIDs:          ids,
		Approval:        domain.ApprovalFilterApproved,
		ExcludeRemoved:  true,
	})
	if err != nil {
		return false, err
	}
	for _, r := range requests {
		r.Removed = true
	}
	if err := uc.store.UpdateRequests(ctx, requests); err != nil {
		return false, err
	}
	return true, nil
}

func (uc *ReactionRoleUsecase) findBetaTesters(ctx context.Context, email string, apps []*domain.App) ([]domain.BetaTester, error) {
	if email == "" {
		return nil, nil
	}
	if len(apps) == 0 {
		return uc.dist.FindBetaTesters(ctx, email, nil)
	}

	results := make([][]domain.BetaTester, len(apps))
	g, gctx := errgroup.WithContext(ctx)
	for i, app := range apps {
		g.Go(func() (err error) {
			results[i], err = uc.dist.FindBetaTesters(gctx, email, app)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(results...), nil
}

// distributionFailure reports configuration failures in the channel and
// swallows them. Other failures come back as workflow errors.
func (uc *ReactionRoleUsecase) distributionFailure(ctx context.Context, ev *domain.ReactionEvent, err error, appName string) error {
	de, ok := domain.AsDistributionError(err)
	if ok && de.IsConfiguration() {
		if de.AppName != "" {
			appName = de.AppName
		}
		uc.logger.Error("tester removal failed", "app", appName, "error", err)
		return uc.reply(ctx, ev, distributionErrorText(ev.MentionActor(), de, appName))
	}
	return &domain.WorkflowError{
		Message:       "Failed to remove tester from App Store Connect",
		Reference:     ev.Ref(),
		MentionUserID: ev.UserID,
		Err:           err,
	}
}

func allSelected(groupIDs []string, selected map[string]bool) bool {
	for _, id := range groupIDs {
		if !selected[id] {
			return false
		}
	}
	return true
}

func appNames(apps []*domain.App) string {
	names := make([]string, 0, len(apps))
	for _, app := range apps {
		names = append(names, app.Name)
	}
	return strings.Join(names, ", ")
}
