package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
	"github.com/mottobotto/testflight-bot/internal/biz/repo"
)

// Outcome markers the bot reacts with
const (
	MarkerApproved     = "✅"
	MarkerApprovedCopy = "✔️"
	MarkerRejected     = "⛔"
	MarkerRejectedCopy = "🚫"
	MarkerRemoved      = "🚪"
	MarkerProcessing   = "⏳"
)

// Markers pairs the marker for the reacted message with the one for
// its other notification copies
type Markers struct {
	Primary string
	Copy    string
}

var (
	ApprovedMarkers = Markers{Primary: MarkerApproved, Copy: MarkerApprovedCopy}
	RejectedMarkers = Markers{Primary: MarkerRejected, Copy: MarkerRejectedCopy}
)

// NotificationSynchronizer marks every other notification of a request
// once one copy has been decided
type NotificationSynchronizer struct {
	chat   repo.ChatRepo
	logger *slog.Logger
}

// NewNotificationSynchronizer creates a synchronizer
func NewNotificationSynchronizer(chat repo.ChatRepo, logger *slog.Logger) *NotificationSynchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationSynchronizer{chat: chat, logger: logger.With("component", "sync")}
}

// MarkOthers reacts with markers.Copy on every notification of the request
// other than triggerMessageID. Copies already carrying either marker are
// left alone, so repeated calls add nothing.
func (s *NotificationSynchronizer) MarkOthers(ctx context.Context, channelID, triggerMessageID string, request *domain.TestingRequest, markers Markers) error {
	ids := request.OtherNotificationMessageIDs(triggerMessageID)
	if len(ids) == 0 {
		return nil
	}

	cached, fetched, err := s.collect(ctx, channelID, ids)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.mark(gctx, channelID, cached, markers) })
	g.Go(func() error { return s.mark(gctx, channelID, fetched, markers) })
	return g.Wait()
}

// collect splits the messages into those found in the local cache and
// those fetched from the platform
func (s *NotificationSynchronizer) collect(ctx context.Context, channelID string, ids []string) (cached, fetched []*domain.Message, err error) {
	var missing []string
	for _, id := range ids {
		if m, ok := s.chat.CachedMessage(channelID, id); ok {
			cached = append(cached, m)
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return cached, nil, nil
	}

	fetched = make([]*domain.Message, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range missing {
		g.Go(func() error {
			m, err := s.chat.FetchMessage(gctx, channelID, id)
			if err != nil {
				return fmt.Errorf("failed to fetch notification %s: %w", id, err)
			}
			fetched[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return cached, fetched, nil
}

func (s *NotificationSynchronizer) mark(ctx context.Context, channelID string, msgs []*domain.Message, markers Markers) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range msgs {
		if m == nil || m.HasReaction(markers.Primary) || m.HasReaction(markers.Copy) {
			continue
		}
		g.Go(func() error {
			if err := s.chat.AddReaction(gctx, channelID, m.ID, markers.Copy); err != nil {
				return fmt.Errorf("failed to mark notification %s: %w", m.ID, err)
			}
			s.logger.Debug("marked notification copy", "message_id", m.ID, "marker", markers.Copy)
			return nil
		})
	}
	return g.Wait()
}
