package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mottobotto/testflight-bot/internal/biz/usecase"
)

// CacheRefresher reloads the identifier cache on a fixed interval
type CacheRefresher struct {
	cache        *usecase.ConfigCache
	interval     time.Duration
	initialDelay time.Duration
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCacheRefresher creates a refresher. The first refresh runs after
// initialDelay, then every interval.
func NewCacheRefresher(cache *usecase.ConfigCache, interval, initialDelay time.Duration, logger *slog.Logger) *CacheRefresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheRefresher{
		cache:        cache,
		interval:     interval,
		initialDelay: initialDelay,
		logger:       logger.With("component", "refresher"),
	}
}

// Start starts the refresh loop
func (r *CacheRefresher) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.loop()

	r.logger.Info("cache refresher started", "interval", r.interval)
}

// Stop stops the loop and waits for an in-flight refresh
func (r *CacheRefresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("cache refresher stopped")
}

func (r *CacheRefresher) loop() {
	defer r.wg.Done()

	timer := time.NewTimer(r.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-timer.C:
			r.refresh()
			timer.Reset(r.interval)
		}
	}
}

func (r *CacheRefresher) refresh() {
	snap, err := r.cache.Refresh(r.ctx)
	if err != nil {
		r.logger.Error("cache refresh failed", "error", err)
		return
	}
	r.logger.Info("cache refreshed",
		"watched_messages", len(snap.WatchedMessageIDs),
		"approval_channels", len(snap.ApprovalChannelIDs))
}
