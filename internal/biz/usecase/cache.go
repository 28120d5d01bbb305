package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCacheTTL is how long a snapshot is trusted before a lookup
// refreshes it on demand
const DefaultCacheTTL = 10 * time.Minute

// CacheSource lists the identifiers the workflow classifies events by
type CacheSource interface {
	ListWatchedMessageIDs(ctx context.Context) ([]string, error)
	ListApprovalChannelIDs(ctx context.Context) ([]string, error)
}

// CacheSnapshot is one consistent view of the cached identifiers
type CacheSnapshot struct {
	WatchedMessageIDs  map[string]struct{}
	ApprovalChannelIDs map[string]struct{}
	RefreshedAt        time.Time
}

// IsEmpty checks if the snapshot was never filled
func (s CacheSnapshot) IsEmpty() bool {
	return s.RefreshedAt.IsZero()
}

// ConfigCache caches watched message IDs and approval channel IDs.
// Lookups tolerate a stale snapshot; an empty one is filled on demand.
type ConfigCache struct {
	source CacheSource
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu       sync.RWMutex
	snapshot CacheSnapshot
}

// NewConfigCache creates an empty cache
func NewConfigCache(source CacheSource, ttl time.Duration, logger *slog.Logger) *ConfigCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigCache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With("component", "cache"),
	}
}

// Refresh reloads both identifier sets and swaps them in together
func (c *ConfigCache) Refresh(ctx context.Context) (CacheSnapshot, error) {
	var watched, channels []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		watched, err = c.source.ListWatchedMessageIDs(gctx)
		return err
	})
	g.Go(func() (err error) {
		channels, err = c.source.ListApprovalChannelIDs(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return c.Snapshot(), err
	}

	snap := CacheSnapshot{
		WatchedMessageIDs:  toSet(watched),
		ApprovalChannelIDs: toSet(channels),
		RefreshedAt:        c.now(),
	}

	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()

	c.logger.Debug("cache refreshed", "watched", len(watched), "channels", len(channels))
	return snap, nil
}

// Snapshot returns the current snapshot without refreshing it
func (c *ConfigCache) Snapshot() CacheSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// IsWatchedMessage checks if reactions on the message map to roles
func (c *ConfigCache) IsWatchedMessage(ctx context.Context, messageID string) (bool, error) {
	snap, err := c.current(ctx)
	if err != nil {
		return false, err
	}
	_, ok := snap.WatchedMessageIDs[messageID]
	return ok, nil
}

// IsApprovalChannel checks if request notifications were posted to the channel
func (c *ConfigCache) IsApprovalChannel(ctx context.Context, channelID string) (bool, error) {
	snap, err := c.current(ctx)
	if err != nil {
		return false, err
	}
	_, ok := snap.ApprovalChannelIDs[channelID]
	return ok, nil
}

func (c *ConfigCache) current(ctx context.Context) (CacheSnapshot, error) {
	snap := c.Snapshot()
	if snap.IsEmpty() {
		return c.Refresh(ctx)
	}
	if c.now().Sub(snap.RefreshedAt) < c.ttl {
		return snap, nil
	}

	fresh, err := c.Refresh(ctx)
	if err != nil {
		c.logger.Warn("cache refresh failed, using stale snapshot", "error", err, "age", c.now().Sub(snap.RefreshedAt))
		return snap, nil
	}
	return fresh, nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}
