package data

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mottobotto/testflight-bot/internal/biz/repo"
)

// DedupeWindow is how long an event identity is remembered
const DedupeWindow = 5 * time.Minute

// memoryDedupe keeps seen keys in process
type memoryDedupe struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time
	sweeps int
}

// NewMemoryDedupe creates a process-local dedupe window
func NewMemoryDedupe(window time.Duration) repo.DedupeRepo {
	return &memoryDedupe{
		seen:   make(map[string]time.Time),
		window: window,
		now:    time.Now,
	}
}

func (d *memoryDedupe) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()

	// Sweep expired keys every so often
	d.sweeps++
	if d.sweeps >= 256 {
		d.sweeps = 0
		for k, at := range d.seen {
			if now.Sub(at) >= d.window {
				delete(d.seen, k)
			}
		}
	}

	if at, ok := d.seen[key]; ok && now.Sub(at) < d.window {
		return true, nil
	}
	d.seen[key] = now
	return false, nil
}

func (d *memoryDedupe) Forget(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

func (d *memoryDedupe) Close() error { return nil }

// redisDedupe shares the window between replicas
type redisDedupe struct {
	client *redis.Client
	prefix string
	window time.Duration
}

// NewRedisDedupe connects to redisURL and creates a shared dedupe window
func NewRedisDedupe(redisURL string, window time.Duration) (repo.DedupeRepo, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &redisDedupe{client: client, prefix: "testflight:event:", window: window}, nil
}

func (d *redisDedupe) Seen(ctx context.Context, key string) (bool, error) {
	set, err := d.client.SetNX(ctx, d.prefix+key, 1, d.window).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return !set, nil
}

func (d *redisDedupe) Forget(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (d *redisDedupe) Close() error {
	return d.client.Close()
}
