package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	watched  []string
	channels []string
	calls    int
	err      error
}

func (s *countingSource) ListWatchedMessageIDs(ctx context.Context) ([]string, error) {
	s.calls++
	return s.watched, s.err
}

func (s *countingSource) ListApprovalChannelIDs(ctx context.Context) ([]string, error) {
	return s.channels, s.err
}

func TestConfigCache_FillsOnDemand(t *testing.T) {
	src := &countingSource{watched: []string{"m1"}, channels: []string{"c1"}}
	cache := NewConfigCache(src, time.Minute, nil)

	assert.True(t, cache.Snapshot().IsEmpty())

	ok, err := cache.IsWatchedMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.IsApprovalChannel(context.Background(), "c2")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, src.calls, "fresh snapshot should be reused")
}

func TestConfigCache_RefreshesWhenExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &countingSource{watched: []string{"m1"}}
	cache := NewConfigCache(src, time.Minute, nil)
	cache.now = func() time.Time { return now }

	_, err := cache.Refresh(context.Background())
	require.NoError(t, err)

	src.watched = []string{"m2"}
	now = now.Add(2 * time.Minute)

	ok, err := cache.IsWatchedMessage(context.Background(), "m2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, src.calls)
}

func TestConfigCache_StaleOnRefreshFailure(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &countingSource{watched: []string{"m1"}}
	cache := NewConfigCache(src, time.Minute, nil)
	cache.now = func() time.Time { return now }

	_, err := cache.Refresh(context.Background())
	require.NoError(t, err)

	src.err = errors.New("store down")
	now = now.Add(time.Hour)

	ok, err := cache.IsWatchedMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, ok, "stale snapshot should still answer")
}

func TestConfigCache_EmptyRefreshFailure(t *testing.T) {
	src := &countingSource{err: errors.New("store down")}
	cache := NewConfigCache(src, time.Minute, nil)

	_, err := cache.IsWatchedMessage(context.Background(), "m1")
	assert.Error(t, err)
}
