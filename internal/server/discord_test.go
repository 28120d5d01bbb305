package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
	"github.com/mottobotto/testflight-bot/internal/data"
	"github.com/mottobotto/testflight-bot/internal/service"
)

type fakeHandler struct {
	mu        sync.Mutex
	reactions []*domain.ReactionEvent
	leaves    []*domain.MemberLeaveEvent
	outcome   service.Outcome
	err       error
}

func (f *fakeHandler) HandleReaction(_ context.Context, ev *domain.ReactionEvent) (service.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, ev)
	if f.outcome != service.NotHandled {
		return f.outcome, f.err
	}
	return service.Handled, f.err
}

func (f *fakeHandler) HandleMemberLeave(_ context.Context, ev *domain.MemberLeaveEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, ev)
	return f.err
}

type failingDedupe struct{}

func (failingDedupe) Seen(context.Context, string) (bool, error) { return false, errors.New("down") }
func (failingDedupe) Forget(context.Context, string) error       { return errors.New("down") }
func (failingDedupe) Close() error                               { return nil }

func TestDiscordServer_DropsRedeliveredEvents(t *testing.T) {
	h := &fakeHandler{}
	s := NewDiscordServer(nil, h, data.NewMemoryDedupe(time.Minute), nil, nil)

	ev := &domain.ReactionEvent{UserID: "u1", MessageID: "m1", ChannelID: "c1", GuildID: "g1", Emoji: "👍"}
	s.HandleReaction(ev)
	s.HandleReaction(ev)

	other := *ev
	other.Emoji = "👎"
	s.HandleReaction(&other)

	leave := &domain.MemberLeaveEvent{UserID: "u1", GuildID: "g1"}
	s.HandleMemberLeave(leave)
	s.HandleMemberLeave(leave)
	s.HandleReaction(nil)
	s.Wait()

	assert.Len(t, h.reactions, 2)
	assert.Len(t, h.leaves, 1)
}

func TestDiscordServer_DedupeFailureLetsEventsThrough(t *testing.T) {
	h := &fakeHandler{err: errors.New("boom")}
	s := NewDiscordServer(nil, h, failingDedupe{}, nil, nil)

	ev := &domain.ReactionEvent{UserID: "u1", MessageID: "m1", ChannelID: "c1", GuildID: "g1", Emoji: "👍"}
	s.HandleReaction(ev)
	s.HandleReaction(ev)
	s.HandleMemberLeave(&domain.MemberLeaveEvent{UserID: "u1", GuildID: "g1"})

	assert.Len(t, h.reactions, 2)
	assert.Len(t, h.leaves, 1)
}

func TestDiscordServer_ConcurrentEvents(t *testing.T) {
	h := &fakeHandler{}
	s := NewDiscordServer(nil, h, data.NewMemoryDedupe(time.Minute), nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.HandleReaction(&domain.ReactionEvent{UserID: "u1", MessageID: "m1", ChannelID: "c1", GuildID: "g1", Emoji: "👍"})
		}()
	}
	wg.Wait()
	s.Wait()

	assert.Len(t, h.reactions, 1)
}

func TestDiscordServer_FailedEventCanBeRetried(t *testing.T) {
	tests := []struct {
		name    string
		outcome service.Outcome
		err     error
	}{
		{"unexpected failure", service.NotHandled, errors.New("boom")},
		{"escalated", service.Escalated, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &fakeHandler{outcome: tt.outcome, err: tt.err}
			s := NewDiscordServer(nil, h, data.NewMemoryDedupe(time.Minute), nil, nil)

			ev := &domain.ReactionEvent{UserID: "mod", MessageID: "m1", ChannelID: "c1", GuildID: "g1", Emoji: "👍"}
			s.HandleReaction(ev)
			s.HandleReaction(ev)

			assert.Len(t, h.reactions, 2)
		})
	}
}

func TestDiscordServer_ReactionRemoveAllowsReadd(t *testing.T) {
	h := &fakeHandler{}
	s := NewDiscordServer(nil, h, data.NewMemoryDedupe(time.Minute), nil, nil)

	ev := &domain.ReactionEvent{UserID: "mod", MessageID: "m1", ChannelID: "c1", GuildID: "g1", Emoji: "👍"}
	s.HandleReaction(ev)
	s.HandleReaction(ev)
	s.HandleReactionRemove(ev)
	s.HandleReaction(ev)
	s.HandleReactionRemove(nil)

	assert.Len(t, h.reactions, 2)
}

func TestDiscordServer_RejoinAllowsSecondLeave(t *testing.T) {
	h := &fakeHandler{}
	s := NewDiscordServer(nil, h, data.NewMemoryDedupe(time.Minute), nil, nil)

	leave := &domain.MemberLeaveEvent{UserID: "u1", GuildID: "g1"}
	s.HandleMemberLeave(leave)
	s.HandleMemberJoin(&domain.MemberJoinEvent{UserID: "u1", GuildID: "g1"})
	s.HandleMemberLeave(leave)
	s.HandleMemberJoin(nil)

	assert.Len(t, h.leaves, 2)
}

func TestDiscordServer_FailedLeaveCanBeRetried(t *testing.T) {
	h := &fakeHandler{err: errors.New("store down")}
	s := NewDiscordServer(nil, h, data.NewMemoryDedupe(time.Minute), nil, nil)

	leave := &domain.MemberLeaveEvent{UserID: "u1", GuildID: "g1"}
	s.HandleMemberLeave(leave)
	s.HandleMemberLeave(leave)

	assert.Len(t, h.leaves, 2)
}
