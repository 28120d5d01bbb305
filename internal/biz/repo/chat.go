package repo

import (
	"context"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
)

// ChatRepo is the chat platform interface used by the workflow
type ChatRepo interface {
	// BotUserID gets the bot's own user ID
	BotUserID() string

	// CachedMessage gets a message from the local cache only
	CachedMessage(channelID, messageID string) (*domain.Message, bool)

	// FetchMessage fetches a message from the platform
	FetchMessage(ctx context.Context, channelID, messageID string) (*domain.Message, error)

	// AddReaction adds the bot's reaction to a message
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error

	// RemoveOwnReaction removes the bot's reaction from a message
	RemoveOwnReaction(ctx context.Context, channelID, messageID, emoji string) error

	// SendMessage sends a channel message. Mentions only ping users.
	SendMessage(ctx context.Context, channelID string, msg domain.OutgoingMessage) (*domain.Message, error)

	// SendDirectMessage sends a private message to a user
	SendDirectMessage(ctx context.Context, userID string, msg domain.OutgoingMessage) (*domain.Message, error)

	// DirectMessage gets a private message previously sent to a user
	DirectMessage(ctx context.Context, userID, messageID string) (*domain.Message, error)

	// GetMember gets a guild member, (nil, nil) when not a member
	GetMember(ctx context.Context, guildID, userID string) (*domain.Member, error)

	// AddRoles grants roles to a guild member
	AddRoles(ctx context.Context, guildID, userID string, roleIDs []string, reason string) error

	// MessageURL builds a link to a message
	MessageURL(ref domain.MessageRef) string
}

// GetOrFetchMessage returns the cached message or fetches it
func GetOrFetchMessage(ctx context.Context, chat ChatRepo, channelID, messageID string) (*domain.Message, error) {
	if m, ok := chat.CachedMessage(channelID, messageID); ok {
		return m, nil
	}
	return chat.FetchMessage(ctx, channelID, messageID)
}
