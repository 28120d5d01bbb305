package data

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
	"github.com/mottobotto/testflight-bot/internal/biz/repo"
	"github.com/mottobotto/testflight-bot/internal/infra/discord"
)

// discordRepo implements ChatRepo on a discordgo session
type discordRepo struct {
	client  *discord.Client
	session *discordgo.Session

	mu        sync.Mutex
	dmChannel map[string]string // user ID to DM channel ID
}

// NewDiscordRepo creates the chat repository
func NewDiscordRepo(client *discord.Client) repo.ChatRepo {
	return &discordRepo{
		client:    client,
		session:   client.Session(),
		dmChannel: make(map[string]string),
	}
}

func (r *discordRepo) BotUserID() string {
	return r.client.BotUserID()
}

func (r *discordRepo) CachedMessage(channelID, messageID string) (*domain.Message, bool) {
	m, err := r.session.State.Message(channelID, messageID)
	if err != nil {
		return nil, false
	}
	return discord.ToMessage(m), true
}

func (r *discordRepo) FetchMessage(ctx context.Context, channelID, messageID string) (*domain.Message, error) {
	m, err := r.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", messageID, err)
	}
	return discord.ToMessage(m), nil
}

func (r *discordRepo) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	if err := r.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to add reaction %s: %w", emoji, err)
	}
	return nil
}

func (r *discordRepo) RemoveOwnReaction(ctx context.Context, channelID, messageID, emoji string) error {
	if err := r.session.MessageReactionRemove(channelID, messageID, emoji, "@me", discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to remove reaction %s: %w", emoji, err)
	}
	return nil
}

func toMessageSend(msg domain.OutgoingMessage) *discordgo.MessageSend {
	send := &discordgo.MessageSend{
		Content: msg.Content,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
		},
	}
	if msg.ReplyTo != nil {
		failIfNotExists := false
		send.Reference = &discordgo.MessageReference{
			MessageID:       msg.ReplyTo.MessageID,
			ChannelID:       msg.ReplyTo.ChannelID,
			GuildID:         msg.ReplyTo.GuildID,
			FailIfNotExists: &failIfNotExists,
		}
	}
	if msg.SuppressEmbeds {
		send.Flags = discordgo.MessageFlagsSuppressEmbeds
	}
	return send
}

func (r *discordRepo) SendMessage(ctx context.Context, channelID string, msg domain.OutgoingMessage) (*domain.Message, error) {
	m, err := r.session.ChannelMessageSendComplex(channelID, toMessageSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to send message to %s: %w", channelID, err)
	}
	return discord.ToMessage(m), nil
}

func (r *discordRepo) userChannel(ctx context.Context, userID string) (string, error) {
	r.mu.Lock()
	id, ok := r.dmChannel[userID]
	r.mu.Unlock()
	if ok {
		return id, nil
	}

	ch, err := r.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to open DM with %s: %w", userID, err)
	}
	r.mu.Lock()
	r.dmChannel[userID] = ch.ID
	r.mu.Unlock()
	return ch.ID, nil
}

func (r *discordRepo) SendDirectMessage(ctx context.Context, userID string, msg domain.OutgoingMessage) (*domain.Message, error) {
	channelID, err := r.userChannel(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.SendMessage(ctx, channelID, msg)
}

func (r *discordRepo) DirectMessage(ctx context.Context, userID, messageID string) (*domain.Message, error) {
	channelID, err := r.userChannel(ctx, userID)
	if err != nil {
		return nil, err
	}
	if m, ok := r.CachedMessage(channelID, messageID); ok {
		return m, nil
	}
	return r.FetchMessage(ctx, channelID, messageID)
}

func (r *discordRepo) GetMember(ctx context.Context, guildID, userID string) (*domain.Member, error) {
	if m, err := r.session.State.Member(guildID, userID); err == nil {
		return discord.ToMember(m), nil
	}

	m, err := r.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		if isUnknownMember(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member %s: %w", userID, err)
	}
	return discord.ToMember(m), nil
}

func isUnknownMember(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMember {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

func (r *discordRepo) AddRoles(ctx context.Context, guildID, userID string, roleIDs []string, reason string) error {
	for _, roleID := range roleIDs {
		if err := r.session.GuildMemberRoleAdd(guildID, userID, roleID,
			discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason)); err != nil {
			return fmt.Errorf("failed to add role %s to %s: %w", roleID, userID, err)
		}
	}
	return nil
}

func (r *discordRepo) MessageURL(ref domain.MessageRef) string {
	return discord.MessageURL(ref)
}
