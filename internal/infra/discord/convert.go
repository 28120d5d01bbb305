package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
)

// ToMessage converts a discordgo message
func ToMessage(m *discordgo.Message) *domain.Message {
	if m == nil {
		return nil
	}
	msg := &domain.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		CreatedAt: m.Timestamp,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
	}
	if msg.CreatedAt.IsZero() {
		if ts, err := discordgo.SnowflakeTimestamp(m.ID); err == nil {
			msg.CreatedAt = ts
		}
	}
	for _, r := range m.Reactions {
		if r == nil || r.Emoji == nil {
			continue
		}
		msg.Reactions = append(msg.Reactions, domain.Reaction{Emoji: r.Emoji.Name, Count: r.Count, Me: r.Me})
	}
	return msg
}

// ToMember converts a discordgo guild member
func ToMember(m *discordgo.Member) *domain.Member {
	if m == nil || m.User == nil {
		return nil
	}
	name := m.Nick
	if name == "" {
		name = m.User.Username
	}
	return &domain.Member{
		UserID:  m.User.ID,
		Name:    name,
		RoleIDs: append([]string(nil), m.Roles...),
		Bot:     m.User.Bot,
	}
}

// ToReactionEvent converts a reaction-add gateway event
func ToReactionEvent(ev *discordgo.MessageReactionAdd) *domain.ReactionEvent {
	if ev == nil || ev.MessageReaction == nil {
		return nil
	}
	out := &domain.ReactionEvent{
		UserID:    ev.UserID,
		MessageID: ev.MessageID,
		ChannelID: ev.ChannelID,
		GuildID:   ev.GuildID,
		Emoji:     ev.Emoji.Name,
	}
	if member := ToMember(ev.Member); member != nil {
		out.Member = member
	} else if ev.Member != nil {
		// Reaction payloads omit the user inside the member
		out.Member = &domain.Member{
			UserID:  ev.UserID,
			Name:    ev.Member.Nick,
			RoleIDs: append([]string(nil), ev.Member.Roles...),
		}
	}
	return out
}

// ToMemberLeaveEvent converts a member-leave gateway event
func ToMemberLeaveEvent(ev *discordgo.GuildMemberRemove) *domain.MemberLeaveEvent {
	if ev == nil || ev.Member == nil || ev.User == nil {
		return nil
	}
	return &domain.MemberLeaveEvent{
		UserID:   ev.User.ID,
		Username: ev.User.Username,
		GuildID:  ev.GuildID,
	}
}

// ToReactionRemoveEvent converts a reaction-remove gateway event. The
// result carries no member.
func ToReactionRemoveEvent(ev *discordgo.MessageReactionRemove) *domain.ReactionEvent {
	if ev == nil || ev.MessageReaction == nil {
		return nil
	}
	return &domain.ReactionEvent{
		UserID:    ev.UserID,
		MessageID: ev.MessageID,
		ChannelID: ev.ChannelID,
		GuildID:   ev.GuildID,
		Emoji:     ev.Emoji.Name,
	}
}

// ToMemberJoinEvent converts a member-join gateway event
func ToMemberJoinEvent(ev *discordgo.GuildMemberAdd) *domain.MemberJoinEvent {
	if ev == nil || ev.Member == nil || ev.User == nil {
		return nil
	}
	return &domain.MemberJoinEvent{UserID: ev.User.ID, GuildID: ev.GuildID}
}

// MessageURL builds the jump link for a message
func MessageURL(ref domain.MessageRef) string {
	guild := ref.GuildID
	if guild == "" {
		guild = "@me"
	}
	return "https://discord.com/channels/" + guild + "/" + ref.ChannelID + "/" + ref.MessageID
}
