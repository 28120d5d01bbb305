package domain

import "time"

// Message represents a chat message entity
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	AuthorID  string
	Content   string
	CreatedAt time.Time
	Reactions []Reaction
}

// Reaction is one emoji tally on a message
type Reaction struct {
	Emoji string
	Count int
	Me    bool // Whether the bot itself reacted
}

// MessageRef points at a message without holding it
type MessageRef struct {
	GuildID   string
	ChannelID string
	MessageID string
}

// OutgoingMessage is a channel message to be sent
type OutgoingMessage struct {
	Content string
	// ReplyTo makes the message a reply. Missing targets are tolerated.
	ReplyTo        *MessageRef
	SuppressEmbeds bool
}

// IsFromBot checks if the message was authored by the bot
func (m *Message) IsFromBot(botID string) bool {
	return m.AuthorID == botID
}

// HasReaction checks if any user has reacted with the emoji
func (m *Message) HasReaction(emoji string) bool {
	for _, r := range m.Reactions {
		if r.Emoji == emoji && r.Count > 0 {
			return true
		}
	}
	return false
}

// Ref returns a reference to this message
func (m *Message) Ref() MessageRef {
	return MessageRef{GuildID: m.GuildID, ChannelID: m.ChannelID, MessageID: m.ID}
}

// IsAfter reports whether the message was created after t
func (m *Message) IsAfter(t time.Time) bool {
	return m.CreatedAt.After(t)
}
