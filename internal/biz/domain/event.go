package domain

// ReactionEvent is a reaction-add event from the gateway
type ReactionEvent struct {
	UserID    string
	MessageID string
	ChannelID string
	GuildID   string
	Emoji     string
	// Member is set when the gateway delivered the acting member
	Member *Member
}

// Key identifies the event for redelivery detection
func (e *ReactionEvent) Key() string {
	return "reaction:" + e.GuildID + ":" + e.ChannelID + ":" + e.MessageID + ":" + e.UserID + ":" + e.Emoji
}

// Ref returns a reference to the reacted message
func (e *ReactionEvent) Ref() MessageRef {
	return MessageRef{GuildID: e.GuildID, ChannelID: e.ChannelID, MessageID: e.MessageID}
}

// MentionActor mentions the acting user
func (e *ReactionEvent) MentionActor() string {
	return MentionUser(e.UserID)
}

// MemberLeaveEvent is emitted when a user leaves a guild
type MemberLeaveEvent struct {
	UserID   string
	Username string
	GuildID  string
}

// Key identifies the event for redelivery detection
func (e *MemberLeaveEvent) Key() string {
	return "leave:" + e.GuildID + ":" + e.UserID
}

// MemberJoinEvent is emitted when a user joins a guild
type MemberJoinEvent struct {
	UserID  string
	GuildID string
}

// LeaveKey is the key of the member's next leave event
func (e *MemberJoinEvent) LeaveKey() string {
	return (&MemberLeaveEvent{UserID: e.UserID, GuildID: e.GuildID}).Key()
}
