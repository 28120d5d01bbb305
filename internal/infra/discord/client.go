package discord

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Intents the workflow needs: reactions, member exits and DMs
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsDirectMessages

// ReactionHandler is the callback for reaction-add events
type ReactionHandler func(ev *discordgo.MessageReactionAdd)

// MemberRemoveHandler is the callback for member-leave events
type MemberRemoveHandler func(ev *discordgo.GuildMemberRemove)

// ReactionRemoveHandler is the callback for reaction-remove events
type ReactionRemoveHandler func(ev *discordgo.MessageReactionRemove)

// MemberAddHandler is the callback for member-join events
type MemberAddHandler func(ev *discordgo.GuildMemberAdd)

// Client is the Discord gateway connection
type Client struct {
	session *discordgo.Session
	logger  *slog.Logger

	mu               sync.Mutex
	onReaction       ReactionHandler
	onMemberRemove   MemberRemoveHandler
	onReactionRemove ReactionRemoveHandler
	onMemberAdd      MemberAddHandler
}

// NewClient creates a client for a bot token. maxMessages bounds the
// local message cache.
func NewClient(token string, maxMessages int, logger *slog.Logger) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = Intents
	session.StateEnabled = true
	session.State.MaxMessageCount = maxMessages

	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{session: session, logger: logger.With("component", "discord")}

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		c.logger.Info("connected", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	session.AddHandler(func(_ *discordgo.Session, ev *discordgo.MessageReactionAdd) {
		c.mu.Lock()
		h := c.onReaction
		c.mu.Unlock()
		if h != nil {
			h(ev)
		}
	})
	session.AddHandler(func(_ *discordgo.Session, ev *discordgo.GuildMemberRemove) {
		c.mu.Lock()
		h := c.onMemberRemove
		c.mu.Unlock()
		if h != nil {
			h(ev)
		}
	})
	session.AddHandler(func(_ *discordgo.Session, ev *discordgo.MessageReactionRemove) {
		c.mu.Lock()
		h := c.onReactionRemove
		c.mu.Unlock()
		if h != nil {
			h(ev)
		}
	})
	session.AddHandler(func(_ *discordgo.Session, ev *discordgo.GuildMemberAdd) {
		c.mu.Lock()
		h := c.onMemberAdd
		c.mu.Unlock()
		if h != nil {
			h(ev)
		}
	})
	return c, nil
}

// Session returns the underlying session for REST calls
func (c *Client) Session() *discordgo.Session {
	return c.session
}

// OnReaction sets the reaction-add handler
func (c *Client) OnReaction(handler ReactionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReaction = handler
}

// OnMemberRemove sets the member-leave handler
func (c *Client) OnMemberRemove(handler MemberRemoveHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMemberRemove = handler
}

// OnReactionRemove sets the reaction-remove handler
func (c *Client) OnReactionRemove(handler ReactionRemoveHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReactionRemove = handler
}

// OnMemberAdd sets the member-join handler
func (c *Client) OnMemberAdd(handler MemberAddHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMemberAdd = handler
}

// Start opens the gateway connection. Events are dispatched on their
// own goroutines.
func (c *Client) Start() error {
	c.session.SyncEvents = false
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	return nil
}

// Stop closes the gateway connection
func (c *Client) Stop() error {
	return c.session.Close()
}

// BotUserID returns the bot's user ID once connected
func (c *Client) BotUserID() string {
	if c.session.State == nil || c.session.State.User == nil {
		return ""
	}
	return c.session.State.User.ID
}
