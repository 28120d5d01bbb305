package domain

// App is a beta distribution target
type App struct {
	ID                string
	Name              string
	BetaGroupID       string
	BetaOpen          bool
	DistributionKeyID string   // Provider key pair used for distribution API calls
	RoleIDs           []string // Roles granted to approved testers, from reaction roles
}

// DistributionKey is a provider key pair for the distribution API
type DistributionKey struct {
	ID         string
	IssuerID   string
	KeyID      string
	PrivateKey string // PEM encoded P-256 key
}

// BetaTester is a tester as known by the distribution API
type BetaTester struct {
	ID           string
	Email        string
	BetaGroupIDs []string
}

// ReactionRole maps a (guild, message, emoji) to a role or a set of apps
type ReactionRole struct {
	ID                    string
	GuildID               string
	MessageID             string
	Emoji                 string
	RoleID                string
	AppIDs                []string
	RequiresRulesApproval bool
}

// IsDirectGrant checks if the mapping grants the role without approval.
// Any blank app ID means the mapping is not tied to an app.
func (r *ReactionRole) IsDirectGrant() bool {
	if len(r.AppIDs) == 0 {
		return true
	}
	for _, id := range r.AppIDs {
		if id == "" {
			return true
		}
	}
	return false
}

// AgreementMessage locates the rules agreement message
type AgreementMessage struct {
	ChannelID string `json:"channel" yaml:"channel"`
	MessageID string `json:"message" yaml:"message"`
}

// GuildConfig is the per-guild workflow configuration
type GuildConfig struct {
	GuildID                         string
	ApprovalEmojis                  []string
	RejectionEmojis                 []string
	RemovalEmojis                   []string
	DefaultApprovalsChannelID       string
	RuleAgreementRoleID             string
	RuleAgreementMessage            *AgreementMessage
	TesterExitNotificationChannelID string
}

// Guild config keys as stored
const (
	ConfigKeyApprovalEmojis          = "approval_emojis"
	ConfigKeyRejectionEmojis         = "rejection_emojis"
	ConfigKeyRemovalEmojis           = "removal_emojis"
	ConfigKeyDefaultApprovalsChannel = "default_approvals_channel_id"
	ConfigKeyRuleAgreementRole       = "rule_agreement_role_id"
	ConfigKeyRuleAgreementMessage    = "rule_agreement_message"
	ConfigKeyTesterExitChannel       = "tester_exit_notification_channel_id"
)

// IsApprovalEmoji checks the guild's approval emoji set
func (c *GuildConfig) IsApprovalEmoji(emoji string) bool {
	return containsEmoji(c.ApprovalEmojis, emoji)
}

// IsRejectionEmoji checks the guild's rejection emoji set
func (c *GuildConfig) IsRejectionEmoji(emoji string) bool {
	return containsEmoji(c.RejectionEmojis, emoji)
}

// IsRemovalEmoji checks the guild's removal emoji set
func (c *GuildConfig) IsRemovalEmoji(emoji string) bool {
	return containsEmoji(c.RemovalEmojis, emoji)
}

func containsEmoji(set []string, emoji string) bool {
	for _, e := range set {
		if e == emoji {
			return true
		}
	}
	return false
}
