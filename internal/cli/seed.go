package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
	"github.com/mottobotto/testflight-bot/internal/data"
)

// SeedFile is the YAML layout accepted by botctl seed
type SeedFile struct {
	DistributionKeys []SeedKey          `yaml:"distribution_keys"`
	Apps             []SeedApp          `yaml:"apps"`
	ReactionRoles    []SeedReactionRole `yaml:"reaction_roles"`
	Guilds           []SeedGuild        `yaml:"guilds"`
}

// SeedKey is an App Store Connect key pair
type SeedKey struct {
	ID         string `yaml:"id"`
	IssuerID   string `yaml:"issuer_id"`
	KeyID      string `yaml:"key_id"`
	PrivateKey string `yaml:"private_key"`
	// PrivateKeyFile is read relative to the seed file
	PrivateKeyFile string `yaml:"private_key_file"`
}

// SeedApp is a beta app
type SeedApp struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	BetaGroupID       string `yaml:"beta_group_id"`
	BetaOpen          bool   `yaml:"beta_open"`
	DistributionKeyID string `yaml:"distribution_key_id"`
}

// SeedReactionRole maps an emoji on a message to a role
type SeedReactionRole struct {
	GuildID               string   `yaml:"guild_id"`
	MessageID             string   `yaml:"message_id"`
	Emoji                 string   `yaml:"emoji"`
	RoleID                string   `yaml:"role_id"`
	AppIDs                []string `yaml:"app_ids"`
	RequiresRulesApproval bool     `yaml:"requires_rules_approval"`
}

// SeedGuild is one guild's workflow configuration
type SeedGuild struct {
	GuildID                         string                   `yaml:"guild_id"`
	ApprovalEmojis                  []string                 `yaml:"approval_emojis"`
	RejectionEmojis                 []string                 `yaml:"rejection_emojis"`
	RemovalEmojis                   []string                 `yaml:"removal_emojis"`
	DefaultApprovalsChannelID       string                   `yaml:"default_approvals_channel_id"`
	RuleAgreementRoleID             string                   `yaml:"rule_agreement_role_id"`
	RuleAgreementMessage            *domain.AgreementMessage `yaml:"rule_agreement_message"`
	TesterExitNotificationChannelID string                   `yaml:"tester_exit_notification_channel_id"`
}

// SeedSummary counts what a seed run wrote
type SeedSummary struct {
	DistributionKeys int `json:"distribution_keys"`
	Apps             int `json:"apps"`
	ReactionRoles    int `json:"reaction_roles"`
	Guilds           int `json:"guilds"`
}

// LoadSeedFile parses a seed file and resolves key file paths
func LoadSeedFile(path string) (*SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	dir := filepath.Dir(path)
	for i, k := range seed.DistributionKeys {
		if k.PrivateKey != "" || k.PrivateKeyFile == "" {
			continue
		}
		keyPath := k.PrivateKeyFile
		if !filepath.IsAbs(keyPath) {
			keyPath = filepath.Join(dir, keyPath)
		}
		pem, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key for %s: %w", k.ID, err)
		}
		seed.DistributionKeys[i].PrivateKey = string(pem)
	}
	return &seed, nil
}

// Apply upserts every record in the seed file
func (s *SeedFile) Apply(ctx context.Context, st *data.Store) (SeedSummary, error) {
	var sum SeedSummary

	for _, k := range s.DistributionKeys {
		if k.ID == "" || k.PrivateKey == "" {
			return sum, fmt.Errorf("distribution key %q needs an id and a private key", k.ID)
		}
		err := st.UpsertDistributionKey(ctx, &domain.DistributionKey{
			ID: k.ID, IssuerID: k.IssuerID, KeyID: k.KeyID, PrivateKey: k.PrivateKey,
		})
		if err != nil {
			return sum, err
		}
		sum.DistributionKeys++
	}

	for _, a := range s.Apps {
		if a.ID == "" || a.Name == "" {
			return sum, fmt.Errorf("app %q needs an id and a name", a.ID)
		}
		err := st.UpsertApp(ctx, &domain.App{
			ID: a.ID, Name: a.Name, BetaGroupID: a.BetaGroupID, BetaOpen: a.BetaOpen,
			DistributionKeyID: a.DistributionKeyID,
		})
		if err != nil {
			return sum, err
		}
		sum.Apps++
	}

	for _, rr := range s.ReactionRoles {
		if rr.GuildID == "" || rr.MessageID == "" || rr.Emoji == "" || rr.RoleID == "" {
			return sum, fmt.Errorf("reaction role on message %q needs guild_id, message_id, emoji and role_id", rr.MessageID)
		}
		_, err := st.UpsertReactionRole(ctx, &domain.ReactionRole{
			GuildID: rr.GuildID, MessageID: rr.MessageID, Emoji: rr.Emoji, RoleID: rr.RoleID,
			AppIDs: rr.AppIDs, RequiresRulesApproval: rr.RequiresRulesApproval,
		})
		if err != nil {
			return sum, err
		}
		sum.ReactionRoles++
	}

	for _, g := range s.Guilds {
		if g.GuildID == "" {
			return sum, fmt.Errorf("guild entry needs a guild_id")
		}
		if err := applyGuild(ctx, st, g); err != nil {
			return sum, err
		}
		sum.Guilds++
	}
	return sum, nil
}

func applyGuild(ctx context.Context, st *data.Store, g SeedGuild) error {
	values := map[string]any{}
	if g.ApprovalEmojis != nil {
		values[domain.ConfigKeyApprovalEmojis] = g.ApprovalEmojis
	}
	if g.RejectionEmojis != nil {
		values[domain.ConfigKeyRejectionEmojis] = g.RejectionEmojis
	}
	if g.RemovalEmojis != nil {
		values[domain.ConfigKeyRemovalEmojis] = g.RemovalEmojis
	}
	if g.DefaultApprovalsChannelID != "" {
		values[domain.ConfigKeyDefaultApprovalsChannel] = g.DefaultApprovalsChannelID
	}
	if g.RuleAgreementRoleID != "" {
		values[domain.ConfigKeyRuleAgreementRole] = g.RuleAgreementRoleID
	}
	if g.RuleAgreementMessage != nil {
		values[domain.ConfigKeyRuleAgreementMessage] = g.RuleAgreementMessage
	}
	if g.TesterExitNotificationChannelID != "" {
		values[domain.ConfigKeyTesterExitChannel] = g.TesterExitNotificationChannelID
	}

	for key, value := range values {
		if err := st.SetGuildConfigValue(ctx, g.GuildID, key, value); err != nil {
			return err
		}
	}
	return nil
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(opts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert apps, keys, reaction roles and guild config from YAML",
		Long: `Upsert records from a YAML seed file. Existing records with the same
identity are updated, so a seed file can be applied repeatedly.

Examples:
  botctl seed -f seed.yaml
  botctl seed -f seed.yaml --db ./botto.db --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := LoadSeedFile(file)
			if err != nil {
				return err
			}

			st, err := openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			sum, err := seed.Apply(cmd.Context(), st)
			if err != nil {
				return err
			}

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), sum)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d keys, %d apps, %d reaction roles, %d guilds\n",
				sum.DistributionKeys, sum.Apps, sum.ReactionRoles, sum.Guilds)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
