package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
)

var appSelect = `SELECT a.id, a.name, a.beta_group_id, a.beta_open, a.distribution_key_id, ` +
	appRolesExpr("a.id") + ` FROM apps a`

func scanApp(row scanner) (*domain.App, error) {
	var app domain.App
	var open int
	var roles string
	if err := row.Scan(&app.ID, &app.Name, &app.BetaGroupID, &open, &app.DistributionKeyID, &roles); err != nil {
		return nil, err
	}
	ids, err := decodeIDs(roles)
	if err != nil {
		return nil, err
	}
	app.BetaOpen = open != 0
	app.RoleIDs = ids
	return &app, nil
}

// FetchApp gets an app by ID
func (s *Store) FetchApp(ctx context.Context, id string) (*domain.App, error) {
	app, err := scanApp(s.db.QueryRowContext(ctx, appSelect+` WHERE a.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStoreError("fetch app", err)
	}
	return app, nil
}

// ListApps lists every app by name
func (s *Store) ListApps(ctx context.Context) ([]*domain.App, error) {
	return s.queryApps(ctx, "list apps", appSelect+` ORDER BY a.name`)
}

// FindAppsByBetaGroup finds the apps served by any of the groups
func (s *Store) FindAppsByBetaGroup(ctx context.Context, groupIDs ...string) ([]*domain.App, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(groupIDs))
	for i, id := range groupIDs {
		args[i] = id
	}
	return s.queryApps(ctx, "find apps by beta group",
		appSelect+` WHERE a.beta_group_id IN (`+placeholders(len(groupIDs))+`) ORDER BY a.id`, args...)
}

func (s *Store) queryApps(ctx context.Context, op, query string, args ...any) ([]*domain.App, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStoreError(op, err)
	}
	defer rows.Close()

	var apps []*domain.App
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, domain.NewStoreError(op, err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError(op, err)
	}
	return apps, nil
}

// UpsertApp creates or replaces an app
func (s *Store) UpsertApp(ctx context.Context, app *domain.App) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO apps (id, name, beta_group_id, beta_open, distribution_key_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, beta_group_id = excluded.beta_group_id,
			beta_open = excluded.beta_open, distribution_key_id = excluded.distribution_key_id
	`, app.ID, app.Name, app.BetaGroupID, boolInt(app.BetaOpen), app.DistributionKeyID)
	return domain.NewStoreError("upsert app", err)
}

// GetReactionRole gets the mapping for an emoji on a watched message
func (s *Store) GetReactionRole(ctx context.Context, guildID, messageID, emoji string) (*domain.ReactionRole, error) {
	var rr domain.ReactionRole
	var rules int
	var apps string
	err := s.db.QueryRowContext(ctx, `
		SELECT rr.id, rr.guild_id, rr.message_id, rr.emoji, rr.role_id, rr.requires_rules_approval,
			(SELECT json_group_array(app_id) FROM
				(SELECT app_id FROM reaction_role_apps WHERE reaction_role_id = rr.id ORDER BY position))
		FROM reaction_roles rr
		WHERE rr.guild_id = ? AND rr.message_id = ? AND rr.emoji = ?
	`, guildID, messageID, emoji).Scan(&rr.ID, &rr.GuildID, &rr.MessageID, &rr.Emoji, &rr.RoleID, &rules, &apps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStoreError("get reaction role", err)
	}
	if rr.AppIDs, err = decodeIDs(apps); err != nil {
		return nil, domain.NewStoreError("get reaction role", err)
	}
	rr.RequiresRulesApproval = rules != 0
	return &rr, nil
}

// UpsertReactionRole creates or replaces the mapping for its guild,
// message and emoji, including its app list
func (s *Store) UpsertReactionRole(ctx context.Context, rr *domain.ReactionRole) (*domain.ReactionRole, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.NewStoreError("begin upsert reaction role", err)
	}
	defer tx.Rollback()

	saved := *rr
	err = tx.QueryRowContext(ctx, `SELECT id FROM reaction_roles WHERE guild_id = ? AND message_id = ? AND emoji = ?`,
		rr.GuildID, rr.MessageID, rr.Emoji).Scan(&saved.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if saved.ID == "" {
			saved.ID = newID()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reaction_roles (id, guild_id, message_id, emoji, role_id, requires_rules_approval)
			VALUES (?, ?, ?, ?, ?, ?)
		`, saved.ID, saved.GuildID, saved.MessageID, saved.Emoji, saved.RoleID, boolInt(saved.RequiresRulesApproval))
	case err == nil:
		_, err = tx.ExecContext(ctx, `UPDATE reaction_roles SET role_id = ?, requires_rules_approval = ? WHERE id = ?`,
			saved.RoleID, boolInt(saved.RequiresRulesApproval), saved.ID)
	}
	if err != nil {
		return nil, domain.NewStoreError("upsert reaction role", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM reaction_role_apps WHERE reaction_role_id = ?`, saved.ID); err != nil {
		return nil, domain.NewStoreError("upsert reaction role apps", err)
	}
	for i, appID := range saved.AppIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO reaction_role_apps (reaction_role_id, app_id, position) VALUES (?, ?, ?)`,
			saved.ID, appID, i); err != nil {
			return nil, domain.NewStoreError("upsert reaction role apps", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.NewStoreError("commit reaction role", err)
	}
	return &saved, nil
}

// ListWatchedMessageIDs lists every message with a reaction role
func (s *Store) ListWatchedMessageIDs(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, "list watched messages", `SELECT DISTINCT message_id FROM reaction_roles`)
}

// GetDistributionKey gets a key pair by ID
func (s *Store) GetDistributionKey(ctx context.Context, id string) (*domain.DistributionKey, error) {
	var k domain.DistributionKey
	err := s.db.QueryRowContext(ctx, `SELECT id, issuer_id, key_id, private_key FROM distribution_keys WHERE id = ?`, id).
		Scan(&k.ID, &k.IssuerID, &k.KeyID, &k.PrivateKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStoreError("get distribution key", err)
	}
	return &k, nil
}

// UpsertDistributionKey creates or replaces a key pair
func (s *Store) UpsertDistributionKey(ctx context.Context, k *domain.DistributionKey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO distribution_keys (id, issuer_id, key_id, private_key) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET issuer_id = excluded.issuer_id, key_id = excluded.key_id,
			private_key = excluded.private_key
	`, k.ID, k.IssuerID, k.KeyID, k.PrivateKey)
	return domain.NewStoreError("upsert distribution key", err)
}

// GetGuildConfig reads a guild's key/value configuration
func (s *Store) GetGuildConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM guild_config WHERE guild_id = ?`, guildID)
	if err != nil {
		return nil, domain.NewStoreError("get guild config", err)
	}
	defer rows.Close()

	cfg := &domain.GuildConfig{GuildID: guildID}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, domain.NewStoreError("get guild config", err)
		}
		if err := decodeConfigValue(cfg, key, []byte(value)); err != nil {
			return nil, domain.NewStoreError("decode guild config "+key, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("get guild config", err)
	}
	return cfg, nil
}

func decodeConfigValue(cfg *domain.GuildConfig, key string, raw []byte) error {
	var target any
	switch key {
	case domain.ConfigKeyApprovalEmojis:
		target = &cfg.ApprovalEmojis
	case domain.ConfigKeyRejectionEmojis:
		target = &cfg.RejectionEmojis
	case domain.ConfigKeyRemovalEmojis:
		target = &cfg.RemovalEmojis
	case domain.ConfigKeyDefaultApprovalsChannel:
		target = &cfg.DefaultApprovalsChannelID
	case domain.ConfigKeyRuleAgreementRole:
		target = &cfg.RuleAgreementRoleID
	case domain.ConfigKeyRuleAgreementMessage:
		target = &cfg.RuleAgreementMessage
	case domain.ConfigKeyTesterExitChannel:
		target = &cfg.TesterExitNotificationChannelID
	default:
		return nil
	}
	return json.Unmarshal(raw, target)
}

// SetGuildConfigValue stores one configuration key as JSON
func (s *Store) SetGuildConfigValue(ctx context.Context, guildID, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO guild_config (guild_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT (guild_id, key) DO UPDATE SET value = excluded.value
	`, guildID, key, string(raw))
	return domain.NewStoreError("set guild config "+key, err)
}
