package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
	"github.com/mottobotto/testflight-bot/internal/biz/repo"

	_ "modernc.org/sqlite"
)

var (
	_ repo.TestFlightRepo = (*Store)(nil)
	_ repo.ConfigRepo     = (*Store)(nil)
	_ repo.KeyRepo        = (*Store)(nil)
)

// Store is the SQLite record store
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens the database at dbPath and migrates the schema
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers and keeps an in-memory database alive
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS testers (
		id TEXT PRIMARY KEY,
		discord_id TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		given_name TEXT NOT NULL DEFAULT '',
		family_name TEXT NOT NULL DEFAULT '',
		registration_message_id TEXT NOT NULL DEFAULT '',
		leave_message_ids TEXT NOT NULL DEFAULT '[]',
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS apps (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		beta_group_id TEXT NOT NULL DEFAULT '',
		beta_open INTEGER NOT NULL DEFAULT 0,
		distribution_key_id TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_apps_beta_group ON apps(beta_group_id)`,
	`CREATE TABLE IF NOT EXISTS distribution_keys (
		id TEXT PRIMARY KEY,
		issuer_id TEXT NOT NULL,
		key_id TEXT NOT NULL,
		private_key TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reaction_roles (
		id TEXT PRIMARY KEY,
		guild_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		emoji TEXT NOT NULL,
		role_id TEXT NOT NULL,
		requires_rules_approval INTEGER NOT NULL DEFAULT 0,
		UNIQUE (guild_id, message_id, emoji)
	)`,
	`CREATE TABLE IF NOT EXISTS reaction_role_apps (
		reaction_role_id TEXT NOT NULL,
		app_id TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (reaction_role_id, app_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reaction_role_apps_app ON reaction_role_apps(app_id)`,
	`CREATE TABLE IF NOT EXISTS testing_requests (
		id TEXT PRIMARY KEY,
		tester_id TEXT NOT NULL,
		tester_discord_id TEXT NOT NULL,
		app_id TEXT NOT NULL,
		server_id TEXT NOT NULL DEFAULT '',
		approval_channel_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		notification_message_id TEXT NOT NULL DEFAULT '',
		further_notification_message_ids TEXT NOT NULL DEFAULT '[]',
		removed INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_tester ON testing_requests(tester_discord_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_notification ON testing_requests(notification_message_id)`,
	`CREATE TABLE IF NOT EXISTS guild_config (
		guild_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (guild_id, key)
	)`,
}

// Migrate creates any missing tables and indexes
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return domain.NewStoreError("migrate", err)
		}
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func newID() string {
	return uuid.NewString()
}

func encodeIDs(ids []string) string {
	if len(ids) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func decodeIDs(raw string) ([]string, error) {
	if raw == "" || raw == "[]" || raw == "null" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("failed to decode id list: %w", err)
	}
	return ids, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scanner interface {
	Scan(dest ...any) error
}
