package conf

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mottobotto/testflight-bot/internal/biz/usecase"
)

// Config represents application configuration
type Config struct {
	// Discord configuration
	Discord DiscordConfig

	// Store configuration
	Store StoreConfig

	// App Store Connect configuration
	AppStore AppStoreConfig

	// Workflow tuning
	Workflow WorkflowConfig

	// APIAddr is the admin HTTP API listen address, empty disables it
	APIAddr string `env:"API_ADDR" envDefault:"127.0.0.1:9876"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Debug mode
	Debug bool `env:"DEBUG"`
}

// DiscordConfig contains Discord configuration
type DiscordConfig struct {
	Token string `env:"DISCORD_TOKEN"`
	// MaxMessages is the size of the gateway message cache per channel
	MaxMessages int `env:"DISCORD_MAX_MESSAGES" envDefault:"1000"`
}

// StoreConfig contains persistence configuration
type StoreConfig struct {
	DBPath string `env:"DB_PATH" envDefault:"~/.testflight-bot/botto.db"`
	// RedisURL enables the shared event dedupe window
	RedisURL string `env:"REDIS_URL"`
}

// AppStoreConfig contains App Store Connect configuration
type AppStoreConfig struct {
	BaseURL string `env:"ASC_BASE_URL" envDefault:"https://api.appstoreconnect.apple.com"`
	// DefaultKeyID is the key used for searches not scoped to an app
	DefaultKeyID string `env:"ASC_DEFAULT_KEY_ID"`
}

// WorkflowConfig contains reaction workflow timings
type WorkflowConfig struct {
	CacheRefreshMinutes         int `env:"CACHE_REFRESH_MINUTES" envDefault:"30"`
	CacheTTLSeconds             int `env:"CACHE_TTL_SECONDS" envDefault:"600"`
	RegistrationCooldownMinutes int `env:"REGISTRATION_COOLDOWN_MINUTES" envDefault:"30"`
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	path, err := expandHome(cfg.Store.DBPath)
	if err != nil {
		return nil, err
	}
	cfg.Store.DBPath = path
	return &cfg, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// CacheRefreshInterval is the periodic config cache refresh interval
func (c *WorkflowConfig) CacheRefreshInterval() time.Duration {
	return time.Duration(c.CacheRefreshMinutes) * time.Minute
}

// CacheTTL is how long a config cache snapshot stays fresh
func (c *WorkflowConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// ToReactionRoleConfig converts to the usecase configuration
func (c *WorkflowConfig) ToReactionRoleConfig() usecase.ReactionRoleConfig {
	cfg := usecase.DefaultReactionRoleConfig()
	if c.RegistrationCooldownMinutes > 0 {
		cfg.RegistrationCooldown = time.Duration(c.RegistrationCooldownMinutes) * time.Minute
	}
	return cfg
}

// SlogLevel parses LogLevel, DEBUG forces debug
func (c *Config) SlogLevel() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate validates the configuration needed by the bot
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return &ConfigError{Field: "DISCORD_TOKEN", Message: "required"}
	}
	if c.Store.DBPath == "" {
		return &ConfigError{Field: "DB_PATH", Message: "required"}
	}
	if c.Workflow.CacheRefreshMinutes <= 0 {
		return &ConfigError{Field: "CACHE_REFRESH_MINUTES", Message: "must be positive"}
	}
	if c.Workflow.CacheTTLSeconds <= 0 {
		return &ConfigError{Field: "CACHE_TTL_SECONDS", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
