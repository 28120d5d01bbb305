package data

import (
	"log/slog"

	"github.com/mottobotto/testflight-bot/internal/biz/repo"
	"github.com/mottobotto/testflight-bot/internal/conf"
	"github.com/mottobotto/testflight-bot/internal/infra/appstoreconnect"
	"github.com/mottobotto/testflight-bot/internal/infra/discord"
)

// Repositories contains all repositories
type Repositories struct {
	Store        *Store
	Chat         repo.ChatRepo
	Distribution repo.DistributionRepo
	Dedupe       repo.DedupeRepo
}

// NewRepositories creates all repositories
func NewRepositories(cfg *conf.Config, discordClient *discord.Client, logger *slog.Logger) (*Repositories, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := NewStore(cfg.Store.DBPath)
	if err != nil {
		return nil, err
	}

	// Redis shares the dedupe window between replicas when configured
	var dedupe repo.DedupeRepo
	if cfg.Store.RedisURL != "" {
		dedupe, err = NewRedisDedupe(cfg.Store.RedisURL, DedupeWindow)
		if err != nil {
			store.Close()
			return nil, err
		}
		logger.Info("event dedupe backed by redis")
	} else {
		dedupe = NewMemoryDedupe(DedupeWindow)
	}

	ascClient := appstoreconnect.NewClient(cfg.AppStore.BaseURL, nil)

	return &Repositories{
		Store:        store,
		Chat:         NewDiscordRepo(discordClient),
		Distribution: NewAppStoreRepo(ascClient, store, cfg.AppStore.DefaultKeyID),
		Dedupe:       dedupe,
	}, nil
}

// Close releases the store and dedupe connections
func (r *Repositories) Close() error {
	dedupeErr := r.Dedupe.Close()
	if err := r.Store.Close(); err != nil {
		return err
	}
	return dedupeErr
}
