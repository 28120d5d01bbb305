package biz

import (
	"log/slog"
	"time"

	"github.com/mottobotto/testflight-bot/internal/biz/repo"
	"github.com/mottobotto/testflight-bot/internal/biz/usecase"
)

// RecordStore is everything the usecases need from the record store
type RecordStore interface {
	repo.TestFlightRepo
	repo.ConfigRepo
	usecase.CacheSource
}

// Usecases contains all usecases
type Usecases struct {
	Cache         *usecase.ConfigCache
	ReactionRoles *usecase.ReactionRoleUsecase
}

// NewUsecases wires the usecases over the repositories
func NewUsecases(
	store RecordStore,
	chat repo.ChatRepo,
	dist repo.DistributionRepo,
	cacheTTL time.Duration,
	cfg usecase.ReactionRoleConfig,
	logger *slog.Logger,
) *Usecases {
	cache := usecase.NewConfigCache(store, cacheTTL, logger)
	return &Usecases{
		Cache:         cache,
		ReactionRoles: usecase.NewReactionRoleUsecase(store, store, chat, dist, cache, cfg, logger),
	}
}
