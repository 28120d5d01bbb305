package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mottobotto/testflight-bot/internal/api"
	"github.com/mottobotto/testflight-bot/internal/biz"
	"github.com/mottobotto/testflight-bot/internal/conf"
	"github.com/mottobotto/testflight-bot/internal/data"
	"github.com/mottobotto/testflight-bot/internal/infra/discord"
	"github.com/mottobotto/testflight-bot/internal/server"
	"github.com/mottobotto/testflight-bot/internal/service"
)

// First cache refresh runs this long after start
const cacheInitialDelay = 5 * time.Second

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := conf.LoadFromEnv()
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	// Initialize clients
	discordClient, err := discord.NewClient(cfg.Discord.Token, cfg.Discord.MaxMessages, logger)
	if err != nil {
		log.Fatalf("Failed to create Discord client: %v", err)
	}

	// Initialize repository layer
	repos, err := data.NewRepositories(cfg, discordClient, logger)
	if err != nil {
		log.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()
	logger.Info("store opened", "db_path", cfg.Store.DBPath)

	// Initialize usecase layer
	ucs := biz.NewUsecases(
		repos.Store,
		repos.Chat,
		repos.Distribution,
		cfg.Workflow.CacheTTL(),
		cfg.Workflow.ToReactionRoleConfig(),
		logger,
	)
	cache := ucs.Cache

	// Initialize service layer
	reactionSvc := service.NewReactionRoleService(ucs.ReactionRoles, repos.Chat, logger)
	refresher := service.NewCacheRefresher(cache, cfg.Workflow.CacheRefreshInterval(), cacheInitialDelay, logger)

	// Initialize admin HTTP API
	var apiServer *api.Server
	if cfg.APIAddr != "" {
		apiServer = api.NewServer(repos.Store, cache, cfg.APIAddr, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("API server error", "error", err)
			}
		}()
	}

	// Initialize server
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := server.NewDiscordServer(discordClient, reactionSvc, repos.Dedupe, refresher, logger)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	logger.Info("TestFlight bot running")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	srv.Stop()
	if apiServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Warn("API server shutdown failed", "error", err)
		}
	}
}
