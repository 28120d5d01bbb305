package repo

import (
	"context"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
)

// TestFlightRepo is the record store for testers, apps and requests.
// Every failure is returned as a *domain.StoreError. Lookups return
// (nil, nil) when nothing matches.
type TestFlightRepo interface {
	// FindTester matches a tester by chat user ID
	FindTester(ctx context.Context, discordID string) (*domain.Tester, error)

	// FetchTester gets a tester by record ID
	FetchTester(ctx context.Context, id string) (*domain.Tester, error)

	// FindTesterByLeaveMessage finds the tester a leave notice was posted for
	FindTesterByLeaveMessage(ctx context.Context, messageID string) (*domain.Tester, error)

	// UpsertTester creates or updates a tester keyed by DiscordID.
	// An upsert with no changed fields performs no write.
	UpsertTester(ctx context.Context, tester *domain.Tester) (*domain.Tester, error)

	// ListRequests lists requests matching the filter, oldest first
	ListRequests(ctx context.Context, filter domain.RequestFilter) ([]*domain.TestingRequest, error)

	// AddRequest creates a new request
	AddRequest(ctx context.Context, request *domain.TestingRequest) (*domain.TestingRequest, error)

	// FetchRequest gets a request by record ID
	FetchRequest(ctx context.Context, id string) (*domain.TestingRequest, error)

	// FetchRequestByMessage finds the request a notification message belongs to
	FetchRequestByMessage(ctx context.Context, messageID string) (*domain.TestingRequest, error)

	// UpdateRequest persists a request's mutable fields
	UpdateRequest(ctx context.Context, request *domain.TestingRequest) error

	// UpdateRequests persists several requests at once
	UpdateRequests(ctx context.Context, requests []*domain.TestingRequest) error

	// FetchApp gets an app by ID
	FetchApp(ctx context.Context, id string) (*domain.App, error)

	// FindAppsByBetaGroup finds the apps served by any of the groups
	FindAppsByBetaGroup(ctx context.Context, groupIDs ...string) ([]*domain.App, error)

	// GetReactionRole gets the mapping for an emoji on a watched message
	GetReactionRole(ctx context.Context, guildID, messageID, emoji string) (*domain.ReactionRole, error)

	// ListWatchedMessageIDs lists every message with reaction roles
	ListWatchedMessageIDs(ctx context.Context) ([]string, error)

	// ListApprovalChannelIDs lists every channel a request notification went to
	ListApprovalChannelIDs(ctx context.Context) ([]string, error)
}

// ConfigRepo provides per-guild workflow configuration
type ConfigRepo interface {
	// GetGuildConfig gets a guild's configuration. Missing keys are left
	// at their zero values; a guild without any rows gets an empty config.
	GetGuildConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error)
}

// KeyRepo provides distribution API key pairs
type KeyRepo interface {
	// GetDistributionKey gets a key pair by ID, (nil, nil) when missing
	GetDistributionKey(ctx context.Context, id string) (*domain.DistributionKey, error)
}
