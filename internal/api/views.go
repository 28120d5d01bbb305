package api

import (
	"time"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
	"github.com/mottobotto/testflight-bot/internal/biz/usecase"
)

// Request is the JSON view of a testing request
type Request struct {
	ID                     string    `json:"id"`
	TesterID               string    `json:"tester_id"`
	TesterDiscordID        string    `json:"tester_discord_id"`
	AppID                  string    `json:"app_id"`
	AppName                string    `json:"app_name"`
	ServerID               string    `json:"server_id"`
	ApprovalChannelID      string    `json:"approval_channel_id,omitempty"`
	Status                 string    `json:"status"`
	NotificationMessageIDs []string  `json:"notification_message_ids"`
	Removed                bool      `json:"removed"`
	Created                time.Time `json:"created"`
}

// Tester is the JSON view of a tester. Email is reported as a flag only.
type Tester struct {
	ID              string    `json:"id"`
	DiscordID       string    `json:"discord_id"`
	Username        string    `json:"username"`
	Registered      bool      `json:"registered"`
	LeaveMessageIDs []string  `json:"leave_message_ids"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// App is the JSON view of an app
type App struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	BetaGroupID        string   `json:"beta_group_id"`
	BetaOpen           bool     `json:"beta_open"`
	HasDistributionKey bool     `json:"has_distribution_key"`
	RoleIDs            []string `json:"role_ids"`
}

// CacheStatus is the JSON view of the config cache
type CacheStatus struct {
	WatchedMessageIDs  []string  `json:"watched_message_ids"`
	ApprovalChannelIDs []string  `json:"approval_channel_ids"`
	RefreshedAt        time.Time `json:"refreshed_at"`
}

// ConvertRequest converts a domain request
func ConvertRequest(r *domain.TestingRequest) Request {
	ids := []string{}
	if r.NotificationMessageID != "" {
		ids = append(ids, r.NotificationMessageID)
	}
	ids = append(ids, r.FurtherNotificationMessageIDs...)
	return Request{
		ID:                     r.ID,
		TesterID:               r.TesterID,
		TesterDiscordID:        r.TesterDiscordID,
		AppID:                  r.AppID,
		AppName:                r.AppName,
		ServerID:               r.ServerID,
		ApprovalChannelID:      r.ApprovalChannelID,
		Status:                 string(r.Status),
		NotificationMessageIDs: ids,
		Removed:                r.Removed,
		Created:                r.Created,
	}
}

// ConvertRequests converts a request listing
func ConvertRequests(requests []*domain.TestingRequest) []Request {
	out := make([]Request, len(requests))
	for i, r := range requests {
		out[i] = ConvertRequest(r)
	}
	return out
}

// ConvertTester converts a domain tester
func ConvertTester(t *domain.Tester) Tester {
	leave := t.LeaveMessageIDs
	if leave == nil {
		leave = []string{}
	}
	return Tester{
		ID:              t.ID,
		DiscordID:       t.DiscordID,
		Username:        t.Username,
		Registered:      t.HasEmail(),
		LeaveMessageIDs: leave,
		UpdatedAt:       t.UpdatedAt,
	}
}

// ConvertApp converts a domain app
func ConvertApp(a *domain.App) App {
	roles := a.RoleIDs
	if roles == nil {
		roles = []string{}
	}
	return App{
		ID:                 a.ID,
		Name:               a.Name,
		BetaGroupID:        a.BetaGroupID,
		BetaOpen:           a.BetaOpen,
		HasDistributionKey: a.DistributionKeyID != "",
		RoleIDs:            roles,
	}
}

// ConvertSnapshot converts a cache snapshot
func ConvertSnapshot(s usecase.CacheSnapshot) CacheStatus {
	return CacheStatus{
		WatchedMessageIDs:  sortedKeys(s.WatchedMessageIDs),
		ApprovalChannelIDs: sortedKeys(s.ApprovalChannelIDs),
		RefreshedAt:        s.RefreshedAt,
	}
}
