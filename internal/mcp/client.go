package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when the bot API has no such record
var ErrNotFound = errors.New("not found")

// Client is the HTTP client for the bot's admin API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Request is a testing request as reported by the bot
type Request struct {
	ID                     string   `json:"id"`
	TesterDiscordID        string   `json:"tester_discord_id"`
	AppID                  string   `json:"app_id"`
	AppName                string   `json:"app_name"`
	ServerID               string   `json:"server_id"`
	ApprovalChannelID      string   `json:"approval_channel_id,omitempty"`
	Status                 string   `json:"status"`
	NotificationMessageIDs []string `json:"notification_message_ids"`
	Removed                bool     `json:"removed"`
	Created                string   `json:"created"`
}

// Tester is a tester as reported by the bot
type Tester struct {
	ID              string   `json:"id"`
	DiscordID       string   `json:"discord_id"`
	Username        string   `json:"username"`
	Registered      bool     `json:"registered"`
	LeaveMessageIDs []string `json:"leave_message_ids"`
	UpdatedAt       string   `json:"updated_at"`
}

// App is an app as reported by the bot
type App struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	BetaGroupID        string   `json:"beta_group_id"`
	BetaOpen           bool     `json:"beta_open"`
	HasDistributionKey bool     `json:"has_distribution_key"`
	RoleIDs            []string `json:"role_ids"`
}

// RequestQuery filters a request listing
type RequestQuery struct {
	TesterDiscordID string
	AppID           string
	Status          string
	IncludeRemoved  bool
}

// ============ Requests ============

// ListRequests lists testing requests
func (c *Client) ListRequests(ctx context.Context, q RequestQuery) ([]Request, error) {
	v := url.Values{}
	if q.TesterDiscordID != "" {
		v.Set("tester", q.TesterDiscordID)
	}
	if q.AppID != "" {
		v.Set("app", q.AppID)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.IncludeRemoved {
		v.Set("include_removed", "true")
	}

	var result struct {
		Requests []Request `json:"requests"`
	}
	if err := c.get(ctx, "/api/requests?"+v.Encode(), &result); err != nil {
		return nil, err
	}
	return result.Requests, nil
}

// ============ Records ============

// GetTester gets a tester by Discord user ID
func (c *Client) GetTester(ctx context.Context, discordID string) (*Tester, error) {
	var t Tester
	if err := c.get(ctx, "/api/testers/"+url.PathEscape(discordID), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetApp gets an app by ID
func (c *Client) GetApp(ctx context.Context, id string) (*App, error) {
	var a App
	if err := c.get(ctx, "/api/apps/"+url.PathEscape(id), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ============ HTTP Helpers ============

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
