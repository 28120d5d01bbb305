package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Handler serves the tool calls from the bot API
type Handler struct {
	client *Client
}

// NewHandler creates a new MCP handler
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// ListRequestsInput is the input for testflight_list_requests
type ListRequestsInput struct {
	TesterDiscordID string `json:"tester_discord_id,omitempty" jsonschema:"Discord user ID of the tester"`
	AppID           string `json:"app_id,omitempty" jsonschema:"App ID to list requests for"`
	Status          string `json:"status,omitempty" jsonschema:"PENDING, APPROVED or REJECTED"`
	IncludeRemoved  bool   `json:"include_removed,omitempty" jsonschema:"Include requests whose tester was removed"`
}

// ListRequestsOutput is the output for testflight_list_requests
type ListRequestsOutput struct {
	Requests []Request `json:"requests"`
	Count    int       `json:"count"`
}

func (h *Handler) ListRequests(ctx context.Context, req *mcp.CallToolRequest, input ListRequestsInput) (*mcp.CallToolResult, ListRequestsOutput, error) {
	requests, err := h.client.ListRequests(ctx, RequestQuery{
		TesterDiscordID: input.TesterDiscordID,
		AppID:           input.AppID,
		Status:          input.Status,
		IncludeRemoved:  input.IncludeRemoved,
	})
	if err != nil {
		return nil, ListRequestsOutput{}, err
	}
	if requests == nil {
		requests = []Request{}
	}
	return nil, ListRequestsOutput{Requests: requests, Count: len(requests)}, nil
}

// GetTesterInput is the input for testflight_get_tester
type GetTesterInput struct {
	DiscordID string `json:"discord_id" jsonschema:"Discord user ID of the tester"`
}

// GetTesterOutput is the output for testflight_get_tester
type GetTesterOutput struct {
	Found  bool    `json:"found"`
	Tester *Tester `json:"tester,omitempty"`
}

func (h *Handler) GetTester(ctx context.Context, req *mcp.CallToolRequest, input GetTesterInput) (*mcp.CallToolResult, GetTesterOutput, error) {
	if input.DiscordID == "" {
		return nil, GetTesterOutput{}, fmt.Errorf("discord_id is required")
	}
	t, err := h.client.GetTester(ctx, input.DiscordID)
	if errors.Is(err, ErrNotFound) {
		return nil, GetTesterOutput{Found: false}, nil
	}
	if err != nil {
		return nil, GetTesterOutput{}, err
	}
	return nil, GetTesterOutput{Found: true, Tester: t}, nil
}

// GetAppInput is the input for testflight_get_app
type GetAppInput struct {
	AppID string `json:"app_id" jsonschema:"App ID"`
}

// GetAppOutput is the output for testflight_get_app
type GetAppOutput struct {
	Found bool `json:"found"`
	App   *App `json:"app,omitempty"`
}

func (h *Handler) GetApp(ctx context.Context, req *mcp.CallToolRequest, input GetAppInput) (*mcp.CallToolResult, GetAppOutput, error) {
	if input.AppID == "" {
		return nil, GetAppOutput{}, fmt.Errorf("app_id is required")
	}
	a, err := h.client.GetApp(ctx, input.AppID)
	if errors.Is(err, ErrNotFound) {
		return nil, GetAppOutput{Found: false}, nil
	}
	if err != nil {
		return nil, GetAppOutput{}, err
	}
	return nil, GetAppOutput{Found: true, App: a}, nil
}
