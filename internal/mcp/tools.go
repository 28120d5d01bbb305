package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer creates the MCP server with the read-only TestFlight tools
func NewServer(h *Handler, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "testflight-tools",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "testflight_list_requests",
		Description: "List TestFlight access requests. Filter by tester, app or status. Removed requests are hidden unless include_removed is set.",
	}, h.ListRequests)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "testflight_get_tester",
		Description: "Look up a tester by Discord user ID. Reports whether they registered an email, never the email itself.",
	}, h.GetTester)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "testflight_get_app",
		Description: "Look up an app's beta group, whether beta access is open, and the roles granted to its testers.",
	}, h.GetApp)

	return server
}
