package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	botmcp "github.com/mottobotto/testflight-bot/internal/mcp"
)

const version = "v1.0.0"

// bot-mcp serves read-only TestFlight tools over stdio. It reads records
// through the bot's admin API at BOT_API_URL.
func main() {
	// Logs go to stderr, stdout carries the protocol
	log.SetOutput(os.Stderr)

	apiURL := os.Getenv("BOT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:9876"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	handler := botmcp.NewHandler(botmcp.NewClient(apiURL))
	server := botmcp.NewServer(handler, version)

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Fatalf("MCP server error: %v", err)
	}
}
