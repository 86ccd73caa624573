package main

import (
	"context"
	"log"
	"os"

	"gptme-server/internal/config"
	"gptme-server/internal/mcp"
	"gptme-server/internal/observability"
	"gptme-server/internal/repository"
	"gptme-server/internal/service"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

var version = "dev"

// Serves the notes of the account named by MCP_USERNAME over stdio. Logs go
// to stderr since stdout carries the protocol.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Server.Env, cfg.Logging.Level, "stderr")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	username := os.Getenv("MCP_USERNAME")
	if username == "" {
		logger.Fatal("MCP_USERNAME must name the account whose notes are served")
	}

	ctx := context.Background()
	store, err := repository.Open(ctx, cfg.Database.Driver, cfg.Database.SQLitePath, cfg.Database.CouchURL, cfg.Database.Name)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer store.Close()

	user, err := store.Users.FindByUsername(ctx, username)
	if err != nil {
		logger.Fatal("Failed to find account", zap.String("username", username), zap.Error(err))
	}

	notes := service.NewNoteService(store.Notes, nil, nil, logger)
	srv := mcp.NewServer(notes, user.ID, version)

	logger.Info("Serving notes over MCP stdio", zap.String("username", username))
	if err := mcpserver.ServeStdio(srv); err != nil {
		logger.Error("MCP server stopped", zap.Error(err))
	}
}
