// InquiryOS API server: exposes the research-run HTTP API and drives
// the multi-stage research pipeline behind it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/inquiryos/inquiryos/pkg/api"
	"github.com/inquiryos/inquiryos/pkg/config"
	"github.com/inquiryos/inquiryos/pkg/database"
	"github.com/inquiryos/inquiryos/pkg/llm"
	"github.com/inquiryos/inquiryos/pkg/pipeline"
	"github.com/inquiryos/inquiryos/pkg/search"
	"github.com/inquiryos/inquiryos/pkg/services"
	"github.com/inquiryos/inquiryos/pkg/version"
	"github.com/inquiryos/inquiryos/pkg/webfetch"
)

func main() {
	// Load .env from the working directory, if present
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	settings, err := config.Load()
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting InquiryOS",
		"version", version.Full(),
		"api_port", settings.APIPort,
		"llm_provider", settings.LLMProvider)

	ctx := context.Background()

	// 1. Initialize database (runs embedded migrations)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 2. Domain services
	runService := services.NewRunService(dbClient.Client,
		fmt.Sprintf("%s:%s", settings.LLMProvider, settings.LLMModel))

	// 3. Pipeline backends
	llmClient, err := llm.NewClientFromSettings(settings)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "provider", settings.LLMProvider, "error", err)
		os.Exit(1)
	}
	slog.Info("LLM client initialized",
		"provider", llmClient.ProviderName(),
		"model", llmClient.ModelName())

	searchClient := search.NewDuckDuckGoClient()
	fetcher := webfetch.NewFetcher()

	// 4. Pipeline orchestrator
	orchestrator := pipeline.NewOrchestrator(dbClient.Client, runService, searchClient, fetcher, llmClient)

	// 5. Start HTTP server (non-blocking)
	httpServer := api.NewServer(settings, dbClient, runService, orchestrator)
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", settings.APIPort)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("InquiryOS started successfully")

	// 6. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 7. Stop HTTP server with a bounded timeout
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
