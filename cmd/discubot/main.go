// Command discubot runs the flow-based discussion-to-task ingestion server.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/discubot/pkg/adapter"
	"github.com/codeready-toolchain/discubot/pkg/adapter/chat"
	"github.com/codeready-toolchain/discubot/pkg/adapter/email"
	"github.com/codeready-toolchain/discubot/pkg/analyzer"
	"github.com/codeready-toolchain/discubot/pkg/config"
	"github.com/codeready-toolchain/discubot/pkg/database"
	"github.com/codeready-toolchain/discubot/pkg/domain"
	"github.com/codeready-toolchain/discubot/pkg/flow"
	"github.com/codeready-toolchain/discubot/pkg/httpapi"
	"github.com/codeready-toolchain/discubot/pkg/logging"
	"github.com/codeready-toolchain/discubot/pkg/pipeline"
	"github.com/codeready-toolchain/discubot/pkg/store"
	"github.com/codeready-toolchain/discubot/pkg/taskwriter"
	"github.com/codeready-toolchain/discubot/pkg/usermap"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "."), "directory containing the .env file")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v (continuing with existing environment)", envPath, err)
	}

	logging.Setup(getEnv("LOG_LEVEL", "info"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer dbClient.Close()
	slog.Info("connected to database", "host", cfg.Database.Host, "database", cfg.Database.Database)

	orchestrator := buildOrchestrator(cfg, dbClient)

	server := httpapi.NewServer(orchestrator)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", "port", cfg.HTTPPort)
		if err := server.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		slog.Error("HTTP server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

// buildOrchestrator wires every collaborator the six-stage pipeline needs:
// repositories over the shared pool, the flow/user-mapping resolvers, the
// two source adapters, the LLM analyzer, and the task writer.
func buildOrchestrator(cfg config.Config, dbClient *database.Client) *pipeline.Orchestrator {
	pool := dbClient.Pool

	flows := store.NewFlowRepository(pool)
	configs := store.NewConfigRepository(pool)
	discussions := store.NewDiscussionRepository(pool)
	jobs := store.NewJobRepository(pool)
	tasks := store.NewTaskRepository(pool)
	userMappings := store.NewUserMappingRepository(pool)

	resolver := flow.NewResolver(flows, configs)
	userMapResolver := usermap.NewResolver(userMappings)

	chatAdapter := chat.New()

	designClient := email.NewClient()
	if cfg.DesignAPIBase != "" {
		designClient = email.NewClientWithBaseURL(cfg.DesignAPIBase)
	}
	emailAdapter := email.New(designClient)

	registry := adapter.NewRegistry(map[domain.SourceType]adapter.Adapter{
		domain.SourceChat:        chatAdapter,
		domain.SourceDesignEmail: emailAdapter,
	})

	an := analyzer.New(cfg.AnthropicAPIKey)

	kbClient := taskwriter.NewKBHTTPClient()
	if cfg.KBAPIBase != "" {
		kbClient = taskwriter.NewKBHTTPClientWithBaseURL(cfg.KBAPIBase)
	}
	writer := taskwriter.New(kbClient)

	return pipeline.New(registry, resolver, userMapResolver, an, writer, discussions, jobs, tasks, cfg.PipelineMaxConcurrency)
}
