// MedCopilot server: accepts clinical intakes over HTTP, runs the staged
// analysis pipeline per session and streams progress over WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"

	"github.com/medcopilot/medcopilot/pkg/api"
	"github.com/medcopilot/medcopilot/pkg/cleanup"
	"github.com/medcopilot/medcopilot/pkg/config"
	"github.com/medcopilot/medcopilot/pkg/database"
	"github.com/medcopilot/medcopilot/pkg/events"
	"github.com/medcopilot/medcopilot/pkg/metrics"
	"github.com/medcopilot/medcopilot/pkg/orchestrator"
	"github.com/medcopilot/medcopilot/pkg/session"
	"github.com/medcopilot/medcopilot/pkg/slack"
	"github.com/medcopilot/medcopilot/pkg/stage"
	"github.com/medcopilot/medcopilot/pkg/storage"
	"github.com/medcopilot/medcopilot/pkg/version"
)

// drainTimeout bounds how long running sessions may keep going after a
// shutdown signal before they are cancelled.
const drainTimeout = 30 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setupLogging() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	serveStages := flag.Bool("serve-stages", false,
		"Serve the simulated stage backend over gRPC instead of the HTTP API")
	stageAddr := flag.String("stage-addr",
		getEnv("STAGE_ADDR", ":50051"),
		"Listen address for --serve-stages")
	flag.Parse()

	setupLogging()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	if *serveStages {
		if err := runStageServer(*stageAddr, cfg.Backend); err != nil {
			slog.Error("Stage server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("Starting MedCopilot",
		"version", version.Full(),
		"http_port", cfg.Server.HTTPPort,
		"backend", cfg.Backend.Type,
		"config_dir", *configDir)

	if err := runServer(ctx, cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

func newBackend(cfg *config.BackendConfig) (stage.Backend, func(), error) {
	switch cfg.Type {
	case config.BackendGRPC:
		// grpc.NewClient dials lazily; the first RunStage opens the connection.
		b, err := stage.NewGRPCBackend(cfg.GRPCAddr)
		if err != nil {
			return nil, nil, err
		}
		return b, func() {
			if err := b.Close(); err != nil {
				slog.Error("Error closing stage backend", "error", err)
			}
		}, nil
	default:
		return stage.NewSimulatedBackend(cfg), func() {}, nil
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	// 1. Stage backend and executor
	backend, closeBackend, err := newBackend(cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to initialize stage backend: %w", err)
	}
	defer closeBackend()
	executor := stage.NewExecutor(backend, cfg.Pipeline)

	// 2. Streaming
	broadcaster := events.NewBroadcaster()
	broadcaster.OnDeliveryFailure = func(string) { metrics.RecordDeliveryFailure() }

	// 3. Observers of finished sessions
	var observers []orchestrator.Observer
	var archive *database.Archive
	var dbClient *database.Client
	if cfg.Archive.Enabled {
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			return fmt.Errorf("failed to load database config: %w", err)
		}
		dbClient, err = database.NewClient(ctx, dbConfig)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		archive = database.NewArchive(dbClient)
		observers = append(observers, archive)
		slog.Info("Session archive enabled", "host", dbConfig.Host, "database", dbConfig.Database)
	}
	if cfg.Slack.Enabled {
		if svc := slack.NewService(slack.ServiceConfig{
			Token:        os.Getenv(cfg.Slack.TokenEnv),
			Channel:      cfg.Slack.Channel,
			DashboardURL: cfg.Slack.DashboardURL,
		}); svc != nil {
			observers = append(observers, svc)
			slog.Info("Slack notifications enabled", "channel", cfg.Slack.Channel)
		} else {
			slog.Warn("Slack enabled but token or channel missing, notifications disabled",
				"token_env", cfg.Slack.TokenEnv)
		}
	}

	// 4. Orchestrator and retention sweeper
	orch := orchestrator.New(session.NewRegistry(), executor, broadcaster, observers...)
	orch.SetCancelGrace(cfg.Pipeline.MaxStageTimeout())
	sweeper := cleanup.NewService(cfg.Retention, orch)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// 5. HTTP server
	store := storage.NewFileStore(cfg.Storage.UploadDir, cfg.Server.MaxUploadBytes)
	httpServer := api.NewServer(cfg.Server, orch, broadcaster, store)
	if archive != nil {
		httpServer.SetArchive(archive, dbClient.DB())
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Server.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil {
			errCh <- err
		}
	}()

	// 6. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	var serveErr error
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case serveErr = <-errCh:
		slog.Error("Server error triggered shutdown", "error", serveErr)
	}

	// 7. Graceful shutdown: drain sessions, then stop HTTP and close subscribers
	drainCtx, drainCancel := context.WithTimeout(ctx, drainTimeout)
	defer drainCancel()
	if err := orch.Shutdown(drainCtx); err != nil {
		slog.Warn("Drain timeout exceeded, remaining sessions cancelled", "error", err)
	} else {
		slog.Info("All sessions finished")
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	return serveErr
}

// runStageServer serves the simulated backend on addr until SIGINT/SIGTERM.
func runStageServer(addr string, cfg *config.BackendConfig) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	stage.RegisterStageServer(srv, &stage.BackendServer{Backend: stage.NewSimulatedBackend(cfg)})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		slog.Info("Shutdown signal received", "signal", sig)
		srv.GracefulStop()
	}()

	slog.Info("Stage server listening", "addr", ln.Addr().String(), "version", version.Full())
	return srv.Serve(ln)
}
