package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentforge/orchestrator/internal/config"
	"github.com/agentforge/orchestrator/internal/engine/planner"
	"github.com/agentforge/orchestrator/internal/engine/tasks"
	"github.com/agentforge/orchestrator/internal/engine/types"
	"github.com/agentforge/orchestrator/internal/gateway"
	"github.com/agentforge/orchestrator/internal/models"
	"github.com/agentforge/orchestrator/internal/observability"
)

// buildServeCmd creates the "serve" command that starts the
// orchestrator's HTTP API and begins accepting commands.
func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator API",
		Long: `Start the orchestrator's HTTP/WebSocket API.

The process will:
1. Load configuration from the specified file
2. Acquire the singleton process lock
3. Wire the tool registry, model router, planner, and task manager
4. Start the authenticated HTTP API and event broadcaster

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  orchestrator serve --config orchestrator.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "orchestrator.yaml", "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	metrics := observability.NewMetrics()

	lock, err := gateway.AcquireLock(gateway.LockOptions{LockPath: cfg.Server.LockFilePath, ConfigPath: configPath})
	if err != nil {
		return fmt.Errorf("acquire singleton lock: %w", err)
	}
	defer lock.Release()

	toolRegistry, err := buildToolRegistry(cfg)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}

	creds := credentialsFromConfig(cfg)
	plan := planner.New(planner.Config{Catalog: models.DefaultCatalog, Credentials: creds})

	auditLog, auditSink, err := openAuditLog(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if auditLog != nil {
		defer auditLog.Close()
	}

	agentFactory := buildAgentFactory(cfg, toolRegistry, plan, creds, logger, metrics)

	taskManager := tasks.New(tasks.Config{
		MaxConcurrent: cfg.Server.MaxConcurrentAgents,
		QueueDepth:    cfg.Server.QueueDepth,
		AgentFactory:  agentFactory,
		Logger:        logger,
		Metrics:       metrics,
	})
	defer taskManager.Close()

	var defaultSinks []string
	var onSubmit func(context.Context, types.Task)
	if auditSink != nil {
		taskManager.RegisterSink("__audit", auditSink)
		defaultSinks = append(defaultSinks, "__audit")
		onSubmit = func(ctx context.Context, task types.Task) {
			if err := auditLog.RecordSubmission(ctx, task); err != nil {
				logger.Warn(ctx, "failed to record task submission in audit log", "taskId", task.ID, "error", err)
			}
		}
	}

	srv := gateway.New(gateway.Config{
		Addr:         cfg.Server.ListenAddr,
		APIKey:       cfg.Server.APIKey,
		Tasks:        taskManager,
		Logger:       logger,
		Metrics:      metrics,
		DefaultSinks: defaultSinks,
		OnSubmit:     onSubmit,
	})

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info(ctx, "orchestrator started", "addr", cfg.Server.ListenAddr, "maxConcurrentAgents", cfg.Server.MaxConcurrentAgents)

	select {
	case <-sigCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info(ctx, "orchestrator stopped")
	return nil
}
