package main

import (
	"context"
	"fmt"

	"github.com/agentforge/orchestrator/internal/audit"
	"github.com/agentforge/orchestrator/internal/config"
	"github.com/agentforge/orchestrator/internal/engine/planner"
	"github.com/agentforge/orchestrator/internal/engine/routing"
	"github.com/agentforge/orchestrator/internal/engine/runtime"
	"github.com/agentforge/orchestrator/internal/engine/tasks"
	"github.com/agentforge/orchestrator/internal/engine/tools"
	"github.com/agentforge/orchestrator/internal/engine/types"
	"github.com/agentforge/orchestrator/internal/models"
	"github.com/agentforge/orchestrator/internal/observability"
	"github.com/agentforge/orchestrator/internal/providers"
)

// credentialsFromConfig flattens the provider map config.Load produces
// (already merged with ANTHROPIC_API_KEY/OPENAI_API_KEY/GEMINI_API_KEY
// env overrides) into the single providers.Credentials struct the
// planner and every agent's ProviderFactory share.
func credentialsFromConfig(cfg *config.Config) providers.Credentials {
	creds := providers.Credentials{MaxRetries: 3}
	if p, ok := cfg.LLM.Providers["anthropic"]; ok {
		creds.AnthropicAPIKey = p.APIKey
	}
	if p, ok := cfg.LLM.Providers["openai"]; ok {
		creds.OpenAIAPIKey = p.APIKey
		creds.OpenAIBaseURL = p.BaseURL
	}
	if p, ok := cfg.LLM.Providers["gemini"]; ok {
		creds.GeminiAPIKey = p.APIKey
	}
	if p, ok := cfg.LLM.Providers["bedrock"]; ok {
		creds.BedrockRegion = p.Region
	}
	return creds
}

// buildToolRegistry assembles the tool inventory every agent shares.
// A single registry is built once at startup and handed to every
// agent. Apart from the optional browser tool, whose one page persists
// across calls from all tasks, the tools keep no state between calls.
func buildToolRegistry(cfg *config.Config) (*tools.Registry, error) {
	reg := tools.NewRegistry(tools.RegistryConfig{
		DefaultTimeout: cfg.Tools.ShellTimeout,
		MaxOutputBytes: cfg.Tools.MaxOutputBytes,
		RedactPatterns: cfg.Tools.RedactPatterns,
	})

	registrations := []tools.Tool{
		tools.NewShellTool(tools.ShellConfig{
			WorkingDir:     cfg.Tools.WorkingDir,
			MaxOutputBytes: cfg.Tools.MaxOutputBytes,
			AllowedEnv:     cfg.Tools.AllowedEnv,
		}),
		tools.NewHTTPFetchTool(tools.HTTPConfig{
			Timeout:      cfg.Tools.ShellTimeout,
			MaxBodyBytes: cfg.Tools.MaxOutputBytes,
		}),
		tools.NewReadFileTool(tools.FilesConfig{WorkingDir: cfg.Tools.WorkingDir}),
		tools.NewWriteFileTool(tools.FilesConfig{WorkingDir: cfg.Tools.WorkingDir}),
		tools.NewListFilesTool(tools.FilesConfig{WorkingDir: cfg.Tools.WorkingDir}),
	}
	if cfg.Tools.Browser.Enabled {
		registrations = append(registrations, tools.NewBrowserTool(tools.BrowserConfig{
			Enabled:    true,
			BinaryPath: cfg.Tools.Browser.BinaryPath,
			Headless:   true,
		}))
	}

	for _, t := range registrations {
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("register tool %q: %w", t.Descriptor.Name, err)
		}
	}
	return reg, nil
}

// buildAgentFactory closes over every shared component and returns the
// function the Task Manager calls once per submitted task. Each task
// gets its own Router, matching the per-task escalation state spec.md
// §4.3 describes (escalation resets between tasks); the Planner, tool
// Registry, and provider credentials are shared across tasks.
func buildAgentFactory(cfg *config.Config, toolRegistry *tools.Registry, plan *planner.Planner, creds providers.Credentials, logger *observability.Logger, metrics *observability.Metrics) tasks.AgentFactory {
	maxTier := tierFromString(cfg.LLM.MaxEscalationTier)

	return func(task types.Task, updater runtime.TaskUpdater, emit func(types.Event)) tasks.Agent {
		router := routing.NewRouter(routing.Config{
			Catalog: models.DefaultCatalog,
			MaxTier: maxTier,
		})
		return runtime.New(task, runtime.Config{
			Planner:           plan,
			Tools:             toolRegistry,
			Router:            router,
			Updater:           updater,
			Emit:              emit,
			ProviderFactory:   providers.New,
			Credentials:       creds,
			MonitorThresholds: types.MonitorThresholds{
				MinIterations:      cfg.Monitor.MinIterations,
				MaxStallIterations: cfg.Monitor.MaxStallIterations,
				SoftCap:            cfg.Monitor.SoftCap,
				HardCap:            cfg.Monitor.HardCap,
			},
			CompletionPhrases: cfg.Monitor.CompletionPhrases,
			WorkingDir:        cfg.Tools.WorkingDir,
			Logger:            logger,
			Metrics:           metrics,
		})
	}
}

// tierFromString maps the config's max_escalation_tier string onto the
// engine's Tier type, falling back to the most permissive tier on an
// unrecognized value rather than silently capping escalation at fast.
func tierFromString(s string) types.Tier {
	switch s {
	case "fast":
		return types.TierFast
	case "balanced":
		return types.TierBalanced
	default:
		return types.TierPowerful
	}
}

// openAuditLog opens the optional SQLite audit trail and wraps it as a
// task sink, returning (nil, nil, nil) when auditing is disabled.
func openAuditLog(ctx context.Context, cfg *config.Config) (*audit.Log, *audit.EventSink, error) {
	if !cfg.Audit.Enabled {
		return nil, nil, nil
	}
	log, err := audit.Open(cfg.Audit.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}
	return log, audit.NewEventSink(log), nil
}
