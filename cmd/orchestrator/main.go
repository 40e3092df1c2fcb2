// Command orchestrator runs the voice-driven autonomous-agent
// orchestrator's Agent Execution Engine: it accepts commands over an
// authenticated HTTP API, drives each one through a planning and
// tool-use loop with adaptive model routing, and tracks every task to
// a terminal result.
//
// # Basic usage
//
// Start the server:
//
//	orchestrator serve --config orchestrator.yaml
//
// Check process health without starting a server:
//
//	orchestrator status --config orchestrator.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "orchestrator",
		Short:   "Agent Execution Engine orchestrator",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Long: `orchestrator drives autonomous agent tasks to completion: a tool
registry, context manager, model router, cognitive planner, and
self-monitor wired behind an authenticated HTTP API.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(buildServeCmd(), buildStatusCmd())
	return cmd
}
