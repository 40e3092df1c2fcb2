package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentforge/orchestrator/internal/config"
)

// buildStatusCmd creates the "status" command: a lightweight health
// check against a running orchestrator's HTTP API, distinct from
// "serve" which runs the process itself.
func buildStatusCmd() *cobra.Command {
	var (
		configPath string
		serverAddr string
		apiKey     string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the orchestrator API is reachable and healthy",
		Long: `Query a running orchestrator's /health endpoint and print its
task statistics. Exits non-zero if the server is unreachable or
reports an unhealthy status.`,
		Example: `  orchestrator status --config orchestrator.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd, configPath, serverAddr, apiKey)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "orchestrator.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVar(&serverAddr, "server", "", "Orchestrator API address (default: from config)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for server auth (default: from config/env)")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, configPath, serverAddr, apiKey string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	addr := serverAddr
	if addr == "" {
		addr = cfg.Server.ListenAddr
	}
	if apiKey == "" {
		apiKey = cfg.Server.APIKey
	}

	url := "http://" + addr + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("orchestrator unreachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("orchestrator reported status %d: %s", resp.StatusCode, body)
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
		return nil
	}
	encoded, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}
