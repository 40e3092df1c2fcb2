package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the top-level, typed configuration for the orchestrator
// process, loaded via Load() from YAML with environment overrides for
// secrets and deployment knobs.
type Config struct {
	Version int           `yaml:"version"`
	Server  ServerConfig  `yaml:"server"`
	LLM     LLMConfig     `yaml:"llm"`
	Tools   ToolsConfig   `yaml:"tools"`
	Monitor MonitorConfig `yaml:"monitor"`
	Audit   AuditConfig   `yaml:"audit"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the Orchestrator API (C8).
type ServerConfig struct {
	ListenAddr           string        `yaml:"listen_addr"`
	APIKey               string        `yaml:"api_key"`
	MaxConcurrentAgents  int           `yaml:"max_concurrent_agents"`
	QueueDepth           int           `yaml:"queue_depth"`
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"`
	LockFilePath         string        `yaml:"lock_file_path"`
	RateLimitMinInterval time.Duration `yaml:"rate_limit_min_interval"`
}

// ToolsConfig configures the built-in and optional tool inventory.
type ToolsConfig struct {
	ShellTimeout    time.Duration     `yaml:"shell_timeout"`
	MaxOutputBytes  int               `yaml:"max_output_bytes"`
	RedactPatterns  []string          `yaml:"redact_patterns"`
	WorkingDir      string            `yaml:"working_dir"`
	AllowedEnv      []string          `yaml:"allowed_env"`
	Browser         BrowserToolConfig `yaml:"browser"`
}

// BrowserToolConfig gates the optional chromedp-backed browser tool.
type BrowserToolConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BinaryPath string `yaml:"binary_path"`
}

// MonitorConfig configures the Self-Monitor / Adaptive Executor (C5).
type MonitorConfig struct {
	MinIterations      int      `yaml:"min_iterations"`
	MaxStallIterations int      `yaml:"max_stall_iterations"`
	SoftCap            int      `yaml:"soft_cap"`
	HardCap            int      `yaml:"hard_cap"`
	CompletionPhrases  []string `yaml:"completion_phrases"`
}

// AuditConfig gates the optional SQLite-backed audit log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the zero-config defaults every field falls
// back to when unset.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:           ":8080",
			MaxConcurrentAgents:  5,
			QueueDepth:           20,
			ShutdownGracePeriod:  10 * time.Second,
			LockFilePath:         "data/.orchestrator.lock",
			RateLimitMinInterval: 0,
		},
		LLM: LLMConfig{
			MaxEscalationTier: "powerful",
			Routing:           DefaultLLMRoutingConfig(),
		},
		Tools: ToolsConfig{
			ShellTimeout:   30 * time.Second,
			MaxOutputBytes: 64 * 1024,
			RedactPatterns: []string{
				`sk-ant-[A-Za-z0-9_-]+`,
				`sk-[A-Za-z0-9]{20,}`,
				`AKIA[0-9A-Z]{16}`,
			},
		},
		Monitor: MonitorConfig{
			MinIterations:      2,
			MaxStallIterations: 5,
			SoftCap:            20,
			HardCap:            30,
			CompletionPhrases:  []string{"task complete", "all done", "finished successfully"},
		},
		Logging: LoggingConfig{Level: "INFO", Format: "text"},
	}
}

func applyDefaults(cfg *Config) {
	d := DefaultConfig()
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = d.Server.ListenAddr
	}
	if cfg.Server.MaxConcurrentAgents == 0 {
		cfg.Server.MaxConcurrentAgents = d.Server.MaxConcurrentAgents
	}
	if cfg.Server.QueueDepth == 0 {
		cfg.Server.QueueDepth = d.Server.QueueDepth
	}
	if cfg.Server.ShutdownGracePeriod == 0 {
		cfg.Server.ShutdownGracePeriod = d.Server.ShutdownGracePeriod
	}
	if cfg.Server.LockFilePath == "" {
		cfg.Server.LockFilePath = d.Server.LockFilePath
	}
	if cfg.LLM.MaxEscalationTier == "" {
		cfg.LLM.MaxEscalationTier = d.LLM.MaxEscalationTier
	}
	if cfg.LLM.Routing.ScoreThresholds == nil {
		cfg.LLM.Routing = d.LLM.Routing
	}
	if cfg.Tools.ShellTimeout == 0 {
		cfg.Tools.ShellTimeout = d.Tools.ShellTimeout
	}
	if cfg.Tools.MaxOutputBytes == 0 {
		cfg.Tools.MaxOutputBytes = d.Tools.MaxOutputBytes
	}
	if len(cfg.Tools.RedactPatterns) == 0 {
		cfg.Tools.RedactPatterns = d.Tools.RedactPatterns
	}
	if cfg.Monitor.MinIterations == 0 {
		cfg.Monitor.MinIterations = d.Monitor.MinIterations
	}
	if cfg.Monitor.MaxStallIterations == 0 {
		cfg.Monitor.MaxStallIterations = d.Monitor.MaxStallIterations
	}
	if cfg.Monitor.SoftCap == 0 {
		cfg.Monitor.SoftCap = d.Monitor.SoftCap
	}
	if cfg.Monitor.HardCap == 0 {
		cfg.Monitor.HardCap = d.Monitor.HardCap
	}
	if len(cfg.Monitor.CompletionPhrases) == 0 {
		cfg.Monitor.CompletionPhrases = d.Monitor.CompletionPhrases
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = d.Logging.Format
	}
}

// applyEnvOverrides layers environment variables over the loaded
// config for secrets and deployment knobs, per spec.md §6.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToUpper(v)
	}
	if v := os.Getenv("MAX_CONCURRENT_AGENTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_CONCURRENT_AGENTS: %w", err)
		}
		cfg.Server.MaxConcurrentAgents = n
	}
	if v := os.Getenv("ORCHESTRATOR_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("ORCHESTRATOR_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		setProviderKey(cfg, "anthropic", v)
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		setProviderKey(cfg, "openai", v)
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		setProviderKey(cfg, "gemini", v)
	}
	return nil
}

func setProviderKey(cfg *Config, provider, key string) {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]LLMProviderConfig{}
	}
	p := cfg.LLM.Providers[provider]
	p.APIKey = key
	cfg.LLM.Providers[provider] = p
}

// Validate checks invariants Load() cannot repair with a default, per
// spec.md §6 ("MAX_CONCURRENT_AGENTS 1-20").
func (c *Config) Validate() error {
	if c.Server.MaxConcurrentAgents < 1 || c.Server.MaxConcurrentAgents > 20 {
		return fmt.Errorf("server.max_concurrent_agents must be in [1,20], got %d", c.Server.MaxConcurrentAgents)
	}
	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("logging.level must be one of DEBUG|INFO|WARN|ERROR, got %q", c.Logging.Level)
	}
	if c.Monitor.HardCap < c.Monitor.SoftCap {
		return fmt.Errorf("monitor.hard_cap must be >= monitor.soft_cap")
	}
	return nil
}
