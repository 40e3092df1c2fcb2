package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

// HTTPConfig controls the http_fetch tool.
type HTTPConfig struct {
	Timeout        time.Duration
	MaxBodyBytes   int
	AllowedMethods []string
}

// NewHTTPFetchTool builds the built-in "http_fetch" tool: a bounded
// HTTP client the agent can use to retrieve external data.
func NewHTTPFetchTool(cfg HTTPConfig) Tool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 256 << 10
	}
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = []string{"GET", "POST"}
	}
	client := &http.Client{Timeout: cfg.Timeout}

	schema, _ := json.Marshal(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "Absolute URL to request.",
			},
			"method": map[string]interface{}{
				"type":        "string",
				"description": "HTTP method (default GET).",
			},
			"headers": map[string]interface{}{
				"type":        "object",
				"description": "Request headers.",
			},
			"body": map[string]interface{}{
				"type":        "string",
				"description": "Request body, for POST/PUT.",
			},
		},
		"required": []string{"url"},
	})

	return Tool{
		Descriptor: types.ToolDescriptor{
			Name:        "http_fetch",
			Description: "Make an HTTP request and return the response status, content type, and a bounded body.",
			Parameters:  schema,
		},
		Retryable: true,
		Handler: func(ctx context.Context, input json.RawMessage) (string, []string, error) {
			var args struct {
				URL     string            `json:"url"`
				Method  string            `json:"method"`
				Headers map[string]string `json:"headers"`
				Body    string            `json:"body"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", nil, &ValidationError{Err: fmt.Errorf("decode http_fetch input: %w", err)}
			}
			if strings.TrimSpace(args.URL) == "" {
				return "", nil, &ValidationError{Err: fmt.Errorf("url is required")}
			}
			method := strings.ToUpper(args.Method)
			if method == "" {
				method = "GET"
			}
			if !containsMethod(cfg.AllowedMethods, method) {
				return "", nil, &ValidationError{Err: fmt.Errorf("method %q is not allowed", method)}
			}

			var bodyReader io.Reader
			if args.Body != "" {
				bodyReader = bytes.NewReader([]byte(args.Body))
			}
			req, err := http.NewRequestWithContext(ctx, method, args.URL, bodyReader)
			if err != nil {
				return "", nil, &ValidationError{Err: fmt.Errorf("build request: %w", err)}
			}
			req.Header.Set("User-Agent", "orchestrator-agent/1.0")
			for k, v := range args.Headers {
				req.Header.Set(k, v)
			}

			resp, err := client.Do(req)
			if err != nil {
				return "", nil, &RetryableError{Err: fmt.Errorf("request failed: %w", err)}
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, int64(cfg.MaxBodyBytes)))
			if err != nil {
				return "", nil, fmt.Errorf("read response: %w", err)
			}

			result := map[string]interface{}{
				"status":      resp.StatusCode,
				"body":        string(body),
				"content_type": resp.Header.Get("Content-Type"),
			}
			payload, err := json.Marshal(result)
			if err != nil {
				return "", nil, fmt.Errorf("encode http_fetch result: %w", err)
			}
			if resp.StatusCode >= 500 {
				return string(payload), nil, &RetryableError{Err: fmt.Errorf("server returned status %d", resp.StatusCode)}
			}
			return string(payload), nil, nil
		},
	}
}

func containsMethod(methods []string, method string) bool {
	for _, m := range methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}
