package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

// BrowserConfig controls the optional headless-browser tool. It is
// only registered when Enabled is true, since it requires a Chrome/
// Chromium binary on the host.
type BrowserConfig struct {
	Enabled    bool
	BinaryPath string
	Headless   bool
}

// browserSession lazily owns one headless chromedp context per tool
// instance, created on first use and reused by every later action so
// navigation state (current page, cookies) persists between tool calls.
// The session is not per task: every task that invokes the same
// registered tool drives the same page.
type browserSession struct {
	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	taskCtx     context.Context
	taskCancel  context.CancelFunc
	cfg         BrowserConfig
}

func (s *browserSession) ensure() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taskCtx != nil {
		return s.taskCtx
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", s.cfg.Headless))
	if s.cfg.BinaryPath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.BinaryPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	s.allocCtx, s.allocCancel = allocCtx, allocCancel
	s.taskCtx, s.taskCancel = taskCtx, taskCancel
	return taskCtx
}

func (s *browserSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taskCancel != nil {
		s.taskCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.taskCtx, s.taskCancel, s.allocCtx, s.allocCancel = nil, nil, nil, nil
}

// NewBrowserTool builds the built-in "browser" tool: navigate, click,
// type, scroll, evaluate, and screenshot a headless Chrome page.
func NewBrowserTool(cfg BrowserConfig) Tool {
	cfg.Headless = true
	session := &browserSession{cfg: cfg}

	schema, _ := json.Marshal(map[string]interface{}{
		"type":     "object",
		"required": []string{"action"},
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"navigate", "click", "type", "scroll", "evaluate", "screenshot", "text"},
				"description": "The browser action to perform.",
			},
			"url":      map[string]interface{}{"type": "string", "description": "URL for navigate."},
			"selector": map[string]interface{}{"type": "string", "description": "CSS selector for click/type."},
			"text":     map[string]interface{}{"type": "string", "description": "Text to type."},
			"script":   map[string]interface{}{"type": "string", "description": "JavaScript to evaluate."},
			"amount":   map[string]interface{}{"type": "integer", "description": "Scroll amount in pixels.", "default": 300},
		},
	})

	return Tool{
		Descriptor: types.ToolDescriptor{
			Name:        "browser",
			Description: "Drive a headless browser: navigate, click, type, scroll, evaluate JavaScript, read text, or screenshot.",
			Parameters:  schema,
		},
		Timeout: 45 * time.Second,
		Handler: func(ctx context.Context, input json.RawMessage) (string, []string, error) {
			var args struct {
				Action   string `json:"action"`
				URL      string `json:"url"`
				Selector string `json:"selector"`
				Text     string `json:"text"`
				Script   string `json:"script"`
				Amount   int    `json:"amount"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", nil, &ValidationError{Err: fmt.Errorf("decode browser input: %w", err)}
			}
			if args.Amount == 0 {
				args.Amount = 300
			}

			taskCtx := session.ensure()
			runCtx, cancel := context.WithTimeout(taskCtx, 30*time.Second)
			defer cancel()

			switch args.Action {
			case "navigate":
				if args.URL == "" {
					return "", nil, &ValidationError{Err: fmt.Errorf("url is required for navigate")}
				}
				if err := chromedp.Run(runCtx, chromedp.Navigate(args.URL)); err != nil {
					return "", nil, &RetryableError{Err: fmt.Errorf("navigate: %w", err)}
				}
				return fmt.Sprintf(`{"status":"navigated","url":%q}`, args.URL), nil, nil

			case "click":
				if args.Selector == "" {
					return "", nil, &ValidationError{Err: fmt.Errorf("selector is required for click")}
				}
				if err := chromedp.Run(runCtx,
					chromedp.WaitVisible(args.Selector, chromedp.ByQuery),
					chromedp.Click(args.Selector, chromedp.ByQuery),
				); err != nil {
					return "", nil, fmt.Errorf("click %s: %w", args.Selector, err)
				}
				return fmt.Sprintf(`{"status":"clicked","selector":%q}`, args.Selector), nil, nil

			case "type":
				if args.Selector == "" || args.Text == "" {
					return "", nil, &ValidationError{Err: fmt.Errorf("selector and text are required for type")}
				}
				if err := chromedp.Run(runCtx,
					chromedp.WaitVisible(args.Selector, chromedp.ByQuery),
					chromedp.SendKeys(args.Selector, args.Text, chromedp.ByQuery),
				); err != nil {
					return "", nil, fmt.Errorf("type into %s: %w", args.Selector, err)
				}
				return fmt.Sprintf(`{"status":"typed","selector":%q}`, args.Selector), nil, nil

			case "scroll":
				script := fmt.Sprintf("window.scrollBy(0, %d)", args.Amount)
				if err := chromedp.Run(runCtx, chromedp.Evaluate(script, nil)); err != nil {
					return "", nil, fmt.Errorf("scroll: %w", err)
				}
				return fmt.Sprintf(`{"status":"scrolled","amount":%d}`, args.Amount), nil, nil

			case "evaluate":
				if args.Script == "" {
					return "", nil, &ValidationError{Err: fmt.Errorf("script is required for evaluate")}
				}
				var result interface{}
				if err := chromedp.Run(runCtx, chromedp.Evaluate(args.Script, &result)); err != nil {
					return "", nil, fmt.Errorf("evaluate: %w", err)
				}
				payload, err := json.Marshal(map[string]interface{}{"result": result})
				if err != nil {
					return "", nil, fmt.Errorf("encode evaluate result: %w", err)
				}
				return string(payload), nil, nil

			case "text":
				var text string
				if err := chromedp.Run(runCtx, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
					return "", nil, fmt.Errorf("read text: %w", err)
				}
				if len(text) > 20_000 {
					text = text[:20_000]
				}
				payload, _ := json.Marshal(map[string]string{"text": text})
				return string(payload), nil, nil

			case "screenshot":
				var buf []byte
				if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
					return "", nil, fmt.Errorf("screenshot: %w", err)
				}
				return fmt.Sprintf(`{"status":"captured","bytes":%d}`, len(buf)), []string{"captured a screenshot"}, nil

			default:
				return "", nil, &ValidationError{Err: fmt.Errorf("unknown action: %s", args.Action)}
			}
		},
	}
}
