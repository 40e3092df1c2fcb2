package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

// FilesConfig controls the file-access tools' sandboxing.
type FilesConfig struct {
	WorkingDir   string
	MaxReadBytes int
}

// NewReadFileTool builds the built-in "read_file" tool.
func NewReadFileTool(cfg FilesConfig) Tool {
	if cfg.MaxReadBytes <= 0 {
		cfg.MaxReadBytes = 200_000
	}
	resolver := newPathResolver(cfg.WorkingDir)

	schema, _ := json.Marshal(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file, relative to the task workspace.",
			},
			"offset": map[string]interface{}{
				"type":        "integer",
				"description": "Byte offset to start reading from.",
				"minimum":     0,
			},
			"max_bytes": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum bytes to read (capped by the tool default).",
				"minimum":     0,
			},
		},
		"required": []string{"path"},
	})

	return Tool{
		Descriptor: types.ToolDescriptor{
			Name:        "read_file",
			Description: "Read a file from the task workspace with optional offset and byte limit.",
			Parameters:  schema,
		},
		Handler: func(ctx context.Context, input json.RawMessage) (string, []string, error) {
			var args struct {
				Path     string `json:"path"`
				Offset   int64  `json:"offset"`
				MaxBytes int    `json:"max_bytes"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", nil, &ValidationError{Err: fmt.Errorf("decode read_file input: %w", err)}
			}
			if strings.TrimSpace(args.Path) == "" {
				return "", nil, &ValidationError{Err: fmt.Errorf("path is required")}
			}
			resolved, err := resolver.resolve(args.Path)
			if err != nil {
				return "", nil, &ValidationError{Err: err}
			}

			file, err := os.Open(resolved)
			if err != nil {
				return "", nil, fmt.Errorf("open file: %w", err)
			}
			defer file.Close()

			info, err := file.Stat()
			if err != nil {
				return "", nil, fmt.Errorf("stat file: %w", err)
			}
			if args.Offset > 0 {
				if _, err := file.Seek(args.Offset, io.SeekStart); err != nil {
					return "", nil, fmt.Errorf("seek file: %w", err)
				}
			}

			limit := cfg.MaxReadBytes
			if args.MaxBytes > 0 && args.MaxBytes < limit {
				limit = args.MaxBytes
			}
			buf, err := io.ReadAll(io.LimitReader(file, int64(limit)))
			if err != nil {
				return "", nil, fmt.Errorf("read file: %w", err)
			}
			truncated := info.Size() > args.Offset+int64(len(buf))

			result := map[string]interface{}{
				"path":      args.Path,
				"content":   string(buf),
				"bytes":     len(buf),
				"truncated": truncated,
			}
			payload, err := json.Marshal(result)
			if err != nil {
				return "", nil, fmt.Errorf("encode read_file result: %w", err)
			}
			insights := []string{fmt.Sprintf("read %d bytes from %s", len(buf), args.Path)}
			return string(payload), insights, nil
		},
	}
}

// NewWriteFileTool builds the built-in "write_file" tool.
func NewWriteFileTool(cfg FilesConfig) Tool {
	resolver := newPathResolver(cfg.WorkingDir)

	schema, _ := json.Marshal(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file, relative to the task workspace.",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Content to write.",
			},
			"append": map[string]interface{}{
				"type":        "boolean",
				"description": "Append instead of overwriting.",
			},
		},
		"required": []string{"path", "content"},
	})

	return Tool{
		Descriptor: types.ToolDescriptor{
			Name:        "write_file",
			Description: "Write or append content to a file in the task workspace, creating parent directories as needed.",
			Parameters:  schema,
		},
		Handler: func(ctx context.Context, input json.RawMessage) (string, []string, error) {
			var args struct {
				Path    string `json:"path"`
				Content string `json:"content"`
				Append  bool   `json:"append"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", nil, &ValidationError{Err: fmt.Errorf("decode write_file input: %w", err)}
			}
			if strings.TrimSpace(args.Path) == "" {
				return "", nil, &ValidationError{Err: fmt.Errorf("path is required")}
			}
			resolved, err := resolver.resolve(args.Path)
			if err != nil {
				return "", nil, &ValidationError{Err: err}
			}
			if err := os.MkdirAll(parentDir(resolved), 0o755); err != nil {
				return "", nil, fmt.Errorf("create parent directories: %w", err)
			}

			flags := os.O_CREATE | os.O_WRONLY
			if args.Append {
				flags |= os.O_APPEND
			} else {
				flags |= os.O_TRUNC
			}
			file, err := os.OpenFile(resolved, flags, 0o644)
			if err != nil {
				return "", nil, fmt.Errorf("open file: %w", err)
			}
			defer file.Close()
			if _, err := file.WriteString(args.Content); err != nil {
				return "", nil, fmt.Errorf("write file: %w", err)
			}

			result := map[string]interface{}{
				"path":  args.Path,
				"bytes": len(args.Content),
			}
			payload, _ := json.Marshal(result)
			insights := []string{fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path)}
			return string(payload), insights, nil
		},
	}
}

// NewListFilesTool builds the built-in "list_files" tool.
func NewListFilesTool(cfg FilesConfig) Tool {
	resolver := newPathResolver(cfg.WorkingDir)

	schema, _ := json.Marshal(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to list, relative to the task workspace (default: workspace root).",
			},
		},
	})

	return Tool{
		Descriptor: types.ToolDescriptor{
			Name:        "list_files",
			Description: "List the entries of a directory in the task workspace.",
			Parameters:  schema,
		},
		Handler: func(ctx context.Context, input json.RawMessage) (string, []string, error) {
			var args struct {
				Path string `json:"path"`
			}
			if len(input) > 0 {
				if err := json.Unmarshal(input, &args); err != nil {
					return "", nil, &ValidationError{Err: fmt.Errorf("decode list_files input: %w", err)}
				}
			}
			target := args.Path
			if target == "" {
				target = "."
			}
			resolved, err := resolver.resolve(target)
			if err != nil {
				return "", nil, &ValidationError{Err: err}
			}
			entries, err := os.ReadDir(resolved)
			if err != nil {
				return "", nil, fmt.Errorf("read directory: %w", err)
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			payload, _ := json.Marshal(map[string]interface{}{"path": target, "entries": names})
			return string(payload), nil, nil
		},
	}
}

func parentDir(path string) string {
	idx := strings.LastIndexByte(path, os.PathSeparator)
	if idx < 0 {
		return "."
	}
	return path[:idx]
}
