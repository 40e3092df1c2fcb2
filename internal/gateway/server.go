// Package gateway implements the Orchestrator API (C8) described in
// spec.md §4.8: a thin, authenticated request-response surface in
// front of the Task Manager. It never mutates a Task directly —
// every state change is routed through the tasks.Manager.
//
// Grounded on the teacher's internal/gateway http_server.go (mux
// construction, listener lifecycle, graceful shutdown) and
// internal/web/middleware.go (the HTTP-layer, non-gRPC auth/logging
// shape); the teacher's gateway middleware.go is gRPC-interceptor
// code and does not apply here.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentforge/orchestrator/internal/engine/tasks"
	"github.com/agentforge/orchestrator/internal/engine/types"
	"github.com/agentforge/orchestrator/internal/observability"
)

// Config wires a Server.
type Config struct {
	Addr           string
	APIKey         string
	AllowedOrigins []string
	Tasks          *tasks.Manager
	Logger         *observability.Logger
	Metrics        *observability.Metrics

	// DefaultSinks names additional sinks (already registered on Tasks
	// via RegisterSink) that every submitted command is bound to,
	// alongside the built-in WebSocket broadcaster. Used for the
	// optional audit log, which must see every task regardless of
	// what the caller passes in commandRequest.Sink.
	DefaultSinks []string

	// OnSubmit, when set, is called with the freshly submitted task
	// right after Tasks.Submit succeeds. The optional audit log uses
	// this to record the initial row; sink-level events only carry
	// terminal/phase transitions, not the original submission.
	OnSubmit func(ctx context.Context, task types.Task)
}

// Server is the HTTP/WebSocket front door for the Task Manager.
type Server struct {
	cfg     Config
	http    *http.Server
	hub     *eventHub
	started time.Time
}

// New builds a Server. Call Start to begin serving.
func New(cfg Config) *Server {
	hub := newEventHub()
	s := &Server{cfg: cfg, hub: hub, started: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /command", s.handleCommand)
	mux.HandleFunc("GET /task/{id}", s.handleTaskGet)
	mux.HandleFunc("GET /tasks", s.handleTasksList)
	mux.HandleFunc("POST /task/{id}/cancel", s.handleTaskCancel)
	mux.HandleFunc("GET /agents", s.handleAgentsList)
	mux.HandleFunc("DELETE /agent/{id}", s.handleAgentDelete)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := chain(mux,
		CORSMiddleware(cfg.AllowedOrigins),
		LoggingMiddleware(cfg.Logger),
		authExcept(cfg.APIKey, cfg.Logger, "/health", "/metrics"),
	)

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Tasks != nil {
		cfg.Tasks.RegisterSink("__ws_broadcast", hub)
	}

	return s
}

// authExcept applies AuthMiddleware to every path except the given
// unauthenticated exceptions (health checks and the Prometheus scrape
// target, which is typically firewalled at the network layer instead).
func authExcept(apiKey string, logger *observability.Logger, exceptPaths ...string) func(http.Handler) http.Handler {
	auth := AuthMiddleware(apiKey, logger)
	exempt := make(map[string]bool, len(exceptPaths))
	for _, p := range exceptPaths {
		exempt[p] = true
	}
	return func(next http.Handler) http.Handler {
		authed := auth(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			authed.ServeHTTP(w, r)
		})
	}
}

// Start begins serving and blocks until the listener is closed.
// Returns nil on a clean shutdown (http.ErrServerClosed).
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.cfg.Logger.Info(context.Background(), "orchestrator api listening", "addr", s.cfg.Addr)
	if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	return s.http.Shutdown(ctx)
}

type healthResponse struct {
	Status    string      `json:"status"`
	UptimeS   float64     `json:"uptimeSeconds"`
	TaskStats tasks.Stats `json:"taskStats"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", UptimeS: time.Since(s.started).Seconds()}
	if s.cfg.Tasks != nil {
		resp.TaskStats = s.cfg.Tasks.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

type commandRequest struct {
	Command    string            `json:"command"`
	Context    types.TaskContext `json:"context"`
	Priority   string            `json:"priority,omitempty"`
	WorkingDir string            `json:"workingDir,omitempty"`
	Sink       string            `json:"sink,omitempty"`
}

type commandResponse struct {
	TaskID string `json:"taskId"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sinkNames := append([]string{"__ws_broadcast"}, s.cfg.DefaultSinks...)
	if req.Sink != "" {
		sinkNames = append(sinkNames, req.Sink)
	}

	id, err := s.cfg.Tasks.Submit(req.Command, req.Context, tasks.Descriptor{
		Priority:   req.Priority,
		WorkingDir: req.WorkingDir,
	}, sinkNames...)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	if s.cfg.OnSubmit != nil {
		if task, ok := s.cfg.Tasks.Status(id); ok {
			s.cfg.OnSubmit(r.Context(), task)
		}
	}
	writeJSON(w, http.StatusAccepted, commandResponse{TaskID: id})
}

func writeTaskError(w http.ResponseWriter, err error) {
	var verr *tasks.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tasks.ErrAtCapacity):
		writeJSONError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, tasks.ErrManagerClosed):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, ok := s.cfg.Tasks.Status(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleTasksList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := tasks.Filter{
		ScopeID:   q.Get("scopeId"),
		UserID:    q.Get("userId"),
		ChannelID: q.Get("channelId"),
		Status:    types.TaskStatus(q.Get("status")),
	}
	writeJSON(w, http.StatusOK, s.cfg.Tasks.List(filter))
}

func (s *Server) handleTaskCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.cfg.Tasks.Cancel(id) {
		writeJSONError(w, http.StatusNotFound, "task not found or already terminal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (s *Server) handleAgentsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"active": s.cfg.Tasks.ActiveAgentIDs()})
}

func (s *Server) handleAgentDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.cfg.Tasks.Cancel(id) {
		writeJSONError(w, http.StatusNotFound, "agent not found or already terminal")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
