// Package tasks implements the Task Manager (C7): it creates one
// isolated agent per submitted task, enforces a concurrency cap with a
// bounded backlog queue, tracks task status, and fans notifications
// out to registered sinks. Grounded on the teacher's internal/jobs
// Store (in-memory registry, clone-on-read) generalized from async
// tool jobs to whole agent tasks, and on a simple priority-lane
// dispatcher instead of the teacher's cron scheduler, which solves a
// different problem (recurring schedules, not one-shot submission).
package tasks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentforge/orchestrator/internal/engine/runtime"
	"github.com/agentforge/orchestrator/internal/engine/types"
	"github.com/agentforge/orchestrator/internal/observability"
)

// Agent is the minimal surface the manager needs from a running task.
// *runtime.Agent satisfies it directly; tests substitute a fake.
type Agent interface {
	Run(ctx context.Context)
	Cancel()
}

// AgentFactory builds the Agent for one task. updater is always the
// Manager itself; emit fans the agent's events out to that task's
// bound sinks.
type AgentFactory func(task types.Task, updater runtime.TaskUpdater, emit func(types.Event)) Agent

// Descriptor carries per-submission overrides. Priority only affects
// dispatch order among backlogged tasks; it has no effect once a task
// is already running.
type Descriptor struct {
	Priority   string // "high" | "normal" | "low", default normal
	WorkingDir string
}

// Filter narrows List to tasks matching every non-empty field.
type Filter struct {
	ScopeID   string
	UserID    string
	ChannelID string
	Status    types.TaskStatus
}

// Stats summarizes the registry for health/status endpoints.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Running    int `json:"running"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	QueueDepth int `json:"queueDepth"`
}

// Config wires a Manager.
type Config struct {
	MaxConcurrent int
	QueueDepth    int
	AgentFactory  AgentFactory
	Logger        *observability.Logger
	Metrics       *observability.Metrics
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 5
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 50
	}
	return c
}

// Manager holds the task registry described in spec.md §4.7. All
// mutation flows through a single mutex; readers get clone-on-read
// snapshots, never a live *types.Task.
type Manager struct {
	cfg Config

	mu           sync.RWMutex
	tasks        map[string]*types.Task
	order        []string
	agents       map[string]Agent
	sinks        map[string]Sink
	sinkBindings map[string][]string
	queue        priorityQueue
	running      int
	closed       bool

	wake chan struct{}
	stop chan struct{}
}

// New creates a Manager and starts its dispatch loop.
func New(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:          cfg,
		tasks:        make(map[string]*types.Task),
		agents:       make(map[string]Agent),
		sinks:        make(map[string]Sink),
		sinkBindings: make(map[string][]string),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
	go m.dispatchLoop()
	return m
}

// RegisterSink binds a name to a notification target. Submit callers
// reference sinks by this name.
func (m *Manager) RegisterSink(name string, sink Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks[name] = sink
}

// Submit allocates a task id, registers the task as pending, and
// queues it for dispatch. It returns synchronously; the agent starts
// on its own goroutine once a concurrency slot is free.
func (m *Manager) Submit(command string, taskCtx types.TaskContext, descriptor Descriptor, sinkNames ...string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", &ValidationError{Message: "command is required"}
	}
	if taskCtx.CreatedAt.IsZero() {
		taskCtx.CreatedAt = time.Now()
	}
	id := uuid.NewString()
	task := types.Task{ID: id, Description: command, Context: taskCtx, Status: types.TaskPending}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}
	if m.queue.len() >= m.cfg.QueueDepth {
		m.mu.Unlock()
		return "", ErrAtCapacity
	}
	m.tasks[id] = &task
	m.order = append(m.order, id)
	if len(sinkNames) > 0 {
		m.sinkBindings[id] = append([]string(nil), sinkNames...)
	}
	m.queue.push(descriptor.Priority, &queuedTask{task: task, descriptor: descriptor})
	m.mu.Unlock()

	m.signalDispatch()
	return id, nil
}

// Status returns a snapshot of one task.
func (m *Manager) Status(taskID string) (types.Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return types.Task{}, false
	}
	return *t.Clone(), true
}

// List returns snapshots of every task matching filter, in submission
// order.
func (m *Manager) List(filter Filter) []types.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Task, 0, len(m.order))
	for _, id := range m.order {
		t := m.tasks[id]
		if t == nil {
			continue
		}
		if filter.ScopeID != "" && t.Context.ScopeID != filter.ScopeID {
			continue
		}
		if filter.UserID != "" && t.Context.UserID != filter.UserID {
			continue
		}
		if filter.ChannelID != "" && t.Context.ChannelID != filter.ChannelID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, *t.Clone())
	}
	return out
}

// Stats summarizes the registry.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{QueueDepth: m.queue.len()}
	for _, id := range m.order {
		t := m.tasks[id]
		if t == nil {
			continue
		}
		s.Total++
		switch t.Status {
		case types.TaskPending:
			s.Pending++
		case types.TaskRunning:
			s.Running++
		case types.TaskCompleted:
			s.Completed++
		case types.TaskFailed:
			s.Failed++
		case types.TaskCancelled:
			s.Cancelled++
		}
	}
	return s
}

// ActiveAgentIDs lists the task ids with a currently running agent.
func (m *Manager) ActiveAgentIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	return ids
}

// Cancel requests cancellation of a task, whether it is still
// queued or already running. Returns false for unknown or
// already-terminal tasks.
func (m *Manager) Cancel(taskID string) bool {
	m.mu.Lock()
	t := m.tasks[taskID]
	if t == nil || t.Status.IsTerminal() {
		m.mu.Unlock()
		return false
	}
	if agent, ok := m.agents[taskID]; ok {
		m.mu.Unlock()
		agent.Cancel()
		return true
	}
	if m.queue.removeByID(taskID) {
		now := time.Now()
		t.Status = types.TaskCancelled
		t.CompletedAt = &now
		if !t.StartedAt.IsZero() {
			duration := now.Sub(t.StartedAt).Milliseconds()
			t.DurationMs = &duration
		}
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()
	return false
}

// Notify pushes an ad hoc message to a task's bound sinks, outside the
// regular lifecycle event stream (e.g. an operator broadcast).
func (m *Manager) Notify(taskID, message string) {
	m.dispatchEvent(taskID, types.NewEvent(types.EventNotice, taskID).WithMessage(message))
}

// Update is the runtime.TaskUpdater implementation: the single-writer
// mutation surface an agent has over its own Task.
func (m *Manager) Update(taskID string, fn func(*types.Task)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tasks[taskID]
	if t == nil {
		return
	}
	fn(t)
}

// Close stops the dispatch loop. Already-running agents are not
// interrupted; call Cancel on each active id first for a clean drain.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	close(m.stop)
}

func (m *Manager) dispatchLoop() {
	for {
		select {
		case <-m.stop:
			return
		case <-m.wake:
			m.tryDispatch()
		}
	}
}

func (m *Manager) signalDispatch() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) tryDispatch() {
	m.mu.Lock()
	var toLaunch []*queuedTask
	for m.running < m.cfg.MaxConcurrent {
		qt := m.queue.pop()
		if qt == nil {
			break
		}
		m.running++
		toLaunch = append(toLaunch, qt)
	}
	m.mu.Unlock()
	for _, qt := range toLaunch {
		go m.runTask(qt)
	}
}

func (m *Manager) runTask(qt *queuedTask) {
	taskID := qt.task.ID
	emit := func(e types.Event) { m.dispatchEvent(taskID, e) }
	agent := m.cfg.AgentFactory(qt.task, m, emit)

	m.mu.Lock()
	m.agents[taskID] = agent
	m.mu.Unlock()

	agent.Run(context.Background())

	m.mu.Lock()
	delete(m.agents, taskID)
	m.running--
	m.mu.Unlock()

	m.signalDispatch()
}

func (m *Manager) dispatchEvent(taskID string, event types.Event) {
	m.mu.RLock()
	names := m.sinkBindings[taskID]
	sinks := make([]Sink, 0, len(names))
	for _, n := range names {
		if s, ok := m.sinks[n]; ok {
			sinks = append(sinks, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range sinks {
		go func(s Sink) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.Notify(ctx, event); err != nil && m.cfg.Logger != nil {
				m.cfg.Logger.Warn(ctx, "sink notify failed", "task_id", taskID, "error", err)
			}
		}(s)
	}
}
