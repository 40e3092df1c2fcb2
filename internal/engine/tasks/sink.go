package tasks

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

// Sink receives task lifecycle events. Implementations must tolerate
// concurrent calls for different tasks; the manager never serializes
// notify calls across tasks, only per-task ordering is preserved.
type Sink interface {
	Notify(ctx context.Context, event types.Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, event types.Event) error

func (f SinkFunc) Notify(ctx context.Context, event types.Event) error { return f(ctx, event) }

// jsonLinesSink writes one JSON object per event to w, guarded by a
// mutex since io.Writer implementations are not generally safe for
// concurrent use. This is the dependency-free default sink: it gives
// every task a working notification target without committing the
// engine to any particular chat transport.
type jsonLinesSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLinesSink returns a Sink that appends one JSON line per event
// to w.
func NewJSONLinesSink(w io.Writer) Sink {
	return &jsonLinesSink{w: w}
}

func (s *jsonLinesSink) Notify(ctx context.Context, event types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(data)
	return err
}
