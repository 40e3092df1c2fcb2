package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

func newTestClient() *wsClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &wsClient{send: make(chan []byte, 1), ctx: ctx, cancel: cancel}
}

func TestEventHub_NotifyFansOutToAllClients(t *testing.T) {
	hub := newEventHub()
	a, b := newTestClient(), newTestClient()
	hub.add(a)
	hub.add(b)

	event := types.NewEvent(types.EventToolCall, "task-1")
	if err := hub.Notify(context.Background(), event); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	for name, c := range map[string]*wsClient{"a": a, "b": b} {
		select {
		case msg := <-c.send:
			var decoded types.Event
			if err := json.Unmarshal(msg, &decoded); err != nil {
				t.Fatalf("client %s: decode: %v", name, err)
			}
			if decoded.TaskID != "task-1" {
				t.Errorf("client %s: task id = %q", name, decoded.TaskID)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %s never received the event", name)
		}
	}
}

func TestEventHub_RemoveStopsDelivery(t *testing.T) {
	hub := newEventHub()
	c := newTestClient()
	hub.add(c)
	hub.remove(c)

	if err := hub.Notify(context.Background(), types.NewEvent(types.EventToolCall, "task-2")); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	select {
	case <-c.send:
		t.Fatal("removed client should not receive events")
	default:
	}
}

func TestEventHub_SlowClientDropsRatherThanBlocks(t *testing.T) {
	hub := newEventHub()
	slow := newTestClient() // buffer of 1
	hub.add(slow)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			_ = hub.Notify(context.Background(), types.NewEvent(types.EventToolCall, "task-3"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a slow client instead of dropping")
	}
}

func TestEventHub_CloseAllCancelsEveryClient(t *testing.T) {
	hub := newEventHub()
	a, b := newTestClient(), newTestClient()
	hub.add(a)
	hub.add(b)

	hub.closeAll()

	for name, c := range map[string]*wsClient{"a": a, "b": b} {
		select {
		case <-c.ctx.Done():
		default:
			t.Errorf("client %s context was not cancelled", name)
		}
	}
}
